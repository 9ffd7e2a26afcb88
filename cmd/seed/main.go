package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/splax/bookreview/internal/app/store"
	"github.com/splax/bookreview/internal/service/books"
	"github.com/splax/bookreview/pkg/config"
	"github.com/splax/bookreview/pkg/logger"
)

func main() {
	timeout := flag.Duration("timeout", time.Minute, "seed timeout")
	migrateFirst := flag.Bool("migrate", true, "apply postgres migrations before seeding")
	flag.Parse()

	var cfg config.APIConfig
	log := logger.New("seed", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))
	if err := config.ParseEnv(&cfg); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.StoreDriver == config.StoreMemory {
		log.Error("seeding the memory store has no lasting effect; choose postgres or mongo")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	repo, err := store.Open(ctx, cfg, store.Options{Migrate: *migrateFirst}, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer repo.Close(context.Background())

	svc := books.New(repo, nil, log)
	added, err := svc.Seed(ctx, books.SampleCatalogue())
	if err != nil {
		log.Error("seed failed", "added", added, "error", err)
		os.Exit(1)
	}
	log.Info("seed complete", "added", added)
}
