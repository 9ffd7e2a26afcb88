package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/bookreview/internal/app/migrate"
	"github.com/splax/bookreview/pkg/config"
	"github.com/splax/bookreview/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	dir := flag.String("dir", "", "migrations directory (defaults to DB_MIGRATIONS_DIR, then the embedded set)")
	flag.Parse()

	// Migrations only need the database settings; the signing secret is not
	// validated here.
	var cfg config.APIConfig
	log := logger.New("migrate", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))
	if err := config.ParseEnv(&cfg); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *dir != "" {
		cfg.MigrationsDir = *dir
	}
	if cfg.StoreDriver != config.StorePostgres {
		log.Error("migrations apply to the postgres store only", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}

	switch *command {
	case "up":
		err = runner.Ensure(ctx)
	case "status":
		err = runner.Status(ctx)
	case "down":
		err = runner.Down(ctx, *target)
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}

	log.Info("migration command completed", "command", *command)
}
