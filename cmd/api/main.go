package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/splax/bookreview/internal/app/store"
	httpx "github.com/splax/bookreview/internal/http"
	"github.com/splax/bookreview/internal/service/auth"
	"github.com/splax/bookreview/internal/service/books"
	"github.com/splax/bookreview/internal/service/reviews"
	"github.com/splax/bookreview/internal/ws"
	"github.com/splax/bookreview/pkg/config"
	jwtpkg "github.com/splax/bookreview/pkg/jwt"
	"github.com/splax/bookreview/pkg/logger"
)

func main() {
	cfg, warnings, err := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		log.Warn("configuration fallback", "detail", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := store.Open(ctx, cfg, store.Options{Migrate: true}, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Close(closeCtx); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()

	issuer, err := jwtpkg.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL.Duration())
	if err != nil {
		log.Error("failed to configure token issuer", "error", err)
		os.Exit(1)
	}

	reviewHub := ws.NewHub()
	defer reviewHub.Close()

	authSvc := auth.New(repo, issuer, log, cfg.BcryptCost)
	reviewSvc := reviews.New(repo, repo, repo, reviewHub, log)
	bookSvc := books.New(repo, reviewSvc, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	proxies, err := httpx.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Error("invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}

	router := httpx.NewRouter(httpx.Dependencies{
		Logger:          log,
		Auth:            authSvc,
		Books:           bookSvc,
		Reviews:         reviewSvc,
		Limiter:         limiter,
		Health:          repo.Ping,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		MetricsEnabled:  cfg.MetricsEnabled,
		StreamHeartbeat: cfg.StreamHeartbeat,
		TrustedProxies:  proxies,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	// Live feed streams end once their subscribers are closed.
	srv.RegisterOnShutdown(reviewHub.Close)

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "store", cfg.StoreDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
