package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/splax/unhazzle/internal/app/migrate"
	httpx "github.com/splax/unhazzle/internal/http"
	"github.com/splax/unhazzle/internal/repository"
	"github.com/splax/unhazzle/internal/repository/memory"
	"github.com/splax/unhazzle/internal/repository/postgres"
	redisrepo "github.com/splax/unhazzle/internal/repository/redis"
	"github.com/splax/unhazzle/internal/service/pricing"
	"github.com/splax/unhazzle/internal/service/session"
	"github.com/splax/unhazzle/internal/service/state"
	"github.com/splax/unhazzle/internal/ws"
	"github.com/splax/unhazzle/pkg/config"
	"github.com/splax/unhazzle/pkg/logger"
)

// backend is an opened state repository with its health probe and cleanup.
type backend struct {
	repo   repository.StateRepository
	health httpx.HealthCheck
	close  func()
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open state backend", "backend", cfg.StateBackend, "error", err)
		os.Exit(1)
	}
	defer store.close()

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	hub := ws.NewHub()
	defer hub.Close()

	if cfg.StateSealKey == "" {
		log.Warn("STATE_SEAL_KEY not set, masked values are persisted in plain text")
	}
	sessions := session.New(store.repo, state.NewCodec(cfg.StateSealKey, cfg.DomainSuffix), hub, session.Config{
		Secret:   cfg.SessionSecret,
		TokenTTL: cfg.SessionTTL,
		IdleTTL:  cfg.SessionIdleTTL,
		Store: state.Options{
			Logger:       log,
			SettleDelay:  cfg.SimulatedDelay,
			DomainSuffix: cfg.DomainSuffix,
		},
	}, log)
	defer sessions.Close()
	go sessions.Run(ctx, cfg.SessionSweepEvery)

	health := map[string]httpx.HealthCheck{}
	if store.health != nil {
		health[cfg.StateBackend] = store.health
	}
	router := httpx.NewRouter(httpx.Deps{
		Logger:    log,
		Sessions:  sessions,
		Estimator: pricing.New(log),
		Hub:       hub,
		Limiter:   limiter,
		Health:    health,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "backend", cfg.StateBackend, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
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

func openBackend(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (backend, error) {
	switch cfg.StateBackend {
	case config.BackendMemory:
		log.Warn("using in-memory state backend, sessions are lost on restart")
		return backend{repo: memory.New(), close: func() {}}, nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("connect to database: %w", err)
		}
		src, err := migrate.Source(cfg.MigrationsDir)
		if err != nil {
			pool.Close()
			return backend{}, err
		}
		runner, err := migrate.New(pool, src, log)
		if err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("configure migrations: %w", err)
		}
		cleanup := func() {
			_ = runner.Close()
			pool.Close()
		}
		if err := runner.Ping(ctx); err != nil {
			cleanup()
			return backend{}, err
		}
		if cfg.AutoMigrate {
			if err := runner.Ensure(ctx); err != nil {
				cleanup()
				return backend{}, err
			}
		}
		return backend{repo: postgres.New(pool), health: pool.Ping, close: cleanup}, nil
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return backend{}, fmt.Errorf("ping redis: %w", err)
		}
		return backend{
			repo:   redisrepo.New(client, cfg.RedisStateTTL),
			health: func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close:  func() { _ = client.Close() },
		}, nil
	default:
		return backend{}, fmt.Errorf("unknown STATE_BACKEND %q", cfg.StateBackend)
	}
}
