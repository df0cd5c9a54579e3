package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/lborres/bhvr"
	"github.com/lborres/bhvr/adapters/memory"
	pgxadapter "github.com/lborres/bhvr/adapters/pgx"
	"github.com/lborres/bhvr/adapters/sqlite"
	"github.com/lborres/bhvr/config"
	"github.com/lborres/bhvr/logging"
	"github.com/lborres/bhvr/metrics"
	"github.com/lborres/bhvr/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func openStorage(ctx context.Context, url string) (bhvr.AuthStorage, error) {
	driver, dsn, err := config.ParseDatabaseURL(url)
	if err != nil {
		return nil, err
	}
	switch driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := pgxadapter.Migrate(pool); err != nil {
			pool.Close()
			return nil, err
		}
		return pgxadapter.New(pool), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memory.New(), nil
	}
}

func run(ctx context.Context, cfg *config.Server, logger *slog.Logger) error {
	storage, err := openStorage(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	auth, err := bhvr.New(bhvr.Config{
		Secret:   cfg.AuthSecret,
		Database: storage,
		BasePath: cfg.AuthBasePath,
		SessionConfig: &bhvr.SessionConfig{
			MaxAge:    cfg.SessionMaxAge,
			UpdateAge: cfg.SessionUpdateAge,
		},
		CacheConfig:  &bhvr.CacheConfig{TTL: cfg.SessionCacheTTL, MaxSize: cfg.SessionCacheSize},
		CookieSecure: cfg.CookieSecure,
		Observer:     collector,
		Logger:       logger,
	})
	if err != nil {
		_ = storage.Close()
		return fmt.Errorf("create auth provider: %w", err)
	}
	defer auth.Close()

	if err := metrics.RegisterCacheStats(reg, auth.CacheStats); err != nil {
		return err
	}

	app := server.New(server.Config{
		Auth:         auth,
		AppName:      cfg.AppName,
		AllowOrigins: cfg.CORSAllowOrigins,
		Metrics:      collector,
		Logger:       logger,
	})
	apps := []*fiber.App{app}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		auth.RunCleanup(ctx, cfg.SessionCleanupInterval, func(n int, err error) {
			if err != nil {
				logger.Warn("session cleanup failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("purged expired sessions", "count", n)
			}
		})
		return nil
	})
	g.Go(func() error {
		logger.Info("api server listening", "addr", cfg.Addr(), "storage", storageName(cfg.DatabaseURL))
		return app.Listen(cfg.Addr(), fiber.ListenConfig{DisableStartupMessage: true})
	})
	if cfg.MetricsAddr != "" {
		metricsApp := server.NewMetricsApp(reg)
		apps = append(apps, metricsApp)
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			return metricsApp.Listen(cfg.MetricsAddr, fiber.ListenConfig{DisableStartupMessage: true})
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		var errs []error
		for _, a := range apps {
			errs = append(errs, a.ShutdownWithTimeout(shutdownTimeout))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func storageName(url string) string {
	driver, _, _ := config.ParseDatabaseURL(url)
	return string(driver)
}
