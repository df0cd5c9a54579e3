package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/lborres/bhvr/config"
	"github.com/lborres/bhvr/logging"
	"github.com/lborres/bhvr/pkg/query"
	"github.com/lborres/bhvr/web"
)

func main() {
	cfg, err := config.LoadWeb()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(os.Stdout, cfg.LogLevel)

	opts := query.DefaultOptions()
	opts.StaleTime = cfg.QueryStaleTime
	opts.Retry = cfg.QueryRetry
	opts.MutationRetry = cfg.MutationRetry
	opts.Logger = logger

	frontend := web.New(web.Config{
		ServerURL:    cfg.ServerURL,
		Query:        &opts,
		VisitorTTL:   cfg.VisitorTTL,
		VisitorMax:   cfg.VisitorMax,
		CookieSecure: cfg.CookieSecure,
		Logger:       logger,
	})

	app := fiber.New(fiber.Config{
		AppName:     "bhvr web",
		Views:       web.Views(),
		ViewsLayout: "layouts/main",
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.Middleware(logger))
	frontend.Register(app)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("web listening", "addr", cfg.Addr(), "server", cfg.ServerURL)
	if err := app.Listen(cfg.Addr(), fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		logger.Error("web stopped", "error", err)
		os.Exit(1)
	}
}
