// Package server assembles the API server: a greeting at /, the auth
// provider under its base path and the /hello RPC.
package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lborres/bhvr"
	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/logging"
	"github.com/lborres/bhvr/metrics"
)

const (
	Greeting     = "Hello Fiber!"
	HelloMessage = "Hello BHVR!"
)

type Config struct {
	Auth    *bhvr.Bhvr
	AppName string
	// AllowOrigins defaults to every origin.
	AllowOrigins []string
	// Metrics, when set, counts responses by status.
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// New returns the API server app.
func New(cfg Config) *fiber.App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	app := fiber.New(fiber.Config{AppName: cfg.AppName})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.Middleware(logger))
	if cfg.Metrics != nil {
		app.Use(cfg.Metrics.Middleware())
	}
	app.Use(cors.New(cors.Config{AllowOrigins: origins}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString(Greeting)
	})
	cfg.Auth.Mount(app)
	app.Get("/hello", hello)

	return app
}

func hello(c fiber.Ctx) error {
	return c.JSON(core.APIResponse{Message: HelloMessage, Success: true})
}

// NewMetricsApp serves the metrics gathered by g at /metrics.
func NewMetricsApp(g prometheus.Gatherer) *fiber.App {
	app := fiber.New()
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(g)))
	return app
}
