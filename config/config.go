// Package config loads the server and web frontend settings from the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Server configures the API server.
type Server struct {
	Port        int    `envconfig:"PORT" default:"8787"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	AppName     string `envconfig:"APP_NAME" default:"BHVR Template"`

	AuthSecret   string `envconfig:"AUTH_SECRET" required:"true"`
	AuthBasePath string `envconfig:"AUTH_BASE_PATH" default:"/api"`

	SessionMaxAge          time.Duration `envconfig:"SESSION_MAX_AGE" default:"168h"`
	SessionUpdateAge       time.Duration `envconfig:"SESSION_UPDATE_AGE" default:"24h"`
	SessionCacheTTL        time.Duration `envconfig:"SESSION_CACHE_TTL" default:"5m"`
	SessionCacheSize       int           `envconfig:"SESSION_CACHE_SIZE" default:"500"`
	SessionCleanupInterval time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"1h"`

	CORSAllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
	CookieSecure     bool     `envconfig:"COOKIE_SECURE" default:"false"`

	// MetricsAddr serves /metrics on its own listener; empty disables it.
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Addr is the listen address for Port.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// LoadServer reads the API server configuration from environment variables.
func LoadServer() (*Server, error) {
	var cfg Server
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Web configures the server-rendered frontend.
type Web struct {
	Port      int    `envconfig:"WEB_PORT" default:"5173"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8787"`

	QueryStaleTime time.Duration `envconfig:"QUERY_STALE_TIME" default:"5m"`
	QueryRetry     int           `envconfig:"QUERY_RETRY" default:"2"`
	MutationRetry  int           `envconfig:"MUTATION_RETRY" default:"1"`

	VisitorTTL   time.Duration `envconfig:"VISITOR_TTL" default:"24h"`
	VisitorMax   int           `envconfig:"VISITOR_MAX" default:"10000"`
	CookieSecure bool          `envconfig:"COOKIE_SECURE" default:"false"`
}

func (w *Web) Addr() string {
	return fmt.Sprintf(":%d", w.Port)
}

// LoadWeb reads the frontend configuration from environment variables.
func LoadWeb() (*Web, error) {
	var cfg Web
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Driver names a storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// ParseDatabaseURL picks the storage backend for url and returns the
// connection string that backend expects. An empty url means in-memory
// storage.
func ParseDatabaseURL(url string) (Driver, string, error) {
	switch {
	case url == "":
		return DriverMemory, "", nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("database url %q: missing sqlite path", url)
		}
		return DriverSQLite, path, nil
	case strings.HasPrefix(url, "file:"):
		return DriverSQLite, url, nil
	default:
		return "", "", fmt.Errorf("database url %q: unsupported scheme", url)
	}
}
