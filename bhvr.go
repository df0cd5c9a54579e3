// Package bhvr embeds an email/password auth provider into a Fiber app.
//
//	auth, err := bhvr.New(bhvr.Config{Secret: secret, Database: memory.New()})
//	auth.Mount(app)
//	app.Get("/private", auth.Protected(), handler)
package bhvr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	fiberadapter "github.com/lborres/bhvr/adapters/fiber"
	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/pkg/cache"
	"github.com/lborres/bhvr/pkg/crypto"
	"github.com/lborres/bhvr/services"
)

// interfaces
type (
	AuthStorage     = core.AuthStorage
	Cache           = core.Cache
	Observer        = core.Observer
	PasswordHandler = crypto.PasswordHandler
)

// structs
type (
	SessionConfig = core.SessionConfig
	CacheConfig   = core.CacheConfig
	CacheStats    = core.CacheStats
	User          = core.User
	Account       = core.Account
	Session       = core.Session
	SessionData   = core.SessionData
)

const (
	DefaultBasePath  = "/api"
	defaultSecretLen = 32
)

var (
	ErrDBAdapterRequired = core.ErrDBAdapterRequired
	ErrSecretRequired    = core.ErrSecretRequired
	ErrSecretTooShort    = core.ErrSecretTooShort
)

type Config struct {
	// Secret signs session tokens. At least 32 characters.
	Secret   string
	Database AuthStorage

	// BasePath is where Mount serves the auth endpoints. Default /api.
	BasePath      string
	SessionConfig *SessionConfig

	// CacheAdapter replaces the in-memory session cache built from CacheConfig.
	CacheAdapter Cache
	CacheConfig  *CacheConfig
	DisableCache bool

	PasswordHasher PasswordHandler
	Plugins        []core.EndpointProvider

	CookieName   string
	CookieSecure bool

	Observer Observer
	Logger   *slog.Logger
}

type Bhvr struct {
	Auth           *services.AuthService
	SessionManager *services.SessionManager
	Registry       *services.EndpointRegistry
	Cache          Cache
	BasePath       string

	db   AuthStorage
	http *fiberadapter.Adapter
}

func New(config Config) (*Bhvr, error) {
	if config.Secret == "" {
		return nil, ErrSecretRequired
	}
	if len(config.Secret) < defaultSecretLen {
		return nil, fmt.Errorf("%w - minimum of %d characters", ErrSecretTooShort, defaultSecretLen)
	}
	if config.Database == nil {
		return nil, ErrDBAdapterRequired
	}

	// Set Defaults

	cacheAdapter := config.CacheAdapter
	if cacheAdapter == nil && !config.DisableCache {
		cacheConfig := CacheConfig{TTL: cache.DefaultTTL, MaxSize: cache.DefaultMaxSize}
		if config.CacheConfig != nil {
			cacheConfig = *config.CacheConfig
		}
		cacheAdapter = cache.NewSessionCache(cacheConfig)
	}

	sessionConfig := core.DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = crypto.NewArgon2()
	}

	basePath := strings.TrimRight(config.BasePath, "/")
	if basePath == "" {
		basePath = DefaultBasePath
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := services.NewEndpointRegistry()
	for _, plugin := range config.Plugins {
		if err := registry.RegisterPlugin(plugin.GetEndpoints()); err != nil {
			return nil, err
		}
	}

	sessionManager := services.NewSessionManager(sessionConfig, config.Database, cacheAdapter)
	auth := services.NewAuthService(config.Database, sessionManager, passwordHasher)
	if config.Observer != nil {
		auth.WithObserver(config.Observer)
	}

	return &Bhvr{
		Auth:           auth,
		SessionManager: sessionManager,
		Registry:       registry,
		Cache:          cacheAdapter,
		BasePath:       basePath,
		db:             config.Database,
		http: fiberadapter.New(fiberadapter.Config{
			Auth:         auth,
			Registry:     registry,
			Secret:       config.Secret,
			MaxAge:       sessionConfig.MaxAge,
			CookieName:   config.CookieName,
			CookieSecure: config.CookieSecure,
			Logger:       logger,
		}),
	}, nil
}

// Handler serves the auth endpoints. The route must capture the path below
// the base path as its wildcard.
func (b *Bhvr) Handler() fiber.Handler {
	return b.http.Handler()
}

// Mount registers the auth endpoints under BasePath.
func (b *Bhvr) Mount(r fiber.Router) {
	r.Add([]string{http.MethodGet, http.MethodPost}, b.BasePath+"/*", b.Handler())
}

// Protected rejects requests without a valid session and stores the user and
// session in Locals for the handlers that follow.
func (b *Bhvr) Protected() fiber.Handler {
	return b.http.Protected()
}

// RunCleanup purges expired sessions every interval until ctx is done.
func (b *Bhvr) RunCleanup(ctx context.Context, interval time.Duration, onPurge func(int, error)) {
	b.SessionManager.RunJanitor(ctx, interval, onPurge)
}

// CacheStats reports session cache statistics when the cache keeps them.
func (b *Bhvr) CacheStats() (CacheStats, bool) {
	if c, ok := b.Cache.(core.CacheWithStats); ok {
		return c.Stats(), true
	}
	return CacheStats{}, false
}

// Close releases the storage.
func (b *Bhvr) Close() error {
	return b.db.Close()
}
