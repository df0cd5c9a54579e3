package fiber

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/services"
)

const (
	DefaultCookieName = "bhvr.session_token"
	// HeaderAuthToken carries the signed session token on sign-in and sign-up
	// responses for clients that cannot read cookies.
	HeaderAuthToken = "Set-Auth-Token"
)

type Config struct {
	Auth     core.AuthHandler
	Registry *services.EndpointRegistry
	// Secret signs the session token handed to clients.
	Secret string
	// MaxAge bounds the session cookie lifetime.
	MaxAge       time.Duration
	CookieName   string
	CookieSecure bool
	Logger       *slog.Logger
}

type Adapter struct {
	auth         core.AuthHandler
	registry     *services.EndpointRegistry
	secret       string
	maxAge       time.Duration
	cookieName   string
	cookieSecure bool
	log          *slog.Logger
}

func New(cfg Config) *Adapter {
	if cfg.Registry == nil {
		cfg.Registry = services.NewEndpointRegistry()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = core.DefaultSessionConfig().MaxAge
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Adapter{
		auth:         cfg.Auth,
		registry:     cfg.Registry,
		secret:       cfg.Secret,
		maxAge:       cfg.MaxAge,
		cookieName:   cfg.CookieName,
		cookieSecure: cfg.CookieSecure,
		log:          cfg.Logger,
	}
}

// Handler serves every registered endpoint. Mount it on a wildcard route
// under the provider's base path, e.g. app.Add([]string{"GET","POST"}, "/api/*", h).
func (a *Adapter) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		path := "/" + c.Params("*")

		ep, ok := a.registry.Lookup(c.Method(), path)
		if !ok {
			return c.Status(http.StatusNotFound).JSON(core.ErrorResponse{
				Code:    core.CodeNotFound,
				Message: "Not Found",
			})
		}

		if ep.Handler != nil {
			return a.servePlugin(c, ep)
		}

		switch ep.Metadata.OperationID {
		case core.OpSignUpEmail:
			return a.signUp(c)
		case core.OpSignInEmail:
			return a.signIn(c)
		case core.OpSignOut:
			return a.signOut(c)
		case core.OpGetSession:
			return a.getSession(c)
		}

		a.log.Error("endpoint has no handler", "method", ep.Method, "path", ep.Path)
		return c.Status(http.StatusNotImplemented).JSON(core.ErrorResponse{
			Code:    core.CodeInternal,
			Message: "Not Implemented",
		})
	}
}

func (a *Adapter) servePlugin(c fiber.Ctx, ep *core.Endpoint) error {
	rc := &core.RequestContext{Request: c, Auth: a.auth}

	if token, err := a.resolveToken(a.extractToken(c)); err == nil {
		if data, err := a.auth.GetSession(c.Context(), token); err == nil {
			rc.Session = data
		}
	}
	if ep.Metadata.RequiresAuth && rc.Session == nil {
		return a.handleAuthError(c, core.ErrInvalidToken)
	}

	return ep.Handler(rc)
}
