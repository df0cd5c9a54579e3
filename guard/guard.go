// Package guard protects routes that need a signed-in user.
package guard

import (
	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bhvr/authstate"
)

type Decision int

const (
	Loading Decision = iota
	Authenticated
	Unauthenticated
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Decide maps an auth state to what a protected route should do.
func Decide(s authstate.State) Decision {
	switch {
	case s.IsLoading:
		return Loading
	case s.IsAuthenticated:
		return Authenticated
	default:
		return Unauthenticated
	}
}

const (
	DefaultRedirectTo = "/login"
	// DefaultRefresh is the Refresh header value sent with the loading view.
	DefaultRefresh = "1"
)

type Config struct {
	// RedirectTo is where unauthenticated visitors are sent.
	RedirectTo string
	// Loading renders while auth state is still being resolved.
	Loading fiber.Handler
	// Refresh is the delay, in seconds, before the browser retries.
	Refresh string
}

func defaultLoading(c fiber.Ctx) error {
	return c.SendString("Loading...")
}

// New returns middleware that lets authenticated requests through, redirects
// everyone else to cfg.RedirectTo and shows the loading view in between.
//
// The request context must carry an authstate.Provider; New panics at
// request time otherwise.
func New(config ...Config) fiber.Handler {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.RedirectTo == "" {
		cfg.RedirectTo = DefaultRedirectTo
	}
	if cfg.Loading == nil {
		cfg.Loading = defaultLoading
	}
	if cfg.Refresh == "" {
		cfg.Refresh = DefaultRefresh
	}

	return func(c fiber.Ctx) error {
		p := authstate.Use(c.Context())
		p.Mount(c.Context())

		switch Decide(p.State()) {
		case Loading:
			c.Set("Refresh", cfg.Refresh)
			c.Set(fiber.HeaderCacheControl, "no-store")
			return cfg.Loading(c)
		case Unauthenticated:
			return c.Redirect().Status(fiber.StatusSeeOther).To(cfg.RedirectTo)
		default:
			return c.Next()
		}
	}
}
