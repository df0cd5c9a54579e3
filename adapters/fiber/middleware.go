package fiber

import (
	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bhvr/core"
)

// Locals keys set by Protected.
const (
	LocalsUser    = "user"
	LocalsSession = "session"
)

// Protected creates a Fiber middleware that validates auth tokens
// and stores user/session data in the context for downstream handlers.
func (a *Adapter) Protected() fiber.Handler {
	return func(c fiber.Ctx) error {
		raw := a.extractToken(c)
		if raw == "" {
			return a.handleAuthError(c, core.ErrMissingAuthHeader)
		}

		token, err := a.resolveToken(raw)
		if err != nil {
			return a.handleAuthError(c, err)
		}

		sessionData, err := a.auth.GetSession(c.Context(), token)
		if err != nil {
			return a.handleAuthError(c, err)
		}

		c.Locals(LocalsUser, sessionData.User)
		c.Locals(LocalsSession, sessionData.Session)

		return c.Next()
	}
}

// UserFrom returns the user stored by Protected, or nil.
func UserFrom(c fiber.Ctx) *core.User {
	u, _ := c.Locals(LocalsUser).(*core.User)
	return u
}

// SessionFrom returns the session stored by Protected, or nil.
func SessionFrom(c fiber.Ctx) *core.Session {
	s, _ := c.Locals(LocalsSession).(*core.Session)
	return s
}
