package fiber

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/pkg/crypto"
)

// signUp handles POST /sign-up/email
func (a *Adapter) signUp(c fiber.Ctx) error {
	var input core.SignUpInput
	if err := c.Bind().Body(&input); err != nil {
		return a.handleAuthError(c, core.ErrInvalidBody)
	}

	result, err := a.auth.SignUp(c.Context(), input, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return a.handleAuthError(c, err)
	}

	a.setSessionCookie(c, result.Token, result.Session)
	return c.Status(http.StatusOK).JSON(result)
}

// signIn handles POST /sign-in/email
func (a *Adapter) signIn(c fiber.Ctx) error {
	var input core.SignInInput
	if err := c.Bind().Body(&input); err != nil {
		return a.handleAuthError(c, core.ErrInvalidBody)
	}

	result, err := a.auth.SignIn(c.Context(), input, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return a.handleAuthError(c, err)
	}

	a.setSessionCookie(c, result.Token, result.Session)
	return c.Status(http.StatusOK).JSON(result)
}

// signOut handles POST /sign-out. A request without a usable session is
// already signed out and succeeds.
func (a *Adapter) signOut(c fiber.Ctx) error {
	token, err := a.resolveToken(a.extractToken(c))
	if err == nil {
		err = a.auth.SignOut(c.Context(), token)
	}
	if err != nil && !errors.Is(err, core.ErrInvalidToken) {
		return a.handleAuthError(c, err)
	}

	a.clearSessionCookie(c)
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

// getSession handles GET /get-session. A missing or unusable token is not an
// error: the response body is null.
func (a *Adapter) getSession(c fiber.Ctx) error {
	raw := a.extractToken(c)
	if raw == "" {
		return c.Status(http.StatusOK).JSON(nil)
	}

	token, err := a.resolveToken(raw)
	if err != nil {
		a.clearSessionCookie(c)
		return c.Status(http.StatusOK).JSON(nil)
	}

	data, err := a.auth.GetSession(c.Context(), token)
	if err != nil {
		if mapErrorToStatus(err) == http.StatusInternalServerError {
			return a.handleAuthError(c, err)
		}
		a.clearSessionCookie(c)
		return c.Status(http.StatusOK).JSON(nil)
	}

	return c.Status(http.StatusOK).JSON(data)
}

// extractToken extracts the authentication token from the request.
// Checks Authorization header (Bearer token) first, then falls back to cookie.
func (a *Adapter) extractToken(c fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}

	return c.Cookies(a.cookieName)
}

// resolveToken turns the value presented by a client into the raw session
// token. Signed values must carry a valid signature; values without one are
// taken as raw tokens.
func (a *Adapter) resolveToken(value string) (string, error) {
	if value == "" {
		return "", core.ErrInvalidToken
	}
	token, err := crypto.UnsignToken(value, a.secret)
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, crypto.ErrMalformedToken):
		return value, nil
	default:
		return "", core.ErrInvalidToken
	}
}

func (a *Adapter) setSessionCookie(c fiber.Ctx, token string, session *core.Session) {
	signed := crypto.SignToken(token, a.secret)

	expires := time.Now().Add(a.maxAge)
	if session != nil {
		expires = session.ExpiresAt
	}

	c.Cookie(&fiber.Cookie{
		Name:     a.cookieName,
		Value:    signed,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		Secure:   a.cookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Set(HeaderAuthToken, signed)
}

func (a *Adapter) clearSessionCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   a.cookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// handleAuthError maps authentication errors to appropriate HTTP responses
func (a *Adapter) handleAuthError(c fiber.Ctx, err error) error {
	status := mapErrorToStatus(err)

	message := errorMessage(err)
	if status == http.StatusInternalServerError {
		a.log.Error("auth request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		message = "Internal server error"
	}

	return c.Status(status).JSON(core.ErrorResponse{
		Code:    core.ErrorCode(err),
		Message: message,
	})
}

// mapErrorToStatus maps core error types to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, core.ErrUserExists):
		return http.StatusConflict

	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrInvalidToken),
		errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrSessionExpired),
		errors.Is(err, core.ErrMissingAuthHeader),
		errors.Is(err, core.ErrInvalidAuthHeader):
		return http.StatusUnauthorized

	case errors.Is(err, core.ErrEmailRequired),
		errors.Is(err, core.ErrPasswordRequired),
		errors.Is(err, core.ErrPasswordTooShort),
		errors.Is(err, core.ErrPasswordTooLong),
		errors.Is(err, core.ErrInvalidEmail),
		errors.Is(err, core.ErrInvalidBody):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// errorMessage capitalizes the sentinel text for display.
func errorMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	r := []rune(msg)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
