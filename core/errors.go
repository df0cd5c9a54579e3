package core

import "errors"

// Authentication Related Errors
var (
	// User errors
	ErrUserExists         = errors.New("user already exists")       // 409 Conflict
	ErrUserNotFound       = errors.New("user not found")            // 404 Not Found
	ErrAccountNotFound    = errors.New("account not found")         // 404 Not Found
	ErrInvalidCredentials = errors.New("invalid email or password") // 401 Unauthorized
)

// Session errors
var (
	ErrMissingAuthHeader = errors.New("missing authorization header") // 401
	ErrInvalidToken      = errors.New("invalid session token")        // 401
	ErrSessionNotFound   = errors.New("session not found")            // 401
	ErrSessionExpired    = errors.New("session expired")              // 401
	ErrCacheNotFound     = errors.New("entry not found in cache")
)

// Validation errors (client input)
var (
	ErrInvalidAuthHeader = errors.New("invalid authorization format, expected 'Bearer <token>'") // 401
	ErrInvalidBody       = errors.New("invalid request body")                                    // 400
	ErrEmailRequired     = errors.New("email is required")                                       // 400
	ErrPasswordRequired  = errors.New("password is required")                                    // 400
	ErrPasswordTooShort  = errors.New("password is too short")                                   // 400
	ErrPasswordTooLong   = errors.New("password is too long")                                    // 400
	ErrInvalidEmail      = errors.New("invalid email format")                                    // 400
)

// Config errors (server-side configuration)
var (
	ErrDBAdapterRequired = errors.New("database adapter is required") // 500
	ErrSecretRequired    = errors.New("secret is required")           // 500
	ErrSecretTooShort    = errors.New("secret too short")             // 500
)

// Wire codes reported to clients alongside the message.
const (
	CodeUserAlreadyExists      = "USER_ALREADY_EXISTS"
	CodeInvalidEmailOrPassword = "INVALID_EMAIL_OR_PASSWORD"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeSessionExpired         = "SESSION_EXPIRED"
	CodeInvalidEmail           = "INVALID_EMAIL"
	CodeEmailRequired          = "EMAIL_REQUIRED"
	CodePasswordRequired       = "PASSWORD_REQUIRED"
	CodePasswordTooShort       = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong        = "PASSWORD_TOO_LONG"
	CodeInvalidBody            = "INVALID_REQUEST_BODY"
	CodeNotFound               = "NOT_FOUND"
	CodeInternal               = "INTERNAL_SERVER_ERROR"
)

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUserExists):
		return CodeUserAlreadyExists
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserNotFound):
		return CodeInvalidEmailOrPassword
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrMissingAuthHeader), errors.Is(err, ErrInvalidAuthHeader):
		return CodeInvalidToken
	case errors.Is(err, ErrSessionExpired):
		return CodeSessionExpired
	case errors.Is(err, ErrInvalidEmail):
		return CodeInvalidEmail
	case errors.Is(err, ErrEmailRequired):
		return CodeEmailRequired
	case errors.Is(err, ErrPasswordRequired):
		return CodePasswordRequired
	case errors.Is(err, ErrPasswordTooShort):
		return CodePasswordTooShort
	case errors.Is(err, ErrPasswordTooLong):
		return CodePasswordTooLong
	case errors.Is(err, ErrInvalidBody):
		return CodeInvalidBody
	default:
		return CodeInternal
	}
}

// ErrorResponse is the error body returned by the auth endpoints.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
