package core

import "time"

// ProviderCredential identifies email/password accounts.
const ProviderCredential = "credential"

// User represents a user account in the system
//
// This is the "identity" - who someone is
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          *string   `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	Image         *string   `json:"image"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DisplayName returns the user's name, or the email when no name was given.
func (u *User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}

// Account represents an authentication method
//
// This is the "credential" - how someone proves who they are
type Account struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ProviderID string    `json:"providerId"`
	AccountID  string    `json:"accountId"`
	Password   *string   `json:"-"` // Never expose in JSON
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Session represents an active login session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"-"` // Never expose in JSON (security!)
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Expired reports whether the session is past its expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// SessionData combines user and session info
// The model returned to clients
type SessionData struct {
	Session *Session `json:"session"`
	User    *User    `json:"user"`
}

// SignUpInput contains the data needed to register a new user
type SignUpInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
	Image    *string `json:"image,omitempty"`
}

// SignInInput contains the credentials for authentication
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpResult contains the newly created user and their first session
type SignUpResult struct {
	Token   string   `json:"token"` // The raw token (not the hash)
	User    *User    `json:"user"`
	Session *Session `json:"-"`
}

// SignInResult contains the authenticated user and their session
type SignInResult struct {
	Redirect bool     `json:"redirect"`
	Token    string   `json:"token"`
	User     *User    `json:"user"`
	Session  *Session `json:"-"`
}

// CreateSessionResult pairs a stored session with the raw token handed to the client.
type CreateSessionResult struct {
	Session *Session
	Token   string
}

// APIResponse is the payload shared by the API server and its clients.
type APIResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}
