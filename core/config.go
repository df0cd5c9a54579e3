package core

import "time"

type SessionConfig struct {
	// MaxAge is how long a session stays valid after it was last extended.
	MaxAge time.Duration
	// UpdateAge is how old a session must be before a read extends it.
	// Zero disables sliding expiry.
	UpdateAge time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxAge:    7 * 24 * time.Hour,
		UpdateAge: 24 * time.Hour,
	}
}
