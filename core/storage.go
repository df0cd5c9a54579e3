package core

import "context"

type SessionStorage interface {
	CreateSession(ctx context.Context, session *Session) error

	// Query methods
	GetSessionByHash(ctx context.Context, tokenHash string) (*Session, error)
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	GetUserSessions(ctx context.Context, userID string) ([]*Session, error)

	// Update
	UpdateSession(ctx context.Context, session *Session) error

	// Delete methods
	DeleteSessionByID(ctx context.Context, id string) error
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID string) (int, error)

	// Cleanup
	DeleteExpiredSessions(ctx context.Context) (int, error)
}

type UserStorage interface {
	CreateUser(ctx context.Context, u *User) error

	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	UpdateUser(ctx context.Context, u *User) error

	DeleteUser(ctx context.Context, id string) error
}

type AccountStorage interface {
	CreateAccount(ctx context.Context, a *Account) error

	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByUserAndProvider(ctx context.Context, userID, providerID string) ([]*Account, error)

	UpdateAccount(ctx context.Context, a *Account) error

	DeleteAccount(ctx context.Context, id string) error
}

// AuthStorage is implemented by every storage adapter.
type AuthStorage interface {
	UserStorage
	AccountStorage
	SessionStorage

	Close() error
}
