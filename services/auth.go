package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/pkg/crypto"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

type AuthService struct {
	db             core.AuthStorage
	passwordHasher crypto.PasswordHandler
	sessionManager *SessionManager
	observer       core.Observer
}

// Ensure AuthService implements AuthHandler
var _ core.AuthHandler = (*AuthService)(nil)

func NewAuthService(db core.AuthStorage, sessionManager *SessionManager, passwordHasher crypto.PasswordHandler) *AuthService {
	return &AuthService{
		db:             db,
		passwordHasher: passwordHasher,
		sessionManager: sessionManager,
	}
}

// WithObserver reports every operation outcome to o.
func (s *AuthService) WithObserver(o core.Observer) *AuthService {
	s.observer = o
	return s
}

func (s *AuthService) observe(op string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveAuth(op, err, time.Since(start))
	}
}

// SignUp registers a new user with email and password
func (s *AuthService) SignUp(ctx context.Context, input core.SignUpInput, ipAddress, userAgent string) (res *core.SignUpResult, err error) {
	defer func(start time.Time) { s.observe(core.OpSignUpEmail, start, err) }(time.Now())

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	existingUser, err := s.db.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, core.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return nil, core.ErrUserExists
	}

	hashedPassword, err := s.passwordHasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &core.User{
		Email: email,
		Image: input.Image,
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		user.Name = &name
	}

	if err := s.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrUserExists) {
			return nil, core.ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	account := &core.Account{
		UserID:     user.ID,
		ProviderID: core.ProviderCredential,
		AccountID:  user.ID, // For credential provider, account ID = user ID
		Password:   &hashedPassword,
	}
	if err := s.db.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	sessionResult, err := s.sessionManager.Create(ctx, user.ID, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	return &core.SignUpResult{
		User:    user,
		Session: sessionResult.Session,
		Token:   sessionResult.Token,
	}, nil
}

// SignIn authenticates a user with email and password
func (s *AuthService) SignIn(ctx context.Context, input core.SignInInput, ipAddress, userAgent string) (res *core.SignInResult, err error) {
	defer func(start time.Time) { s.observe(core.OpSignInEmail, start, err) }(time.Now())

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if input.Password == "" {
		return nil, core.ErrPasswordRequired
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	accounts, err := s.db.GetAccountByUserAndProvider(ctx, user.ID, core.ProviderCredential)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(accounts) == 0 || accounts[0].Password == nil {
		return nil, core.ErrInvalidCredentials
	}

	valid, err := s.passwordHasher.Verify(input.Password, *accounts[0].Password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, core.ErrInvalidCredentials
	}

	sessionResult, err := s.sessionManager.Create(ctx, user.ID, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	return &core.SignInResult{
		User:    user,
		Session: sessionResult.Session,
		Token:   sessionResult.Token,
	}, nil
}

// SignOut invalidates the session behind the raw token. Signing out of a
// session that no longer exists succeeds.
func (s *AuthService) SignOut(ctx context.Context, token string) (err error) {
	defer func(start time.Time) { s.observe(core.OpSignOut, start, err) }(time.Now())

	if err := s.sessionManager.Destroy(ctx, token); err != nil {
		switch {
		case errors.Is(err, core.ErrSessionNotFound):
			return nil
		case errors.Is(err, core.ErrInvalidToken):
			return core.ErrInvalidToken
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetSession retrieves session data by raw token
func (s *AuthService) GetSession(ctx context.Context, token string) (data *core.SessionData, err error) {
	defer func(start time.Time) { s.observe(core.OpGetSession, start, err) }(time.Now())

	session, err := s.sessionManager.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, core.ErrInvalidToken
		}
		return nil, err
	}

	user, err := s.db.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &core.SessionData{
		User:    user,
		Session: session,
	}, nil
}

// PurgeExpiredSessions removes expired sessions from storage.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int, error) {
	return s.sessionManager.PurgeExpired(ctx)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", core.ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@'):], ".") {
		return "", core.ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(password string) error {
	switch n := len(password); {
	case n == 0:
		return core.ErrPasswordRequired
	case n < MinPasswordLength:
		return core.ErrPasswordTooShort
	case n > MaxPasswordLength:
		return core.ErrPasswordTooLong
	}
	return nil
}
