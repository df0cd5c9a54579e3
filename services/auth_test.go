package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lborres/bhvr/core"
)

func newTestAuthService() (*AuthService, *FakeStorage) {
	storage := NewFakeStorage()
	sm := NewSessionManager(core.SessionConfig{MaxAge: 24 * time.Hour}, storage, NewFakeCache())
	return NewAuthService(storage, sm, testHasher()), storage
}

// Requirement: SignUp creates a new user account and returns a result with user and session.
func TestAuthService_SignUp(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		input    core.SignUpInput
		setup    func(*AuthService, *FakeStorage)
		wantErr  error
		wantName *string
	}{
		{
			name:  "creates user and session for valid input",
			input: core.SignUpInput{Email: "alice@example.com", Password: "SecurePass123!", Name: "Alice"},
		},
		{
			name:  "blank name is stored as null",
			input: core.SignUpInput{Email: "bob@example.com", Password: "SecurePass123!", Name: "  "},
		},
		{
			name:    "returns error for empty email",
			input:   core.SignUpInput{Email: "", Password: "SecurePass123!"},
			wantErr: core.ErrEmailRequired,
		},
		{
			name:    "returns error for malformed email",
			input:   core.SignUpInput{Email: "not-an-email", Password: "SecurePass123!"},
			wantErr: core.ErrInvalidEmail,
		},
		{
			name:    "returns error for email without domain dot",
			input:   core.SignUpInput{Email: "alice@localhost", Password: "SecurePass123!"},
			wantErr: core.ErrInvalidEmail,
		},
		{
			name:    "returns error for empty password",
			input:   core.SignUpInput{Email: "alice@example.com", Password: ""},
			wantErr: core.ErrPasswordRequired,
		},
		{
			name:    "returns error for short password",
			input:   core.SignUpInput{Email: "alice@example.com", Password: "1234567"},
			wantErr: core.ErrPasswordTooShort,
		},
		{
			name:    "returns error for long password",
			input:   core.SignUpInput{Email: "alice@example.com", Password: strings.Repeat("a", MaxPasswordLength+1)},
			wantErr: core.ErrPasswordTooLong,
		},
		{
			name:  "returns error for duplicate email regardless of case",
			input: core.SignUpInput{Email: "Alice@Example.com", Password: "SecurePass123!"},
			setup: func(s *AuthService, storage *FakeStorage) {
				storage.seedUser("alice@example.com", "whatever-password", s.passwordHasher)
			},
			wantErr: core.ErrUserExists,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			service, storage := newTestAuthService()
			if test.setup != nil {
				test.setup(service, storage)
			}

			// Act
			result, err := service.SignUp(ctx, test.input, "127.0.0.1", "test-agent")

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("SignUp() error = %v, want %v", err, test.wantErr)
			}
			if test.wantErr != nil {
				return
			}
			if result.User == nil || result.User.ID == "" {
				t.Fatal("SignUp() should return the created user")
			}
			if result.Token == "" {
				t.Error("SignUp() should return token")
			}
			if result.User.Email != strings.ToLower(test.input.Email) {
				t.Errorf("email = %q, want %q", result.User.Email, strings.ToLower(test.input.Email))
			}
			name := strings.TrimSpace(test.input.Name)
			if name == "" && result.User.Name != nil {
				t.Errorf("blank name should be nil, got %q", *result.User.Name)
			}
			if name != "" && (result.User.Name == nil || *result.User.Name != name) {
				t.Errorf("name = %v, want %q", result.User.Name, name)
			}
			accounts, _ := storage.GetAccountByUserAndProvider(ctx, result.User.ID, core.ProviderCredential)
			if len(accounts) != 1 || accounts[0].Password == nil || *accounts[0].Password == test.input.Password {
				t.Error("SignUp() should store exactly one credential account with a hashed password")
			}
		})
	}
}

// Requirement: SignIn authenticates a user by email and password, creates a session, and returns user + token.
func TestAuthService_SignIn(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		seed     bool
		wantErr  error
	}{
		{name: "signs in user with valid credentials", email: "alice@example.com", password: "SecurePass123!", seed: true},
		{name: "email is case insensitive", email: " ALICE@example.com ", password: "SecurePass123!", seed: true},
		{name: "returns error for empty email", email: "", password: "SecurePass123!", wantErr: core.ErrEmailRequired},
		{name: "returns error for empty password", email: "alice@example.com", password: "", wantErr: core.ErrPasswordRequired},
		{name: "returns error for user not found", email: "nobody@example.com", password: "SecurePass123!", wantErr: core.ErrInvalidCredentials},
		{name: "returns error for wrong password", email: "alice@example.com", password: "WrongPassword123!", seed: true, wantErr: core.ErrInvalidCredentials},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			service, storage := newTestAuthService()
			if test.seed {
				storage.seedUser("alice@example.com", "SecurePass123!", service.passwordHasher)
			}

			// Act
			result, err := service.SignIn(ctx, core.SignInInput{Email: test.email, Password: test.password}, "127.0.0.1", "test-agent")

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("SignIn() error = %v, want %v", err, test.wantErr)
			}
			if test.wantErr != nil {
				return
			}
			if result.User == nil || result.User.Email != "alice@example.com" {
				t.Errorf("SignIn() returned wrong user: %+v", result.User)
			}
			if result.Token == "" || result.Redirect {
				t.Errorf("SignIn() = token %q redirect %v", result.Token, result.Redirect)
			}
		})
	}
}

func TestAuthService_SignIn_UserWithoutCredentialAccount(t *testing.T) {
	service, storage := newTestAuthService()
	_ = storage.CreateUser(context.Background(), &core.User{Email: "social@example.com"})

	_, err := service.SignIn(context.Background(), core.SignInInput{Email: "social@example.com", Password: "SecurePass123!"}, "", "")

	if !errors.Is(err, core.ErrInvalidCredentials) {
		t.Errorf("SignIn() error = %v, want ErrInvalidCredentials", err)
	}
}

// Requirement: SignOut destroys a session and prevents further use of the token.
func TestAuthService_SignOut(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		token   func(*AuthService) string
		wantErr error
	}{
		{
			name: "successfully signs out user",
			token: func(s *AuthService) string {
				res, _ := s.SignUp(ctx, core.SignUpInput{Email: "alice@example.com", Password: "SecurePass123!"}, "", "")
				return res.Token
			},
		},
		{
			name:    "returns error for empty token",
			token:   func(*AuthService) string { return "" },
			wantErr: core.ErrInvalidToken,
		},
		{
			name:  "unknown token is already signed out",
			token: func(*AuthService) string { return "invalid_token_xyz" },
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			service, _ := newTestAuthService()
			token := test.token(service)

			// Act
			err := service.SignOut(ctx, token)

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("SignOut() error = %v, want %v", err, test.wantErr)
			}
			if token != "" {
				if _, err := service.GetSession(ctx, token); !errors.Is(err, core.ErrInvalidToken) {
					t.Errorf("GetSession() after SignOut() error = %v, want ErrInvalidToken", err)
				}
			}
		})
	}
}

func TestAuthService_SignOut_StorageFailure(t *testing.T) {
	service, storage := newTestAuthService()
	storage.deleteSessionErr = errStorageDown

	err := service.SignOut(context.Background(), "some-token")

	if !errors.Is(err, errStorageDown) {
		t.Errorf("SignOut() error = %v, want wrapped storage error", err)
	}
}

// Requirement: GetSession retrieves session data by token, validates expiry, and returns user info.
func TestAuthService_GetSession(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		token   func(*AuthService, *FakeStorage) string
		wantErr error
	}{
		{
			name: "returns session data for valid token",
			token: func(s *AuthService, _ *FakeStorage) string {
				res, _ := s.SignUp(ctx, core.SignUpInput{Email: "alice@example.com", Password: "SecurePass123!", Name: "Alice"}, "", "")
				return res.Token
			},
		},
		{
			name:    "returns error for empty token",
			token:   func(*AuthService, *FakeStorage) string { return "" },
			wantErr: core.ErrInvalidToken,
		},
		{
			name:    "returns error for invalid token",
			token:   func(*AuthService, *FakeStorage) string { return "invalid_token_xyz" },
			wantErr: core.ErrInvalidToken,
		},
		{
			name: "returns error when the user was deleted",
			token: func(s *AuthService, storage *FakeStorage) string {
				res, _ := s.SignUp(ctx, core.SignUpInput{Email: "gone@example.com", Password: "SecurePass123!"}, "", "")
				storage.getUserErr = core.ErrUserNotFound
				return res.Token
			},
			wantErr: core.ErrInvalidToken,
		},
		{
			name: "wraps unexpected user lookup failures",
			token: func(s *AuthService, storage *FakeStorage) string {
				res, _ := s.SignUp(ctx, core.SignUpInput{Email: "flaky@example.com", Password: "SecurePass123!"}, "", "")
				storage.getUserErr = errStorageDown
				return res.Token
			},
			wantErr: errStorageDown,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			service, storage := newTestAuthService()
			token := test.token(service, storage)

			// Act
			data, err := service.GetSession(ctx, token)

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("GetSession() error = %v, want %v", err, test.wantErr)
			}
			if test.wantErr != nil {
				if data != nil {
					t.Error("GetSession() should not return data on error")
				}
				return
			}
			if data.Session == nil || data.User == nil {
				t.Fatal("GetSession() should return both session and user")
			}
			if data.Session.UserID != data.User.ID {
				t.Error("session and user should belong together")
			}
		})
	}
}

func TestAuthService_GetSession_Expired(t *testing.T) {
	ctx := context.Background()
	storage := NewFakeStorage()
	sm, clock := newTestSessionManager(storage, nil, core.SessionConfig{MaxAge: time.Hour})
	service := NewAuthService(storage, sm, testHasher())
	res, _ := service.SignUp(ctx, core.SignUpInput{Email: "alice@example.com", Password: "SecurePass123!"}, "", "")

	clock.Advance(2 * time.Hour)
	_, err := service.GetSession(ctx, res.Token)

	if !errors.Is(err, core.ErrSessionExpired) {
		t.Errorf("GetSession() error = %v, want ErrSessionExpired", err)
	}
}

// Requirement: every operation reports its outcome to the observer.
func TestAuthService_Observer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestAuthService()
	obs := &recordingObserver{}
	service.WithObserver(obs)

	res, _ := service.SignUp(ctx, core.SignUpInput{Email: "alice@example.com", Password: "SecurePass123!"}, "", "")
	_, _ = service.SignIn(ctx, core.SignInInput{Email: "alice@example.com", Password: "wrong-password"}, "", "")
	_, _ = service.GetSession(ctx, res.Token)
	_ = service.SignOut(ctx, res.Token)

	want := []observed{
		{op: core.OpSignUpEmail},
		{op: core.OpSignInEmail, err: core.ErrInvalidCredentials},
		{op: core.OpGetSession},
		{op: core.OpSignOut},
	}
	if len(obs.calls) != len(want) {
		t.Fatalf("observer calls = %d, want %d", len(obs.calls), len(want))
	}
	for i, w := range want {
		if obs.calls[i].op != w.op || !errors.Is(obs.calls[i].err, w.err) {
			t.Errorf("call %d = %+v, want %+v", i, obs.calls[i], w)
		}
	}
}

func TestAuthService_PurgeExpiredSessions(t *testing.T) {
	ctx := context.Background()
	service, storage := newTestAuthService()
	_ = storage.CreateSession(ctx, &core.Session{ID: "old", UserID: "u", TokenHash: "h", ExpiresAt: time.Now().Add(-time.Hour)})

	n, err := service.PurgeExpiredSessions(ctx)

	if err != nil || n != 1 {
		t.Errorf("PurgeExpiredSessions() = %d, %v; want 1, nil", n, err)
	}
}
