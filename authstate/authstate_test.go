package authstate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lborres/bhvr/client"
	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/pkg/query"
)

// fakeClient is an in-process auth server with error injection.
type fakeClient struct {
	mu sync.Mutex

	user *core.User

	signInErr  error
	signUpErr  error
	signOutErr error
	sessionErr error

	// block, when set, holds SignInEmail until closed.
	block chan struct{}
	// sessionBlock, when set, holds the next GetSession until closed. That
	// call answers with the session as it was when the call started.
	sessionBlock chan struct{}

	sessionCalls int
	signInCalls  int
	lastSignUp   core.SignUpInput
}

func (f *fakeClient) SignInEmail(_ context.Context, in core.SignInInput) (*core.SignInResult, error) {
	f.mu.Lock()
	f.signInCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	f.user = &core.User{ID: "u1", Email: in.Email}
	return &core.SignInResult{Token: "t", User: f.user}, nil
}

func (f *fakeClient) SignUpEmail(_ context.Context, in core.SignUpInput) (*core.SignUpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSignUp = in
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	f.user = &core.User{ID: "u2", Email: in.Email}
	return &core.SignUpResult{Token: "t", User: f.user}, nil
}

func (f *fakeClient) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.user = nil
	return nil
}

func (f *fakeClient) GetSession(context.Context) (*core.SessionData, error) {
	f.mu.Lock()
	f.sessionCalls++
	block := f.sessionBlock
	f.sessionBlock = nil
	data, err := f.sessionLocked()
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return data, err
}

func (f *fakeClient) sessionLocked() (*core.SessionData, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	if f.user == nil {
		return nil, nil
	}
	return &core.SessionData{User: f.user, Session: &core.Session{ID: "s1", UserID: f.user.ID}}, nil
}

func (f *fakeClient) calls() (session, signIn int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionCalls, f.signInCalls
}

func newTestProvider(f *fakeClient) (*Provider, *query.Client) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := query.NewClient(query.Options{
		StaleTime:     5 * time.Minute,
		Retry:         2,
		MutationRetry: 1,
		NewBackOff:    func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Logger:        logger,
	})
	return New(f, cache, WithLogger(logger)), cache
}

func TestDerive(t *testing.T) {
	user := &core.User{ID: "u1", Email: "ada@example.com"}
	tests := []struct {
		name     string
		session  *core.SessionData
		loading  bool
		mutating bool
		errText  string
		want     State
	}{
		{name: "no session", want: State{}},
		{name: "session loading", loading: true, want: State{IsLoading: true}},
		{
			name:    "signed in",
			session: &core.SessionData{User: user},
			want:    State{User: user, IsAuthenticated: true},
		},
		{name: "error shown when idle", errText: "Login failed", want: State{Error: "Login failed"}},
		{
			name: "error hidden while mutating", mutating: true, errText: "Login failed",
			want: State{IsLoading: true},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, Derive(test.session, test.loading, test.mutating, test.errText))
		})
	}
}

// Requirement: Mount reads the session through the cache and only fetches
// again once the data is stale.
func TestProvider_MountUsesCache(t *testing.T) {
	f := &fakeClient{user: &core.User{ID: "u1", Email: "ada@example.com"}}
	p, _ := newTestProvider(f)

	p.Mount(context.Background())
	p.Mount(context.Background())

	s := p.State()
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "ada@example.com", s.User.Email)
	sessionCalls, _ := f.calls()
	assert.Equal(t, 1, sessionCalls)
}

// Requirement: session lookup failures resolve to "no session", are not
// retried, and do not set the shared error.
func TestProvider_SessionErrorMeansSignedOut(t *testing.T) {
	f := &fakeClient{sessionErr: &client.TransportError{Op: "get-session", Err: errors.New("connection refused")}}
	p, _ := newTestProvider(f)

	p.Mount(context.Background())

	s := p.State()
	assert.False(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)
	assert.Empty(t, s.Error)
	sessionCalls, _ := f.calls()
	assert.Equal(t, 1, sessionCalls)
}

// Requirement: WithSessionEnabled(false) keeps Mount from fetching.
func TestProvider_SessionDisabled(t *testing.T) {
	f := &fakeClient{user: &core.User{ID: "u1"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(f, query.NewClient(query.Options{Logger: logger}), WithSessionEnabled(false))

	p.Mount(context.Background())

	sessionCalls, _ := f.calls()
	assert.Zero(t, sessionCalls)
	assert.False(t, p.State().IsAuthenticated)
}

// Requirement: a successful login refetches the session before returning.
func TestProvider_LoginRefetchesSession(t *testing.T) {
	f := &fakeClient{}
	p, _ := newTestProvider(f)
	p.Mount(context.Background())
	require.False(t, p.State().IsAuthenticated)

	err := p.Login(context.Background(), "ada@example.com", "password123")

	require.NoError(t, err)
	s := p.State()
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.False(t, s.IsLoading)
	assert.Empty(t, s.Error)
	sessionCalls, _ := f.calls()
	assert.Equal(t, 2, sessionCalls)
}

// Requirement: a session lookup that started before a login cannot overwrite
// the session the login refetched.
func TestProvider_LoginSupersedesPendingLookup(t *testing.T) {
	// Arrange
	release := make(chan struct{})
	f := &fakeClient{sessionBlock: release}
	p, _ := newTestProvider(f)
	mounted := make(chan struct{})
	go func() {
		defer close(mounted)
		p.Mount(context.Background())
	}()
	require.Eventually(t, func() bool {
		sessionCalls, _ := f.calls()
		return sessionCalls == 1
	}, time.Second, time.Millisecond)

	// Act
	err := p.Login(context.Background(), "ada@example.com", "password123")
	close(release)
	<-mounted

	// Assert
	require.NoError(t, err)
	s := p.State()
	assert.True(t, s.IsAuthenticated, "the earlier signed-out lookup must be discarded")
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.False(t, s.IsLoading)
}

// Requirement: mutation failures record the provider message, or a fallback
// when it is empty; transport failures keep their own text.
func TestProvider_MutationErrors(t *testing.T) {
	transport := &client.TransportError{Op: "sign-in", Err: errors.New("connection refused")}

	tests := []struct {
		name    string
		arrange func(*fakeClient)
		act     func(context.Context, *Provider) error
		want    string
	}{
		{
			name: "login provider message",
			arrange: func(f *fakeClient) {
				f.signInErr = &client.ProviderError{Status: http.StatusUnauthorized, Code: core.CodeInvalidEmailOrPassword, Message: "Invalid email or password"}
			},
			act:  func(ctx context.Context, p *Provider) error { return p.Login(ctx, "a@b.co", "wrong-password") },
			want: "Invalid email or password",
		},
		{
			name:    "login empty message",
			arrange: func(f *fakeClient) { f.signInErr = &client.ProviderError{Status: http.StatusBadGateway} },
			act:     func(ctx context.Context, p *Provider) error { return p.Login(ctx, "a@b.co", "password123") },
			want:    "Login failed",
		},
		{
			name:    "signup empty message",
			arrange: func(f *fakeClient) { f.signUpErr = &client.ProviderError{Status: http.StatusInternalServerError} },
			act:     func(ctx context.Context, p *Provider) error { return p.Signup(ctx, "a@b.co", "password123", "") },
			want:    "Signup failed",
		},
		{
			name:    "logout empty message",
			arrange: func(f *fakeClient) { f.signOutErr = &client.ProviderError{Status: http.StatusInternalServerError} },
			act:     func(ctx context.Context, p *Provider) error { return p.Logout(ctx) },
			want:    "Logout failed",
		},
		{
			name:    "transport failure",
			arrange: func(f *fakeClient) { f.signInErr = transport },
			act:     func(ctx context.Context, p *Provider) error { return p.Login(ctx, "a@b.co", "password123") },
			want:    "sign-in: connection refused",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			f := &fakeClient{}
			test.arrange(f)
			p, _ := newTestProvider(f)

			// Act
			err := test.act(context.Background(), p)

			// Assert
			require.Error(t, err)
			assert.Equal(t, test.want, err.Error())
			assert.Equal(t, test.want, p.State().Error)
			assert.False(t, p.State().IsLoading)
		})
	}
}

// Requirement: only transport failures are retried.
func TestProvider_MutationRetry(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "transport retried once", err: &client.TransportError{Op: "sign-in", Err: errors.New("timeout")}, wantCalls: 2},
		{name: "provider not retried", err: &client.ProviderError{Status: http.StatusUnauthorized, Message: "Invalid email or password"}, wantCalls: 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := &fakeClient{signInErr: test.err}
			p, _ := newTestProvider(f)

			_ = p.Login(context.Background(), "a@b.co", "password123")

			_, signInCalls := f.calls()
			assert.Equal(t, test.wantCalls, signInCalls)
		})
	}
}

// Requirement: a new attempt clears the previous error while it runs, and
// the provider reports loading until it settles.
func TestProvider_ErrorClearedWhilePending(t *testing.T) {
	f := &fakeClient{signInErr: &client.ProviderError{Status: http.StatusUnauthorized, Message: "Invalid email or password"}}
	p, _ := newTestProvider(f)
	require.Error(t, p.Login(context.Background(), "a@b.co", "wrong-password"))
	require.Equal(t, "Invalid email or password", p.State().Error)

	f.mu.Lock()
	f.signInErr = nil
	f.block = make(chan struct{})
	block := f.block
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.Login(context.Background(), "a@b.co", "password123") }()

	require.Eventually(t, func() bool { return p.State().IsLoading }, time.Second, time.Millisecond)
	assert.Empty(t, p.State().Error)

	close(block)
	require.NoError(t, <-done)
	assert.True(t, p.State().IsAuthenticated)
}

// Requirement: signup sends an absent name as "" and signs the user in.
func TestProvider_Signup(t *testing.T) {
	f := &fakeClient{}
	p, _ := newTestProvider(f)

	err := p.Signup(context.Background(), "grace@example.com", "password123", "")

	require.NoError(t, err)
	assert.Equal(t, core.SignUpInput{Email: "grace@example.com", Password: "password123", Name: ""}, f.lastSignUp)
	assert.True(t, p.State().IsAuthenticated)
}

// Requirement: logout drops the whole cache.
func TestProvider_LogoutClearsCache(t *testing.T) {
	f := &fakeClient{}
	p, cache := newTestProvider(f)
	require.NoError(t, p.Login(context.Background(), "ada@example.com", "password123"))
	cache.SetData(query.Key{"hello"}, "Hello BHVR!")
	require.NotZero(t, cache.Len())

	require.NoError(t, p.Logout(context.Background()))

	assert.Zero(t, cache.Len())
	s := p.State()
	assert.False(t, s.IsAuthenticated)
	assert.Empty(t, s.Error)
}

// Requirement: subscribers receive the derived state after auth changes.
func TestProvider_Subscribe(t *testing.T) {
	f := &fakeClient{}
	p, _ := newTestProvider(f)
	var mu sync.Mutex
	var last State
	unsubscribe := p.Subscribe(func(s State) {
		mu.Lock()
		last = s
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, p.Login(context.Background(), "ada@example.com", "password123"))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, last.IsAuthenticated)
	assert.False(t, last.IsLoading)
}

// Requirement: Use returns the installed provider and panics without one.
func TestUse(t *testing.T) {
	p, _ := newTestProvider(&fakeClient{})
	ctx := NewContext(context.Background(), p)

	assert.Same(t, p, Use(ctx))
	assert.PanicsWithValue(t, "authstate: Use called without a Provider in the context", func() {
		Use(context.Background())
	})
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
