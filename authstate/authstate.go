// Package authstate holds the authentication state of one client: the
// current session, read through the query cache, and the login, signup and
// logout mutations that change it.
package authstate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lborres/bhvr/client"
	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/pkg/query"
)

var (
	// SessionKey caches the current session.
	SessionKey = query.Key{"auth", "session"}
	authKey    = query.Key{"auth"}

	loginKey  = query.Key{"auth", "login"}
	signupKey = query.Key{"auth", "signup"}
	logoutKey = query.Key{"auth", "logout"}
)

const (
	msgLoginFailed  = "Login failed"
	msgSignupFailed = "Signup failed"
	msgLogoutFailed = "Logout failed"
)

// AuthClient is the part of the API client the provider needs.
type AuthClient interface {
	SignInEmail(ctx context.Context, input core.SignInInput) (*core.SignInResult, error)
	SignUpEmail(ctx context.Context, input core.SignUpInput) (*core.SignUpResult, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*core.SessionData, error)
}

// State is the derived view handed to consumers. It is never stored.
type State struct {
	User            *core.User
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// Derive computes State from the session query result and the mutation
// flags. An in-flight mutation hides the previous error.
func Derive(session *core.SessionData, sessionLoading, mutating bool, errText string) State {
	var user *core.User
	if session != nil {
		user = session.User
	}
	if mutating {
		errText = ""
	}
	return State{
		User:            user,
		IsAuthenticated: user != nil,
		IsLoading:       sessionLoading || mutating,
		Error:           errText,
	}
}

// Error is a failed auth operation. Message is the text shown to users.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

type Option func(*Provider)

// WithLogger sets the logger used for swallowed session lookup failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// WithSessionEnabled(false) keeps Mount from fetching the session.
func WithSessionEnabled(enabled bool) Option {
	return func(p *Provider) { p.sessionEnabled = enabled }
}

// Provider owns one client's auth state. It is safe for concurrent use.
type Provider struct {
	client AuthClient
	cache  *query.Client
	log    *slog.Logger

	sessionEnabled bool
	session        *query.Query[*core.SessionData]

	login  *query.Mutation[core.SignInInput, *core.SignInResult]
	signup *query.Mutation[core.SignUpInput, *core.SignUpResult]
	logout *query.Mutation[struct{}, struct{}]

	mu      sync.RWMutex
	errText string
}

func New(c AuthClient, cache *query.Client, opts ...Option) *Provider {
	p := &Provider{
		client:         c,
		cache:          cache,
		log:            slog.Default(),
		sessionEnabled: true,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.session = query.NewQuery(cache, SessionKey, p.fetchSession,
		query.WithRetry(0),
		query.WithEnabled(p.sessionEnabled),
	)

	p.login = query.NewMutation(cache, func(ctx context.Context, in core.SignInInput) (*core.SignInResult, error) {
		res, err := c.SignInEmail(ctx, in)
		if err != nil {
			return nil, failure(err, msgLoginFailed)
		}
		return res, nil
	}, query.MutationOptions[core.SignInInput, *core.SignInResult]{
		Key:         loginKey,
		ShouldRetry: client.IsTransport,
		OnMutate:    func(core.SignInInput) { p.setError("") },
		OnSuccess: func(ctx context.Context, _ *core.SignInResult, _ core.SignInInput) {
			p.signedIn(ctx)
		},
		OnError: func(err error, _ core.SignInInput) { p.setError(err.Error()) },
	})

	p.signup = query.NewMutation(cache, func(ctx context.Context, in core.SignUpInput) (*core.SignUpResult, error) {
		res, err := c.SignUpEmail(ctx, in)
		if err != nil {
			return nil, failure(err, msgSignupFailed)
		}
		return res, nil
	}, query.MutationOptions[core.SignUpInput, *core.SignUpResult]{
		Key:         signupKey,
		ShouldRetry: client.IsTransport,
		OnMutate:    func(core.SignUpInput) { p.setError("") },
		OnSuccess: func(ctx context.Context, _ *core.SignUpResult, _ core.SignUpInput) {
			p.signedIn(ctx)
		},
		OnError: func(err error, _ core.SignUpInput) { p.setError(err.Error()) },
	})

	p.logout = query.NewMutation(cache, func(ctx context.Context, _ struct{}) (struct{}, error) {
		if err := c.SignOut(ctx); err != nil {
			return struct{}{}, failure(err, msgLogoutFailed)
		}
		return struct{}{}, nil
	}, query.MutationOptions[struct{}, struct{}]{
		Key:         logoutKey,
		ShouldRetry: client.IsTransport,
		OnMutate:    func(struct{}) { p.setError("") },
		OnSuccess: func(context.Context, struct{}, struct{}) {
			p.setError("")
			cache.Clear()
		},
		OnError: func(err error, _ struct{}) { p.setError(err.Error()) },
	})

	return p
}

// fetchSession never fails: lookup errors count as "no session".
func (p *Provider) fetchSession(ctx context.Context) (*core.SessionData, error) {
	data, err := p.client.GetSession(ctx)
	if err != nil {
		p.log.Warn("session lookup failed", "error", err)
		return nil, nil
	}
	return data, nil
}

func (p *Provider) signedIn(ctx context.Context) {
	p.setError("")
	p.cache.Invalidate(authKey)
	_, _ = p.session.Refetch(ctx)
}

// failure turns a client error into the text users see.
func failure(err error, fallback string) error {
	msg := err.Error()
	if pe, ok := client.IsProvider(err); ok {
		msg = pe.Message
	}
	if msg == "" {
		msg = fallback
	}
	return &Error{Message: msg, Err: err}
}

func (p *Provider) setError(text string) {
	p.mu.Lock()
	p.errText = text
	p.mu.Unlock()
}

func (p *Provider) errorText() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.errText
}

func (p *Provider) mutating() bool {
	return p.login.IsPending() || p.signup.IsPending() || p.logout.IsPending()
}

// State derives the current auth state.
func (p *Provider) State() State {
	s := p.session.State()
	return Derive(s.Data, s.IsLoading(), p.mutating(), p.errorText())
}

// Mount reads the session through the cache, fetching it when missing or
// stale. It does nothing when the session query is disabled.
func (p *Provider) Mount(ctx context.Context) {
	_, _ = p.session.Get(ctx)
}

// Login signs in with email and password. On success the session is
// refetched before Login returns.
func (p *Provider) Login(ctx context.Context, email, password string) error {
	_, err := p.login.Mutate(ctx, core.SignInInput{Email: email, Password: password})
	return err
}

// Signup registers a user and signs them in. An empty name is sent as "".
func (p *Provider) Signup(ctx context.Context, email, password, name string) error {
	_, err := p.signup.Mutate(ctx, core.SignUpInput{Email: email, Password: password, Name: name})
	return err
}

// Logout signs out and drops everything cached for this client.
func (p *Provider) Logout(ctx context.Context) error {
	_, err := p.logout.Mutate(ctx, struct{}{})
	return err
}

// Subscribe calls fn with the new state whenever auth data or a mutation's
// pending state changes.
func (p *Provider) Subscribe(fn func(State)) (unsubscribe func()) {
	return p.cache.Subscribe(func(k query.Key) {
		if k == nil || k.HasPrefix(authKey) {
			fn(p.State())
		}
	})
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the Provider in ctx, if any.
func FromContext(ctx context.Context) (*Provider, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Provider)
	return p, ok && p != nil
}

// Use returns the Provider in ctx and panics when there is none.
func Use(ctx context.Context) *Provider {
	p, ok := FromContext(ctx)
	if !ok {
		panic("authstate: Use called without a Provider in the context")
	}
	return p
}
