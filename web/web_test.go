package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lborres/bhvr/client"
	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/forms"
)

// fakeServer stands in for the API server shared by all visitors.
type fakeServer struct {
	mu       sync.Mutex
	users    map[string]fakeAccount
	helloErr error
	signIns  int
}

type fakeAccount struct {
	user     *core.User
	password string
}

func newFakeServer() *fakeServer {
	return &fakeServer{users: map[string]fakeAccount{}}
}

// fakeAPI is one visitor's client; it remembers who is signed in.
type fakeAPI struct {
	srv     *fakeServer
	mu      sync.Mutex
	current *core.User
}

func (a *fakeAPI) SignInEmail(_ context.Context, in core.SignInInput) (*core.SignInResult, error) {
	a.srv.mu.Lock()
	a.srv.signIns++
	acc, ok := a.srv.users[strings.ToLower(in.Email)]
	a.srv.mu.Unlock()
	if !ok || acc.password != in.Password {
		return nil, &client.ProviderError{Status: http.StatusUnauthorized, Code: core.CodeInvalidEmailOrPassword, Message: "Invalid email or password"}
	}
	a.mu.Lock()
	a.current = acc.user
	a.mu.Unlock()
	return &core.SignInResult{User: acc.user}, nil
}

func (a *fakeAPI) SignUpEmail(_ context.Context, in core.SignUpInput) (*core.SignUpResult, error) {
	a.srv.mu.Lock()
	key := strings.ToLower(in.Email)
	if _, ok := a.srv.users[key]; ok {
		a.srv.mu.Unlock()
		return nil, &client.ProviderError{Status: http.StatusConflict, Code: core.CodeUserAlreadyExists, Message: "User already exists"}
	}
	name := in.Name
	u := &core.User{ID: key, Email: key, Name: &name, CreatedAt: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)}
	a.srv.users[key] = fakeAccount{user: u, password: in.Password}
	a.srv.mu.Unlock()

	a.mu.Lock()
	a.current = u
	a.mu.Unlock()
	return &core.SignUpResult{User: u}, nil
}

func (a *fakeAPI) SignOut(context.Context) error {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
	return nil
}

func (a *fakeAPI) GetSession(context.Context) (*core.SessionData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil, nil
	}
	return &core.SessionData{User: a.current}, nil
}

func (a *fakeAPI) Hello(context.Context) (*core.APIResponse, error) {
	a.srv.mu.Lock()
	defer a.srv.mu.Unlock()
	if a.srv.helloErr != nil {
		return nil, a.srv.helloErr
	}
	return &core.APIResponse{Message: "Hello BHVR!", Success: true}, nil
}

func newTestFrontend(srv *fakeServer) (*Frontend, *fiber.App) {
	f := New(Config{
		NewClient: func() APIClient { return &fakeAPI{srv: srv} },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f, f.NewApp()
}

// browser carries one visitor's cookie between requests.
type browser struct {
	t       *testing.T
	app     *fiber.App
	visitor *http.Cookie
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	if b.visitor != nil {
		req.AddCookie(b.visitor)
	}
	resp, err := b.app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second, FailOnTimeout: true})
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	for _, ck := range resp.Cookies() {
		if ck.Name == VisitorCookie {
			b.visitor = ck
		}
	}
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

// Requirement: the home page greets anonymous visitors with the /hello
// message and links to sign in and sign up.
func TestHome_Anonymous(t *testing.T) {
	_, app := newTestFrontend(newFakeServer())
	b := &browser{t: t, app: app}

	resp, body := b.get("/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello BHVR!")
	assert.Contains(t, body, "Get Started Free")
	assert.Contains(t, body, `href="/login"`)
	require.NotNil(t, b.visitor, "a visitor cookie should be issued")
	assert.True(t, b.visitor.HttpOnly)
}

// Requirement: a failing /hello call does not break the home page.
func TestHome_HelloFailure(t *testing.T) {
	srv := newFakeServer()
	srv.helloErr = &client.TransportError{Op: "hello", Err: errors.New("connection refused")}
	_, app := newTestFrontend(srv)
	b := &browser{t: t, app: app}

	resp, body := b.get("/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "Hello BHVR!")
	assert.Contains(t, body, "Get Started Free")
}

// Requirement: invalid forms render field errors and never reach the server.
func TestLogin_Validation(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want []string
	}{
		{name: "empty", form: url.Values{}, want: []string{forms.MsgEmailRequired, forms.MsgPasswordTooShort}},
		{name: "bad email", form: url.Values{"email": {"invalid-email"}, "password": {"password123"}}, want: []string{forms.MsgEmailInvalid}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := newFakeServer()
			_, app := newTestFrontend(srv)
			b := &browser{t: t, app: app}

			resp, body := b.post("/login", test.form)

			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			for _, msg := range test.want {
				assert.Contains(t, body, msg)
			}
			assert.Zero(t, srv.signIns)
		})
	}
}

func TestSignup_Validation(t *testing.T) {
	_, app := newTestFrontend(newFakeServer())
	b := &browser{t: t, app: app}

	resp, body := b.post("/signup", url.Values{
		"name": {"A"}, "email": {"ada@example.com"},
		"password": {"password123"}, "confirmPassword": {"different123"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, forms.MsgNameTooShort)
	assert.Contains(t, body, forms.MsgPasswordMismatch)
}

// Requirement: a rejected login shows the provider's message.
func TestLogin_WrongPassword(t *testing.T) {
	_, app := newTestFrontend(newFakeServer())
	b := &browser{t: t, app: app}

	resp, body := b.post("/login", url.Values{"email": {"ada@example.com"}, "password": {"password123"}})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Invalid email or password")
	assert.Contains(t, body, `value="ada@example.com"`)
}

// Requirement: sign up, reach the dashboard, bounce away from the login page
// while signed in, then sign out and lose access again.
func TestFlow_SignupDashboardLogout(t *testing.T) {
	_, app := newTestFrontend(newFakeServer())
	b := &browser{t: t, app: app}

	resp, _ := b.get("/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = b.post("/signup", url.Values{
		"name": {"Ada"}, "email": {"ada@example.com"},
		"password": {"password123"}, "confirmPassword": {"password123"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp, body := b.get("/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome back, Ada!")
	assert.Contains(t, body, "ada@example.com")
	assert.Contains(t, body, "Mar 14, 2025")

	resp, _ = b.get("/login")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp, _ = b.post("/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = b.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

// Requirement: each visitor has its own auth state.
func TestVisitorsAreIsolated(t *testing.T) {
	f, app := newTestFrontend(newFakeServer())
	alice := &browser{t: t, app: app}
	bob := &browser{t: t, app: app}

	resp, _ := alice.post("/signup", url.Values{
		"name": {"Alice"}, "email": {"alice@example.com"},
		"password": {"password123"}, "confirmPassword": {"password123"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = alice.get("/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = bob.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 2, f.Visitors())
}

// Requirement: unknown paths redirect home; a forged visitor cookie gets a
// fresh visitor.
func TestFallbackAndForgedCookie(t *testing.T) {
	_, app := newTestFrontend(newFakeServer())
	b := &browser{t: t, app: app, visitor: &http.Cookie{Name: VisitorCookie, Value: "not-a-uuid"}}

	resp, _ := b.get("/no/such/page")

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	require.NotNil(t, b.visitor)
	assert.NotEqual(t, "not-a-uuid", b.visitor.Value)
}
