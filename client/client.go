// Package client is a typed client for the bhvr API server: the auth
// endpoints mounted under the base path and the /hello RPC.
//
// A Client remembers the signed session token handed out at sign-in or
// sign-up and presents it as a bearer token on later calls.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	fiberclient "github.com/gofiber/fiber/v3/client"

	"github.com/lborres/bhvr/core"
)

const (
	DefaultBaseURL  = "http://localhost:8787"
	DefaultBasePath = "/api"
	DefaultTimeout  = 10 * time.Second

	headerAuthToken = "Set-Auth-Token"
	cookieName      = "bhvr.session_token"
)

// Config configures a Client. Zero values take the defaults above.
type Config struct {
	BaseURL  string
	BasePath string
	Timeout  time.Duration

	// HTTP overrides the underlying fiber client, mainly for tests.
	HTTP *fiberclient.Client
}

// Client talks to one API server. It is safe for concurrent use.
type Client struct {
	http     *fiberclient.Client
	basePath string

	mu    sync.RWMutex
	token string
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	hc := cfg.HTTP
	if hc == nil {
		hc = fiberclient.New()
	}
	hc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	hc.SetTimeout(cfg.Timeout)

	return &Client{
		http:     hc,
		basePath: "/" + strings.Trim(cfg.BasePath, "/"),
	}
}

// Token returns the signed session token the client currently presents.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the presented session token. An empty token signs the
// client out locally.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SignUpEmail registers a new user and keeps the returned session.
func (c *Client) SignUpEmail(ctx context.Context, input core.SignUpInput) (*core.SignUpResult, error) {
	var result core.SignUpResult
	if err := c.authCall(ctx, "sign-up", http.MethodPost, "/sign-up/email", input, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SignInEmail authenticates with email and password and keeps the session.
func (c *Client) SignInEmail(ctx context.Context, input core.SignInInput) (*core.SignInResult, error) {
	var result core.SignInResult
	if err := c.authCall(ctx, "sign-in", http.MethodPost, "/sign-in/email", input, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SignOut ends the current session on the server and forgets the token.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.authCall(ctx, "sign-out", http.MethodPost, "/sign-out", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// GetSession returns the current session, or nil when the server reports
// none. A token the server no longer accepts is dropped.
func (c *Client) GetSession(ctx context.Context) (*core.SessionData, error) {
	var data *core.SessionData
	if err := c.authCall(ctx, "get-session", http.MethodGet, "/get-session", nil, &data); err != nil {
		return nil, err
	}
	if data == nil || data.User == nil {
		c.SetToken("")
		return nil, nil
	}
	return data, nil
}

// Hello calls the server's /hello RPC.
func (c *Client) Hello(ctx context.Context) (*core.APIResponse, error) {
	var out core.APIResponse
	if err := c.do(ctx, "hello", http.MethodGet, "/hello", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) authCall(ctx context.Context, op, method, path string, body, out any) error {
	return c.do(ctx, op, method, c.basePath+path, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if token := c.Token(); token != "" {
		req.SetHeader(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		req.SetJSON(body)
	}

	var (
		resp *fiberclient.Response
		err  error
	)
	switch method {
	case http.MethodPost:
		resp, err = req.Post(path)
	default:
		resp, err = req.Get(path)
	}
	if err != nil {
		fiberclient.ReleaseRequest(req)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Close()

	if resp.StatusCode() >= http.StatusBadRequest {
		return providerError(resp)
	}

	if token := sessionToken(resp); token != "" {
		c.SetToken(token)
	}

	if out == nil {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// sessionToken copies the signed token out of the response, preferring the
// header over the cookie.
func sessionToken(resp *fiberclient.Response) string {
	if token := resp.Header(headerAuthToken); token != "" {
		return strings.Clone(token)
	}
	for _, ck := range resp.Cookies() {
		if string(ck.Key()) == cookieName && len(ck.Value()) > 0 {
			return string(ck.Value())
		}
	}
	return ""
}

func providerError(resp *fiberclient.Response) error {
	pe := &ProviderError{Status: resp.StatusCode()}
	var body core.ErrorResponse
	if err := resp.JSON(&body); err == nil {
		pe.Code = body.Code
		pe.Message = body.Message
	}
	return pe
}

// ProviderError is an error the server reported in its response body.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// TransportError means the request never produced a response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err came from the transport rather than the server.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProvider reports whether the server rejected the request, returning its error.
func IsProvider(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
