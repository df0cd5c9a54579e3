// Package web is the server-rendered frontend. Each browser is a visitor
// with its own auth client, query cache and auth state.
package web

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/template/html/v2"
	"github.com/google/uuid"

	"github.com/lborres/bhvr/authstate"
	"github.com/lborres/bhvr/client"
	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/forms"
	"github.com/lborres/bhvr/guard"
	"github.com/lborres/bhvr/pkg/cache"
	"github.com/lborres/bhvr/pkg/query"
)

//go:embed views
var viewsFS embed.FS

const (
	VisitorCookie = "bhvr_visitor"

	DefaultVisitorTTL = 24 * time.Hour
	DefaultVisitorMax = 10000

	localsVisitor = "visitor"
)

var helloKey = query.Key{"hello"}

// APIClient is what a visitor needs from the API server.
type APIClient interface {
	authstate.AuthClient
	Hello(ctx context.Context) (*core.APIResponse, error)
}

type Config struct {
	// ServerURL is the API server, used when NewClient is nil.
	ServerURL string
	// NewClient builds the API client for a new visitor.
	NewClient func() APIClient

	// Query configures each visitor's cache; nil uses query.DefaultOptions.
	Query        *query.Options
	VisitorTTL   time.Duration
	VisitorMax   int
	CookieSecure bool
	Logger       *slog.Logger
}

type visitor struct {
	auth  *authstate.Provider
	hello *query.Query[*core.APIResponse]
}

// Frontend serves the pages for every visitor.
type Frontend struct {
	cfg      Config
	visitors *cache.Memory[*visitor]
	log      *slog.Logger
}

func New(cfg Config) *Frontend {
	if cfg.VisitorTTL <= 0 {
		cfg.VisitorTTL = DefaultVisitorTTL
	}
	if cfg.VisitorMax <= 0 {
		cfg.VisitorMax = DefaultVisitorMax
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Query == nil {
		opts := query.DefaultOptions()
		cfg.Query = &opts
	}
	if cfg.Query.Logger == nil {
		q := *cfg.Query
		q.Logger = cfg.Logger
		cfg.Query = &q
	}
	if cfg.NewClient == nil {
		serverURL := cfg.ServerURL
		cfg.NewClient = func() APIClient {
			return client.New(client.Config{BaseURL: serverURL})
		}
	}

	return &Frontend{
		cfg:      cfg,
		visitors: cache.NewMemory[*visitor](core.CacheConfig{TTL: cfg.VisitorTTL, MaxSize: cfg.VisitorMax}),
		log:      cfg.Logger,
	}
}

// Views returns the template engine for the embedded pages.
func Views() *html.Engine {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		panic(err)
	}
	return html.NewFileSystem(http.FS(sub), ".html")
}

// NewApp returns a fiber app configured with the frontend's views and routes.
func (f *Frontend) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:     "bhvr web",
		Views:       Views(),
		ViewsLayout: "layouts/main",
	})
	f.Register(app)
	return app
}

// Register mounts the pages on app. app must use the frontend's views.
func (f *Frontend) Register(app *fiber.App) {
	app.Use(f.visitorMiddleware)

	app.Get("/", f.home)
	app.Get("/login", f.loginPage)
	app.Post("/login", f.login)
	app.Get("/signup", f.signupPage)
	app.Post("/signup", f.signup)
	app.Get("/dashboard", guard.New(guard.Config{
		RedirectTo: "/login",
		Loading:    f.loading,
	}), f.dashboard)
	app.Post("/logout", f.logout)

	app.Use(func(c fiber.Ctx) error {
		return c.Redirect().Status(fiber.StatusSeeOther).To("/")
	})
}

// Visitors reports how many visitors are tracked.
func (f *Frontend) Visitors() int {
	return f.visitors.Len()
}

func (f *Frontend) newVisitor() *visitor {
	qc := query.NewClient(*f.cfg.Query)
	api := f.cfg.NewClient()
	return &visitor{
		auth:  authstate.New(api, qc, authstate.WithLogger(f.log)),
		hello: query.NewQuery(qc, helloKey, api.Hello),
	}
}

// visitorMiddleware resolves the visitor from its cookie, creating one when
// the cookie is missing or unknown, and installs its auth state.
func (f *Frontend) visitorMiddleware(c fiber.Ctx) error {
	id := c.Cookies(VisitorCookie)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	v, created := f.visitors.GetOrCreate(id, f.newVisitor)
	if created {
		f.log.Debug("new visitor", "visitor", id)
	}

	c.Cookie(&fiber.Cookie{
		Name:     VisitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(f.cfg.VisitorTTL / time.Second),
		HTTPOnly: true,
		Secure:   f.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	c.Locals(localsVisitor, v)
	c.SetContext(authstate.NewContext(c.Context(), v.auth))
	return c.Next()
}

func visitorFrom(c fiber.Ctx) *visitor {
	v, _ := c.Locals(localsVisitor).(*visitor)
	return v
}

func (f *Frontend) render(c fiber.Ctx, name, title string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	data["Title"] = title
	data["Auth"] = authstate.Use(c.Context()).State()
	return c.Render(name, data)
}

func (f *Frontend) loading(c fiber.Ctx) error {
	return f.render(c, "loading", "Loading", nil)
}

func (f *Frontend) home(c fiber.Ctx) error {
	v := visitorFrom(c)
	v.auth.Mount(c.Context())
	if v.auth.State().IsLoading {
		c.Set("Refresh", guard.DefaultRefresh)
		return f.loading(c)
	}

	var greeting string
	hello, err := v.hello.Get(c.Context())
	switch {
	case err != nil:
		f.log.Warn("hello request failed", "error", err)
	case hello != nil:
		greeting = hello.Message
	}

	return f.render(c, "home", "Home", fiber.Map{"Greeting": greeting})
}

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

type signupForm struct {
	Name            string `form:"name"`
	Email           string `form:"email"`
	Password        string `form:"password"`
	ConfirmPassword string `form:"confirmPassword"`
}

// redirectIfSignedIn sends authenticated visitors to the dashboard.
func redirectIfSignedIn(c fiber.Ctx) (bool, error) {
	p := authstate.Use(c.Context())
	p.Mount(c.Context())
	if p.State().IsAuthenticated {
		return true, c.Redirect().Status(fiber.StatusSeeOther).To("/dashboard")
	}
	return false, nil
}

func (f *Frontend) loginPage(c fiber.Ctx) error {
	if done, err := redirectIfSignedIn(c); done {
		return err
	}
	return f.render(c, "login", "Sign In", fiber.Map{"Form": loginForm{}})
}

func (f *Frontend) login(c fiber.Ctx) error {
	var in loginForm
	if err := c.Bind().Form(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid form")
	}
	in.Email = strings.TrimSpace(in.Email)

	if errs := forms.ValidateLogin(forms.Login{Email: in.Email, Password: in.Password}); !errs.OK() {
		c.Status(fiber.StatusUnprocessableEntity)
		return f.render(c, "login", "Sign In", fiber.Map{"Form": in, "Errors": errs})
	}

	if err := authstate.Use(c.Context()).Login(c.Context(), in.Email, in.Password); err != nil {
		c.Status(fiber.StatusUnprocessableEntity)
		return f.render(c, "login", "Sign In", fiber.Map{"Form": in})
	}
	return c.Redirect().Status(fiber.StatusSeeOther).To("/dashboard")
}

func (f *Frontend) signupPage(c fiber.Ctx) error {
	if done, err := redirectIfSignedIn(c); done {
		return err
	}
	return f.render(c, "signup", "Sign Up", fiber.Map{"Form": signupForm{}})
}

func (f *Frontend) signup(c fiber.Ctx) error {
	var in signupForm
	if err := c.Bind().Form(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid form")
	}
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)

	errs := forms.ValidateSignup(forms.Signup{
		Name:            in.Name,
		Email:           in.Email,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
	})
	if !errs.OK() {
		c.Status(fiber.StatusUnprocessableEntity)
		return f.render(c, "signup", "Sign Up", fiber.Map{"Form": in, "Errors": errs})
	}

	if err := authstate.Use(c.Context()).Signup(c.Context(), in.Email, in.Password, in.Name); err != nil {
		c.Status(fiber.StatusUnprocessableEntity)
		return f.render(c, "signup", "Sign Up", fiber.Map{"Form": in})
	}
	return c.Redirect().Status(fiber.StatusSeeOther).To("/dashboard")
}

func (f *Frontend) dashboard(c fiber.Ctx) error {
	return f.render(c, "dashboard", "Dashboard", nil)
}

func (f *Frontend) logout(c fiber.Ctx) error {
	if err := authstate.Use(c.Context()).Logout(c.Context()); err != nil {
		f.log.Error("logout failed", "error", err)
	}
	return c.Redirect().Status(fiber.StatusSeeOther).To("/login")
}
