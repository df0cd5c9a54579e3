package core

// Operation IDs shared by the endpoint registry and the HTTP adapters.
const (
	OpSignUpEmail = "signUpEmail"
	OpSignInEmail = "signInEmail"
	OpSignOut     = "signOut"
	OpGetSession  = "getSession"
)

// EndpointProvider provides a list of endpoints to register dynamically
type EndpointProvider interface {
	GetEndpoints() []Endpoint
}

// Endpoint describes one auth route relative to the provider's base path.
// Handler is nil for the built-in endpoints; adapters bind them by OperationID.
type Endpoint struct {
	Path     string
	Method   string
	Handler  func(ctx *RequestContext) error
	Metadata EndpointMetadata
}

// Key identifies the endpoint as METHOD:PATH.
func (e Endpoint) Key() string {
	return EndpointKey(e.Method, e.Path)
}

// EndpointKey builds the registry key for a method and path.
func EndpointKey(method, path string) string {
	return method + ":" + path
}

type EndpointMetadata struct {
	OperationID  string
	Description  string
	RequiresAuth bool
}

// RequestContext is handed to plugin endpoint handlers.
type RequestContext struct {
	// Framework-agnostic context
	Request interface{} // could be *http.Request, fiber.Ctx, etc
	Auth    AuthHandler
	Session *SessionData
}
