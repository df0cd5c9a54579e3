package services

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/lborres/bhvr/core"
)

// BaseEndpoints returns framework-agnostic endpoint specifications
// for all core authentication endpoints.
//
// Each endpoint is a template:
// - Path and Method are set, relative to the provider's base path
// - Handler is nil (provided by adapters, keyed by OperationID)
// - Metadata describes the operation
//
// The paths follow the route layout of common JavaScript auth clients so that
// an unmodified browser client can talk to this provider.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/sign-up/email",
			Method: http.MethodPost,
			Metadata: core.EndpointMetadata{
				OperationID: core.OpSignUpEmail,
				Description: "Sign up a user using email and password",
			},
		},
		{
			Path:   "/sign-in/email",
			Method: http.MethodPost,
			Metadata: core.EndpointMetadata{
				OperationID: core.OpSignInEmail,
				Description: "Sign in a user using email and password",
			},
		},
		{
			Path:   "/sign-out",
			Method: http.MethodPost,
			Metadata: core.EndpointMetadata{
				OperationID: core.OpSignOut,
				Description: "Sign out the current user and invalidate the session, if any",
			},
		},
		{
			Path:   "/get-session",
			Method: http.MethodGet,
			Metadata: core.EndpointMetadata{
				OperationID: core.OpGetSession,
				Description: "Get the current user's session data, or null",
			},
		},
	}
}

// EndpointRegistry manages a collection of framework-agnostic endpoints
// and handles conflict detection for duplicate METHOD:PATH combinations.
//
// It starts with base authentication endpoints and supports registration of
// additional plugin endpoints with automatic conflict detection.
type EndpointRegistry struct {
	// endpoints stores all registered endpoints keyed by "METHOD:PATH"
	endpoints map[string]*core.Endpoint
}

// NewEndpointRegistry creates a new registry with all base authentication endpoints
// pre-registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}

	for _, ep := range BaseEndpoints() {
		ep := ep
		reg.endpoints[ep.Key()] = &ep
	}

	return reg
}

// RegisterPlugin registers additional plugin endpoints to the registry.
// Returns error if any plugin endpoint conflicts with existing endpoints
// or with other plugin endpoints in the same batch.
//
// If an error occurs, no endpoints from the plugin are registered.
func (r *EndpointRegistry) RegisterPlugin(endpoints []core.Endpoint) error {
	seen := make(map[string]bool, len(endpoints))
	for i := range endpoints {
		ep := &endpoints[i]
		key := ep.Key()

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("plugin endpoint conflict: %s %s already registered", ep.Method, ep.Path)
		}
		if seen[key] {
			return fmt.Errorf("plugin contains duplicate endpoint: %s %s", ep.Method, ep.Path)
		}
		if ep.Handler == nil {
			return fmt.Errorf("plugin endpoint %s %s has no handler", ep.Method, ep.Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		ep := endpoints[i]
		r.endpoints[ep.Key()] = &ep
	}

	return nil
}

// Lookup finds the endpoint registered for method and path.
func (r *EndpointRegistry) Lookup(method, path string) (*core.Endpoint, bool) {
	ep, ok := r.endpoints[core.EndpointKey(method, path)]
	return ep, ok
}

// Endpoints returns all registered endpoints (both base and plugin
// endpoints) ordered by path, then method.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}
