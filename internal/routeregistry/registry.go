// Package routeregistry maps inbound URL paths to routing intents: the
// Default provider, a named provider namespace, or one specific credential.
package routeregistry

import (
	"sort"
	"strings"
	"sync"
)

// RouteType distinguishes the three kinds of registered route.
type RouteType int

const (
	RouteTypeProviderNamespace RouteType = iota
	RouteTypeCredentialSelector
	RouteTypeDefault
)

// Priority values: lower wins. Matches the ordering the reference registry
// assigns so that a credential-specific route never loses to a broader
// provider namespace route with the same name.
const (
	PriorityProviderNamespace = 10
	PriorityCredentialSelector = 20
	PriorityDefault            = 100
)

// Route is one entry in the registry.
type Route struct {
	PathPattern    string
	Type           RouteType
	ProviderType   string
	CredentialUUID string
	CredentialName string
	Protocols      []string
	Enabled        bool
	Priority       int
}

// DisplayName returns the credential name, falling back to the provider
// type, falling back to "default".
func (r Route) DisplayName() string {
	if r.CredentialName != "" {
		return r.CredentialName
	}
	if r.ProviderType != "" {
		return r.ProviderType
	}
	return "default"
}

// ProviderNamespaceRoute builds a /<slug>/v1/{endpoint} route.
func ProviderNamespaceRoute(providerType, credentialUUID, credentialName string) Route {
	return Route{
		PathPattern:    "/" + generateRouteName(providerType, credentialName) + "/v1/{endpoint}",
		Type:           RouteTypeProviderNamespace,
		ProviderType:   providerType,
		CredentialUUID: credentialUUID,
		CredentialName: credentialName,
		Protocols:      []string{"openai", "anthropic"},
		Enabled:        true,
		Priority:       PriorityProviderNamespace,
	}
}

// CredentialSelectorRoute builds a /<uuid>/v1/{endpoint} route.
func CredentialSelectorRoute(credentialUUID, providerType string) Route {
	return Route{
		PathPattern:    "/" + credentialUUID + "/v1/{endpoint}",
		Type:           RouteTypeCredentialSelector,
		ProviderType:   providerType,
		CredentialUUID: credentialUUID,
		Protocols:      []string{"openai", "anthropic"},
		Enabled:        true,
		Priority:       PriorityCredentialSelector,
	}
}

// DefaultRoute builds the /v1/{endpoint} route for the current default
// provider.
func DefaultRoute(providerType string) Route {
	return Route{
		PathPattern:  "/v1/{endpoint}",
		Type:         RouteTypeDefault,
		ProviderType: providerType,
		Protocols:    []string{"openai", "anthropic"},
		Enabled:      true,
		Priority:     PriorityDefault,
	}
}

// generateRouteName slugifies a credential name (lower-case, each run of
// characters outside [a-z0-9_] collapsed to one hyphen), falling back to the
// provider type when no name is given.
func generateRouteName(providerType, credentialName string) string {
	if credentialName == "" {
		return strings.ToLower(providerType)
	}
	var b strings.Builder
	for _, r := range strings.ToLower(credentialName) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
		case !strings.HasSuffix(b.String(), "-"):
			b.WriteRune('-')
		}
	}
	return b.String()
}

// Registry holds every registered route, indexed by name and by uuid for
// O(1) selector resolution, kept sorted by priority.
type Registry struct {
	mu        sync.RWMutex
	routes    []Route
	nameIndex map[string]int
	uuidIndex map[string]int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		nameIndex: make(map[string]int),
		uuidIndex: make(map[string]int),
	}
}

// Register adds a route and re-sorts by priority.
func (r *Registry) Register(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
	r.sortByPriorityLocked()
}

// Unregister removes the route bound to credentialUUID, if any.
func (r *Registry) Unregister(credentialUUID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.uuidIndex[credentialUUID]
	if !ok {
		return
	}
	r.routes = append(r.routes[:idx], r.routes[idx+1:]...)
	r.rebuildIndicesLocked()
}

// Clear drops every route, used before a full rebuild triggered by a
// credential mutation (spec §4.2's "on any credential mutation the registry
// is cleared and re-populated").
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = nil
	r.nameIndex = make(map[string]int)
	r.uuidIndex = make(map[string]int)
}

// FindByName looks up a route by case-insensitive credential name.
func (r *Registry) FindByName(name string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.nameIndex[strings.ToLower(name)]
	if !ok {
		return Route{}, false
	}
	return r.routes[idx], true
}

// FindByUUID looks up a route by exact credential uuid.
func (r *Registry) FindByUUID(uuid string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.uuidIndex[uuid]
	if !ok {
		return Route{}, false
	}
	return r.routes[idx], true
}

// FindBySelector resolves a path segment that may be either a credential
// name or a uuid, trying the uuid first (spec §4.2: "first tries UUID, then
// name"), falling through to false (caller falls back to Default) on miss.
func (r *Registry) FindBySelector(selector string) (Route, bool) {
	if route, ok := r.FindByUUID(selector); ok {
		return route, true
	}
	return r.FindByName(selector)
}

// AllRoutes returns every route, sorted by priority.
func (r *Registry) AllRoutes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// EnabledRoutes returns only the enabled routes.
func (r *Registry) EnabledRoutes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		if route.Enabled {
			out = append(out, route)
		}
	}
	return out
}

// RoutesByProvider returns all routes for one provider type.
func (r *Registry) RoutesByProvider(providerType string) []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0)
	for _, route := range r.routes {
		if route.ProviderType == providerType {
			out = append(out, route)
		}
	}
	return out
}

func (r *Registry) sortByPriorityLocked() {
	sort.SliceStable(r.routes, func(i, j int) bool { return r.routes[i].Priority < r.routes[j].Priority })
	r.rebuildIndicesLocked()
}

func (r *Registry) rebuildIndicesLocked() {
	r.nameIndex = make(map[string]int, len(r.routes))
	r.uuidIndex = make(map[string]int, len(r.routes))
	for i, route := range r.routes {
		if route.CredentialName != "" {
			r.nameIndex[strings.ToLower(route.CredentialName)] = i
		}
		if route.CredentialUUID != "" {
			r.uuidIndex[route.CredentialUUID] = i
		}
	}
}
