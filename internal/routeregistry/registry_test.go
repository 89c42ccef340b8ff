package routeregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteRegistrationAndLookup(t *testing.T) {
	r := New()
	route := ProviderNamespaceRoute("kiro", "uuid-123", "my-kiro-account")
	r.Register(route)

	_, ok := r.FindByName("my-kiro-account")
	assert.True(t, ok)
	_, ok = r.FindByUUID("uuid-123")
	assert.True(t, ok)
	_, ok = r.FindBySelector("my-kiro-account")
	assert.True(t, ok)
}

func TestRouteUnregistration(t *testing.T) {
	r := New()
	r.Register(ProviderNamespaceRoute("kiro", "uuid-123", "my-kiro-account"))
	r.Unregister("uuid-123")

	_, ok := r.FindByName("my-kiro-account")
	assert.False(t, ok)
	_, ok = r.FindByUUID("uuid-123")
	assert.False(t, ok)
}

func TestNameLookupCaseInsensitive(t *testing.T) {
	r := New()
	r.Register(ProviderNamespaceRoute("kiro", "uuid-123", "My-Kiro-Account"))

	_, ok := r.FindByName("MY-KIRO-ACCOUNT")
	assert.True(t, ok)
}

func TestUUIDLookupExact(t *testing.T) {
	r := New()
	r.Register(CredentialSelectorRoute("AbC-123", "openai"))

	_, ok := r.FindByUUID("abc-123")
	assert.False(t, ok, "uuid lookup must be case-exact")
	_, ok = r.FindByUUID("AbC-123")
	assert.True(t, ok)
}

func TestSelectorFallsThroughUUIDThenName(t *testing.T) {
	r := New()
	r.Register(ProviderNamespaceRoute("openai", "uuid-1", "prod"))

	route, ok := r.FindBySelector("uuid-1")
	assert.True(t, ok)
	assert.Equal(t, "uuid-1", route.CredentialUUID)

	route, ok = r.FindBySelector("prod")
	assert.True(t, ok)
	assert.Equal(t, "prod", route.CredentialName)

	_, ok = r.FindBySelector("nonexistent")
	assert.False(t, ok, "miss falls through to the caller's Default route")
}

func TestSortedByPriority(t *testing.T) {
	r := New()
	r.Register(DefaultRoute("openai"))
	r.Register(CredentialSelectorRoute("uuid-1", "openai"))
	r.Register(ProviderNamespaceRoute("openai", "uuid-2", "prod"))

	routes := r.AllRoutes()
	assert.Equal(t, RouteTypeProviderNamespace, routes[0].Type)
	assert.Equal(t, RouteTypeCredentialSelector, routes[1].Type)
	assert.Equal(t, RouteTypeDefault, routes[2].Type)
}

func TestGenerateRouteNameSlugifies(t *testing.T) {
	route := ProviderNamespaceRoute("kiro", "uuid", "My Kiro Account! #1")
	assert.Equal(t, "/my-kiro-account-1/v1/{endpoint}", route.PathPattern)
}

func TestGenerateRouteNameFallsBackToProviderType(t *testing.T) {
	route := ProviderNamespaceRoute("Kiro", "uuid", "")
	assert.Equal(t, "/kiro/v1/{endpoint}", route.PathPattern)
}

func TestRoutesByProvider(t *testing.T) {
	r := New()
	r.Register(ProviderNamespaceRoute("openai", "uuid-1", "a"))
	r.Register(ProviderNamespaceRoute("anthropic", "uuid-2", "b"))

	routes := r.RoutesByProvider("openai")
	assert.Len(t, routes, 1)
	assert.Equal(t, "uuid-1", routes[0].CredentialUUID)
}
