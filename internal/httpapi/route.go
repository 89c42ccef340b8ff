package httpapi

import (
	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/errorkind"
	"github.com/localgw/gatewaycore/internal/routeregistry"
)

// resolvedRoute is the outcome of turning a URL's leading path segment (or
// its absence) into a concrete dispatch target, per spec §4.2/§6.1: the
// unprefixed path uses the current default provider; a named segment
// resolves through the registry to either a provider namespace (ordinary
// balanced dispatch) or one pinned credential (no balancer, no retry).
type resolvedRoute struct {
	Provider string
	Pinned   *credpool.Credential // non-nil only for RouteTypeCredentialSelector
}

// resolveRoute implements spec §4.2's selector resolution: try uuid, then
// name, falling back to the Default route when selector is empty or matches
// no registered route.
func (d Deps) resolveRoute(selector string) (resolvedRoute, *errorkind.Error) {
	if selector == "" {
		provider := d.DefaultProvider()
		if provider == "" {
			return resolvedRoute{}, errorkind.New(errorkind.KindRouteNotFound, "no default provider configured")
		}
		return resolvedRoute{Provider: provider}, nil
	}

	route, ok := d.Registry.FindBySelector(selector)
	if !ok {
		return d.resolveRoute("")
	}

	if route.Type != routeregistry.RouteTypeCredentialSelector {
		return resolvedRoute{Provider: route.ProviderType}, nil
	}

	pool, ok := d.Pools[route.ProviderType]
	if !ok {
		return resolvedRoute{}, errorkind.New(errorkind.KindNoAvailableCredential, "credential pool not found for "+route.ProviderType)
	}
	cred := pool.Get(route.CredentialUUID)
	if cred == nil {
		return resolvedRoute{}, errorkind.New(errorkind.KindNoAvailableCredential, "credential no longer exists")
	}
	if !cred.IsAvailable() {
		return resolvedRoute{}, errorkind.New(errorkind.KindNoAvailableCredential, "pinned credential is not active")
	}
	return resolvedRoute{Provider: route.ProviderType, Pinned: cred}, nil
}
