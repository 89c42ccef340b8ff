// Package balancer implements the load balancer: given a provider family,
// a requested model, and the requesting client type, it picks one
// credential, consulting the credential pool and applying the configured
// fallback family map when the preferred pool has nothing available.
package balancer

import (
	"errors"
	"strings"

	"github.com/localgw/gatewaycore/internal/credpool"
)

// ErrNoAvailableCredential is returned when neither the preferred pool nor
// any fallback pool has a selectable credential.
var ErrNoAvailableCredential = errors.New("no available credential for request")

// PoolLookup resolves a provider family name to its credential pool.
type PoolLookup func(providerType string) (*credpool.Pool, bool)

// Hints carries request details beyond provider/model. Select does not read
// Hints.ClientType: client gating uses Select's clientType argument, and a
// provider gated by GateClientType rejects any other client type outright
// (see clientAllowed).
type Hints struct {
	ClientType string
}

// Balancer never mutates pool state except the pool's own round-robin
// cursor, and never performs network I/O (spec §4.3).
type Balancer struct {
	pools      PoolLookup
	mapper     *ModelMapper
	fallback   map[string]string // provider -> fallback provider, e.g. "kiro" -> "anthropic"
	clientGate map[string][]string
}

// New builds a balancer over the given pool lookup and fallback map. An
// empty fallback entry for a provider means "no fallback" (API-key
// providers, per spec §6.3).
func New(pools PoolLookup, mapper *ModelMapper, fallback map[string]string) *Balancer {
	if mapper == nil {
		mapper = NewModelMapper()
	}
	if fallback == nil {
		fallback = map[string]string{}
	}
	return &Balancer{pools: pools, mapper: mapper, fallback: fallback, clientGate: map[string][]string{}}
}

// DefaultFallbackMap returns the fixed fallback family map from spec §6.3.
func DefaultFallbackMap() map[string]string {
	return map[string]string{
		"kiro":        "anthropic",
		"gemini-oauth": "gemini-apikey",
		"codex":       "openai",
		"claude-oauth": "anthropic",
		"antigravity": "gemini-apikey",
	}
}

// GateClientType restricts provider to only serve the listed client types.
// Providers with no gate configured serve every client type.
func (b *Balancer) GateClientType(provider string, clientTypes ...string) {
	b.clientGate[provider] = clientTypes
}

// Select implements spec §4.3's algorithm: refresh cooldowns, filter by
// client type and model, round-robin among survivors, fall back to a
// sibling provider family on exhaustion.
func (b *Balancer) Select(provider, requestedModel, clientType string, hints Hints) (*credpool.Credential, string, error) {
	resolvedModel := b.mapper.Resolve(requestedModel)

	cred, err := b.selectFrom(provider, resolvedModel, clientType)
	if err == nil {
		return cred, provider, nil
	}

	if fallbackProvider, ok := b.fallback[provider]; ok && fallbackProvider != "" {
		cred, err := b.selectFrom(fallbackProvider, resolvedModel, clientType)
		if err == nil {
			return cred, fallbackProvider, nil
		}
	}

	return nil, "", ErrNoAvailableCredential
}

func (b *Balancer) selectFrom(provider, model, clientType string) (*credpool.Credential, error) {
	pool, ok := b.pools(provider)
	if !ok {
		return nil, ErrNoAvailableCredential
	}

	if !b.clientAllowed(provider, clientType) {
		return nil, ErrNoAvailableCredential
	}

	pool.RefreshCooldowns()

	cred, err := pool.NextAvailable()
	if err != nil {
		return nil, ErrNoAvailableCredential
	}

	// Soft model-list preference: if the round-robin pick doesn't serve the
	// requested model but a different active credential does, prefer that
	// one. The model list is never a hard filter (Open Question resolved in
	// SPEC_FULL.md): if nothing matches, the original round-robin pick is
	// kept rather than failing outright.
	if model != "" && len(cred.Models) > 0 && !containsModel(cred.Models, model) {
		if better := findCredentialServingModel(pool, model); better != nil {
			return better, nil
		}
	}

	return cred, nil
}

func (b *Balancer) clientAllowed(provider, clientType string) bool {
	gate, ok := b.clientGate[provider]
	if !ok || len(gate) == 0 {
		return true
	}
	if clientType == "" {
		return true
	}
	for _, ct := range gate {
		if strings.EqualFold(ct, clientType) {
			return true
		}
	}
	return false
}

func containsModel(models []string, model string) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

func findCredentialServingModel(pool *credpool.Pool, model string) *credpool.Credential {
	for _, c := range pool.All() {
		if c.IsAvailable() && containsModel(c.Models, model) {
			return c
		}
	}
	return nil
}
