package balancer

import (
	"testing"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolsFixture(pools map[string]*credpool.Pool) PoolLookup {
	return func(provider string) (*credpool.Pool, bool) {
		p, ok := pools[provider]
		return p, ok
	}
}

func newCred(id string) *credpool.Credential {
	return credpool.NewCredential(id, "openai", credpool.Data{Kind: credpool.DataKindAPIKey, Key: "k"})
}

func TestSelectReturnsActiveCredential(t *testing.T) {
	pool := credpool.New("openai")
	require.NoError(t, pool.Add(newCred("a")))

	b := New(poolsFixture(map[string]*credpool.Pool{"openai": pool}), nil, nil)
	cred, provider, err := b.Select("openai", "gpt-4o", "", Hints{})
	require.NoError(t, err)
	assert.Equal(t, "a", cred.ID)
	assert.Equal(t, "openai", provider)
}

func TestSelectFallsBackWhenPreferredEmpty(t *testing.T) {
	kiro := credpool.New("kiro")
	anthropic := credpool.New("anthropic")
	require.NoError(t, anthropic.Add(newCred("fallback-cred")))

	b := New(poolsFixture(map[string]*credpool.Pool{
		"kiro":      kiro,
		"anthropic": anthropic,
	}), nil, DefaultFallbackMap())

	cred, provider, err := b.Select("kiro", "claude-3-opus", "", Hints{})
	require.NoError(t, err)
	assert.Equal(t, "fallback-cred", cred.ID)
	assert.Equal(t, "anthropic", provider)
}

func TestSelectReturnsErrorWhenNoFallbackConfigured(t *testing.T) {
	openai := credpool.New("openai")
	b := New(poolsFixture(map[string]*credpool.Pool{"openai": openai}), nil, nil)

	_, _, err := b.Select("openai", "gpt-4o", "", Hints{})
	assert.ErrorIs(t, err, ErrNoAvailableCredential)
}

func TestSelectResolvesModelAlias(t *testing.T) {
	pool := credpool.New("anthropic")
	c := newCred("a")
	c.Models = []string{"claude-sonnet-4-5-20250514"}
	require.NoError(t, pool.Add(c))

	mapper := NewModelMapper()
	mapper.AddAlias("gpt-4", "claude-sonnet-4-5-20250514")

	b := New(poolsFixture(map[string]*credpool.Pool{"anthropic": pool}), mapper, nil)
	cred, _, err := b.Select("anthropic", "gpt-4", "", Hints{})
	require.NoError(t, err)
	assert.Equal(t, "a", cred.ID)
}

func TestSelectModelListIsSoftHint(t *testing.T) {
	pool := credpool.New("openai")
	c := newCred("a")
	c.Models = []string{"gpt-3.5-turbo"} // does not advertise gpt-4o
	require.NoError(t, pool.Add(c))

	b := New(poolsFixture(map[string]*credpool.Pool{"openai": pool}), nil, nil)
	cred, _, err := b.Select("openai", "gpt-4o", "", Hints{})
	require.NoError(t, err, "model list must not hard-filter when nothing matches")
	assert.Equal(t, "a", cred.ID)
}

func TestSelectPrefersCredentialServingModel(t *testing.T) {
	pool := credpool.New("openai")
	generic := newCred("generic")
	generic.Models = []string{"gpt-3.5-turbo"}
	require.NoError(t, pool.Add(generic))
	specific := newCred("specific")
	specific.Models = []string{"gpt-4o"}
	require.NoError(t, pool.Add(specific))

	b := New(poolsFixture(map[string]*credpool.Pool{"openai": pool}), nil, nil)
	cred, _, err := b.Select("openai", "gpt-4o", "", Hints{})
	require.NoError(t, err)
	assert.Equal(t, "specific", cred.ID)
}

func TestGateClientTypeRestrictsSelection(t *testing.T) {
	pool := credpool.New("kiro")
	require.NoError(t, pool.Add(newCred("a")))

	b := New(poolsFixture(map[string]*credpool.Pool{"kiro": pool}), nil, nil)
	b.GateClientType("kiro", "claude-code")

	_, _, err := b.Select("kiro", "", "cursor", Hints{})
	assert.ErrorIs(t, err, ErrNoAvailableCredential)

	_, _, err = b.Select("kiro", "", "claude-code", Hints{})
	assert.NoError(t, err)
}
