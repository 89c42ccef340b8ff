package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/routeregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadCredential(t *testing.T) {
	s := newTestStore(t)

	cred := credpool.NewCredential("cred-1", "openai", credpool.Data{Kind: credpool.DataKindAPIKey, Key: "sk-test"})
	cred.Name = "primary"
	cred.Models = []string{"gpt-4o", "gpt-4o-mini"}
	require.NoError(t, s.SaveCredential(cred))

	loaded, err := s.LoadCredentialsByProvider("openai")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "cred-1", loaded[0].ID)
	assert.Equal(t, "primary", loaded[0].Name)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, loaded[0].Models)
	assert.Equal(t, credpool.StatusActive, loaded[0].State.Status)
}

func TestSaveCredentialPreservesCooldownState(t *testing.T) {
	s := newTestStore(t)

	cred := credpool.NewCredential("cred-1", "kiro", credpool.Data{Kind: credpool.DataKindOAuth, AccessToken: "tok"})
	cred.State.Status = credpool.StatusCooldown
	cred.State.CooldownUntil = time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.SaveCredential(cred))

	loaded, err := s.LoadAllCredentials()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, credpool.StatusCooldown, loaded[0].State.Status)
	assert.WithinDuration(t, cred.State.CooldownUntil, loaded[0].State.CooldownUntil, time.Second)
}

func TestSaveCredentialUpsertsStats(t *testing.T) {
	s := newTestStore(t)

	cred := credpool.NewCredential("cred-1", "openai", credpool.Data{Kind: credpool.DataKindAPIKey, Key: "k"})
	cred.Stats.RecordSuccess(100)
	require.NoError(t, s.SaveCredential(cred))

	cred.Stats.RecordSuccess(200)
	require.NoError(t, s.SaveCredential(cred))

	loaded, err := s.LoadAllCredentials()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.EqualValues(t, 2, loaded[0].Stats.TotalRequests)
	assert.InDelta(t, 150.0, loaded[0].Stats.AvgLatencyMS, 0.001)
}

func TestDeleteCredentialRemovesStats(t *testing.T) {
	s := newTestStore(t)

	cred := credpool.NewCredential("cred-1", "openai", credpool.Data{Kind: credpool.DataKindAPIKey, Key: "k"})
	require.NoError(t, s.SaveCredential(cred))
	require.NoError(t, s.DeleteCredential("cred-1"))

	loaded, err := s.LoadAllCredentials()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	var statsRows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM credential_stats`).Scan(&statsRows))
	assert.Equal(t, 0, statsRows)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetSetting("default_provider")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting("default_provider", "openai"))
	require.NoError(t, s.SetSetting("default_provider", "anthropic"))

	value, ok, err := s.GetSetting("default_provider")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "anthropic", value)

	all, err := s.AllSettings()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", all["default_provider"])
}

func TestRouteRoundTrip(t *testing.T) {
	s := newTestStore(t)

	route := routeregistry.ProviderNamespaceRoute("openai", "uuid-1", "primary")
	require.NoError(t, s.SaveRoute(route))

	routes, err := s.LoadRoutes()
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, route.PathPattern, routes[0].PathPattern)
	assert.Equal(t, []string{"openai", "anthropic"}, routes[0].Protocols)

	require.NoError(t, s.DeleteRouteByCredential("uuid-1"))
	routes, err = s.LoadRoutes()
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestTelemetryInsertAndCleanup(t *testing.T) {
	s := newTestStore(t)

	old := RequestRecord{
		RequestID:    "req-old",
		OccurredAt:   time.Now().Add(-48 * time.Hour),
		ProviderType: "openai",
		Model:        "gpt-4o",
		StatusCode:   200,
	}
	recent := RequestRecord{
		RequestID:    "req-recent",
		OccurredAt:   time.Now(),
		ProviderType: "openai",
		Model:        "gpt-4o",
		StatusCode:   200,
	}
	require.NoError(t, s.InsertRequestRecord(old))
	require.NoError(t, s.InsertRequestRecord(recent))

	records, err := s.RecentRequestRecords(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "req-recent", records[0].RequestID)

	deleted, err := s.CleanupTelemetry(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	records, err = s.RecentRequestRecords(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "req-recent", records[0].RequestID)
}
