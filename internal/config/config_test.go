package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, "gateway_api_key: secret\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.GatewayAPIKey)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 7*24*time.Hour, cfg.TelemetryRetention)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "gateway_api_key: secret\nlisten_addr: \":9090\"\ndefault_provider: openai\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "openai", cfg.DefaultProvider)
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	path := writeConfig(t, "listen_addr: \":9090\"\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	assert.Error(t, err)
}
