// Package config loads the gateway's on-disk configuration and republishes
// changes onto the observer bus (component L) when the file is edited
// while the process is running, so reload never requires a restart (spec
// §9 "Global configuration" design note).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/localgw/gatewaycore/internal/health"
	"github.com/localgw/gatewaycore/internal/resilience"
	"gopkg.in/yaml.v3"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	ListenAddr      string            `yaml:"listen_addr"`
	GatewayAPIKey   string            `yaml:"gateway_api_key"`
	DatabasePath    string            `yaml:"database_path"`
	DefaultProvider string            `yaml:"default_provider"`
	FallbackMap     map[string]string `yaml:"fallback_map"`
	ProxyURL        string            `yaml:"proxy_url"`
	LogLevel        string            `yaml:"log_level"`

	Retry    resilience.Policy     `yaml:"retry"`
	Cooldown health.CooldownPolicy `yaml:"cooldown"`

	TelemetryRetention time.Duration `yaml:"telemetry_retention"`
}

// Default returns the gateway's out-of-the-box configuration, used when no
// file exists yet and as the base that a partial file is merged onto.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		DatabasePath:       "gateway.db",
		LogLevel:           "info",
		FallbackMap:        map[string]string{},
		Retry:              resilience.DefaultPolicy(),
		Cooldown:           health.DefaultCooldownPolicy(),
		TelemetryRetention: 7 * 24 * time.Hour,
	}
}

// Load reads and parses the YAML config at path, starting from Default()
// so an omitted field keeps its documented default rather than zeroing
// out.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.GatewayAPIKey == "" {
		return Config{}, fmt.Errorf("config %s: gateway_api_key is required", path)
	}
	return cfg, nil
}
