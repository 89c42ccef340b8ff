// Package httpapi wires the inbound OpenAI- and Anthropic-compatible HTTP
// surface (component F's outward face) onto the route registry, balancer,
// resilience pipeline, and telemetry sink, grounded on the teacher's
// pkg/backend/server.go router assembly.
package httpapi

import (
	"time"

	"github.com/localgw/gatewaycore/internal/balancer"
	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/resilience"
	"github.com/localgw/gatewaycore/internal/routeregistry"
	"github.com/localgw/gatewaycore/internal/telemetry"
	"go.uber.org/zap"
)

// Deps bundles everything a handler needs to serve one inbound request.
// Built once in main and shared read-only across every request goroutine.
type Deps struct {
	Registry  *routeregistry.Registry
	Pools     map[string]*credpool.Pool // keyed by provider family, for /v1/models and pinned lookups
	Mapper    *balancer.ModelMapper
	Pipeline  *resilience.Pipeline
	Telemetry *telemetry.Sink
	Estimator *telemetry.Estimator
	Logger    *zap.Logger

	// DefaultProvider returns the provider family currently bound to the
	// unprefixed /v1/* routes. A func rather than a fixed string so a
	// config hot-reload (main reads the config watcher's Current()) is picked up without
	// rebuilding the router.
	DefaultProvider func() string

	RequestTimeout time.Duration
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
