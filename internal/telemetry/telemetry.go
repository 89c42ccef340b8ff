// Package telemetry implements the telemetry sink (component K): a
// per-request structured record combining latency, token counts, and
// outcome, persisted to the store and mirrored onto Prometheus series for
// live scraping. Sink.Record must be called exactly once per completed
// request, in completion order (spec §5's ordering guarantee — no
// cross-request ordering is otherwise promised).
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/localgw/gatewaycore/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record is what the per-request pipeline reports once a request — stream
// or non-stream — has fully completed.
type Record struct {
	RequestID    string
	ProviderType string
	CredentialID string
	Model        string
	ClientType   string
	StatusCode   int
	Latency      time.Duration
	InputTokens  int64
	OutputTokens int64
	ErrorKind    string
	Streamed     bool
	OccurredAt   time.Time
}

// Sink persists Records and exposes them as Prometheus series. The
// in-memory per-provider histograms give callers (e.g. an admin endpoint)
// cheap percentile lookups without hitting the store.
type Sink struct {
	store *store.Store

	requestsTotal  *prometheus.CounterVec
	latencySeconds *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec

	histograms   map[string]*histogram // keyed by provider_type
	histogramsMu sync.RWMutex
}

// New wires a Sink to reg (pass prometheus.DefaultRegisterer in production,
// a fresh prometheus.NewRegistry() in tests to avoid collector collisions
// across parallel test runs).
func New(s *store.Store, reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		store: s,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Completed upstream requests by provider, model, client type and status.",
		}, []string{"provider", "model", "client_type", "status"}),
		latencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request latency as observed by the gateway.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Tokens accounted by direction (input/output).",
		}, []string{"provider", "model", "direction"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Failed requests by error kind.",
		}, []string{"provider", "kind"}),
		histograms: make(map[string]*histogram),
	}
}

// Handler exposes the wired registry over HTTP for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Record persists r and updates the Prometheus series. Store failures are
// returned but never block the caller from having already updated metrics:
// a dropped telemetry row must not also blind the live dashboards.
func (s *Sink) Record(r Record) error {
	status := statusBucket(r.StatusCode)

	s.requestsTotal.WithLabelValues(r.ProviderType, r.Model, r.ClientType, status).Inc()
	s.latencySeconds.WithLabelValues(r.ProviderType, r.Model).Observe(r.Latency.Seconds())
	if r.InputTokens > 0 {
		s.tokensTotal.WithLabelValues(r.ProviderType, r.Model, "input").Add(float64(r.InputTokens))
	}
	if r.OutputTokens > 0 {
		s.tokensTotal.WithLabelValues(r.ProviderType, r.Model, "output").Add(float64(r.OutputTokens))
	}
	if r.ErrorKind != "" {
		s.errorsTotal.WithLabelValues(r.ProviderType, r.ErrorKind).Inc()
	}

	s.histogramFor(r.ProviderType).add(r.Latency)

	occurredAt := r.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	if s.store == nil {
		return nil
	}
	return s.store.InsertRequestRecord(store.RequestRecord{
		RequestID:    r.RequestID,
		OccurredAt:   occurredAt,
		ProviderType: r.ProviderType,
		CredentialID: r.CredentialID,
		Model:        r.Model,
		ClientType:   r.ClientType,
		StatusCode:   r.StatusCode,
		LatencyMS:    r.Latency.Milliseconds(),
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		ErrorKind:    r.ErrorKind,
		Streamed:     r.Streamed,
	})
}

// LatencySnapshot returns the in-memory percentile breakdown for one
// provider, or the zero value if nothing has been recorded yet.
func (s *Sink) LatencySnapshot(providerType string) LatencyPercentiles {
	s.histogramsMu.RLock()
	h, ok := s.histograms[providerType]
	s.histogramsMu.RUnlock()
	if !ok {
		return LatencyPercentiles{}
	}
	return h.snapshot()
}

func (s *Sink) histogramFor(providerType string) *histogram {
	s.histogramsMu.RLock()
	h, ok := s.histograms[providerType]
	s.histogramsMu.RUnlock()
	if ok {
		return h
	}

	s.histogramsMu.Lock()
	defer s.histogramsMu.Unlock()
	if h, ok := s.histograms[providerType]; ok {
		return h
	}
	h = newHistogram(1000)
	s.histograms[providerType] = h
	return h
}

// Cleanup deletes persisted records older than retention, returning the
// number of rows removed. Intended to be called periodically by the
// scheduled sweep.
func (s *Sink) Cleanup(retention time.Duration) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.CleanupTelemetry(time.Now().Add(-retention))
}

// Recent returns the most recent persisted records, most recent first.
func (s *Sink) Recent(limit int) ([]store.RequestRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.RecentRequestRecords(limit)
}

func statusBucket(code int) string {
	switch {
	case code == 0:
		return "unknown"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
