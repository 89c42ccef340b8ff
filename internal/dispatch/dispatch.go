// Package dispatch implements the upstream dispatcher (component H): one
// implementation per provider family, each turning a normalized request
// plus a selected credential into an HTTP call against that family's real
// wire dialect, and decoding the raw response back into a
// translate.NormalizedResponse/stream. Dispatchers do not build a
// health.Outcome; the resilience pipeline classifies each attempt.
package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/streamdecode"
	"github.com/localgw/gatewaycore/internal/translate"
)

// Result is what a Dispatcher returns for a non-streamed call.
type Result struct {
	Response     translate.NormalizedResponse
	StatusCode   int
	LatencyMS    uint64
	CredentialID string // filled in by the resilience pipeline, not the dispatcher itself
}

// StreamResult is returned for a streamed call: the caller ranges over
// Chunks until the channel closes, then checks Err.
type StreamResult struct {
	Chunks       <-chan translate.NormalizedChunk
	StatusCode   int
	Err          error
	CredentialID string // filled in by the resilience pipeline, not the dispatcher itself
}

// Dispatcher issues calls against one provider family's real API.
type Dispatcher interface {
	// Family returns the provider type this dispatcher handles (e.g. "openai").
	Family() string
	Send(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (Result, error)
	Stream(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (StreamResult, error)
}

// Constructor builds a Dispatcher bound to a shared HTTP client and decoder
// factory.
type Constructor func(client *http.Client, decoders *streamdecode.Factory) Dispatcher

// Registry is the dispatch table mapping provider family name to the
// Dispatcher that handles it, mirroring the teacher's provider factory.
type Registry struct {
	client   *http.Client
	decoders *streamdecode.Factory
	entries  map[string]Dispatcher
}

// NewRegistry builds an empty registry sharing one HTTP client and decoder
// factory across every dispatcher it constructs.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		client:   &http.Client{Timeout: timeout},
		decoders: streamdecode.NewFactory(),
		entries:  make(map[string]Dispatcher),
	}
}

// Register installs a dispatcher for a provider family, constructing it
// with the registry's shared client and decoder factory.
func (r *Registry) Register(family string, ctor Constructor) {
	r.entries[family] = ctor(r.client, r.decoders)
}

// ErrUnknownFamily is returned by Get for an unregistered provider family.
type ErrUnknownFamily struct{ Family string }

func (e ErrUnknownFamily) Error() string { return "dispatch: unknown provider family " + e.Family }

// Get looks up the dispatcher for a provider family.
func (r *Registry) Get(family string) (Dispatcher, error) {
	d, ok := r.entries[family]
	if !ok {
		return nil, ErrUnknownFamily{Family: family}
	}
	return d, nil
}
