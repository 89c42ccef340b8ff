package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/localgw/gatewaycore/internal/admission"
	"github.com/localgw/gatewaycore/internal/errorkind"
	"github.com/localgw/gatewaycore/internal/telemetry"
	"github.com/localgw/gatewaycore/internal/translate"
)

// handleOpenAIChatCompletions serves both the unprefixed /v1/chat/completions
// route and its /{selector}/v1/chat/completions counterpart (selector is ""
// for the former).
func (d Deps) handleOpenAIChatCompletions(w http.ResponseWriter, r *http.Request) {
	identity, _ := admission.FromContext(r.Context())
	selector := chi.URLParam(r, "selector")

	var wire translate.OpenAIRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		errorkind.New(errorkind.KindProtocolError, "invalid request body: "+err.Error()).WriteJSON(w, errorkind.DialectOpenAI)
		return
	}

	start := time.Now()
	req := translate.OpenAIToNormalized(wire)
	outcome, rerr := d.dispatchChat(r.Context(), identity, selector, req)
	if rerr != nil {
		d.recordFailure(identity, outcome.Provider, req.Model, rerr, start)
		rerr.WriteJSON(w, errorkind.DialectOpenAI)
		return
	}

	if outcome.Streaming {
		d.streamOpenAI(w, identity, outcome, req.Model, start)
		return
	}

	id := "chatcmpl-" + uuid.NewString()
	resp := translate.OpenAIResponseFromNormalized(id, outcome.Result.Response)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)

	d.recordSuccess(identity, outcome, req.Model, false, start)
}

func (d Deps) streamOpenAI(w http.ResponseWriter, identity admission.Identity, outcome chatOutcome, model string, start time.Time) {
	sw, ok := newSSEWriter(w)
	if !ok {
		errorkind.New(errorkind.KindInternalError, "streaming not supported by this response writer").WriteJSON(w, errorkind.DialectOpenAI)
		return
	}

	enc := translate.NewOpenAIStreamEncoder("chatcmpl-"+uuid.NewString(), model)
	var lastUsage *translate.Usage
	var text strings.Builder
	for chunk := range outcome.Stream.Chunks {
		if chunk.Usage != nil {
			lastUsage = chunk.Usage
		}
		text.WriteString(chunk.DeltaText)
		sw.writeFrame(enc.Encode(chunk))
	}

	d.recordStreamCompletion(identity, outcome, model, lastUsage, text.String(), start)
}

// recordSuccess writes one completed (non-stream) telemetry record.
func (d Deps) recordSuccess(identity admission.Identity, outcome chatOutcome, model string, streamed bool, start time.Time) {
	if d.Telemetry == nil {
		return
	}
	_ = d.Telemetry.Record(telemetry.Record{
		RequestID:    identity.RequestID,
		ProviderType: outcome.Provider,
		CredentialID: outcome.Result.CredentialID,
		Model:        model,
		ClientType:   string(identity.ClientType),
		StatusCode:   outcome.Result.StatusCode,
		Latency:      time.Since(start),
		InputTokens:  int64(outcome.Result.Response.Usage.PromptTokens),
		OutputTokens: int64(outcome.Result.Response.Usage.CompletionTokens),
		Streamed:     streamed,
		OccurredAt:   time.Now(),
	})
}

func (d Deps) recordStreamCompletion(identity admission.Identity, outcome chatOutcome, model string, usage *translate.Usage, fullText string, start time.Time) {
	if d.Telemetry == nil {
		return
	}
	rec := telemetry.Record{
		RequestID:    identity.RequestID,
		ProviderType: outcome.Provider,
		CredentialID: outcome.Stream.CredentialID,
		Model:        model,
		ClientType:   string(identity.ClientType),
		StatusCode:   http.StatusOK,
		Latency:      time.Since(start),
		Streamed:     true,
		OccurredAt:   time.Now(),
	}
	if usage != nil {
		rec.InputTokens = int64(usage.PromptTokens)
		rec.OutputTokens = int64(usage.CompletionTokens)
	} else if d.Estimator != nil && fullText != "" {
		if n, err := d.Estimator.CountText(model, fullText); err == nil {
			rec.OutputTokens = int64(n)
		}
	}
	_ = d.Telemetry.Record(rec)
}

func (d Deps) recordFailure(identity admission.Identity, provider, model string, rerr *errorkind.Error, start time.Time) {
	if d.Telemetry == nil {
		return
	}
	_ = d.Telemetry.Record(telemetry.Record{
		RequestID:    identity.RequestID,
		ProviderType: provider,
		Model:        model,
		ClientType:   string(identity.ClientType),
		StatusCode:   rerr.Status,
		Latency:      time.Since(start),
		ErrorKind:    string(rerr.Kind),
		OccurredAt:   time.Now(),
	})
}
