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
	"github.com/localgw/gatewaycore/internal/translate"
)

// handleAnthropicMessages serves /v1/messages and /{selector}/v1/messages.
func (d Deps) handleAnthropicMessages(w http.ResponseWriter, r *http.Request) {
	identity, _ := admission.FromContext(r.Context())
	selector := chi.URLParam(r, "selector")

	var wire translate.AnthropicRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		errorkind.New(errorkind.KindProtocolError, "invalid request body: "+err.Error()).WriteJSON(w, errorkind.DialectAnthropic)
		return
	}

	start := time.Now()
	req := translate.AnthropicToNormalized(wire)
	outcome, rerr := d.dispatchChat(r.Context(), identity, selector, req)
	if rerr != nil {
		d.recordFailure(identity, outcome.Provider, req.Model, rerr, start)
		rerr.WriteJSON(w, errorkind.DialectAnthropic)
		return
	}

	if outcome.Streaming {
		d.streamAnthropic(w, identity, outcome, req.Model, start)
		return
	}

	id := "msg_" + uuid.NewString()
	resp := translate.AnthropicResponseFromNormalized(id, outcome.Result.Response)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)

	d.recordSuccess(identity, outcome, req.Model, false, start)
}

func (d Deps) streamAnthropic(w http.ResponseWriter, identity admission.Identity, outcome chatOutcome, model string, start time.Time) {
	sw, ok := newSSEWriter(w)
	if !ok {
		errorkind.New(errorkind.KindInternalError, "streaming not supported by this response writer").WriteJSON(w, errorkind.DialectAnthropic)
		return
	}

	enc := translate.NewAnthropicStreamEncoder("msg_"+uuid.NewString(), model)
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

// handleCountTokens serves /v1/messages/count_tokens and its selector
// variant. No upstream call is made: this is a local estimate only, per
// spec §4.5's rationale that Anthropic has no locally-callable tokenizer.
func (d Deps) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	var wire translate.AnthropicRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		errorkind.New(errorkind.KindProtocolError, "invalid request body: "+err.Error()).WriteJSON(w, errorkind.DialectAnthropic)
		return
	}

	req := translate.AnthropicToNormalized(wire)
	count, err := d.Estimator.CountMessages(req)
	if err != nil {
		errorkind.New(errorkind.KindInternalError, "token estimate failed: "+err.Error()).WriteJSON(w, errorkind.DialectAnthropic)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"input_tokens": count})
}
