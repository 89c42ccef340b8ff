package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/streamdecode"
	"github.com/localgw/gatewaycore/internal/translate"
)

// AnthropicDispatcher talks to the Anthropic messages API, and to
// Anthropic-compatible relays via x-api-key/anthropic-version headers.
type AnthropicDispatcher struct {
	client  *http.Client
	version string
}

func NewAnthropicDispatcher(client *http.Client, decoders *streamdecode.Factory) Dispatcher {
	return &AnthropicDispatcher{client: client, version: "2023-06-01"}
}

func (d *AnthropicDispatcher) Family() string { return "anthropic" }

func (d *AnthropicDispatcher) Send(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (Result, error) {
	wire := translate.NormalizedToAnthropic(req)
	wire.Stream = false
	body, err := json.Marshal(wire)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: marshal anthropic request: %w", err)
	}

	start := time.Now()
	resp, err := d.doRequest(ctx, cred, "messages", body)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	latency := uint64(time.Since(start).Milliseconds())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: read anthropic response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{StatusCode: resp.StatusCode, LatencyMS: latency}, fmt.Errorf("dispatch: anthropic status %d: %s", resp.StatusCode, raw)
	}

	var wireResp translate.AnthropicResponse
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return Result{}, fmt.Errorf("dispatch: unmarshal anthropic response: %w", err)
	}

	msg := anthropicMessageToNormalizedMessage(wireResp.Content)
	normalized := translate.NormalizedResponse{
		ID:           wireResp.ID,
		Model:        wireResp.Model,
		Message:      msg,
		FinishReason: anthropicFinishReason(wireResp.StopReason),
		Usage: translate.Usage{
			PromptTokens:     wireResp.Usage.InputTokens,
			CompletionTokens: wireResp.Usage.OutputTokens,
			TotalTokens:      wireResp.Usage.InputTokens + wireResp.Usage.OutputTokens,
		},
	}

	return Result{Response: normalized, StatusCode: resp.StatusCode, LatencyMS: latency}, nil
}

func (d *AnthropicDispatcher) Stream(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (StreamResult, error) {
	wire := translate.NormalizedToAnthropic(req)
	wire.Stream = true
	body, err := json.Marshal(wire)
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: marshal anthropic request: %w", err)
	}

	resp, err := d.doRequest(ctx, cred, "messages", body)
	if err != nil {
		return StreamResult{}, err
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return StreamResult{StatusCode: resp.StatusCode}, fmt.Errorf("dispatch: anthropic status %d: %s", resp.StatusCode, raw)
	}

	out := make(chan translate.NormalizedChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		dec := streamdecode.NewSSEDecoder()
		var usage translate.Usage
		for {
			ev, err := dec.Decode(resp.Body)
			if err == io.EOF {
				return
			}
			if err != nil {
				return
			}
			chunk, final, ok := decodeAnthropicStreamEvent(ev, &usage)
			if !ok {
				continue
			}
			out <- chunk
			if final {
				return
			}
		}
	}()

	return StreamResult{Chunks: out, StatusCode: resp.StatusCode}, nil
}

// decodeAnthropicStreamEvent maps one Anthropic SSE event to a normalized
// chunk. message_start carries no content; content_block_delta carries
// text/thinking/input_json deltas; message_delta carries the stop_reason
// and (sometimes) usage; message_stop ends the stream.
func decodeAnthropicStreamEvent(ev streamdecode.Event, usage *translate.Usage) (translate.NormalizedChunk, bool, bool) {
	switch ev.Type {
	case "content_block_delta":
		var payload struct {
			Delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				Thinking    string `json:"thinking"`
				PartialJSON string `json:"partial_json"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			return translate.NormalizedChunk{}, false, false
		}
		switch payload.Delta.Type {
		case "text_delta":
			return translate.NormalizedChunk{DeltaText: payload.Delta.Text}, false, true
		case "thinking_delta":
			return translate.NormalizedChunk{ReasoningDelta: payload.Delta.Thinking}, false, true
		case "input_json_delta":
			return translate.NormalizedChunk{ToolCallDelta: &translate.ToolCall{Arguments: payload.Delta.PartialJSON}}, false, true
		}
		return translate.NormalizedChunk{}, false, false
	case "message_delta":
		var payload struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Usage struct {
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			return translate.NormalizedChunk{}, false, false
		}
		usage.CompletionTokens = payload.Usage.OutputTokens
		return translate.NormalizedChunk{
			FinishReason: anthropicFinishReason(payload.Delta.StopReason),
			Usage:        usage,
		}, false, true
	case "message_stop":
		return translate.NormalizedChunk{Done: true}, true, true
	default:
		return translate.NormalizedChunk{}, false, false
	}
}

func anthropicMessageToNormalizedMessage(blocks []translate.AnthropicContentBlock) translate.Message {
	req := translate.AnthropicToNormalized(translate.AnthropicRequest{
		Messages: []translate.AnthropicMessage{{Role: "assistant", Content: blocks}},
	})
	if len(req.Messages) == 0 {
		return translate.Message{}
	}
	return req.Messages[0]
}

func anthropicFinishReason(stopReason string) translate.FinishReason {
	switch stopReason {
	case "max_tokens":
		return translate.FinishLength
	case "tool_use":
		return translate.FinishToolCalls
	case "":
		return translate.FinishStop
	default:
		return translate.FinishStop
	}
}

func (d *AnthropicDispatcher) doRequest(ctx context.Context, cred *credpool.Credential, endpoint string, body []byte) (*http.Response, error) {
	base := cred.Data.BaseURL
	if base == "" {
		base = "https://api.anthropic.com/v1"
	}
	url := buildURLFromAnthropicBase(base, endpoint)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dispatch: build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", d.version)
	if cred.Data.Kind == credpool.DataKindOAuth {
		httpReq.Header.Set("Authorization", "Bearer "+cred.Data.AccessToken)
	} else {
		httpReq.Header.Set("x-api-key", cred.Data.Key)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch: anthropic request: %w", err)
	}
	return resp, nil
}

func buildURLFromAnthropicBase(base, endpoint string) string {
	return buildURL(base, endpoint)
}
