package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/streamdecode"
	"github.com/localgw/gatewaycore/internal/translate"
)

// KiroDispatcher talks to the Kiro (CodeWhisperer) streaming endpoint,
// which wraps Anthropic-shaped message content in AWS event-stream
// framing over HTTP rather than SigV4-signed bedrock-runtime calls. Falls
// back to the anthropic family (spec's fixed fallback map) when Kiro's
// own pool is exhausted, handled by the balancer rather than here.
type KiroDispatcher struct {
	client *http.Client
}

func NewKiroDispatcher(client *http.Client, decoders *streamdecode.Factory) Dispatcher {
	return &KiroDispatcher{client: client}
}

func (d *KiroDispatcher) Family() string { return "kiro" }

func (d *KiroDispatcher) Send(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (Result, error) {
	stream, err := d.Stream(ctx, cred, req)
	if err != nil {
		return Result{}, err
	}
	var text, reasoning string
	var finish translate.FinishReason
	var usage translate.Usage
	for chunk := range stream.Chunks {
		text += chunk.DeltaText
		reasoning += chunk.ReasoningDelta
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}
	return Result{
		Response: translate.NormalizedResponse{
			Model:        req.Model,
			Message:      translate.Message{Role: translate.RoleAssistant, Content: []translate.ContentPart{{Type: translate.PartText, Text: text}}, Reasoning: reasoning},
			FinishReason: finish,
			Usage:        usage,
		},
		StatusCode: stream.StatusCode,
	}, nil
}

func (d *KiroDispatcher) Stream(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (StreamResult, error) {
	anthropicWire := translate.NormalizedToAnthropic(req)
	payload, err := json.Marshal(anthropicWire)
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: marshal kiro request: %w", err)
	}

	base := cred.Data.BaseURL
	if base == "" {
		base = "https://codewhisperer.us-east-1.amazonaws.com"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/generateAssistantResponse", bytes.NewReader(payload))
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: build kiro request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-amz-json-1.1")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Data.AccessToken)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: kiro request: %w", err)
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return StreamResult{StatusCode: resp.StatusCode}, fmt.Errorf("dispatch: kiro status %d: %s", resp.StatusCode, raw)
	}

	out := make(chan translate.NormalizedChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		dec := streamdecode.NewEventStreamDecoder()
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
