package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/streamdecode"
	"github.com/localgw/gatewaycore/internal/translate"
)

// OpenAIDispatcher talks to OpenAI and OpenAI-compatible relays (DeepSeek,
// bigmodel.cn, local vLLM/llama.cpp servers, etc). Generic-relay base URLs
// get the version-segment normalization-with-fallback ported from
// openai_custom.rs: a base URL ending in /v1 (or /v2, /v3...) is used
// as-is; one without a version segment gets /v1 appended; if that 404s,
// the request is retried once against the base URL with no /v1 at all.
type OpenAIDispatcher struct {
	client   *http.Client
	decoders *streamdecode.Factory
}

func NewOpenAIDispatcher(client *http.Client, decoders *streamdecode.Factory) Dispatcher {
	return &OpenAIDispatcher{client: client, decoders: decoders}
}

func (d *OpenAIDispatcher) Family() string { return "openai" }

var versionSegment = regexp.MustCompile(`^v[0-9]+$`)

// buildURL implements the has-version-segment check from openai_custom.rs's
// build_url: a trailing /vN path segment means the base already carries an
// API version, so the endpoint is appended directly instead of under /v1.
func buildURL(baseURL, endpoint string) string {
	base := strings.TrimRight(baseURL, "/")
	segments := strings.Split(base, "/")
	last := segments[len(segments)-1]
	if versionSegment.MatchString(last) {
		return base + "/" + endpoint
	}
	return base + "/v1/" + endpoint
}

// buildURLWithoutV1 strips a /v1/ segment from an already-built URL, used
// as the one-shot fallback when the versioned path 404s (spec Open
// Question #3's sibling: a URL-shape retry, not a network retry).
func buildURLWithoutV1(url string) (string, bool) {
	if idx := strings.Index(url, "/v1/"); idx >= 0 {
		return url[:idx] + "/" + url[idx+len("/v1/"):], true
	}
	return "", false
}

func (d *OpenAIDispatcher) Send(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (Result, error) {
	wire := translate.NormalizedToOpenAI(req)
	wire.Stream = false
	body, err := json.Marshal(wire)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: marshal openai request: %w", err)
	}

	resp, latency, err := d.doWithFallback(ctx, cred, "chat/completions", body)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: read openai response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{StatusCode: resp.StatusCode, LatencyMS: latency}, fmt.Errorf("dispatch: openai status %d: %s", resp.StatusCode, raw)
	}

	var wireResp translate.OpenAIResponse
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return Result{}, fmt.Errorf("dispatch: unmarshal openai response: %w", err)
	}

	normalized := translate.NormalizedResponse{ID: wireResp.ID, Model: wireResp.Model}
	if len(wireResp.Choices) > 0 {
		choice := wireResp.Choices[0]
		normalized.Message = openAIMessageToNormalizedMessage(choice.Message)
		normalized.FinishReason = openAIFinishReason(choice.FinishReason)
	}
	normalized.Usage = translate.Usage{
		PromptTokens:     wireResp.Usage.PromptTokens,
		CompletionTokens: wireResp.Usage.CompletionTokens,
		TotalTokens:      wireResp.Usage.TotalTokens,
	}

	return Result{Response: normalized, StatusCode: resp.StatusCode, LatencyMS: latency}, nil
}

func (d *OpenAIDispatcher) Stream(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (StreamResult, error) {
	wire := translate.NormalizedToOpenAI(req)
	wire.Stream = true
	body, err := json.Marshal(wire)
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: marshal openai request: %w", err)
	}

	resp, _, err := d.doWithFallback(ctx, cred, "chat/completions", body)
	if err != nil {
		return StreamResult{}, err
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return StreamResult{StatusCode: resp.StatusCode}, fmt.Errorf("dispatch: openai status %d: %s", resp.StatusCode, raw)
	}

	out := make(chan translate.NormalizedChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		dec := streamdecode.NewSSEDecoder()
		for {
			ev, err := dec.Decode(resp.Body)
			if err == io.EOF {
				return
			}
			if err != nil {
				return
			}
			if ev.Data == "[DONE]" {
				return
			}
			var delta openAIStreamChunk
			if err := json.Unmarshal([]byte(ev.Data), &delta); err != nil {
				continue
			}
			out <- delta.toNormalizedChunk()
		}
	}()

	return StreamResult{Chunks: out, StatusCode: resp.StatusCode}, nil
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string                   `json:"content"`
			Reasoning        string                   `json:"reasoning"`
			ReasoningContent string                   `json:"reasoning_content"`
			ToolCalls        []translate.OpenAIToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *translate.OpenAIUsage `json:"usage"`
}

func (c openAIStreamChunk) toNormalizedChunk() translate.NormalizedChunk {
	chunk := translate.NormalizedChunk{}
	if len(c.Choices) > 0 {
		choice := c.Choices[0]
		chunk.DeltaText = choice.Delta.Content
		if choice.Delta.Reasoning != "" {
			chunk.ReasoningDelta = choice.Delta.Reasoning
		} else {
			chunk.ReasoningDelta = choice.Delta.ReasoningContent
		}
		if len(choice.Delta.ToolCalls) > 0 {
			tc := choice.Delta.ToolCalls[0]
			chunk.ToolCallDelta = &translate.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		}
		if choice.FinishReason != "" {
			chunk.FinishReason = openAIFinishReason(choice.FinishReason)
			chunk.Done = true
		}
	}
	if c.Usage != nil {
		chunk.Usage = &translate.Usage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		}
	}
	return chunk
}

func openAIMessageToNormalizedMessage(m translate.OpenAIMessage) translate.Message {
	req := translate.OpenAIToNormalized(translate.OpenAIRequest{Messages: []translate.OpenAIMessage{m}})
	if len(req.Messages) == 0 {
		return translate.Message{}
	}
	return req.Messages[0]
}

func openAIFinishReason(reason string) translate.FinishReason {
	switch reason {
	case "length":
		return translate.FinishLength
	case "tool_calls":
		return translate.FinishToolCalls
	case "":
		return translate.FinishStop
	default:
		return translate.FinishStop
	}
}

// doWithFallback issues the request against the version-normalized URL; on
// a 404 it retries once against the no-/v1 fallback URL, matching
// openai_custom.rs's build_url_fallback_without_v1 behavior for relays
// that don't follow the /v1 convention.
func (d *OpenAIDispatcher) doWithFallback(ctx context.Context, cred *credpool.Credential, endpoint string, body []byte) (*http.Response, uint64, error) {
	base := cred.Data.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	url := buildURL(base, endpoint)

	start := time.Now()
	resp, err := d.doRequest(ctx, cred, url, body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode == http.StatusNotFound {
		if fallbackURL, ok := buildURLWithoutV1(url); ok {
			resp.Body.Close()
			resp, err = d.doRequest(ctx, cred, fallbackURL, body)
			if err != nil {
				return nil, 0, err
			}
		}
	}
	latency := uint64(time.Since(start).Milliseconds())
	return resp, latency, nil
}

func (d *OpenAIDispatcher) doRequest(ctx context.Context, cred *credpool.Credential, url string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dispatch: build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credentialToken(cred))

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch: openai request: %w", err)
	}
	return resp, nil
}

func credentialToken(cred *credpool.Credential) string {
	if cred.Data.Kind == credpool.DataKindOAuth {
		return cred.Data.AccessToken
	}
	return cred.Data.Key
}
