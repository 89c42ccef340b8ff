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

// GeminiDispatcher talks to the Generative Language API
// (generativelanguage.googleapis.com), used by the gemini-apikey family
// and, with an OAuth bearer instead of the x-goog-api-key header, by the
// gemini-oauth and antigravity families.
type GeminiDispatcher struct {
	client *http.Client
}

func NewGeminiDispatcher(client *http.Client, decoders *streamdecode.Factory) Dispatcher {
	return &GeminiDispatcher{client: client}
}

func (d *GeminiDispatcher) Family() string { return "gemini-apikey" }

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
}

func normalizedToGeminiRequest(req translate.NormalizedRequest) geminiRequest {
	out := geminiRequest{}
	for _, m := range req.Messages {
		if m.Role == translate.RoleSystem {
			out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Text()}}}
			continue
		}
		role := "user"
		if m.Role == translate.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Text()}}})
	}
	return out
}

func (d *GeminiDispatcher) Send(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (Result, error) {
	body, err := json.Marshal(normalizedToGeminiRequest(req))
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: marshal gemini request: %w", err)
	}

	start := time.Now()
	resp, err := d.doRequest(ctx, cred, req.Model, "generateContent", body)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	latency := uint64(time.Since(start).Milliseconds())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: read gemini response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{StatusCode: resp.StatusCode, LatencyMS: latency}, fmt.Errorf("dispatch: gemini status %d: %s", resp.StatusCode, raw)
	}

	var wireResp geminiResponse
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return Result{}, fmt.Errorf("dispatch: unmarshal gemini response: %w", err)
	}

	normalized := translate.NormalizedResponse{Model: req.Model}
	if len(wireResp.Candidates) > 0 {
		cand := wireResp.Candidates[0]
		text := ""
		for _, p := range cand.Content.Parts {
			text += p.Text
		}
		normalized.Message = translate.Message{Role: translate.RoleAssistant, Content: []translate.ContentPart{{Type: translate.PartText, Text: text}}}
		normalized.FinishReason = geminiFinishReason(cand.FinishReason)
	}
	normalized.Usage = translate.Usage{
		PromptTokens:     wireResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: wireResp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      wireResp.UsageMetadata.TotalTokenCount,
	}

	return Result{Response: normalized, StatusCode: resp.StatusCode, LatencyMS: latency}, nil
}

func (d *GeminiDispatcher) Stream(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (StreamResult, error) {
	body, err := json.Marshal(normalizedToGeminiRequest(req))
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: marshal gemini request: %w", err)
	}

	resp, err := d.doRequest(ctx, cred, req.Model, "streamGenerateContent?alt=sse", body)
	if err != nil {
		return StreamResult{}, err
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return StreamResult{StatusCode: resp.StatusCode}, fmt.Errorf("dispatch: gemini status %d: %s", resp.StatusCode, raw)
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
			var wireResp geminiResponse
			if err := json.Unmarshal([]byte(ev.Data), &wireResp); err != nil {
				continue
			}
			chunk := translate.NormalizedChunk{}
			if len(wireResp.Candidates) > 0 {
				cand := wireResp.Candidates[0]
				for _, p := range cand.Content.Parts {
					chunk.DeltaText += p.Text
				}
				if cand.FinishReason != "" {
					chunk.FinishReason = geminiFinishReason(cand.FinishReason)
					chunk.Done = true
				}
			}
			out <- chunk
		}
	}()

	return StreamResult{Chunks: out, StatusCode: resp.StatusCode}, nil
}

func geminiFinishReason(reason string) translate.FinishReason {
	switch reason {
	case "MAX_TOKENS":
		return translate.FinishLength
	case "STOP", "":
		return translate.FinishStop
	default:
		return translate.FinishStop
	}
}

func (d *GeminiDispatcher) doRequest(ctx context.Context, cred *credpool.Credential, model, action string, body []byte) (*http.Response, error) {
	base := cred.Data.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	url := fmt.Sprintf("%s/models/%s:%s", base, model, action)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dispatch: build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cred.Data.Kind == credpool.DataKindOAuth {
		httpReq.Header.Set("Authorization", "Bearer "+cred.Data.AccessToken)
	} else {
		httpReq.Header.Set("x-goog-api-key", cred.Data.Key)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch: gemini request: %w", err)
	}
	return resp, nil
}
