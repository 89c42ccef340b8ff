package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/streamdecode"
	"github.com/localgw/gatewaycore/internal/translate"
)

// VertexDispatcher talks to Vertex AI's publisher-model endpoints, using a
// service-account JWT assertion exchanged for a short-lived OAuth access
// token (the flow a service account follows when no user is present to
// complete a browser consent screen). The body shape mirrors the
// Generative Language API's, reused from the Gemini dispatcher.
//
// A credential's Data fields are repurposed for the service account: Key
// holds client_email, RefreshToken holds the PEM private key, BaseURL
// holds the project/location-qualified Vertex endpoint prefix (e.g.
// https://us-central1-aiplatform.googleapis.com/v1/projects/p/locations/us-central1).
type VertexDispatcher struct {
	client *http.Client

	mu     sync.Mutex
	tokens map[string]vertexToken // keyed by credential ID
}

type vertexToken struct {
	accessToken string
	expiresAt   time.Time
}

func NewVertexDispatcher(client *http.Client, decoders *streamdecode.Factory) Dispatcher {
	return &VertexDispatcher{client: client, tokens: make(map[string]vertexToken)}
}

func (d *VertexDispatcher) Family() string { return "vertex" }

const vertexTokenAudience = "https://oauth2.googleapis.com/token"
const vertexScope = "https://www.googleapis.com/auth/cloud-platform"

func (d *VertexDispatcher) accessToken(ctx context.Context, cred *credpool.Credential) (string, error) {
	d.mu.Lock()
	if tok, ok := d.tokens[cred.ID]; ok && time.Now().Before(tok.expiresAt) {
		d.mu.Unlock()
		return tok.accessToken, nil
	}
	d.mu.Unlock()

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cred.Data.RefreshToken))
	if err != nil {
		return "", fmt.Errorf("dispatch: parse vertex service-account key: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   cred.Data.Key,
		"scope": vertexScope,
		"aud":   vertexTokenAudience,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("dispatch: sign vertex jwt assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, vertexTokenAudience, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return "", fmt.Errorf("dispatch: build vertex token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("dispatch: vertex token exchange: %w", err)
	}
	defer resp.Body.Close()

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("dispatch: decode vertex token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("dispatch: vertex token exchange returned no access_token")
	}

	d.mu.Lock()
	d.tokens[cred.ID] = vertexToken{
		accessToken: tokenResp.AccessToken,
		expiresAt:   now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second).Add(-tokencacheRefreshSkew),
	}
	d.mu.Unlock()

	return tokenResp.AccessToken, nil
}

// tokencacheRefreshSkew mirrors internal/tokencache.RefreshSkew without
// importing the package, since the unit here (service-account JWT-bearer
// exchange) is a different mechanism from the stored-credential refresh
// tokencache coalesces.
const tokencacheRefreshSkew = 60 * time.Second

func (d *VertexDispatcher) Send(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (Result, error) {
	token, err := d.accessToken(ctx, cred)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(normalizedToGeminiRequest(req))
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: marshal vertex request: %w", err)
	}

	start := time.Now()
	resp, err := d.doRequest(ctx, cred, token, req.Model, "generateContent", body)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	latency := uint64(time.Since(start).Milliseconds())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: read vertex response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{StatusCode: resp.StatusCode, LatencyMS: latency}, fmt.Errorf("dispatch: vertex status %d: %s", resp.StatusCode, raw)
	}

	var wireResp geminiResponse
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return Result{}, fmt.Errorf("dispatch: unmarshal vertex response: %w", err)
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

func (d *VertexDispatcher) Stream(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (StreamResult, error) {
	token, err := d.accessToken(ctx, cred)
	if err != nil {
		return StreamResult{}, err
	}
	body, err := json.Marshal(normalizedToGeminiRequest(req))
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: marshal vertex request: %w", err)
	}

	resp, err := d.doRequest(ctx, cred, token, req.Model, "streamGenerateContent?alt=sse", body)
	if err != nil {
		return StreamResult{}, err
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return StreamResult{StatusCode: resp.StatusCode}, fmt.Errorf("dispatch: vertex status %d: %s", resp.StatusCode, raw)
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

func (d *VertexDispatcher) doRequest(ctx context.Context, cred *credpool.Credential, token, model, action string, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/publishers/google/models/%s:%s", cred.Data.BaseURL, model, action)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dispatch: build vertex request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch: vertex request: %w", err)
	}
	return resp, nil
}
