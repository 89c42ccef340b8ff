package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/streamdecode"
	"github.com/localgw/gatewaycore/internal/translate"
)

// BedrockDispatcher invokes Anthropic models hosted on Amazon Bedrock via
// the bedrock-runtime InvokeModel/InvokeModelWithResponseStream APIs,
// using the Anthropic Messages wire body Bedrock expects for Claude
// models (anthropic_version replaces model in the JSON body; the model ID
// goes in the path instead).
type BedrockDispatcher struct {
	region string
}

func NewBedrockDispatcher(client *http.Client, decoders *streamdecode.Factory) Dispatcher {
	return &BedrockDispatcher{region: "us-east-1"}
}

func (d *BedrockDispatcher) Family() string { return "bedrock" }

type bedrockAnthropicBody struct {
	AnthropicVersion string                          `json:"anthropic_version"`
	MaxTokens        int                             `json:"max_tokens"`
	Messages         []translate.AnthropicMessage    `json:"messages"`
	System           string                          `json:"system,omitempty"`
	Temperature      *float64                        `json:"temperature,omitempty"`
}

func (d *BedrockDispatcher) client(ctx context.Context, cred *credpool.Credential) (*bedrockruntime.Client, error) {
	region := d.region
	if cred.ProxyURL != "" {
		region = cred.ProxyURL // region override carried in the credential's ProxyURL slot
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cred.Data.Key, cred.Data.AccessToken, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load bedrock aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

func (d *BedrockDispatcher) Send(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (Result, error) {
	anthropicWire := translate.NormalizedToAnthropic(req)
	body := bedrockAnthropicBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        anthropicWire.MaxTokens,
		Messages:         anthropicWire.Messages,
		Temperature:      anthropicWire.Temperature,
	}
	if s, ok := anthropicWire.System.(string); ok {
		body.System = s
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: marshal bedrock request: %w", err)
	}

	client, err := d.client(ctx, cred)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	out, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		Body:        payload,
		ContentType: aws.String("application/json"),
	})
	latency := uint64(time.Since(start).Milliseconds())
	if err != nil {
		return Result{LatencyMS: latency}, fmt.Errorf("dispatch: bedrock invoke: %w", err)
	}

	var wireResp translate.AnthropicResponse
	if err := json.Unmarshal(out.Body, &wireResp); err != nil {
		return Result{}, fmt.Errorf("dispatch: unmarshal bedrock response: %w", err)
	}

	normalized := translate.NormalizedResponse{
		ID:           wireResp.ID,
		Model:        req.Model,
		Message:      anthropicMessageToNormalizedMessage(wireResp.Content),
		FinishReason: anthropicFinishReason(wireResp.StopReason),
		Usage: translate.Usage{
			PromptTokens:     wireResp.Usage.InputTokens,
			CompletionTokens: wireResp.Usage.OutputTokens,
			TotalTokens:      wireResp.Usage.InputTokens + wireResp.Usage.OutputTokens,
		},
	}
	return Result{Response: normalized, StatusCode: 200, LatencyMS: latency}, nil
}

func (d *BedrockDispatcher) Stream(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (StreamResult, error) {
	anthropicWire := translate.NormalizedToAnthropic(req)
	body := bedrockAnthropicBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        anthropicWire.MaxTokens,
		Messages:         anthropicWire.Messages,
		Temperature:      anthropicWire.Temperature,
	}
	if s, ok := anthropicWire.System.(string); ok {
		body.System = s
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: marshal bedrock request: %w", err)
	}

	client, err := d.client(ctx, cred)
	if err != nil {
		return StreamResult{}, err
	}

	out, err := client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(req.Model),
		Body:        payload,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return StreamResult{}, fmt.Errorf("dispatch: bedrock invoke-with-response-stream: %w", err)
	}

	chunks := make(chan translate.NormalizedChunk)
	go func() {
		defer close(chunks)
		stream := out.GetStream()
		defer stream.Close()
		var usage translate.Usage
		for event := range stream.Events() {
			chunkEvent, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			var envelope struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(chunkEvent.Value.Bytes, &envelope); err != nil {
				continue
			}
			ev := streamdecode.Event{Type: envelope.Type, Data: string(chunkEvent.Value.Bytes)}
			chunk, final, okDecode := decodeAnthropicStreamEvent(ev, &usage)
			if !okDecode {
				continue
			}
			chunks <- chunk
			if final {
				return
			}
		}
	}()

	return StreamResult{Chunks: chunks, StatusCode: 200}, nil
}
