package translate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenAIStreamEncoderEmitsRoleOnFirstChunkOnly(t *testing.T) {
	enc := NewOpenAIStreamEncoder("chatcmpl-1", "gpt-4o")

	first := string(enc.Encode(NormalizedChunk{DeltaText: "hel"}))
	assert.Contains(t, first, `"role":"assistant"`)
	assert.Contains(t, first, `"content":"hel"`)

	second := string(enc.Encode(NormalizedChunk{DeltaText: "lo"}))
	assert.NotContains(t, second, `"role"`)
	assert.Contains(t, second, `"content":"lo"`)
}

func TestOpenAIStreamEncoderTerminatesWithDone(t *testing.T) {
	enc := NewOpenAIStreamEncoder("chatcmpl-1", "gpt-4o")
	out := string(enc.Encode(NormalizedChunk{
		Done:         true,
		FinishReason: FinishStop,
		Usage:        &Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}))
	assert.Contains(t, out, `"finish_reason":"stop"`)
	assert.Contains(t, out, `"total_tokens":8`)
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))
}

func TestAnthropicStreamEncoderEmitsEventSequence(t *testing.T) {
	enc := NewAnthropicStreamEncoder("msg_1", "claude-sonnet-4-5")

	start := string(enc.Encode(NormalizedChunk{DeltaText: "hi"}))
	assert.Contains(t, start, "event: message_start")
	assert.Contains(t, start, "event: content_block_start")
	assert.Contains(t, start, "event: content_block_delta")
	assert.Contains(t, start, `"text":"hi"`)

	done := string(enc.Encode(NormalizedChunk{
		Done:         true,
		FinishReason: FinishStop,
		Usage:        &Usage{PromptTokens: 2, CompletionTokens: 4},
	}))
	assert.Contains(t, done, "event: content_block_stop")
	assert.Contains(t, done, "event: message_delta")
	assert.Contains(t, done, "event: message_stop")
	assert.Contains(t, done, `"output_tokens":4`)
}

func TestAnthropicStreamEncoderHandlesToolCallBlock(t *testing.T) {
	enc := NewAnthropicStreamEncoder("msg_1", "claude-sonnet-4-5")
	_ = enc.Encode(NormalizedChunk{DeltaText: "thinking"})

	out := string(enc.Encode(NormalizedChunk{
		ToolCallDelta: &ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{"city":"nyc"}`},
	}))
	assert.Contains(t, out, "event: content_block_stop")
	assert.Contains(t, out, `"type":"tool_use"`)
	assert.Contains(t, out, `"partial_json":"{\"city\":\"nyc\"}"`)
}
