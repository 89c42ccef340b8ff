package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildURLAddsV1WhenMissing(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", buildURL("https://api.openai.com", "chat/completions"))
}

func TestBuildURLKeepsExistingVersionSegment(t *testing.T) {
	assert.Equal(t, "https://open.bigmodel.cn/api/paas/v4/chat/completions", buildURL("https://open.bigmodel.cn/api/paas/v4", "chat/completions"))
}

func TestBuildURLHandlesTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://api.deepseek.com/v1/chat/completions", buildURL("https://api.deepseek.com/v1/", "chat/completions"))
}

func TestBuildURLWithoutV1Fallback(t *testing.T) {
	fallback, ok := buildURLWithoutV1("https://example.com/v1/chat/completions")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/chat/completions", fallback)
}

func TestBuildURLWithoutV1NoVersionSegment(t *testing.T) {
	_, ok := buildURLWithoutV1("https://example.com/api/paas/v4/chat/completions")
	assert.False(t, ok)
}

func TestOpenAIFinishReasonMapping(t *testing.T) {
	assert.Equal(t, "stop", string(openAIFinishReason("")))
	assert.Equal(t, "length", string(openAIFinishReason("length")))
	assert.Equal(t, "tool_calls", string(openAIFinishReason("tool_calls")))
}
