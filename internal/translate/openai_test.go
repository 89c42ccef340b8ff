package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIToNormalizedSimpleText(t *testing.T) {
	req := OpenAIRequest{
		Model: "gpt-4o",
		Messages: []OpenAIMessage{
			{Role: "user", Content: "hello"},
		},
	}
	out := OpenAIToNormalized(req)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, RoleUser, out.Messages[0].Role)
	assert.Equal(t, "hello", out.Messages[0].Text())
}

func TestOpenAIToolCallRoundTrip(t *testing.T) {
	req := OpenAIRequest{
		Model: "gpt-4o",
		Messages: []OpenAIMessage{
			{Role: "assistant", ToolCalls: []OpenAIToolCall{
				{ID: "call_1", Type: "function", Function: OpenAIToolCallFunction{Name: "lookup", Arguments: `{"q":"x"}`}},
			}},
			{Role: "tool", ToolCallID: "call_1", Content: "42"},
		},
	}
	norm := OpenAIToNormalized(req)
	require.Len(t, norm.Messages, 2)
	require.Len(t, norm.Messages[0].ToolCalls, 1)
	assert.Equal(t, "call_1", norm.Messages[0].ToolCalls[0].ID)
	assert.Equal(t, "call_1", norm.Messages[1].ToolCallID)

	back := NormalizedToOpenAI(norm)
	require.Len(t, back.Messages, 2)
	require.Len(t, back.Messages[0].ToolCalls, 1)
	assert.Equal(t, "call_1", back.Messages[0].ToolCalls[0].ID)
	assert.Equal(t, "call_1", back.Messages[1].ToolCallID)
}

func TestNormalizedToOpenAIStripsReasoningForNonReasoningModel(t *testing.T) {
	req := NormalizedRequest{
		Model: "gpt-4o",
		Messages: []Message{
			{Role: RoleAssistant, Content: []ContentPart{{Type: PartText, Text: "hi"}}, Reasoning: "because"},
		},
	}
	out := NormalizedToOpenAI(req)
	assert.Empty(t, out.Messages[0].Reasoning)
}

func TestNormalizedToOpenAIKeepsReasoningOnLastAssistantMessage(t *testing.T) {
	req := NormalizedRequest{
		Model: "o3-mini",
		Messages: []Message{
			{Role: RoleAssistant, Content: []ContentPart{{Type: PartText, Text: "first"}}, Reasoning: "r1"},
			{Role: RoleUser, Content: []ContentPart{{Type: PartText, Text: "more"}}},
			{Role: RoleAssistant, Content: []ContentPart{{Type: PartText, Text: "second"}}, Reasoning: "r2"},
		},
	}
	out := NormalizedToOpenAI(req)
	assert.Empty(t, out.Messages[0].Reasoning)
	assert.Equal(t, "r2", out.Messages[2].Reasoning)
}

func TestOpenAIMultimodalContent(t *testing.T) {
	req := OpenAIRequest{
		Model: "gpt-4o",
		Messages: []OpenAIMessage{
			{Role: "user", Content: []interface{}{
				map[string]interface{}{"type": "text", "text": "describe this"},
				map[string]interface{}{"type": "image_url", "image_url": map[string]interface{}{"url": "data:image/png;base64,xyz"}},
			}},
		},
	}
	out := OpenAIToNormalized(req)
	require.Len(t, out.Messages[0].Content, 2)
	assert.Equal(t, PartText, out.Messages[0].Content[0].Type)
	assert.Equal(t, PartImage, out.Messages[0].Content[1].Type)
	assert.Equal(t, "data:image/png;base64,xyz", out.Messages[0].Content[1].ImageURL)
}
