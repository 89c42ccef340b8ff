package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicSystemStringFoldsIntoLeadingMessage(t *testing.T) {
	req := AnthropicRequest{
		Model:     "claude-3-5-sonnet",
		System:    "be terse",
		MaxTokens: 100,
		Messages: []AnthropicMessage{
			{Role: "user", Content: []AnthropicContentBlock{{Type: "text", Text: "hi"}}},
		},
	}
	out := AnthropicToNormalized(req)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, RoleSystem, out.Messages[0].Role)
	assert.Equal(t, "be terse", out.Messages[0].Text())
	assert.Equal(t, RoleUser, out.Messages[1].Role)
}

func TestAnthropicSystemBlockListFolds(t *testing.T) {
	req := AnthropicRequest{
		Model:  "claude-3-5-sonnet",
		System: []interface{}{map[string]interface{}{"type": "text", "text": "part one"}, map[string]interface{}{"type": "text", "text": "part two"}},
		Messages: []AnthropicMessage{
			{Role: "user", Content: []AnthropicContentBlock{{Type: "text", Text: "hi"}}},
		},
	}
	out := AnthropicToNormalized(req)
	assert.Equal(t, "part onepart two", out.Messages[0].Text())
}

func TestAnthropicToolUseRoundTrip(t *testing.T) {
	req := AnthropicRequest{
		Model:     "claude-3-5-sonnet",
		MaxTokens: 100,
		Messages: []AnthropicMessage{
			{Role: "assistant", Content: []AnthropicContentBlock{
				{Type: "tool_use", ID: "toolu_1", Name: "lookup", Input: json.RawMessage(`{"q":"x"}`)},
			}},
			{Role: "user", Content: []AnthropicContentBlock{
				{Type: "tool_result", ToolUseID: "toolu_1", Content: "42"},
			}},
		},
	}
	norm := AnthropicToNormalized(req)
	require.Len(t, norm.Messages, 2)
	require.Len(t, norm.Messages[0].ToolCalls, 1)
	assert.Equal(t, "toolu_1", norm.Messages[0].ToolCalls[0].ID)
	assert.Equal(t, RoleTool, norm.Messages[1].Role)
	assert.Equal(t, "toolu_1", norm.Messages[1].ToolCallID)
	assert.Equal(t, "42", norm.Messages[1].Text())

	back := NormalizedToAnthropic(norm)
	require.Len(t, back.Messages, 2)
	require.Len(t, back.Messages[0].Content, 1)
	assert.Equal(t, "tool_use", back.Messages[0].Content[0].Type)
	assert.Equal(t, "toolu_1", back.Messages[0].Content[0].ID)
	assert.Equal(t, "tool_result", back.Messages[1].Content[0].Type)
	assert.Equal(t, "toolu_1", back.Messages[1].Content[0].ToolUseID)
}

func TestNormalizedToAnthropicPullsSystemMessageOut(t *testing.T) {
	req := NormalizedRequest{
		Model:     "claude-3-5-sonnet",
		MaxTokens: 100,
		Messages: []Message{
			{Role: RoleSystem, Content: []ContentPart{{Type: PartText, Text: "be terse"}}},
			{Role: RoleUser, Content: []ContentPart{{Type: PartText, Text: "hi"}}},
		},
	}
	out := NormalizedToAnthropic(req)
	assert.Equal(t, "be terse", out.System)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "user", out.Messages[0].Role)
}

func TestAnthropicThinkingBlockRoundTrip(t *testing.T) {
	req := NormalizedRequest{
		Model:     "claude-3-5-sonnet",
		MaxTokens: 100,
		Messages: []Message{
			{Role: RoleAssistant, Content: []ContentPart{{Type: PartText, Text: "answer"}}, Reasoning: "step by step"},
		},
	}
	out := NormalizedToAnthropic(req)
	require.Len(t, out.Messages[0].Content, 2)
	assert.Equal(t, "thinking", out.Messages[0].Content[0].Type)
	assert.Equal(t, "step by step", out.Messages[0].Content[0].Thinking)
}

func TestAnthropicResponseFromNormalizedStopReason(t *testing.T) {
	resp := NormalizedResponse{
		Model:        "claude-3-5-sonnet",
		Message:      Message{Role: RoleAssistant, Content: []ContentPart{{Type: PartText, Text: "done"}}},
		FinishReason: FinishToolCalls,
	}
	out := AnthropicResponseFromNormalized("msg_1", resp)
	assert.Equal(t, "tool_use", out.StopReason)
	assert.Equal(t, "message", out.Type)
}
