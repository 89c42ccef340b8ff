package translate

import "encoding/json"

// Anthropic wire types, grounded on the messages API shape: a top-level
// system prompt (string or block list) separate from the message array,
// and tool_use/tool_result content blocks in place of OpenAI's tool_calls.

type AnthropicRequest struct {
	Model       string              `json:"model"`
	System      interface{}         `json:"system,omitempty"`
	Messages    []AnthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
	Tools       []AnthropicTool     `json:"tools,omitempty"`
	StopSeqs    []string            `json:"stop_sequences,omitempty"`
}

type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type AnthropicMessage struct {
	Role    string                    `json:"role"`
	Content []AnthropicContentBlock   `json:"content"`
}

type AnthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *AnthropicImage `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`         // tool_use id
	Name      string          `json:"name,omitempty"`       // tool_use name
	Input     json.RawMessage `json:"input,omitempty"`      // tool_use arguments
	ToolUseID string          `json:"tool_use_id,omitempty"` // tool_result linkage
	Content   interface{}     `json:"content,omitempty"`    // tool_result payload, string or blocks
	IsError   bool            `json:"is_error,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
}

type AnthropicImage struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []AnthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      AnthropicUsage          `json:"usage"`
}

// AnthropicToNormalized converts an inbound Anthropic request to the
// normalized form. A string or block-list system prompt is folded into a
// leading system message (spec §4.5); tool_use blocks become tool calls;
// tool_result blocks become their own tool-role message carrying the
// matching tool_call_id.
func AnthropicToNormalized(req AnthropicRequest) NormalizedRequest {
	out := NormalizedRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		MaxTokens:     req.MaxTokens,
		Stream:        req.Stream,
		StopSequences: req.StopSeqs,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}

	if sysText := anthropicSystemToText(req.System); sysText != "" {
		out.Messages = append(out.Messages, Message{Role: RoleSystem, Content: []ContentPart{{Type: PartText, Text: sysText}}})
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, anthropicMessageToNormalized(m)...)
	}
	return out
}

func anthropicSystemToText(system interface{}) string {
	switch v := system.(type) {
	case string:
		return v
	case []interface{}:
		out := ""
		for _, raw := range v {
			block, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := block["text"].(string); ok {
				out += text
			}
		}
		return out
	case []AnthropicContentBlock:
		out := ""
		for _, b := range v {
			out += b.Text
		}
		return out
	default:
		return ""
	}
}

// anthropicMessageToNormalized can expand into more than one normalized
// message: a single Anthropic turn mixing tool_result blocks with other
// content splits into a tool-role message per tool_result plus one
// message for the remaining content, matching how the OpenAI dialect
// models tool results as independent messages.
func anthropicMessageToNormalized(m AnthropicMessage) []Message {
	role := Role(m.Role)
	var parts []ContentPart
	var toolCalls []ToolCall
	var results []Message

	for _, block := range m.Content {
		switch block.Type {
		case "text":
			parts = append(parts, ContentPart{Type: PartText, Text: block.Text})
		case "thinking":
			// carried on the message below once assembled
		case "image":
			if block.Source != nil {
				parts = append(parts, ContentPart{Type: PartImage, ImageURL: block.Source.Data})
			}
		case "tool_use":
			toolCalls = append(toolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: string(block.Input)})
		case "tool_result":
			results = append(results, Message{
				Role:       RoleTool,
				Content:    []ContentPart{{Type: PartText, Text: anthropicToolResultText(block.Content)}},
				ToolCallID: block.ToolUseID,
			})
		}
	}

	var thinking string
	for _, block := range m.Content {
		if block.Type == "thinking" {
			thinking = block.Thinking
			break
		}
	}

	var out []Message
	if len(parts) > 0 || len(toolCalls) > 0 || thinking != "" {
		out = append(out, Message{Role: role, Content: parts, ToolCalls: toolCalls, Reasoning: thinking})
	}
	out = append(out, results...)
	return out
}

func anthropicToolResultText(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		out := ""
		for _, raw := range v {
			block, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := block["text"].(string); ok {
				out += text
			}
		}
		return out
	default:
		return ""
	}
}

// NormalizedToAnthropic builds an outbound Anthropic-dialect request. A
// leading system-role message (if present) is pulled out into the
// top-level system field; standalone tool-role messages are folded back
// into a tool_result block on a user turn, and tool calls on an
// assistant message become tool_use blocks.
func NormalizedToAnthropic(req NormalizedRequest) AnthropicRequest {
	out := AnthropicRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		MaxTokens:     req.MaxTokens,
		Stream:        req.Stream,
		StopSeqs:      req.StopSequences,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, AnthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		out.System = messages[0].Text()
		messages = messages[1:]
	}

	for _, m := range messages {
		out.Messages = append(out.Messages, normalizedMessageToAnthropic(m))
	}
	return out
}

func normalizedMessageToAnthropic(m Message) AnthropicMessage {
	if m.Role == RoleTool {
		return AnthropicMessage{
			Role: "user",
			Content: []AnthropicContentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Text(),
			}},
		}
	}

	var blocks []AnthropicContentBlock
	if m.Reasoning != "" {
		blocks = append(blocks, AnthropicContentBlock{Type: "thinking", Thinking: m.Reasoning})
	}
	for _, p := range m.Content {
		switch p.Type {
		case PartText:
			blocks = append(blocks, AnthropicContentBlock{Type: "text", Text: p.Text})
		case PartImage:
			blocks = append(blocks, AnthropicContentBlock{Type: "image", Source: &AnthropicImage{Type: "base64", Data: p.ImageURL}})
		}
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, AnthropicContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.Arguments)})
	}

	role := string(m.Role)
	if role == "" {
		role = "user"
	}
	return AnthropicMessage{Role: role, Content: blocks}
}

// AnthropicResponseFromNormalized builds the outbound (client-facing)
// Anthropic-dialect response envelope from a normalized response.
func AnthropicResponseFromNormalized(id string, resp NormalizedResponse) AnthropicResponse {
	msg := normalizedMessageToAnthropic(resp.Message)
	return AnthropicResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Model:      resp.Model,
		Content:    msg.Content,
		StopReason: anthropicStopReason(resp.FinishReason),
		Usage: AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}

func anthropicStopReason(f FinishReason) string {
	switch f {
	case FinishStop:
		return "end_turn"
	case FinishLength:
		return "max_tokens"
	case FinishToolCalls:
		return "tool_use"
	default:
		return "end_turn"
	}
}
