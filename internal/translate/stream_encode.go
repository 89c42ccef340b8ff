package translate

import "encoding/json"

// OpenAI streaming wire types (chat.completion.chunk), kept separate from
// the non-streamed OpenAIResponse since the delta shape differs from the
// full message shape.

type openAIChunkWire struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Model   string             `json:"model"`
	Choices []openAIChunkChoice `json:"choices"`
	Usage   *OpenAIUsage       `json:"usage,omitempty"`
}

type openAIChunkChoice struct {
	Index        int              `json:"index"`
	Delta        openAIChunkDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

type openAIChunkDelta struct {
	Role             string           `json:"role,omitempty"`
	Content          string           `json:"content,omitempty"`
	Reasoning        string           `json:"reasoning,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []OpenAIToolCall `json:"tool_calls,omitempty"`
}

// OpenAIStreamEncoder renders a sequence of NormalizedChunks as the
// OpenAI chat.completion.chunk SSE frames, grounded on the wire shape
// OpenAIResponseFromNormalized produces for the non-streamed case.
type OpenAIStreamEncoder struct {
	id          string
	model       string
	sentRole    bool
	toolCallIdx int
}

func NewOpenAIStreamEncoder(id, model string) *OpenAIStreamEncoder {
	return &OpenAIStreamEncoder{id: id, model: model}
}

// Encode renders one SSE frame ("data: {...}\n\n") for chunk. The final
// chunk (Done) additionally produces a "data: [DONE]\n\n" terminator.
func (e *OpenAIStreamEncoder) Encode(chunk NormalizedChunk) []byte {
	delta := openAIChunkDelta{
		Content:          chunk.DeltaText,
		ReasoningContent: chunk.ReasoningDelta,
	}
	if !e.sentRole {
		delta.Role = "assistant"
		e.sentRole = true
	}
	if chunk.ToolCallDelta != nil {
		tc := *chunk.ToolCallDelta
		delta.ToolCalls = []OpenAIToolCall{{
			ID:       tc.ID,
			Type:     "function",
			Function: OpenAIToolCallFunction{Name: tc.Name, Arguments: tc.Arguments},
		}}
		e.toolCallIdx++
	}

	var finish *string
	if chunk.FinishReason != "" {
		s := openAIFinishReasonString(chunk.FinishReason)
		finish = &s
	}

	wire := openAIChunkWire{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Model:   e.model,
		Choices: []openAIChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
	if chunk.Usage != nil {
		wire.Usage = &OpenAIUsage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}

	out := sseFrame(wire)
	if chunk.Done {
		out = append(out, []byte("data: [DONE]\n\n")...)
	}
	return out
}

func openAIFinishReasonString(f FinishReason) string {
	switch f {
	case FinishToolCalls:
		return "tool_calls"
	case FinishLength:
		return "length"
	case FinishError:
		return "stop"
	default:
		return "stop"
	}
}

// Anthropic streaming wire types: the messages API emits a sequence of
// named events rather than one uniform chunk shape.

type anthropicEventMessageStart struct {
	Type    string            `json:"type"`
	Message anthropicStreamMsg `json:"message"`
}

type anthropicStreamMsg struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Model   string         `json:"model"`
	Content []interface{}  `json:"content"`
	Usage   AnthropicUsage `json:"usage"`
}

type anthropicEventBlockStart struct {
	Type         string              `json:"type"`
	Index        int                 `json:"index"`
	ContentBlock anthropicBlockStart `json:"content_block"`
}

type anthropicBlockStart struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

type anthropicEventBlockDelta struct {
	Type  string              `json:"type"`
	Index int                 `json:"index"`
	Delta anthropicBlockDelta `json:"delta"`
}

type anthropicBlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type anthropicEventBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type anthropicEventMessageDelta struct {
	Type  string                    `json:"type"`
	Delta anthropicMessageDeltaBody `json:"delta"`
	Usage AnthropicUsage            `json:"usage"`
}

type anthropicMessageDeltaBody struct {
	StopReason string `json:"stop_reason"`
}

type anthropicEventMessageStop struct {
	Type string `json:"type"`
}

// AnthropicStreamEncoder renders NormalizedChunks as the Anthropic
// messages API's typed SSE event sequence (message_start,
// content_block_start/delta/stop, message_delta, message_stop), grounded
// on spec §6.1's enumerated event names.
type AnthropicStreamEncoder struct {
	id           string
	model        string
	startSent    bool
	blockOpen    bool
	toolBlockOpen bool
	blockIndex   int
	usage        Usage
}

func NewAnthropicStreamEncoder(id, model string) *AnthropicStreamEncoder {
	return &AnthropicStreamEncoder{id: id, model: model}
}

// Encode renders zero or more SSE frames for chunk, returning them
// concatenated in emission order.
func (e *AnthropicStreamEncoder) Encode(chunk NormalizedChunk) []byte {
	var out []byte

	if !e.startSent {
		out = append(out, sseEvent("message_start", anthropicEventMessageStart{
			Type: "message_start",
			Message: anthropicStreamMsg{
				ID:      e.id,
				Type:    "message",
				Role:    "assistant",
				Model:   e.model,
				Content: []interface{}{},
			},
		})...)
		e.startSent = true
	}

	if chunk.DeltaText != "" || chunk.ReasoningDelta != "" {
		if !e.blockOpen {
			out = append(out, sseEvent("content_block_start", anthropicEventBlockStart{
				Type:         "content_block_start",
				Index:        e.blockIndex,
				ContentBlock: anthropicBlockStart{Type: "text"},
			})...)
			e.blockOpen = true
		}
		text := chunk.DeltaText
		if text == "" {
			text = chunk.ReasoningDelta
		}
		out = append(out, sseEvent("content_block_delta", anthropicEventBlockDelta{
			Type:  "content_block_delta",
			Index: e.blockIndex,
			Delta: anthropicBlockDelta{Type: "text_delta", Text: text},
		})...)
	}

	if chunk.ToolCallDelta != nil {
		e.closeOpenBlockLocked(&out)
		tc := *chunk.ToolCallDelta
		out = append(out, sseEvent("content_block_start", anthropicEventBlockStart{
			Type:  "content_block_start",
			Index: e.blockIndex,
			ContentBlock: anthropicBlockStart{
				Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: map[string]interface{}{},
			},
		})...)
		out = append(out, sseEvent("content_block_delta", anthropicEventBlockDelta{
			Type:  "content_block_delta",
			Index: e.blockIndex,
			Delta: anthropicBlockDelta{Type: "input_json_delta", PartialJSON: tc.Arguments},
		})...)
		e.toolBlockOpen = true
	}

	if chunk.Usage != nil {
		e.usage = *chunk.Usage
	}

	if chunk.Done {
		e.closeOpenBlockLocked(&out)
		out = append(out, sseEvent("message_delta", anthropicEventMessageDelta{
			Type:  "message_delta",
			Delta: anthropicMessageDeltaBody{StopReason: anthropicStopReason(chunk.FinishReason)},
			Usage: AnthropicUsage{InputTokens: e.usage.PromptTokens, OutputTokens: e.usage.CompletionTokens},
		})...)
		out = append(out, sseEvent("message_stop", anthropicEventMessageStop{Type: "message_stop"})...)
	}

	return out
}

func (e *AnthropicStreamEncoder) closeOpenBlockLocked(out *[]byte) {
	if e.blockOpen || e.toolBlockOpen {
		*out = append(*out, sseEvent("content_block_stop", anthropicEventBlockStop{
			Type: "content_block_stop", Index: e.blockIndex,
		})...)
		e.blockOpen = false
		e.toolBlockOpen = false
		e.blockIndex++
	}
}

// sseFrame renders v as an unnamed "data: {...}\n\n" frame, used by
// dialects (OpenAI) whose stream has no named event types.
func sseFrame(v interface{}) []byte {
	body, _ := json.Marshal(v)
	out := make([]byte, 0, len(body)+8)
	out = append(out, "data: "...)
	out = append(out, body...)
	out = append(out, '\n', '\n')
	return out
}

// sseEvent renders v as a named "event: <name>\ndata: {...}\n\n" frame.
func sseEvent(name string, v interface{}) []byte {
	body, _ := json.Marshal(v)
	out := make([]byte, 0, len(body)+len(name)+16)
	out = append(out, "event: "...)
	out = append(out, name...)
	out = append(out, '\n')
	out = append(out, "data: "...)
	out = append(out, body...)
	out = append(out, '\n', '\n')
	return out
}
