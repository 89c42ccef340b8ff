// Package translate converts between the OpenAI chat-completions dialect,
// the Anthropic messages dialect, and a protocol-independent normalized
// form, applying the reasoning-content rule along the way.
package translate

// Role identifies the speaker of a normalized message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType distinguishes the kinds of normalized content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one piece of a (possibly multimodal) message body.
type ContentPart struct {
	Type     PartType
	Text     string
	ImageURL string
}

// ToolCall is a model-issued function invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded arguments, dialect-agnostic
}

// Message is one turn in the normalized conversation history.
type Message struct {
	Role       Role
	Content    []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string // set on RoleTool messages, matches the originating ToolCall.ID
	Reasoning  string // present only on assistant messages from a reasoning-class model
}

// Text returns the concatenation of all text parts, the common case for
// single-part messages.
func (m Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	if len(m.Content) == 1 && m.Content[0].Type == PartText {
		return m.Content[0].Text
	}
	out := ""
	for _, p := range m.Content {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// Tool is a function definition offered to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// NormalizedRequest is the protocol-independent form produced by the
// inbound half of the translator and consumed by the dispatcher.
type NormalizedRequest struct {
	Model           string
	Messages        []Message
	Tools           []Tool
	Temperature     *float64
	MaxTokens       int
	Stream          bool
	ReasoningEffort string
	StopSequences   []string
	TopP            *float64
}

// FinishReason is the dialect-agnostic reason generation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// Usage carries token accounting, accumulated across a stream and emitted
// on the terminal chunk.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NormalizedResponse is a complete (non-streamed) model response.
type NormalizedResponse struct {
	ID           string
	Model        string
	Message      Message
	FinishReason FinishReason
	Usage        Usage
}

// NormalizedChunk is one piece of a streamed response.
type NormalizedChunk struct {
	DeltaText      string
	ToolCallDelta  *ToolCall
	ReasoningDelta string
	Usage          *Usage
	FinishReason   FinishReason
	Done           bool
}
