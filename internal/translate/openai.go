package translate

// OpenAI wire types, grounded on the shapes used by the chat-completions
// API. Kept distinct from the normalized form so a malformed or
// unrecognized field on the wire never leaks into routing/balancer logic.

type OpenAIRequest struct {
	Model             string                 `json:"model"`
	Messages          []OpenAIMessage        `json:"messages"`
	MaxTokens         int                    `json:"max_tokens,omitempty"`
	Temperature       *float64               `json:"temperature,omitempty"`
	TopP              *float64               `json:"top_p,omitempty"`
	Stream            bool                   `json:"stream,omitempty"`
	Tools             []OpenAITool           `json:"tools,omitempty"`
	Stop              []string               `json:"stop,omitempty"`
	ReasoningEffort   string                 `json:"reasoning_effort,omitempty"`
	ResponseFormat    map[string]interface{} `json:"response_format,omitempty"`
}

type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIFunctionDef  `json:"function"`
}

type OpenAIFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type OpenAIMessage struct {
	Role             string           `json:"role"`
	Content          interface{}      `json:"content"`
	Reasoning        string           `json:"reasoning,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string           `json:"tool_call_id,omitempty"`
}

type OpenAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

type OpenAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type OpenAIToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function OpenAIToolCallFunction `json:"function"`
}

type OpenAIToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type OpenAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIToNormalized converts an inbound OpenAI request to the normalized
// form. Message content may be a bare string or a list of content parts;
// tool calls carry over as-is (spec §4.5).
func OpenAIToNormalized(req OpenAIRequest) NormalizedRequest {
	out := NormalizedRequest{
		Model:           req.Model,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxTokens:       req.MaxTokens,
		Stream:          req.Stream,
		ReasoningEffort: req.ReasoningEffort,
		StopSequences:   req.Stop,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, openAIMessageToNormalized(m))
	}
	return out
}

func openAIMessageToNormalized(m OpenAIMessage) Message {
	msg := Message{
		Role:       Role(m.Role),
		ToolCallID: m.ToolCallID,
	}
	if m.Reasoning != "" {
		msg.Reasoning = m.Reasoning
	} else if m.ReasoningContent != "" {
		msg.Reasoning = m.ReasoningContent
	}
	msg.Content = openAIContentToParts(m.Content)
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return msg
}

func openAIContentToParts(content interface{}) []ContentPart {
	switch v := content.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []ContentPart{{Type: PartText, Text: v}}
	case []interface{}:
		var parts []ContentPart
		for _, raw := range v {
			part, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			switch part["type"] {
			case "text":
				text, _ := part["text"].(string)
				parts = append(parts, ContentPart{Type: PartText, Text: text})
			case "image_url":
				if img, ok := part["image_url"].(map[string]interface{}); ok {
					url, _ := img["url"].(string)
					parts = append(parts, ContentPart{Type: PartImage, ImageURL: url})
				}
			}
		}
		return parts
	case []OpenAIContentPart:
		var parts []ContentPart
		for _, p := range v {
			switch p.Type {
			case "text":
				parts = append(parts, ContentPart{Type: PartText, Text: p.Text})
			case "image_url":
				if p.ImageURL != nil {
					parts = append(parts, ContentPart{Type: PartImage, ImageURL: p.ImageURL.URL})
				}
			}
		}
		return parts
	default:
		return nil
	}
}

// NormalizedToOpenAI builds an outbound OpenAI-dialect request, applying
// the reasoning-content rule for the target model before serialization.
func NormalizedToOpenAI(req NormalizedRequest) OpenAIRequest {
	reasoningModel := IsReasoningModel(req.Model)
	messages := ApplyReasoningRule(append([]Message(nil), req.Messages...), reasoningModel)

	out := OpenAIRequest{
		Model:           req.Model,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxTokens:       req.MaxTokens,
		Stream:          req.Stream,
		ReasoningEffort: req.ReasoningEffort,
		Stop:            req.StopSequences,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, OpenAITool{Type: "function", Function: OpenAIFunctionDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters}})
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, normalizedMessageToOpenAI(m, reasoningModel))
	}
	return out
}

func normalizedMessageToOpenAI(m Message, reasoningModel bool) OpenAIMessage {
	om := OpenAIMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
	if reasoningModel {
		om.Reasoning = m.Reasoning
	}
	if len(m.Content) == 1 && m.Content[0].Type == PartText {
		om.Content = m.Content[0].Text
	} else if len(m.Content) > 0 {
		parts := make([]OpenAIContentPart, 0, len(m.Content))
		for _, p := range m.Content {
			switch p.Type {
			case PartText:
				parts = append(parts, OpenAIContentPart{Type: "text", Text: p.Text})
			case PartImage:
				parts = append(parts, OpenAIContentPart{Type: "image_url", ImageURL: &OpenAIImageURL{URL: p.ImageURL}})
			}
		}
		om.Content = parts
	} else {
		om.Content = ""
	}
	for _, tc := range m.ToolCalls {
		om.ToolCalls = append(om.ToolCalls, OpenAIToolCall{ID: tc.ID, Type: "function", Function: OpenAIToolCallFunction{Name: tc.Name, Arguments: tc.Arguments}})
	}
	return om
}

// OpenAIResponseFromNormalized builds the outbound (client-facing)
// OpenAI-dialect response envelope from a normalized response.
func OpenAIResponseFromNormalized(id string, resp NormalizedResponse) OpenAIResponse {
	return OpenAIResponse{
		ID:     id,
		Object: "chat.completion",
		Model:  resp.Model,
		Choices: []OpenAIChoice{{
			Index:        0,
			Message:      normalizedMessageToOpenAI(resp.Message, IsReasoningModel(resp.Model)),
			FinishReason: string(resp.FinishReason),
		}},
		Usage: OpenAIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}
