package telemetry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/localgw/gatewaycore/internal/translate"
	"github.com/pkoukk/tiktoken-go"
)

// perMessageOverhead and perReplyOverhead are the chat-format bookkeeping
// tokens (role markers, turn boundaries) that a raw text encode doesn't
// capture. Values match the convention OpenAI documents for cl100k-family
// models; close enough for an estimate, not a billing-accurate count.
const (
	perMessageOverhead = 4
	perReplyOverhead   = 3
)

// Estimator counts tokens for normalized requests using a tiktoken
// encoding, for two callers: the Anthropic count_tokens endpoint (which has
// no real tokenizer of its own to call locally) and providers that omit
// usage accounting on a streamed response, where a fallback estimate beats
// reporting zero.
type Estimator struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewEstimator returns a ready-to-use Estimator. Encodings are loaded
// lazily and cached per name.
func NewEstimator() *Estimator {
	return &Estimator{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// encodingForModel maps a model ID to a tiktoken encoding name. Unknown
// models fall back to cl100k_base, the same default the rest of the pack
// uses for non-OpenAI or newer models it hasn't special-cased.
func encodingForModel(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-4o"), strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

func (e *Estimator) encoderFor(model string) (*tiktoken.Tiktoken, error) {
	name := encodingForModel(model)

	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok := e.encoders[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", name, err)
	}
	e.encoders[name] = enc
	return enc, nil
}

// CountText estimates the token count of a single string under model's
// encoding.
func (e *Estimator) CountText(model, text string) (int, error) {
	enc, err := e.encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages estimates the prompt token count for a full normalized
// request: per-message role/turn overhead plus the text of every content
// part, tool definition, and tool call argument blob.
func (e *Estimator) CountMessages(req translate.NormalizedRequest) (int, error) {
	enc, err := e.encoderFor(req.Model)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range req.Messages {
		total += perMessageOverhead
		total += len(enc.Encode(string(msg.Role), nil, nil))
		total += len(enc.Encode(msg.Text(), nil, nil))
		for _, tc := range msg.ToolCalls {
			total += len(enc.Encode(tc.Name, nil, nil))
			total += len(enc.Encode(tc.Arguments, nil, nil))
		}
	}
	for _, tool := range req.Tools {
		total += len(enc.Encode(tool.Name, nil, nil))
		total += len(enc.Encode(tool.Description, nil, nil))
	}
	total += perReplyOverhead
	return total, nil
}
