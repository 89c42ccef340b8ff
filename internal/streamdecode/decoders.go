// Package streamdecode implements the streaming decoders component: pluggable
// parsers for the wire formats upstream providers use to stream responses
// (SSE, NDJSON, and the AWS event-stream framing Bedrock/Kiro use), behind a
// common Decoder interface and a format-detecting factory.
package streamdecode

import (
	"io"
	"strings"
)

// Format identifies a streaming wire format.
type Format string

const (
	FormatSSE         Format = "sse"
	FormatNDJSON      Format = "ndjson"
	FormatEventStream Format = "event-stream" // AWS event-stream framing (Bedrock, Kiro)
	FormatUnknown     Format = "unknown"
)

// Event is one decoded unit from a stream, in whichever format produced it.
type Event struct {
	Type  string // SSE "event:" field; message-type for AWS event-stream
	Data  string
	ID    string
	Retry int
}

// Decoder reads successive Events from a stream. Decode returns io.EOF when
// the stream ends cleanly. A Decoder is stateful and bound to one stream.
type Decoder interface {
	Decode(reader io.Reader) (Event, error)
	Format() Format
}

// DetectFromContentType maps an HTTP Content-Type header to a Format.
func DetectFromContentType(contentType string) Format {
	ct := normalizeContentType(contentType)
	switch ct {
	case "text/event-stream":
		return FormatSSE
	case "application/x-ndjson", "application/jsonlines", "application/ndjson":
		return FormatNDJSON
	case "application/vnd.amazon.eventstream":
		return FormatEventStream
	default:
		if strings.Contains(ct, "event-stream") {
			return FormatSSE
		}
		if strings.Contains(ct, "ndjson") || strings.Contains(ct, "jsonlines") {
			return FormatNDJSON
		}
		return FormatUnknown
	}
}

func normalizeContentType(contentType string) string {
	lower := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	return lower
}

// NewDecoder builds a fresh Decoder for format. Each call returns a new
// instance so concurrent streams never share parser state.
func NewDecoder(format Format) Decoder {
	switch format {
	case FormatNDJSON:
		return NewNDJSONDecoder()
	case FormatEventStream:
		return NewEventStreamDecoder()
	default:
		return NewSSEDecoder()
	}
}
