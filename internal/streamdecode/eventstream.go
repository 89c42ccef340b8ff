package streamdecode

import (
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// EventStreamDecoder decodes the AWS event-stream binary framing used by
// Bedrock's InvokeModelWithResponseStream and by Kiro's CodeWhisperer
// streaming endpoint. Each frame's ":event-type" header becomes Event.Type
// and the payload becomes Event.Data.
type EventStreamDecoder struct {
	dec eventstream.Decoder
}

func NewEventStreamDecoder() *EventStreamDecoder {
	return &EventStreamDecoder{dec: eventstream.NewDecoder()}
}

func (d *EventStreamDecoder) Format() Format { return FormatEventStream }

func (d *EventStreamDecoder) Decode(reader io.Reader) (Event, error) {
	msg, err := d.dec.Decode(reader, nil)
	if err != nil {
		if err == io.EOF {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("streamdecode: event-stream decode: %w", err)
	}

	var eventType, messageType string
	for _, h := range msg.Headers {
		switch h.Name {
		case ":event-type":
			eventType, _ = h.Value.Get().(string)
		case ":message-type":
			messageType, _ = h.Value.Get().(string)
		}
	}
	if messageType == "exception" || messageType == "error" {
		return Event{Type: "error", Data: string(msg.Payload)}, nil
	}
	if eventType == "" {
		eventType = "message"
	}
	return Event{Type: eventType, Data: string(msg.Payload)}, nil
}
