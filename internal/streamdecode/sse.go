package streamdecode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SSEDecoder decodes Server-Sent Events per the WHATWG spec: lines starting
// with ':' are comments, an empty line dispatches the buffered event, and
// multi-line "data:" fields are joined with newlines.
//
// An SSEDecoder is stateful across Decode calls; use one instance per stream.
type SSEDecoder struct {
	reader    *bufio.Reader
	eventType string
	dataLines []string
	eventID   string
	retryMS   int
}

func NewSSEDecoder() *SSEDecoder {
	return &SSEDecoder{}
}

func (d *SSEDecoder) Format() Format { return FormatSSE }

func (d *SSEDecoder) Decode(reader io.Reader) (Event, error) {
	if d.reader == nil {
		d.reader = bufio.NewReader(reader)
	}

	for {
		line, err := d.reader.ReadString('\n')
		if err == io.EOF {
			if line != "" {
				line = strings.TrimRight(line, "\r\n")
				if line != "" && !strings.HasPrefix(line, ":") {
					d.parseField(line)
				}
			}
			if len(d.dataLines) > 0 || d.eventType != "" {
				event := d.buildEvent()
				d.reset()
				return event, nil
			}
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, fmt.Errorf("streamdecode: sse read: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(d.dataLines) > 0 || d.eventType != "" {
				event := d.buildEvent()
				d.reset()
				return event, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		d.parseField(line)
	}
}

func (d *SSEDecoder) parseField(line string) {
	colon := strings.Index(line, ":")
	if colon == -1 {
		return
	}
	field := line[:colon]
	value := ""
	if colon+1 < len(line) {
		if line[colon+1] == ' ' {
			value = line[colon+2:]
		} else {
			value = line[colon+1:]
		}
	}

	switch field {
	case "event":
		d.eventType = value
	case "data":
		d.dataLines = append(d.dataLines, value)
	case "id":
		if !strings.Contains(value, "\x00") {
			d.eventID = value
		}
	case "retry":
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			d.retryMS = ms
		}
	}
}

func (d *SSEDecoder) buildEvent() Event {
	eventType := d.eventType
	if eventType == "" {
		eventType = "message"
	}
	return Event{
		Type:  eventType,
		Data:  strings.Join(d.dataLines, "\n"),
		ID:    d.eventID,
		Retry: d.retryMS,
	}
}

// reset clears per-event fields; id and retry persist across events per spec.
func (d *SSEDecoder) reset() {
	d.eventType = ""
	d.dataLines = nil
}
