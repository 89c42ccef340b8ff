package streamdecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryCreateKnownFormats(t *testing.T) {
	f := NewFactory()
	for _, format := range []Format{FormatSSE, FormatNDJSON, FormatEventStream} {
		dec, err := f.Create(format)
		require.NoError(t, err)
		assert.Equal(t, format, dec.Format())
	}
}

func TestFactoryCreateUnknownFormat(t *testing.T) {
	f := NewFactory()
	_, err := f.Create(FormatUnknown)
	assert.Error(t, err)
}

func TestFactoryRegisterOverridesDecoder(t *testing.T) {
	f := NewFactory()
	f.Register(FormatSSE, func() Decoder { return NewNDJSONDecoder() })
	dec, err := f.Create(FormatSSE)
	require.NoError(t, err)
	assert.Equal(t, FormatNDJSON, dec.Format())
}

func TestDetectFromContentType(t *testing.T) {
	assert.Equal(t, FormatSSE, DetectFromContentType("text/event-stream; charset=utf-8"))
	assert.Equal(t, FormatNDJSON, DetectFromContentType("application/x-ndjson"))
	assert.Equal(t, FormatEventStream, DetectFromContentType("application/vnd.amazon.eventstream"))
	assert.Equal(t, FormatUnknown, DetectFromContentType("application/json"))
}
