package streamdecode

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNDJSONDecodeLines(t *testing.T) {
	d := NewNDJSONDecoder()
	r := strings.NewReader("{\"a\":1}\n{\"a\":2}\n")

	ev1, err := d.Decode(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, ev1.Data)

	ev2, err := d.Decode(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, ev2.Data)

	_, err = d.Decode(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNDJSONDecodeSkipsBlankLines(t *testing.T) {
	d := NewNDJSONDecoder()
	r := strings.NewReader("\n\n{\"a\":1}\n")
	ev, err := d.Decode(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, ev.Data)
}
