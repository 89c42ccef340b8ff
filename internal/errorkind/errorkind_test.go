package errorkind

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsDefaultStatus(t *testing.T) {
	err := New(KindNoAvailableCredential, "no credential")
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
}

func TestWithStatusOverridesDefault(t *testing.T) {
	err := New(KindUpstreamServerError, "boom").WithStatus(503)
	assert.Equal(t, 503, err.Status)
}

func TestRenderJSONOpenAIShape(t *testing.T) {
	err := New(KindAuthError, "missing key")
	var decoded struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(err.RenderJSON(DialectOpenAI), &decoded))
	assert.Equal(t, "auth_error", decoded.Error.Type)
	assert.Equal(t, "missing key", decoded.Error.Message)
}

func TestRenderJSONAnthropicShape(t *testing.T) {
	err := New(KindProtocolError, "bad request")
	var decoded struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(err.RenderJSON(DialectAnthropic), &decoded))
	assert.Equal(t, "error", decoded.Type)
	assert.Equal(t, "protocol_error", decoded.Error.Type)
}

func TestWriteJSONSetsStatusAndContentType(t *testing.T) {
	err := New(KindRouteNotFound, "no route")
	rec := httptest.NewRecorder()
	err.WriteJSON(rec, DialectOpenAI)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
