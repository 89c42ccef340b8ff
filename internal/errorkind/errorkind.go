// Package errorkind defines the gateway's internal error taxonomy and
// renders it into the inbound dialect's error envelope.
package errorkind

import (
	"encoding/json"
	"net/http"
)

// Kind names one of the gateway's error classes. Names are illustrative,
// not contractual to any upstream's own error taxonomy.
type Kind string

const (
	KindAuthError            Kind = "auth_error"
	KindRouteNotFound        Kind = "route_not_found"
	KindNoAvailableCredential Kind = "no_available_credential"
	KindUpstreamAuthError    Kind = "upstream_auth_error"
	KindUpstreamRateLimited  Kind = "upstream_rate_limited"
	KindUpstreamTimeout      Kind = "upstream_timeout"
	KindUpstreamServerError  Kind = "upstream_server_error"
	KindProtocolError        Kind = "protocol_error"
	KindInternalError        Kind = "internal_error"
)

// httpStatus is the default HTTP status for each kind when the caller
// doesn't have a more specific upstream status code to forward.
var httpStatus = map[Kind]int{
	KindAuthError:             http.StatusUnauthorized,
	KindRouteNotFound:         http.StatusNotFound,
	KindNoAvailableCredential: http.StatusServiceUnavailable,
	KindUpstreamAuthError:     http.StatusBadGateway,
	KindUpstreamRateLimited:   http.StatusTooManyRequests,
	KindUpstreamTimeout:       http.StatusGatewayTimeout,
	KindUpstreamServerError:   http.StatusBadGateway,
	KindProtocolError:         http.StatusBadRequest,
	KindInternalError:         http.StatusInternalServerError,
}

// Error is the gateway's typed error. It always carries a Kind, an HTTP
// status to surface, and a human-readable message.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New constructs an Error with the kind's default HTTP status.
func New(kind Kind, message string) *Error {
	status, ok := httpStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// WithStatus overrides the HTTP status, used when an upstream's own status
// code (e.g. the exact 5xx it returned) should be forwarded instead of the
// kind's default.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// Dialect selects which inbound wire shape RenderJSON produces.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
)

// RenderJSON marshals the error into the given dialect's envelope, matching
// spec's §7 error rendering rules.
func (e *Error) RenderJSON(dialect Dialect) []byte {
	var body interface{}
	switch dialect {
	case DialectAnthropic:
		body = map[string]interface{}{
			"type": "error",
			"error": map[string]string{
				"type":    string(e.Kind),
				"message": e.Message,
			},
		}
	default:
		body = map[string]interface{}{
			"error": map[string]string{
				"type":    string(e.Kind),
				"code":    string(e.Kind),
				"message": e.Message,
			},
		}
	}
	out, _ := json.Marshal(body)
	return out
}

// WriteJSON writes the error to w in the given dialect with its HTTP status.
func (e *Error) WriteJSON(w http.ResponseWriter, dialect Dialect) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.RenderJSON(dialect))
}
