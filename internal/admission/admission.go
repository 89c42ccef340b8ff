// Package admission validates the gateway's own inbound API key and
// extracts the per-request identity headers the rest of the pipeline
// relies on.
package admission

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/localgw/gatewaycore/internal/errorkind"
)

// ClientType enumerates the known calling tools. An unrecognized header
// value is normalized to ClientTypeOther rather than rejected.
type ClientType string

const (
	ClientTypeClaudeCode ClientType = "claude-code"
	ClientTypeCursor     ClientType = "cursor"
	ClientTypeCodex      ClientType = "codex"
	ClientTypeWindsurf   ClientType = "windsurf"
	ClientTypeKiro       ClientType = "kiro"
	ClientTypeOther      ClientType = "other"
)

func parseClientType(raw string) ClientType {
	switch ClientType(strings.ToLower(strings.TrimSpace(raw))) {
	case ClientTypeClaudeCode:
		return ClientTypeClaudeCode
	case ClientTypeCursor:
		return ClientTypeCursor
	case ClientTypeCodex:
		return ClientTypeCodex
	case ClientTypeWindsurf:
		return ClientTypeWindsurf
	case ClientTypeKiro:
		return ClientTypeKiro
	default:
		return ClientTypeOther
	}
}

// Identity carries the per-request headers extracted during admission.
type Identity struct {
	RequestID  string
	SessionID  string
	ClientType ClientType
}

type contextKey int

const identityContextKey contextKey = 0

// WithIdentity attaches an Identity to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext retrieves the Identity attached by the admission middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

// Config configures the admission middleware.
type Config struct {
	// APIKey is the gateway's own inbound key. Empty disables auth entirely,
	// matching the reference middleware's "no expected key configured" escape
	// hatch.
	APIKey string
	// PublicPaths bypass auth entirely (e.g. /health).
	PublicPaths []string
}

// isPublic reports whether path is exempt from auth.
func (c Config) isPublic(path string) bool {
	for _, p := range c.PublicPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// extractKey reads the inbound key from either the Authorization Bearer
// header or x-api-key, per spec §6.1.
func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("x-api-key")
}

// dialectFor guesses the inbound dialect from the path, used only to shape
// the 401 body; it is not a substitute for the handler's own dialect
// resolution.
func dialectFor(path string) errorkind.Dialect {
	if strings.Contains(path, "/v1/messages") {
		return errorkind.DialectAnthropic
	}
	return errorkind.DialectOpenAI
}

// Middleware validates the inbound key with a constant-time compare and
// populates the request context with an Identity built from x-request-id
// (generated if absent), x-session-id, and x-client-type.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.isPublic(r.URL.Path) && cfg.APIKey != "" {
				got := extractKey(r)
				if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.APIKey)) != 1 {
					errorkind.New(errorkind.KindAuthError, "invalid or missing API key").WriteJSON(w, dialectFor(r.URL.Path))
					return
				}
			}

			requestID := r.Header.Get("x-request-id")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			id := Identity{
				RequestID:  requestID,
				SessionID:  r.Header.Get("x-session-id"),
				ClientType: parseClientType(r.Header.Get("x-client-type")),
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
