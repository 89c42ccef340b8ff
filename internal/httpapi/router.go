package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/localgw/gatewaycore/internal/admission"
	"github.com/localgw/gatewaycore/internal/telemetry"
)

// NewRouter builds the full chi.Mux for the inbound surface described by
// spec §6.1: the unprefixed default-provider routes, the per-credential
// namespace and selector routes, the admin-facing /metrics endpoint, and
// the unauthenticated /health probe.
func NewRouter(deps Deps, admissionCfg admission.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(recovery(deps.logger()))
	r.Use(requestLogging(deps.logger()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "x-api-key", "x-request-id", "x-session-id", "x-client-type"},
		AllowCredentials: false,
	}))
	r.Use(admission.Middleware(admissionCfg))

	r.Get("/health", deps.handleHealth)
	r.Handle("/metrics", telemetry.Handler())

	r.Get("/v1/models", deps.handleListModels)
	r.Post("/v1/chat/completions", deps.handleOpenAIChatCompletions)
	r.Post("/v1/messages", deps.handleAnthropicMessages)
	r.Post("/v1/messages/count_tokens", deps.handleCountTokens)

	r.Route("/{selector}", func(sr chi.Router) {
		sr.Get("/v1/models", deps.handleListModels)
		sr.Post("/v1/chat/completions", deps.handleOpenAIChatCompletions)
		sr.Post("/v1/messages", deps.handleAnthropicMessages)
		sr.Post("/v1/messages/count_tokens", deps.handleCountTokens)
	})

	return r
}
