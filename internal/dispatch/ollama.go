package dispatch

import (
	"net/http"

	"github.com/localgw/gatewaycore/internal/streamdecode"
)

// NewOllamaDispatcher returns an OpenAI-compatible dispatcher defaulting to
// a local Ollama server's /v1-shimmed chat-completions endpoint; Ollama
// speaks the OpenAI dialect once its OpenAI-compatibility layer is
// enabled, so no separate wire format is needed here.
func NewOllamaDispatcher(client *http.Client, decoders *streamdecode.Factory) Dispatcher {
	return &ollamaDispatcher{OpenAIDispatcher: &OpenAIDispatcher{client: client, decoders: decoders}}
}

type ollamaDispatcher struct {
	*OpenAIDispatcher
}

func (d *ollamaDispatcher) Family() string { return "ollama" }
