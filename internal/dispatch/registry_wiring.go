package dispatch

// RegisterDefaults installs a dispatcher for every provider family named in
// the balancer's fallback map (SPEC_FULL.md §6.3) plus the families that
// never need a fallback target (openai, anthropic, gemini-apikey).
// azure and openrouter/cerebras/qwen (OpenAI-compatible relays from the
// rest of the pack) share OpenAIDispatcher's URL-normalization logic by
// registering it under their own family name with a distinct default base
// URL baked into each credential's BaseURL field rather than the
// dispatcher.
func RegisterDefaults(r *Registry) {
	r.Register("openai", NewOpenAIDispatcher)
	r.Register("anthropic", NewAnthropicDispatcher)
	r.Register("gemini-apikey", NewGeminiDispatcher)
	r.Register("gemini-oauth", NewGeminiDispatcher)
	r.Register("vertex", NewVertexDispatcher)
	r.Register("bedrock", NewBedrockDispatcher)
	r.Register("kiro", NewKiroDispatcher)
	r.Register("codex", NewOpenAIDispatcher)
	r.Register("claude-oauth", NewAnthropicDispatcher)
	r.Register("antigravity", NewGeminiDispatcher)
	r.Register("azure", NewOpenAIDispatcher)
	r.Register("openrouter", NewOpenAIDispatcher)
	r.Register("cerebras", NewOpenAIDispatcher)
	r.Register("qwen", NewOpenAIDispatcher)
	r.Register("ollama", NewOllamaDispatcher)
}
