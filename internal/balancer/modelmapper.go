package balancer

import "sync"

// ModelInfo describes one entry in the combined model list exposed by
// /v1/models: either a real model id or an alias pointing at one.
type ModelInfo struct {
	ID          string
	IsAlias     bool
	ActualModel string
}

// ModelMapper resolves client-facing model aliases to the actual model id a
// credential advertises. Supplemental feature ported from the reference
// router's mapper — not named by the distilled spec but exercised by the
// balancer's first filtering step (SPEC_FULL.md §4).
type ModelMapper struct {
	mu      sync.RWMutex
	aliases map[string]string
}

// NewModelMapper creates an empty mapper.
func NewModelMapper() *ModelMapper {
	return &ModelMapper{aliases: make(map[string]string)}
}

// Resolve returns the actual model name for an alias, or model unchanged if
// it is not a known alias.
func (m *ModelMapper) Resolve(model string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if actual, ok := m.aliases[model]; ok {
		return actual
	}
	return model
}

// AddAlias registers alias -> actual.
func (m *ModelMapper) AddAlias(alias, actual string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[alias] = actual
}

// RemoveAlias deletes an alias, returning its former target if present.
func (m *ModelMapper) RemoveAlias(alias string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	actual, ok := m.aliases[alias]
	delete(m.aliases, alias)
	return actual, ok
}

func (m *ModelMapper) HasAlias(alias string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.aliases[alias]
	return ok
}

func (m *ModelMapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.aliases)
}

// AvailableModels returns the union of the real model list and every
// registered alias, for the /v1/models endpoint.
func (m *ModelMapper) AvailableModels(actualModels []string) []ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	models := make([]ModelInfo, 0, len(actualModels)+len(m.aliases))
	for _, id := range actualModels {
		models = append(models, ModelInfo{ID: id})
	}
	for alias, actual := range m.aliases {
		models = append(models, ModelInfo{ID: alias, IsAlias: true, ActualModel: actual})
	}
	return models
}

func (m *ModelMapper) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases = make(map[string]string)
}
