package translate

import "strings"

// IsReasoningModel reports whether a model string matches the "thinking"
// variant class per spec §6.5: contains deepseek-r1/deepseek-reasoner
// (case-insensitive), or starts with o1/o3/o4.
func IsReasoningModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "deepseek-r1") || strings.Contains(lower, "deepseek-reasoner") {
		return true
	}
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// ApplyReasoningRule enforces spec §4.5's rule in place: for a
// reasoning-class model, reasoning survives only on the last assistant
// message; for a non-reasoning model it is stripped from every message.
// Testable properties #5 and #6.
func ApplyReasoningRule(messages []Message, reasoningModel bool) []Message {
	if !reasoningModel {
		for i := range messages {
			messages[i].Reasoning = ""
		}
		return messages
	}

	lastAssistant := -1
	for i, m := range messages {
		if m.Role == RoleAssistant {
			lastAssistant = i
		}
	}
	for i := range messages {
		if messages[i].Role != RoleAssistant {
			continue
		}
		if i != lastAssistant {
			messages[i].Reasoning = ""
		}
	}
	return messages
}
