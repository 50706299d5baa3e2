package protocol

import "strings"

// FilterAgents applies f to agents without reordering them. Predicates are
// conjunctive except Capabilities, which matches any listed tag. Offset and
// Limit are applied last, to the filtered sequence.
func FilterAgents(agents []Agent, f AgentFilter) []Agent {
	term := strings.ToLower(strings.TrimSpace(f.SearchTerm))

	var matched []Agent
	for _, a := range agents {
		if len(f.Capabilities) > 0 && !hasAnyCapability(a, f.Capabilities) {
			continue
		}
		if f.Framework != "" && a.Framework != f.Framework {
			continue
		}
		if term != "" && !matchesSearch(a, term) {
			continue
		}
		if a.Reputation < f.MinReputation {
			continue
		}
		if f.Status != "" && f.Status != StatusAny && a.Status != f.Status {
			continue
		}
		matched = append(matched, a)
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []Agent{}
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	if matched == nil {
		matched = []Agent{}
	}
	return matched
}

func hasAnyCapability(a Agent, wanted []string) bool {
	for _, have := range a.Capabilities {
		for _, w := range wanted {
			if strings.EqualFold(have, w) {
				return true
			}
		}
	}
	return false
}

func matchesSearch(a Agent, term string) bool {
	if strings.Contains(strings.ToLower(a.Name), term) ||
		strings.Contains(strings.ToLower(a.Description), term) {
		return true
	}
	for _, c := range a.Capabilities {
		if strings.Contains(strings.ToLower(c), term) {
			return true
		}
	}
	return false
}
