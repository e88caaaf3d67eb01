package catalog

import "strings"

// Normalize canonicalizes a network name. Case, underscores and spaces fold
// to the lower-case hyphenated form, a "network" prefix or suffix is
// dropped, and registered names also match with their hyphens removed, so
// "BirthDeath" and "birth_death_network" both find "birth-death". Unknown
// names are returned in folded form.
func Normalize(name string) string {
	networkRegistry.mu.RLock()
	defer networkRegistry.mu.RUnlock()
	return normalizeLocked(name)
}

func normalizeLocked(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalName(candidate); ok {
			return canonical
		}
	}
	return normalized
}

func aliasCandidates(normalized string) []string {
	candidates := []string{normalized}
	trimmed := strings.TrimPrefix(normalized, "network")
	trimmed = strings.TrimSuffix(trimmed, "network")
	trimmed = strings.Trim(trimmed, "-")
	if trimmed != "" && trimmed != normalized {
		candidates = append(candidates, trimmed)
	}
	return candidates
}

func canonicalName(alias string) (string, bool) {
	if _, ok := networkRegistry.m[alias]; ok {
		return alias, true
	}
	compact := strings.ReplaceAll(alias, "-", "")
	for name := range networkRegistry.m {
		if strings.ReplaceAll(name, "-", "") == compact {
			return name, true
		}
	}
	return "", false
}
