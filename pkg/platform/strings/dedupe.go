// Package strings provides string list helpers.
package strings

import (
	"strings"
)

// DedupeFold removes empty entries and case-insensitive duplicates after
// trimming whitespace. Order is preserved and the first spelling of each value
// is kept, so
//
//	DedupeFold([]string{" Ops@Acme.io", "ops@acme.io", ""})
//
// returns []string{"Ops@Acme.io"}. Mail addresses are compared this way.
func DedupeFold(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		k := strings.ToLower(trimmed)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, trimmed)
	}

	return result
}
