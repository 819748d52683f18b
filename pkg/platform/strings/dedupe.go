// Package strings cleans operator-supplied lists such as CORS origins.
package strings

import (
	"strings"
)

// Clean trims each value and drops empties and duplicates, keeping the
// first occurrence's position.
//
//	Clean([]string{" https://a.io ", "https://b.io", "https://a.io", ""})
//	// []string{"https://a.io", "https://b.io"}
func Clean(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
