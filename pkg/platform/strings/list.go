// Package strings provides small helpers for list-valued configuration.
package strings

import (
	"strings"
)

// SplitList splits a comma-separated value into trimmed, unique, non-empty
// elements in their original order. An empty input yields nil.
//
//	SplitList(" broker-1:9092, broker-2:9092,,broker-1:9092")
//	// Returns: []string{"broker-1:9092", "broker-2:9092"}
func SplitList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	seen := make(map[string]struct{}, len(parts))
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
