// Package strings holds small string helpers shared by config and transport code.
package strings

import (
	"strings"
)

// SplitList splits a comma separated value, trimming each element and
// dropping empty and repeated ones. Order of first occurrence is kept.
//
//	SplitList(" kafka-1:9092, kafka-2:9092,,kafka-1:9092")
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}

// DedupeAndTrim removes blanks and duplicates after trimming whitespace.
func DedupeAndTrim(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
