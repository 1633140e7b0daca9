package utils

import "strings"

// ToStringSlice normalises a decoded claim into a string slice. It accepts
// JSON arrays ([]any), []string and space-delimited strings such as an OAuth
// scope claim. Non-string array members are skipped.
func ToStringSlice(v any) []string {
	out := make([]string, 0)
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range x {
			if s != "" {
				out = append(out, s)
			}
		}
	case string:
		out = append(out, strings.Fields(x)...)
	}
	return out
}
