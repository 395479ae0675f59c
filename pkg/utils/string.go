package utils

import "strings"

// Truncate shortens s to at most maxLen runes and appends an ellipsis when
// anything was cut.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Preview flattens s onto one line and truncates it.
func Preview(s string, maxLen int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxLen)
}
