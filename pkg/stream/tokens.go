package stream

import "strings"

// TokenCounter approximates the token count of a text.
type TokenCounter func(text string) int

// CountTokens counts whitespace delimited words.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// JoinContents concatenates the text contents of entries with single spaces,
// skipping non-text and empty messages.
func JoinContents(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Message.Type != TypeText || e.Message.Content == "" {
			continue
		}
		parts = append(parts, e.Message.Content)
	}
	return strings.Join(parts, " ")
}
