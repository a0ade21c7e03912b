package utils

// Truncate shortens s to at most maxLen runes and marks the cut with "...".
// Store and provider error bodies are often Portuguese, so cuts never split a
// multi-byte character.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
