// Package utils provides shared helpers for display text, vector math, and logging.
package utils

// Truncate shortens s to at most maxLen runes, appending "..." when it cuts.
// Counting runes keeps multi-byte file names intact. maxLen <= 0 returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
