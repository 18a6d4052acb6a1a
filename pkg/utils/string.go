package utils

// Truncate shortens s to maxLen runes and appends "..." when it cut anything.
// Multi-byte characters are never split.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
