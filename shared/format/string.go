package format

// Preview returns a truncated string for logging. It counts runes, so
// multi-byte characters are never split.
func Preview(s string, length int) string {
	if length <= 0 || len(s) <= length {
		return s
	}
	n := 0
	for i := range s {
		if n == length {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
