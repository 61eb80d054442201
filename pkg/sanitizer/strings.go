package sanitizer

import "strings"

// RemoveNullBytes strips NUL bytes, which several storage drivers reject.
func RemoveNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// LimitLength truncates s to maxLength runes. A non-positive limit yields "".
func LimitLength(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if len(s) <= maxLength {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	return string(runes[:maxLength])
}
