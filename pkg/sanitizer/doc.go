// Package sanitizer cleans untrusted values before they are persisted.
//
// ScalarMap reduces an arbitrary map to JSON-safe scalars (string, float64,
// bool, nil) with deterministic key and length limits. It backs session
// metadata sanitization. The string helpers can be chained with Compose:
//
//	clean := sanitizer.Compose(sanitizer.RemoveNullBytes, strings.TrimSpace)
//	v := clean(input)
package sanitizer
