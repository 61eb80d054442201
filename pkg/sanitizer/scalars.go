package sanitizer

import (
	"slices"
	"strings"
)

// ScalarOptions bounds the output of ScalarMap.
type ScalarOptions struct {
	// MaxKeys caps the number of entries kept. Keys are kept in lexical order
	// so the result is deterministic. Zero means unlimited.
	MaxKeys int
	// MaxStringLength caps every string value in runes. Zero means unlimited.
	MaxStringLength int
	// DeniedKeys are dropped regardless of their value.
	DeniedKeys []string
}

// IsScalar reports whether v is a string, number, bool or nil.
func IsScalar(v any) bool {
	_, ok := NormalizeScalar(v)
	return ok
}

// NormalizeScalar converts any numeric kind to float64 so values survive a
// JSON round trip unchanged. Non-scalar values report false.
func NormalizeScalar(v any) (any, bool) {
	switch n := v.(type) {
	case nil:
		return nil, true
	case string, bool, float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return nil, false
	}
}

// ScalarMap returns a copy of m holding only scalar values. Nested maps,
// slices, structs and pointers are stripped. String values lose NUL bytes
// and are truncated to opts.MaxStringLength.
func ScalarMap(m map[string]any, opts ScalarOptions) map[string]any {
	out := make(map[string]any, len(m))
	if len(m) == 0 {
		return out
	}

	cleanString := Compose(RemoveNullBytes)
	if opts.MaxStringLength > 0 {
		cleanString = Compose(RemoveNullBytes, func(s string) string {
			return LimitLength(s, opts.MaxStringLength)
		})
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.TrimSpace(k) == "" || slices.Contains(opts.DeniedKeys, k) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if opts.MaxKeys > 0 && len(out) >= opts.MaxKeys {
			break
		}
		v, ok := NormalizeScalar(m[k])
		if !ok {
			continue
		}
		if s, isString := v.(string); isString {
			v = cleanString(s)
		}
		out[k] = v
	}

	return out
}
