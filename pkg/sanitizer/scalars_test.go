package sanitizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionkit/pkg/sanitizer"
)

func TestNormalizeScalar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  any
		want   any
		scalar bool
	}{
		{name: "nil", input: nil, want: nil, scalar: true},
		{name: "string", input: "a", want: "a", scalar: true},
		{name: "bool", input: true, want: true, scalar: true},
		{name: "int widened", input: 42, want: float64(42), scalar: true},
		{name: "uint8 widened", input: uint8(7), want: float64(7), scalar: true},
		{name: "float32 widened", input: float32(1.5), want: float64(1.5), scalar: true},
		{name: "map rejected", input: map[string]any{"a": 1}, scalar: false},
		{name: "slice rejected", input: []string{"a"}, scalar: false},
		{name: "struct rejected", input: struct{}{}, scalar: false},
		{name: "pointer rejected", input: new(int), scalar: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := sanitizer.NormalizeScalar(tt.input)
			assert.Equal(t, tt.scalar, ok)
			if tt.scalar {
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.scalar, sanitizer.IsScalar(tt.input))
		})
	}
}

func TestScalarMap(t *testing.T) {
	t.Parallel()

	t.Run("strips non-scalar values", func(t *testing.T) {
		t.Parallel()
		got := sanitizer.ScalarMap(map[string]any{
			"name":   "alice",
			"age":    30,
			"admin":  false,
			"note":   nil,
			"nested": map[string]any{"x": 1},
			"list":   []any{1, 2},
		}, sanitizer.ScalarOptions{})

		assert.Equal(t, map[string]any{
			"name":  "alice",
			"age":   float64(30),
			"admin": false,
			"note":  nil,
		}, got)
	})

	t.Run("drops denied and blank keys", func(t *testing.T) {
		t.Parallel()
		got := sanitizer.ScalarMap(map[string]any{
			"__proto__": "x",
			"  ":        "y",
			"ok":        "z",
		}, sanitizer.ScalarOptions{DeniedKeys: []string{"__proto__"}})

		assert.Equal(t, map[string]any{"ok": "z"}, got)
	})

	t.Run("cleans strings", func(t *testing.T) {
		t.Parallel()
		got := sanitizer.ScalarMap(map[string]any{
			"s": "ab\x00cdef",
		}, sanitizer.ScalarOptions{MaxStringLength: 4})

		assert.Equal(t, "abcd", got["s"])
	})

	t.Run("caps keys deterministically", func(t *testing.T) {
		t.Parallel()
		in := map[string]any{"c": 3, "a": 1, "b": 2, "d": 4}
		for range 10 {
			got := sanitizer.ScalarMap(in, sanitizer.ScalarOptions{MaxKeys: 2})
			assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, got)
		}
	})

	t.Run("nil input yields empty map", func(t *testing.T) {
		t.Parallel()
		got := sanitizer.ScalarMap(nil, sanitizer.ScalarOptions{})
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
