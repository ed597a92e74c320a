package typeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeString(t *testing.T) {
	t.Run("string value", func(t *testing.T) {
		s, ok := SafeString("hello")
		assert.True(t, ok)
		assert.Equal(t, "hello", s)
	})

	t.Run("nil value", func(t *testing.T) {
		s, ok := SafeString(nil)
		assert.False(t, ok)
		assert.Empty(t, s)
	})

	t.Run("non-string value", func(t *testing.T) {
		_, ok := SafeString(42)
		assert.False(t, ok)
	})

	t.Run("default fallback", func(t *testing.T) {
		assert.Equal(t, "fallback", SafeStringDefault(nil, "fallback"))
		assert.Equal(t, "value", SafeStringDefault("value", "fallback"))
	})
}

func TestSafeFloat64(t *testing.T) {
	t.Run("float64", func(t *testing.T) {
		f, ok := SafeFloat64(0.75)
		assert.True(t, ok)
		assert.Equal(t, 0.75, f)
	})

	t.Run("int widening", func(t *testing.T) {
		f, ok := SafeFloat64(3)
		assert.True(t, ok)
		assert.Equal(t, 3.0, f)
	})

	t.Run("string rejected", func(t *testing.T) {
		_, ok := SafeFloat64("0.5")
		assert.False(t, ok)
	})

	t.Run("default fallback", func(t *testing.T) {
		assert.Equal(t, 0.5, SafeFloat64Default(nil, 0.5))
	})
}

func TestSafeInt(t *testing.T) {
	t.Run("json float64", func(t *testing.T) {
		i, ok := SafeInt(float64(7))
		assert.True(t, ok)
		assert.Equal(t, 7, i)
	})

	t.Run("int", func(t *testing.T) {
		i, ok := SafeInt(7)
		assert.True(t, ok)
		assert.Equal(t, 7, i)
	})

	t.Run("default fallback", func(t *testing.T) {
		assert.Equal(t, 9, SafeIntDefault("x", 9))
	})
}

func TestSafeStringSlice(t *testing.T) {
	t.Run("typed slice", func(t *testing.T) {
		out, ok := SafeStringSlice([]string{"a", "b"})
		assert.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, out)
	})

	t.Run("any slice drops non-strings", func(t *testing.T) {
		out, ok := SafeStringSlice([]any{"a", 1, "b"})
		assert.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, out)
	})

	t.Run("nil", func(t *testing.T) {
		_, ok := SafeStringSlice(nil)
		assert.False(t, ok)
	})
}
