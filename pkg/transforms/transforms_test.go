package transforms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, name string, v any, args ...any) any {
	t.Helper()
	table := Default()
	fn, ok := table.Lookup(name)
	require.True(t, ok, "transform %s not registered", name)
	out, err := fn(v, args)
	require.NoError(t, err)
	return out
}

func TestStringTransforms(t *testing.T) {
	assert.Equal(t, "ABC", apply(t, "upper", "abc"))
	assert.Equal(t, "abc", apply(t, "lower", "ABC"))
	assert.Equal(t, "x", apply(t, "trim", "  x  "))
	assert.Equal(t, "Hello", apply(t, "capitalize", "hello"))
	assert.Equal(t, "", apply(t, "capitalize", ""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc…", apply(t, "truncate", "abcdef", 3))
	assert.Equal(t, "ab", apply(t, "truncate", "ab", 5))
	assert.Equal(t, "abcdef", apply(t, "truncate", "abcdef"))
	assert.Equal(t, "hé…", apply(t, "truncate", "héllo", 2), "cut on runes, not bytes")
}

func TestDefault(t *testing.T) {
	assert.Equal(t, "fallback", apply(t, "default", "", "fallback"))
	assert.Equal(t, "value", apply(t, "default", "value", "fallback"))
	assert.Equal(t, "fallback", apply(t, "default", nil, "fallback"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "hello-world", apply(t, "slug", "Hello, World!"))
}

func TestSanitize(t *testing.T) {
	out := apply(t, "sanitize", `<b>ok</b><script>bad()</script>`)
	assert.Equal(t, "<b>ok</b>", out)
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "1234.50", apply(t, "number", 1234.5))
	assert.Equal(t, "1234.500", apply(t, "number", 1234.5, 3))
	assert.Equal(t, "0.10", apply(t, "number", 0.1))
}

func TestEncode(t *testing.T) {
	assert.Equal(t, `{"a":1}`, apply(t, "encode", map[string]any{"a": 1}))
}

func TestLength(t *testing.T) {
	assert.Equal(t, 3, apply(t, "length", "abc"))
}

func TestRegister(t *testing.T) {
	table := Default()
	table.Register("shout", func(v any, _ []any) (any, error) {
		return "!", nil
	})
	fn, ok := table.Lookup("shout")
	require.True(t, ok)
	out, err := fn("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "!", out)
	assert.Contains(t, table.Names(), "shout")
}

func TestUnknownLookup(t *testing.T) {
	_, ok := Default().Lookup("nope")
	assert.False(t, ok)
}
