package escape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML(t *testing.T) {
	s, err := HTML(`<a href="x">&'`)
	require.NoError(t, err)
	assert.Equal(t, "&lt;a href=&quot;x&quot;&gt;&amp;&#39;", s)

	s, err = HTML(42)
	require.NoError(t, err)
	assert.Equal(t, "42", s)

	s, err = HTML(nil)
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestStrictContextsRejectStructures(t *testing.T) {
	for _, v := range []any{
		[]int{1, 2},
		map[string]int{"a": 1},
		struct{ X int }{1},
	} {
		_, err := HTML(v)
		require.Error(t, err, "%T", v)
		var eerr *Error
		assert.ErrorAs(t, err, &eerr)

		_, err = Attr(v)
		assert.Error(t, err, "%T", v)
	}
}

func TestJSEncoding(t *testing.T) {
	s, err := JS("</script>")
	require.NoError(t, err)
	assert.False(t, strings.Contains(s, "</script>"))
	assert.Contains(t, s, "u003c")

	s, err = JS("it's")
	require.NoError(t, err)
	assert.False(t, strings.Contains(s, "'"), s)
}

func TestJSKeepsStringDelimiters(t *testing.T) {
	s, err := JS(map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, s)
}

func TestJSTrailingBackslash(t *testing.T) {
	// A value ending in a backslash encodes as \\ right before the closing
	// delimiter; the delimiter must survive the quote rewrite.
	s, err := JS(`a\`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\"`, s)
}

func TestJSEmbeddedQuote(t *testing.T) {
	s, err := JS(`say "hi"`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, `"`), s)
	assert.True(t, strings.HasSuffix(s, `"`), s)
	assert.Contains(t, s, "u0022")
	assert.Equal(t, 2, strings.Count(s, `"`), "only the delimiters remain")
}

func TestJSONAttr(t *testing.T) {
	s, err := JSONAttr(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{&quot;a&quot;:1}", s)
}

func TestCSS(t *testing.T) {
	s, err := CSS("JavaScript:alert(1)")
	require.NoError(t, err)
	assert.False(t, strings.Contains(strings.ToLower(s), "javascript:"))

	s, err = CSS("red")
	require.NoError(t, err)
	assert.Equal(t, "red", s)

	s, err = CSS("expression(evil)")
	require.NoError(t, err)
	assert.False(t, strings.Contains(s, "expression("))
}

func TestURL(t *testing.T) {
	s, err := URL("a b/c?d=e")
	require.NoError(t, err)
	assert.Equal(t, "a%20b%2Fc%3Fd%3De", s)

	s, err = URL("safe-._~123")
	require.NoError(t, err)
	assert.Equal(t, "safe-._~123", s)
}

func TestRaw(t *testing.T) {
	s, err := Raw("<b>")
	require.NoError(t, err)
	assert.Equal(t, "<b>", s)

	// Raw is opt-in: unrenderable values coerce to empty, never error.
	s, err = Raw(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestFuncDispatch(t *testing.T) {
	for _, ctx := range []Context{CtxHTML, CtxAttr, CtxJS, CtxJSON, CtxJSONAttr, CtxCSS, CtxURL, CtxRaw} {
		assert.NotNil(t, Func(ctx), string(ctx))
	}
	s, err := Encode("<x>", CtxHTML)
	require.NoError(t, err)
	assert.Equal(t, "&lt;x&gt;", s)
}
