package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyEscaping(t *testing.T) {
	out := render(t, `<p><?= $v ?></p>`, map[string]any{"v": `<script>alert("x")</script>`})
	assert.Equal(t, `<p>&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt;</p>`, out)
}

func TestAttrEscaping(t *testing.T) {
	out := render(t, `<div title="<?= $v ?>">x</div>`, map[string]any{"v": `" onmouseover="evil()`})
	assert.Equal(t, `<div title="&quot; onmouseover=&quot;evil()">x</div>`, out)
}

func TestScriptEscaping(t *testing.T) {
	out := render(t, `<script>var name = <?= $v ?>;</script>`, map[string]any{"v": `</script><b>`})
	assert.False(t, strings.Contains(out, `</script><b>`), "breakout must be neutralized: %s", out)
	assert.Contains(t, out, `u003c`, "angle brackets are hex-escaped inside the script")
}

func TestScriptTrailingBackslashValue(t *testing.T) {
	// The encoded string must stay terminated when the value ends in a
	// backslash.
	out := render(t, `<script>var a = <?= $v ?>;</script>`, map[string]any{"v": `a\`})
	assert.Contains(t, out, `var a = "a\\";`, "delimiter survives: %s", out)
}

func TestJSONSentinelInBody(t *testing.T) {
	out := render(t, `<p><?= $cfg |> json ?></p>`, map[string]any{
		"cfg": map[string]any{"name": "<b>"},
	})
	// Angle brackets are hex-escaped inside the JSON, never entity-encoded.
	assert.True(t, strings.HasPrefix(out, `<p>{"name":"`), out)
	assert.Contains(t, out, `u003cb`)
	assert.False(t, strings.Contains(out, `<b>`), out)
}

func TestJSONSentinelInAttr(t *testing.T) {
	out := render(t, `<div data-cfg="<?= $cfg |> json ?>">x</div>`, map[string]any{
		"cfg": map[string]any{"a": `"b"`},
	})
	// JSON first, then entity-encoded like any attribute value.
	assert.Equal(t, `<div data-cfg="{&quot;a&quot;:&quot;\&quot;b\&quot;&quot;}">x</div>`, out)
}

func TestURLEscaping(t *testing.T) {
	out := render(t, `<a href="/q?term=<?= $v ?>">x</a>`, map[string]any{"v": "a b&c"})
	assert.Equal(t, `<a href="/q?term=a%20b%26c">x</a>`, out)
}

func TestCSSEscaping(t *testing.T) {
	out := render(t, `<div style="color: <?= $v ?>">x</div>`, map[string]any{"v": "javascript:bad"})
	assert.False(t, strings.Contains(out, "javascript:"), "css scheme must be stripped: %s", out)
}

func TestRawSentinel(t *testing.T) {
	out := render(t, `<p><?= $v |> raw ?></p>`, map[string]any{"v": "<b>bold</b>"})
	assert.Equal(t, `<p><b>bold</b></p>`, out)
}

func TestStrictContextRejectsStructures(t *testing.T) {
	p, err := Compile(`<p><?= $v ?></p>`, Options{Name: "test"})
	require.NoError(t, err)
	_, err = p.Render(map[string]any{"v": map[string]any{"a": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot escape")
}

func TestNilRendersEmpty(t *testing.T) {
	out := render(t, `<p><?= $v ?></p>`, map[string]any{"v": nil})
	assert.Equal(t, `<p></p>`, out)
}

func TestTransformsRunBeforeEscaping(t *testing.T) {
	out := render(t, `<p><?= $v |> upper ?></p>`, map[string]any{"v": "a<b"})
	assert.Equal(t, `<p>A&lt;B</p>`, out)
}

func TestTransformChainOrder(t *testing.T) {
	out := render(t, `<p><?= $v |> trim |> truncate(3) ?></p>`, map[string]any{"v": "  abcdef  "})
	assert.Equal(t, `<p>abc…</p>`, out)
}

func TestDefaultTransform(t *testing.T) {
	out := render(t, `<p><?= $v |> default("n/a") ?></p>`, map[string]any{"v": ""})
	assert.Equal(t, `<p>n/a</p>`, out)
}

func TestDisassembleListing(t *testing.T) {
	p, err := Compile(`<p x:if="$ok"><?= $v ?></p>`, Options{Name: "test"})
	require.NoError(t, err)
	var b strings.Builder
	p.Disassemble(&b)
	listing := b.String()
	assert.Contains(t, listing, "OpJumpIfFalse")
	assert.Contains(t, listing, "OpOutput")
	assert.Contains(t, listing, "OpText")
}
