package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vellum/pkg/escape"
)

func parse(t *testing.T, src string) *Document {
	t.Helper()
	ctx := &Context{Template: "test", Source: src}
	doc, err := NewParser(ctx, NewLexer(src).Tokenize()).Parse()
	require.NoError(t, err)
	return doc
}

func parseErr(t *testing.T, src string) error {
	t.Helper()
	ctx := &Context{Template: "test", Source: src}
	_, err := NewParser(ctx, NewLexer(src).Tokenize()).Parse()
	require.Error(t, err)
	return err
}

func TestParserNesting(t *testing.T) {
	doc := parse(t, `<div><p>a</p><p>b</p></div>`)
	require.Len(t, doc.Children, 1)
	div := doc.Children[0].(*Element)
	assert.Equal(t, "div", div.Tag)
	require.Len(t, div.Children, 2)
	assert.Equal(t, "p", div.Children[0].(*Element).Tag)
}

func TestParserVoidAndSelfClose(t *testing.T) {
	doc := parse(t, `<img src="a.png"><br><input disabled><span/>x`)
	require.Len(t, doc.Children, 5)
	img := doc.Children[0].(*Element)
	assert.True(t, img.Void)
	assert.Empty(t, img.Children)
	input := doc.Children[2].(*Element)
	require.Len(t, input.Attrs, 1)
	assert.True(t, input.Attrs[0].Bool)
	span := doc.Children[3].(*Element)
	assert.True(t, span.SelfClose)
}

func TestParserAttrShapes(t *testing.T) {
	doc := parse(t, `<a id="x" href="/u/<?= $id ?>" title="<?= $t ?>" hidden data-x="">y</a>`)
	a := doc.Children[0].(*Element)
	require.Len(t, a.Attrs, 5)

	assert.Equal(t, "x", a.Attrs[0].Static)

	href := a.Attrs[1]
	require.Len(t, href.Parts, 2)
	assert.Equal(t, "/u/", href.Parts[0].(*Text).Content)
	assert.Equal(t, escape.CtxURL, href.Parts[1].(*Output).Ctx)

	title := a.Attrs[2]
	require.Len(t, title.Parts, 1)
	assert.Equal(t, escape.CtxAttr, title.Parts[0].(*Output).Ctx)

	assert.True(t, a.Attrs[3].Bool)
	assert.Equal(t, "", a.Attrs[4].Static)
	assert.False(t, a.Attrs[4].Bool)
}

func TestParserBodyContexts(t *testing.T) {
	doc := parse(t, `<p><?= $a ?></p><script>x = <?= $b ?>;</script><style>p { c: <?= $c ?> }</style>`)
	p := doc.Children[0].(*Element)
	assert.Equal(t, escape.CtxHTML, p.Children[0].(*Output).Ctx)
	script := doc.Children[1].(*Element)
	assert.Equal(t, escape.CtxJS, script.Children[1].(*Output).Ctx)
	style := doc.Children[2].(*Element)
	assert.Equal(t, escape.CtxCSS, style.Children[1].(*Output).Ctx)
}

func TestParserEventAttrContext(t *testing.T) {
	doc := parse(t, `<button onclick="go(<?= $id ?>)">x</button>`)
	btn := doc.Children[0].(*Element)
	out := btn.Attrs[0].Parts[1].(*Output)
	assert.Equal(t, escape.CtxJS, out.Ctx)
}

func TestParserPipes(t *testing.T) {
	doc := parse(t, `<p><?= $name |> trim |> truncate(20, "x") |> raw ?></p>`)
	out := doc.Children[0].(*Element).Children[0].(*Output)
	assert.Equal(t, "$name", out.Expr)
	assert.False(t, out.Escape, "raw sentinel disables escaping")
	require.Len(t, out.Pipes, 2)
	assert.Equal(t, "trim", out.Pipes[0].Name)
	assert.Equal(t, "truncate", out.Pipes[1].Name)
	assert.Equal(t, []string{"20", `"x"`}, out.Pipes[1].Args)
}

func TestParserJSONSentinel(t *testing.T) {
	doc := parse(t, `<p><?= $cfg |> json ?></p>`)
	out := doc.Children[0].(*Element).Children[0].(*Output)
	assert.Equal(t, escape.CtxJSON, out.Ctx)
	assert.Empty(t, out.Pipes)
}

func TestParserFragment(t *testing.T) {
	doc := parse(t, `<x:fragment x:if="$ok"><p>a</p><p>b</p></x:fragment>`)
	frag := doc.Children[0].(*Fragment)
	require.Len(t, frag.Attrs, 1)
	assert.Equal(t, "x:if", frag.Attrs[0].Name)
	assert.Len(t, frag.Children, 2)
}

func TestParserRawCode(t *testing.T) {
	doc := parse(t, `<? audit($user) ?>done`)
	rc := doc.Children[0].(*RawCode)
	assert.Equal(t, "audit($user)", rc.Code)
}

func TestParserErrors(t *testing.T) {
	t.Run("unclosed element", func(t *testing.T) {
		err := parseErr(t, `<div><p>a</div>`)
		assert.Contains(t, err.Error(), "unexpected closing tag")
	})
	t.Run("unclosed at eof", func(t *testing.T) {
		err := parseErr(t, `<div>a`)
		assert.Contains(t, err.Error(), "unclosed element <div>")
	})
	t.Run("empty output", func(t *testing.T) {
		err := parseErr(t, `<p><?= ?></p>`)
		assert.Contains(t, err.Error(), "empty output expression")
	})
	t.Run("positions in errors", func(t *testing.T) {
		err := parseErr(t, "<div>\n  <p>a\n</div>")
		var serr *SyntaxError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, 3, serr.Line)
	})
}

func TestSplitTopLevel(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitTopLevel("a|>b", "|>"))
	assert.Equal(t, []string{`f("x|>y")`, "g"}, splitTopLevel(`f("x|>y")|>g`, "|>"))
	assert.Equal(t, []string{"f(a, b)", " c"}, splitTopLevel("f(a, b), c", ","))
	assert.Equal(t, []string{`'it''s'`}, splitTopLevel(`'it''s'`, ","))
}
