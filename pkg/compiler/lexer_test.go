package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func kinds(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func TestLexerBasicTag(t *testing.T) {
	tokens := NewLexer(`<div class="card">Hi</div>`).Tokenize()
	assert.Equal(t, []TokenType{
		TokenTagOpen, TokenAttrName, TokenAssign, TokenAttrText, TokenAttrEnd,
		TokenTagClose, TokenText, TokenEndTag, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, "div", tokens[0].Literal)
	assert.Equal(t, "card", tokens[3].Literal)
	assert.Equal(t, "Hi", tokens[6].Literal)
}

func TestLexerOutputAndCode(t *testing.T) {
	tokens := NewLexer(`a <?= $name ?> b <? doIt() ?> c`).Tokenize()
	assert.Equal(t, []TokenType{
		TokenText, TokenOutput, TokenText, TokenCode, TokenText, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, "$name", tokens[1].Literal)
	assert.Equal(t, "doIt()", tokens[3].Literal)
}

func TestLexerAttrValueInterleaving(t *testing.T) {
	tokens := NewLexer(`<a href="/u/<?= $id ?>/edit">x</a>`).Tokenize()
	assert.Equal(t, []TokenType{
		TokenTagOpen, TokenAttrName, TokenAssign,
		TokenAttrText, TokenOutput, TokenAttrText, TokenAttrEnd,
		TokenTagClose, TokenText, TokenEndTag, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, "/u/", tokens[3].Literal)
	assert.Equal(t, "$id", tokens[4].Literal)
	assert.Equal(t, "/edit", tokens[5].Literal)
}

func TestLexerRawRegion(t *testing.T) {
	t.Run("passthrough", func(t *testing.T) {
		tokens := NewLexer(`<pre raw><?= $x ?> & <b></pre>`).Tokenize()
		assert.Equal(t, []TokenType{
			TokenTagOpen, TokenAttrName, TokenTagClose,
			TokenRawText, TokenEndTag, TokenEOF,
		}, kinds(tokens))
		assert.Equal(t, "<?= $x ?> & <b>", tokens[3].Literal)
	})

	t.Run("same-name nesting", func(t *testing.T) {
		tokens := NewLexer(`<div raw><div>deep</div></div>after`).Tokenize()
		assert.Equal(t, []TokenType{
			TokenTagOpen, TokenAttrName, TokenTagClose,
			TokenRawText, TokenEndTag, TokenText, TokenEOF,
		}, kinds(tokens))
		assert.Equal(t, "<div>deep</div>", tokens[3].Literal)
		assert.Equal(t, "after", tokens[5].Literal)
	})

	t.Run("self-closing inner tag does not deepen", func(t *testing.T) {
		tokens := NewLexer(`<div raw><div/></div>`).Tokenize()
		assert.Equal(t, []TokenType{
			TokenTagOpen, TokenAttrName, TokenTagClose,
			TokenRawText, TokenEndTag, TokenEOF,
		}, kinds(tokens))
		assert.Equal(t, "<div/>", tokens[3].Literal)
	})

	t.Run("unmatched end falls back silently", func(t *testing.T) {
		tokens := NewLexer(`<div raw><span>x</span>`).Tokenize()
		// No matching </div>: the region degrades to ordinary tokenizing.
		assert.Equal(t, []TokenType{
			TokenTagOpen, TokenAttrName, TokenTagClose,
			TokenTagOpen, TokenTagClose, TokenText, TokenEndTag, TokenEOF,
		}, kinds(tokens))
	})
}

func TestLexerRawTextElements(t *testing.T) {
	tokens := NewLexer(`<script>if (a < b) { go("<div>") }</script>`).Tokenize()
	assert.Equal(t, []TokenType{
		TokenTagOpen, TokenTagClose, TokenText, TokenEndTag, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, `if (a < b) { go("<div>") }`, tokens[2].Literal)

	tokens = NewLexer(`<script>var n = <?= $n ?>;</script>`).Tokenize()
	assert.Equal(t, []TokenType{
		TokenTagOpen, TokenTagClose, TokenText, TokenOutput, TokenText, TokenEndTag, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, "$n", tokens[3].Literal)
}

func TestLexerPassthroughConstructs(t *testing.T) {
	src := `<!doctype html><!-- a <b> comment --><p>ok</p>`
	tokens := NewLexer(src).Tokenize()
	assert.Equal(t, []TokenType{
		TokenText, TokenTagOpen, TokenTagClose, TokenText, TokenEndTag, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, `<!doctype html><!-- a <b> comment -->`, tokens[0].Literal)
}

func TestLexerMalformedInput(t *testing.T) {
	t.Run("lone angle is literal", func(t *testing.T) {
		tokens := NewLexer(`1 < 2 and 2 > 1`).Tokenize()
		assert.Equal(t, []TokenType{TokenText, TokenEOF}, kinds(tokens))
		assert.Equal(t, `1 < 2 and 2 > 1`, tokens[0].Literal)
	})

	t.Run("missing tag close recovers", func(t *testing.T) {
		tokens := NewLexer(`<div <span>x</span>`).Tokenize()
		// The div open tag closes best-effort and scanning resumes.
		assert.Equal(t, TokenTagOpen, tokens[0].Type)
		assert.Equal(t, "div", tokens[0].Literal)
		assert.Contains(t, kinds(tokens), TokenEndTag)
	})

	t.Run("unterminated quote keeps value", func(t *testing.T) {
		tokens := NewLexer(`<div class="oops`).Tokenize()
		assert.Equal(t, []TokenType{
			TokenTagOpen, TokenAttrName, TokenAssign, TokenAttrText, TokenAttrEnd, TokenEOF,
		}, kinds(tokens))
		assert.Equal(t, "oops", tokens[3].Literal)
	})
}

func TestLexerPositions(t *testing.T) {
	tokens := NewLexer("ab\n<p>\n<?= $x ?>").Tokenize()
	assert.Equal(t, []TokenType{
		TokenText, TokenTagOpen, TokenTagClose, TokenText, TokenOutput, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 2, tokens[1].Line) // <p>
	assert.Equal(t, 3, tokens[4].Line) // output
	assert.Equal(t, 1, tokens[4].Column)
}
