package compiler

import (
	"strings"
)

// Lexer turns template source into a token stream. It cooperates across
// four scan modes: text, tag, attribute value and raw passthrough. It
// never fails: malformed input degrades to literal text and is rejected,
// if at all, by the parser.
type Lexer struct {
	input  string
	pos    int
	line   int
	col    int
	tokens []Token
}

// rawTextTags close only at their own end tag; their content is scanned as
// text with embedded outputs still recognized.
var rawTextTags = map[string]bool{
	"script":   true,
	"style":    true,
	"textarea": true,
	"title":    true,
}

// NewLexer builds a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Tokenize scans the whole input and returns the token stream, always
// terminated by an EOF token.
func (l *Lexer) Tokenize() []Token {
	l.lexText()
	l.emit(TokenEOF, "")
	return l.tokens
}

func (l *Lexer) emit(t TokenType, lit string) {
	l.emitAt(t, lit, l.line, l.col)
}

func (l *Lexer) emitAt(t TokenType, lit string, line, col int) {
	l.tokens = append(l.tokens, Token{Type: t, Literal: lit, Line: line, Column: col})
}

// advance consumes n bytes, keeping line/column in sync.
func (l *Lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.input); i++ {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *Lexer) rest() string {
	return l.input[l.pos:]
}

func (l *Lexer) hasPrefix(s string) bool {
	return strings.HasPrefix(l.rest(), s)
}

// lexText is the outer text mode. It accumulates literal runs and
// dispatches on markup and embedded-expression openers.
func (l *Lexer) lexText() {
	start, sl, sc := l.pos, l.line, l.col
	flush := func() {
		if l.pos > start {
			l.emitAt(TokenText, l.input[start:l.pos], sl, sc)
		}
	}
	reset := func() { start, sl, sc = l.pos, l.line, l.col }

	for l.pos < len(l.input) {
		if l.input[l.pos] != '<' {
			l.advance(1)
			continue
		}
		switch {
		case l.hasPrefix("<?="):
			flush()
			l.lexOutput()
			reset()
		case l.hasPrefix("<!--"):
			l.skipThrough("-->") // comments pass through inside the text run
		case l.hasPrefix("<![CDATA["):
			l.skipThrough("]]>")
		case l.hasPrefix("<?xml"):
			l.skipThrough("?>") // processing instruction, passthrough
		case l.hasPrefix("<?"):
			flush()
			l.lexCode()
			reset()
		case l.hasPrefix("<!"):
			l.skipThrough(">") // doctype, passthrough
		case l.hasPrefix("</"):
			if name, n := scanEndTag(l.rest()); n > 0 {
				flush()
				l.emit(TokenEndTag, name)
				l.advance(n)
				reset()
			} else {
				l.advance(2) // stray "</", stays literal
			}
		case len(l.rest()) > 1 && isTagNameStart(l.rest()[1]):
			flush()
			l.lexTag()
			reset()
		default:
			l.advance(1) // lone '<' is literal text
		}
	}
	flush()
}

// skipThrough advances past the next occurrence of end, or to EOF when the
// construct is unterminated, leaving everything inside the text run.
func (l *Lexer) skipThrough(end string) {
	if i := strings.Index(l.rest(), end); i >= 0 {
		l.advance(i + len(end))
	} else {
		l.advance(len(l.rest()))
	}
}

// lexOutput consumes <?= expr ?> and emits an OUTPUT token with the inner
// expression. An unterminated marker swallows the rest of the input.
func (l *Lexer) lexOutput() {
	line, col := l.line, l.col
	l.advance(3)
	inner := l.rest()
	if i := strings.Index(inner, "?>"); i >= 0 {
		inner = inner[:i]
		l.advance(i + 2)
	} else {
		l.advance(len(inner))
	}
	l.emitAt(TokenOutput, strings.TrimSpace(inner), line, col)
}

// lexCode consumes a full code block <? ... ?>.
func (l *Lexer) lexCode() {
	line, col := l.line, l.col
	l.advance(2)
	inner := l.rest()
	if i := strings.Index(inner, "?>"); i >= 0 {
		inner = inner[:i]
		l.advance(i + 2)
	} else {
		l.advance(len(inner))
	}
	l.emitAt(TokenCode, strings.TrimSpace(inner), line, col)
}

// lexTag scans from '<' through the tag close, emitting the open token,
// attribute tokens and the closing token, then hands off to the raw or
// raw-text scanners when the tag calls for them.
func (l *Lexer) lexTag() {
	name := scanTagName(l.rest()[1:])
	l.emit(TokenTagOpen, name)
	l.advance(1 + len(name))

	rawAttr := false
	for l.pos < len(l.input) {
		l.skipSpace()
		if l.pos >= len(l.input) {
			return // unterminated tag, parser will complain
		}
		switch c := l.input[l.pos]; {
		case c == '>':
			l.emit(TokenTagClose, ">")
			l.advance(1)
			if rawAttr {
				l.lexRawRegion(name)
			} else if rawTextTags[name] {
				l.lexRawTextElement(name)
			}
			return
		case c == '/' && l.hasPrefix("/>"):
			l.emit(TokenSelfClose, "/>")
			l.advance(2)
			return
		case c == '<':
			// Missing '>'. Close the tag best-effort and rescan.
			l.emit(TokenTagClose, ">")
			return
		case c == '=' || c == '"' || c == '\'' || c == '/':
			l.advance(1) // malformed attribute start, drop the byte
		default:
			aname := scanAttrName(l.rest())
			if aname == "" {
				l.advance(1)
				continue
			}
			l.emit(TokenAttrName, aname)
			l.advance(len(aname))
			if aname == "raw" {
				rawAttr = true
			}
			l.skipSpace()
			if l.pos < len(l.input) && l.input[l.pos] == '=' {
				l.emit(TokenAssign, "=")
				l.advance(1)
				l.skipSpace()
				l.lexAttrValue()
			}
		}
	}
}

// lexAttrValue scans one attribute value: quoted values become an ordered
// run of ATTR_TEXT and OUTPUT tokens closed by ATTR_END, so one value can
// interleave several embedded expressions. Scanning resumes correctly
// after an expression closes mid-value.
func (l *Lexer) lexAttrValue() {
	if l.pos >= len(l.input) {
		l.emit(TokenAttrEnd, "")
		return
	}
	q := l.input[l.pos]
	if q != '"' && q != '\'' {
		// Unquoted value: a single bare chunk.
		val := scanUnquoted(l.rest())
		if val != "" {
			l.emit(TokenAttrText, val)
			l.advance(len(val))
		}
		l.emit(TokenAttrEnd, "")
		return
	}
	l.advance(1)
	start, sl, sc := l.pos, l.line, l.col
	flush := func() {
		if l.pos > start {
			l.emitAt(TokenAttrText, l.input[start:l.pos], sl, sc)
		}
	}
	for l.pos < len(l.input) {
		if l.input[l.pos] == q {
			flush()
			l.emit(TokenAttrEnd, "")
			l.advance(1)
			return
		}
		if l.hasPrefix("<?=") {
			flush()
			l.lexOutput()
			start, sl, sc = l.pos, l.line, l.col
			continue
		}
		l.advance(1)
	}
	// Unterminated quote: keep what we saw.
	flush()
	l.emit(TokenAttrEnd, "")
}

// lexRawRegion handles the raw passthrough attribute: find the end tag
// matching the opening tag, tracking same-name nesting so inner tags of
// the same name do not close the region early. When no matching end tag
// exists the region silently degrades to ordinary tokenizing.
func (l *Lexer) lexRawRegion(name string) {
	depth := 1
	src := l.rest()
	i := 0
	for i < len(src) {
		if src[i] != '<' {
			i++
			continue
		}
		if n := matchEndTag(src[i:], name); n > 0 {
			depth--
			if depth == 0 {
				if i > 0 {
					l.emit(TokenRawText, src[:i])
				}
				l.advance(i)
				l.emit(TokenEndTag, name)
				l.advance(n)
				return
			}
			i += n
			continue
		}
		if n := matchOpenTag(src[i:], name); n > 0 {
			depth++
			i += n
			continue
		}
		i++
	}
	// No matching close: fall back to ordinary tokenizing of the region.
}

// lexRawTextElement scans the body of script/style-like elements: only the
// matching end tag terminates it, but embedded outputs are still honored
// so script interpolations pick up the right context.
func (l *Lexer) lexRawTextElement(name string) {
	start, sl, sc := l.pos, l.line, l.col
	flush := func() {
		if l.pos > start {
			l.emitAt(TokenText, l.input[start:l.pos], sl, sc)
		}
	}
	for l.pos < len(l.input) {
		if l.hasPrefix("<?=") {
			flush()
			l.lexOutput()
			start, sl, sc = l.pos, l.line, l.col
			continue
		}
		if l.input[l.pos] == '<' {
			if n := matchEndTag(l.rest(), name); n > 0 {
				flush()
				l.emit(TokenEndTag, name)
				l.advance(n)
				return
			}
		}
		l.advance(1)
	}
	flush()
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.advance(1)
		default:
			return
		}
	}
}

func isTagNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isTagNameChar(c byte) bool {
	return isTagNameStart(c) || c >= '0' && c <= '9' || c == '-' || c == ':'
}

func scanTagName(s string) string {
	i := 0
	for i < len(s) && isTagNameChar(s[i]) {
		i++
	}
	return s[:i]
}

func scanAttrName(s string) string {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c == '=' || c == '>' || c == '/' || c == '<' || c == '"' || c == '\'' {
			break
		}
		i++
	}
	return s[:i]
}

func scanUnquoted(s string) string {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '>' || c == '<' {
			break
		}
		i++
	}
	return s[:i]
}

// scanEndTag matches "</name ... >" at the start of s and returns the tag
// name and total length, or 0 when s is not a well-formed end tag.
func scanEndTag(s string) (string, int) {
	if !strings.HasPrefix(s, "</") {
		return "", 0
	}
	name := scanTagName(s[2:])
	if name == "" {
		return "", 0
	}
	i := 2 + len(name)
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	if i < len(s) && s[i] == '>' {
		return name, i + 1
	}
	return "", 0
}

// matchEndTag reports the length of an end tag for name at the start of s,
// or 0. Tag names compare case-insensitively.
func matchEndTag(s, name string) int {
	got, n := scanEndTag(s)
	if n > 0 && strings.EqualFold(got, name) {
		return n
	}
	return 0
}

// matchOpenTag reports the length through '>' of an open tag for name at
// the start of s, or 0. Self-closing tags do not count: they never need a
// matching end tag, so they must not deepen the raw region.
func matchOpenTag(s, name string) int {
	if len(s) < len(name)+2 || s[0] != '<' {
		return 0
	}
	if !strings.EqualFold(s[1:1+len(name)], name) {
		return 0
	}
	after := s[1+len(name):]
	if len(after) == 0 || isTagNameChar(after[0]) {
		return 0
	}
	end := strings.IndexByte(after, '>')
	if end < 0 {
		return 0
	}
	if end > 0 && after[end-1] == '/' {
		return 0
	}
	return 1 + len(name) + end + 1
}
