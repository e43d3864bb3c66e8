package compiler

import (
	"strings"

	"vellum/pkg/escape"
)

// Parser builds the AST from the token stream: recursive descent with a
// one-token lookahead cursor. The parser is where malformed input finally
// gets rejected; the lexer always produced some stream.
type Parser struct {
	ctx    *Context
	tokens []Token
	pos    int
	// elems tracks the open element tags so body interpolations can pick
	// up script/style contexts.
	elems []string
	// voidTags never take children or end tags. Configurable so non-HTML
	// dialects can swap the set.
	voidTags map[string]bool
}

var defaultVoidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// urlAttrs take URL escaping for their interpolations.
var urlAttrs = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"poster": true, "cite": true, "data": true,
}

// NewParser builds a parser for one compile call.
func NewParser(ctx *Context, tokens []Token) *Parser {
	return &Parser{ctx: ctx, tokens: tokens, voidTags: defaultVoidTags}
}

// SetVoidTags replaces the void/self-closing tag set.
func (p *Parser) SetVoidTags(tags []string) {
	p.voidTags = make(map[string]bool, len(tags))
	for _, t := range tags {
		p.voidTags[t] = true
	}
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) next() Token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

// Parse consumes the whole token stream into a Document.
func (p *Parser) Parse() (*Document, error) {
	doc := &Document{Origin: Origin{Line: 1, Col: 1}}
	children, err := p.parseNodes("")
	if err != nil {
		return nil, err
	}
	doc.Children = children
	return doc, nil
}

// parseNodes parses siblings until the end tag named until (or EOF at the
// top level, when until is empty).
func (p *Parser) parseNodes(until string) ([]Node, error) {
	var nodes []Node
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenEOF:
			if until != "" {
				return nil, syntaxErrorf(p.ctx.Template, tok.Line, tok.Column,
					"unclosed element <%s>", until)
			}
			return nodes, nil

		case TokenText, TokenRawText:
			p.next()
			nodes = append(nodes, &Text{
				Origin:  Origin{Line: tok.Line, Col: tok.Column},
				Content: tok.Literal,
			})

		case TokenOutput:
			p.next()
			out, err := p.parseOutput(tok, p.bodyContext())
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, out)

		case TokenCode:
			p.next()
			nodes = append(nodes, &RawCode{
				Origin: Origin{Line: tok.Line, Col: tok.Column},
				Code:   tok.Literal,
			})

		case TokenEndTag:
			if until != "" && strings.EqualFold(tok.Literal, until) {
				p.next()
				return nodes, nil
			}
			return nil, syntaxErrorf(p.ctx.Template, tok.Line, tok.Column,
				"unexpected closing tag </%s>", tok.Literal)

		case TokenTagOpen:
			n, err := p.parseElement()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)

		default:
			return nil, syntaxErrorf(p.ctx.Template, tok.Line, tok.Column,
				"unexpected %s token", tok.Type)
		}
	}
}

// bodyContext picks the sink context of an interpolation in element
// content from the innermost open element.
func (p *Parser) bodyContext() escape.Context {
	if len(p.elems) > 0 {
		switch p.elems[len(p.elems)-1] {
		case "script":
			return escape.CtxJS
		case "style":
			return escape.CtxCSS
		}
	}
	return escape.CtxHTML
}

// attrContext picks the sink context of an interpolation inside an
// attribute value from the attribute name.
func attrContext(name string) escape.Context {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "on"):
		return escape.CtxJS
	case lower == "style":
		return escape.CtxCSS
	case urlAttrs[lower]:
		return escape.CtxURL
	}
	return escape.CtxAttr
}

// parseElement consumes one element (or x:fragment) including children.
func (p *Parser) parseElement() (Node, error) {
	open := p.next() // TAG_OPEN
	tag := open.Literal
	origin := Origin{Line: open.Line, Col: open.Column}

	attrs, selfClose, err := p.parseAttrs(open)
	if err != nil {
		return nil, err
	}

	if tag == "x:fragment" {
		frag := &Fragment{Origin: origin, Attrs: attrs}
		if !selfClose {
			frag.Children, err = p.parseNodes(tag)
			if err != nil {
				return nil, err
			}
		}
		return frag, nil
	}

	elem := &Element{
		Origin:    origin,
		Tag:       tag,
		Attrs:     attrs,
		SelfClose: selfClose,
		Void:      p.voidTags[strings.ToLower(tag)],
	}
	if !selfClose && !elem.Void {
		p.elems = append(p.elems, strings.ToLower(tag))
		elem.Children, err = p.parseNodes(tag)
		p.elems = p.elems[:len(p.elems)-1]
		if err != nil {
			return nil, err
		}
	}
	return elem, nil
}

// parseAttrs consumes attributes through the tag close. Attribute values
// come in four shapes: boolean presence, static string, a single output,
// or an ordered mix of literal and output parts.
func (p *Parser) parseAttrs(open Token) ([]*Attr, bool, error) {
	var attrs []*Attr
	for {
		tok := p.next()
		switch tok.Type {
		case TokenTagClose:
			return attrs, false, nil
		case TokenSelfClose:
			return attrs, true, nil
		case TokenEOF:
			return nil, false, syntaxErrorf(p.ctx.Template, open.Line, open.Column,
				"unterminated tag <%s>", open.Literal)

		case TokenAttrName:
			name := tok.Literal
			attr := &Attr{Origin: Origin{Line: tok.Line, Col: tok.Column}, Name: name}
			if p.peek().Type != TokenAssign {
				if name == "raw" {
					continue // the raw marker is consumed, never emitted
				}
				attr.Bool = true
				attrs = append(attrs, attr)
				continue
			}
			p.next() // ASSIGN
			parts, err := p.parseAttrValue(name)
			if err != nil {
				return nil, false, err
			}
			switch {
			case len(parts) == 0:
				attr.Static = ""
			case len(parts) == 1:
				if t, ok := parts[0].(*Text); ok {
					attr.Static = t.Content
				} else {
					attr.Parts = parts
				}
			default:
				attr.Parts = parts
			}
			attrs = append(attrs, attr)

		default:
			return nil, false, syntaxErrorf(p.ctx.Template, tok.Line, tok.Column,
				"unexpected %s token in tag <%s>", tok.Type, open.Literal)
		}
	}
}

// parseAttrValue consumes value tokens through ATTR_END.
func (p *Parser) parseAttrValue(attrName string) ([]Node, error) {
	var parts []Node
	for {
		tok := p.next()
		switch tok.Type {
		case TokenAttrEnd:
			return parts, nil
		case TokenAttrText:
			parts = append(parts, &Text{
				Origin:  Origin{Line: tok.Line, Col: tok.Column},
				Content: tok.Literal,
			})
		case TokenOutput:
			out, err := p.parseOutput(tok, attrContext(attrName))
			if err != nil {
				return nil, err
			}
			parts = append(parts, out)
		case TokenEOF:
			return parts, nil
		default:
			return nil, syntaxErrorf(p.ctx.Template, tok.Line, tok.Column,
				"unexpected %s token in attribute value", tok.Type)
		}
	}
}

func (p *Parser) parseOutput(tok Token, ctx escape.Context) (*Output, error) {
	return parseOutputExpr(p.ctx, tok.Line, tok.Column, tok.Literal, ctx)
}

// parseOutputExpr builds an Output node from raw interpolation text: the
// base expression plus the |> transform chain. Two pipe names are
// compile-time sentinels consumed here: raw disables escaping, json forces
// the JSON sink. Everything else stays as the ordered runtime transform
// list. Shared by the parser and by content-directive extraction.
func parseOutputExpr(ctx *Context, line, col int, raw string, sctx escape.Context) (*Output, error) {
	segments := splitTopLevel(raw, "|>")
	out := &Output{
		Origin: Origin{Line: line, Col: col},
		Expr:   strings.TrimSpace(segments[0]),
		Escape: true,
		Ctx:    sctx,
	}
	if out.Expr == "" {
		return nil, syntaxErrorf(ctx.Template, line, col, "empty output expression")
	}
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		name, args, err := parsePipeExpr(ctx, line, col, seg)
		if err != nil {
			return nil, err
		}
		switch name {
		case "raw":
			out.Escape = false
		case "json":
			out.Ctx = escape.CtxJSON
		default:
			out.Pipes = append(out.Pipes, Pipe{Name: name, Args: args})
		}
	}
	return out, nil
}

func parsePipeExpr(ctx *Context, line, col int, seg string) (string, []string, error) {
	if seg == "" {
		return "", nil, syntaxErrorf(ctx.Template, line, col, "empty pipe segment")
	}
	paren := strings.IndexByte(seg, '(')
	if paren < 0 {
		return seg, nil, nil
	}
	if !strings.HasSuffix(seg, ")") {
		return "", nil, syntaxErrorf(ctx.Template, line, col,
			"malformed pipe segment %q", seg)
	}
	name := strings.TrimSpace(seg[:paren])
	inner := seg[paren+1 : len(seg)-1]
	var args []string
	for _, a := range splitTopLevel(inner, ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return name, args, nil
}

// splitTopLevel splits s on sep, ignoring separators nested inside
// parentheses, brackets, braces or string literals.
func splitTopLevel(s, sep string) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		default:
			if depth == 0 && strings.HasPrefix(s[i:], sep) {
				out = append(out, s[start:i])
				i += len(sep) - 1
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
