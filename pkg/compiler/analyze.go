package compiler

import (
	"strings"

	"vellum/pkg/escape"
)

// AnalyzeContexts is the final pass over output nodes before generation.
// Lowering can relocate interpolations (content directives, re-emitted
// tags), so the context assigned at parse time is re-derived from the
// node's final position and marked final. The one conversion rule: a
// JSON-forced output sitting inside an attribute value gets the
// JSON-in-attribute context, which entity-encodes after encoding.
func AnalyzeContexts(doc *Document, ctx *Context) error {
	a := &analyzer{ctx: ctx}
	return a.walkBody(doc.Children)
}

type analyzer struct {
	ctx   *Context
	elems []string
}

func (a *analyzer) bodyContext() escape.Context {
	if len(a.elems) > 0 {
		switch a.elems[len(a.elems)-1] {
		case "script":
			return escape.CtxJS
		case "style":
			return escape.CtxCSS
		}
	}
	return escape.CtxHTML
}

func (a *analyzer) walkBody(nodes []Node) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Output:
			a.finalizeBody(n)
		case *Element:
			if err := a.walkAttrs(n.Attrs); err != nil {
				return err
			}
			a.elems = append(a.elems, strings.ToLower(n.Tag))
			err := a.walkBody(n.Children)
			a.elems = a.elems[:len(a.elems)-1]
			if err != nil {
				return err
			}
		case *Fragment:
			if err := a.walkBody(n.Children); err != nil {
				return err
			}
		case *Directive:
			line, col := n.Pos()
			return syntaxErrorf(a.ctx.Template, line, col,
				"internal: directive x:%s survived lowering", n.Name)
		}
	}
	return nil
}

func (a *analyzer) walkAttrs(attrs []*Attr) error {
	for _, attr := range attrs {
		for _, part := range attr.Parts {
			out, ok := part.(*Output)
			if !ok {
				continue
			}
			a.finalizeAttr(out, attr.Name)
		}
	}
	return nil
}

func (a *analyzer) finalizeBody(out *Output) {
	if out.CtxFinal {
		return
	}
	switch out.Ctx {
	case escape.CtxJSON:
		// Author forced JSON; body position keeps it plain.
	case escape.CtxAttr, escape.CtxURL, escape.CtxJSONAttr:
		// Relocated out of an attribute: fall back to the body context.
		out.Ctx = a.bodyContext()
	default:
		out.Ctx = a.bodyContext()
	}
	if !out.Escape {
		out.Ctx = escape.CtxRaw
	}
	out.CtxFinal = true
}

func (a *analyzer) finalizeAttr(out *Output, attrName string) {
	if out.CtxFinal {
		return
	}
	switch out.Ctx {
	case escape.CtxJSON:
		out.Ctx = escape.CtxJSONAttr
	default:
		out.Ctx = attrContext(attrName)
	}
	if !out.Escape {
		out.Ctx = escape.CtxRaw
	}
	out.CtxFinal = true
}
