package compiler

import (
	"strconv"
	"strings"

	"vellum/pkg/escape"
)

// directivePrefix marks directive attributes on elements and fragments.
const directivePrefix = "x:"

// ExtractDirectives scans every element for x:-prefixed attributes and
// rewrites the tree: attribute directives compile in place, content
// directives replace the element children, and the single allowed
// control-flow directive wraps the element in a Directive node. Children
// are processed before their parent so nested directives extract
// innermost first.
func ExtractDirectives(doc *Document, ctx *Context, reg *Registry) error {
	e := &extractor{ctx: ctx, reg: reg}
	children, err := e.walk(doc.Children)
	if err != nil {
		return err
	}
	doc.Children = children
	return nil
}

type extractor struct {
	ctx *Context
	reg *Registry
}

func (e *extractor) walk(nodes []Node) ([]Node, error) {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *Element:
			kids, err := e.walk(n.Children)
			if err != nil {
				return nil, err
			}
			n.Children = kids
			repl, err := e.extractElement(n)
			if err != nil {
				return nil, err
			}
			out = append(out, repl)
		case *Fragment:
			kids, err := e.walk(n.Children)
			if err != nil {
				return nil, err
			}
			n.Children = kids
			repl, err := e.extractFragment(n)
			if err != nil {
				return nil, err
			}
			out = append(out, repl)
		default:
			out = append(out, n)
		}
	}
	return out, nil
}

// occurrence is one directive attribute pulled off an element.
type occurrence struct {
	def  *Definition
	name string
	expr string
	mods []string
	Origin
}

func (e *extractor) splitDirectives(attrs []*Attr, host string) (kept []*Attr, occs []occurrence, err error) {
	for _, a := range attrs {
		if !strings.HasPrefix(a.Name, directivePrefix) {
			kept = append(kept, a)
			continue
		}
		parts := strings.Split(a.Name[len(directivePrefix):], ".")
		name := parts[0]
		def := e.reg.Lookup(name)
		if def == nil {
			msg := "unknown directive x:" + name
			if s := e.reg.Suggest(name); s != "" {
				msg += " (did you mean x:" + s + "?)"
			}
			return nil, nil, syntaxErrorf(e.ctx.Template, a.Line, a.Col, "%s", msg)
		}
		if len(a.Parts) > 0 {
			return nil, nil, syntaxErrorf(e.ctx.Template, a.Line, a.Col,
				"directive x:%s on <%s> takes a plain expression, not an interpolated value", name, host)
		}
		occs = append(occs, occurrence{
			def: def, name: name, expr: strings.TrimSpace(a.Static),
			mods: parts[1:], Origin: a.Origin,
		})
	}
	return kept, occs, nil
}

func (e *extractor) extractElement(elem *Element) (Node, error) {
	kept, occs, err := e.splitDirectives(elem.Attrs, elem.Tag)
	if err != nil {
		return nil, err
	}
	if len(occs) == 0 {
		return elem, nil
	}
	elem.Attrs = kept

	var control, content *occurrence
	for i := range occs {
		occ := &occs[i]
		switch occ.def.Type {
		case Attribute:
			if err := e.applyAttribute(elem, occ); err != nil {
				return nil, err
			}
		case Content:
			if content != nil {
				return nil, syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
					"element <%s> carries conflicting content directives x:%s and x:%s",
					elem.Tag, content.name, occ.name)
			}
			content = occ
		case ControlFlow:
			if control != nil {
				return nil, syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
					"element <%s> carries conflicting control-flow directives x:%s and x:%s",
					elem.Tag, control.name, occ.name)
			}
			control = occ
		}
	}

	var host Node = elem
	if content != nil {
		host, err = e.applyContent(elem, content)
		if err != nil {
			return nil, err
		}
	}
	if control == nil {
		return host, nil
	}
	d := &Directive{
		Origin:   control.Origin,
		Name:     control.name,
		Expr:     control.expr,
		Children: []Node{host},
	}
	if control.def.KeepElem {
		he, ok := host.(*Element)
		if !ok {
			return nil, syntaxErrorf(e.ctx.Template, control.Line, control.Col,
				"x:%s requires an element host", control.name)
		}
		d.Elem = he
	}
	return d, nil
}

func (e *extractor) extractFragment(frag *Fragment) (Node, error) {
	kept, occs, err := e.splitDirectives(frag.Attrs, "x:fragment")
	if err != nil {
		return nil, err
	}
	frag.Attrs = kept
	var control *occurrence
	for i := range occs {
		occ := &occs[i]
		if occ.def.Type != ControlFlow {
			return nil, syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
				"x:fragment cannot carry x:%s, only control-flow directives", occ.name)
		}
		if control != nil {
			return nil, syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
				"x:fragment carries conflicting control-flow directives x:%s and x:%s",
				control.name, occ.name)
		}
		control = occ
	}
	if control == nil {
		return frag, nil
	}
	if control.def.KeepElem {
		return nil, syntaxErrorf(e.ctx.Template, control.Line, control.Col,
			"x:%s requires an element host", control.name)
	}
	return &Directive{
		Origin:   control.Origin,
		Name:     control.name,
		Expr:     control.expr,
		Children: []Node{frag},
	}, nil
}

// applyContent replaces the element children with one interpolation.
// x:text escapes, x:html emits verbatim. The bare modifier discards the
// element wrapper entirely, which only makes sense when nothing else
// hangs off the tag.
func (e *extractor) applyContent(elem *Element, occ *occurrence) (Node, error) {
	if occ.expr == "" {
		return nil, syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
			"x:%s on <%s> needs an expression", occ.name, elem.Tag)
	}
	out, err := parseOutputExpr(e.ctx, occ.Line, occ.Col, occ.expr, escape.CtxHTML)
	if err != nil {
		return nil, err
	}
	if occ.name == "html" {
		out.Escape = false
	}
	for _, m := range occ.mods {
		if m != "bare" {
			return nil, syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
				"unknown modifier .%s on x:%s", m, occ.name)
		}
		if len(elem.Attrs) > 0 || elem.DynTag != "" {
			return nil, syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
				"x:%s.bare on <%s> would drop its remaining attributes", occ.name, elem.Tag)
		}
		return out, nil
	}
	elem.Children = []Node{out}
	return elem, nil
}

// applyAttribute compiles an attribute directive in place on the open tag.
func (e *extractor) applyAttribute(elem *Element, occ *occurrence) error {
	if occ.expr == "" {
		return syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
			"x:%s on <%s> needs an expression", occ.name, elem.Tag)
	}
	switch occ.name {
	case "class":
		return e.applyClass(elem, occ)
	case "attr":
		elem.Attrs = append(elem.Attrs, &Attr{
			Origin: occ.Origin,
			Spread: true,
			Parts: []Node{&RuntimeCall{
				Origin: occ.Origin,
				Name:   "attrs",
				Args:   []CallArg{{Expr: occ.expr}},
				Ctx:    escape.CtxAttr,
			}},
		})
		return nil
	case "tag":
		elem.DynTag = occ.expr
		return nil
	}
	return syntaxErrorf(e.ctx.Template, occ.Line, occ.Col, "unhandled attribute directive x:%s", occ.name)
}

// applyClass merges the dynamic class list with any static class
// attribute. Entries are either bare expressions contributing their value
// or 'name' => cond pairs contributing the name when the condition holds.
func (e *extractor) applyClass(elem *Element, occ *occurrence) error {
	expr := occ.expr
	// The entry list may be written with or without surrounding brackets.
	if strings.HasPrefix(expr, "[") && strings.HasSuffix(expr, "]") {
		expr = expr[1 : len(expr)-1]
	}
	call := &RuntimeCall{Origin: occ.Origin, Name: "classlist", Ctx: escape.CtxAttr}
	for _, entry := range splitTopLevel(expr, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		halves := splitTopLevel(entry, "=>")
		if len(halves) == 1 {
			call.Args = append(call.Args, CallArg{Expr: entry})
			continue
		}
		if len(halves) != 2 {
			return syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
				"malformed class entry %q", entry)
		}
		name := strings.TrimSpace(halves[0])
		name = strings.Trim(name, `'"`)
		if name == "" {
			return syntaxErrorf(e.ctx.Template, occ.Line, occ.Col,
				"class entry %q names no class", entry)
		}
		call.Args = append(call.Args, CallArg{Name: name, Expr: strings.TrimSpace(halves[1])})
	}
	if len(call.Args) == 0 {
		return syntaxErrorf(e.ctx.Template, occ.Line, occ.Col, "x:class with no entries")
	}

	for _, a := range elem.Attrs {
		if !strings.EqualFold(a.Name, "class") || a.Spread {
			continue
		}
		if a.Static != "" {
			// Static classes become a literal entry ahead of the dynamic ones.
			call.Args = append([]CallArg{{Expr: strconv.Quote(a.Static)}}, call.Args...)
			a.Static = ""
			a.Parts = []Node{call}
			return nil
		}
		if a.Bool {
			a.Bool = false
		}
		if len(a.Parts) == 0 {
			a.Parts = []Node{call}
		} else {
			a.Parts = append(a.Parts, &Text{Origin: occ.Origin, Content: " "}, call)
		}
		return nil
	}
	elem.Attrs = append(elem.Attrs, &Attr{
		Origin: occ.Origin,
		Name:   "class",
		Parts:  []Node{call},
	})
	return nil
}
