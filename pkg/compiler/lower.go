package compiler

import (
	"strings"
)

// CompileDirectives lowers every extracted Directive into plain nodes:
// RawCode control markers around the hosted content, RuntimeCall nodes for
// deferred operations. After this pass the tree contains no Directive
// nodes and the code generator only sees markup, outputs and control
// markers.
func CompileDirectives(doc *Document, ctx *Context, reg *Registry) error {
	lw := &lowerer{ctx: ctx, reg: reg}
	children, err := lw.lowerList(doc.Children)
	if err != nil {
		return err
	}
	doc.Children = children
	return nil
}

type lowerer struct {
	ctx *Context
	reg *Registry
}

func (lw *lowerer) lowerList(nodes []Node) ([]Node, error) {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		repl, err := lw.lowerNode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, repl...)
	}
	return out, nil
}

func (lw *lowerer) lowerNode(n Node) ([]Node, error) {
	switch n := n.(type) {
	case *Directive:
		def := lw.reg.Lookup(n.Name)
		if def == nil || def.Lower == nil {
			line, col := n.Pos()
			return nil, syntaxErrorf(lw.ctx.Template, line, col, "x:%s cannot stand alone", n.Name)
		}
		return def.Lower(lw, n)
	case *Element:
		kids, err := lw.lowerList(n.Children)
		if err != nil {
			return nil, err
		}
		n.Children = kids
		return []Node{n}, nil
	case *Fragment:
		// The fragment wrapper emits nothing: its children splice in.
		return lw.lowerList(n.Children)
	default:
		return []Node{n}, nil
	}
}

func (lw *lowerer) requireExpr(d *Directive) error {
	if strings.TrimSpace(d.Expr) == "" {
		return syntaxErrorf(lw.ctx.Template, d.Line, d.Col, "x:%s needs an expression", d.Name)
	}
	return nil
}

func raw(o Origin, code string) *RawCode {
	return &RawCode{Origin: o, Code: code}
}

// lowerOrphanPair rejects pair-only directives that no construct consumed.
func lowerOrphanPair(lw *lowerer, d *Directive) ([]Node, error) {
	host := "a matching construct"
	switch d.Name {
	case "elseif", "else":
		host = "a preceding x:if"
	case "finally":
		host = "a preceding x:try"
	case "case", "default":
		host = "an enclosing x:switch"
	}
	return nil, syntaxErrorf(lw.ctx.Template, d.Line, d.Col,
		"x:%s without %s", d.Name, host)
}

// lowerIf handles the conditional family: if with its elseif/else chain,
// plus unless, isset and standalone empty, which share the branch shape.
func lowerIf(lw *lowerer, d *Directive) ([]Node, error) {
	if err := lw.requireExpr(d); err != nil {
		return nil, err
	}
	nodes := []Node{raw(d.Origin, d.Name+" "+d.Expr)}
	body, err := lw.lowerList(d.Children)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, body...)
	for link := d.Pair; link != nil; link = link.Pair {
		switch link.Name {
		case "elseif":
			if strings.TrimSpace(link.Expr) == "" {
				return nil, syntaxErrorf(lw.ctx.Template, link.Line, link.Col, "x:elseif needs an expression")
			}
			nodes = append(nodes, raw(link.Origin, "elseif "+link.Expr))
		case "else":
			nodes = append(nodes, raw(link.Origin, "else"))
		}
		branch, err := lw.lowerList(link.Children)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, branch...)
	}
	return append(nodes, raw(d.Origin, "end")), nil
}

// lowerLoop handles loop, while and times. Placement is structural: a host
// element with at least one element child becomes the wrapper, emitted
// once around the whole loop; otherwise the host repeats per iteration.
// A paired empty sibling turns the whole construct into an emptiness test
// with the sibling children as the alternative branch.
func lowerLoop(lw *lowerer, d *Directive) ([]Node, error) {
	if err := lw.requireExpr(d); err != nil {
		return nil, err
	}
	var open, closing string
	switch d.Name {
	case "while":
		open, closing = "while "+d.Expr, "endwhile"
	case "times":
		open, closing = "times "+d.Expr, "endtimes"
	default:
		open, closing = "loop "+d.Expr, "endloop"
	}

	body, err := lw.loopBody(d, open, closing)
	if err != nil {
		return nil, err
	}
	if d.Pair == nil {
		return body, nil
	}

	// forelse: wrap the loop in an emptiness test so the alternative
	// renders instead of the wrapper when the collection is empty.
	collection := d.Expr
	if d.Name == "loop" {
		collection = loopCollection(d.Expr)
	}
	nodes := []Node{raw(d.Origin, "notempty " + collection)}
	nodes = append(nodes, body...)
	nodes = append(nodes, raw(d.Pair.Origin, "else"))
	alt, err := lw.lowerList(d.Pair.Children)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, alt...)
	return append(nodes, raw(d.Origin, "end")), nil
}

func (lw *lowerer) loopBody(d *Directive, open, closing string) ([]Node, error) {
	host := d.Children[0]
	if elem, ok := host.(*Element); ok && hasElementChild(elem) {
		// Wrapper placement: the tag brackets the loop.
		kids, err := lw.lowerList(elem.Children)
		if err != nil {
			return nil, err
		}
		elem.Children = append([]Node{raw(d.Origin, open)}, append(kids, raw(d.Origin, closing))...)
		return []Node{elem}, nil
	}
	// Repeat placement: the whole host repeats per iteration.
	body, err := lw.lowerList(d.Children)
	if err != nil {
		return nil, err
	}
	nodes := append([]Node{raw(d.Origin, open)}, body...)
	return append(nodes, raw(d.Origin, closing)), nil
}

func hasElementChild(elem *Element) bool {
	for _, c := range elem.Children {
		switch c := c.(type) {
		case *Element:
			return true
		case *Directive:
			// A directive-bearing child is still structurally an element.
			if len(c.Children) > 0 {
				if _, ok := c.Children[0].(*Element); ok {
					return true
				}
			}
		}
	}
	return false
}

// loopCollection strips the iteration variables off a loop header,
// leaving just the collection expression for emptiness testing.
func loopCollection(expr string) string {
	return strings.TrimSpace(splitTopLevel(expr, " as ")[0])
}

// lowerSwitch dispatches on the child case/default directives of the host.
// The host element stays as the wrapper; only one branch body renders.
func lowerSwitch(lw *lowerer, d *Directive) ([]Node, error) {
	if err := lw.requireExpr(d); err != nil {
		return nil, err
	}
	host := d.Children[0]
	var kids []Node
	switch h := host.(type) {
	case *Element:
		kids = h.Children
	case *Fragment:
		kids = h.Children
	default:
		return nil, syntaxErrorf(lw.ctx.Template, d.Line, d.Col, "x:switch requires an element or fragment host")
	}

	nodes := []Node{raw(d.Origin, "switch "+d.Expr)}
	seenDefault := false
	for _, c := range kids {
		if t, ok := c.(*Text); ok && strings.TrimSpace(t.Content) == "" {
			continue
		}
		branch, ok := c.(*Directive)
		if !ok || (branch.Name != "case" && branch.Name != "default") {
			line, col := c.Pos()
			return nil, syntaxErrorf(lw.ctx.Template, line, col,
				"content inside x:switch must carry x:case or x:default")
		}
		if branch.Name == "case" {
			if strings.TrimSpace(branch.Expr) == "" {
				return nil, syntaxErrorf(lw.ctx.Template, branch.Line, branch.Col, "x:case needs an expression")
			}
			if seenDefault {
				return nil, syntaxErrorf(lw.ctx.Template, branch.Line, branch.Col,
					"x:case after x:default")
			}
			nodes = append(nodes, raw(branch.Origin, "case "+branch.Expr))
		} else {
			if seenDefault {
				return nil, syntaxErrorf(lw.ctx.Template, branch.Line, branch.Col, "duplicate x:default")
			}
			seenDefault = true
			nodes = append(nodes, raw(branch.Origin, "default"))
		}
		body, err := lw.lowerList(branch.Children)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, body...)
		nodes = append(nodes, raw(branch.Origin, "endcase"))
	}
	nodes = append(nodes, raw(d.Origin, "endswitch"))

	if elem, ok := host.(*Element); ok {
		elem.Children = nodes
		return []Node{elem}, nil
	}
	return nodes, nil
}

// lowerTry protects the whole host: on failure its partial output is
// discarded and rendering resumes at the finally branch, which runs on
// both paths.
func lowerTry(lw *lowerer, d *Directive) ([]Node, error) {
	body, err := lw.lowerList(d.Children)
	if err != nil {
		return nil, err
	}
	nodes := append([]Node{raw(d.Origin, "try")}, body...)
	if d.Pair != nil {
		nodes = append(nodes, raw(d.Pair.Origin, "finally"))
		alt, err := lw.lowerList(d.Pair.Children)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, alt...)
	} else {
		nodes = append(nodes, raw(d.Origin, "finally"))
	}
	return append(nodes, raw(d.Origin, "endtry")), nil
}

// lowerIfContent renders the children into a capture buffer first and
// re-emits the host tag around the buffer only when it holds more than
// whitespace.
func lowerIfContent(lw *lowerer, d *Directive) ([]Node, error) {
	elem := d.Elem
	kids, err := lw.lowerList(elem.Children)
	if err != nil {
		return nil, err
	}
	shell := &Element{
		Origin:    elem.Origin,
		Tag:       elem.Tag,
		DynTag:    elem.DynTag,
		Attrs:     elem.Attrs,
		SelfClose: elem.SelfClose,
		Void:      elem.Void,
		Children:  []Node{raw(d.Origin, "emitcaptured")},
	}
	nodes := []Node{raw(d.Origin, "capture")}
	nodes = append(nodes, kids...)
	nodes = append(nodes,
		raw(d.Origin, "endcapture"),
		raw(d.Origin, "ifcaptured"),
		shell,
		raw(d.Origin, "end"),
	)
	return nodes, nil
}

// lowerCache wraps the host in a keyed fragment cache region. The
// expression is "key" or "key, ttl" with the TTL in seconds or a duration
// literal, resolved by the generator.
func lowerCache(lw *lowerer, d *Directive) ([]Node, error) {
	if err := lw.requireExpr(d); err != nil {
		return nil, err
	}
	body, err := lw.lowerList(d.Children)
	if err != nil {
		return nil, err
	}
	nodes := append([]Node{raw(d.Origin, "cache "+d.Expr)}, body...)
	return append(nodes, raw(d.Origin, "endcache")), nil
}

// lowerCollaborator defers include and the layout family to the runtime.
// The host element wraps the rendered output; a fragment host splices it.
func lowerCollaborator(lw *lowerer, d *Directive) ([]Node, error) {
	if err := lw.requireExpr(d); err != nil {
		return nil, err
	}
	call := &RuntimeCall{Origin: d.Origin, Name: d.Name}
	for i, seg := range splitTopLevel(d.Expr, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if i == 0 {
			// A literal first argument is a statically known dependency.
			if name, ok := unquote(seg); ok {
				lw.ctx.trackDependency(name)
			}
		}
		call.Args = append(call.Args, CallArg{Expr: seg})
	}
	if len(call.Args) == 0 {
		return nil, syntaxErrorf(lw.ctx.Template, d.Line, d.Col, "x:%s needs a target", d.Name)
	}

	if elem, ok := d.Children[0].(*Element); ok {
		elem.Children = []Node{call}
		return []Node{elem}, nil
	}
	return []Node{call}, nil
}

// lowerContent handles a standalone content directive: extraction already
// rewrote the host, so the lowered host is the whole replacement.
func lowerContent(lw *lowerer, d *Directive) ([]Node, error) {
	return lw.lowerList(d.Children)
}

// unquote strips a single level of matching quotes off a literal.
func unquote(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		inner := s[1 : len(s)-1]
		if !strings.ContainsAny(inner, `'"\`) {
			return inner, true
		}
	}
	return "", false
}
