package compiler

import "strings"

// PairDirectives links sibling directives into branch chains: a directive
// that declares pairing names consumes an immediately following sibling
// directive bearing one of them (if/elseif/else, loop/empty, try/finally).
// Only the next sibling counts, so swapping the order never pairs.
// Whitespace-only text between the siblings is tolerated and left in the
// tree; anything else breaks the chain.
func PairDirectives(doc *Document, ctx *Context, reg *Registry) error {
	doc.Children = pairList(doc.Children, reg)
	return nil
}

func pairList(nodes []Node, reg *Registry) []Node {
	out := make([]Node, 0, len(nodes))
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		pairChildren(n, reg)
		out = append(out, n)

		d, ok := n.(*Directive)
		if !ok {
			continue
		}
		def := reg.Lookup(d.Name)
		cur, curDef := d, def
		for curDef != nil && len(curDef.Pairs) > 0 {
			j, sib := nextSibling(nodes, i+1)
			if sib == nil || !nameIn(sib.Name, curDef.Pairs) {
				break
			}
			// Whitespace skipped over stays in the emitted stream.
			for k := i + 1; k < j; k++ {
				out = append(out, nodes[k])
			}
			pairChildren(sib, reg)
			cur.Pair = sib
			cur, curDef = sib, reg.Lookup(sib.Name)
			i = j
		}
	}
	return out
}

// nextSibling finds the next non-whitespace sibling from index i and
// returns it when it is a directive.
func nextSibling(nodes []Node, i int) (int, *Directive) {
	for ; i < len(nodes); i++ {
		if t, ok := nodes[i].(*Text); ok && strings.TrimSpace(t.Content) == "" {
			continue
		}
		d, _ := nodes[i].(*Directive)
		return i, d
	}
	return i, nil
}

func nameIn(name string, names []string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func pairChildren(n Node, reg *Registry) {
	switch n := n.(type) {
	case *Element:
		n.Children = pairList(n.Children, reg)
	case *Fragment:
		n.Children = pairList(n.Children, reg)
	case *Directive:
		n.Children = pairList(n.Children, reg)
	}
}
