package compiler

import "sort"

// DirectiveType classifies how many of a kind one element may carry and
// where the directive compiles.
type DirectiveType int

const (
	// ControlFlow directives wrap or repeat their element. At most one per
	// element.
	ControlFlow DirectiveType = iota
	// Content directives replace the element children with one
	// interpolation. At most one per element, combinable with a
	// control-flow directive.
	Content
	// Attribute directives compile in place inside the open tag. Any
	// number per element.
	Attribute
)

// lowerFunc rewrites one extracted directive into its replacement nodes.
type lowerFunc func(lw *lowerer, d *Directive) ([]Node, error)

// Definition is one registry entry. Pairs names the directives a
// following sibling may contribute as an alternative branch; PairOnly
// directives are only legal when consumed by a pairing or hosting
// construct.
type Definition struct {
	Name     string
	Type     DirectiveType
	Pairs    []string
	PairOnly bool
	KeepElem bool // lowering re-emits the host element, keep a snapshot
	Lower    lowerFunc
}

// Registry is the closed directive dispatch table, built once at
// construction. Lookup never falls through to dynamic resolution.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry builds the built-in directive table.
func NewRegistry() *Registry {
	r := &Registry{defs: map[string]*Definition{}}
	for _, d := range []*Definition{
		{Name: "if", Type: ControlFlow, Pairs: []string{"elseif", "else"}, Lower: lowerIf},
		{Name: "elseif", Type: ControlFlow, Pairs: []string{"elseif", "else"}, PairOnly: true, Lower: lowerOrphanPair},
		{Name: "else", Type: ControlFlow, PairOnly: true, Lower: lowerOrphanPair},
		{Name: "unless", Type: ControlFlow, Lower: lowerIf},
		{Name: "isset", Type: ControlFlow, Lower: lowerIf},
		{Name: "empty", Type: ControlFlow, Lower: lowerIf},
		{Name: "loop", Type: ControlFlow, Pairs: []string{"empty"}, Lower: lowerLoop},
		{Name: "while", Type: ControlFlow, Lower: lowerLoop},
		{Name: "times", Type: ControlFlow, Lower: lowerLoop},
		{Name: "switch", Type: ControlFlow, Lower: lowerSwitch},
		{Name: "case", Type: ControlFlow, PairOnly: true, Lower: lowerOrphanPair},
		{Name: "default", Type: ControlFlow, PairOnly: true, Lower: lowerOrphanPair},
		{Name: "try", Type: ControlFlow, Pairs: []string{"finally"}, Lower: lowerTry},
		{Name: "finally", Type: ControlFlow, PairOnly: true, Lower: lowerOrphanPair},
		{Name: "ifcontent", Type: ControlFlow, KeepElem: true, Lower: lowerIfContent},
		{Name: "cache", Type: ControlFlow, Lower: lowerCache},
		{Name: "include", Type: ControlFlow, Lower: lowerCollaborator},
		{Name: "extends", Type: ControlFlow, Lower: lowerCollaborator},
		{Name: "block", Type: ControlFlow, Lower: lowerCollaborator},
		{Name: "component", Type: ControlFlow, Lower: lowerCollaborator},
		{Name: "text", Type: Content, Lower: lowerContent},
		{Name: "html", Type: Content, Lower: lowerContent},
		{Name: "class", Type: Attribute},
		{Name: "attr", Type: Attribute},
		{Name: "tag", Type: Attribute},
	} {
		r.defs[d.Name] = d
	}
	return r
}

// Lookup resolves a directive name, or nil when unknown.
func (r *Registry) Lookup(name string) *Definition {
	return r.defs[name]
}

// Suggest finds the closest known directive name for a typo, empty when
// nothing is close enough to be worth suggesting. Ties resolve to the
// alphabetically first candidate so the message is stable.
func (r *Registry) Suggest(name string) string {
	names := make([]string, 0, len(r.defs))
	for known := range r.defs {
		names = append(names, known)
	}
	sort.Strings(names)
	best, bestDist := "", 3
	for _, known := range names {
		if d := levenshtein(name, known); d < bestDist {
			best, bestDist = known, d
		}
	}
	return best
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
