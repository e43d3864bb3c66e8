package compiler

import "vellum/pkg/escape"

// Node is the AST node union. Every variant carries its template origin so
// passes that clone or relocate nodes keep diagnostics pointing at source.
type Node interface {
	Pos() (line, col int)
}

// Origin is the embedded source position of a node.
type Origin struct {
	Line int
	Col  int
}

// Pos returns the 1-based line and column the node originated from.
func (o Origin) Pos() (int, int) { return o.Line, o.Col }

// Document is the root of a parsed template.
type Document struct {
	Origin
	Children []Node
}

// Text is literal markup emitted verbatim.
type Text struct {
	Origin
	Content string
}

// Pipe is one |> segment of an output expression: a transform name and its
// raw argument expressions.
type Pipe struct {
	Name string
	Args []string
}

// Output is one interpolation. Expr is the opaque expression snippet,
// Escape false means the author opted out via the raw sentinel, Ctx is the
// sink context assigned at parse time. CtxFinal is set by context analysis
// once the context is confirmed; nothing downstream trusts Ctx before that.
type Output struct {
	Origin
	Expr     string
	Escape   bool
	Ctx      escape.Context
	CtxFinal bool
	Pipes    []Pipe
}

// Attr is one element attribute. Exactly one of the value shapes is
// active: boolean presence (Bool), a static string (Static), or an ordered
// part list of Text and Output nodes (Parts, also used for a single
// output). Spread marks an attribute-spread runtime call occupying an
// attribute position.
type Attr struct {
	Origin
	Name   string
	Bool   bool
	Static string
	Parts  []Node
	Spread bool
}

// Element is a markup element. DynTag, when set, is an expression that
// overrides the static tag name at render time.
type Element struct {
	Origin
	Tag       string
	DynTag    string
	Attrs     []*Attr
	Children  []Node
	SelfClose bool
	Void      bool
}

// Fragment hosts directives without emitting markup of its own.
type Fragment struct {
	Origin
	Attrs    []*Attr
	Children []Node
}

// Directive is an extracted directive occurrence. Children is the hosted
// element (or its lowered remainder); Else holds the alternative branch
// once pairing or lowering fills it. Pair and Elem are non-owning
// back-references: Pair links the consumed sibling directive, Elem
// snapshots the host element for directives that must re-emit its tag.
// Neither is ever walked as a child.
type Directive struct {
	Origin
	Name     string
	Expr     string
	Bare     bool // no-wrapper modifier on content directives
	Children []Node
	Else     []Node
	Pair     *Directive
	Elem     *Element
}

// RawCode is a lowered control-structure marker carrying its verbatim
// text, e.g. "if $ok" or "end". The code generator turns these into
// control-flow instructions.
type RawCode struct {
	Origin
	Code string
}

// RuntimeCall defers an operation to the runtime: a callable name plus
// named argument expressions. Used for dynamic class lists, attribute
// spreads and include-style collaborator dispatch.
type RuntimeCall struct {
	Origin
	Name string
	Args []CallArg
	Ctx  escape.Context
}

// CallArg is one named argument of a RuntimeCall.
type CallArg struct {
	Name string
	Expr string
}
