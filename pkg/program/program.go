// Package program holds the compiled rendering unit: a flat instruction
// list with patched jump targets, plus the side tables (expressions,
// outputs, loops, runtime calls) the instructions index into. A Program is
// immutable after compilation and safe to render concurrently.
package program

import (
	"time"

	"github.com/expr-lang/expr/vm"

	"vellum/pkg/escape"
)

// Instr is one rendering instruction. A is a jump target where the opcode
// uses one, B indexes a side table, Text carries the literal for OpText.
// Line and Col locate the originating template source.
type Instr struct {
	Op   Op
	A    int
	B    int
	Text string
	Line int
	Col  int
}

// EscapeFunc encodes one value for one output sink.
type EscapeFunc func(any) (string, error)

// TransformFunc is a pipe transform resolved at compile time.
type TransformFunc func(v any, args []any) (any, error)

// PipeCall is one resolved |> segment: the transform plus the expression
// slots of its arguments.
type PipeCall struct {
	Name string
	Fn   TransformFunc
	Args []int
}

// OutputSpec describes one interpolation: which expression to evaluate,
// the transform chain, and the exact escape call the generator chose for
// its sink context.
type OutputSpec struct {
	Expr   int
	Escape bool
	Ctx    escape.Context
	Esc    EscapeFunc
	Pipes  []PipeCall
}

// LoopKind selects the iteration strategy of a loop spec.
type LoopKind int

const (
	LoopCollection LoopKind = iota // iterate a materialized collection
	LoopWhile                      // re-test a condition, size unknown
	LoopTimes                      // fixed repetition count
)

// LoopSpec describes one lowered repeating construct.
type LoopSpec struct {
	Kind   LoopKind
	Expr   int    // collection, condition, or count expression
	KeyVar string // optional, collection loops only
	ValVar string // optional
	End    int    // target just past the whole construct
}

// CallArg is one named argument of a runtime call.
type CallArg struct {
	Name string
	Expr int
}

// CallSpec describes one runtime-dispatched operation (class list,
// attribute spread, include and friends).
type CallSpec struct {
	Name string
	Args []CallArg
	Ctx  escape.Context
}

// CacheSpec describes one cached fragment region.
type CacheSpec struct {
	Key int // key expression
	TTL time.Duration
}

// Loader resolves an included template by name at render time. The core
// never loads templates itself; the view engine implements this.
type Loader interface {
	Load(name string) (*Program, error)
}

// Program is the invocable rendering unit produced by one compile call.
type Program struct {
	Name  string
	Debug bool

	Code    []Instr
	Exprs   []*vm.Program
	ExprSrc []string
	Outputs []OutputSpec
	Loops   []LoopSpec
	Calls   []CallSpec
	Caches  []CacheSpec

	// Collaborators, installed by the view engine after compilation.
	Loader    Loader
	Fragments *FragmentCache
}
