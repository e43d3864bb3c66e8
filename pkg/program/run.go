package program

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/spf13/cast"

	"vellum/pkg/coerce"
	"vellum/pkg/escape"
)

// RenderError wraps a failure during rendering with its template location.
type RenderError struct {
	Template string
	Line     int
	Col      int
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %v", e.Template, e.Line, e.Col, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

type tryFrame struct {
	finally  int
	bufs     int
	loops    int
	switches int
	captured int
	caches   int
}

type pendingCache struct {
	key  string
	spec int
}

type runState struct {
	p        *Program
	env      map[string]any
	bufs     []*strings.Builder
	captured []string
	loops    []*loopState
	switches []any
	tries    []tryFrame
	caches   []pendingCache
}

// Render executes the program against a data record and returns the
// rendered text. The data map is never mutated; variables introduced by
// loops live in a private copy.
func (p *Program) Render(data map[string]any) (string, error) {
	env := make(map[string]any, len(data)+1)
	for k, v := range data {
		env[k] = v
	}
	r := &runState{
		p:    p,
		env:  env,
		bufs: []*strings.Builder{{}},
	}
	if err := r.run(); err != nil {
		return "", err
	}
	return r.bufs[0].String(), nil
}

func (r *runState) out() *strings.Builder {
	return r.bufs[len(r.bufs)-1]
}

func (r *runState) emit(s string) {
	r.out().WriteString(s)
}

func (r *runState) eval(idx int) (any, error) {
	v, err := expr.Run(r.p.Exprs[idx], r.env)
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", r.p.ExprSrc[idx], err)
	}
	return v, nil
}

func (r *runState) run() error {
	code := r.p.Code
	pc := 0
	for pc < len(code) {
		in := &code[pc]
		next, err := r.step(pc, in)
		if err != nil {
			next, err = r.recover(in, err)
			if err != nil {
				return err
			}
		}
		pc = next
	}
	return nil
}

// recover unwinds to the innermost protected region, discarding its
// partial output, and resumes at its finally target. Without a protected
// region the error is fatal to the render.
func (r *runState) recover(in *Instr, err error) (int, error) {
	if len(r.tries) == 0 {
		return 0, &RenderError{Template: r.p.Name, Line: in.Line, Col: in.Col, Err: err}
	}
	f := r.tries[len(r.tries)-1]
	r.tries = r.tries[:len(r.tries)-1]
	for len(r.loops) > f.loops {
		r.popLoop()
	}
	r.bufs = r.bufs[:f.bufs]
	r.switches = r.switches[:f.switches]
	r.captured = r.captured[:f.captured]
	r.caches = r.caches[:f.caches]
	return f.finally, nil
}

func (r *runState) step(pc int, in *Instr) (int, error) {
	switch in.Op {
	case OpReturn:
		return len(r.p.Code), nil

	case OpText:
		r.marker(in)
		r.emit(in.Text)

	case OpOutput:
		if err := r.output(in); err != nil {
			return 0, err
		}

	case OpEval:
		if _, err := r.eval(in.B); err != nil {
			return 0, err
		}

	case OpJump:
		return in.A, nil

	case OpJumpIfFalse, OpJumpIfTrue:
		v, err := r.eval(in.B)
		if err != nil {
			return 0, err
		}
		truthy := coerce.Truthy(v)
		if (in.Op == OpJumpIfFalse && !truthy) || (in.Op == OpJumpIfTrue && truthy) {
			return in.A, nil
		}

	case OpJumpIfUnset:
		v, err := r.eval(in.B)
		if err != nil {
			// An unresolvable path counts as unset, not as a failure.
			return in.A, nil
		}
		if v == nil {
			return in.A, nil
		}

	case OpJumpIfFull:
		v, err := r.eval(in.B)
		if err != nil {
			return 0, err
		}
		if !coerce.Empty(v) {
			return in.A, nil
		}

	case OpJumpIfEmpty:
		v, err := r.eval(in.B)
		if err != nil {
			return 0, err
		}
		// Guards a loop alternative: it must agree with what the loop
		// itself would iterate, not with value truthiness.
		if len(materialize(v)) == 0 {
			return in.A, nil
		}

	case OpLoopInit:
		return r.loopInit(pc, in)

	case OpLoopNext:
		return r.loopNext(pc, in)

	case OpWhileTest:
		return r.whileTest(pc, in)

	case OpSwitch:
		v, err := r.eval(in.B)
		if err != nil {
			return 0, err
		}
		r.switches = append(r.switches, v)

	case OpCase:
		v, err := r.eval(in.B)
		if err != nil {
			return 0, err
		}
		subject := r.switches[len(r.switches)-1]
		if !looseEq(subject, v) {
			return in.A, nil
		}

	case OpEndSwitch:
		r.switches = r.switches[:len(r.switches)-1]

	case OpCapture:
		r.bufs = append(r.bufs, &strings.Builder{})

	case OpEndCapture:
		top := r.bufs[len(r.bufs)-1]
		r.bufs = r.bufs[:len(r.bufs)-1]
		r.captured = append(r.captured, top.String())

	case OpEmitCaptured:
		top := r.captured[len(r.captured)-1]
		r.captured = r.captured[:len(r.captured)-1]
		r.emit(top)

	case OpSkipNoContent:
		top := r.captured[len(r.captured)-1]
		if strings.TrimSpace(top) == "" {
			r.captured = r.captured[:len(r.captured)-1]
			return in.A, nil
		}

	case OpTry:
		r.bufs = append(r.bufs, &strings.Builder{})
		r.tries = append(r.tries, tryFrame{
			finally:  in.A,
			bufs:     len(r.bufs) - 1,
			loops:    len(r.loops),
			switches: len(r.switches),
			captured: len(r.captured),
			caches:   len(r.caches),
		})

	case OpEndTry:
		r.tries = r.tries[:len(r.tries)-1]
		top := r.bufs[len(r.bufs)-1]
		r.bufs = r.bufs[:len(r.bufs)-1]
		r.emit(top.String())

	case OpCacheStart:
		spec := r.p.Caches[in.B]
		v, err := r.eval(spec.Key)
		if err != nil {
			return 0, err
		}
		key := coerce.ToString(v)
		if r.p.Fragments != nil {
			if body, ok := r.p.Fragments.Get(key); ok {
				r.emit(body)
				return in.A, nil
			}
		}
		r.bufs = append(r.bufs, &strings.Builder{})
		r.caches = append(r.caches, pendingCache{key: key, spec: in.B})

	case OpCacheEnd:
		pend := r.caches[len(r.caches)-1]
		r.caches = r.caches[:len(r.caches)-1]
		top := r.bufs[len(r.bufs)-1]
		r.bufs = r.bufs[:len(r.bufs)-1]
		body := top.String()
		if r.p.Fragments != nil {
			r.p.Fragments.Set(pend.key, body, r.p.Caches[pend.spec].TTL)
		}
		r.emit(body)

	case OpCall:
		if err := r.call(in); err != nil {
			return 0, err
		}

	default:
		return 0, fmt.Errorf("unknown opcode %d", in.Op)
	}
	return pc + 1, nil
}

// marker emits a source-locating comment before a chunk in debug mode so
// rendered output can be mapped back to template source.
func (r *runState) marker(in *Instr) {
	if r.p.Debug {
		fmt.Fprintf(r.out(), "<!--%s:%d:%d-->", r.p.Name, in.Line, in.Col)
	}
}

func (r *runState) output(in *Instr) error {
	spec := r.p.Outputs[in.B]
	v, err := r.eval(spec.Expr)
	if err != nil {
		return err
	}
	for _, pipe := range spec.Pipes {
		args := make([]any, len(pipe.Args))
		for i, a := range pipe.Args {
			if args[i], err = r.eval(a); err != nil {
				return err
			}
		}
		if v, err = pipe.Fn(v, args); err != nil {
			return fmt.Errorf("transform %s: %w", pipe.Name, err)
		}
	}
	s, err := spec.Esc(v)
	if err != nil {
		return err
	}
	r.marker(in)
	r.emit(s)
	return nil
}

func (r *runState) loopInit(pc int, in *Instr) (int, error) {
	spec := &r.p.Loops[in.B]
	switch spec.Kind {
	case LoopWhile:
		ls := &loopState{spec: spec, count: -1, depth: len(r.loops) + 1}
		r.pushLoop(ls)
		// The record must be visible to the first condition test.
		r.bindLoop(ls)
		return pc + 1, nil

	case LoopTimes:
		v, err := r.eval(spec.Expr)
		if err != nil {
			return 0, err
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			return 0, fmt.Errorf("times count: %w", err)
		}
		if n <= 0 {
			return spec.End, nil
		}
		ls := &loopState{spec: spec, count: n, depth: len(r.loops) + 1}
		r.pushLoop(ls)
		r.bindLoop(ls)
		return pc + 1, nil

	default:
		v, err := r.eval(spec.Expr)
		if err != nil {
			return 0, err
		}
		items := materialize(v)
		if len(items) == 0 {
			return spec.End, nil
		}
		ls := &loopState{spec: spec, items: items, count: len(items), depth: len(r.loops) + 1}
		r.pushLoop(ls)
		r.bindLoop(ls)
		return pc + 1, nil
	}
}

func (r *runState) loopNext(pc int, in *Instr) (int, error) {
	ls := r.loops[len(r.loops)-1]
	ls.index++
	if ls.index < ls.count {
		r.bindLoop(ls)
		return in.A, nil
	}
	r.popLoop()
	return ls.spec.End, nil
}

func (r *runState) whileTest(pc int, in *Instr) (int, error) {
	ls := r.loops[len(r.loops)-1]
	v, err := r.eval(in.B)
	if err != nil {
		return 0, err
	}
	if !coerce.Truthy(v) {
		r.popLoop()
		return in.A, nil
	}
	if ls.started {
		ls.index++
	} else {
		ls.started = true
	}
	r.env["loop"] = ls.vars()
	return pc + 1, nil
}

func (r *runState) pushLoop(ls *loopState) {
	if len(r.loops) > 0 {
		ls.parent = r.loops[len(r.loops)-1]
	}
	ls.shadowed = map[string]shadow{}
	for _, name := range []string{ls.spec.KeyVar, ls.spec.ValVar, "loop"} {
		if name == "" {
			continue
		}
		old, ok := r.env[name]
		ls.shadowed[name] = shadow{val: old, existed: ok}
	}
	r.loops = append(r.loops, ls)
}

func (r *runState) bindLoop(ls *loopState) {
	if len(ls.items) > 0 {
		item := ls.items[ls.index]
		if ls.spec.KeyVar != "" {
			r.env[ls.spec.KeyVar] = item.key
		}
		if ls.spec.ValVar != "" {
			r.env[ls.spec.ValVar] = item.val
		}
	}
	r.env["loop"] = ls.vars()
}

func (r *runState) popLoop() {
	ls := r.loops[len(r.loops)-1]
	r.loops = r.loops[:len(r.loops)-1]
	for name, sh := range ls.shadowed {
		if sh.existed {
			r.env[name] = sh.val
		} else {
			delete(r.env, name)
		}
	}
}

func (r *runState) call(in *Instr) error {
	spec := r.p.Calls[in.B]
	switch spec.Name {
	case "classlist":
		return r.classlist(in, &spec)
	case "attrs":
		return r.attrSpread(in, &spec)
	case "include":
		return r.include(&spec)
	case "extends", "block", "component":
		return fmt.Errorf("%s requires a loader with layout support", spec.Name)
	default:
		return fmt.Errorf("unknown runtime call %q", spec.Name)
	}
}

// classlist evaluates the entries of a dynamic class attribute: unnamed
// entries contribute their string value, named entries contribute their
// name when the condition holds.
func (r *runState) classlist(in *Instr, spec *CallSpec) error {
	var classes []string
	for _, arg := range spec.Args {
		v, err := r.eval(arg.Expr)
		if err != nil {
			return err
		}
		if arg.Name == "" {
			if s := coerce.ToString(v); s != "" {
				classes = append(classes, s)
			}
		} else if coerce.Truthy(v) {
			classes = append(classes, arg.Name)
		}
	}
	s, err := escape.Func(spec.Ctx)(strings.Join(classes, " "))
	if err != nil {
		return err
	}
	r.emit(s)
	return nil
}

// attrSpread renders a map value as attribute pairs inside an open tag.
// nil and false drop the attribute, true renders a boolean attribute.
func (r *runState) attrSpread(in *Instr, spec *CallSpec) error {
	v, err := r.eval(spec.Args[0].Expr)
	if err != nil {
		return err
	}
	m := cast.ToStringMap(v)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := m[k]
		if val == nil || val == false {
			continue
		}
		if val == true {
			r.emit(" " + k)
			continue
		}
		s, err := escape.Attr(val)
		if err != nil {
			return err
		}
		r.emit(" " + k + `="` + s + `"`)
	}
	return nil
}

func (r *runState) include(spec *CallSpec) error {
	if r.p.Loader == nil {
		return fmt.Errorf("include: no template loader installed")
	}
	v, err := r.eval(spec.Args[0].Expr)
	if err != nil {
		return err
	}
	name := coerce.ToString(v)
	sub, err := r.p.Loader.Load(name)
	if err != nil {
		return fmt.Errorf("include %q: %w", name, err)
	}
	data := make(map[string]any, len(r.env))
	for k, val := range r.env {
		data[k] = val
	}
	if len(spec.Args) > 1 {
		extra, err := r.eval(spec.Args[1].Expr)
		if err != nil {
			return err
		}
		for k, val := range cast.ToStringMap(extra) {
			data[k] = val
		}
	}
	body, err := sub.Render(data)
	if err != nil {
		return fmt.Errorf("include %q: %w", name, err)
	}
	r.emit(body)
	return nil
}

// looseEq compares a switch subject against a case value the way template
// authors expect: numerically when both sides are numeric, textually
// otherwise.
func looseEq(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aerr := cast.ToFloat64E(a)
	bf, berr := cast.ToFloat64E(b)
	if aerr == nil && berr == nil {
		return af == bf
	}
	return coerce.ToString(a) == coerce.ToString(b)
}
