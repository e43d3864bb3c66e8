package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"vellum/pkg/escape"
	"vellum/pkg/program"
	"vellum/pkg/transforms"
)

// Generator turns the lowered tree into a flat instruction program.
// Control markers open frames whose forward jumps are patched when the
// matching closer arrives, the same backpatching shape as any one-pass
// bytecode emitter.
type Generator struct {
	ctx    *Context
	table  *transforms.Table
	p      *program.Program
	expIdx map[string]int

	frames []*genFrame

	pendText string
	pendOrig Origin
}

type genFrame struct {
	kind      string
	pending   int // instruction whose A patches to the next branch or end
	endJumps  []int
	spec      int
	bodyStart int
	condStart int
	caseJump  int
}

// NewGenerator builds a generator for one compile call.
func NewGenerator(ctx *Context, table *transforms.Table) *Generator {
	return &Generator{
		ctx:   ctx,
		table: table,
		p: &program.Program{
			Name:  ctx.Template,
			Debug: ctx.Debug,
		},
		expIdx: map[string]int{},
	}
}

// Generate walks the lowered document and returns the finished program.
func (g *Generator) Generate(doc *Document) (*program.Program, error) {
	if err := g.genList(doc.Children); err != nil {
		return nil, err
	}
	g.flushText()
	if len(g.frames) > 0 {
		f := g.frames[len(g.frames)-1]
		return nil, syntaxErrorf(g.ctx.Template, 0, 0, "unterminated %s construct", f.kind)
	}
	g.emit(program.Instr{Op: program.OpReturn}, Origin{})
	return g.p, nil
}

func (g *Generator) genList(nodes []Node) error {
	for _, n := range nodes {
		if err := g.genNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) genNode(n Node) error {
	switch n := n.(type) {
	case *Text:
		g.text(n.Origin, n.Content)
		return nil
	case *Output:
		return g.genOutput(n)
	case *Element:
		return g.genElement(n)
	case *RawCode:
		return g.genControl(n)
	case *RuntimeCall:
		return g.genCall(n)
	case *Fragment:
		return g.genList(n.Children)
	default:
		line, col := n.Pos()
		return syntaxErrorf(g.ctx.Template, line, col, "internal: unexpected %T in generation", n)
	}
}

// text buffers literal output so adjacent runs collapse into one OpText.
func (g *Generator) text(o Origin, s string) {
	if s == "" {
		return
	}
	if g.pendText == "" {
		g.pendOrig = o
	}
	g.pendText += s
}

func (g *Generator) flushText() {
	if g.pendText == "" {
		return
	}
	s, o := g.pendText, g.pendOrig
	g.pendText = ""
	g.emit(program.Instr{Op: program.OpText, Text: s}, o)
}

func (g *Generator) emit(in program.Instr, o Origin) int {
	in.Line, in.Col = o.Line, o.Col
	g.p.Code = append(g.p.Code, in)
	return len(g.p.Code) - 1
}

// here is the next instruction index, the target of forward patches.
func (g *Generator) here() int {
	return len(g.p.Code)
}

func (g *Generator) patch(idx, target int) {
	if idx >= 0 {
		g.p.Code[idx].A = target
	}
}

// addExpr compiles one expression snippet, deduplicating identical
// sources. The $ sigil is stripped outside string literals before the
// snippet reaches the expression engine.
func (g *Generator) addExpr(src string, o Origin) (int, error) {
	src = strings.TrimSpace(src)
	if idx, ok := g.expIdx[src]; ok {
		return idx, nil
	}
	compiled, err := expr.Compile(rewriteVars(src), expr.AllowUndefinedVariables())
	if err != nil {
		return 0, syntaxErrorf(g.ctx.Template, o.Line, o.Col, "malformed expression %q: %v", src, err)
	}
	idx := len(g.p.Exprs)
	g.p.Exprs = append(g.p.Exprs, compiled)
	g.p.ExprSrc = append(g.p.ExprSrc, src)
	g.expIdx[src] = idx
	return idx, nil
}

func (g *Generator) genOutput(out *Output) error {
	g.flushText()
	exprIdx, err := g.addExpr(out.Expr, out.Origin)
	if err != nil {
		return err
	}
	spec := program.OutputSpec{
		Expr:   exprIdx,
		Escape: out.Escape,
		Ctx:    out.Ctx,
		Esc:    escape.Func(out.Ctx),
	}
	for _, pipe := range out.Pipes {
		fn, ok := g.table.Lookup(pipe.Name)
		if !ok {
			return syntaxErrorf(g.ctx.Template, out.Line, out.Col, "unknown transform %q", pipe.Name)
		}
		call := program.PipeCall{Name: pipe.Name, Fn: program.TransformFunc(fn)}
		for _, a := range pipe.Args {
			argIdx, err := g.addExpr(a, out.Origin)
			if err != nil {
				return err
			}
			call.Args = append(call.Args, argIdx)
		}
		spec.Pipes = append(spec.Pipes, call)
	}
	idx := len(g.p.Outputs)
	g.p.Outputs = append(g.p.Outputs, spec)
	g.emit(program.Instr{Op: program.OpOutput, B: idx}, out.Origin)
	return nil
}

func (g *Generator) genCall(c *RuntimeCall) error {
	g.flushText()
	spec := program.CallSpec{Name: c.Name, Ctx: c.Ctx}
	for _, a := range c.Args {
		idx, err := g.addExpr(a.Expr, c.Origin)
		if err != nil {
			return err
		}
		spec.Args = append(spec.Args, program.CallArg{Name: a.Name, Expr: idx})
	}
	idx := len(g.p.Calls)
	g.p.Calls = append(g.p.Calls, spec)
	g.emit(program.Instr{Op: program.OpCall, B: idx}, c.Origin)
	return nil
}

func (g *Generator) genElement(e *Element) error {
	if err := g.genOpenTag(e); err != nil {
		return err
	}
	if e.Void || e.SelfClose {
		return nil
	}
	if err := g.genList(e.Children); err != nil {
		return err
	}
	return g.genCloseTag(e)
}

func (g *Generator) genOpenTag(e *Element) error {
	if e.DynTag == "" {
		g.text(e.Origin, "<"+e.Tag)
	} else {
		g.text(e.Origin, "<")
		if err := g.genTagName(e); err != nil {
			return err
		}
	}
	for _, attr := range e.Attrs {
		if err := g.genAttr(attr); err != nil {
			return err
		}
	}
	if e.SelfClose && !e.Void {
		g.text(e.Origin, "/>")
	} else {
		g.text(e.Origin, ">")
	}
	return nil
}

func (g *Generator) genCloseTag(e *Element) error {
	if e.DynTag == "" {
		g.text(e.Origin, "</"+e.Tag+">")
		return nil
	}
	g.text(e.Origin, "</")
	if err := g.genTagName(e); err != nil {
		return err
	}
	g.text(e.Origin, ">")
	return nil
}

// genTagName emits a dynamic tag name through its own escaper: only name
// characters survive, and an expression yielding no usable name fails the
// render rather than emitting broken markup.
func (g *Generator) genTagName(e *Element) error {
	g.flushText()
	exprIdx, err := g.addExpr(e.DynTag, e.Origin)
	if err != nil {
		return err
	}
	idx := len(g.p.Outputs)
	g.p.Outputs = append(g.p.Outputs, program.OutputSpec{
		Expr:   exprIdx,
		Escape: true,
		Ctx:    escape.CtxRaw,
		Esc:    escapeTagName,
	})
	g.emit(program.Instr{Op: program.OpOutput, B: idx}, e.Origin)
	return nil
}

func escapeTagName(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("dynamic tag name %q is not a valid element name", s)
	}
	return b.String(), nil
}

// genAttr emits one attribute. Author-written literal text passes through
// verbatim; only interpolated parts go through escaping.
func (g *Generator) genAttr(attr *Attr) error {
	if attr.Spread {
		for _, part := range attr.Parts {
			if err := g.genNode(part); err != nil {
				return err
			}
		}
		return nil
	}
	if attr.Bool {
		g.text(attr.Origin, " "+attr.Name)
		return nil
	}
	if attr.Parts == nil {
		g.text(attr.Origin, " "+attr.Name+`="`+attr.Static+`"`)
		return nil
	}
	g.text(attr.Origin, " "+attr.Name+`="`)
	for _, part := range attr.Parts {
		if err := g.genNode(part); err != nil {
			return err
		}
	}
	g.text(attr.Origin, `"`)
	return nil
}

// genControl translates one lowered control marker. Each opener pushes a
// frame; branch and closer markers patch the frame's forward jumps.
func (g *Generator) genControl(rc *RawCode) error {
	g.flushText()
	word, rest := splitWord(rc.Code)
	o := rc.Origin

	switch word {
	case "if", "unless", "isset", "empty", "notempty":
		op := map[string]program.Op{
			"if":       program.OpJumpIfFalse,
			"unless":   program.OpJumpIfTrue,
			"isset":    program.OpJumpIfUnset,
			"empty":    program.OpJumpIfFull,
			"notempty": program.OpJumpIfEmpty,
		}[word]
		exprIdx, err := g.addExpr(rest, o)
		if err != nil {
			return err
		}
		pending := g.emit(program.Instr{Op: op, B: exprIdx}, o)
		g.push(&genFrame{kind: "cond", pending: pending, caseJump: -1})

	case "ifcaptured":
		pending := g.emit(program.Instr{Op: program.OpSkipNoContent}, o)
		g.push(&genFrame{kind: "cond", pending: pending, caseJump: -1})

	case "elseif":
		f, err := g.top("cond", o)
		if err != nil {
			return err
		}
		f.endJumps = append(f.endJumps, g.emit(program.Instr{Op: program.OpJump}, o))
		g.patch(f.pending, g.here())
		exprIdx, err := g.addExpr(rest, o)
		if err != nil {
			return err
		}
		f.pending = g.emit(program.Instr{Op: program.OpJumpIfFalse, B: exprIdx}, o)

	case "else":
		f, err := g.top("cond", o)
		if err != nil {
			return err
		}
		f.endJumps = append(f.endJumps, g.emit(program.Instr{Op: program.OpJump}, o))
		g.patch(f.pending, g.here())
		f.pending = -1

	case "end":
		f, err := g.pop("cond", o)
		if err != nil {
			return err
		}
		g.patch(f.pending, g.here())
		for _, j := range f.endJumps {
			g.patch(j, g.here())
		}

	case "loop":
		header, err := parseLoopHeader(rest)
		if err != nil {
			return syntaxErrorf(g.ctx.Template, o.Line, o.Col, "%v", err)
		}
		exprIdx, err := g.addExpr(header.collection, o)
		if err != nil {
			return err
		}
		spec := len(g.p.Loops)
		g.p.Loops = append(g.p.Loops, program.LoopSpec{
			Kind:   program.LoopCollection,
			Expr:   exprIdx,
			KeyVar: header.keyVar,
			ValVar: header.valVar,
		})
		g.emit(program.Instr{Op: program.OpLoopInit, B: spec}, o)
		g.push(&genFrame{kind: "loop", spec: spec, bodyStart: g.here()})

	case "times":
		exprIdx, err := g.addExpr(rest, o)
		if err != nil {
			return err
		}
		spec := len(g.p.Loops)
		g.p.Loops = append(g.p.Loops, program.LoopSpec{Kind: program.LoopTimes, Expr: exprIdx})
		g.emit(program.Instr{Op: program.OpLoopInit, B: spec}, o)
		g.push(&genFrame{kind: "loop", spec: spec, bodyStart: g.here()})

	case "endloop", "endtimes":
		f, err := g.pop("loop", o)
		if err != nil {
			return err
		}
		g.emit(program.Instr{Op: program.OpLoopNext, A: f.bodyStart, B: f.spec}, o)
		g.p.Loops[f.spec].End = g.here()

	case "while":
		exprIdx, err := g.addExpr(rest, o)
		if err != nil {
			return err
		}
		spec := len(g.p.Loops)
		g.p.Loops = append(g.p.Loops, program.LoopSpec{Kind: program.LoopWhile, Expr: exprIdx})
		g.emit(program.Instr{Op: program.OpLoopInit, B: spec}, o)
		condStart := g.here()
		pending := g.emit(program.Instr{Op: program.OpWhileTest, B: exprIdx}, o)
		g.push(&genFrame{kind: "while", spec: spec, condStart: condStart, pending: pending})

	case "endwhile":
		f, err := g.pop("while", o)
		if err != nil {
			return err
		}
		g.emit(program.Instr{Op: program.OpJump, A: f.condStart}, o)
		g.patch(f.pending, g.here())
		g.p.Loops[f.spec].End = g.here()

	case "switch":
		exprIdx, err := g.addExpr(rest, o)
		if err != nil {
			return err
		}
		g.emit(program.Instr{Op: program.OpSwitch, B: exprIdx}, o)
		g.push(&genFrame{kind: "switch", caseJump: -1})

	case "case":
		f, err := g.top("switch", o)
		if err != nil {
			return err
		}
		g.patch(f.caseJump, g.here())
		exprIdx, err := g.addExpr(rest, o)
		if err != nil {
			return err
		}
		f.caseJump = g.emit(program.Instr{Op: program.OpCase, B: exprIdx}, o)

	case "default":
		f, err := g.top("switch", o)
		if err != nil {
			return err
		}
		g.patch(f.caseJump, g.here())
		f.caseJump = -1

	case "endcase":
		f, err := g.top("switch", o)
		if err != nil {
			return err
		}
		f.endJumps = append(f.endJumps, g.emit(program.Instr{Op: program.OpJump}, o))

	case "endswitch":
		f, err := g.pop("switch", o)
		if err != nil {
			return err
		}
		// Unmatched subjects and finished branches all land on the pop.
		idx := g.here()
		g.patch(f.caseJump, idx)
		for _, j := range f.endJumps {
			g.patch(j, idx)
		}
		g.emit(program.Instr{Op: program.OpEndSwitch}, o)

	case "try":
		pending := g.emit(program.Instr{Op: program.OpTry}, o)
		g.push(&genFrame{kind: "try", pending: pending})

	case "finally":
		f, err := g.top("try", o)
		if err != nil {
			return err
		}
		g.emit(program.Instr{Op: program.OpEndTry}, o)
		g.patch(f.pending, g.here())
		f.pending = -1

	case "endtry":
		if _, err := g.pop("try", o); err != nil {
			return err
		}

	case "capture":
		g.emit(program.Instr{Op: program.OpCapture}, o)

	case "endcapture":
		g.emit(program.Instr{Op: program.OpEndCapture}, o)

	case "emitcaptured":
		g.emit(program.Instr{Op: program.OpEmitCaptured}, o)

	case "cache":
		keyExpr, ttl, err := parseCacheHeader(rest)
		if err != nil {
			return syntaxErrorf(g.ctx.Template, o.Line, o.Col, "%v", err)
		}
		keyIdx, err := g.addExpr(keyExpr, o)
		if err != nil {
			return err
		}
		spec := len(g.p.Caches)
		g.p.Caches = append(g.p.Caches, program.CacheSpec{Key: keyIdx, TTL: ttl})
		pending := g.emit(program.Instr{Op: program.OpCacheStart, B: spec}, o)
		g.push(&genFrame{kind: "cache", spec: spec, pending: pending})

	case "endcache":
		f, err := g.pop("cache", o)
		if err != nil {
			return err
		}
		g.emit(program.Instr{Op: program.OpCacheEnd, B: f.spec}, o)
		g.patch(f.pending, g.here())

	default:
		// A full code block: evaluate for effect, discard the value.
		exprIdx, err := g.addExpr(rc.Code, o)
		if err != nil {
			return err
		}
		g.emit(program.Instr{Op: program.OpEval, B: exprIdx}, o)
	}
	return nil
}

func (g *Generator) push(f *genFrame) {
	g.frames = append(g.frames, f)
}

func (g *Generator) top(kind string, o Origin) (*genFrame, error) {
	if len(g.frames) == 0 || g.frames[len(g.frames)-1].kind != kind {
		return nil, syntaxErrorf(g.ctx.Template, o.Line, o.Col,
			"internal: mismatched %s marker", kind)
	}
	return g.frames[len(g.frames)-1], nil
}

func (g *Generator) pop(kind string, o Origin) (*genFrame, error) {
	f, err := g.top(kind, o)
	if err != nil {
		return nil, err
	}
	g.frames = g.frames[:len(g.frames)-1]
	return f, nil
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

type loopHeader struct {
	collection string
	keyVar     string
	valVar     string
}

// parseLoopHeader splits "$items as $key => $item" into its parts. The
// variable clause is optional; so is the key.
func parseLoopHeader(s string) (loopHeader, error) {
	parts := splitTopLevel(s, " as ")
	h := loopHeader{collection: strings.TrimSpace(parts[0])}
	if h.collection == "" {
		return h, fmt.Errorf("loop needs a collection expression")
	}
	if len(parts) == 1 {
		return h, nil
	}
	if len(parts) > 2 {
		return h, fmt.Errorf("malformed loop header %q", s)
	}
	vars := strings.Split(parts[1], "=>")
	switch len(vars) {
	case 1:
		v, err := loopVar(vars[0])
		if err != nil {
			return h, err
		}
		h.valVar = v
	case 2:
		k, err := loopVar(vars[0])
		if err != nil {
			return h, err
		}
		v, err := loopVar(vars[1])
		if err != nil {
			return h, err
		}
		h.keyVar, h.valVar = k, v
	default:
		return h, fmt.Errorf("malformed loop header %q", s)
	}
	return h, nil
}

func loopVar(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if s == "" || !isIdentStart(s[0]) {
		return "", fmt.Errorf("invalid loop variable %q", s)
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return "", fmt.Errorf("invalid loop variable %q", s)
		}
	}
	return s, nil
}

// parseCacheHeader splits "key" or "key, ttl". The TTL is either a bare
// number of seconds or a quoted duration literal.
func parseCacheHeader(s string) (string, time.Duration, error) {
	parts := splitTopLevel(s, ",")
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return "", 0, fmt.Errorf("cache needs a key expression")
	}
	if len(parts) == 1 {
		return key, 0, nil
	}
	if len(parts) > 2 {
		return "", 0, fmt.Errorf("malformed cache header %q", s)
	}
	raw := strings.TrimSpace(parts[1])
	raw = strings.Trim(raw, `'"`)
	if secs, err := strconv.Atoi(raw); err == nil {
		return key, time.Duration(secs) * time.Second, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid cache ttl %q", raw)
	}
	return key, ttl, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// rewriteVars strips the $ sigil off variable references outside string
// literals so snippets reach the expression engine as plain identifiers.
func rewriteVars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '$' && i+1 < len(s) && isIdentStart(s[i+1]):
			// drop the sigil
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
