package program

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble writes a human-readable instruction listing, used when
// debugging compiled templates.
func (p *Program) Disassemble(w io.Writer) {
	fmt.Fprintf(w, "== %s ==\n", p.Name)
	for i := range p.Code {
		p.disassembleInstr(w, i)
	}
}

func (p *Program) disassembleInstr(w io.Writer, i int) {
	in := &p.Code[i]
	fmt.Fprintf(w, "%04d %-16s", i, in.Op.String())
	switch in.Op {
	case OpText:
		fmt.Fprintf(w, " %q", clip(in.Text, 40))
	case OpOutput:
		spec := p.Outputs[in.B]
		fmt.Fprintf(w, " %s ctx=%s escape=%v", clip(p.ExprSrc[spec.Expr], 40), spec.Ctx, spec.Escape)
	case OpJump, OpSkipNoContent, OpTry:
		fmt.Fprintf(w, " -> %04d", in.A)
	case OpJumpIfFalse, OpJumpIfTrue, OpJumpIfUnset, OpJumpIfFull, OpJumpIfEmpty, OpCase, OpWhileTest:
		fmt.Fprintf(w, " %s -> %04d", clip(p.ExprSrc[in.B], 30), in.A)
	case OpEval:
		fmt.Fprintf(w, " %s", clip(p.ExprSrc[in.B], 40))
	case OpLoopInit:
		spec := p.Loops[in.B]
		fmt.Fprintf(w, " %s end=%04d", clip(p.ExprSrc[spec.Expr], 30), spec.End)
	case OpLoopNext:
		fmt.Fprintf(w, " body=%04d", in.A)
	case OpSwitch:
		fmt.Fprintf(w, " %s", clip(p.ExprSrc[in.B], 30))
	case OpCall:
		fmt.Fprintf(w, " %s", p.Calls[in.B].Name)
	case OpCacheStart:
		fmt.Fprintf(w, " key=%s end=%04d", clip(p.ExprSrc[p.Caches[in.B].Key], 30), in.A)
	}
	if in.Line > 0 {
		fmt.Fprintf(w, "  ; %d:%d", in.Line, in.Col)
	}
	fmt.Fprintln(w)
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}
