package program

// Op is a single rendering instruction kind.
type Op byte

const (
	OpReturn Op = iota

	// Output
	OpText   // emit Instr.Text verbatim
	OpOutput // B = output spec: eval, pipe transforms, escape, emit
	OpEval   // B = expr: evaluate for effect, discard the value

	// Control flow
	OpJump        // A = target
	OpJumpIfFalse // A = target, B = expr
	OpJumpIfTrue  // A = target, B = expr
	OpJumpIfUnset // A = target, B = expr (jump when value is nil)
	OpJumpIfFull  // A = target, B = expr (jump when value is non-empty)
	OpJumpIfEmpty // A = target, B = expr (jump when value is empty)

	// Loops
	OpLoopInit  // B = loop spec; pushes the loop record
	OpLoopNext  // A = body start, B = loop spec
	OpWhileTest // A = exit target, B = loop spec

	// Switch
	OpSwitch    // B = expr; push subject value
	OpCase      // A = next case, B = expr; jump when no match
	OpEndSwitch // pop subject

	// Buffered regions
	OpCapture       // push an output buffer
	OpEndCapture    // pop buffer onto the captured stack
	OpEmitCaptured  // pop captured stack, emit verbatim
	OpSkipNoContent // A = target; drop captured and jump when it trims empty

	// Error scope
	OpTry    // A = finally target; push protected region
	OpEndTry // commit protected region

	// Fragment cache
	OpCacheStart // A = end target, B = cache spec
	OpCacheEnd   // B = cache spec

	// Runtime dispatch
	OpCall // B = call spec
)

func (o Op) String() string {
	switch o {
	case OpReturn:
		return "OpReturn"
	case OpText:
		return "OpText"
	case OpOutput:
		return "OpOutput"
	case OpEval:
		return "OpEval"
	case OpJump:
		return "OpJump"
	case OpJumpIfFalse:
		return "OpJumpIfFalse"
	case OpJumpIfTrue:
		return "OpJumpIfTrue"
	case OpJumpIfUnset:
		return "OpJumpIfUnset"
	case OpJumpIfFull:
		return "OpJumpIfFull"
	case OpJumpIfEmpty:
		return "OpJumpIfEmpty"
	case OpLoopInit:
		return "OpLoopInit"
	case OpLoopNext:
		return "OpLoopNext"
	case OpWhileTest:
		return "OpWhileTest"
	case OpSwitch:
		return "OpSwitch"
	case OpCase:
		return "OpCase"
	case OpEndSwitch:
		return "OpEndSwitch"
	case OpCapture:
		return "OpCapture"
	case OpEndCapture:
		return "OpEndCapture"
	case OpEmitCaptured:
		return "OpEmitCaptured"
	case OpSkipNoContent:
		return "OpSkipNoContent"
	case OpTry:
		return "OpTry"
	case OpEndTry:
		return "OpEndTry"
	case OpCacheStart:
		return "OpCacheStart"
	case OpCacheEnd:
		return "OpCacheEnd"
	case OpCall:
		return "OpCall"
	default:
		return "OpUnknown"
	}
}
