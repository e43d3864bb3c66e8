package compiler

import "fmt"

// SyntaxError is any compile-time template error: directive arity
// violations, unknown directive names, malformed expressions, invalid
// pairing placement, unclosed elements. It always carries the template
// name and a 1-based source position, and it aborts the compile call that
// raised it.
type SyntaxError struct {
	Template string
	Line     int
	Col      int
	Msg      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Template, e.Line, e.Col, e.Msg)
}

func syntaxErrorf(template string, line, col int, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Template: template,
		Line:     line,
		Col:      col,
		Msg:      fmt.Sprintf(format, args...),
	}
}
