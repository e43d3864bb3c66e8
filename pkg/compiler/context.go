package compiler

// Context is the shared per-compile state handed to every pass. It exists
// for diagnostics and collaborator hooks only; passes never use it to
// smuggle AST state.
type Context struct {
	// Template is the identity reported in errors, typically a path.
	Template string
	// Source is the raw template text, kept for diagnostic snippets.
	Source string
	// Debug enables source-locating markers in the generated unit.
	Debug bool
	// TrackDependency, when set, is called with the name of every template
	// this compile references (includes and friends). The core never
	// interprets what the hook does with it.
	TrackDependency func(name string)
}

func (c *Context) trackDependency(name string) {
	if c.TrackDependency != nil {
		c.TrackDependency(name)
	}
}
