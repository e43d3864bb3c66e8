// Package compiler turns markup templates into compiled rendering
// programs. The pipeline is fixed: lex, parse, extract directives, pair
// sibling branches, lower directives to control markers, finalize escape
// contexts, generate instructions. Each pass owns one concern and hands
// the next a tree it can trust.
package compiler

import (
	"vellum/pkg/program"
	"vellum/pkg/transforms"
)

// Options configures one compile call.
type Options struct {
	// Name identifies the template in errors and debug markers, typically
	// its path.
	Name string
	// Debug makes the program emit source-locating markers.
	Debug bool
	// Transforms overrides the pipe-transform table. Nil means the
	// built-in table.
	Transforms *transforms.Table
	// VoidTags overrides the void element set. Nil keeps the HTML set.
	VoidTags []string
	// TrackDependency, when set, receives the name of every statically
	// known template this one references.
	TrackDependency func(name string)
}

// Compile runs the whole pipeline over one template source.
func Compile(source string, opts Options) (*program.Program, error) {
	ctx := &Context{
		Template:        opts.Name,
		Source:          source,
		Debug:           opts.Debug,
		TrackDependency: opts.TrackDependency,
	}
	table := opts.Transforms
	if table == nil {
		table = transforms.Default()
	}
	reg := NewRegistry()

	tokens := NewLexer(source).Tokenize()
	parser := NewParser(ctx, tokens)
	if opts.VoidTags != nil {
		parser.SetVoidTags(opts.VoidTags)
	}
	doc, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	if err := ExtractDirectives(doc, ctx, reg); err != nil {
		return nil, err
	}
	if err := PairDirectives(doc, ctx, reg); err != nil {
		return nil, err
	}
	if err := CompileDirectives(doc, ctx, reg); err != nil {
		return nil, err
	}
	if err := AnalyzeContexts(doc, ctx); err != nil {
		return nil, err
	}
	return NewGenerator(ctx, table).Generate(doc)
}
