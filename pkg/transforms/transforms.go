// Package transforms holds the pipe-transform table. A template output may
// carry a |> chain; every name in the chain that is not a compiler sentinel
// resolves here at code-generation time and runs against the value just
// before escaping.
package transforms

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"vellum/pkg/coerce"
)

// Func is a single pipe transform. args are the evaluated arguments from
// the template, e.g. truncate(20) passes []any{20}.
type Func func(v any, args []any) (any, error)

// Table is an immutable name-to-transform mapping shared across compiles.
type Table struct {
	funcs map[string]Func
}

var sanitizer = bluemonday.UGCPolicy()

// Default builds the built-in transform table.
func Default() *Table {
	t := &Table{funcs: map[string]Func{}}
	t.funcs["upper"] = func(v any, _ []any) (any, error) {
		return strings.ToUpper(coerce.ToString(v)), nil
	}
	t.funcs["lower"] = func(v any, _ []any) (any, error) {
		return strings.ToLower(coerce.ToString(v)), nil
	}
	t.funcs["trim"] = func(v any, _ []any) (any, error) {
		return strings.TrimSpace(coerce.ToString(v)), nil
	}
	t.funcs["capitalize"] = func(v any, _ []any) (any, error) {
		s := coerce.ToString(v)
		if s == "" {
			return s, nil
		}
		return strings.ToUpper(s[:1]) + s[1:], nil
	}
	t.funcs["truncate"] = truncate
	t.funcs["default"] = fallback
	t.funcs["slug"] = func(v any, _ []any) (any, error) {
		return slug.Make(coerce.ToString(v)), nil
	}
	t.funcs["sanitize"] = func(v any, _ []any) (any, error) {
		return sanitizer.Sanitize(coerce.ToString(v)), nil
	}
	t.funcs["number"] = number
	t.funcs["encode"] = func(v any, _ []any) (any, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode transform: %w", err)
		}
		return string(b), nil
	}
	t.funcs["length"] = func(v any, _ []any) (any, error) {
		s := coerce.ToString(v)
		return len(s), nil
	}
	return t
}

// Lookup resolves a transform by name.
func (t *Table) Lookup(name string) (Func, bool) {
	f, ok := t.funcs[name]
	return f, ok
}

// Names returns every registered transform name, for error suggestions.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.funcs))
	for n := range t.funcs {
		out = append(out, n)
	}
	return out
}

// Register adds or replaces a transform. Must be called before the table
// is shared with any compiler.
func (t *Table) Register(name string, f Func) {
	t.funcs[name] = f
}

func truncate(v any, args []any) (any, error) {
	s := coerce.ToString(v)
	if len(args) == 0 {
		return s, nil
	}
	n, err := cast.ToIntE(args[0])
	if err != nil {
		return nil, fmt.Errorf("truncate: %w", err)
	}
	// Cut on runes so multi-byte text never splits mid-character.
	r := []rune(s)
	if n < 0 || len(r) <= n {
		return s, nil
	}
	return string(r[:n]) + "…", nil
}

func fallback(v any, args []any) (any, error) {
	if coerce.Truthy(v) || len(args) == 0 {
		return v, nil
	}
	return args[0], nil
}

// number renders a numeric value with a fixed number of decimal places
// (default 2), using decimal arithmetic so money-ish values do not pick up
// float artifacts.
func number(v any, args []any) (any, error) {
	f, err := coerce.ToFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("number transform: %w", err)
	}
	places := 2
	if len(args) > 0 {
		p, err := cast.ToIntE(args[0])
		if err != nil {
			return nil, fmt.Errorf("number transform: %w", err)
		}
		places = p
	}
	return decimal.NewFromFloat(f).StringFixed(int32(places)), nil
}
