package program

import (
	"reflect"
	"sort"

	"vellum/pkg/coerce"
)

// loopItem is one element of a materialized collection.
type loopItem struct {
	key any
	val any
}

// loopState is the "current loop" record pushed around a repeating body.
// Nested loops see their own record with a parent reference; the record is
// exposed to expressions as the loop variable.
type loopState struct {
	spec     *LoopSpec
	items    []loopItem // collection loops
	index    int        // 0-based
	count    int        // -1 when unknown (while)
	depth    int
	parent   *loopState
	started  bool
	shadowed map[string]shadow // variables hidden by this loop's bindings
}

type shadow struct {
	val     any
	existed bool
}

// vars builds the map exposed as the loop variable for the current
// iteration. count, last and remaining stay nil when the collection size
// cannot be known in advance; they read as absent, never as an error.
func (ls *loopState) vars() map[string]any {
	m := map[string]any{
		"index":     ls.index,
		"iteration": ls.index + 1,
		"first":     ls.index == 0,
		// Parity follows the 1-based iteration: the first pass is odd.
		"odd":       ls.index%2 == 0,
		"even":      ls.index%2 == 1,
		"depth":     ls.depth,
	}
	if ls.count >= 0 {
		m["count"] = ls.count
		m["last"] = ls.index == ls.count-1
		m["remaining"] = ls.count - ls.index - 1
	} else {
		m["count"] = nil
		m["last"] = nil
		m["remaining"] = nil
	}
	if ls.parent != nil {
		m["parent"] = ls.parent.vars()
	}
	return m
}

// materialize flattens a collection value into ordered key/value items.
// Maps iterate in reflect order; slices, arrays and strings by index; a
// bare integer n iterates 1..n. Anything else yields no items.
func materialize(v any) []loopItem {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]loopItem, len(t))
		for i, e := range t {
			out[i] = loopItem{key: i, val: e}
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]loopItem, 0, len(t))
		for _, k := range keys {
			out = append(out, loopItem{key: k, val: t[k]})
		}
		return out
	case string:
		out := make([]loopItem, 0, len(t))
		for i, r := range t {
			out = append(out, loopItem{key: i, val: string(r)})
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]loopItem, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = loopItem{key: i, val: rv.Index(i).Interface()}
		}
		return out
	case reflect.Map:
		keys := rv.MapKeys()
		out := make([]loopItem, 0, len(keys))
		for _, k := range keys {
			out = append(out, loopItem{key: k.Interface(), val: rv.MapIndex(k).Interface()})
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int(rv.Int())
		out := make([]loopItem, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, loopItem{key: i - 1, val: i})
		}
		return out
	}
	if coerce.Truthy(v) {
		return []loopItem{{key: 0, val: v}}
	}
	return nil
}
