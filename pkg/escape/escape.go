// Package escape implements context-sensitive output encoding. Every
// interpolated value lands in some output sink (HTML body, attribute,
// script, JSON, CSS, URL) and each sink has its own encoding rule. Picking
// the wrong rule is an XSS hole, so the compiler resolves a context for
// every interpolation and the renderer calls the matching encoder here.
package escape

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/goccy/go-json"

	"vellum/pkg/coerce"
)

// Context identifies the output sink an interpolation lands in.
type Context string

const (
	CtxHTML     Context = "html"     // element body
	CtxAttr     Context = "attr"     // quoted attribute value
	CtxJS       Context = "js"       // inline script
	CtxJSON     Context = "json"     // JSON body
	CtxJSONAttr Context = "jsonattr" // JSON inside a quoted attribute
	CtxCSS      Context = "css"      // inline style
	CtxURL      Context = "url"      // URL-valued attribute
	CtxRaw      Context = "raw"      // explicit opt-out, no encoding
)

// Error reports an attempt to auto-escape a value that has no sensible
// text rendering in a strict context.
type Error struct {
	Context Context
	Value   any
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot escape %T value for %s context", e.Value, e.Context)
}

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// renderable reports whether a value has a direct text form. Arrays, maps
// and bare structs do not; letting them stringify silently hides bugs, so
// the strict contexts reject them.
func renderable(v any) bool {
	switch v.(type) {
	case nil, string, []byte, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		fmt.Stringer, error:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Func, reflect.Chan:
		return false
	case reflect.Ptr:
		if rv.IsNil() {
			return true
		}
		return renderable(rv.Elem().Interface())
	}
	return true
}

// HTML entity-encodes a value for an element body or a quoted attribute.
// Non-renderable values are an error, never a silent stringification.
func HTML(v any) (string, error) {
	if !renderable(v) {
		return "", &Error{Context: CtxHTML, Value: v}
	}
	return htmlReplacer.Replace(coerce.ToString(v)), nil
}

// Attr is the attribute-value encoder. The rule is shared with HTML: the
// replacer covers both quote kinds, so one encoder serves both sinks.
func Attr(v any) (string, error) {
	if !renderable(v) {
		return "", &Error{Context: CtxAttr, Value: v}
	}
	return htmlReplacer.Replace(coerce.ToString(v)), nil
}

// JS encodes a value for an inline script. The value is JSON-encoded and
// the characters that could break out of a script block are hex-escaped
// on top of what JSON already does.
func JS(v any) (string, error) {
	return jsonEncode(v, true)
}

// JSON encodes a value for a JSON sink, hex-escaping < and & so the
// output stays inert if it ever ends up inside markup.
func JSON(v any) (string, error) {
	return jsonEncode(v, false)
}

// JSONAttr encodes for JSON inside a quoted attribute: JSON first, then
// the result is entity-encoded like any other attribute value.
func JSONAttr(v any) (string, error) {
	s, err := jsonEncode(v, false)
	if err != nil {
		return "", err
	}
	return htmlReplacer.Replace(s), nil
}

func jsonEncode(v any, script bool) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("json escape: %w", err)
	}
	s := string(b)
	if script {
		s = hexEscapeScript(s)
	}
	s = strings.ReplaceAll(s, "<", "\\u003c")
	s = strings.ReplaceAll(s, "&", "\\u0026")
	return s, nil
}

// hexEscapeScript rewrites the quote characters inside JSON string
// values so they cannot terminate a surrounding script. It walks the
// encoding's own escape sequences, so a value ending in a backslash
// (`\\` followed by the closing `"`) keeps its delimiter intact.
func hexEscapeScript(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inStr {
			if c == '"' {
				inStr = true
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			if i+1 < len(s) {
				i++
				if s[i] == '"' {
					b.WriteString("\\u0022")
				} else {
					b.WriteByte(c)
					b.WriteByte(s[i])
				}
			} else {
				b.WriteByte(c)
			}
		case '"':
			inStr = false
			b.WriteByte(c)
		case '\'':
			b.WriteString("\\u0027")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var cssDropper = []string{"javascript:", "expression(", "@import", "import"}

// CSS encodes a value for an inline style. Known-dangerous substrings are
// stripped case-insensitively, then every character outside the safe set
// is backslash-hex escaped.
func CSS(v any) (string, error) {
	if !renderable(v) {
		return "", &Error{Context: CtxCSS, Value: v}
	}
	s := coerce.ToString(v)
	for _, bad := range cssDropper {
		for {
			i := strings.Index(strings.ToLower(s), bad)
			if i < 0 {
				break
			}
			s = s[:i] + s[i+len(bad):]
		}
	}
	var b strings.Builder
	for _, r := range s {
		if isCSSSafe(r) {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, `\%X `, r)
		}
	}
	return b.String(), nil
}

func isCSSSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ' || r == '-' || r == '_' || r == '.' || r == ',' || r == '#':
		return true
	}
	return false
}

const upperhex = "0123456789ABCDEF"

// URL percent-encodes a value for a URL-valued attribute. Space becomes
// %20, unreserved characters pass through untouched.
func URL(v any) (string, error) {
	if !renderable(v) {
		return "", &Error{Context: CtxURL, Value: v}
	}
	s := coerce.ToString(v)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String(), nil
}

// Raw performs no encoding. Raw output is explicitly opt-in, so values
// that cannot render coerce to the empty string instead of erroring.
func Raw(v any) (string, error) {
	if v == nil || !renderable(v) {
		return "", nil
	}
	return coerce.ToString(v), nil
}

// Encode applies the encoder for ctx directly to a value.
func Encode(v any, ctx Context) (string, error) {
	return Func(ctx)(v)
}

// Func returns the encoder the code generator wires inline for a given
// context. Unknown contexts fall back to the HTML encoder, which is the
// strictest text rule we have.
func Func(ctx Context) func(any) (string, error) {
	switch ctx {
	case CtxHTML:
		return HTML
	case CtxAttr:
		return Attr
	case CtxJS:
		return JS
	case CtxJSON:
		return JSON
	case CtxJSONAttr:
		return JSONAttr
	case CtxCSS:
		return CSS
	case CtxURL:
		return URL
	case CtxRaw:
		return Raw
	}
	return HTML
}
