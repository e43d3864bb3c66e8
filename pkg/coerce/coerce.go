// Package coerce converts loosely typed template values into the concrete
// types the renderer needs. All helpers accept any input and fail with an
// error instead of panicking.
package coerce

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// ToString converts input to a string. Nil becomes the empty string.
// Almost every type converts cleanly; the fmt fallback guarantees we
// always get something printable.
func ToString(input any) string {
	if input == nil {
		return ""
	}
	s, err := cast.ToStringE(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return s
}

// ToInt converts input to an int. Numeric strings ("123") and whole
// floats (123.0) are accepted.
func ToInt(input any) (int, error) {
	if input == nil {
		return 0, nil
	}
	i, err := cast.ToIntE(input)
	if err != nil {
		return 0, fmt.Errorf("cannot coerce %v (type %T) to int", input, input)
	}
	return i, nil
}

// ToFloat64 converts input to a float64.
func ToFloat64(input any) (float64, error) {
	if input == nil {
		return 0, nil
	}
	f, err := cast.ToFloat64E(input)
	if err != nil {
		return 0, fmt.Errorf("cannot coerce %v (type %T) to float64", input, input)
	}
	return f, nil
}

// Truthy reports whether a value counts as true in a template condition.
// Follows the usual template-engine rules: nil, false, zero numbers,
// empty strings and empty collections are false, everything else true.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "0"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, _ := cast.ToInt64E(t)
		return n != 0
	case float32, float64:
		f, _ := cast.ToFloat64E(t)
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Empty is the complement of Truthy for collection-ish values. A value is
// empty when it is nil, an empty string, zero, or a collection of length 0.
func Empty(v any) bool {
	return !Truthy(v)
}
