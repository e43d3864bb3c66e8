package coerce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "abc", ToString("abc"))
	assert.Equal(t, "42", ToString(42))
	assert.Equal(t, "1.5", ToString(1.5))
	assert.Equal(t, "true", ToString(true))
}

func TestToInt(t *testing.T) {
	n, err := ToInt("123")
	require.NoError(t, err)
	assert.Equal(t, 123, n)

	n, err = ToInt(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = ToInt("abc")
	assert.Error(t, err)
}

func TestToFloat64(t *testing.T) {
	f, err := ToFloat64("1.25")
	require.NoError(t, err)
	assert.Equal(t, 1.25, f)

	_, err = ToFloat64([]int{1})
	assert.Error(t, err)
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, 1, -1, 0.5, "x", []any{1}, map[string]any{"a": 1}} {
		assert.True(t, Truthy(v), "%v (%T)", v, v)
	}
	for _, v := range []any{nil, false, 0, 0.0, "", "0", []any{}, map[string]any{}} {
		assert.False(t, Truthy(v), "%v (%T)", v, v)
	}
}

func TestEmpty(t *testing.T) {
	assert.True(t, Empty(nil))
	assert.True(t, Empty([]any{}))
	assert.False(t, Empty([]any{1}))
}
