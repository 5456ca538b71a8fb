package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect any
	}{
		{name: "int64", input: "42", expect: int64(42)},
		{name: "negative int64", input: "-7", expect: int64(-7)},
		{name: "float64", input: "3.14", expect: float64(3.14)},
		{name: "scientific float64", input: "1e3", expect: float64(1000)},
		{name: "non-numeric", input: "abc", expect: "abc"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := tryParseNumber(tt.input)
			switch exp := tt.expect.(type) {
			case int64:
				val, ok := got.(int64)
				assert.True(t, ok, "expected int64")
				assert.Equal(t, exp, val)
			case float64:
				val, ok := got.(float64)
				assert.True(t, ok, "expected float64")
				assert.InDelta(t, exp, val, 1e-9)
			case string:
				val, ok := got.(string)
				assert.True(t, ok, "expected string")
				assert.Equal(t, exp, val)
			default:
				t.Fatalf("unsupported expected type %T", exp)
			}
		})
	}
}

func TestToInt64(t *testing.T) {
	for _, v := range []any{int64(7), int32(7), int16(7), 7, uint32(7), float64(7), "7", []byte("7")} {
		got, ok := toInt64(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, int64(7), got, "%T", v)
	}
	for _, v := range []any{nil, 7.5, "seven", true} {
		_, ok := toInt64(v)
		assert.False(t, ok, "%T", v)
	}
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, chunk([]int64{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int64{{1, 2, 3}}, chunk([]int64{1, 2, 3}, 0))
	assert.Nil(t, chunk(nil, 80))
}

func TestSplitPath(t *testing.T) {
	got, err := splitPath("emissions.0.scope_amount")
	require.NoError(t, err)
	assert.Equal(t, []any{"emissions", 0, "scope_amount"}, got)

	_, err = splitPath("")
	assert.Error(t, err)
	_, err = splitPath("a..b")
	assert.Error(t, err)
}
