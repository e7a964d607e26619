package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToValue(t *testing.T) {
	v, err := ToValue(map[string]any{
		"n":    3,
		"f":    2.5,
		"list": []any{"a", true},
		"num":  json.Number("7"),
	})
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Int(3), obj["n"])
	assert.Equal(t, Float(2.5), obj["f"])
	assert.Equal(t, Array{String("a"), Bool(true)}, obj["list"])
	assert.Equal(t, Int(7), obj["num"])
}

func TestToValueRejectsNull(t *testing.T) {
	_, err := ToValue([]any{1, nil})
	assert.Error(t, err)
}

func TestAsFloats(t *testing.T) {
	got, ok := AsFloats(Array{Int(1), Float(2.5)})
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2.5}, got)

	_, ok = AsFloats(Array{String("x")})
	assert.False(t, ok)

	_, ok = AsFloats(Int(1))
	assert.False(t, ok)
}

func TestObjectMarshalJSONSorted(t *testing.T) {
	b, err := json.Marshal(Object{"b": Int(1), "a": Float(0.5)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":0.5,"b":1}`, string(b))
}
