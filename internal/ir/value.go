package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface for the portable description of pipeline data.
// Only String, Int, Float, Bool, Array and Object implement it.
//
// Values describe flow states and pipeline definitions for digests, journal
// entries and golden traces. There is no null: absent data is an absent key.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// String is a string value.
type String string

func (String) irValue() {}

// Int is an integer value.
type Int int64

func (Int) irValue() {}

// Float is a finite floating-point value.
// NaN and infinities are rejected at serialization time.
type Float float64

func (Float) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) irValue() {}

// Object maps string keys to values. Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) irValue() {}

// Floats builds an Array from a float slice.
func Floats(vals []float64) Array {
	arr := make(Array, len(vals))
	for i, v := range vals {
		arr[i] = Float(v)
	}
	return arr
}

// Strings builds an Array from a string slice.
func Strings(vals []string) Array {
	arr := make(Array, len(vals))
	for i, v := range vals {
		arr[i] = String(v)
	}
	return arr
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders some keys differently.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	for i := 0; i < min(len(a16), len(b16)); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
// This is not canonical marshaling; use MarshalCanonical for hashing.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalValue marshals a Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("non-finite float %v", float64(val))
		}
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// ToValue converts a decoded Go value (from YAML, JSON or CUE) to a Value.
// Integral numbers become Int; other numbers become Float. nil is rejected.
func ToValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid value")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return Int(val), nil
	case float32:
		return ToValue(float64(val))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite float %v", val)
		}
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return ToValue(f)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			irElem, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			irElem, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// AsFloat extracts a number from Int or Float.
func AsFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// AsFloats extracts a list of numbers from an Array.
func AsFloats(v Value) ([]float64, bool) {
	arr, ok := v.(Array)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, elem := range arr {
		f, ok := AsFloat(elem)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
