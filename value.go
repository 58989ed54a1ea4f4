package naivevm

import (
	"fmt"
	"strconv"

	"github.com/wasmkit/naivevm/internal/wasm"
)

// EncodeI32 encodes the input as an i32 param or result of Instance.Invoke.
func EncodeI32(input int32) uint64 {
	return wasm.EncodeI32(input)
}

// DecodeI32 decodes the input as an i32.
func DecodeI32(input uint64) int32 {
	return wasm.DecodeI32(input)
}

// EncodeI64 encodes the input as an i64.
func EncodeI64(input int64) uint64 {
	return wasm.EncodeI64(input)
}

// DecodeI64 decodes the input as an i64.
func DecodeI64(input uint64) int64 {
	return int64(input)
}

// EncodeF32 encodes the input as an f32.
func EncodeF32(input float32) uint64 {
	return wasm.EncodeF32(input)
}

// DecodeF32 decodes the input as an f32.
func DecodeF32(input uint64) float32 {
	return wasm.DecodeF32(input)
}

// EncodeF64 encodes the input as an f64.
func EncodeF64(input float64) uint64 {
	return wasm.EncodeF64(input)
}

// DecodeF64 decodes the input as an f64.
func DecodeF64(input uint64) float64 {
	return wasm.DecodeF64(input)
}

// ValueType is the type of a param, result or global: one of ValueTypeI32, ValueTypeI64, ValueTypeF32 or
// ValueTypeF64.
type ValueType = wasm.ValueType

const (
	ValueTypeI32 = wasm.ValueTypeI32
	ValueTypeI64 = wasm.ValueTypeI64
	ValueTypeF32 = wasm.ValueTypeF32
	ValueTypeF64 = wasm.ValueTypeF64
)

// ValueTypeName returns the type name of the given ValueType as a string, such as "i32".
func ValueTypeName(t ValueType) string {
	return wasm.ValueTypeName(t)
}

// FormatValue renders the raw value v according to t.
func FormatValue(t ValueType, v uint64) string {
	return wasm.FormatValue(t, v)
}

// ParseValue parses s as a value of type t, returning its raw encoding. Integers accept the syntax of
// strconv.ParseInt with base 0, and may be written unsigned.
func ParseValue(t ValueType, s string) (uint64, error) {
	switch t {
	case ValueTypeI32:
		if v, err := strconv.ParseInt(s, 0, 32); err == nil {
			return EncodeI32(int32(v)), nil
		}
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid i32 %q", s)
		}
		return v, nil
	case ValueTypeI64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return EncodeI64(v), nil
		}
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid i64 %q", s)
		}
		return v, nil
	case ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid f32 %q", s)
		}
		return EncodeF32(float32(v)), nil
	case ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid f64 %q", s)
		}
		return EncodeF64(v), nil
	}
	return 0, fmt.Errorf("unsupported value type %#x", t)
}
