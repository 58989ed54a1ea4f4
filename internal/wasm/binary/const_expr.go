package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wasmkit/naivevm/internal/leb128"
	"github.com/wasmkit/naivevm/internal/wasm"
)

// decodeConstantExpression reads a constant expression terminated by OpcodeEnd and returns its evaluated raw
// bits. global.get may only refer to globals already decoded.
func decodeConstantExpression(r *bytes.Reader, globals []*wasm.Global) (wasm.ValueType, uint64, error) {
	opcode, err := r.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("read opcode: %v", err)
	}

	var vt wasm.ValueType
	var v uint64
	switch opcode {
	case wasm.OpcodeI32Const:
		var i int32
		i, _, err = leb128.DecodeInt32(r)
		vt, v = wasm.ValueTypeI32, wasm.EncodeI32(i)
	case wasm.OpcodeI64Const:
		var i int64
		i, _, err = leb128.DecodeInt64(r)
		vt, v = wasm.ValueTypeI64, wasm.EncodeI64(i)
	case wasm.OpcodeF32Const:
		buf := make([]byte, 4)
		_, err = io.ReadFull(r, buf)
		vt, v = wasm.ValueTypeF32, uint64(binary.LittleEndian.Uint32(buf))
	case wasm.OpcodeF64Const:
		buf := make([]byte, 8)
		_, err = io.ReadFull(r, buf)
		vt, v = wasm.ValueTypeF64, binary.LittleEndian.Uint64(buf)
	case wasm.OpcodeGlobalGet:
		var idx uint32
		if idx, _, err = leb128.DecodeUint32(r); err == nil {
			if idx >= uint32(len(globals)) {
				return 0, 0, fmt.Errorf("global index %d out of range", idx)
			}
			vt, v = globals[idx].Type, globals[idx].Init
		}
	default:
		return 0, 0, fmt.Errorf("%w for const expression opcode: %#x", ErrInvalidByte, opcode)
	}

	if err != nil {
		return 0, 0, fmt.Errorf("read value: %v", err)
	}

	if b, err := r.ReadByte(); err != nil {
		return 0, 0, fmt.Errorf("look for end opcode: %v", err)
	} else if b != wasm.OpcodeEnd {
		return 0, 0, fmt.Errorf("constant expression has not been terminated")
	}
	return vt, v, nil
}

// encodeConstantExpression is the inverse of decodeConstantExpression for a literal of type vt.
func encodeConstantExpression(vt wasm.ValueType, v uint64) []byte {
	var data []byte
	switch vt {
	case wasm.ValueTypeI32:
		data = append([]byte{wasm.OpcodeI32Const}, leb128.EncodeInt32(wasm.DecodeI32(v))...)
	case wasm.ValueTypeI64:
		data = append([]byte{wasm.OpcodeI64Const}, leb128.EncodeInt64(int64(v))...)
	case wasm.ValueTypeF32:
		data = binary.LittleEndian.AppendUint32([]byte{wasm.OpcodeF32Const}, uint32(v))
	case wasm.ValueTypeF64:
		data = binary.LittleEndian.AppendUint64([]byte{wasm.OpcodeF64Const}, v)
	}
	return append(data, wasm.OpcodeEnd)
}
