package vs

import (
	"github.com/wasmkit/naivevm/internal/leb128"
	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasm/binary"
)

var (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
	f64 = wasm.ValueTypeF64
)

// facWasm exports "fac", a recursive factorial of type i64_i64:
//
//	(func $fac (param i64) (result i64)
//	  (if (result i64) (i64.lt_s (local.get 0) (i64.const 1))
//	    (then (i64.const 1))
//	    (else (i64.mul (local.get 0) (call $fac (i64.sub (local.get 0) (i64.const 1)))))))
var facWasm = binary.EncodeModule(&wasm.Module{
	Types: []*wasm.FunctionType{{Params: []wasm.ValueType{i64}, Results: []wasm.ValueType{i64}}},
	Functions: []*wasm.Function{{Body: concat(
		[]byte{wasm.OpcodeLocalGet, 0}, i64Const(1), []byte{wasm.OpcodeI64LtS},
		[]byte{wasm.OpcodeIf, i64}, i64Const(1),
		[]byte{wasm.OpcodeElse, wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 0}, i64Const(1),
		[]byte{wasm.OpcodeI64Sub, wasm.OpcodeCall, 0, wasm.OpcodeI64Mul},
		[]byte{wasm.OpcodeEnd, wasm.OpcodeEnd},
	)}},
	Exports: []*wasm.Export{{Name: "fac", Kind: wasm.ExportKindFunc, Index: 0}},
})

// fibWasm exports "fib", an iterative fibonacci of type i32_i32 built on block, loop and br_if.
var fibWasm = binary.EncodeModule(&wasm.Module{
	Types: []*wasm.FunctionType{{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{i32}}},
	Functions: []*wasm.Function{{
		// $n is local 0, then $a, $b and $tmp.
		Locals: []wasm.ValueType{i32, i32, i32},
		Body: concat(
			i32Const(1), []byte{wasm.OpcodeLocalSet, 2},
			[]byte{wasm.OpcodeBlock, 0x40, wasm.OpcodeLoop, 0x40},
			[]byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeI32Eqz, wasm.OpcodeBrIf, 1},
			[]byte{wasm.OpcodeLocalGet, 1, wasm.OpcodeLocalGet, 2, wasm.OpcodeI32Add, wasm.OpcodeLocalSet, 3},
			[]byte{wasm.OpcodeLocalGet, 2, wasm.OpcodeLocalSet, 1},
			[]byte{wasm.OpcodeLocalGet, 3, wasm.OpcodeLocalSet, 2},
			[]byte{wasm.OpcodeLocalGet, 0}, i32Const(1), []byte{wasm.OpcodeI32Sub, wasm.OpcodeLocalSet, 0},
			[]byte{wasm.OpcodeBr, 0},
			[]byte{wasm.OpcodeEnd, wasm.OpcodeEnd},
			[]byte{wasm.OpcodeLocalGet, 1, wasm.OpcodeEnd},
		),
	}},
	Exports: []*wasm.Export{{Name: "fib", Kind: wasm.ExportKindFunc, Index: 0}},
})

// miscWasm exports small functions of type i32_i32 or f64_i32 exercising the instruction families fac and fib
// don't:
//   - "memory": stores its param at 16, then adds the i32.load16_s at 16 to the i32.load8_u at 19.
//   - "switch": br_table over three nested blocks, returning 100, 200 or 300 by default.
//   - "div": divides 1000 by its param, trapping on zero.
//   - "trunc_sat": i32.trunc_sat_f64_s of its param.
//   - "trunc": i32.trunc_f64_s of its param, trapping on NaN or overflow.
var miscWasm = binary.EncodeModule(&wasm.Module{
	Types: []*wasm.FunctionType{
		{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{i32}},
		{Params: []wasm.ValueType{f64}, Results: []wasm.ValueType{i32}},
	},
	Functions: []*wasm.Function{
		{Body: concat(
			i32Const(16), []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeI32Store, 2, 0},
			i32Const(16), []byte{wasm.OpcodeI32Load16S, 1, 0},
			i32Const(19), []byte{wasm.OpcodeI32Load8U, 0, 0},
			[]byte{wasm.OpcodeI32Add, wasm.OpcodeEnd},
		)},
		{Body: concat(
			[]byte{wasm.OpcodeBlock, 0x40, wasm.OpcodeBlock, 0x40, wasm.OpcodeBlock, 0x40},
			[]byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeBrTable, 2, 0, 1, 2},
			[]byte{wasm.OpcodeEnd}, i32Const(100), []byte{wasm.OpcodeReturn},
			[]byte{wasm.OpcodeEnd}, i32Const(200), []byte{wasm.OpcodeReturn},
			[]byte{wasm.OpcodeEnd}, i32Const(300),
			[]byte{wasm.OpcodeEnd},
		)},
		{Body: concat(i32Const(1000), []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeI32DivS, wasm.OpcodeEnd})},
		{TypeIndex: 1, Body: []byte{
			wasm.OpcodeLocalGet, 0, wasm.OpcodeMiscPrefix, wasm.OpcodeMiscI32TruncSatF64S, wasm.OpcodeEnd,
		}},
		{TypeIndex: 1, Body: []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeI32TruncF64S, wasm.OpcodeEnd}},
	},
	MemoryMinPages: 1,
	Exports: []*wasm.Export{
		{Name: "memory", Kind: wasm.ExportKindFunc, Index: 0},
		{Name: "switch", Kind: wasm.ExportKindFunc, Index: 1},
		{Name: "div", Kind: wasm.ExportKindFunc, Index: 2},
		{Name: "trunc_sat", Kind: wasm.ExportKindFunc, Index: 3},
		{Name: "trunc", Kind: wasm.ExportKindFunc, Index: 4},
	},
})

func i32Const(v int32) []byte {
	return append([]byte{wasm.OpcodeI32Const}, leb128.EncodeInt32(v)...)
}

func i64Const(v int64) []byte {
	return append([]byte{wasm.OpcodeI64Const}, leb128.EncodeInt64(v)...)
}

func concat(parts ...[]byte) (ret []byte) {
	for _, p := range parts {
		ret = append(ret, p...)
	}
	return
}
