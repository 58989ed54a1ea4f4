package naivevm

import (
	"github.com/wasmkit/naivevm/internal/wasm"
)

func i32Const(e *Engine) {
	e.operands.push(wasm.EncodeI32(e.fetchInt32()))
}

func i64Const(e *Engine) {
	e.operands.push(wasm.EncodeI64(e.fetchInt64()))
}

func f32Const(e *Engine) {
	e.operands.push(wasm.EncodeF32(e.fetchFloat32()))
}

func f64Const(e *Engine) {
	e.operands.push(wasm.EncodeF64(e.fetchFloat64()))
}
