package naivevm

import (
	"fmt"

	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

func call(e *Engine) {
	e.callFunction(e.fetchUint32())
}

// callFunction pushes a frame for funcIdx, popping its arguments into the first locals.
func (e *Engine) callFunction(funcIdx wasm.Index) {
	if funcIdx >= uint32(len(e.module.Functions)) {
		panic(fmt.Errorf("%w: function index %d, but module has %d functions",
			wasmruntime.ErrRuntimeInvalidIndex, funcIdx, len(e.module.Functions)))
	}
	f := e.module.Functions[funcIdx]
	ft := e.module.Types[f.TypeIndex]

	paramCount := len(ft.Params)
	locals := make([]uint64, paramCount+len(f.Locals))
	for i := paramCount - 1; i >= 0; i-- {
		locals[i] = e.operands.pop()
	}

	e.activeFrame = e.frames.push(frame{
		funcIdx:     funcIdx,
		f:           f,
		locals:      locals,
		controlBase: e.controls.depth(),
		operandBase: e.operands.height(),
		arity:       len(ft.Results),
	})
}

// returnFromFunction pops the active frame with the labels it opened. Its results stay on top of the operand stack,
// and anything it left beneath them is discarded.
func (e *Engine) returnFromFunction() {
	fr := e.frames.pop()
	e.controls.truncate(fr.controlBase)
	e.operands.keepTop(fr.operandBase, fr.arity)
	e.activeFrame = e.frames.peek()
}
