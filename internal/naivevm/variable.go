package naivevm

import (
	"fmt"

	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

func drop(e *Engine) {
	e.operands.drop()
}

func selectOp(e *Engine) {
	c := uint32(e.operands.pop())
	v2 := e.operands.pop()
	v1 := e.operands.pop()
	if c != 0 {
		e.operands.push(v1)
	} else {
		e.operands.push(v2)
	}
}

// typedSelect is select with an explicit vector of result types, which only matters to validation.
func typedSelect(e *Engine) {
	n := e.fetchUint32()
	fr := e.activeFrame
	if uint64(n) > uint64(len(fr.f.Body))-fr.pc {
		panic(e.malformed("select has %d result types", n))
	}
	fr.pc += uint64(n)
	selectOp(e)
}

func (e *Engine) local(idx uint32) *uint64 {
	fr := e.activeFrame
	if idx >= uint32(len(fr.locals)) {
		panic(fmt.Errorf("%w: local index %d, but %s has %d locals",
			wasmruntime.ErrRuntimeInvalidIndex, idx, e.functionName(fr.funcIdx), len(fr.locals)))
	}
	return &fr.locals[idx]
}

func localGet(e *Engine) {
	e.operands.push(*e.local(e.fetchUint32()))
}

func localSet(e *Engine) {
	l := e.local(e.fetchUint32())
	*l = e.operands.pop()
}

func localTee(e *Engine) {
	l := e.local(e.fetchUint32())
	*l = e.operands.peek()
}

func (e *Engine) checkGlobal(idx uint32) {
	if idx >= uint32(len(e.globals)) {
		panic(fmt.Errorf("%w: global index %d, but module has %d globals",
			wasmruntime.ErrRuntimeInvalidIndex, idx, len(e.globals)))
	}
}

func globalGet(e *Engine) {
	idx := e.fetchUint32()
	e.checkGlobal(idx)
	e.operands.push(e.globals[idx])
}

func globalSet(e *Engine) {
	idx := e.fetchUint32()
	e.checkGlobal(idx)
	if !e.module.Globals[idx].Mutable {
		panic(fmt.Errorf("%w: global[%d]", wasmruntime.ErrRuntimeImmutableGlobal, idx))
	}
	e.globals[idx] = e.operands.pop()
}
