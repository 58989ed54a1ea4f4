package naivevm

import (
	"fmt"

	"github.com/wasmkit/naivevm/internal/leb128"
	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

type blockKey struct {
	funcIdx wasm.Index
	pc      uint64
}

type resolvedBlock struct {
	elseAt, endAt uint64
}

// resolveBlock scans body from pc, the offset just past the block type immediate of a block, loop or if. It
// returns the offset just past the matching else, or zero when there is none, and the offset just past the matching
// end. Nested blocks are resolved recursively, and the immediates of every instruction are skipped, so that
// immediate bytes equal to else or end are never mistaken for them.
func resolveBlock(body []byte, pc uint64) (elseAt, endAt uint64, err error) {
	for pc < uint64(len(body)) {
		op := body[pc]
		pc++
		switch op {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			if pc, err = skipBlockType(body, pc); err != nil {
				return 0, 0, err
			}
			if _, pc, err = resolveBlock(body, pc); err != nil {
				return 0, 0, err
			}
		case wasm.OpcodeElse:
			if elseAt != 0 {
				return 0, 0, fmt.Errorf("%w: second else at offset %#x", wasmruntime.ErrRuntimeMalformedBlock, pc-1)
			}
			elseAt = pc
		case wasm.OpcodeEnd:
			return elseAt, pc, nil
		default:
			if pc, err = skipImmediates(body, op, pc); err != nil {
				return 0, 0, err
			}
		}
	}
	return 0, 0, fmt.Errorf("%w: block has no matching end", wasmruntime.ErrRuntimeMalformedBlock)
}

func skipBlockType(body []byte, pc uint64) (uint64, error) {
	if pc >= uint64(len(body)) {
		return 0, fmt.Errorf("%w: block type at offset %#x: unexpected end of body", wasmruntime.ErrRuntimeMalformedBlock, pc)
	}
	switch body[pc] {
	case 0x40, wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		return pc + 1, nil
	}
	_, num, err := leb128.LoadInt33AsInt64(body[pc:])
	if err != nil {
		return 0, fmt.Errorf("%w: block type at offset %#x: %v", wasmruntime.ErrRuntimeMalformedBlock, pc, err)
	}
	return pc + num, nil
}

// skipImmediates returns the offset of the instruction following op, whose immediates start at pc.
func skipImmediates(body []byte, op wasm.Opcode, pc uint64) (uint64, error) {
	var u32s int
	var fixed uint64
	switch {
	case op == wasm.OpcodeBr, op == wasm.OpcodeBrIf, op == wasm.OpcodeCall,
		op >= wasm.OpcodeLocalGet && op <= wasm.OpcodeGlobalSet,
		op == 0x25, op == 0x26, // table.get, table.set
		op == wasm.OpcodeMemorySize, op == wasm.OpcodeMemoryGrow,
		op == 0xd2: // ref.func
		u32s = 1
	case op == wasm.OpcodeCallIndirect,
		op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32:
		u32s = 2
	case op == wasm.OpcodeBrTable, op == wasm.OpcodeTypedSelect:
		count, num, err := leb128.LoadUint32(body[pc:])
		if err != nil {
			return 0, immediateError(op, pc, err)
		}
		pc += num
		if op == wasm.OpcodeTypedSelect {
			fixed = uint64(count)
		} else {
			u32s = int(count) + 1
		}
	case op == wasm.OpcodeI32Const:
		_, num, err := leb128.LoadInt32(body[pc:])
		if err != nil {
			return 0, immediateError(op, pc, err)
		}
		pc += num
	case op == wasm.OpcodeI64Const:
		_, num, err := leb128.LoadInt64(body[pc:])
		if err != nil {
			return 0, immediateError(op, pc, err)
		}
		pc += num
	case op == wasm.OpcodeF32Const:
		fixed = 4
	case op == wasm.OpcodeF64Const:
		fixed = 8
	case op == 0xd0: // ref.null
		fixed = 1
	case op == wasm.OpcodeMiscPrefix:
		sub, num, err := leb128.LoadUint32(body[pc:])
		if err != nil {
			return 0, immediateError(op, pc, err)
		}
		pc += num
		switch {
		case sub <= uint32(wasm.OpcodeMiscI64TruncSatF64U):
		case sub == 0x08: // memory.init
			u32s, fixed = 1, 1
		case sub == 0x09, sub == 0x0d, sub >= 0x0f && sub <= 0x11: // data.drop, elem.drop, table.grow/size/fill
			u32s = 1
		case sub == 0x0a: // memory.copy
			fixed = 2
		case sub == 0x0b: // memory.fill
			fixed = 1
		case sub == 0x0c, sub == 0x0e: // table.init, table.copy
			u32s = 2
		default:
			return 0, fmt.Errorf("%w: %#x %d at offset %#x", wasmruntime.ErrRuntimeUnsupportedOpcode, op, sub, pc-num-1)
		}
	case op == wasm.OpcodeUnreachable, op == wasm.OpcodeNop, op == wasm.OpcodeReturn,
		op == wasm.OpcodeDrop, op == wasm.OpcodeSelect,
		op >= wasm.OpcodeI32Eqz && op <= wasm.OpcodeI64Extend32S,
		op == 0xd1: // ref.is_null
	default:
		return 0, fmt.Errorf("%w: %#x at offset %#x", wasmruntime.ErrRuntimeUnsupportedOpcode, op, pc-1)
	}

	for i := 0; i < u32s; i++ {
		_, num, err := leb128.LoadUint32(body[pc:])
		if err != nil {
			return 0, immediateError(op, pc, err)
		}
		pc += num
	}
	if pc+fixed > uint64(len(body)) {
		return 0, immediateError(op, pc, fmt.Errorf("unexpected end of body"))
	}
	return pc + fixed, nil
}

func immediateError(op wasm.Opcode, pc uint64, err error) error {
	return fmt.Errorf("%w: %s immediate at offset %#x: %v",
		wasmruntime.ErrRuntimeMalformedBlock, wasm.InstructionName(op), pc, err)
}

// resolve returns the else and end offsets of the block whose body starts at the pc of fr.
func (e *Engine) resolve(fr *frame) (elseAt, endAt uint64) {
	key := blockKey{funcIdx: fr.funcIdx, pc: fr.pc}
	if e.blocks != nil {
		if b, ok := e.blocks[key]; ok {
			return b.elseAt, b.endAt
		}
	}
	elseAt, endAt, err := resolveBlock(fr.f.Body, fr.pc)
	if err != nil {
		panic(fmt.Errorf("%s: %w", e.functionName(fr.funcIdx), err))
	}
	if e.blocks != nil {
		e.blocks[key] = resolvedBlock{elseAt: elseAt, endAt: endAt}
	}
	return
}

func unreachable(*Engine) {
	panic(wasmruntime.ErrRuntimeUnreachable)
}

func nop(*Engine) {}

func block(e *Engine) {
	fr := e.activeFrame
	params, results := e.fetchBlockType()
	_, endAt := e.resolve(fr)
	e.controls.push(controlFrame{
		opcode:        wasm.OpcodeBlock,
		endAt:         endAt,
		operandHeight: e.operands.height() - params,
		arity:         results,
	})
}

func loop(e *Engine) {
	fr := e.activeFrame
	params, _ := e.fetchBlockType()
	_, endAt := e.resolve(fr)
	e.controls.push(controlFrame{
		opcode:        wasm.OpcodeLoop,
		startAt:       fr.pc,
		endAt:         endAt,
		operandHeight: e.operands.height() - params,
		arity:         params,
	})
}

func ifOp(e *Engine) {
	fr := e.activeFrame
	params, results := e.fetchBlockType()
	elseAt, endAt := e.resolve(fr)
	c := uint32(e.operands.pop())
	label := controlFrame{
		opcode:        wasm.OpcodeIf,
		endAt:         endAt,
		operandHeight: e.operands.height() - params,
		arity:         results,
	}
	switch {
	case c != 0:
		e.controls.push(label)
	case elseAt != 0:
		// The else arm closes with the same end, so it needs the label too.
		fr.pc = elseAt
		e.controls.push(label)
	default:
		fr.pc = endAt
	}
}

// elseOp is reached when the then-arm completes: the else arm is skipped along with its end.
func elseOp(e *Engine) {
	fr := e.activeFrame
	if e.controls.depth() <= fr.controlBase {
		panic(e.malformed("else outside of if"))
	}
	label := e.controls.pop()
	fr.pc = label.endAt
}

func end(e *Engine) {
	fr := e.activeFrame
	if e.controls.depth() > fr.controlBase {
		e.controls.pop()
	}
	if fr.pc >= uint64(len(fr.f.Body)) {
		e.returnFromFunction()
	}
}

func br(e *Engine) {
	e.branch(e.fetchUint32())
}

func brIf(e *Engine) {
	l := e.fetchUint32()
	if uint32(e.operands.pop()) != 0 {
		e.branch(l)
	}
}

func brTable(e *Engine) {
	count := e.fetchUint32()
	fr := e.activeFrame
	if uint64(count) > uint64(len(fr.f.Body))-fr.pc {
		panic(e.malformed("br_table has %d labels", count))
	}
	var target uint32
	i := uint32(e.operands.pop())
	for j := uint32(0); j < count; j++ {
		if l := e.fetchUint32(); j == i {
			target = l
		}
	}
	if l := e.fetchUint32(); i >= count {
		target = l
	}
	e.branch(target)
}

// branch transfers control to the label l, counted outwards from the innermost open block of the active frame.
// The label arity values on top of the operand stack are kept, and the rest of the operands pushed since the
// block entry are discarded.
func (e *Engine) branch(l uint32) {
	fr := e.activeFrame
	open := e.controls.depth() - fr.controlBase
	if uint64(l) >= uint64(open) {
		panic(fmt.Errorf("%w: label %d, but %d blocks are open in %s",
			wasmruntime.ErrRuntimeInvalidIndex, l, open, e.functionName(fr.funcIdx)))
	}

	target := e.controls.peek(int(l))
	e.operands.keepTop(target.operandHeight, target.arity)
	if target.opcode == wasm.OpcodeLoop {
		// The loop label stays open as the loop body runs again.
		e.controls.truncate(e.controls.depth() - int(l))
		fr.pc = target.startAt
	} else {
		e.controls.truncate(e.controls.depth() - int(l) - 1)
		fr.pc = target.endAt
	}
}

func returnOp(e *Engine) {
	e.returnFromFunction()
}
