package naivevm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

var le = binary.LittleEndian

var memoryInstructions = map[wasm.Opcode]instruction{
	wasm.OpcodeI32Load: load(4, func(b []byte) uint64 { return uint64(le.Uint32(b)) }),
	wasm.OpcodeI64Load: load(8, le.Uint64),
	wasm.OpcodeF32Load: load(4, func(b []byte) uint64 { return uint64(le.Uint32(b)) }),
	wasm.OpcodeF64Load: load(8, le.Uint64),

	wasm.OpcodeI32Load8S:  load(1, func(b []byte) uint64 { return wasm.EncodeI32(int32(int8(b[0]))) }),
	wasm.OpcodeI32Load8U:  load(1, func(b []byte) uint64 { return uint64(b[0]) }),
	wasm.OpcodeI32Load16S: load(2, func(b []byte) uint64 { return wasm.EncodeI32(int32(int16(le.Uint16(b)))) }),
	wasm.OpcodeI32Load16U: load(2, func(b []byte) uint64 { return uint64(le.Uint16(b)) }),
	wasm.OpcodeI64Load8S:  load(1, func(b []byte) uint64 { return wasm.EncodeI64(int64(int8(b[0]))) }),
	wasm.OpcodeI64Load8U:  load(1, func(b []byte) uint64 { return uint64(b[0]) }),
	wasm.OpcodeI64Load16S: load(2, func(b []byte) uint64 { return wasm.EncodeI64(int64(int16(le.Uint16(b)))) }),
	wasm.OpcodeI64Load16U: load(2, func(b []byte) uint64 { return uint64(le.Uint16(b)) }),
	wasm.OpcodeI64Load32S: load(4, func(b []byte) uint64 { return wasm.EncodeI64(int64(int32(le.Uint32(b)))) }),
	wasm.OpcodeI64Load32U: load(4, func(b []byte) uint64 { return uint64(le.Uint32(b)) }),

	wasm.OpcodeI32Store:   store(4, func(b []byte, v uint64) { le.PutUint32(b, uint32(v)) }),
	wasm.OpcodeI64Store:   store(8, le.PutUint64),
	wasm.OpcodeF32Store:   store(4, func(b []byte, v uint64) { le.PutUint32(b, uint32(v)) }),
	wasm.OpcodeF64Store:   store(8, le.PutUint64),
	wasm.OpcodeI32Store8:  store(1, func(b []byte, v uint64) { b[0] = byte(v) }),
	wasm.OpcodeI32Store16: store(2, func(b []byte, v uint64) { le.PutUint16(b, uint16(v)) }),
	wasm.OpcodeI64Store8:  store(1, func(b []byte, v uint64) { b[0] = byte(v) }),
	wasm.OpcodeI64Store16: store(2, func(b []byte, v uint64) { le.PutUint16(b, uint16(v)) }),
	wasm.OpcodeI64Store32: store(4, func(b []byte, v uint64) { le.PutUint32(b, uint32(v)) }),
}

// fetchMemArg reads the alignment hint and the offset immediates of a load or store, returning the offset.
func (e *Engine) fetchMemArg() uint32 {
	_ = e.fetchUint32() // alignment is a hint
	return e.fetchUint32()
}

// popAddress pops the base address and returns the effective address of an access of width bytes.
func (e *Engine) popAddress(offset uint32, width uint64) uint64 {
	ea := uint64(uint32(e.operands.pop())) + uint64(offset)
	if ea+width > uint64(len(e.memory)) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	return ea
}

func load(width uint64, decode func([]byte) uint64) instruction {
	return func(e *Engine) {
		offset := e.fetchMemArg()
		ea := e.popAddress(offset, width)
		e.operands.push(decode(e.memory[ea : ea+width]))
	}
}

func store(width uint64, encode func([]byte, uint64)) instruction {
	return func(e *Engine) {
		offset := e.fetchMemArg()
		v := e.operands.pop()
		ea := e.popAddress(offset, width)
		encode(e.memory[ea:ea+width], v)
	}
}

func (e *Engine) fetchMemoryIndex() {
	if idx := e.fetchUint32(); idx != 0 {
		panic(fmt.Errorf("%w: memory index %d", wasmruntime.ErrRuntimeInvalidIndex, idx))
	}
}

func memorySize(e *Engine) {
	e.fetchMemoryIndex()
	e.operands.push(uint64(e.MemorySize()))
}

// memoryGrow pushes the previous size in pages, or -1 when the new size would pass the maximum.
func memoryGrow(e *Engine) {
	e.fetchMemoryIndex()
	delta := uint32(e.operands.pop())
	prev := e.MemorySize()
	if uint64(prev)+uint64(delta) > uint64(e.maxPages) {
		e.operands.push(wasm.EncodeI32(-1))
		return
	}
	if delta > 0 {
		e.memory = append(e.memory, make([]byte, uint64(delta)*uint64(wasm.PageSize))...)
	}
	e.operands.push(uint64(prev))
}

// MemorySize returns the size of the linear memory in pages.
func (e *Engine) MemorySize() uint32 {
	return uint32(uint64(len(e.memory)) / uint64(wasm.PageSize))
}

func (e *Engine) read(addr uint32, width uint32) ([]byte, error) {
	end := uint64(addr) + uint64(width)
	if end > uint64(len(e.memory)) {
		return nil, fmt.Errorf("%w: %d bytes at %#x, but memory size is %d bytes",
			wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess, width, addr, len(e.memory))
	}
	return e.memory[addr:end], nil
}

// ReadMemoryI32 reads a little-endian i32 from linear memory.
func (e *Engine) ReadMemoryI32(addr uint32) (int32, error) {
	b, err := e.read(addr, 4)
	if err != nil {
		return 0, err
	}
	return int32(le.Uint32(b)), nil
}

// ReadMemoryI64 reads a little-endian i64 from linear memory.
func (e *Engine) ReadMemoryI64(addr uint32) (int64, error) {
	b, err := e.read(addr, 8)
	if err != nil {
		return 0, err
	}
	return int64(le.Uint64(b)), nil
}

// ReadMemoryF32 reads a little-endian f32 from linear memory.
func (e *Engine) ReadMemoryF32(addr uint32) (float32, error) {
	b, err := e.read(addr, 4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(le.Uint32(b)), nil
}

// ReadMemoryF64 reads a little-endian f64 from linear memory.
func (e *Engine) ReadMemoryF64(addr uint32) (float64, error) {
	b, err := e.read(addr, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(le.Uint64(b)), nil
}

// WriteMemory copies data into linear memory at addr.
func (e *Engine) WriteMemory(addr uint32, data []byte) error {
	b, err := e.read(addr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}
