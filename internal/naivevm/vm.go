// Package naivevm is a WebAssembly interpreter which executes function bodies directly from their binary encoding,
// resolving structured control flow on the fly rather than compiling ahead of time.
package naivevm

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/wasmkit/naivevm/internal/buildoptions"
	"github.com/wasmkit/naivevm/internal/leb128"
	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

// maxFrames is the maximum number of frames in a backtrace. Deeper frames are omitted.
const maxFrames = 30

// Engine holds the runtime state of one module instance: its linear memory, globals and the stacks of the current
// invocation. An Engine is not safe for concurrent use, and Invoke is not reentrant.
type Engine struct {
	module *wasm.Module

	memory []byte
	// maxPages is the smallest of the declared memory maximum, wasm.MemoryMaxPages and WithMemoryLimitPages.
	maxPages uint32
	globals  []uint64

	operands    *operandStack
	controls    *controlStack
	frames      *frameStack
	activeFrame *frame

	// blocks memoizes resolveBlock when WithBlockCache is enabled.
	blocks map[blockKey]resolvedBlock
	// funcNames are export names used in backtraces.
	funcNames map[wasm.Index]string

	logger           *zap.Logger
	trace            bool
	callStackLimit   int
	memoryLimitPages uint32
}

// Option configures an Engine in NewEngine.
type Option func(*Engine)

// WithLogger sets the logger of the engine. Defaults to Logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTrace logs every dispatched instruction at debug level.
func WithTrace(enabled bool) Option {
	return func(e *Engine) {
		e.trace = enabled
	}
}

// WithCallStackLimit sets the maximum count of nested calls before an invocation traps with
// wasmruntime.ErrRuntimeCallStackOverflow. Defaults to buildoptions.CallStackHeightLimit.
func WithCallStackLimit(limit int) Option {
	return func(e *Engine) {
		e.callStackLimit = limit
	}
}

// WithMemoryLimitPages caps memory growth below the declared maximum of the module.
func WithMemoryLimitPages(pages uint32) Option {
	return func(e *Engine) {
		e.memoryLimitPages = pages
	}
}

// WithBlockCache memoizes the end and else offsets of blocks, so that a block is scanned once per engine rather
// than on every entry.
func WithBlockCache(enabled bool) Option {
	return func(e *Engine) {
		if enabled {
			e.blocks = map[blockKey]resolvedBlock{}
		} else {
			e.blocks = nil
		}
	}
}

// NewEngine allocates the memory and globals of m, copies its data segments into memory and returns an engine ready
// to Invoke functions of m. The start function is not run.
func NewEngine(m *wasm.Module, opts ...Option) (*Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid module: %w", err)
	}

	e := &Engine{
		module:           m,
		logger:           Logger(),
		callStackLimit:   buildoptions.CallStackHeightLimit,
		memoryLimitPages: wasm.MemoryMaxPages,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.callStackLimit <= 0 {
		return nil, fmt.Errorf("call stack limit must be positive, but was %d", e.callStackLimit)
	}

	e.maxPages = wasm.MemoryMaxPages
	if m.MemoryMaxPages != nil {
		e.maxPages = *m.MemoryMaxPages
	}
	if e.memoryLimitPages < e.maxPages {
		e.maxPages = e.memoryLimitPages
	}
	if m.MemoryMinPages > e.maxPages {
		return nil, fmt.Errorf("memory min %d pages exceeds limit of %d pages", m.MemoryMinPages, e.maxPages)
	}

	e.memory = make([]byte, uint64(m.MemoryMinPages)*uint64(wasm.PageSize))
	for _, d := range m.DataSegments {
		copy(e.memory[d.Offset:], d.Init)
	}

	e.globals = make([]uint64, len(m.Globals))
	for i, g := range m.Globals {
		e.globals[i] = g.Init
	}

	e.funcNames = map[wasm.Index]string{}
	for _, exp := range m.Exports {
		if exp.Kind == wasm.ExportKindFunc {
			e.funcNames[exp.Index] = exp.Name
		}
	}

	e.operands = newOperandStack()
	e.controls = newControlStack()
	e.frames = newFrameStack(e.callStackLimit)

	e.logger.Debug("engine created",
		zap.Int("functions", len(m.Functions)),
		zap.Uint32("memory_pages", m.MemoryMinPages),
		zap.Uint32("memory_max_pages", e.maxPages),
		zap.Int("globals", len(m.Globals)))
	return e, nil
}

// Module returns the module this engine executes.
func (e *Engine) Module() *wasm.Module {
	return e.module
}

// Push pushes a value onto the operand stack, such as an argument before Invoke.
func (e *Engine) Push(v uint64) {
	e.operands.push(v)
}

// Pop pops the top value of the operand stack, such as a result after Invoke.
func (e *Engine) Pop() (uint64, error) {
	if e.operands.height() == 0 {
		return 0, wasmruntime.ErrRuntimeStackUnderflow
	}
	return e.operands.pop(), nil
}

// StackHeight returns the count of values on the operand stack.
func (e *Engine) StackHeight() int {
	return e.operands.height()
}

// Global returns the raw value of the global at idx.
func (e *Engine) Global(idx wasm.Index) (uint64, error) {
	if idx >= uint32(len(e.globals)) {
		return 0, fmt.Errorf("%w: global index %d, but module has %d globals",
			wasmruntime.ErrRuntimeInvalidIndex, idx, len(e.globals))
	}
	return e.globals[idx], nil
}

// Invoke runs the function at funcIdx to completion. Its arguments are popped from the operand stack, the first
// parameter being the deepest, and its results are left on top of the operand stack.
//
// A trap or a malformed instruction aborts the invocation: every frame it pushed is unwound, the operand stack is
// cut back to its height before the arguments, and the error wraps the cause with a backtrace. Mutations of memory
// and globals made before the failure are kept, and the engine can be invoked again.
func (e *Engine) Invoke(funcIdx wasm.Index) (err error) {
	if funcIdx >= uint32(len(e.module.Functions)) {
		return fmt.Errorf("%w: function index %d, but module has %d functions",
			wasmruntime.ErrRuntimeInvalidIndex, funcIdx, len(e.module.Functions))
	}
	ft, err := e.module.FunctionTypeOf(funcIdx)
	if err != nil {
		return fmt.Errorf("%w: %v", wasmruntime.ErrRuntimeInvalidIndex, err)
	}
	if e.operands.height() < len(ft.Params) {
		return fmt.Errorf("%w: %s takes %d params, but stack height is %d",
			wasmruntime.ErrRuntimeStackUnderflow, e.functionName(funcIdx), len(ft.Params), e.operands.height())
	}
	base := e.operands.height() - len(ft.Params)

	e.logger.Debug("invoke", zap.String("func", e.functionName(funcIdx)), zap.Stringer("type", ft))
	defer func() {
		if v := recover(); v != nil {
			if buildoptions.IsDebugMode {
				debug.PrintStack()
			}
			traces := make([]string, 0, maxFrames+1)
			for i := e.frames.depth() - 1; i >= 0; i-- {
				if len(traces) == maxFrames {
					traces = append(traces, "\t... maybe followed by omitted frames")
					break
				}
				fr := &e.frames.stack[i]
				traces = append(traces, fmt.Sprintf("\t%d: %s", len(traces), e.functionName(fr.funcIdx)))
			}

			e.frames.stack = e.frames.stack[:0]
			e.activeFrame = nil
			e.controls.truncate(0)
			e.operands.truncate(base)

			if err2, ok := v.(error); ok {
				err = fmt.Errorf("wasm runtime error: %w", err2)
			} else {
				err = fmt.Errorf("wasm runtime error: %v", v)
			}

			if len(traces) > 0 {
				err = fmt.Errorf("%w\nwasm backtrace:\n%s", err, strings.Join(traces, "\n"))
			}
			e.logger.Debug("invocation failed", zap.String("func", e.functionName(funcIdx)),
				zap.Bool("trap", wasmruntime.IsTrap(err)), zap.Error(err))
		}
	}()

	e.callFunction(funcIdx)
	e.execute()
	return
}

// execute runs the fetch-decode-execute loop until the call stack is empty. Faults panic and are recovered by
// Invoke.
func (e *Engine) execute() {
	for e.activeFrame != nil {
		fr := e.activeFrame
		if fr.pc >= uint64(len(fr.f.Body)) {
			e.returnFromFunction()
			continue
		}

		op := fr.f.Body[fr.pc]
		if e.trace {
			e.traceInstruction(fr, op)
		}
		fr.pc++

		inst := instructions[op]
		if inst == nil {
			panic(fmt.Errorf("%w: %#x at offset %#x of %s",
				wasmruntime.ErrRuntimeUnsupportedOpcode, op, fr.pc-1, e.functionName(fr.funcIdx)))
		}
		inst(e)
	}
}

func (e *Engine) traceInstruction(fr *frame, op wasm.Opcode) {
	name := wasm.InstructionName(op)
	if op == wasm.OpcodeMiscPrefix && fr.pc+1 < uint64(len(fr.f.Body)) {
		name = wasm.MiscInstructionName(fr.f.Body[fr.pc+1])
	}
	e.logger.Debug("exec",
		zap.String("func", e.functionName(fr.funcIdx)),
		zap.Uint64("pc", fr.pc),
		zap.String("op", name),
		zap.Int("operands", e.operands.height()),
		zap.Int("labels", e.controls.depth()-fr.controlBase),
		zap.Int("frames", e.frames.depth()))
}

func (e *Engine) functionName(funcIdx wasm.Index) string {
	if name, ok := e.funcNames[funcIdx]; ok {
		return fmt.Sprintf("%s (function[%d])", name, funcIdx)
	}
	return fmt.Sprintf("function[%d]", funcIdx)
}

func (e *Engine) malformed(format string, args ...interface{}) error {
	fr := e.activeFrame
	return fmt.Errorf("%w: %s at offset %#x of %s",
		wasmruntime.ErrRuntimeMalformedBlock, fmt.Sprintf(format, args...), fr.pc, e.functionName(fr.funcIdx))
}

func (e *Engine) fetchByte() byte {
	fr := e.activeFrame
	if fr.pc >= uint64(len(fr.f.Body)) {
		panic(e.malformed("unexpected end of body"))
	}
	b := fr.f.Body[fr.pc]
	fr.pc++
	return b
}

func (e *Engine) fetchUint32() uint32 {
	fr := e.activeFrame
	ret, num, err := leb128.LoadUint32(fr.f.Body[fr.pc:])
	if err != nil {
		panic(e.malformed("read u32 immediate: %v", err))
	}
	fr.pc += num
	return ret
}

func (e *Engine) fetchInt32() int32 {
	fr := e.activeFrame
	ret, num, err := leb128.LoadInt32(fr.f.Body[fr.pc:])
	if err != nil {
		panic(e.malformed("read i32 immediate: %v", err))
	}
	fr.pc += num
	return ret
}

func (e *Engine) fetchInt64() int64 {
	fr := e.activeFrame
	ret, num, err := leb128.LoadInt64(fr.f.Body[fr.pc:])
	if err != nil {
		panic(e.malformed("read i64 immediate: %v", err))
	}
	fr.pc += num
	return ret
}

func (e *Engine) fetchFloat32() float32 {
	fr := e.activeFrame
	if fr.pc+4 > uint64(len(fr.f.Body)) {
		panic(e.malformed("read f32 immediate: unexpected end of body"))
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(fr.f.Body[fr.pc:]))
	fr.pc += 4
	return v
}

func (e *Engine) fetchFloat64() float64 {
	fr := e.activeFrame
	if fr.pc+8 > uint64(len(fr.f.Body)) {
		panic(e.malformed("read f64 immediate: unexpected end of body"))
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(fr.f.Body[fr.pc:]))
	fr.pc += 8
	return v
}

// fetchBlockType reads the block type immediate of block, loop or if, returning the count of values the block
// takes and returns.
func (e *Engine) fetchBlockType() (params, results int) {
	fr := e.activeFrame
	if fr.pc >= uint64(len(fr.f.Body)) {
		panic(e.malformed("read block type: unexpected end of body"))
	}
	switch fr.f.Body[fr.pc] {
	case 0x40:
		fr.pc++
		return 0, 0
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		fr.pc++
		return 0, 1
	}

	typeIdx, num, err := leb128.LoadInt33AsInt64(fr.f.Body[fr.pc:])
	if err != nil {
		panic(e.malformed("read block type: %v", err))
	}
	if typeIdx < 0 || typeIdx >= int64(len(e.module.Types)) {
		panic(fmt.Errorf("%w: block type index %d, but module has %d types",
			wasmruntime.ErrRuntimeInvalidIndex, typeIdx, len(e.module.Types)))
	}
	fr.pc += num
	t := e.module.Types[typeIdx]
	return len(t.Params), len(t.Results)
}

// instruction executes one opcode. The program counter of the active frame is already past the opcode byte.
type instruction func(e *Engine)

var instructions = newInstructionTable()

// newInstructionTable builds the dispatch table once. Opcodes left nil are unsupported.
func newInstructionTable() (table [256]instruction) {
	table[wasm.OpcodeUnreachable] = unreachable
	table[wasm.OpcodeNop] = nop
	table[wasm.OpcodeBlock] = block
	table[wasm.OpcodeLoop] = loop
	table[wasm.OpcodeIf] = ifOp
	table[wasm.OpcodeElse] = elseOp
	table[wasm.OpcodeEnd] = end
	table[wasm.OpcodeBr] = br
	table[wasm.OpcodeBrIf] = brIf
	table[wasm.OpcodeBrTable] = brTable
	table[wasm.OpcodeReturn] = returnOp
	table[wasm.OpcodeCall] = call

	table[wasm.OpcodeDrop] = drop
	table[wasm.OpcodeSelect] = selectOp
	table[wasm.OpcodeTypedSelect] = typedSelect

	table[wasm.OpcodeLocalGet] = localGet
	table[wasm.OpcodeLocalSet] = localSet
	table[wasm.OpcodeLocalTee] = localTee
	table[wasm.OpcodeGlobalGet] = globalGet
	table[wasm.OpcodeGlobalSet] = globalSet

	for op, inst := range memoryInstructions {
		table[op] = inst
	}
	table[wasm.OpcodeMemorySize] = memorySize
	table[wasm.OpcodeMemoryGrow] = memoryGrow

	table[wasm.OpcodeI32Const] = i32Const
	table[wasm.OpcodeI64Const] = i64Const
	table[wasm.OpcodeF32Const] = f32Const
	table[wasm.OpcodeF64Const] = f64Const

	for op, inst := range numericInstructions {
		table[op] = inst
	}
	table[wasm.OpcodeMiscPrefix] = miscPrefix
	return
}
