package naivevm

import (
	"fmt"

	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

const (
	initialOperandStackHeight = 1024
	initialControlStackHeight = 64
	initialFrameStackHeight   = 16
)

// operandStack holds untyped values shared by every frame of an invocation.
type operandStack struct {
	stack []uint64
}

func newOperandStack() *operandStack {
	return &operandStack{stack: make([]uint64, 0, initialOperandStackHeight)}
}

func (s *operandStack) height() int {
	return len(s.stack)
}

func (s *operandStack) push(val uint64) {
	s.stack = append(s.stack, val)
}

func (s *operandStack) pushBool(b bool) {
	if b {
		s.push(1)
	} else {
		s.push(0)
	}
}

func (s *operandStack) pop() uint64 {
	sp := len(s.stack) - 1
	if sp < 0 {
		panic(wasmruntime.ErrRuntimeStackUnderflow)
	}
	ret := s.stack[sp]
	s.stack = s.stack[:sp]
	return ret
}

func (s *operandStack) peek() uint64 {
	sp := len(s.stack) - 1
	if sp < 0 {
		panic(wasmruntime.ErrRuntimeStackUnderflow)
	}
	return s.stack[sp]
}

func (s *operandStack) drop() {
	_ = s.pop()
}

// keepTop discards the values between height and the top n values, sliding the top n down to start at height.
func (s *operandStack) keepTop(height, n int) {
	top := len(s.stack) - n
	if top < height {
		panic(fmt.Errorf("%w: %d values requested above height %d, but stack height is %d",
			wasmruntime.ErrRuntimeStackUnderflow, n, height, len(s.stack)))
	}
	if top != height {
		copy(s.stack[height:], s.stack[top:])
		s.stack = s.stack[:height+n]
	}
}

// truncate cuts the stack back to height, leaving it unchanged when it is already lower.
func (s *operandStack) truncate(height int) {
	if height < len(s.stack) {
		s.stack = s.stack[:height]
	}
}

// controlFrame is the record of a structured block opened by block, loop or if.
type controlFrame struct {
	opcode wasm.Opcode
	// startAt is the offset of the first instruction of a loop body. Zero for other blocks.
	startAt uint64
	// endAt is the offset immediately after the matching end.
	endAt uint64
	// operandHeight is the operand stack height at the block entry, below any block parameters.
	operandHeight int
	// arity is the count of values carried by a branch to this label: the results of a block or if, the
	// parameters of a loop.
	arity int
}

type controlStack struct {
	stack []controlFrame
}

func newControlStack() *controlStack {
	return &controlStack{stack: make([]controlFrame, 0, initialControlStackHeight)}
}

func (s *controlStack) depth() int {
	return len(s.stack)
}

func (s *controlStack) push(c controlFrame) {
	s.stack = append(s.stack, c)
}

func (s *controlStack) pop() controlFrame {
	sp := len(s.stack) - 1
	ret := s.stack[sp]
	s.stack = s.stack[:sp]
	return ret
}

// peek returns the control frame l levels below the top.
func (s *controlStack) peek(l int) controlFrame {
	return s.stack[len(s.stack)-1-l]
}

func (s *controlStack) truncate(depth int) {
	if depth < len(s.stack) {
		s.stack = s.stack[:depth]
	}
}

// frame is the activation record of a function call.
type frame struct {
	funcIdx wasm.Index
	f       *wasm.Function
	pc      uint64
	locals  []uint64
	// controlBase is the control stack depth when the frame was created. Control frames above it belong to this
	// call.
	controlBase int
	// operandBase is the operand stack height after the arguments were popped.
	operandBase int
	// arity is the result count of the function.
	arity int
}

type frameStack struct {
	stack []frame
	limit int
}

func newFrameStack(limit int) *frameStack {
	return &frameStack{stack: make([]frame, 0, initialFrameStackHeight), limit: limit}
}

func (s *frameStack) depth() int {
	return len(s.stack)
}

// push returns the pushed frame, which stays valid until the next push or pop.
func (s *frameStack) push(val frame) *frame {
	if len(s.stack) >= s.limit {
		panic(wasmruntime.ErrRuntimeCallStackOverflow)
	}
	s.stack = append(s.stack, val)
	return &s.stack[len(s.stack)-1]
}

func (s *frameStack) pop() frame {
	sp := len(s.stack) - 1
	ret := s.stack[sp]
	s.stack = s.stack[:sp]
	return ret
}

// peek returns the top frame or nil when the stack is empty.
func (s *frameStack) peek() *frame {
	if len(s.stack) == 0 {
		return nil
	}
	return &s.stack[len(s.stack)-1]
}
