package naivevm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

func TestOperandStack(t *testing.T) {
	s := newOperandStack()
	s.push(1)
	s.pushBool(true)
	s.pushBool(false)
	require.Equal(t, 3, s.height())
	require.Equal(t, uint64(0), s.peek())
	require.Equal(t, uint64(0), s.pop())
	require.Equal(t, uint64(1), s.pop())
	s.drop()
	require.Zero(t, s.height())

	require.PanicsWithValue(t, wasmruntime.ErrRuntimeStackUnderflow, func() { s.pop() })
	require.PanicsWithValue(t, wasmruntime.ErrRuntimeStackUnderflow, func() { s.peek() })
}

func TestOperandStack_KeepTop(t *testing.T) {
	tests := []struct {
		name          string
		stack         []uint64
		height, n     int
		expectedStack []uint64
	}{
		{name: "nothing to discard", stack: []uint64{1, 2, 3}, height: 1, n: 2, expectedStack: []uint64{1, 2, 3}},
		{name: "discard below results", stack: []uint64{1, 2, 3, 4, 5}, height: 1, n: 2, expectedStack: []uint64{1, 4, 5}},
		{name: "no results", stack: []uint64{1, 2, 3}, height: 1, n: 0, expectedStack: []uint64{1}},
		{name: "empty", stack: []uint64{}, height: 0, n: 0, expectedStack: []uint64{}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			s := &operandStack{stack: tc.stack}
			s.keepTop(tc.height, tc.n)
			require.Equal(t, tc.expectedStack, s.stack)
		})
	}

	t.Run("underflow", func(t *testing.T) {
		s := &operandStack{stack: []uint64{1, 2}}
		require.Panics(t, func() { s.keepTop(1, 2) })
	})
}

func TestOperandStack_Truncate(t *testing.T) {
	s := &operandStack{stack: []uint64{1, 2, 3}}
	s.truncate(5)
	require.Equal(t, 3, s.height())
	s.truncate(1)
	require.Equal(t, []uint64{1}, s.stack)
}

func TestControlStack(t *testing.T) {
	s := newControlStack()
	for i := 0; i < initialControlStackHeight+1; i++ {
		s.push(controlFrame{endAt: uint64(i)})
	}
	require.Equal(t, initialControlStackHeight+1, s.depth())
	require.Equal(t, uint64(initialControlStackHeight), s.peek(0).endAt)
	require.Equal(t, uint64(initialControlStackHeight-2), s.peek(2).endAt)

	require.Equal(t, uint64(initialControlStackHeight), s.pop().endAt)
	s.truncate(1)
	require.Equal(t, 1, s.depth())
	require.Equal(t, uint64(0), s.peek(0).endAt)
}

func TestFrameStack_Push(t *testing.T) {
	fs := newFrameStack(10)

	f1 := fs.push(frame{funcIdx: 1})
	require.Equal(t, f1, fs.peek())
	f1.pc = 5

	f2 := fs.push(frame{funcIdx: 2})
	require.Equal(t, 2, fs.depth())
	require.Equal(t, uint32(2), f2.funcIdx)

	popped := fs.pop()
	require.Equal(t, uint32(2), popped.funcIdx)
	require.Equal(t, uint64(5), fs.peek().pc)

	fs.pop()
	require.Nil(t, fs.peek())
}

func TestFrameStack_Push_Grows(t *testing.T) {
	fs := newFrameStack(initialFrameStackHeight + 2)

	for i := 0; i < initialFrameStackHeight; i++ {
		fs.push(frame{funcIdx: uint32(i)})
	}

	top := fs.push(frame{funcIdx: 100}) // we expect to grow
	require.Equal(t, uint32(100), top.funcIdx)
	require.Equal(t, uint32(initialFrameStackHeight-1), fs.stack[initialFrameStackHeight-1].funcIdx)
}

func TestFrameStack_Push_StackOverflow(t *testing.T) {
	limit := initialFrameStackHeight + 2
	fs := newFrameStack(limit)

	for i := 0; i < limit; i++ {
		fs.push(frame{})
	}

	// we're past our limit, so we should panic
	require.PanicsWithValue(t, wasmruntime.ErrRuntimeCallStackOverflow, func() { fs.push(frame{}) })
}
