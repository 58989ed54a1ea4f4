package vs

import (
	"testing"
)

var facArgument = uint64(30)

// BenchmarkFac_Init tracks the time spent readying a function for use
func BenchmarkFac_Init(b *testing.B) {
	for _, newTester := range testers {
		b.Run(newTester().Name(), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rt := newTester()
				if err := rt.Init(testCtx, facWasm, "fac"); err != nil {
					b.Fatal(err)
				} else {
					rt.Close()
				}
			}
		})
	}
}

// BenchmarkFac_Invoke tracks the time spent invoking a recursive function.
func BenchmarkFac_Invoke(b *testing.B) {
	for _, newTester := range testers {
		rt := newTester()
		if err := rt.Init(testCtx, facWasm, "fac"); err != nil {
			b.Fatal(err)
		}
		b.Run(rt.Name(), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := rt.Call(testCtx, "fac", facArgument); err != nil {
					b.Fatal(err)
				}
			}
		})
		rt.Close()
	}
}

// BenchmarkFib_Invoke tracks the time spent in a loop, with and without the block cache of naivevm.
func BenchmarkFib_Invoke(b *testing.B) {
	for _, newTester := range append(append([]func() runtimeTester{}, testers...), blockCacheTester) {
		rt := newTester()
		if err := rt.Init(testCtx, fibWasm, "fib"); err != nil {
			b.Fatal(err)
		}
		b.Run(rt.Name(), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := rt.Call(testCtx, "fib", 40); err != nil {
					b.Fatal(err)
				}
			}
		})
		rt.Close()
	}
}
