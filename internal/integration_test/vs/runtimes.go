// Package vs compares naivevm against other WebAssembly runtimes, for correctness and for speed.
package vs

import (
	"context"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wasmkit/naivevm"
)

type runtimeTester interface {
	Name() string
	Init(ctx context.Context, wasm []byte, funcNames ...string) error
	Call(ctx context.Context, funcName string, params ...uint64) (uint64, error)
	io.Closer
}

// testers are the runtimes under comparison. The first is the reference the others are checked against.
var testers = []func() runtimeTester{newWazeroTester, newNaivevmTester}

func newNaivevmTester() runtimeTester {
	return newNaivevmTesterWithConfig("naivevm", naivevm.NewRuntimeConfig())
}

func newNaivevmTesterWithConfig(name string, config *naivevm.RuntimeConfig) runtimeTester {
	return &naivevmTester{name: name, config: config}
}

type naivevmTester struct {
	name     string
	config   *naivevm.RuntimeConfig
	instance *naivevm.Instance
}

func (n *naivevmTester) Name() string {
	return n.name
}

func (n *naivevmTester) Init(_ context.Context, wasm []byte, funcNames ...string) (err error) {
	r := naivevm.NewRuntimeWithConfig(n.config)
	compiled, err := r.CompileModule(wasm)
	if err != nil {
		return
	}
	exported := map[string]struct{}{}
	for _, name := range compiled.ExportedFunctions() {
		exported[name] = struct{}{}
	}
	for _, funcName := range funcNames {
		if _, ok := exported[funcName]; !ok {
			return fmt.Errorf("%s is not an exported function", funcName)
		}
	}
	n.instance, err = r.InstantiateModule(compiled)
	return
}

func (n *naivevmTester) Call(_ context.Context, funcName string, params ...uint64) (uint64, error) {
	if results, err := n.instance.InvokeExport(funcName, params...); err != nil {
		return 0, err
	} else if len(results) > 0 {
		return results[0], nil
	}
	return 0, nil
}

func (n *naivevmTester) Close() error {
	n.instance = nil
	return nil
}

func newWazeroTester() runtimeTester {
	return &wazeroTester{config: wazero.NewRuntimeConfigInterpreter(), funcs: map[string]api.Function{}}
}

type wazeroTester struct {
	config  wazero.RuntimeConfig
	runtime wazero.Runtime
	funcs   map[string]api.Function
}

func (w *wazeroTester) Name() string {
	return "wazero-interpreter"
}

func (w *wazeroTester) Init(ctx context.Context, wasm []byte, funcNames ...string) (err error) {
	w.runtime = wazero.NewRuntimeWithConfig(ctx, w.config)

	mod, err := w.runtime.Instantiate(ctx, wasm)
	if err != nil {
		return
	}
	for _, funcName := range funcNames {
		if fn := mod.ExportedFunction(funcName); fn == nil {
			return fmt.Errorf("%s is not an exported function", funcName)
		} else {
			w.funcs[funcName] = fn
		}
	}
	return
}

func (w *wazeroTester) Call(ctx context.Context, funcName string, params ...uint64) (uint64, error) {
	if results, err := w.funcs[funcName].Call(ctx, params...); err != nil {
		return 0, err
	} else if len(results) > 0 {
		return results[0], nil
	}
	return 0, nil
}

func (w *wazeroTester) Close() (err error) {
	if w.runtime != nil {
		err = w.runtime.Close(context.Background())
	}
	w.runtime = nil
	return
}
