//go:build amd64 && cgo && !windows

// Wasmtime can only be used in amd64 with CGO
// Wasmer doesn't link on Windows
package vs

import (
	"context"
	"fmt"
	"math"

	"github.com/bytecodealliance/wasmtime-go"
	"github.com/wasmerio/wasmer-go/wasmer"
)

func init() {
	testers = append(testers, newWasmerTester, newWasmtimeTester)
}

func newWasmerTester() runtimeTester {
	return &wasmerTester{funcs: map[string]*wasmer.Function{}}
}

type wasmerTester struct {
	store    *wasmer.Store
	module   *wasmer.Module
	instance *wasmer.Instance
	funcs    map[string]*wasmer.Function
}

func (w *wasmerTester) Name() string {
	return "wasmer-go"
}

func (w *wasmerTester) Init(_ context.Context, wasm []byte, funcNames ...string) (err error) {
	w.store = wasmer.NewStore(wasmer.NewEngine())
	importObject := wasmer.NewImportObject()
	if w.module, err = wasmer.NewModule(w.store, wasm); err != nil {
		return
	}
	if w.instance, err = wasmer.NewInstance(w.module, importObject); err != nil {
		return
	}
	for _, funcName := range funcNames {
		var fn *wasmer.Function
		if fn, err = w.instance.Exports.GetRawFunction(funcName); err != nil {
			return
		} else if fn == nil {
			return fmt.Errorf("%s is not an exported function", funcName)
		} else {
			w.funcs[funcName] = fn
		}
	}
	return
}

func (w *wasmerTester) Call(_ context.Context, funcName string, params ...uint64) (uint64, error) {
	fn := w.funcs[funcName]
	iParams := make([]interface{}, len(params))
	for i := range params {
		switch fn.Type().Params()[i].Kind() {
		case wasmer.I32:
			iParams[i] = int32(params[i])
		case wasmer.I64:
			iParams[i] = int64(params[i])
		case wasmer.F32:
			iParams[i] = math.Float32frombits(uint32(params[i]))
		case wasmer.F64:
			iParams[i] = math.Float64frombits(params[i])
		}
	}
	if result, err := fn.Call(iParams...); err != nil {
		return 0, err
	} else if fn.ResultArity() == 1 {
		return encodeResult(result), nil
	}
	return 0, nil
}

func (w *wasmerTester) Close() error {
	for _, closer := range []func(){w.instance.Close, w.module.Close, w.store.Close} {
		if closer == nil {
			continue
		}
		closer()
	}
	w.instance = nil
	w.module = nil
	w.store = nil
	return nil
}

func newWasmtimeTester() runtimeTester {
	return &wasmtimeTester{funcs: map[string]*wasmtime.Func{}}
}

type wasmtimeTester struct {
	store *wasmtime.Store
	funcs map[string]*wasmtime.Func
}

func (w *wasmtimeTester) Name() string {
	return "wasmtime-go"
}

func (w *wasmtimeTester) Init(_ context.Context, wasm []byte, funcNames ...string) (err error) {
	w.store = wasmtime.NewStore(wasmtime.NewEngine())
	module, err := wasmtime.NewModule(w.store.Engine, wasm)
	if err != nil {
		return
	}
	instance, err := wasmtime.NewInstance(w.store, module, nil)
	if err != nil {
		return
	}
	for _, funcName := range funcNames {
		if fn := instance.GetFunc(w.store, funcName); fn == nil {
			return fmt.Errorf("%s is not an exported function", funcName)
		} else {
			w.funcs[funcName] = fn
		}
	}
	return
}

func (w *wasmtimeTester) Call(_ context.Context, funcName string, params ...uint64) (uint64, error) {
	fn := w.funcs[funcName]
	iParams := make([]interface{}, len(params))
	for i := range params {
		switch fn.Type(w.store).Params()[i].Kind() {
		case wasmtime.KindI32:
			iParams[i] = int32(params[i])
		case wasmtime.KindI64:
			iParams[i] = int64(params[i])
		case wasmtime.KindF32:
			iParams[i] = math.Float32frombits(uint32(params[i]))
		case wasmtime.KindF64:
			iParams[i] = math.Float64frombits(params[i])
		}
	}
	if result, err := fn.Call(w.store, iParams...); err != nil {
		return 0, err
	} else if result != nil {
		return encodeResult(result), nil
	}
	return 0, nil
}

func (w *wasmtimeTester) Close() error {
	w.store = nil
	return nil
}

// encodeResult encodes a result of wasmer-go or wasmtime-go the same way naivevm and wazero return them.
func encodeResult(result interface{}) uint64 {
	switch v := result.(type) {
	case int32:
		return uint64(uint32(v))
	case int64:
		return uint64(v)
	case float32:
		return uint64(math.Float32bits(v))
	case float64:
		return math.Float64bits(v)
	}
	return 0
}
