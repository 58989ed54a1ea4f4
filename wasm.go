package naivevm

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	internalnaivevm "github.com/wasmkit/naivevm/internal/naivevm"
	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasm/binary"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

// Runtime allows embedding of WebAssembly 1.0 (20191205) modules.
//
// Ex.
//
//	r := naivevm.NewRuntime()
//	compiled, _ := r.CompileModule(source)
//	instance, _ := r.InstantiateModule(compiled)
//	results, _ := instance.InvokeExport("fac", 5)
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/
type Runtime interface {
	// CompileModule decodes the WebAssembly 1.0 (20191205) binary source or errs if invalid.
	CompileModule(source []byte) (*CompiledModule, error)

	// InstantiateModule allocates the memory and globals of the module and runs its start function, if any.
	//
	// Note: Each call returns an independent Instance even when the CompiledModule is the same.
	InstantiateModule(module *CompiledModule) (*Instance, error)

	// InstantiateModuleFromSource is a convenience that chains CompileModule with InstantiateModule.
	InstantiateModuleFromSource(source []byte) (*Instance, error)
}

// NewRuntime returns a runtime with the default configuration.
func NewRuntime() Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a runtime with the given configuration.
func NewRuntimeWithConfig(config *RuntimeConfig) Runtime {
	return &runtime{config: config.clone()}
}

// runtime allows decoupling of public interfaces from internal representation.
type runtime struct {
	config *RuntimeConfig
}

// CompiledModule is a decoded module which can be instantiated any number of times.
type CompiledModule struct {
	module *wasm.Module
}

// ExportedFunctions returns the names of functions exported by the module, in declaration order.
func (c *CompiledModule) ExportedFunctions() (names []string) {
	for _, exp := range c.module.Exports {
		if exp.Kind == wasm.ExportKindFunc {
			names = append(names, exp.Name)
		}
	}
	return
}

// FunctionCount returns the count of functions defined by the module.
func (c *CompiledModule) FunctionCount() uint32 {
	return uint32(len(c.module.Functions))
}

// FunctionType returns the param and result types of the function at funcIdx.
func (c *CompiledModule) FunctionType(funcIdx uint32) (params, results []ValueType, err error) {
	ft, err := c.module.FunctionTypeOf(funcIdx)
	if err != nil {
		return nil, nil, err
	}
	return ft.Params, ft.Results, nil
}

// ExportedFunctionIndex returns the index of the function exported as name.
func (c *CompiledModule) ExportedFunctionIndex(name string) (uint32, bool) {
	if exp := c.module.ExportByName(name); exp != nil && exp.Kind == wasm.ExportKindFunc {
		return exp.Index, true
	}
	return 0, false
}

// CompileModule implements Runtime.CompileModule
func (r *runtime) CompileModule(source []byte) (*CompiledModule, error) {
	if source == nil {
		return nil, errors.New("source == nil")
	}

	if len(source) < 8 { // Ex. less than magic+version
		return nil, errors.New("invalid source")
	}

	m, err := binary.DecodeModule(source)
	if err != nil {
		return nil, err
	}
	return &CompiledModule{module: m}, nil
}

// InstantiateModuleFromSource implements Runtime.InstantiateModuleFromSource
func (r *runtime) InstantiateModuleFromSource(source []byte) (*Instance, error) {
	if compiled, err := r.CompileModule(source); err != nil {
		return nil, err
	} else {
		return r.InstantiateModule(compiled)
	}
}

// InstantiateModule implements Runtime.InstantiateModule
func (r *runtime) InstantiateModule(module *CompiledModule) (*Instance, error) {
	e, err := internalnaivevm.NewEngine(module.module, r.config.engineOptions()...)
	if err != nil {
		return nil, err
	}
	i := &Instance{engine: e, module: module.module}

	if start := module.module.StartFunction; start != nil {
		if _, err = i.Invoke(*start); err != nil {
			return nil, fmt.Errorf("start function[%d] failed: %w", *start, err)
		}
	}
	return i, nil
}

// Instance is an instantiated module. Its methods are safe for concurrent use, though invocations are serialized.
type Instance struct {
	mux    sync.Mutex
	engine *internalnaivevm.Engine
	module *wasm.Module
}

// Invoke calls the function at funcIdx with the raw param values and returns its raw results.
//
// Values are encoded as in the WebAssembly stack: i32 and i64 as their two's complement bits, f32 and f64 as their
// IEEE 754 bits. See EncodeI32 and friends.
func (i *Instance) Invoke(funcIdx uint32, params ...uint64) ([]uint64, error) {
	ft, err := i.module.FunctionTypeOf(funcIdx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wasmruntime.ErrRuntimeInvalidIndex, err)
	}
	if len(params) != len(ft.Params) {
		return nil, fmt.Errorf("function[%d] %s: expected %d params, but passed %d", funcIdx, ft, len(ft.Params), len(params))
	}

	i.mux.Lock()
	defer i.mux.Unlock()

	for _, p := range params {
		i.engine.Push(p)
	}
	if err = i.engine.Invoke(funcIdx); err != nil {
		return nil, err
	}

	results := make([]uint64, len(ft.Results))
	for j := len(results) - 1; j >= 0; j-- {
		if results[j], err = i.engine.Pop(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// InvokeExport calls the function exported as name.
func (i *Instance) InvokeExport(name string, params ...uint64) ([]uint64, error) {
	exp := i.module.ExportByName(name)
	if exp == nil || exp.Kind != wasm.ExportKindFunc {
		return nil, fmt.Errorf("%q is not an exported function", name)
	}
	return i.Invoke(exp.Index, params...)
}

// ExportedGlobal returns the raw value of the global exported as name.
func (i *Instance) ExportedGlobal(name string) (uint64, error) {
	exp := i.module.ExportByName(name)
	if exp == nil || exp.Kind != wasm.ExportKindGlobal {
		return 0, fmt.Errorf("%q is not an exported global", name)
	}
	return i.Global(exp.Index)
}

// Global returns the raw value of the global at idx.
func (i *Instance) Global(idx uint32) (uint64, error) {
	i.mux.Lock()
	defer i.mux.Unlock()
	return i.engine.Global(idx)
}

// MemorySize returns the current size of memory in pages.
func (i *Instance) MemorySize() uint32 {
	i.mux.Lock()
	defer i.mux.Unlock()
	return i.engine.MemorySize()
}

// ReadMemoryI32 reads a little-endian i32 at addr.
func (i *Instance) ReadMemoryI32(addr uint32) (int32, error) {
	i.mux.Lock()
	defer i.mux.Unlock()
	return i.engine.ReadMemoryI32(addr)
}

// ReadMemoryI64 reads a little-endian i64 at addr.
func (i *Instance) ReadMemoryI64(addr uint32) (int64, error) {
	i.mux.Lock()
	defer i.mux.Unlock()
	return i.engine.ReadMemoryI64(addr)
}

// ReadMemoryF32 reads a little-endian f32 at addr.
func (i *Instance) ReadMemoryF32(addr uint32) (float32, error) {
	i.mux.Lock()
	defer i.mux.Unlock()
	return i.engine.ReadMemoryF32(addr)
}

// ReadMemoryF64 reads a little-endian f64 at addr.
func (i *Instance) ReadMemoryF64(addr uint32) (float64, error) {
	i.mux.Lock()
	defer i.mux.Unlock()
	return i.engine.ReadMemoryF64(addr)
}

// WriteMemory copies data into memory at addr.
func (i *Instance) WriteMemory(addr uint32, data []byte) error {
	i.mux.Lock()
	defer i.mux.Unlock()
	return i.engine.WriteMemory(addr, data)
}

// IsTrap returns true if err was raised by a trap of the guest, such as "unreachable" or an integer divide by zero,
// as opposed to a malformed module or an invalid host call.
func IsTrap(err error) bool {
	return wasmruntime.IsTrap(err)
}

// SetLogger replaces the default logger of instances that don't set one with RuntimeConfig.WithLogger.
func SetLogger(l *zap.Logger) {
	internalnaivevm.SetLogger(l)
}
