package wasm

import (
	"fmt"
)

const (
	// PageSize is the unit of memory length in WebAssembly, and is defined as 2^16 = 65536.
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
	PageSize = uint32(65536)
	// MemoryMaxPages is the maximum number of pages addressable with a 32-bit index.
	MemoryMaxPages = uint32(65536)
)

// Index is the offset in an index namespace, not necessarily an absolute position in a Module section.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#indices%E2%91%A0
type Index = uint32

// ValueType is the binary encoding of a numeric type such as i32.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// ValueTypeName returns the type name of the given ValueType as a string.
// These type names match the names used in the WebAssembly text format.
//
// Note: This returns "unknown", if an undefined ValueType value is passed.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return "unknown"
}

// FunctionType is a possibly empty function signature.
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a function with this signature.
	Params []ValueType
	// Results are the possibly empty sequence of value types returned by a function with this signature.
	Results []ValueType
}

// String returns a compact signature such as "i32i32_i64", with "null" standing in for an empty side.
func (t *FunctionType) String() (ret string) {
	for _, b := range t.Params {
		ret += ValueTypeName(b)
	}
	if len(t.Params) == 0 {
		ret += "null"
	}
	ret += "_"
	for _, b := range t.Results {
		ret += ValueTypeName(b)
	}
	if len(t.Results) == 0 {
		ret += "null"
	}
	return
}

// Function is a function defined in the module.
type Function struct {
	// TypeIndex is the position of this function's signature in Module.Types.
	TypeIndex Index
	// Locals are the declared locals, expanded one entry per local and excluding parameters.
	Locals []ValueType
	// Body is the raw instruction stream including the terminating OpcodeEnd.
	Body []byte
}

// Global is a module-defined global with its initial value already evaluated.
type Global struct {
	Type    ValueType
	Mutable bool
	// Init holds the raw bits of the initial value. See EncodeI32 and friends.
	Init uint64
}

// ExportKind indicates which index namespace an Export refers to.
type ExportKind = byte

const (
	ExportKindFunc   ExportKind = 0x00
	ExportKindTable  ExportKind = 0x01
	ExportKindMemory ExportKind = 0x02
	ExportKindGlobal ExportKind = 0x03
)

// ExportKindName returns the canonical name of the exportdesc.
// https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-exportdesc
func ExportKindName(ek ExportKind) string {
	switch ek {
	case ExportKindFunc:
		return "func"
	case ExportKindTable:
		return "table"
	case ExportKindMemory:
		return "memory"
	case ExportKindGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", ek)
}

// Export names a definition so that a host can refer to it.
type Export struct {
	// Name is what the host refers to this definition as.
	Name string
	Kind ExportKind
	// Index is the index of the definition to export in the namespace of Kind.
	Index Index
}

// DataSegment is an active data segment: Init is copied into memory at Offset when an engine is created.
type DataSegment struct {
	Offset uint32
	Init   []byte
}

// Module is the decoded form of a WebAssembly binary restricted to what the interpreter executes.
// A Module is read-only once decoded, so any number of engines may share it.
type Module struct {
	Types     []*FunctionType
	Functions []*Function
	Globals   []*Global
	Exports   []*Export

	// MemoryMinPages is the initial memory size in pages. Zero when the module declares no memory.
	MemoryMinPages uint32
	// MemoryMaxPages is the declared maximum in pages, or nil when unbounded.
	MemoryMaxPages *uint32

	DataSegments []*DataSegment

	// StartFunction is the index of the function to invoke on instantiation, or nil.
	StartFunction *Index
}

// ExportByName returns the export with the given name or nil if there is none.
func (m *Module) ExportByName(name string) *Export {
	for _, e := range m.Exports {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// FunctionTypeOf returns the signature of the function at funcIdx.
func (m *Module) FunctionTypeOf(funcIdx Index) (*FunctionType, error) {
	if funcIdx >= uint32(len(m.Functions)) {
		return nil, fmt.Errorf("function index %d out of range", funcIdx)
	}
	typeIdx := m.Functions[funcIdx].TypeIndex
	if typeIdx >= uint32(len(m.Types)) {
		return nil, fmt.Errorf("type index %d out of range for function[%d]", typeIdx, funcIdx)
	}
	return m.Types[typeIdx], nil
}

// Validate checks the index references a decoder cannot check in isolation. Instruction bodies are not
// validated.
func (m *Module) Validate() error {
	for i := range m.Functions {
		if _, err := m.FunctionTypeOf(Index(i)); err != nil {
			return err
		}
	}
	if m.MemoryMaxPages != nil {
		if *m.MemoryMaxPages > MemoryMaxPages {
			return fmt.Errorf("memory max %d pages over limit of %d pages", *m.MemoryMaxPages, MemoryMaxPages)
		}
		if m.MemoryMinPages > *m.MemoryMaxPages {
			return fmt.Errorf("memory min %d pages > max %d pages", m.MemoryMinPages, *m.MemoryMaxPages)
		}
	}
	if m.MemoryMinPages > MemoryMaxPages {
		return fmt.Errorf("memory min %d pages over limit of %d pages", m.MemoryMinPages, MemoryMaxPages)
	}
	for i, e := range m.Exports {
		switch e.Kind {
		case ExportKindFunc:
			if e.Index >= uint32(len(m.Functions)) {
				return fmt.Errorf("export[%d] %q: function index %d out of range", i, e.Name, e.Index)
			}
		case ExportKindGlobal:
			if e.Index >= uint32(len(m.Globals)) {
				return fmt.Errorf("export[%d] %q: global index %d out of range", i, e.Name, e.Index)
			}
		}
	}
	if m.StartFunction != nil && *m.StartFunction >= uint32(len(m.Functions)) {
		return fmt.Errorf("start function index %d out of range", *m.StartFunction)
	}
	for i, d := range m.DataSegments {
		if end := uint64(d.Offset) + uint64(len(d.Init)); end > uint64(m.MemoryMinPages)*uint64(PageSize) {
			return fmt.Errorf("data[%d]: out of bounds memory access", i)
		}
	}
	return nil
}
