package binary

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/wasmkit/naivevm/internal/leb128"
	"github.com/wasmkit/naivevm/internal/wasm"
)

// SectionID identifies the sections of a Module in the WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
type SectionID = byte

const (
	// SectionIDCustom includes the standard defined NameSection and possibly others not defined in the standard.
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
	// SectionIDDataCount is the data count section added with bulk memory operations.
	SectionIDDataCount
)

// SectionIDName returns the canonical name of a module section.
// https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
func SectionIDName(sectionID SectionID) string {
	switch sectionID {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	case SectionIDDataCount:
		return "data_count"
	}
	return "unknown"
}

func decodeVectorSize(r *bytes.Reader) (uint32, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, fmt.Errorf("get size of vector: %w", err)
	}
	// Every element takes at least one byte.
	if int64(vs) > int64(r.Len()) {
		return 0, fmt.Errorf("vector size %d exceeds remaining %d bytes", vs, r.Len())
	}
	return vs, nil
}

func decodeTypeSection(r *bytes.Reader) ([]*wasm.FunctionType, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*wasm.FunctionType, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeFunctionType(r); err != nil {
			return nil, fmt.Errorf("read %d-th type: %v", i, err)
		}
	}
	return result, nil
}

func decodeFunctionType(r *bytes.Reader) (*wasm.FunctionType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}

	if b != 0x60 {
		return nil, fmt.Errorf("%w: %#x != 0x60", ErrInvalidByte, b)
	}

	s, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("could not read parameter count: %w", err)
	}

	paramTypes, err := decodeValueTypes(r, s)
	if err != nil {
		return nil, fmt.Errorf("could not read parameter types: %w", err)
	}

	s, _, err = leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("could not read result count: %w", err)
	}

	resultTypes, err := decodeValueTypes(r, s)
	if err != nil {
		return nil, fmt.Errorf("could not read result types: %w", err)
	}

	return &wasm.FunctionType{
		Params:  paramTypes,
		Results: resultTypes,
	}, nil
}

func decodeImportSection(r *bytes.Reader) error {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return err
	}
	if vs != 0 {
		return fmt.Errorf("%w: module declares %d imports", ErrImportsUnsupported, vs)
	}
	return nil
}

func decodeFunctionSection(r *bytes.Reader) ([]uint32, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]uint32, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("get type index: %w", err)
		}
	}
	return result, nil
}

func decodeMemorySection(r *bytes.Reader, m *wasm.Module) error {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return err
	}
	if vs > 1 {
		return fmt.Errorf("at most one memory allowed in module, but read %d", vs)
	} else if vs == 0 {
		return nil
	}

	min, max, err := decodeLimitsType(r)
	if err != nil {
		return fmt.Errorf("read memory type: %w", err)
	}
	if min > wasm.MemoryMaxPages {
		return fmt.Errorf("min %d pages outside range of %d pages", min, wasm.MemoryMaxPages)
	}
	if max != nil {
		if *max > wasm.MemoryMaxPages {
			return fmt.Errorf("max %d pages outside range of %d pages", *max, wasm.MemoryMaxPages)
		} else if min > *max {
			return fmt.Errorf("min %d pages > max %d pages", min, *max)
		}
	}
	m.MemoryMinPages, m.MemoryMaxPages = min, max
	return nil
}

func decodeGlobalSection(r *bytes.Reader, m *wasm.Module) error {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return err
	}

	for i := uint32(0); i < vs; i++ {
		g, err := decodeGlobal(r, m.Globals)
		if err != nil {
			return fmt.Errorf("read global[%d]: %v", i, err)
		}
		m.Globals = append(m.Globals, g)
	}
	return nil
}

func decodeGlobal(r *bytes.Reader, defined []*wasm.Global) (*wasm.Global, error) {
	vt, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read value type: %w", err)
	}
	if err = checkValueType(vt); err != nil {
		return nil, err
	}

	mut, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read mutability: %w", err)
	}
	if mut > 1 {
		return nil, fmt.Errorf("%w for mutability: %#x != 0x00 or 0x01", ErrInvalidByte, mut)
	}

	initType, init, err := decodeConstantExpression(r, defined)
	if err != nil {
		return nil, err
	}
	if initType != vt {
		return nil, fmt.Errorf("type mismatch: init is %s, but global is %s",
			wasm.ValueTypeName(initType), wasm.ValueTypeName(vt))
	}
	return &wasm.Global{Type: vt, Mutable: mut == 1, Init: init}, nil
}

func decodeExportSection(r *bytes.Reader) ([]*wasm.Export, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	exportNames := make(map[string]struct{}, vs)
	result := make([]*wasm.Export, vs)
	for i := uint32(0); i < vs; i++ {
		export, err := decodeExport(r)
		if err != nil {
			return nil, fmt.Errorf("read export: %w", err)
		}
		if _, ok := exportNames[export.Name]; ok {
			return nil, fmt.Errorf("export[%d] duplicates name %q", i, export.Name)
		}
		exportNames[export.Name] = struct{}{}
		result[i] = export
	}
	return result, nil
}

func decodeExport(r *bytes.Reader) (i *wasm.Export, err error) {
	i = &wasm.Export{}

	if i.Name, _, err = decodeUTF8(r, "export name"); err != nil {
		return nil, err
	}

	if i.Kind, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("error decoding export kind: %w", err)
	}

	switch i.Kind {
	case wasm.ExportKindFunc, wasm.ExportKindTable, wasm.ExportKindMemory, wasm.ExportKindGlobal:
		if i.Index, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("error decoding export index: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: invalid byte for exportdesc: %#x", ErrInvalidByte, i.Kind)
	}
	return
}

func decodeStartSection(r *bytes.Reader) (*wasm.Index, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get function index: %w", err)
	}
	return &vs, nil
}

func decodeCodeSection(r *bytes.Reader) ([]*wasm.Function, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*wasm.Function, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeCode(r); err != nil {
			return nil, fmt.Errorf("read %d-th code segment: %v", i, err)
		}
	}
	return result, nil
}

func decodeCode(r *bytes.Reader) (*wasm.Function, error) {
	ss, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of code: %w", err)
	}
	if int64(ss) > int64(r.Len()) {
		return nil, fmt.Errorf("code size %d exceeds remaining %d bytes", ss, r.Len())
	}

	entry := make([]byte, ss)
	if _, err = io.ReadFull(r, entry); err != nil {
		return nil, fmt.Errorf("read code: %w", err)
	}
	er := bytes.NewReader(entry)

	// parse locals
	ls, _, err := leb128.DecodeUint32(er)
	if err != nil {
		return nil, fmt.Errorf("get the size locals: %v", err)
	}

	var localTypes []wasm.ValueType
	var sum uint64
	for i := uint32(0); i < ls; i++ {
		n, _, err := leb128.DecodeUint32(er)
		if err != nil {
			return nil, fmt.Errorf("read n of locals: %v", err)
		}
		sum += uint64(n)
		if sum > math.MaxUint16 {
			return nil, fmt.Errorf("too many locals: %d", sum)
		}

		vt, err := er.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read type of local: %v", err)
		}
		if err = checkValueType(vt); err != nil {
			return nil, fmt.Errorf("invalid local type: %v", err)
		}
		for j := uint32(0); j < n; j++ {
			localTypes = append(localTypes, vt)
		}
	}

	body := entry[len(entry)-er.Len():]
	if len(body) == 0 || body[len(body)-1] != wasm.OpcodeEnd {
		return nil, fmt.Errorf("expr not end with OpcodeEnd")
	}

	return &wasm.Function{Locals: localTypes, Body: body}, nil
}

func decodeDataSection(r *bytes.Reader, m *wasm.Module) error {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return err
	}

	for i := uint32(0); i < vs; i++ {
		d, err := decodeDataSegment(r, m.Globals)
		if err != nil {
			return fmt.Errorf("read data segment: %w", err)
		}
		m.DataSegments = append(m.DataSegments, d)
	}
	return nil
}

func decodeDataSegment(r *bytes.Reader, globals []*wasm.Global) (*wasm.DataSegment, error) {
	prefix, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read data segment prefix: %w", err)
	}

	switch prefix {
	case 0x00:
	case 0x02:
		memIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read memory index: %v", err)
		}
		if memIdx != 0 {
			return nil, fmt.Errorf("invalid memory index: %d", memIdx)
		}
	case 0x01:
		return nil, fmt.Errorf("passive data segments are not supported")
	default:
		return nil, fmt.Errorf("invalid data segment prefix: %#x", prefix)
	}

	vt, offset, err := decodeConstantExpression(r, globals)
	if err != nil {
		return nil, fmt.Errorf("read offset expression: %v", err)
	}
	if vt != wasm.ValueTypeI32 {
		return nil, fmt.Errorf("offset expression must be i32 but was %s", wasm.ValueTypeName(vt))
	}

	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of vector: %v", err)
	}
	if int64(vs) > int64(r.Len()) {
		return nil, fmt.Errorf("read bytes for init: %w", io.ErrUnexpectedEOF)
	}

	b := make([]byte, vs)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read bytes for init: %v", err)
	}

	return &wasm.DataSegment{Offset: uint32(offset), Init: b}, nil
}

// decodeLimitsType returns the minimum and optional maximum of a limits type.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#limits%E2%91%A6
func decodeLimitsType(r *bytes.Reader) (min uint32, max *uint32, err error) {
	var flag byte
	if flag, err = r.ReadByte(); err != nil {
		err = fmt.Errorf("read leading byte: %v", err)
		return
	}

	switch flag {
	case 0x00:
		min, _, err = leb128.DecodeUint32(r)
		if err != nil {
			err = fmt.Errorf("read min of limit: %v", err)
		}
	case 0x01:
		min, _, err = leb128.DecodeUint32(r)
		if err != nil {
			err = fmt.Errorf("read min of limit: %v", err)
			return
		}
		var m uint32
		if m, _, err = leb128.DecodeUint32(r); err != nil {
			err = fmt.Errorf("read max of limit: %v", err)
		} else {
			max = &m
		}
	default:
		err = fmt.Errorf("%v for limits: %#x != 0x00 or 0x01", ErrInvalidByte, flag)
	}
	return
}
