package binary

import (
	"github.com/wasmkit/naivevm/internal/leb128"
	"github.com/wasmkit/naivevm/internal/wasm"
)

// EncodeModule encodes the given module in the WebAssembly 1.0 (20191205) Binary Format. It is the inverse of
// DecodeModule for the sections DecodeModule keeps.
//
// Note: If saving to a file, the conventional extension is wasm
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0
func EncodeModule(m *wasm.Module) (bytes []byte) {
	bytes = append(append([]byte{}, Magic...), version...)
	if len(m.Types) > 0 {
		bytes = append(bytes, encodeTypeSection(m.Types)...)
	}
	if len(m.Functions) > 0 {
		bytes = append(bytes, encodeFunctionSection(m.Functions)...)
	}
	if m.MemoryMinPages > 0 || m.MemoryMaxPages != nil || len(m.DataSegments) > 0 {
		bytes = append(bytes, encodeMemorySection(m.MemoryMinPages, m.MemoryMaxPages)...)
	}
	if len(m.Globals) > 0 {
		bytes = append(bytes, encodeGlobalSection(m.Globals)...)
	}
	if len(m.Exports) > 0 {
		bytes = append(bytes, encodeExportSection(m.Exports)...)
	}
	if m.StartFunction != nil {
		bytes = append(bytes, encodeSection(SectionIDStart, leb128.EncodeUint32(*m.StartFunction))...)
	}
	if len(m.Functions) > 0 {
		bytes = append(bytes, encodeCodeSection(m.Functions)...)
	}
	if len(m.DataSegments) > 0 {
		bytes = append(bytes, encodeDataSection(m.DataSegments)...)
	}
	return
}

// encodeSection encodes the sectionID, the size of its contents in bytes, followed by the contents.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
func encodeSection(sectionID SectionID, contents []byte) []byte {
	return append([]byte{sectionID}, encodeSizePrefixed(contents)...)
}

func encodeVector(sectionID SectionID, count int, encodeElem func(i int) []byte) []byte {
	contents := leb128.EncodeUint32(uint32(count))
	for i := 0; i < count; i++ {
		contents = append(contents, encodeElem(i)...)
	}
	return encodeSection(sectionID, contents)
}

func encodeTypeSection(types []*wasm.FunctionType) []byte {
	return encodeVector(SectionIDType, len(types), func(i int) []byte {
		data := append([]byte{0x60}, encodeValTypes(types[i].Params)...)
		return append(data, encodeValTypes(types[i].Results)...)
	})
}

func encodeFunctionSection(functions []*wasm.Function) []byte {
	return encodeVector(SectionIDFunction, len(functions), func(i int) []byte {
		return leb128.EncodeUint32(functions[i].TypeIndex)
	})
}

func encodeMemorySection(min uint32, max *uint32) []byte {
	contents := []byte{1}
	if max == nil {
		contents = append(contents, 0x00)
		contents = append(contents, leb128.EncodeUint32(min)...)
	} else {
		contents = append(contents, 0x01)
		contents = append(contents, leb128.EncodeUint32(min)...)
		contents = append(contents, leb128.EncodeUint32(*max)...)
	}
	return encodeSection(SectionIDMemory, contents)
}

func encodeGlobalSection(globals []*wasm.Global) []byte {
	return encodeVector(SectionIDGlobal, len(globals), func(i int) []byte {
		g := globals[i]
		mut := byte(0)
		if g.Mutable {
			mut = 1
		}
		return append([]byte{g.Type, mut}, encodeConstantExpression(g.Type, g.Init)...)
	})
}

func encodeExportSection(exports []*wasm.Export) []byte {
	return encodeVector(SectionIDExport, len(exports), func(i int) []byte {
		e := exports[i]
		data := encodeSizePrefixed([]byte(e.Name))
		data = append(data, e.Kind)
		return append(data, leb128.EncodeUint32(e.Index)...)
	})
}

func encodeCodeSection(functions []*wasm.Function) []byte {
	return encodeVector(SectionIDCode, len(functions), func(i int) []byte {
		return encodeSizePrefixed(encodeCode(functions[i]))
	})
}

// encodeCode run-length encodes the locals, so that decoding yields the same expanded list.
func encodeCode(f *wasm.Function) []byte {
	var groups int
	var data []byte
	for i := 0; i < len(f.Locals); {
		j := i
		for j < len(f.Locals) && f.Locals[j] == f.Locals[i] {
			j++
		}
		data = append(data, leb128.EncodeUint32(uint32(j-i))...)
		data = append(data, f.Locals[i])
		groups++
		i = j
	}
	data = append(leb128.EncodeUint32(uint32(groups)), data...)
	return append(data, f.Body...)
}

func encodeDataSection(segments []*wasm.DataSegment) []byte {
	return encodeVector(SectionIDData, len(segments), func(i int) []byte {
		d := segments[i]
		data := []byte{0x00}
		data = append(data, encodeConstantExpression(wasm.ValueTypeI32, uint64(d.Offset))...)
		return append(data, encodeSizePrefixed(d.Init)...)
	})
}
