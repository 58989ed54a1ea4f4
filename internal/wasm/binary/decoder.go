package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wasmkit/naivevm/internal/leb128"
	"github.com/wasmkit/naivevm/internal/wasm"
)

// DecodeModule decodes a module in the WebAssembly 1.0 (20191205) Binary Format.
//
// Only the subset the interpreter executes is kept: table and element sections are read past, custom sections
// are skipped and a non-empty import section fails with ErrImportsUnsupported.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0
func DecodeModule(binary []byte) (*wasm.Module, error) {
	r := bytes.NewReader(binary)

	// Magic number.
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, Magic) {
		return nil, ErrInvalidMagicNumber
	}

	// Version.
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, version) {
		return nil, ErrInvalidVersion
	}

	m := &wasm.Module{}
	var functionSection []wasm.Index
	var seen [SectionIDDataCount + 1]bool
	for {
		sectionID, err := r.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}

		sectionSize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("get size of section %s: %v", SectionIDName(sectionID), err)
		}
		if int64(sectionSize) > int64(r.Len()) {
			return nil, fmt.Errorf("section %s: size %d exceeds remaining %d bytes",
				SectionIDName(sectionID), sectionSize, r.Len())
		}

		payload := make([]byte, sectionSize)
		if _, err = io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("section %s: %v", SectionIDName(sectionID), err)
		}

		if sectionID > SectionIDDataCount {
			return nil, fmt.Errorf("%w: %#x", ErrInvalidSectionID, sectionID)
		} else if sectionID != SectionIDCustom {
			if seen[sectionID] {
				return nil, fmt.Errorf("section %s: redundant section", SectionIDName(sectionID))
			}
			seen[sectionID] = true
		}

		sr := bytes.NewReader(payload)
		switch sectionID {
		case SectionIDCustom, SectionIDTable, SectionIDElement:
			sr.Reset(nil)
		case SectionIDType:
			m.Types, err = decodeTypeSection(sr)
		case SectionIDImport:
			err = decodeImportSection(sr)
		case SectionIDFunction:
			functionSection, err = decodeFunctionSection(sr)
		case SectionIDMemory:
			err = decodeMemorySection(sr, m)
		case SectionIDGlobal:
			err = decodeGlobalSection(sr, m)
		case SectionIDExport:
			m.Exports, err = decodeExportSection(sr)
		case SectionIDStart:
			m.StartFunction, err = decodeStartSection(sr)
		case SectionIDCode:
			m.Functions, err = decodeCodeSection(sr)
		case SectionIDData:
			err = decodeDataSection(sr, m)
		case SectionIDDataCount:
			_, _, err = leb128.DecodeUint32(sr)
		}

		if err == nil && sr.Len() != 0 {
			err = fmt.Errorf("invalid section length: expected to be %d but got %d", sectionSize, int(sectionSize)-sr.Len())
		}

		if err != nil {
			return nil, fmt.Errorf("section %s: %w", SectionIDName(sectionID), err)
		}
	}

	if len(functionSection) != len(m.Functions) {
		return nil, fmt.Errorf("function and code section have inconsistent lengths: %d != %d",
			len(functionSection), len(m.Functions))
	}
	for i, typeIdx := range functionSection {
		m.Functions[i].TypeIndex = typeIdx
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
