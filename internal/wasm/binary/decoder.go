// Package binary implements the WebAssembly 1.0 (20191205) binary format:
// decoding module bytes into the internal module model and encoding the model
// back into bytes.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0
package binary

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/utnet-org/wasmer2/internal/leb128"
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// Magic is the 4 byte preamble of every valid module.
var Magic = []byte{0x00, 0x61, 0x73, 0x6D}

// version is format version 1, the only one in WebAssembly 1.0.
var version = []byte{0x01, 0x00, 0x00, 0x00}

const (
	sectionIDCustom byte = iota
	sectionIDType
	sectionIDImport
	sectionIDFunction
	sectionIDTable
	sectionIDMemory
	sectionIDGlobal
	sectionIDExport
	sectionIDStart
	sectionIDElement
	sectionIDCode
	sectionIDData
)

// maximumFunctionLocals caps declared locals. The format allows up to 2^32-1
// per declaration group, which would otherwise let a short input demand an
// enormous allocation.
const maximumFunctionLocals = 1 << 20

// DecodeModule parses the given bytes into the module model. It performs
// format-level checks only; semantic validation is Module.Validate's job.
func DecodeModule(b []byte) (*wasm.Module, error) {
	m, err := decodeModule(b)
	if err != nil {
		return nil, &wasm.ModuleError{Message: err.Error()}
	}
	return m, nil
}

func decodeModule(b []byte) (*wasm.Module, error) {
	r := bytes.NewReader(b)

	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, Magic) {
		return nil, fmt.Errorf("invalid magic number")
	}
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, version) {
		return nil, fmt.Errorf("invalid version header")
	}

	m := &wasm.Module{}
	lastID := byte(0)
	for {
		sectionID, err := r.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}
		sectionSize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("section[%d] size: %w", sectionID, err)
		}
		if uint64(sectionSize) > uint64(r.Len()) {
			return nil, fmt.Errorf("section[%d] size %d exceeds remaining input", sectionID, sectionSize)
		}
		if sectionID != sectionIDCustom {
			// Known sections must appear at most once, in id order.
			if sectionID <= lastID && lastID != 0 {
				return nil, fmt.Errorf("section[%d] out of order", sectionID)
			}
			lastID = sectionID
		}

		restBefore := r.Len()
		switch sectionID {
		case sectionIDCustom:
			// Custom sections carry no semantics; skip the payload.
			if _, err = r.Seek(int64(sectionSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip custom section: %w", err)
			}
		case sectionIDType:
			m.TypeSection, err = decodeTypeSection(r)
		case sectionIDImport:
			m.ImportSection, err = decodeImportSection(r)
		case sectionIDFunction:
			m.FunctionSection, err = decodeFunctionSection(r)
		case sectionIDTable:
			m.TableSection, err = decodeTableSection(r)
		case sectionIDMemory:
			m.MemorySection, err = decodeMemorySection(r)
		case sectionIDGlobal:
			m.GlobalSection, err = decodeGlobalSection(r)
		case sectionIDExport:
			m.ExportSection, err = decodeExportSection(r)
		case sectionIDStart:
			m.StartSection, err = decodeStartSection(r)
		case sectionIDElement:
			m.ElementSection, err = decodeElementSection(r)
		case sectionIDCode:
			m.CodeSection, err = decodeCodeSection(r)
		case sectionIDData:
			m.DataSection, err = decodeDataSection(r)
		default:
			return nil, fmt.Errorf("unknown section id %d", sectionID)
		}
		if err != nil {
			return nil, fmt.Errorf("section[%d]: %w", sectionID, err)
		}
		if read := restBefore - r.Len(); sectionID != sectionIDCustom && uint32(read) != sectionSize {
			return nil, fmt.Errorf("section[%d] declared %d bytes but held %d", sectionID, sectionSize, read)
		}
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, fmt.Errorf("function and code section length mismatch: %d != %d",
			len(m.FunctionSection), len(m.CodeSection))
	}
	return m, nil
}

// decodeVectorCount reads a vector length and rejects counts that cannot fit
// in the remaining input. Every vector item occupies at least one byte, so a
// count above r.Len() is malformed regardless of item shape. Checking here
// keeps a short input from demanding a huge up-front allocation.
func decodeVectorCount(r *bytes.Reader) (uint32, error) {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, err
	}
	if uint64(count) > uint64(r.Len()) {
		return 0, fmt.Errorf("%d items exceed the %d remaining input bytes", count, r.Len())
	}
	return count, nil
}

func decodeTypeSection(r *bytes.Reader) ([]*wasm.FunctionType, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	result := make([]*wasm.FunctionType, count)
	for i := range result {
		if result[i], err = decodeFunctionType(r); err != nil {
			return nil, fmt.Errorf("type[%d]: %w", i, err)
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
		return nil, fmt.Errorf("invalid function type leading byte 0x%x", b)
	}
	params, err := decodeValueTypes(r)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	results, err := decodeValueTypes(r)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	return &wasm.FunctionType{Params: params, Results: results}, nil
}

func decodeImportSection(r *bytes.Reader) ([]*wasm.Import, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	result := make([]*wasm.Import, count)
	for i := range result {
		if result[i], err = decodeImport(r); err != nil {
			return nil, fmt.Errorf("import[%d]: %w", i, err)
		}
	}
	return result, nil
}

func decodeImport(r *bytes.Reader) (*wasm.Import, error) {
	module, err := decodeName(r)
	if err != nil {
		return nil, fmt.Errorf("module name: %w", err)
	}
	name, err := decodeName(r)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	i := &wasm.Import{Module: module, Name: name}
	if i.Type, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("kind: %w", err)
	}
	switch i.Type {
	case wasm.ExternTypeFunc:
		i.DescFunc, _, err = leb128.DecodeUint32(r)
	case wasm.ExternTypeTable:
		i.DescTable, err = decodeTableType(r)
	case wasm.ExternTypeMemory:
		i.DescMem, err = decodeMemoryType(r)
	case wasm.ExternTypeGlobal:
		i.DescGlobal, err = decodeGlobalType(r)
	default:
		return nil, fmt.Errorf("invalid import kind 0x%x", i.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("description: %w", err)
	}
	return i, nil
}

func decodeFunctionSection(r *bytes.Reader) ([]wasm.Index, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	result := make([]wasm.Index, count)
	for i := range result {
		if result[i], _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("function[%d] type index: %w", i, err)
		}
	}
	return result, nil
}

func decodeTableSection(r *bytes.Reader) ([]*wasm.TableType, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	if count > 1 {
		return nil, fmt.Errorf("at most one table allowed, but read %d", count)
	}
	result := make([]*wasm.TableType, count)
	for i := range result {
		if result[i], err = decodeTableType(r); err != nil {
			return nil, fmt.Errorf("table[%d]: %w", i, err)
		}
	}
	return result, nil
}

func decodeTableType(r *bytes.Reader) (*wasm.TableType, error) {
	elemType, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("element type: %w", err)
	}
	if elemType != wasm.ValueTypeFuncref {
		return nil, fmt.Errorf("invalid element type 0x%x", elemType)
	}
	min, max, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.TableType{ElemType: elemType, Min: min, Max: max}, nil
}

func decodeMemorySection(r *bytes.Reader) ([]*wasm.MemoryType, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	if count > 1 {
		return nil, fmt.Errorf("at most one memory allowed, but read %d", count)
	}
	result := make([]*wasm.MemoryType, count)
	for i := range result {
		if result[i], err = decodeMemoryType(r); err != nil {
			return nil, fmt.Errorf("memory[%d]: %w", i, err)
		}
	}
	return result, nil
}

func decodeMemoryType(r *bytes.Reader) (*wasm.MemoryType, error) {
	min, max, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.MemoryType{Min: min, Max: max}, nil
}

// decodeLimits reads the flag-prefixed (min, max?) pair shared by table and
// memory types.
func decodeLimits(r *bytes.Reader) (min uint32, max *uint32, err error) {
	flag, err := r.ReadByte()
	if err != nil {
		return 0, nil, fmt.Errorf("limits flag: %w", err)
	}
	switch flag {
	case 0x00:
		min, _, err = leb128.DecodeUint32(r)
	case 0x01:
		if min, _, err = leb128.DecodeUint32(r); err != nil {
			break
		}
		var m uint32
		if m, _, err = leb128.DecodeUint32(r); err == nil {
			max = &m
		}
	default:
		return 0, nil, fmt.Errorf("invalid limits flag 0x%x", flag)
	}
	if err != nil {
		err = fmt.Errorf("limits: %w", err)
	}
	return
}

func decodeGlobalSection(r *bytes.Reader) ([]*wasm.Global, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	result := make([]*wasm.Global, count)
	for i := range result {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return nil, fmt.Errorf("global[%d]: %w", i, err)
		}
		init, err := decodeConstantExpression(r)
		if err != nil {
			return nil, fmt.Errorf("global[%d] initializer: %w", i, err)
		}
		result[i] = &wasm.Global{Type: gt, Init: init}
	}
	return result, nil
}

func decodeGlobalType(r *bytes.Reader) (*wasm.GlobalType, error) {
	vt, err := decodeValueType(r)
	if err != nil {
		return nil, fmt.Errorf("value type: %w", err)
	}
	mut, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("mutability: %w", err)
	}
	if mut > 1 {
		return nil, fmt.Errorf("invalid mutability flag 0x%x", mut)
	}
	return &wasm.GlobalType{ValType: vt, Mutable: mut == wasm.MutabilityVar}, nil
}

func decodeExportSection(r *bytes.Reader) ([]*wasm.Export, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	seen := make(map[string]struct{}, count)
	result := make([]*wasm.Export, count)
	for i := range result {
		name, err := decodeName(r)
		if err != nil {
			return nil, fmt.Errorf("export[%d] name: %w", i, err)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("export[%d] has duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		et, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("export[%d] kind: %w", i, err)
		}
		if et > wasm.ExternTypeGlobal {
			return nil, fmt.Errorf("export[%d] has invalid kind 0x%x", i, et)
		}
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("export[%d] index: %w", i, err)
		}
		result[i] = &wasm.Export{Name: name, Type: et, Index: idx}
	}
	return result, nil
}

func decodeStartSection(r *bytes.Reader) (*wasm.Index, error) {
	idx, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("function index: %w", err)
	}
	return &idx, nil
}

func decodeElementSection(r *bytes.Reader) ([]*wasm.ElementSegment, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	result := make([]*wasm.ElementSegment, count)
	for i := range result {
		tableIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("element[%d] table index: %w", i, err)
		}
		if tableIdx != 0 {
			return nil, fmt.Errorf("element[%d] table index must be zero, but was %d", i, tableIdx)
		}
		expr, err := decodeConstantExpression(r)
		if err != nil {
			return nil, fmt.Errorf("element[%d] offset: %w", i, err)
		}
		n, err := decodeVectorCount(r)
		if err != nil {
			return nil, fmt.Errorf("element[%d] init count: %w", i, err)
		}
		init := make([]wasm.Index, n)
		for j := range init {
			if init[j], _, err = leb128.DecodeUint32(r); err != nil {
				return nil, fmt.Errorf("element[%d] init[%d]: %w", i, j, err)
			}
		}
		result[i] = &wasm.ElementSegment{OffsetExpr: expr, Init: init}
	}
	return result, nil
}

func decodeCodeSection(r *bytes.Reader) ([]*wasm.Code, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	result := make([]*wasm.Code, count)
	for i := range result {
		if result[i], err = decodeCode(r); err != nil {
			return nil, fmt.Errorf("code[%d]: %w", i, err)
		}
	}
	return result, nil
}

func decodeCode(r *bytes.Reader) (*wasm.Code, error) {
	size, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	restBefore := r.Len()

	declCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("local declaration count: %w", err)
	}
	var localTypes []wasm.ValueType
	var total uint64
	for i := uint32(0); i < declCount; i++ {
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("local[%d] count: %w", i, err)
		}
		if total += uint64(n); total > maximumFunctionLocals {
			return nil, fmt.Errorf("too many locals: %d", total)
		}
		vt, err := decodeValueType(r)
		if err != nil {
			return nil, fmt.Errorf("local[%d] type: %w", i, err)
		}
		for j := uint32(0); j < n; j++ {
			localTypes = append(localTypes, vt)
		}
	}

	bodySize := int(size) - (restBefore - r.Len())
	if bodySize <= 0 {
		return nil, fmt.Errorf("malformed body size %d", size)
	}
	body := make([]byte, bodySize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if body[len(body)-1] != wasm.OpcodeEnd {
		return nil, fmt.Errorf("body must end with the end opcode")
	}
	return &wasm.Code{LocalTypes: localTypes, Body: body}, nil
}

func decodeDataSection(r *bytes.Reader) ([]*wasm.DataSegment, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	result := make([]*wasm.DataSegment, count)
	for i := range result {
		memIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("data[%d] memory index: %w", i, err)
		}
		if memIdx != 0 {
			return nil, fmt.Errorf("data[%d] memory index must be zero, but was %d", i, memIdx)
		}
		expr, err := decodeConstantExpression(r)
		if err != nil {
			return nil, fmt.Errorf("data[%d] offset: %w", i, err)
		}
		n, err := decodeVectorCount(r)
		if err != nil {
			return nil, fmt.Errorf("data[%d] size: %w", i, err)
		}
		init := make([]byte, n)
		if _, err := io.ReadFull(r, init); err != nil {
			return nil, fmt.Errorf("data[%d] bytes: %w", i, err)
		}
		result[i] = &wasm.DataSegment{OffsetExpr: expr, Init: init}
	}
	return result, nil
}

// decodeConstantExpression reads an initializer: one instruction terminated by
// end. The operand bytes are retained verbatim for later evaluation.
func decodeConstantExpression(r *bytes.Reader) (*wasm.ConstantExpression, error) {
	opcode, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read opcode: %w", err)
	}

	restBefore := r.Len()
	switch opcode {
	case wasm.OpcodeI32Const:
		_, _, err = leb128.DecodeInt32(r)
	case wasm.OpcodeI64Const:
		_, _, err = leb128.DecodeInt64(r)
	case wasm.OpcodeF32Const:
		_, err = r.Seek(4, io.SeekCurrent)
	case wasm.OpcodeF64Const:
		_, err = r.Seek(8, io.SeekCurrent)
	case wasm.OpcodeGlobalGet:
		_, _, err = leb128.DecodeUint32(r)
	default:
		return nil, fmt.Errorf("invalid constant expression opcode 0x%x", opcode)
	}
	if err != nil {
		return nil, fmt.Errorf("read operand: %w", err)
	}
	dataSize := restBefore - r.Len()

	// Rewind and capture the operand bytes.
	if _, err := r.Seek(int64(-dataSize), io.SeekCurrent); err != nil {
		return nil, err
	}
	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	if end, err := r.ReadByte(); err != nil {
		return nil, fmt.Errorf("read end: %w", err)
	} else if end != wasm.OpcodeEnd {
		return nil, fmt.Errorf("constant expression not terminated by end")
	}
	return &wasm.ConstantExpression{Opcode: opcode, Data: data}, nil
}

func decodeValueTypes(r *bytes.Reader) ([]wasm.ValueType, error) {
	count, err := decodeVectorCount(r)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	result := make([]wasm.ValueType, count)
	for i := range result {
		if result[i], err = decodeValueType(r); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func decodeValueType(r *bytes.Reader) (wasm.ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read value type: %w", err)
	}
	switch vt := wasm.ValueType(b); vt {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		return vt, nil
	default:
		return 0, fmt.Errorf("invalid value type 0x%x", b)
	}
}

// decodeName reads a length-prefixed UTF-8 name.
func decodeName(r *bytes.Reader) (string, error) {
	size, err := decodeVectorCount(r)
	if err != nil {
		return "", fmt.Errorf("size: %w", err)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read %d bytes: %w", size, err)
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("name is not valid UTF-8")
	}
	return string(buf), nil
}
