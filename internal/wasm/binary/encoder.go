package binary

import (
	"github.com/utnet-org/wasmer2/internal/leb128"
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// EncodeModule serializes the module model into the binary format. The result
// decodes back into an equal model, which the codec tests rely on.
func EncodeModule(m *wasm.Module) []byte {
	out := append([]byte{}, Magic...)
	out = append(out, version...)
	if len(m.TypeSection) > 0 {
		out = append(out, encodeSection(sectionIDType, encodeTypeSection(m.TypeSection))...)
	}
	if len(m.ImportSection) > 0 {
		out = append(out, encodeSection(sectionIDImport, encodeImportSection(m.ImportSection))...)
	}
	if len(m.FunctionSection) > 0 {
		var data []byte
		data = leb128.EncodeUint32(data, uint32(len(m.FunctionSection)))
		for _, idx := range m.FunctionSection {
			data = leb128.EncodeUint32(data, idx)
		}
		out = append(out, encodeSection(sectionIDFunction, data)...)
	}
	if len(m.TableSection) > 0 {
		var data []byte
		data = leb128.EncodeUint32(data, uint32(len(m.TableSection)))
		for _, t := range m.TableSection {
			data = encodeTableType(data, t)
		}
		out = append(out, encodeSection(sectionIDTable, data)...)
	}
	if len(m.MemorySection) > 0 {
		var data []byte
		data = leb128.EncodeUint32(data, uint32(len(m.MemorySection)))
		for _, mem := range m.MemorySection {
			data = encodeLimits(data, mem.Min, mem.Max)
		}
		out = append(out, encodeSection(sectionIDMemory, data)...)
	}
	if len(m.GlobalSection) > 0 {
		var data []byte
		data = leb128.EncodeUint32(data, uint32(len(m.GlobalSection)))
		for _, g := range m.GlobalSection {
			data = encodeGlobalType(data, g.Type)
			data = encodeConstantExpression(data, g.Init)
		}
		out = append(out, encodeSection(sectionIDGlobal, data)...)
	}
	if len(m.ExportSection) > 0 {
		var data []byte
		data = leb128.EncodeUint32(data, uint32(len(m.ExportSection)))
		for _, e := range m.ExportSection {
			data = encodeName(data, e.Name)
			data = append(data, e.Type)
			data = leb128.EncodeUint32(data, e.Index)
		}
		out = append(out, encodeSection(sectionIDExport, data)...)
	}
	if m.StartSection != nil {
		out = append(out, encodeSection(sectionIDStart, leb128.EncodeUint32(nil, *m.StartSection))...)
	}
	if len(m.ElementSection) > 0 {
		var data []byte
		data = leb128.EncodeUint32(data, uint32(len(m.ElementSection)))
		for _, e := range m.ElementSection {
			data = leb128.EncodeUint32(data, 0) // table index
			data = encodeConstantExpression(data, e.OffsetExpr)
			data = leb128.EncodeUint32(data, uint32(len(e.Init)))
			for _, idx := range e.Init {
				data = leb128.EncodeUint32(data, idx)
			}
		}
		out = append(out, encodeSection(sectionIDElement, data)...)
	}
	if len(m.CodeSection) > 0 {
		var data []byte
		data = leb128.EncodeUint32(data, uint32(len(m.CodeSection)))
		for _, c := range m.CodeSection {
			data = encodeCode(data, c)
		}
		out = append(out, encodeSection(sectionIDCode, data)...)
	}
	if len(m.DataSection) > 0 {
		var data []byte
		data = leb128.EncodeUint32(data, uint32(len(m.DataSection)))
		for _, d := range m.DataSection {
			data = leb128.EncodeUint32(data, 0) // memory index
			data = encodeConstantExpression(data, d.OffsetExpr)
			data = leb128.EncodeUint32(data, uint32(len(d.Init)))
			data = append(data, d.Init...)
		}
		out = append(out, encodeSection(sectionIDData, data)...)
	}
	return out
}

func encodeSection(id byte, data []byte) []byte {
	out := append([]byte{id}, leb128.EncodeUint32(nil, uint32(len(data)))...)
	return append(out, data...)
}

func encodeTypeSection(types []*wasm.FunctionType) []byte {
	data := leb128.EncodeUint32(nil, uint32(len(types)))
	for _, t := range types {
		data = append(data, 0x60)
		data = leb128.EncodeUint32(data, uint32(len(t.Params)))
		data = append(data, t.Params...)
		data = leb128.EncodeUint32(data, uint32(len(t.Results)))
		data = append(data, t.Results...)
	}
	return data
}

func encodeImportSection(imports []*wasm.Import) []byte {
	data := leb128.EncodeUint32(nil, uint32(len(imports)))
	for _, i := range imports {
		data = encodeName(data, i.Module)
		data = encodeName(data, i.Name)
		data = append(data, i.Type)
		switch i.Type {
		case wasm.ExternTypeFunc:
			data = leb128.EncodeUint32(data, i.DescFunc)
		case wasm.ExternTypeTable:
			data = encodeTableType(data, i.DescTable)
		case wasm.ExternTypeMemory:
			data = encodeLimits(data, i.DescMem.Min, i.DescMem.Max)
		case wasm.ExternTypeGlobal:
			data = encodeGlobalType(data, i.DescGlobal)
		}
	}
	return data
}

func encodeName(data []byte, name string) []byte {
	data = leb128.EncodeUint32(data, uint32(len(name)))
	return append(data, name...)
}

func encodeTableType(data []byte, t *wasm.TableType) []byte {
	data = append(data, t.ElemType)
	return encodeLimits(data, t.Min, t.Max)
}

func encodeLimits(data []byte, min uint32, max *uint32) []byte {
	if max == nil {
		data = append(data, 0x00)
		return leb128.EncodeUint32(data, min)
	}
	data = append(data, 0x01)
	data = leb128.EncodeUint32(data, min)
	return leb128.EncodeUint32(data, *max)
}

func encodeGlobalType(data []byte, gt *wasm.GlobalType) []byte {
	data = append(data, gt.ValType)
	if gt.Mutable {
		return append(data, wasm.MutabilityVar)
	}
	return append(data, wasm.MutabilityConst)
}

func encodeConstantExpression(data []byte, expr *wasm.ConstantExpression) []byte {
	data = append(data, expr.Opcode)
	data = append(data, expr.Data...)
	return append(data, wasm.OpcodeEnd)
}

func encodeCode(data []byte, c *wasm.Code) []byte {
	// Locals are grouped as (count, type) runs.
	var locals []byte
	var groups uint32
	for i := 0; i < len(c.LocalTypes); {
		j := i
		for j < len(c.LocalTypes) && c.LocalTypes[j] == c.LocalTypes[i] {
			j++
		}
		locals = leb128.EncodeUint32(locals, uint32(j-i))
		locals = append(locals, c.LocalTypes[i])
		groups++
		i = j
	}
	body := leb128.EncodeUint32(nil, groups)
	body = append(body, locals...)
	body = append(body, c.Body...)

	data = leb128.EncodeUint32(data, uint32(len(body)))
	return append(data, body...)
}
