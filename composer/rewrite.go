package composer

import (
	"fmt"

	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/wasm"
)

// rewriteExpr decodes a raw instruction stream (a function body or a
// constant-expr used as a global/element/data offset), remaps every
// index-bearing instruction through st's remap tables, and
// re-encodes it. Any instruction whose index has no remap entry is a
// bug, never silently left pointing at the old index space (spec
// §4.6 step 5).
func rewriteExpr(st *moduleState, code []byte) ([]byte, error) {
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompose, errors.KindInvalidData, err, "decode instructions in module "+st.name)
	}
	for i := range instrs {
		if err := rewriteInstruction(st, &instrs[i]); err != nil {
			return nil, err
		}
	}
	return wasm.EncodeInstructions(instrs), nil
}

func rewriteInstruction(st *moduleState, instr *wasm.Instruction) error {
	switch instr.Opcode {
	case wasm.OpCall, wasm.OpReturnCall:
		imm := instr.Imm.(wasm.CallImm)
		newIdx, err := mustRemap(st, wasm.KindFunc, imm.FuncIdx)
		if err != nil {
			return err
		}
		instr.Imm = wasm.CallImm{FuncIdx: newIdx}

	case wasm.OpCallIndirect, wasm.OpReturnCallIndirect:
		imm := instr.Imm.(wasm.CallIndirectImm)
		newType, err := mustRemap(st, kindType, imm.TypeIdx)
		if err != nil {
			return err
		}
		newTable, err := mustRemap(st, wasm.KindTable, imm.TableIdx)
		if err != nil {
			return err
		}
		instr.Imm = wasm.CallIndirectImm{TypeIdx: newType, TableIdx: newTable}

	case wasm.OpCallRef, wasm.OpReturnCallRef:
		imm := instr.Imm.(wasm.CallRefImm)
		newType, err := mustRemap(st, kindType, imm.TypeIdx)
		if err != nil {
			return err
		}
		instr.Imm = wasm.CallRefImm{TypeIdx: newType}

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		imm := instr.Imm.(wasm.GlobalImm)
		newIdx, err := mustRemap(st, wasm.KindGlobal, imm.GlobalIdx)
		if err != nil {
			return err
		}
		instr.Imm = wasm.GlobalImm{GlobalIdx: newIdx}

	case wasm.OpRefFunc:
		imm := instr.Imm.(wasm.RefFuncImm)
		newIdx, err := mustRemap(st, wasm.KindFunc, imm.FuncIdx)
		if err != nil {
			return err
		}
		instr.Imm = wasm.RefFuncImm{FuncIdx: newIdx}

	case wasm.OpPrefixMisc:
		return rewriteMisc(st, instr)
	}
	return nil
}

// kindType is a local sentinel so mustRemap can address the type
// index space alongside the importable kinds.
const kindType byte = 0xFF

func mustRemap(st *moduleState, kind byte, old uint32) (uint32, error) {
	var m idxMap
	switch kind {
	case kindType:
		m = st.types
	case kindData:
		m = st.data
	case kindElem:
		m = st.elems
	default:
		m = st.remapFor(kind)
	}
	newIdx, ok := m.get(old)
	if !ok {
		return 0, errors.Wrap(errors.PhaseCompose, errors.KindUnresolvedName, nil,
			fmt.Sprintf("module %q: no remap entry for index %d (kind %d)", st.name, old, kind))
	}
	return newIdx, nil
}

func rewriteMisc(st *moduleState, instr *wasm.Instruction) error {
	imm := instr.Imm.(wasm.MiscImm)
	switch imm.SubOpcode {
	case wasm.MiscMemoryInit:
		dataIdx, err := mustRemap(st, kindData, imm.Operands[0])
		if err != nil {
			return err
		}
		memIdx, err := mustRemap(st, wasm.KindMemory, imm.Operands[1])
		if err != nil {
			return err
		}
		imm.Operands = []uint32{dataIdx, memIdx}
	case wasm.MiscDataDrop:
		dataIdx, err := mustRemap(st, kindData, imm.Operands[0])
		if err != nil {
			return err
		}
		imm.Operands = []uint32{dataIdx}
	case wasm.MiscMemoryCopy:
		dst, err := mustRemap(st, wasm.KindMemory, imm.Operands[0])
		if err != nil {
			return err
		}
		src, err := mustRemap(st, wasm.KindMemory, imm.Operands[1])
		if err != nil {
			return err
		}
		imm.Operands = []uint32{dst, src}
	case wasm.MiscMemoryFill, wasm.MiscMemoryDiscard:
		memIdx, err := mustRemap(st, wasm.KindMemory, imm.Operands[0])
		if err != nil {
			return err
		}
		imm.Operands = []uint32{memIdx}
	case wasm.MiscTableInit:
		elemIdx, err := mustRemap(st, kindElem, imm.Operands[0])
		if err != nil {
			return err
		}
		tableIdx, err := mustRemap(st, wasm.KindTable, imm.Operands[1])
		if err != nil {
			return err
		}
		imm.Operands = []uint32{elemIdx, tableIdx}
	case wasm.MiscElemDrop:
		elemIdx, err := mustRemap(st, kindElem, imm.Operands[0])
		if err != nil {
			return err
		}
		imm.Operands = []uint32{elemIdx}
	case wasm.MiscTableCopy:
		dst, err := mustRemap(st, wasm.KindTable, imm.Operands[0])
		if err != nil {
			return err
		}
		src, err := mustRemap(st, wasm.KindTable, imm.Operands[1])
		if err != nil {
			return err
		}
		imm.Operands = []uint32{dst, src}
	case wasm.MiscTableGrow, wasm.MiscTableSize, wasm.MiscTableFill:
		tableIdx, err := mustRemap(st, wasm.KindTable, imm.Operands[0])
		if err != nil {
			return err
		}
		imm.Operands = []uint32{tableIdx}
	}
	instr.Imm = imm
	return nil
}

// kindData and kindElem are local sentinels: data and element segment
// indices are not importable kinds, but the composer renumbers them
// through the same per-module idxMap mechanism (one fresh index per
// segment, in load order, mirroring how it handles the type space).
const (
	kindData byte = 0xFE
	kindElem byte = 0xFD
)
