package runtime

import "github.com/composite-rt/composite/wasm"

// echoModule builds a module exporting one function under the uniform
// calling convention (in_ptr, in_len, out_ptr, out_cap) -> i32 that
// copies in_len bytes from in_ptr to out_ptr and returns in_len. It
// declares its own one-page memory, large enough for the BumpAllocator
// and buffer tests to grow as needed.
func echoModule(exportName string) *wasm.Module {
	sig := wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	code := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 2}}, // dest
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}}, // src
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 1}}, // len
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryCopy, Operands: []uint32{0, 0}}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 1}},
		{Opcode: wasm.OpEnd},
	})
	return &wasm.Module{
		Types:    []wasm.FuncType{sig},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: exportName, Kind: wasm.KindFunc, Idx: 0},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Code: []wasm.FuncBody{{Code: code}},
	}
}

// negativeModule exports a function under the uniform calling
// convention that ignores its arguments and always returns -1, to
// exercise the "guest reports failure" path of CallWithValue.
func negativeModule(exportName string) *wasm.Module {
	sig := wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	code := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: -1}},
		{Opcode: wasm.OpEnd},
	})
	return &wasm.Module{
		Types:    []wasm.FuncType{sig},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: exportName, Kind: wasm.KindFunc, Idx: 0},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Code: []wasm.FuncBody{{Code: code}},
	}
}

// loggingModule exports run(), which calls the imported host.log with
// a fixed string baked into a data segment, plus the uniform
// (in_ptr,in_len,out_ptr,out_cap)->i32 echo export so the fixture can
// also be driven through CallWithValue.
func loggingModule(message string) *wasm.Module {
	logSig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}}
	runSig := wasm.FuncType{}
	echoSig := wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	runCode := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: int32(len(message))}},
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 0}},
		{Opcode: wasm.OpEnd},
	})
	echoCode := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 2}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 1}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryCopy, Operands: []uint32{0, 0}}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 1}},
		{Opcode: wasm.OpEnd},
	})
	return &wasm.Module{
		Types: []wasm.FuncType{logSig, runSig, echoSig},
		Imports: []wasm.Import{
			{Module: "host", Name: "log", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1, 2},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "run", Kind: wasm.KindFunc, Idx: 1},
			{Name: "echo", Kind: wasm.KindFunc, Idx: 2},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Data: []wasm.DataSegment{
			{Flags: 0, MemIdx: 0, Offset: []byte{wasm.OpI32Const, 0, wasm.OpEnd}, Init: []byte(message)},
		},
		Code: []wasm.FuncBody{{Code: runCode}, {Code: echoCode}},
	}
}

// allocatingModule exports alloc_and_echo(size) -> ptr, driving
// host.alloc directly so tests can confirm the bump allocator hands
// out distinct, growing regions.
func allocatingModule() *wasm.Module {
	allocSig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	wrapperSig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	code := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 0}},
		{Opcode: wasm.OpEnd},
	})
	return &wasm.Module{
		Types: []wasm.FuncType{allocSig, wrapperSig},
		Imports: []wasm.Import{
			{Module: "host", Name: "alloc", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "alloc_and_echo", Kind: wasm.KindFunc, Idx: 1},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Code: []wasm.FuncBody{{Code: code}},
	}
}
