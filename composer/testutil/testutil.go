// Package testutil builds minimal wasm.Module values by hand, the way
// the teacher builds module byte literals in its own tests, so
// composer's tests never need a WAT toolchain.
package testutil

import "github.com/composite-rt/composite/wasm"

// FuncType is a small constructor for (params) -> (results) signatures.
func FuncType(params, results []wasm.ValType) wasm.FuncType {
	return wasm.FuncType{Params: params, Results: results}
}

// ExportedFunc builds a module with a single defined function, exported
// under name, implementing the body described by code (already encoded
// instructions, end opcode included).
func ExportedFunc(name string, sig wasm.FuncType, code []byte) *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{sig},
		Funcs: []uint32{0},
		Exports: []wasm.Export{
			{Name: name, Kind: wasm.KindFunc, Idx: 0},
		},
		Code: []wasm.FuncBody{{Code: code}},
	}
}

// ImportingFunc builds a module that imports one function
// (importModule, importName, importSig) and defines+exports a second
// function (exportName, localSig) whose body is code. The import is
// func index 0, the defined function is func index 1 — code may
// therefore use `call 0` to reach the import.
func ImportingFunc(importModule, importName string, importSig wasm.FuncType, exportName string, localSig wasm.FuncType, code []byte) *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{importSig, localSig},
		Imports: []wasm.Import{
			{Module: importModule, Name: importName, Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs: []uint32{1},
		Exports: []wasm.Export{
			{Name: exportName, Kind: wasm.KindFunc, Idx: 1},
		},
		Code: []wasm.FuncBody{{Code: code}},
	}
}

// Encode turns a list of decoded instructions into a function body,
// appending the trailing end opcode callers otherwise have to remember.
func Encode(instrs ...wasm.Instruction) []byte {
	instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpEnd})
	return wasm.EncodeInstructions(instrs)
}
