// Package composer implements the static module composer (C6): it
// takes N named core WebAssembly modules, already decoded into
// wasm.Module values, classifies each import as
// wired (satisfied by another loaded module's export) or external
// (kept as an import of the merged module), renumbers every index
// space in two phases, rewrites every instruction that carries an
// index, and emits one merged module with a chosen set of exports.
//
// It is built directly on the wasm package's binary codec
// (wasm.Module, wasm.Instruction, wasm.DecodeInstructions,
// wasm.EncodeInstructions) rather than re-parsing bytes itself.
package composer
