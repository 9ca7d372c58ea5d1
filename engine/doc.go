// Package engine wraps wazero to compile, link, and instantiate plain
// core WebAssembly modules (spec §3.5, C4). It has no Component Model
// awareness: a Module is a parsed core module's compiled form, an
// Instance is one instantiation of it with its imports resolved
// against a linker.Linker, and Memory is a thin bounds-checked view
// over that instance's linear memory satisfying the root composite
// package's Memory and MemorySizer interfaces.
package engine
