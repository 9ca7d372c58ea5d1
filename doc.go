// Package composite provides a WebAssembly package runtime with first-class
// support for recursive and mutually recursive value types crossing the
// host/guest boundary.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	composite/       Root package with core Memory and Allocator interfaces
//	├── cgrf/        Graph-encoded arena codec (CGRF) for Value trees
//	├── wit/         WIT+ parser, type system, and interface hasher
//	├── engine/      Engine abstraction + wazero backend
//	├── linker/      Host linker: namespaced host functions, calling convention
//	├── composer/    Static module composer (merges core modules)
//	├── wasm/        Core WASM binary manipulation primitives
//	├── errors/      Structured error types for debugging
//	└── runtime/     High-level façade tying engine+linker+codec together
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.LoadModule(ctx, "greeter", wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	result, err := inst.CallWithValue(ctx, "greet", cgrf.String("World"))
//
// # Value Model
//
// Every value crossing the host/guest boundary is a cgrf.Value: bool,
// integers (u8-u64, s8-s64), floats, char, string, list, tuple, option,
// record, variant, flags. Recursive value types (e.g. an s-expression
// variant whose payload contains a list of itself) are supported natively
// by both the codec and the WIT+ schema language.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is NOT
// thread-safe: it holds no lock, and every CallWithValue on one
// Instance uses the same store, memory view, and fixed input/output
// buffer region, so concurrent calls on one Instance are not
// serialized.
package composite
