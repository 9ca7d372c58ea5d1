// Package runtime is the high-level façade tying the engine, linker,
// and CGRF codec together (spec §4.7, C7).
//
// A Runtime owns one engine.Engine and one linker.Linker. LoadModule
// compiles a core WebAssembly module against that engine; Instantiate
// resolves its imports against the linker and returns an Instance.
// Instance.CallWithValue is the primary entry point: it encodes a
// cgrf.Value, writes it into the guest's input buffer, invokes the
// exported function under the uniform (in_ptr, in_len, out_ptr,
// out_cap) -> i32 convention, and decodes the result.
//
// Every Instance gets the built-in host.log and host.alloc guest
// imports registered automatically (spec §6): host.log appends to a
// per-instance log the embedder can read with Instance.Logs (a
// snapshot; reading removes nothing), and
// host.alloc serves guest-side scratch allocations from a bump
// allocator over the instance's own linear memory.
package runtime
