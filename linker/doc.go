// Package linker resolves a guest module's imports against a tree of
// host-defined functions (spec §3.4, §4.5).
//
// Namespaces mirror WIT+ interface paths ("myapp:api/v1", optionally
// versioned as "myapp:api/v1@0.2.0"). Linker.Resolve, with semver
// matching enabled, lets a namespace registered at X.Y.Z answer a
// lookup for X.B.C when the major versions match and Y.Z is at least
// B.C. Linker.Instantiate does no such matching: it registers each
// namespace as a wazero host module named by its exact full path,
// version included, so a guest import binds only to a module of
// exactly that name.
//
// A host function is registered as a HostFn: either Raw, a function
// with an explicit core wasm signature the caller controls completely,
// or Typed, a Value-to-Value closure that is automatically wrapped to
// the uniform (in_ptr, in_len, out_ptr, out_cap) -> i32 calling
// convention every typed host/guest boundary crossing uses.
package linker
