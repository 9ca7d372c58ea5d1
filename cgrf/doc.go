// Package cgrf implements the Composite GRaph Format: a flat,
// schema-aware graph buffer used for every Value that crosses the
// host/guest boundary (spec §3.3, §4.1).
//
// A CGRF buffer is a fixed header followed by a node array; node
// children are referenced by u32 index into that array rather than by
// byte offset, which is what lets the format represent cyclic and
// deeply recursive value shapes (an s-expression variant whose payload
// contains a list of itself, for instance) without inlining.
//
// Encode walks a Value tree bottom-up, emitting each node once the
// naive way (no subtree deduplication, which the spec explicitly
// permits); Decode walks the buffer top-down from the header's root
// index, either structurally (kind-only) or against a wit.Type schema
// (kind-and-type, memoized per (node, type) pair to terminate on
// cycles).
//
// Every failure surfaces as a single *errors.Error from the shared
// errors package - the spec's single-AbiError-kind-with-sub-reasons
// taxonomy (§4.1, §7), expressed through the ambient error type rather
// than a parallel one. Most failures carry Kind KindMalformed,
// KindTypeMismatch, or KindLimitExceeded; a few carry a more specific
// Kind: a root or child index past the node array is KindOutOfBounds,
// a variant, enum or result tag out of range is KindInvalidVariant, a
// Named type missing from the namespace is KindUnresolvedName, an
// unknown wit.Type or TypeDef is KindUnsupported, and a Value of
// unknown kind given to Encode is KindInvalidInput.
package cgrf
