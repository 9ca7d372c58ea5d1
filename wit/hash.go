package wit

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// Hash is a 256-bit SHA-256 Merkle hash, per spec §4.3.
type Hash [32]byte

// Tag bytes identify each structural shape being hashed. These are the
// "fixed, well-known hashes" / tag prefixes the spec calls for; they are
// arbitrary but stable single bytes, never exposed outside this package.
const (
	tagBool byte = iota + 1
	tagU8
	tagU16
	tagU32
	tagU64
	tagS8
	tagS16
	tagS32
	tagS64
	tagF32
	tagF64
	tagChar
	tagString
	tagList
	tagOption
	tagResult
	tagTuple
	tagRecord
	tagVariant
	tagEnum
	tagFlags
	tagFunc
	tagInterface
	tagSelfRef
	tagNone
	tagSome
)

// selfRefSentinel is HASH_SELF_REF from spec §4.3/§9: a fixed value used
// at each back-edge to a currently-being-hashed definition, so hashing a
// strongly-connected component terminates and depends only on its
// unfolding to one level.
var selfRefSentinel = sha256.Sum256([]byte{tagSelfRef})

func hashPrimitive(tag byte) Hash {
	return sha256.Sum256([]byte{tag})
}

// hasher computes structural hashes for a fixed Namespace, tracking the
// stack of type names currently being unfolded to detect back-edges.
type hasher struct {
	ns     *Namespace
	active map[string]bool
	memo   map[string]Hash
}

func newHasher(ns *Namespace) *hasher {
	return &hasher{ns: ns, active: make(map[string]bool), memo: make(map[string]Hash)}
}

// HashType computes the structural hash of t against the definitions in
// ns (ns may be nil if t contains no Named references).
func HashType(t Type, ns *Namespace) Hash {
	return newHasher(ns).hashType(t)
}

// HashTypeDef computes the structural hash of a standalone TypeDef,
// excluding its name (spec §4.3: "Type name is excluded").
func HashTypeDef(d TypeDef, ns *Namespace) Hash {
	h := newHasher(ns)
	h.active[d.DefName()] = true
	return h.hashTypeDef(d)
}

func (h *hasher) hashType(t Type) Hash {
	switch v := t.(type) {
	case Bool:
		return hashPrimitive(tagBool)
	case U8:
		return hashPrimitive(tagU8)
	case U16:
		return hashPrimitive(tagU16)
	case U32:
		return hashPrimitive(tagU32)
	case U64:
		return hashPrimitive(tagU64)
	case S8:
		return hashPrimitive(tagS8)
	case S16:
		return hashPrimitive(tagS16)
	case S32:
		return hashPrimitive(tagS32)
	case S64:
		return hashPrimitive(tagS64)
	case F32:
		return hashPrimitive(tagF32)
	case F64:
		return hashPrimitive(tagF64)
	case Char:
		return hashPrimitive(tagChar)
	case String:
		return hashPrimitive(tagString)
	case List:
		return combine(tagList, h.hashType(v.Elem))
	case Option:
		return combine(tagOption, h.hashType(v.Elem))
	case Result:
		var okH, errH Hash
		okTag, errTag := byte(tagNone), byte(tagNone)
		if v.Ok != nil {
			okH, okTag = h.hashType(v.Ok), tagSome
		}
		if v.Err != nil {
			errH, errTag = h.hashType(v.Err), tagSome
		}
		buf := []byte{tagResult, okTag}
		buf = append(buf, okH[:]...)
		buf = append(buf, errTag)
		buf = append(buf, errH[:]...)
		return sha256.Sum256(buf)
	case Tuple:
		buf := []byte{tagTuple}
		buf = appendU32(buf, uint32(len(v.Elems)))
		for _, e := range v.Elems {
			eh := h.hashType(e)
			buf = append(buf, eh[:]...)
		}
		return sha256.Sum256(buf)
	case Named:
		if h.active[v.Name] {
			return selfRefSentinel
		}
		def, ok := h.ns.Lookup(v.Name)
		if !ok {
			return selfRefSentinel
		}
		if hh, ok := h.memo[v.Name]; ok {
			return hh
		}
		h.active[v.Name] = true
		hh := h.hashTypeDef(def)
		delete(h.active, v.Name)
		h.memo[v.Name] = hh
		return hh
	case SelfRef:
		return selfRefSentinel
	default:
		return Hash{}
	}
}

func (h *hasher) hashTypeDef(d TypeDef) Hash {
	switch v := d.(type) {
	case *RecordDef:
		type kv struct {
			name string
			h    Hash
		}
		fields := make([]kv, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = kv{f.Name, h.hashType(f.Type)}
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
		buf := []byte{tagRecord}
		buf = appendU32(buf, uint32(len(fields)))
		for _, f := range fields {
			buf = appendNamedHash(buf, f.name, f.h)
		}
		return sha256.Sum256(buf)
	case *VariantDef:
		type kv struct {
			name string
			some bool
			h    Hash
		}
		cases := make([]kv, len(v.Cases))
		for i, c := range v.Cases {
			var ch Hash
			some := c.Payload != nil
			if some {
				ch = h.hashType(c.Payload)
			}
			cases[i] = kv{c.Name, some, ch}
		}
		sort.Slice(cases, func(i, j int) bool { return cases[i].name < cases[j].name })
		buf := []byte{tagVariant}
		buf = appendU32(buf, uint32(len(cases)))
		for _, c := range cases {
			tag := byte(tagNone)
			if c.some {
				tag = tagSome
			}
			buf = appendU32(buf, uint32(len(c.name)))
			buf = append(buf, c.name...)
			buf = append(buf, tag)
			buf = append(buf, c.h[:]...)
		}
		return sha256.Sum256(buf)
	case *EnumDef:
		names := append([]string(nil), v.Cases...)
		sort.Strings(names)
		buf := []byte{tagEnum}
		buf = appendU32(buf, uint32(len(names)))
		for _, n := range names {
			buf = appendU32(buf, uint32(len(n)))
			buf = append(buf, n...)
		}
		return sha256.Sum256(buf)
	case *FlagsDef:
		names := append([]string(nil), v.Names...)
		sort.Strings(names)
		buf := []byte{tagFlags}
		buf = appendU32(buf, uint32(len(names)))
		for _, n := range names {
			buf = appendU32(buf, uint32(len(n)))
			buf = append(buf, n...)
		}
		return sha256.Sum256(buf)
	case *AliasDef:
		return h.hashType(v.Target)
	default:
		return Hash{}
	}
}

// HashFunc hashes a function signature: parameter types in positional
// order, result type, with parameter names excluded (spec §4.3).
func HashFunc(f *FuncDecl, ns *Namespace) Hash {
	h := newHasher(ns)
	buf := []byte{tagFunc}
	buf = appendU32(buf, uint32(len(f.Params)))
	for _, p := range f.Params {
		ph := h.hashType(p.Type)
		buf = append(buf, ph[:]...)
	}
	if f.Result != nil {
		rh := h.hashType(f.Result)
		buf = append(buf, tagSome)
		buf = append(buf, rh[:]...)
	} else {
		buf = append(buf, tagNone)
	}
	return sha256.Sum256(buf)
}

// HashInterface hashes an interface binding: sha256(TAG_INTERFACE ‖
// interface_name ‖ sorted_type_bindings ‖ sorted_func_bindings). Binding
// names ARE included (spec §4.3), unlike the structural type hashes they
// reference.
func HashInterface(iface *Interface, ns *Namespace) Hash {
	type binding struct {
		name string
		h    Hash
	}

	typeBindings := make([]binding, len(iface.Types))
	for i, d := range iface.Types {
		typeBindings[i] = binding{d.DefName(), HashTypeDef(d, ns)}
	}
	sort.Slice(typeBindings, func(i, j int) bool { return typeBindings[i].name < typeBindings[j].name })

	funcBindings := make([]binding, len(iface.Funcs))
	for i := range iface.Funcs {
		funcBindings[i] = binding{iface.Funcs[i].Name, HashFunc(&iface.Funcs[i], ns)}
	}
	sort.Slice(funcBindings, func(i, j int) bool { return funcBindings[i].name < funcBindings[j].name })

	buf := []byte{tagInterface}
	buf = appendU32(buf, uint32(len(iface.Name)))
	buf = append(buf, iface.Name...)
	buf = appendU32(buf, uint32(len(typeBindings)))
	for _, b := range typeBindings {
		buf = appendNamedHash(buf, b.name, b.h)
	}
	buf = appendU32(buf, uint32(len(funcBindings)))
	for _, b := range funcBindings {
		buf = appendNamedHash(buf, b.name, b.h)
	}
	return sha256.Sum256(buf)
}

func combine(tag byte, h Hash) Hash {
	buf := make([]byte, 0, 1+len(h))
	buf = append(buf, tag)
	buf = append(buf, h[:]...)
	return sha256.Sum256(buf)
}

func appendU32(buf []byte, n uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], n)
	return append(buf, tmp[:]...)
}

func appendNamedHash(buf []byte, name string, h Hash) []byte {
	buf = appendU32(buf, uint32(len(name)))
	buf = append(buf, name...)
	buf = append(buf, h[:]...)
	return buf
}
