package cgrf

import (
	"encoding/binary"
	"fmt"

	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/wit"
)

// schemaVisit keys the memo table used to terminate schema decode on
// cycles (spec §4.1: "Memoize visited (node_index, Type) pairs to
// terminate on cycles"). Buffers the encoder writes are acyclic - every
// child index is strictly less than its parent's - but the decoder does
// not check that ordering. Instead each pair is marked in progress
// while it is decoded, so a revisit before it completes (a crafted
// buffer whose indices loop back, or an alias chain that resolves back
// to itself at the same node) is reported as Malformed. A recursive
// Named type (e.g. a recursive variant) over an acyclic buffer ends
// where the buffer does, since every level consumes a child node.
type schemaVisit struct {
	idx uint32
	typ string
}

func typeKey(t wit.Type) string {
	switch tt := t.(type) {
	case wit.List:
		return "list<" + typeKey(tt.Elem) + ">"
	case wit.Option:
		return "option<" + typeKey(tt.Elem) + ">"
	case wit.Result:
		return "result<" + typeKeyOrUnit(tt.Ok) + "," + typeKeyOrUnit(tt.Err) + ">"
	case wit.Tuple:
		s := "tuple<"
		for i, e := range tt.Elems {
			if i > 0 {
				s += ","
			}
			s += typeKey(e)
		}
		return s + ">"
	case wit.Named:
		return "named:" + tt.Name
	case wit.SelfRef:
		return "named:" + tt.Of
	default:
		return fmt.Sprintf("%T", t)
	}
}

func typeKeyOrUnit(t wit.Type) string {
	if t == nil {
		return "unit"
	}
	return typeKey(t)
}

func kindName(k byte) string {
	switch k {
	case KindBool:
		return "bool"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindS8:
		return "s8"
	case KindS16:
		return "s16"
	case KindS32:
		return "s32"
	case KindS64:
		return "s64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindChar:
		return "char"
	case KindFlags:
		return "flags"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindOption:
		return "option"
	case KindRecord:
		return "record"
	case KindVariant:
		return "variant"
	default:
		return fmt.Sprintf("kind(0x%02x)", k)
	}
}

// DecodeSchema decodes the buffer against t, checking (kind, Type)
// consistency at every node (spec §4.1 "Schema decode").
func (d *Decoder) DecodeSchema(t wit.Type, ns *wit.Namespace) (Value, error) {
	if err := d.parseHeader(); err != nil {
		return nil, err
	}
	if d.header.NodeCount == 0 {
		return nil, errors.Malformed(errors.PhaseDecode, "empty buffer has no root")
	}
	memo := make(map[schemaVisit]Value)
	return d.decodeSchemaNode(d.header.RootIndex, t, ns, 0, memo)
}

func mismatch(n rawNode, t wit.Type) error {
	return errors.TypeMismatch(errors.PhaseDecode, nil, kindName(n.kind), typeKey(t))
}

func (d *Decoder) decodeSchemaNode(idx uint32, t wit.Type, ns *wit.Namespace, depth int, memo map[schemaVisit]Value) (Value, error) {
	if depth > d.limits.MaxRecursionDepth {
		return nil, errors.LimitExceeded(errors.PhaseDecode, "recursion depth", d.limits.MaxRecursionDepth, depth)
	}
	key := schemaVisit{idx: idx, typ: typeKey(t)}
	if v, ok := memo[key]; ok {
		if v == nil {
			return nil, errors.Malformed(errors.PhaseDecode, fmt.Sprintf("cyclic reference to node %d as %s", idx, key.typ))
		}
		return v, nil
	}
	// A nil entry marks the pair as in progress; it is replaced by the
	// decoded value, or removed if this visit stores none.
	memo[key] = nil
	defer func() {
		if memo[key] == nil {
			delete(memo, key)
		}
	}()
	n, err := d.node(idx)
	if err != nil {
		return nil, err
	}

	switch tt := t.(type) {
	case wit.Bool:
		if n.kind != KindBool {
			return nil, mismatch(n, t)
		}
		return d.decodeStructural(idx, depth)
	case wit.U8, wit.U16, wit.U32, wit.U64, wit.S8, wit.S16, wit.S32, wit.S64,
		wit.F32, wit.F64, wit.Char, wit.String:
		if n.kind != primitiveKind(t) {
			return nil, mismatch(n, t)
		}
		return d.decodeStructural(idx, depth)
	case wit.List:
		if n.kind != KindList {
			return nil, mismatch(n, t)
		}
		children, err := readU32Children(n.payload, d.limits)
		if err != nil {
			return nil, err
		}
		items := make([]Value, len(children))
		for i, c := range children {
			v, err := d.decodeSchemaNode(c, tt.Elem, ns, depth+1, memo)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		v := List{Elem: tt.Elem, Items: items}
		memo[key] = v
		return v, nil
	case wit.Tuple:
		if n.kind != KindTuple {
			return nil, mismatch(n, t)
		}
		children, err := readU32Children(n.payload, d.limits)
		if err != nil {
			return nil, err
		}
		if len(children) != len(tt.Elems) {
			return nil, errors.Malformed(errors.PhaseDecode, "tuple arity mismatch with schema")
		}
		items := make([]Value, len(children))
		for i, c := range children {
			v, err := d.decodeSchemaNode(c, tt.Elems[i], ns, depth+1, memo)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		v := Tuple{Items: items}
		memo[key] = v
		return v, nil
	case wit.Option:
		if n.kind != KindOption {
			return nil, mismatch(n, t)
		}
		if len(n.payload) < 1 {
			return nil, errors.Malformed(errors.PhaseDecode, "truncated option")
		}
		if n.payload[0] == 0 {
			v := Option{Elem: tt.Elem}
			memo[key] = v
			return v, nil
		}
		if n.payload[0] != 1 || len(n.payload) != 5 {
			return nil, errors.Malformed(errors.PhaseDecode, "bad option payload")
		}
		child := binary.LittleEndian.Uint32(n.payload[1:5])
		inner, err := d.decodeSchemaNode(child, tt.Elem, ns, depth+1, memo)
		if err != nil {
			return nil, err
		}
		v := Option{Elem: tt.Elem, Inner: inner}
		memo[key] = v
		return v, nil
	case wit.Result:
		if n.kind != KindVariant {
			return nil, mismatch(n, t)
		}
		return d.decodeSchemaResult(n, tt, ns, depth, memo, key)
	case wit.Named:
		def, ok := ns.Lookup(tt.Name)
		if !ok {
			return nil, errors.UnresolvedName(errors.PhaseDecode, tt.Name)
		}
		return d.decodeSchemaTypeDef(idx, n, def, ns, depth, memo, key)
	case wit.SelfRef:
		def, ok := ns.Lookup(tt.Of)
		if !ok {
			return nil, errors.UnresolvedName(errors.PhaseDecode, tt.Of)
		}
		return d.decodeSchemaTypeDef(idx, n, def, ns, depth, memo, key)
	default:
		return nil, errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("unknown wit.Type %T", t))
	}
}

func primitiveKind(t wit.Type) byte {
	switch t.(type) {
	case wit.Bool:
		return KindBool
	case wit.U8:
		return KindU8
	case wit.U16:
		return KindU16
	case wit.U32:
		return KindU32
	case wit.U64:
		return KindU64
	case wit.S8:
		return KindS8
	case wit.S16:
		return KindS16
	case wit.S32:
		return KindS32
	case wit.S64:
		return KindS64
	case wit.F32:
		return KindF32
	case wit.F64:
		return KindF64
	case wit.Char:
		return KindChar
	case wit.String:
		return KindString
	default:
		return 0
	}
}

// decodeSchemaResult decodes a node against a wit.Result, which shares
// the Variant wire encoding: tag 0 is Ok, tag 1 is Err, a nil Ok/Err
// type means that case carries no payload.
func (d *Decoder) decodeSchemaResult(n rawNode, r wit.Result, ns *wit.Namespace, depth int, memo map[schemaVisit]Value, key schemaVisit) (Value, error) {
	if len(n.payload) < 5 {
		return nil, errors.Malformed(errors.PhaseDecode, "truncated result")
	}
	tag := binary.LittleEndian.Uint32(n.payload[0:4])
	has := n.payload[4]
	if tag > 1 {
		return nil, errors.InvalidDiscriminant(errors.PhaseDecode, nil, tag, 1)
	}
	var caseType wit.Type
	if tag == 0 {
		caseType = r.Ok
	} else {
		caseType = r.Err
	}
	if has == 0 {
		if caseType != nil {
			return nil, errors.Malformed(errors.PhaseDecode, "result case missing required payload")
		}
		v := Variant{Tag: tag}
		memo[key] = v
		return v, nil
	}
	if caseType == nil {
		return nil, errors.Malformed(errors.PhaseDecode, "result case has unexpected payload")
	}
	if len(n.payload) != 9 {
		return nil, errors.Malformed(errors.PhaseDecode, "bad result payload length")
	}
	child := binary.LittleEndian.Uint32(n.payload[5:9])
	inner, err := d.decodeSchemaNode(child, caseType, ns, depth+1, memo)
	if err != nil {
		return nil, err
	}
	v := Variant{Tag: tag, Payload: inner}
	memo[key] = v
	return v, nil
}

// decodeSchemaTypeDef unfolds a Named/SelfRef reference against the
// node it actually points at, dispatching on the resolved TypeDef.
func (d *Decoder) decodeSchemaTypeDef(idx uint32, n rawNode, def wit.TypeDef, ns *wit.Namespace, depth int, memo map[schemaVisit]Value, key schemaVisit) (Value, error) {
	switch dd := def.(type) {
	case *wit.RecordDef:
		if n.kind != KindRecord {
			return nil, errors.TypeMismatch(errors.PhaseDecode, nil, kindName(n.kind), dd.DefName())
		}
		children, err := readU32Children(n.payload, d.limits)
		if err != nil {
			return nil, err
		}
		if len(children) != len(dd.Fields) {
			return nil, errors.Malformed(errors.PhaseDecode, "record field count mismatch with schema")
		}
		fields := make([]RecordField, len(children))
		for i, c := range children {
			v, err := d.decodeSchemaNode(c, dd.Fields[i].Type, ns, depth+1, memo)
			if err != nil {
				return nil, err
			}
			fields[i] = RecordField{Name: dd.Fields[i].Name, Value: v}
		}
		v := Record{Fields: fields}
		memo[key] = v
		return v, nil

	case *wit.VariantDef:
		if n.kind != KindVariant {
			return nil, errors.TypeMismatch(errors.PhaseDecode, nil, kindName(n.kind), dd.DefName())
		}
		if len(n.payload) < 5 {
			return nil, errors.Malformed(errors.PhaseDecode, "truncated variant")
		}
		tag := binary.LittleEndian.Uint32(n.payload[0:4])
		if int(tag) >= len(dd.Cases) {
			return nil, errors.InvalidDiscriminant(errors.PhaseDecode, nil, tag, uint32(len(dd.Cases)-1))
		}
		has := n.payload[4]
		c := dd.Cases[tag]
		if has == 0 {
			if c.Payload != nil {
				return nil, errors.Malformed(errors.PhaseDecode, "variant case missing required payload")
			}
			v := Variant{Tag: tag}
			memo[key] = v
			return v, nil
		}
		if c.Payload == nil {
			return nil, errors.Malformed(errors.PhaseDecode, "variant case has unexpected payload")
		}
		if len(n.payload) != 9 {
			return nil, errors.Malformed(errors.PhaseDecode, "bad variant payload length")
		}
		child := binary.LittleEndian.Uint32(n.payload[5:9])
		inner, err := d.decodeSchemaNode(child, c.Payload, ns, depth+1, memo)
		if err != nil {
			return nil, err
		}
		v := Variant{Tag: tag, Payload: inner}
		memo[key] = v
		return v, nil

	case *wit.EnumDef:
		// enums share the Variant wire encoding with no case ever
		// carrying a payload.
		if n.kind != KindVariant {
			return nil, errors.TypeMismatch(errors.PhaseDecode, nil, kindName(n.kind), dd.DefName())
		}
		if len(n.payload) != 5 {
			return nil, errors.Malformed(errors.PhaseDecode, "bad enum payload length")
		}
		tag := binary.LittleEndian.Uint32(n.payload[0:4])
		if n.payload[4] != 0 {
			return nil, errors.Malformed(errors.PhaseDecode, "enum case carries unexpected payload")
		}
		if int(tag) >= len(dd.Cases) {
			return nil, errors.InvalidDiscriminant(errors.PhaseDecode, nil, tag, uint32(len(dd.Cases)-1))
		}
		v := Variant{Tag: tag}
		memo[key] = v
		return v, nil

	case *wit.FlagsDef:
		if n.kind != KindFlags {
			return nil, errors.TypeMismatch(errors.PhaseDecode, nil, kindName(n.kind), dd.DefName())
		}
		if len(dd.Names) > 64 {
			return nil, errors.LimitExceeded(errors.PhaseDecode, "flags count", 64, len(dd.Names))
		}
		raw, err := readFixed(n.payload, 8)
		if err != nil {
			return nil, err
		}
		if len(dd.Names) < 64 && raw>>uint(len(dd.Names)) != 0 {
			return nil, errors.Malformed(errors.PhaseDecode, "flags value sets undeclared bits")
		}
		v := Flags(raw)
		memo[key] = v
		return v, nil

	case *wit.AliasDef:
		// aliases are transparent: they consume no node of their own,
		// just re-check the same node against the target type.
		return d.decodeSchemaNode(idx, dd.Target, ns, depth, memo)

	default:
		return nil, errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("unknown wit.TypeDef %T", def))
	}
}
