package cgrf

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/composite-rt/composite/errors"
	"github.com/composite-rt/composite/wit"
)

// rawNode is a bounds-checked view into one node's header and payload,
// located by the offset table built while scanning the buffer once.
type rawNode struct {
	kind    byte
	payload []byte
}

// Decoder holds the parsed header and per-node offset table for one
// buffer, ready for either structural or schema-checked traversal.
type Decoder struct {
	limits Limits
	buf    []byte
	header Header
	nodes  []rawNode
}

// Decode performs a structural decode (no schema) using default limits.
func Decode(buf []byte) (Value, error) {
	return NewDecoder(buf, DefaultLimits()).Decode()
}

// DecodeSchema performs a schema-checked decode using default limits.
func DecodeSchema(buf []byte, t wit.Type, ns *wit.Namespace) (Value, error) {
	return NewDecoder(buf, DefaultLimits()).DecodeSchema(t, ns)
}

// NewDecoder returns a Decoder over buf that enforces limits. It does
// no validation itself: Decode and DecodeSchema each validate the
// header and build the per-node offset table before decoding (spec
// §4.1: "build header+payload slice table for all nodes").
func NewDecoder(buf []byte, limits Limits) *Decoder {
	return &Decoder{limits: limits, buf: buf}
}

func (d *Decoder) parseHeader() error {
	if len(d.buf) > d.limits.MaxBufferSize {
		return errors.LimitExceeded(errors.PhaseDecode, "buffer size", d.limits.MaxBufferSize, len(d.buf))
	}
	if len(d.buf) < HeaderSize {
		return errors.Malformed(errors.PhaseDecode, "buffer shorter than header")
	}
	if string(d.buf[0:4]) != string(Magic[:]) {
		return errors.Malformed(errors.PhaseDecode, "bad magic")
	}
	ver := binary.LittleEndian.Uint16(d.buf[4:6])
	if ver != Version {
		return errors.Malformed(errors.PhaseDecode, "unsupported version")
	}
	flags := binary.LittleEndian.Uint16(d.buf[6:8])
	if flags != 0 {
		// spec §9: any non-zero flag in v1 is an error until a future
		// extension assigns it meaning.
		return errors.Malformed(errors.PhaseDecode, "non-zero flags in v1 buffer")
	}
	nodeCount := binary.LittleEndian.Uint32(d.buf[8:12])
	rootIndex := binary.LittleEndian.Uint32(d.buf[12:16])
	if int(nodeCount) > d.limits.MaxNodes {
		return errors.LimitExceeded(errors.PhaseDecode, "node_count", d.limits.MaxNodes, int(nodeCount))
	}
	d.header = Header{Version: ver, Flags: flags, NodeCount: nodeCount, RootIndex: rootIndex}

	d.nodes = make([]rawNode, 0, nodeCount)
	off := HeaderSize
	for i := uint32(0); i < nodeCount; i++ {
		if off+nodeHeaderSize > len(d.buf) {
			return errors.Malformed(errors.PhaseDecode, "truncated node header")
		}
		kind := d.buf[off]
		payloadLen := binary.LittleEndian.Uint32(d.buf[off+4 : off+8])
		payloadStart := off + nodeHeaderSize
		payloadEnd := payloadStart + int(payloadLen)
		if payloadLen > uint32(d.limits.MaxBufferSize) || payloadEnd > len(d.buf) || payloadEnd < payloadStart {
			return errors.Malformed(errors.PhaseDecode, "truncated or oversized node payload")
		}
		d.nodes = append(d.nodes, rawNode{kind: kind, payload: d.buf[payloadStart:payloadEnd]})
		off = payloadEnd
	}
	if rootIndex >= nodeCount && nodeCount > 0 {
		return errors.OutOfBounds(errors.PhaseDecode, nil, int(rootIndex), int(nodeCount))
	}
	return nil
}

// Decode performs a structural decode: validate header, then DFS from
// the root index, decoding each node by kind (spec §4.1 "Structural
// decode").
func (d *Decoder) Decode() (Value, error) {
	if err := d.parseHeader(); err != nil {
		return nil, err
	}
	if d.header.NodeCount == 0 {
		return nil, errors.Malformed(errors.PhaseDecode, "empty buffer has no root")
	}
	return d.decodeStructural(d.header.RootIndex, 0)
}

func (d *Decoder) node(idx uint32) (rawNode, error) {
	if idx >= uint32(len(d.nodes)) {
		return rawNode{}, errors.OutOfBounds(errors.PhaseDecode, nil, int(idx), len(d.nodes))
	}
	return d.nodes[idx], nil
}

func (d *Decoder) decodeStructural(idx uint32, depth int) (Value, error) {
	if depth > d.limits.MaxRecursionDepth {
		return nil, errors.LimitExceeded(errors.PhaseDecode, "recursion depth", d.limits.MaxRecursionDepth, depth)
	}
	n, err := d.node(idx)
	if err != nil {
		return nil, err
	}
	switch n.kind {
	case KindBool:
		if len(n.payload) != 1 {
			return nil, errors.Malformed(errors.PhaseDecode, "bad bool payload length")
		}
		return Bool(n.payload[0] != 0), nil
	case KindU8:
		if len(n.payload) != 1 {
			return nil, errors.Malformed(errors.PhaseDecode, "bad u8 payload length")
		}
		return U8(n.payload[0]), nil
	case KindS8:
		if len(n.payload) != 1 {
			return nil, errors.Malformed(errors.PhaseDecode, "bad s8 payload length")
		}
		return S8(int8(n.payload[0])), nil
	case KindU16:
		v, err := readFixed(n.payload, 2)
		return U16(v), err
	case KindS16:
		v, err := readFixed(n.payload, 2)
		return S16(int16(v)), err
	case KindU32:
		v, err := readFixed(n.payload, 4)
		return U32(v), err
	case KindS32:
		v, err := readFixed(n.payload, 4)
		return S32(int32(v)), err
	case KindU64:
		v, err := readFixed(n.payload, 8)
		return U64(v), err
	case KindS64:
		v, err := readFixed(n.payload, 8)
		return S64(int64(v)), err
	case KindF32:
		v, err := readFixed(n.payload, 4)
		if err != nil {
			return nil, err
		}
		return F32(math.Float32frombits(uint32(v))), nil
	case KindF64:
		v, err := readFixed(n.payload, 8)
		if err != nil {
			return nil, err
		}
		return F64(math.Float64frombits(v)), nil
	case KindChar:
		v, err := readFixed(n.payload, 4)
		if err != nil {
			return nil, err
		}
		if !utf8.ValidRune(rune(v)) {
			return nil, errors.Malformed(errors.PhaseDecode, "invalid Unicode scalar")
		}
		return Char(rune(v)), nil
	case KindFlags:
		v, err := readFixed(n.payload, 8)
		return Flags(v), err
	case KindString:
		return d.decodeString(n)
	case KindList:
		return d.decodeListStructural(n, depth)
	case KindTuple:
		return d.decodeTupleStructural(n, depth)
	case KindOption:
		return d.decodeOptionStructural(n, depth)
	case KindRecord:
		return d.decodeRecordStructural(n, depth)
	case KindVariant:
		return d.decodeVariantStructural(n, depth)
	default:
		return nil, errors.Malformed(errors.PhaseDecode, "unknown node kind")
	}
}

func readFixed(payload []byte, width int) (uint64, error) {
	if len(payload) != width {
		return 0, errors.Malformed(errors.PhaseDecode, "bad fixed-width payload length")
	}
	switch width {
	case 2:
		return uint64(binary.LittleEndian.Uint16(payload)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(payload)), nil
	case 8:
		return binary.LittleEndian.Uint64(payload), nil
	}
	return 0, errors.Malformed(errors.PhaseDecode, "unsupported fixed width")
}

func (d *Decoder) decodeString(n rawNode) (Value, error) {
	if len(n.payload) < 4 {
		return nil, errors.Malformed(errors.PhaseDecode, "truncated string length")
	}
	l := binary.LittleEndian.Uint32(n.payload[0:4])
	if int(l) > d.limits.MaxStringBytes {
		return nil, errors.LimitExceeded(errors.PhaseDecode, "string length", d.limits.MaxStringBytes, int(l))
	}
	if len(n.payload) != 4+int(l) {
		return nil, errors.Malformed(errors.PhaseDecode, "string payload length mismatch")
	}
	s := n.payload[4:]
	if !utf8.Valid(s) {
		return nil, errors.InvalidUTF8(errors.PhaseDecode, nil, s)
	}
	return String(s), nil
}

func readU32Children(payload []byte, limits Limits) ([]uint32, error) {
	if len(payload) < 4 {
		return nil, errors.Malformed(errors.PhaseDecode, "truncated arity")
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	if int(count) > limits.MaxArity {
		return nil, errors.LimitExceeded(errors.PhaseDecode, "arity", limits.MaxArity, int(count))
	}
	if len(payload) != 4+4*int(count) {
		return nil, errors.Malformed(errors.PhaseDecode, "child index array length mismatch")
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(payload[4+4*i:])
	}
	return out, nil
}

func (d *Decoder) decodeListStructural(n rawNode, depth int) (Value, error) {
	children, err := readU32Children(n.payload, d.limits)
	if err != nil {
		return nil, err
	}
	items := make([]Value, len(children))
	for i, c := range children {
		v, err := d.decodeStructural(c, depth+1)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return List{Items: items}, nil
}

func (d *Decoder) decodeTupleStructural(n rawNode, depth int) (Value, error) {
	children, err := readU32Children(n.payload, d.limits)
	if err != nil {
		return nil, err
	}
	items := make([]Value, len(children))
	for i, c := range children {
		v, err := d.decodeStructural(c, depth+1)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return Tuple{Items: items}, nil
}

func (d *Decoder) decodeOptionStructural(n rawNode, depth int) (Value, error) {
	if len(n.payload) < 1 {
		return nil, errors.Malformed(errors.PhaseDecode, "truncated option")
	}
	has := n.payload[0]
	if has == 0 {
		return Option{}, nil
	}
	if has != 1 {
		return nil, errors.Malformed(errors.PhaseDecode, "invalid option presence flag")
	}
	if len(n.payload) != 5 {
		return nil, errors.Malformed(errors.PhaseDecode, "bad option payload length")
	}
	child := binary.LittleEndian.Uint32(n.payload[1:5])
	v, err := d.decodeStructural(child, depth+1)
	if err != nil {
		return nil, err
	}
	return Option{Inner: v}, nil
}

func (d *Decoder) decodeRecordStructural(n rawNode, depth int) (Value, error) {
	children, err := readU32Children(n.payload, d.limits)
	if err != nil {
		return nil, err
	}
	fields := make([]RecordField, len(children))
	for i, c := range children {
		v, err := d.decodeStructural(c, depth+1)
		if err != nil {
			return nil, err
		}
		fields[i] = RecordField{Value: v}
	}
	return Record{Fields: fields}, nil
}

func (d *Decoder) decodeVariantStructural(n rawNode, depth int) (Value, error) {
	if len(n.payload) < 5 {
		return nil, errors.Malformed(errors.PhaseDecode, "truncated variant")
	}
	tag := binary.LittleEndian.Uint32(n.payload[0:4])
	has := n.payload[4]
	if has == 0 {
		if len(n.payload) != 5 {
			return nil, errors.Malformed(errors.PhaseDecode, "bad variant payload length")
		}
		return Variant{Tag: tag}, nil
	}
	if has != 1 {
		return nil, errors.Malformed(errors.PhaseDecode, "invalid variant presence flag")
	}
	if len(n.payload) != 9 {
		return nil, errors.Malformed(errors.PhaseDecode, "bad variant payload length")
	}
	child := binary.LittleEndian.Uint32(n.payload[5:9])
	v, err := d.decodeStructural(child, depth+1)
	if err != nil {
		return nil, err
	}
	return Variant{Tag: tag, Payload: v}, nil
}
