package cgrf

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/composite-rt/composite/errors"
)

// Encoder builds a CGRF buffer from a Value tree. Encoding is a
// topological construction (spec §4.1): each node is appended to a
// growing arena only after all of its children have been appended, so
// every child reference is always a strictly smaller index than its
// parent's. The root is therefore always the last node emitted.
//
// This is the conformant naive encoder: it emits a fresh node per
// occurrence and never deduplicates shared subtrees, which the spec
// explicitly allows (§4.1 "Shared subtrees MAY be deduplicated... a
// naive encoder... is conformant").
type Encoder struct {
	limits Limits
	nodes  [][]byte
	size   int
}

// NewEncoder creates an Encoder with the given limits.
func NewEncoder(limits Limits) *Encoder {
	return &Encoder{limits: limits, nodes: make([][]byte, 0, 16)}
}

// Encode serializes v into a complete CGRF buffer using default limits.
func Encode(v Value) ([]byte, error) {
	return NewEncoder(DefaultLimits()).Encode(v)
}

// Encode serializes v into a complete CGRF buffer.
func (e *Encoder) Encode(v Value) ([]byte, error) {
	root, err := e.emit(v, 0)
	if err != nil {
		return nil, err
	}

	header := make([]byte, HeaderSize)
	copy(header[0:4], Magic[:])
	binary.LittleEndian.PutUint16(header[4:6], Version)
	binary.LittleEndian.PutUint16(header[6:8], 0) // flags: reserved, must be 0 in v1
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(e.nodes)))
	binary.LittleEndian.PutUint32(header[12:16], root)

	total := len(header) + e.size
	if total > e.limits.MaxBufferSize {
		return nil, errors.LimitExceeded(errors.PhaseEncode, "buffer size", e.limits.MaxBufferSize, total)
	}

	buf := make([]byte, 0, total)
	buf = append(buf, header...)
	for _, n := range e.nodes {
		buf = append(buf, n...)
	}
	return buf, nil
}

// append appends a finished node (header+payload) to the arena and
// returns its index, enforcing the node-count and buffer-size limits.
func (e *Encoder) append(kind byte, payload []byte) (uint32, error) {
	if len(e.nodes) >= e.limits.MaxNodes {
		return 0, errors.LimitExceeded(errors.PhaseEncode, "node_count", e.limits.MaxNodes, len(e.nodes)+1)
	}
	node := make([]byte, nodeHeaderSize+len(payload))
	node[0] = kind
	node[1] = 0 // flags
	binary.LittleEndian.PutUint16(node[2:4], 0)
	binary.LittleEndian.PutUint32(node[4:8], uint32(len(payload)))
	copy(node[8:], payload)

	idx := uint32(len(e.nodes))
	e.nodes = append(e.nodes, node)
	e.size += len(node)
	return idx, nil
}

func (e *Encoder) emit(v Value, depth int) (uint32, error) {
	if depth > e.limits.MaxRecursionDepth {
		return 0, errors.LimitExceeded(errors.PhaseEncode, "recursion depth", e.limits.MaxRecursionDepth, depth)
	}

	switch val := v.(type) {
	case Bool:
		b := byte(0)
		if val {
			b = 1
		}
		return e.append(KindBool, []byte{b})
	case U8:
		return e.append(KindU8, []byte{byte(val)})
	case U16:
		return e.appendU(KindU16, 2, uint64(val))
	case U32:
		return e.appendU(KindU32, 4, uint64(val))
	case U64:
		return e.appendU(KindU64, 8, uint64(val))
	case S8:
		return e.append(KindS8, []byte{byte(val)})
	case S16:
		return e.appendU(KindS16, 2, uint64(uint16(val)))
	case S32:
		return e.appendU(KindS32, 4, uint64(uint32(val)))
	case S64:
		return e.appendU(KindS64, 8, uint64(val))
	case F32:
		return e.appendU(KindF32, 4, uint64(math.Float32bits(float32(val))))
	case F64:
		return e.appendU(KindF64, 8, math.Float64bits(float64(val)))
	case Char:
		return e.appendU(KindChar, 4, uint64(uint32(val)))
	case Flags:
		return e.appendU(KindFlags, 8, uint64(val))
	case String:
		return e.emitString(string(val))
	case List:
		return e.emitList(val, depth)
	case Tuple:
		return e.emitTuple(val, depth)
	case Option:
		return e.emitOption(val, depth)
	case Record:
		return e.emitRecord(val, depth)
	case Variant:
		return e.emitVariant(val, depth)
	default:
		return 0, errors.InvalidInput(errors.PhaseEncode, "unknown Value kind")
	}
}

func (e *Encoder) appendU(kind byte, width int, v uint64) (uint32, error) {
	buf := make([]byte, width)
	switch width {
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	}
	return e.append(kind, buf)
}

func (e *Encoder) emitString(s string) (uint32, error) {
	if !utf8.ValidString(s) {
		return 0, errors.InvalidUTF8(errors.PhaseEncode, nil, []byte(s))
	}
	if len(s) > e.limits.MaxStringBytes {
		return 0, errors.LimitExceeded(errors.PhaseEncode, "string length", e.limits.MaxStringBytes, len(s))
	}
	payload := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(s)))
	copy(payload[4:], s)
	return e.append(KindString, payload)
}

func (e *Encoder) emitList(v List, depth int) (uint32, error) {
	if len(v.Items) > e.limits.MaxArity {
		return 0, errors.LimitExceeded(errors.PhaseEncode, "list arity", e.limits.MaxArity, len(v.Items))
	}
	children := make([]uint32, len(v.Items))
	for i, it := range v.Items {
		idx, err := e.emit(it, depth+1)
		if err != nil {
			return 0, err
		}
		children[i] = idx
	}
	payload := make([]byte, 4+4*len(children))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(children)))
	for i, c := range children {
		binary.LittleEndian.PutUint32(payload[4+4*i:], c)
	}
	return e.append(KindList, payload)
}

func (e *Encoder) emitTuple(v Tuple, depth int) (uint32, error) {
	if len(v.Items) > e.limits.MaxArity {
		return 0, errors.LimitExceeded(errors.PhaseEncode, "tuple arity", e.limits.MaxArity, len(v.Items))
	}
	children := make([]uint32, len(v.Items))
	for i, it := range v.Items {
		idx, err := e.emit(it, depth+1)
		if err != nil {
			return 0, err
		}
		children[i] = idx
	}
	payload := make([]byte, 4+4*len(children))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(children)))
	for i, c := range children {
		binary.LittleEndian.PutUint32(payload[4+4*i:], c)
	}
	return e.append(KindTuple, payload)
}

func (e *Encoder) emitOption(v Option, depth int) (uint32, error) {
	if v.Inner == nil {
		return e.append(KindOption, []byte{0})
	}
	idx, err := e.emit(v.Inner, depth+1)
	if err != nil {
		return 0, err
	}
	payload := make([]byte, 5)
	payload[0] = 1
	binary.LittleEndian.PutUint32(payload[1:], idx)
	return e.append(KindOption, payload)
}

func (e *Encoder) emitRecord(v Record, depth int) (uint32, error) {
	if len(v.Fields) > e.limits.MaxArity {
		return 0, errors.LimitExceeded(errors.PhaseEncode, "record field count", e.limits.MaxArity, len(v.Fields))
	}
	children := make([]uint32, len(v.Fields))
	for i, f := range v.Fields {
		idx, err := e.emit(f.Value, depth+1)
		if err != nil {
			return 0, err
		}
		children[i] = idx
	}
	payload := make([]byte, 4+4*len(children))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(children)))
	for i, c := range children {
		binary.LittleEndian.PutUint32(payload[4+4*i:], c)
	}
	return e.append(KindRecord, payload)
}

func (e *Encoder) emitVariant(v Variant, depth int) (uint32, error) {
	if v.Payload == nil {
		payload := make([]byte, 5)
		binary.LittleEndian.PutUint32(payload[0:4], v.Tag)
		payload[4] = 0
		return e.append(KindVariant, payload)
	}
	idx, err := e.emit(v.Payload, depth+1)
	if err != nil {
		return 0, err
	}
	payload := make([]byte, 9)
	binary.LittleEndian.PutUint32(payload[0:4], v.Tag)
	payload[4] = 1
	binary.LittleEndian.PutUint32(payload[5:9], idx)
	return e.append(KindVariant, payload)
}
