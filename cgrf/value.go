package cgrf

import "github.com/composite-rt/composite/wit"

// Value is the runtime value tree (spec §3.1): a tagged sum over
// primitives, string, list, tuple, option, record, variant, and flags.
type Value interface {
	isValue()
}

type (
	Bool   bool
	U8     uint8
	U16    uint16
	U32    uint32
	U64    uint64
	S8     int8
	S16    int16
	S32    int32
	S64    int64
	F32    float32
	F64    float64
	Char   rune
	String string
	Flags  uint64
)

func (Bool) isValue()   {}
func (U8) isValue()     {}
func (U16) isValue()    {}
func (U32) isValue()    {}
func (U64) isValue()    {}
func (S8) isValue()     {}
func (S16) isValue()    {}
func (S32) isValue()    {}
func (S64) isValue()    {}
func (F32) isValue()    {}
func (F64) isValue()    {}
func (Char) isValue()   {}
func (String) isValue() {}
func (Flags) isValue()  {}

// List preserves its element type tag so an empty list can still be
// encoded against a schema (spec §3.1).
type List struct {
	Elem  wit.Type
	Items []Value
}

// Tuple is a fixed-arity heterogeneous sequence, positional order.
type Tuple struct {
	Items []Value
}

// Option preserves its inner type tag for the same reason List does.
// Inner is nil for None.
type Option struct {
	Elem  wit.Type
	Inner Value
}

// RecordField pairs a declared field name with its value. Field names
// are not carried on the wire (§4.1) - declaration order from the
// schema is what CGRF relies on. A schema decode fills Name in from
// the record's declaration; a schema-less structural decode leaves it
// empty.
type RecordField struct {
	Name  string
	Value Value
}

// Record is a struct-like aggregate; field order must match the
// originating schema's declaration order.
type Record struct {
	Fields []RecordField
}

// Variant is a tagged union: Tag is the 0-based declared case index,
// Payload is nil when the case carries none.
type Variant struct {
	Tag     uint32
	Payload Value
}

func (List) isValue()    {}
func (Tuple) isValue()   {}
func (Option) isValue()  {}
func (Record) isValue()  {}
func (Variant) isValue() {}
