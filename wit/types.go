package wit

// Type is the closed set of WIT+ value types (spec §3.2). Primitives are
// represented by zero-size marker values so a Type can be compared and
// switched on cheaply.
type Type interface {
	isType()
}

type (
	Bool   struct{}
	U8     struct{}
	U16    struct{}
	U32    struct{}
	U64    struct{}
	S8     struct{}
	S16    struct{}
	S32    struct{}
	S64    struct{}
	F32    struct{}
	F64    struct{}
	Char   struct{}
	String struct{}
)

func (Bool) isType()   {}
func (U8) isType()     {}
func (U16) isType()    {}
func (U32) isType()    {}
func (U64) isType()    {}
func (S8) isType()     {}
func (S16) isType()    {}
func (S32) isType()    {}
func (S64) isType()    {}
func (F32) isType()    {}
func (F64) isType()    {}
func (Char) isType()   {}
func (String) isType() {}

// List is a homogeneous sequence of Elem.
type List struct{ Elem Type }

// Option is a zero-or-one value of Elem.
type Option struct{ Elem Type }

// Result carries an optional Ok type and an optional Err type. The
// parser leaves both nil for a bare `result` and Err nil for
// `result<T>`; `_` is an ordinary identifier, not a placeholder.
type Result struct {
	Ok  Type
	Err Type
}

// Tuple is a fixed-arity heterogeneous sequence.
type Tuple struct{ Elems []Type }

// Named references a TypeDef by name within the enclosing file's single
// namespace. Resolution happens in a separate pass (see Resolve); the
// parser never inlines the referent, which is what allows cycles.
type Named struct{ Name string }

// SelfRef refers back to the TypeDef currently being defined, for
// anonymous self-recursion (e.g. a variant case naming its own type
// without an intervening Named hop).
type SelfRef struct{ Of string }

func (List) isType()    {}
func (Option) isType()  {}
func (Result) isType()  {}
func (Tuple) isType()   {}
func (Named) isType()   {}
func (SelfRef) isType() {}

// TypeDef is the closed set of named type definitions (spec §3.2).
type TypeDef interface {
	isTypeDef()
	DefName() string
}

// Field is a named, typed member of a Record.
type Field struct {
	Name string
	Type Type
}

// RecordDef declares a struct-like aggregate. Field order is the
// declaration order and is significant for the CGRF wire layout (§4.1).
// The Merkle hash (§4.3) sorts fields by name, so it does not depend on
// field order.
type RecordDef struct {
	Name   string
	Fields []Field
}

// Case is a named, optionally-payload-carrying variant arm.
type Case struct {
	Name    string
	Payload Type // nil if the case carries no payload
}

// VariantDef declares a tagged union. Case order is declaration order;
// the 0-based index is the CGRF wire tag (spec §4.1's variant node).
type VariantDef struct {
	Name  string
	Cases []Case
}

// EnumDef declares a C-like enumeration with no payloads.
type EnumDef struct {
	Name  string
	Cases []string
}

// FlagsDef declares a named bitset; Names[i] occupies bit i. The parser
// accepts any number of names; CGRF schema decode rejects a FlagsDef
// with more than 64.
type FlagsDef struct {
	Name  string
	Names []string
}

// AliasDef gives a second name to an existing Type.
type AliasDef struct {
	Name   string
	Target Type
}

func (d *RecordDef) isTypeDef()  {}
func (d *VariantDef) isTypeDef() {}
func (d *EnumDef) isTypeDef()    {}
func (d *FlagsDef) isTypeDef()   {}
func (d *AliasDef) isTypeDef()   {}

func (d *RecordDef) DefName() string  { return d.Name }
func (d *VariantDef) DefName() string { return d.Name }
func (d *EnumDef) DefName() string    { return d.Name }
func (d *FlagsDef) DefName() string   { return d.Name }
func (d *AliasDef) DefName() string   { return d.Name }

// Param is a typed function parameter. Name is empty for a parameter
// written as a bare type.
type Param struct {
	Name string
	Type Type
}

// FuncDecl declares a function signature crossing the host/guest
// boundary. Result may be nil for functions with no return value.
type FuncDecl struct {
	Name   string
	Params []Param
	Result Type
}

// ImportDecl and ExportDecl name a function or whole interface brought
// into or out of a world.
type ImportDecl struct {
	InterfaceName string // non-empty for "import ns:pkg/iface"
	Func          *FuncDecl
}

type ExportDecl struct {
	InterfaceName string
	Func          *FuncDecl
}

// Interface groups type definitions and function declarations under a
// single name: the identifier after `interface` (e.g. "math").
type Interface struct {
	Name  string
	Types []TypeDef
	Funcs []FuncDecl
}

// World groups imports and exports for a guest package.
type World struct {
	Name    string
	Imports []ImportDecl
	Exports []ExportDecl
}

// File is the result of parsing one WIT+ source file: a single flat
// namespace of top-level type definitions, plus any interfaces and
// worlds declared in it.
type File struct {
	Types      []TypeDef
	Interfaces []Interface
	Worlds     []World
}
