package wit

// Kind identifies a lexical token class.
type Kind int

const (
	KindEOF Kind = iota
	KindIdent
	KindLBrace
	KindRBrace
	KindLParen
	KindRParen
	KindLAngle
	KindRAngle
	KindColon
	KindComma
	KindArrow // ->
	KindEquals
	KindSemicolon
	KindSlash // namespace separator, e.g. ns:pkg/iface
)

// Token is one lexical unit with its source position (spec §4.2:
// "Syntactic errors carry a byte offset / line / column").
type Token struct {
	Kind   Kind
	Value  string
	Offset int
	Line   int
	Col    int
}

var keywords = map[string]bool{
	"interface": true,
	"world":     true,
	"record":    true,
	"variant":   true,
	"enum":      true,
	"flags":     true,
	"type":      true,
	"func":      true,
	"import":    true,
	"export":    true,
	"list":      true,
	"option":    true,
	"result":    true,
	"tuple":     true,
	"self":      true,
}

var primitiveTypes = map[string]func() Type{
	"bool":   func() Type { return Bool{} },
	"u8":     func() Type { return U8{} },
	"u16":    func() Type { return U16{} },
	"u32":    func() Type { return U32{} },
	"u64":    func() Type { return U64{} },
	"s8":     func() Type { return S8{} },
	"s16":    func() Type { return S16{} },
	"s32":    func() Type { return S32{} },
	"s64":    func() Type { return S64{} },
	"f32":    func() Type { return F32{} },
	"f64":    func() Type { return F64{} },
	"char":   func() Type { return Char{} },
	"string": func() Type { return String{} },
}
