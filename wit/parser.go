package wit

import "fmt"

// Parser is a recursive-descent parser over a WIT+ token stream, one
// parse<Thing> method per grammar production, following the teacher's
// WAT parser shape (peek/next/expect plus per-production methods) but
// for curly-brace WIT+ syntax instead of s-expressions.
type Parser struct {
	toks []Token
	pos  int
	// selfName is the name of the type_def currently being parsed, so a
	// `self` occurrence in its fields/cases/alias target resolves to a
	// SelfRef pointing back at it (spec §3.2 SelfRef; grammar per
	// _examples/original_source/src/wit_plus/parser.rs's `"self" =>
	// Ok(Type::SelfRef)`). Empty outside of a type_def body.
	selfName string
}

// NewParser wraps a pre-lexed token stream.
func NewParser(toks []Token) *Parser { return &Parser{toks: toks} }

// ParseFile lexes and parses src as a complete WIT+ file, per the
// file ::= (interface | world | type_def)* production.
func ParseFile(src string) (*File, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return NewParser(toks).Parse()
}

func (p *Parser) peek() Token { return p.toks[p.pos] }

func (p *Parser) peekIs(v string) bool {
	t := p.peek()
	return t.Kind == KindIdent && t.Value == v
}

func (p *Parser) next() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k Kind) (Token, error) {
	t := p.peek()
	if t.Kind != k {
		return t, &ParseError{Msg: fmt.Sprintf("expected token kind %d, got %q", k, t.Value), Offset: t.Offset, Line: t.Line, Col: t.Col}
	}
	return p.next(), nil
}

func (p *Parser) expectIdent(v string) error {
	t := p.peek()
	if t.Kind != KindIdent || t.Value != v {
		return &ParseError{Msg: fmt.Sprintf("expected %q, got %q", v, t.Value), Offset: t.Offset, Line: t.Line, Col: t.Col}
	}
	p.next()
	return nil
}

// Parse parses the token stream produced by the Parser's constructor.
func (p *Parser) Parse() (*File, error) {
	f := &File{}
	for p.peek().Kind != KindEOF {
		switch {
		case p.peekIs("interface"):
			iface, err := p.parseInterface()
			if err != nil {
				return nil, err
			}
			f.Interfaces = append(f.Interfaces, *iface)
		case p.peekIs("world"):
			w, err := p.parseWorld()
			if err != nil {
				return nil, err
			}
			f.Worlds = append(f.Worlds, *w)
		default:
			td, err := p.parseTypeDef()
			if err != nil {
				return nil, err
			}
			f.Types = append(f.Types, td)
		}
	}
	return f, nil
}

func (p *Parser) parseInterface() (*Interface, error) {
	if err := p.expectIdent("interface"); err != nil {
		return nil, err
	}
	name, err := p.expect(KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindLBrace); err != nil {
		return nil, err
	}
	iface := &Interface{Name: name.Value}
	for p.peek().Kind != KindRBrace {
		if isTypeDefStart(p.peek()) {
			td, err := p.parseTypeDef()
			if err != nil {
				return nil, err
			}
			iface.Types = append(iface.Types, td)
			continue
		}
		fn, err := p.parseFuncDecl()
		if err != nil {
			return nil, err
		}
		iface.Funcs = append(iface.Funcs, *fn)
	}
	if _, err := p.expect(KindRBrace); err != nil {
		return nil, err
	}
	return iface, nil
}

func (p *Parser) parseWorld() (*World, error) {
	if err := p.expectIdent("world"); err != nil {
		return nil, err
	}
	name, err := p.expect(KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindLBrace); err != nil {
		return nil, err
	}
	w := &World{Name: name.Value}
	for p.peek().Kind != KindRBrace {
		switch {
		case p.peekIs("import"):
			imp, err := p.parseImportDecl()
			if err != nil {
				return nil, err
			}
			w.Imports = append(w.Imports, *imp)
		case p.peekIs("export"):
			exp, err := p.parseExportDecl()
			if err != nil {
				return nil, err
			}
			w.Exports = append(w.Exports, *exp)
		default:
			t := p.peek()
			return nil, &ParseError{Msg: fmt.Sprintf("expected import or export, got %q", t.Value), Offset: t.Offset, Line: t.Line, Col: t.Col}
		}
	}
	if _, err := p.expect(KindRBrace); err != nil {
		return nil, err
	}
	return w, nil
}

// parseNamespacedPath parses `ident (':' ident '/' ident)?` and returns
// the full dotted path as a single string, or just the bare ident when
// there is no namespace part (a direct function import/export).
func (p *Parser) parseNamespacedPath() (string, bool, error) {
	first, err := p.expect(KindIdent)
	if err != nil {
		return "", false, err
	}
	if p.peek().Kind != KindColon {
		return first.Value, false, nil
	}
	// Lookahead: "ident ':' 'func'" is a direct function decl, not a namespace.
	save := p.pos
	p.next() // consume ':'
	if p.peekIs("func") {
		p.pos = save
		return first.Value, false, nil
	}
	pkg, err := p.expect(KindIdent)
	if err != nil {
		return "", false, err
	}
	if _, err := p.expect(KindSlash); err != nil {
		return "", false, err
	}
	iface, err := p.expect(KindIdent)
	if err != nil {
		return "", false, err
	}
	return first.Value + ":" + pkg.Value + "/" + iface.Value, true, nil
}

func (p *Parser) parseImportDecl() (*ImportDecl, error) {
	if err := p.expectIdent("import"); err != nil {
		return nil, err
	}
	path, isIface, err := p.parseNamespacedPath()
	if err != nil {
		return nil, err
	}
	if isIface {
		p.consumeSemicolon()
		return &ImportDecl{InterfaceName: path}, nil
	}
	fn, err := p.finishFuncDecl(path)
	if err != nil {
		return nil, err
	}
	p.consumeSemicolon()
	return &ImportDecl{Func: fn}, nil
}

func (p *Parser) parseExportDecl() (*ExportDecl, error) {
	if err := p.expectIdent("export"); err != nil {
		return nil, err
	}
	path, isIface, err := p.parseNamespacedPath()
	if err != nil {
		return nil, err
	}
	if isIface {
		p.consumeSemicolon()
		return &ExportDecl{InterfaceName: path}, nil
	}
	fn, err := p.finishFuncDecl(path)
	if err != nil {
		return nil, err
	}
	p.consumeSemicolon()
	return &ExportDecl{Func: fn}, nil
}

func (p *Parser) consumeSemicolon() {
	if p.peek().Kind == KindSemicolon {
		p.next()
	}
}

func isTypeDefStart(t Token) bool {
	if t.Kind != KindIdent {
		return false
	}
	switch t.Value {
	case "record", "variant", "enum", "flags", "type":
		return true
	}
	return false
}

func (p *Parser) parseTypeDef() (TypeDef, error) {
	switch {
	case p.peekIs("record"):
		return p.parseRecordDef()
	case p.peekIs("variant"):
		return p.parseVariantDef()
	case p.peekIs("enum"):
		return p.parseEnumDef()
	case p.peekIs("flags"):
		return p.parseFlagsDef()
	case p.peekIs("type"):
		return p.parseAliasDef()
	default:
		t := p.peek()
		return nil, &ParseError{Msg: fmt.Sprintf("expected type definition, got %q", t.Value), Offset: t.Offset, Line: t.Line, Col: t.Col}
	}
}

func (p *Parser) parseRecordDef() (*RecordDef, error) {
	p.next() // 'record'
	name, err := p.expect(KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindLBrace); err != nil {
		return nil, err
	}
	d := &RecordDef{Name: name.Value}
	prevSelf := p.selfName
	p.selfName = name.Value
	defer func() { p.selfName = prevSelf }()
	for p.peek().Kind != KindRBrace {
		fname, err := p.expect(KindIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(KindColon); err != nil {
			return nil, err
		}
		ft, err := p.parseType()
		if err != nil {
			return nil, err
		}
		d.Fields = append(d.Fields, Field{Name: fname.Value, Type: ft})
		if p.peek().Kind == KindComma {
			p.next()
		}
	}
	_, err = p.expect(KindRBrace)
	return d, err
}

func (p *Parser) parseVariantDef() (*VariantDef, error) {
	p.next() // 'variant'
	name, err := p.expect(KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindLBrace); err != nil {
		return nil, err
	}
	d := &VariantDef{Name: name.Value}
	prevSelf := p.selfName
	p.selfName = name.Value
	defer func() { p.selfName = prevSelf }()
	for p.peek().Kind != KindRBrace {
		cname, err := p.expect(KindIdent)
		if err != nil {
			return nil, err
		}
		c := Case{Name: cname.Value}
		if p.peek().Kind == KindLParen {
			p.next()
			pt, err := p.parseType()
			if err != nil {
				return nil, err
			}
			c.Payload = pt
			if _, err := p.expect(KindRParen); err != nil {
				return nil, err
			}
		}
		d.Cases = append(d.Cases, c)
		if p.peek().Kind == KindComma {
			p.next()
		}
	}
	_, err = p.expect(KindRBrace)
	return d, err
}

func (p *Parser) parseEnumDef() (*EnumDef, error) {
	p.next() // 'enum'
	name, err := p.expect(KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindLBrace); err != nil {
		return nil, err
	}
	d := &EnumDef{Name: name.Value}
	for p.peek().Kind != KindRBrace {
		c, err := p.expect(KindIdent)
		if err != nil {
			return nil, err
		}
		d.Cases = append(d.Cases, c.Value)
		if p.peek().Kind == KindComma {
			p.next()
		}
	}
	_, err = p.expect(KindRBrace)
	return d, err
}

func (p *Parser) parseFlagsDef() (*FlagsDef, error) {
	p.next() // 'flags'
	name, err := p.expect(KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindLBrace); err != nil {
		return nil, err
	}
	d := &FlagsDef{Name: name.Value}
	for p.peek().Kind != KindRBrace {
		c, err := p.expect(KindIdent)
		if err != nil {
			return nil, err
		}
		d.Names = append(d.Names, c.Value)
		if p.peek().Kind == KindComma {
			p.next()
		}
	}
	_, err = p.expect(KindRBrace)
	return d, err
}

func (p *Parser) parseAliasDef() (*AliasDef, error) {
	p.next() // 'type'
	name, err := p.expect(KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindEquals); err != nil {
		return nil, err
	}
	prevSelf := p.selfName
	p.selfName = name.Value
	t, err := p.parseType()
	p.selfName = prevSelf
	if err != nil {
		return nil, err
	}
	p.consumeSemicolon()
	return &AliasDef{Name: name.Value, Target: t}, nil
}

func (p *Parser) parseFuncDecl() (*FuncDecl, error) {
	name, err := p.expect(KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindColon); err != nil {
		return nil, err
	}
	fn, err := p.finishFuncDecl(name.Value)
	if err != nil {
		return nil, err
	}
	p.consumeSemicolon()
	return fn, nil
}

// finishFuncDecl parses "'func' '(' params ')' ['->' result]" given that
// name and the separating ':' have already been consumed by the caller.
func (p *Parser) finishFuncDecl(name string) (*FuncDecl, error) {
	if err := p.expectIdent("func"); err != nil {
		return nil, err
	}
	if _, err := p.expect(KindLParen); err != nil {
		return nil, err
	}
	fn := &FuncDecl{Name: name}
	for p.peek().Kind != KindRParen {
		// A parameter is "name: type", or a bare type with no name.
		var pname string
		if p.peek().Kind == KindIdent && p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == KindColon {
			pname = p.next().Value
			p.next() // ':'
		}
		pt, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, Param{Name: pname, Type: pt})
		if p.peek().Kind == KindComma {
			p.next()
		}
	}
	if _, err := p.expect(KindRParen); err != nil {
		return nil, err
	}
	if p.peek().Kind == KindArrow {
		p.next()
		rt, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Result = rt
	}
	return fn, nil
}

func (p *Parser) parseType() (Type, error) {
	t := p.peek()
	if t.Kind != KindIdent {
		return nil, &ParseError{Msg: fmt.Sprintf("expected type, got %q", t.Value), Offset: t.Offset, Line: t.Line, Col: t.Col}
	}

	if mk, ok := primitiveTypes[t.Value]; ok {
		p.next()
		return mk(), nil
	}

	switch t.Value {
	case "self":
		if p.selfName == "" {
			return nil, &ParseError{Msg: "self is only valid inside a type definition", Offset: t.Offset, Line: t.Line, Col: t.Col}
		}
		p.next()
		return SelfRef{Of: p.selfName}, nil
	case "list":
		p.next()
		elem, err := p.parseAngleType()
		if err != nil {
			return nil, err
		}
		return List{Elem: elem}, nil
	case "option":
		p.next()
		elem, err := p.parseAngleType()
		if err != nil {
			return nil, err
		}
		return Option{Elem: elem}, nil
	case "tuple":
		p.next()
		elems, err := p.parseAngleTypeList()
		if err != nil {
			return nil, err
		}
		return Tuple{Elems: elems}, nil
	case "result":
		p.next()
		if p.peek().Kind != KindLAngle {
			return Result{}, nil
		}
		elems, err := p.parseAngleTypeList()
		if err != nil {
			return nil, err
		}
		switch len(elems) {
		case 1:
			return Result{Ok: elems[0]}, nil
		case 2:
			return Result{Ok: elems[0], Err: elems[1]}, nil
		default:
			return nil, &ParseError{Msg: "result<> takes at most 2 type arguments", Offset: t.Offset, Line: t.Line, Col: t.Col}
		}
	default:
		p.next()
		return Named{Name: t.Value}, nil
	}
}

func (p *Parser) parseAngleType() (Type, error) {
	if _, err := p.expect(KindLAngle); err != nil {
		return nil, err
	}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KindRAngle); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseAngleTypeList() ([]Type, error) {
	if _, err := p.expect(KindLAngle); err != nil {
		return nil, err
	}
	var types []Type
	for {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
		if p.peek().Kind == KindComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(KindRAngle); err != nil {
		return nil, err
	}
	return types, nil
}
