// Package descriptor decodes JVM field/method descriptors and generic
// signatures into a small type tree.
package descriptor

import (
	"fmt"
	"strings"
)

type Kind uint8

const (
	KindPrimitive Kind = iota
	KindClass
	KindArray
	// KindTypeVar is a generic type variable such as T. It names no class.
	KindTypeVar
	// KindWildcard is the unbounded '*' type argument.
	KindWildcard
)

// Type is a decoded descriptor or signature type.
type Type struct {
	Kind Kind
	// Primitive is the descriptor character (B C D F I J S Z V) for KindPrimitive.
	Primitive byte
	// Name is the dot-qualified class name or the type variable name. Nested
	// generic types use '$' between the declaring and nested name.
	Name string
	Elem *Type
	Args []Type
}

func Primitive(c byte) Type { return Type{Kind: KindPrimitive, Primitive: c} }

func ClassRef(name string) Type { return Type{Kind: KindClass, Name: name} }

func ArrayOf(elem Type) Type { return Type{Kind: KindArray, Elem: &elem} }

var primitiveNames = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// IsPrimitiveName reports whether name is a Java primitive keyword.
func IsPrimitiveName(name string) bool {
	for _, n := range primitiveNames {
		if n == name {
			return true
		}
	}
	return false
}

func (t Type) String() string {
	switch t.Kind {
	case KindPrimitive:
		return primitiveNames[t.Primitive]
	case KindArray:
		return t.Elem.String() + "[]"
	case KindTypeVar:
		return t.Name
	case KindWildcard:
		return "?"
	}
	if len(t.Args) == 0 {
		return t.Name
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	return t.Name + "<" + strings.Join(args, ", ") + ">"
}

// ClassNames returns every class name reachable from t: the class itself,
// array element classes and generic type arguments, depth first.
func (t Type) ClassNames() []string {
	var out []string
	t.walk(func(name string) { out = append(out, name) })
	return out
}

func (t Type) walk(fn func(string)) {
	switch t.Kind {
	case KindClass:
		fn(t.Name)
		for _, a := range t.Args {
			a.walk(fn)
		}
	case KindArray:
		t.Elem.walk(fn)
	}
}

// Method is a decoded method descriptor or signature.
type Method struct {
	TypeParams []Type
	Params     []Type
	Return     Type
	Throws     []Type
}

// ClassNames returns every class named by the method's parameters, return
// type, thrown types and type parameter bounds.
func (m Method) ClassNames() []string {
	var out []string
	for _, group := range [][]Type{m.TypeParams, m.Params, {m.Return}, m.Throws} {
		for _, t := range group {
			out = append(out, t.ClassNames()...)
		}
	}
	return out
}

// Class is a decoded class signature.
type Class struct {
	TypeParams []Type
	Super      Type
	Interfaces []Type
}

func (c Class) ClassNames() []string {
	out := c.Super.ClassNames()
	for _, t := range append(append([]Type{}, c.TypeParams...), c.Interfaces...) {
		out = append(out, t.ClassNames()...)
	}
	return out
}

// Decode decodes a single field descriptor such as "I", "[J" or
// "Lcom/lib/Widget;". Package separators may be '/' or '.'.
func Decode(desc string) (Type, error) {
	p := &parser{s: desc}
	t, err := p.fieldType(false)
	if err != nil {
		return Type{}, err
	}
	if !p.done() {
		return Type{}, p.errorf("trailing characters")
	}
	return t, nil
}

// DecodeMethod decodes a plain method descriptor like "(ILjava/lang/String;)V".
func DecodeMethod(desc string) (Method, error) {
	p := &parser{s: desc}
	m, err := p.method(false)
	if err != nil {
		return Method{}, err
	}
	if !p.done() {
		return Method{}, p.errorf("trailing characters")
	}
	return m, nil
}

// ParseMethodSignature decodes a generic method signature.
func ParseMethodSignature(sig string) (Method, error) {
	p := &parser{s: sig}
	m, err := p.method(true)
	if err != nil {
		return Method{}, err
	}
	for !p.done() && p.peek() == '^' {
		p.pos++
		t, err := p.referenceType()
		if err != nil {
			return Method{}, err
		}
		m.Throws = append(m.Throws, t)
	}
	if !p.done() {
		return Method{}, p.errorf("trailing characters")
	}
	return m, nil
}

// ParseFieldSignature decodes a generic field signature.
func ParseFieldSignature(sig string) (Type, error) {
	p := &parser{s: sig}
	t, err := p.referenceType()
	if err != nil {
		return Type{}, err
	}
	if !p.done() {
		return Type{}, p.errorf("trailing characters")
	}
	return t, nil
}

// ParseClassSignature decodes a generic class signature.
func ParseClassSignature(sig string) (Class, error) {
	p := &parser{s: sig}
	var c Class
	var err error
	if c.TypeParams, err = p.typeParams(); err != nil {
		return Class{}, err
	}
	if c.Super, err = p.referenceType(); err != nil {
		return Class{}, err
	}
	for !p.done() {
		t, err := p.referenceType()
		if err != nil {
			return Class{}, err
		}
		c.Interfaces = append(c.Interfaces, t)
	}
	return c, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("descriptor %q at %d: %s", p.s, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) method(generic bool) (Method, error) {
	var m Method
	var err error
	if generic {
		if m.TypeParams, err = p.typeParams(); err != nil {
			return Method{}, err
		}
	}
	if err := p.expect('('); err != nil {
		return Method{}, err
	}
	for p.peek() != ')' {
		if p.done() {
			return Method{}, p.errorf("unterminated parameter list")
		}
		t, err := p.fieldType(generic)
		if err != nil {
			return Method{}, err
		}
		m.Params = append(m.Params, t)
	}
	p.pos++
	if p.peek() == 'V' {
		p.pos++
		m.Return = Primitive('V')
		return m, nil
	}
	if m.Return, err = p.fieldType(generic); err != nil {
		return Method{}, err
	}
	return m, nil
}

// typeParams parses an optional <T:Lbound;U::Liface;> block and returns the
// bounds.
func (p *parser) typeParams() ([]Type, error) {
	if p.peek() != '<' {
		return nil, nil
	}
	p.pos++
	var bounds []Type
	for p.peek() != '>' {
		if p.done() {
			return nil, p.errorf("unterminated type parameters")
		}
		colon := strings.IndexByte(p.s[p.pos:], ':')
		if colon <= 0 {
			return nil, p.errorf("malformed type parameter")
		}
		p.pos += colon
		for p.peek() == ':' {
			p.pos++
			if c := p.peek(); c == ':' || c == '>' {
				continue
			}
			if !strings.ContainsRune("LT[", rune(p.peek())) {
				break
			}
			t, err := p.referenceType()
			if err != nil {
				return nil, err
			}
			bounds = append(bounds, t)
		}
	}
	p.pos++
	return bounds, nil
}

func (p *parser) fieldType(generic bool) (Type, error) {
	c := p.peek()
	if _, ok := primitiveNames[c]; ok && c != 'V' {
		p.pos++
		return Primitive(c), nil
	}
	switch c {
	case 'L':
		return p.classType(generic)
	case '[':
		p.pos++
		elem, err := p.fieldType(generic)
		if err != nil {
			return Type{}, err
		}
		return ArrayOf(elem), nil
	case 'T':
		if generic {
			return p.typeVar()
		}
	}
	return Type{}, p.errorf("unexpected %q", c)
}

func (p *parser) referenceType() (Type, error) {
	switch p.peek() {
	case 'L', '[', 'T':
		return p.fieldType(true)
	}
	return Type{}, p.errorf("expected reference type")
}

func (p *parser) typeVar() (Type, error) {
	p.pos++
	end := strings.IndexByte(p.s[p.pos:], ';')
	if end < 0 {
		return Type{}, p.errorf("unterminated type variable")
	}
	name := p.s[p.pos : p.pos+end]
	p.pos += end + 1
	return Type{Kind: KindTypeVar, Name: name}, nil
}

func (p *parser) identifier(generic bool) (string, error) {
	start := p.pos
	for !p.done() {
		c := p.peek()
		if c == ';' || (generic && (c == '<' || c == '.')) {
			break
		}
		p.pos++
	}
	if p.done() {
		return "", p.errorf("unterminated class type")
	}
	if p.pos == start {
		return "", p.errorf("empty class name")
	}
	return p.s[start:p.pos], nil
}

func (p *parser) classType(generic bool) (Type, error) {
	p.pos++
	ident, err := p.identifier(generic)
	if err != nil {
		return Type{}, err
	}
	t := ClassRef(strings.ReplaceAll(ident, "/", "."))
	for generic {
		if p.peek() == '<' {
			args, err := p.typeArgs()
			if err != nil {
				return Type{}, err
			}
			t.Args = append(t.Args, args...)
		}
		if p.peek() != '.' {
			break
		}
		// A nested type arrives as a simple name after the declaring type.
		p.pos++
		inner, err := p.identifier(true)
		if err != nil {
			return Type{}, err
		}
		t.Name += "$" + inner
	}
	if err := p.expect(';'); err != nil {
		return Type{}, err
	}
	return t, nil
}

func (p *parser) typeArgs() ([]Type, error) {
	p.pos++
	var args []Type
	for p.peek() != '>' {
		if p.done() {
			return nil, p.errorf("unterminated type arguments")
		}
		switch p.peek() {
		case '*':
			p.pos++
			args = append(args, Type{Kind: KindWildcard})
			continue
		case '+', '-':
			p.pos++
		}
		t, err := p.referenceType()
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}
	p.pos++
	return args, nil
}
