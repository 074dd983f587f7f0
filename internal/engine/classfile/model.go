package classfile

// Magic is the leading u4 of every compiled unit.
const Magic uint32 = 0xCAFEBABE

// Access flags used by the resolver and the platform table builder.
const (
	AccPublic    uint16 = 0x0001
	AccPrivate   uint16 = 0x0002
	AccStatic    uint16 = 0x0008
	AccInterface uint16 = 0x0200
	AccSynthetic uint16 = 0x1000
	AccModule    uint16 = 0x8000
)

// ConstructorName is the synthetic method name reserved for constructors.
const ConstructorName = "<init>"

// Unit is a read-only view of one parsed compiled unit. Class names are
// dot-qualified; descriptors and signatures keep their binary form.
type Unit struct {
	MinorVersion uint16
	MajorVersion uint16
	AccessFlags  uint16
	Name         string
	SuperName    string
	Interfaces   []string
	Signature    string
	Annotations  []Annotation
	Fields       []Field
	Methods      []Method
	Pool         Pool
}

// Annotation is an attached annotation. Type is a field descriptor such as
// "Lorg/junit/Test;".
type Annotation struct {
	Type    string
	Visible bool
}

type Field struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Signature   string
	Annotations []Annotation
}

type Method struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Signature   string
	Exceptions  []string
	Annotations []Annotation
	Code        *Code
}

// Code is the decoded Code attribute of a method.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Bytecode       []byte
	ExceptionTable []ExceptionHandler
	LocalVariables []LocalVariable
}

// ExceptionHandler is one exception table row. CatchType is empty for the
// catch-all entry compilers emit for finally blocks.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType string
}

type LocalVariable struct {
	StartPC    uint16
	Length     uint16
	Name       string
	Descriptor string
	Index      uint16
}

// Method returns the declared method with the given name and descriptor.
func (u *Unit) Method(name, descriptor string) (Method, bool) {
	for _, m := range u.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m, true
		}
	}
	return Method{}, false
}

// Field returns the declared field with the given name.
func (u *Unit) Field(name string) (Field, bool) {
	for _, f := range u.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Supertypes returns the superclass followed by the declared interfaces.
func (u *Unit) Supertypes() []string {
	out := make([]string, 0, len(u.Interfaces)+1)
	if u.SuperName != "" {
		out = append(out, u.SuperName)
	}
	return append(out, u.Interfaces...)
}
