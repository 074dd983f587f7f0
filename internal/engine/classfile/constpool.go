package classfile

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// ConstantKind is the tag byte of a constant pool entry.
type ConstantKind uint8

const (
	ConstantUtf8               ConstantKind = 1
	ConstantInteger            ConstantKind = 3
	ConstantFloat              ConstantKind = 4
	ConstantLong               ConstantKind = 5
	ConstantDouble             ConstantKind = 6
	ConstantClass              ConstantKind = 7
	ConstantString             ConstantKind = 8
	ConstantFieldref           ConstantKind = 9
	ConstantMethodref          ConstantKind = 10
	ConstantInterfaceMethodref ConstantKind = 11
	ConstantNameAndType        ConstantKind = 12
	ConstantMethodHandle       ConstantKind = 15
	ConstantMethodType         ConstantKind = 16
	ConstantDynamic            ConstantKind = 17
	ConstantInvokeDynamic      ConstantKind = 18
	ConstantModule             ConstantKind = 19
	ConstantPackage            ConstantKind = 20

	// ConstantPlaceholder fills index 0 and the slot after every long or double.
	ConstantPlaceholder ConstantKind = 255
)

// Constant is one constant pool entry. A and B hold the entry's index
// operands in declaration order (class/name-and-type, name/descriptor,
// reference kind/reference index). Text is set for Utf8 entries.
type Constant struct {
	Kind ConstantKind
	A    uint16
	B    uint16
	Text string
}

// Pool is the 1-indexed constant pool of a compiled unit.
type Pool []Constant

// MemberRef is a resolved Fieldref, Methodref or InterfaceMethodref entry.
type MemberRef struct {
	Kind       ConstantKind
	Owner      string
	Name       string
	Descriptor string
}

func (p Pool) entry(idx uint16, want ...ConstantKind) (Constant, error) {
	if idx == 0 || int(idx) >= len(p) {
		return Constant{}, fmt.Errorf("constant pool index %d out of range (size %d)", idx, len(p))
	}
	c := p[idx]
	if len(want) == 0 {
		return c, nil
	}
	for _, k := range want {
		if c.Kind == k {
			return c, nil
		}
	}
	return Constant{}, fmt.Errorf("constant pool index %d has kind %d, expected %v", idx, c.Kind, want)
}

// Kind returns the tag at idx, or ConstantPlaceholder when idx is invalid.
func (p Pool) Kind(idx uint16) ConstantKind {
	if idx == 0 || int(idx) >= len(p) {
		return ConstantPlaceholder
	}
	return p[idx].Kind
}

func (p Pool) Utf8(idx uint16) (string, error) {
	c, err := p.entry(idx, ConstantUtf8)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// ClassName resolves a Class entry to its dot-qualified name. Array classes
// keep their descriptor form, e.g. "[Lcom.lib.Widget;".
func (p Pool) ClassName(idx uint16) (string, error) {
	c, err := p.entry(idx, ConstantClass)
	if err != nil {
		return "", err
	}
	name, err := p.Utf8(c.A)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(name, "/", "."), nil
}

// NameAndType resolves a NameAndType entry.
func (p Pool) NameAndType(idx uint16) (string, string, error) {
	c, err := p.entry(idx, ConstantNameAndType)
	if err != nil {
		return "", "", err
	}
	name, err := p.Utf8(c.A)
	if err != nil {
		return "", "", err
	}
	desc, err := p.Utf8(c.B)
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef resolves a field or method reference entry.
func (p Pool) MemberRef(idx uint16) (MemberRef, error) {
	c, err := p.entry(idx, ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref)
	if err != nil {
		return MemberRef{}, err
	}
	owner, err := p.ClassName(c.A)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(c.B)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Kind: c.Kind, Owner: owner, Name: name, Descriptor: desc}, nil
}

func readConstantPool(br *BinaryReader) (Pool, error) {
	count, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("failed to read constant pool count: %w", err)
	}
	pool := make(Pool, 1, max(int(count), 1))
	pool[0] = Constant{Kind: ConstantPlaceholder}

	for i := 1; i < int(count); i++ {
		tag, err := br.ReadU1()
		if err != nil {
			return nil, fmt.Errorf("failed to read tag of constant %d: %w", i, err)
		}
		c := Constant{Kind: ConstantKind(tag)}
		switch c.Kind {
		case ConstantUtf8:
			length, err := br.ReadU2()
			if err != nil {
				return nil, fmt.Errorf("failed to read utf8 length of constant %d: %w", i, err)
			}
			raw, err := br.ReadNBytes(int(length))
			if err != nil {
				return nil, fmt.Errorf("failed to read utf8 constant %d: %w", i, err)
			}
			c.Text = decodeModifiedUTF8(raw)
		case ConstantInteger, ConstantFloat:
			if err := br.Skip(4); err != nil {
				return nil, err
			}
		case ConstantLong, ConstantDouble:
			if err := br.Skip(8); err != nil {
				return nil, err
			}
			pool = append(pool, c, Constant{Kind: ConstantPlaceholder})
			i++
			continue
		case ConstantClass, ConstantString, ConstantMethodType, ConstantModule, ConstantPackage:
			if c.A, err = br.ReadU2(); err != nil {
				return nil, fmt.Errorf("failed to read constant %d: %w", i, err)
			}
		case ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref,
			ConstantNameAndType, ConstantDynamic, ConstantInvokeDynamic:
			if c.A, err = br.ReadU2(); err != nil {
				return nil, fmt.Errorf("failed to read constant %d: %w", i, err)
			}
			if c.B, err = br.ReadU2(); err != nil {
				return nil, fmt.Errorf("failed to read constant %d: %w", i, err)
			}
		case ConstantMethodHandle:
			kind, err := br.ReadU1()
			if err != nil {
				return nil, fmt.Errorf("failed to read constant %d: %w", i, err)
			}
			c.A = uint16(kind)
			if c.B, err = br.ReadU2(); err != nil {
				return nil, fmt.Errorf("failed to read constant %d: %w", i, err)
			}
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		pool = append(pool, c)
	}
	return pool, nil
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8: NUL is two bytes and
// supplementary characters arrive as encoded surrogate pairs.
func decodeModifiedUTF8(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 || c == 0 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}
	return string(utf16.Decode(units))
}
