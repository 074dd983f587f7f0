// Package classtest assembles small compiled units for tests.
package classtest

import (
	"bytes"
	"encoding/binary"
	"strings"
)

const (
	tagUtf8               = 1
	tagLong               = 5
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
)

// Opcodes emitted by the builder.
const (
	OpLdcW            = 0x13
	OpReturn          = 0xb1
	OpGetStatic       = 0xb2
	OpPutStatic       = 0xb3
	OpGetField        = 0xb4
	OpPutField        = 0xb5
	OpInvokeVirtual   = 0xb6
	OpInvokeSpecial   = 0xb7
	OpInvokeStatic    = 0xb8
	OpInvokeInterface = 0xb9
	OpNew             = 0xbb
	OpCheckCast       = 0xc0
	OpInstanceOf      = 0xc1
)

type constKey struct {
	tag  byte
	text string
	a, b uint16
}

// Class builds one compiled unit. Names are given dot-qualified.
type Class struct {
	name        string
	pool        bytes.Buffer
	poolCount   uint16
	index       map[constKey]uint16
	access      uint16
	this        uint16
	super       uint16
	interfaces  []uint16
	fields      []*Member
	methods     []*Member
	attributes  []attribute
	annotations []annotation
}

type attribute struct {
	name uint16
	info []byte
}

type annotation struct {
	typ     uint16
	visible bool
}

// Member is a field or method under construction.
type Member struct {
	owner       *Class
	access      uint16
	name        uint16
	desc        uint16
	signature   string
	exceptions  []string
	annotations []annotation
	code        *Code
}

// Code accumulates a method body.
type Code struct {
	owner    *Class
	buf      bytes.Buffer
	handlers []handler
	locals   []local
}

type handler struct {
	catchType uint16
}

type local struct {
	name, desc uint16
	index      uint16
}

// New starts a public class. An empty super leaves super_class at zero.
func New(name, super string) *Class {
	c := &Class{name: strings.ReplaceAll(name, ".", "/"), index: make(map[constKey]uint16), poolCount: 1, access: 0x0021}
	c.this = c.ClassRef(name)
	if super != "" {
		c.super = c.ClassRef(super)
	}
	return c
}

// AsInterface marks the unit as an interface.
func (c *Class) AsInterface() *Class {
	c.access = 0x0601
	return c
}

func (c *Class) Interface(name string) *Class {
	c.interfaces = append(c.interfaces, c.ClassRef(name))
	return c
}

func (c *Class) Signature(sig string) *Class {
	c.attributes = append(c.attributes, attribute{name: c.Utf8("Signature"), info: u2(c.Utf8(sig))})
	return c
}

// Annotate attaches an annotation by descriptor, e.g. "Lcom/lib/Ann;".
func (c *Class) Annotate(desc string, visible bool) *Class {
	c.annotations = append(c.annotations, annotation{typ: c.Utf8(desc), visible: visible})
	return c
}

func (c *Class) Field(access uint16, name, desc string) *Member {
	m := &Member{owner: c, access: access, name: c.Utf8(name), desc: c.Utf8(desc)}
	c.fields = append(c.fields, m)
	return m
}

func (c *Class) Method(access uint16, name, desc string) *Member {
	m := &Member{owner: c, access: access, name: c.Utf8(name), desc: c.Utf8(desc)}
	c.methods = append(c.methods, m)
	return m
}

func (m *Member) Signature(sig string) *Member {
	m.signature = sig
	return m
}

func (m *Member) Throws(names ...string) *Member {
	m.exceptions = append(m.exceptions, names...)
	return m
}

func (m *Member) Annotate(desc string, visible bool) *Member {
	m.annotations = append(m.annotations, annotation{typ: m.owner.Utf8(desc), visible: visible})
	return m
}

// Code returns the method body builder, creating it on first use.
func (m *Member) Code() *Code {
	if m.code == nil {
		m.code = &Code{owner: m.owner}
	}
	return m.code
}

func (k *Code) op(op byte, idx uint16) *Code {
	k.buf.WriteByte(op)
	k.buf.Write(u2(idx))
	return k
}

func (k *Code) Raw(b ...byte) *Code {
	k.buf.Write(b)
	return k
}

func (k *Code) Invoke(op byte, owner, name, desc string) *Code {
	if op == OpInvokeInterface {
		k.op(op, k.owner.InterfaceMethodRef(owner, name, desc))
		return k.Raw(byte(1+argSlots(desc)), 0)
	}
	return k.op(op, k.owner.MethodRef(owner, name, desc))
}

func (k *Code) Field(op byte, owner, name, desc string) *Code {
	return k.op(op, k.owner.FieldRef(owner, name, desc))
}

// Type emits an instruction whose operand is a class entry (new, checkcast,
// instanceof, anewarray) or ldc_w of a class literal.
func (k *Code) Type(op byte, name string) *Code {
	return k.op(op, k.owner.ClassRef(name))
}

func (k *Code) LdcString(s string) *Code {
	return k.op(OpLdcW, k.owner.StringConst(s))
}

func (k *Code) Return() *Code {
	return k.Raw(OpReturn)
}

// Catch adds an exception table row; an empty name is the catch-all entry.
func (k *Code) Catch(name string) *Code {
	var idx uint16
	if name != "" {
		idx = k.owner.ClassRef(name)
	}
	k.handlers = append(k.handlers, handler{catchType: idx})
	return k
}

func (k *Code) Local(index uint16, name, desc string) *Code {
	k.locals = append(k.locals, local{name: k.owner.Utf8(name), desc: k.owner.Utf8(desc), index: index})
	return k
}

func (c *Class) intern(key constKey, encode func(*bytes.Buffer)) uint16 {
	if idx, ok := c.index[key]; ok {
		return idx
	}
	idx := c.poolCount
	c.pool.WriteByte(key.tag)
	encode(&c.pool)
	c.poolCount++
	c.index[key] = idx
	return idx
}

func (c *Class) Utf8(s string) uint16 {
	return c.intern(constKey{tag: tagUtf8, text: s}, func(b *bytes.Buffer) {
		b.Write(u2(uint16(len(s))))
		b.WriteString(s)
	})
}

func (c *Class) ClassRef(name string) uint16 {
	n := c.Utf8(strings.ReplaceAll(name, ".", "/"))
	return c.intern(constKey{tag: tagClass, a: n}, func(b *bytes.Buffer) { b.Write(u2(n)) })
}

func (c *Class) StringConst(s string) uint16 {
	n := c.Utf8(s)
	return c.intern(constKey{tag: tagString, a: n}, func(b *bytes.Buffer) { b.Write(u2(n)) })
}

// LongConst adds a long constant, which occupies two pool slots.
func (c *Class) LongConst(v int64) uint16 {
	idx := c.intern(constKey{tag: tagLong, text: string(u8(uint64(v)))}, func(b *bytes.Buffer) {
		b.Write(u8(uint64(v)))
	})
	if c.poolCount == idx+1 {
		c.poolCount++
	}
	return idx
}

func (c *Class) nameAndType(name, desc string) uint16 {
	n, d := c.Utf8(name), c.Utf8(desc)
	return c.intern(constKey{tag: tagNameAndType, a: n, b: d}, func(b *bytes.Buffer) {
		b.Write(u2(n))
		b.Write(u2(d))
	})
}

func (c *Class) memberRef(tag byte, owner, name, desc string) uint16 {
	o, nt := c.ClassRef(owner), c.nameAndType(name, desc)
	return c.intern(constKey{tag: tag, a: o, b: nt}, func(b *bytes.Buffer) {
		b.Write(u2(o))
		b.Write(u2(nt))
	})
}

func (c *Class) FieldRef(owner, name, desc string) uint16 {
	return c.memberRef(tagFieldref, owner, name, desc)
}

func (c *Class) MethodRef(owner, name, desc string) uint16 {
	return c.memberRef(tagMethodref, owner, name, desc)
}

func (c *Class) InterfaceMethodRef(owner, name, desc string) uint16 {
	return c.memberRef(tagInterfaceMethodref, owner, name, desc)
}

// MethodHandle adds a REF_invokeStatic handle to a method, as lambdas and
// method references produce for bootstrap arguments.
func (c *Class) MethodHandle(owner, name, desc string) uint16 {
	ref := c.MethodRef(owner, name, desc)
	return c.intern(constKey{tag: tagMethodHandle, a: 6, b: ref}, func(b *bytes.Buffer) {
		b.WriteByte(6)
		b.Write(u2(ref))
	})
}

// Bytes serialises the unit.
func (c *Class) Bytes() []byte {
	// Intern every name before the pool is written.
	fields := c.encodeMembers(c.fields)
	methods := c.encodeMembers(c.methods)
	classAttrs := c.encodeAttributes(c.attributes, c.annotations)

	var out bytes.Buffer
	out.Write(u4(0xCAFEBABE))
	out.Write(u2(0))
	out.Write(u2(52))
	out.Write(u2(c.poolCount))
	out.Write(c.pool.Bytes())
	out.Write(u2(c.access))
	out.Write(u2(c.this))
	out.Write(u2(c.super))
	out.Write(u2(uint16(len(c.interfaces))))
	for _, i := range c.interfaces {
		out.Write(u2(i))
	}
	out.Write(fields)
	out.Write(methods)
	out.Write(classAttrs)
	return out.Bytes()
}

func (c *Class) encodeMembers(members []*Member) []byte {
	var out bytes.Buffer
	out.Write(u2(uint16(len(members))))
	for _, m := range members {
		var attrs []attribute
		if m.signature != "" {
			attrs = append(attrs, attribute{name: c.Utf8("Signature"), info: u2(c.Utf8(m.signature))})
		}
		if len(m.exceptions) > 0 {
			var info bytes.Buffer
			info.Write(u2(uint16(len(m.exceptions))))
			for _, e := range m.exceptions {
				info.Write(u2(c.ClassRef(e)))
			}
			attrs = append(attrs, attribute{name: c.Utf8("Exceptions"), info: info.Bytes()})
		}
		if m.code != nil {
			attrs = append(attrs, attribute{name: c.Utf8("Code"), info: c.encodeCode(m.code)})
		}
		out.Write(u2(m.access))
		out.Write(u2(m.name))
		out.Write(u2(m.desc))
		out.Write(c.encodeAttributes(attrs, m.annotations))
	}
	return out.Bytes()
}

func (c *Class) encodeCode(k *Code) []byte {
	code := k.buf.Bytes()
	var info bytes.Buffer
	info.Write(u2(8))
	info.Write(u2(8))
	info.Write(u4(uint32(len(code))))
	info.Write(code)
	info.Write(u2(uint16(len(k.handlers))))
	end := uint16(len(code))
	for _, h := range k.handlers {
		info.Write(u2(0))
		info.Write(u2(end))
		info.Write(u2(0))
		info.Write(u2(h.catchType))
	}
	var attrs []attribute
	if len(k.locals) > 0 {
		var lvt bytes.Buffer
		lvt.Write(u2(uint16(len(k.locals))))
		for _, l := range k.locals {
			lvt.Write(u2(0))
			lvt.Write(u2(end))
			lvt.Write(u2(l.name))
			lvt.Write(u2(l.desc))
			lvt.Write(u2(l.index))
		}
		attrs = append(attrs, attribute{name: c.Utf8("LocalVariableTable"), info: lvt.Bytes()})
	}
	info.Write(c.encodeAttributes(attrs, nil))
	return info.Bytes()
}

func (c *Class) encodeAttributes(attrs []attribute, anns []annotation) []byte {
	for _, visible := range []bool{true, false} {
		var body bytes.Buffer
		n := 0
		for _, a := range anns {
			if a.visible != visible {
				continue
			}
			body.Write(u2(a.typ))
			body.Write(u2(0))
			n++
		}
		if n == 0 {
			continue
		}
		name := "RuntimeInvisibleAnnotations"
		if visible {
			name = "RuntimeVisibleAnnotations"
		}
		attrs = append(attrs, attribute{name: c.Utf8(name), info: append(u2(uint16(n)), body.Bytes()...)})
	}

	var out bytes.Buffer
	out.Write(u2(uint16(len(attrs))))
	for _, a := range attrs {
		out.Write(u2(a.name))
		out.Write(u4(uint32(len(a.info))))
		out.Write(a.info)
	}
	return out.Bytes()
}

func argSlots(desc string) int {
	slots := 0
	for i := 1; i < len(desc) && desc[i] != ')'; i++ {
		switch desc[i] {
		case 'J', 'D':
			slots += 2
		case 'L':
			slots++
			i += strings.IndexByte(desc[i:], ';')
		case '[':
			slots++
			for desc[i] == '[' {
				i++
			}
			if desc[i] == 'L' {
				i += strings.IndexByte(desc[i:], ';')
			}
		default:
			slots++
		}
	}
	return slots
}

func u2(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func u4(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func u8(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}
