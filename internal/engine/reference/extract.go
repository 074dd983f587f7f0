package reference

import (
	"depaudit/internal/core/errors"
	"depaudit/internal/engine/bytecode"
	"depaudit/internal/engine/classfile"
	"depaudit/internal/engine/descriptor"
	"fmt"
	"strings"
)

const (
	ObjectClass = "java.lang.Object"
	StringClass = "java.lang.String"
)

var accessByOp = map[bytecode.OpKind]AccessKind{
	bytecode.KindInvokeVirtual:   InvokeVirtual,
	bytecode.KindInvokeSpecial:   InvokeSpecial,
	bytecode.KindInvokeStatic:    InvokeStatic,
	bytecode.KindInvokeInterface: InvokeInterface,
	bytecode.KindGetStatic:       GetStatic,
	bytecode.KindPutStatic:       PutStatic,
	bytecode.KindGetField:        GetField,
	bytecode.KindPutField:        PutField,
}

// Extract returns every external symbol the unit touches. It does not modify
// the unit. An instruction stream or constant pool entry that cannot be
// decoded yields a MALFORMED_UNIT error.
func Extract(u *classfile.Unit) (Map, error) {
	e := &extractor{unit: u, refs: Map{}}

	for _, super := range u.Supertypes() {
		if super != ObjectClass {
			e.typeName(super)
		}
	}
	if u.Signature != "" {
		if sig, err := descriptor.ParseClassSignature(u.Signature); err == nil {
			for _, name := range sig.ClassNames() {
				if name != ObjectClass {
					e.typeName(name)
				}
			}
		}
	}
	e.annotations(u.Annotations)

	for _, f := range u.Fields {
		e.annotations(f.Annotations)
		e.fieldType(f)
	}

	for _, m := range u.Methods {
		e.annotations(m.Annotations)
		e.methodTypes(m)
		for _, ex := range m.Exceptions {
			e.typeName(ex)
		}
		if m.Code == nil {
			continue
		}
		if err := e.code(m.Code); err != nil {
			return nil, errors.AddContext(
				errors.Wrap(err, errors.CodeMalformedUnit, fmt.Sprintf("method %s%s", m.Name, m.Descriptor)),
				errors.CtxClass, u.Name)
		}
	}

	if err := e.methodHandles(); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeMalformedUnit, "method handle"), errors.CtxClass, u.Name)
	}

	filter(e.refs)
	return e.refs, nil
}

type extractor struct {
	unit *classfile.Unit
	refs Map
}

// typeName registers a class name, or every class inside an array
// descriptor, as a type-only reference.
func (e *extractor) typeName(name string) {
	if strings.HasPrefix(name, "[") {
		e.descriptor(name)
		return
	}
	e.refs.Touch(name)
}

func (e *extractor) descriptor(desc string) {
	t, err := descriptor.Decode(desc)
	if err != nil {
		return
	}
	for _, name := range t.ClassNames() {
		e.refs.Touch(name)
	}
}

func (e *extractor) annotations(anns []classfile.Annotation) {
	for _, a := range anns {
		e.descriptor(a.Type)
	}
}

func (e *extractor) fieldType(f classfile.Field) {
	var names []string
	if f.Signature != "" {
		if t, err := descriptor.ParseFieldSignature(f.Signature); err == nil {
			names = t.ClassNames()
		}
	}
	if names == nil {
		t, err := descriptor.Decode(f.Descriptor)
		if err != nil {
			return
		}
		names = t.ClassNames()
	}
	for _, name := range names {
		if name == StringClass {
			continue
		}
		e.refs.Touch(name)
	}
}

// methodTypes prefers the generic signature and falls back to the plain
// descriptor when there is none or it does not parse.
func (e *extractor) methodTypes(m classfile.Method) {
	if m.Signature != "" {
		if sig, err := descriptor.ParseMethodSignature(m.Signature); err == nil {
			for _, name := range sig.ClassNames() {
				e.refs.Touch(name)
			}
			return
		}
	}
	if sig, err := descriptor.DecodeMethod(m.Descriptor); err == nil {
		for _, name := range sig.ClassNames() {
			e.refs.Touch(name)
		}
	}
}

func (e *extractor) code(c *classfile.Code) error {
	pool := e.unit.Pool
	err := bytecode.Walk(c.Bytecode, func(in bytecode.Instruction) error {
		kind := bytecode.Decode(in.Op)
		switch {
		case kind.IsInvoke():
			ref, err := pool.MemberRef(in.Index())
			if err != nil {
				return fmt.Errorf("%s at pc %d: %w", in.Op, in.PC, err)
			}
			e.member(ref.Owner, Reference{Member: MethodMember(ref.Name, ref.Descriptor), Access: accessByOp[kind]})
		case kind.IsFieldAccess():
			ref, err := pool.MemberRef(in.Index())
			if err != nil {
				return fmt.Errorf("%s at pc %d: %w", in.Op, in.PC, err)
			}
			e.member(ref.Owner, Reference{Member: ref.Name, Access: accessByOp[kind]})
		case kind == bytecode.KindTypeCast, kind == bytecode.KindTypeOperand:
			name, err := pool.ClassName(in.Index())
			if err != nil {
				return fmt.Errorf("%s at pc %d: %w", in.Op, in.PC, err)
			}
			e.typeName(name)
		case kind == bytecode.KindConstant:
			if pool.Kind(in.Index()) == classfile.ConstantClass {
				name, err := pool.ClassName(in.Index())
				if err != nil {
					return fmt.Errorf("%s at pc %d: %w", in.Op, in.PC, err)
				}
				e.typeName(name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, lv := range c.LocalVariables {
		e.descriptor(lv.Descriptor)
	}
	for _, h := range c.ExceptionTable {
		if h.CatchType != "" {
			e.typeName(h.CatchType)
		}
	}
	return nil
}

// member records a member use. Members invoked on array types (clone) are
// credited to the element type as a type-only reference.
func (e *extractor) member(owner string, r Reference) {
	if strings.HasPrefix(owner, "[") {
		e.descriptor(owner)
		return
	}
	e.refs.Add(owner, r)
}

// methodHandles records members reachable through method handle constants,
// which is how lambdas and method references name their targets.
func (e *extractor) methodHandles() error {
	pool := e.unit.Pool
	for i := 1; i < len(pool); i++ {
		c := pool[i]
		if c.Kind != classfile.ConstantMethodHandle {
			continue
		}
		ref, err := pool.MemberRef(c.B)
		if err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
		}
		member := ref.Name
		if ref.Kind != classfile.ConstantFieldref {
			member = MethodMember(ref.Name, ref.Descriptor)
		}
		e.member(ref.Owner, Reference{Member: member, Access: Other})
	}
	return nil
}

// filter drops keys that can never resolve to a dependency: empty names,
// bare array markers and primitive keywords.
func filter(m Map) {
	for class := range m {
		if class == "" || strings.HasPrefix(class, "[") || descriptor.IsPrimitiveName(class) {
			delete(m, class)
		}
	}
}
