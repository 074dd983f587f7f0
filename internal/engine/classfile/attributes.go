package classfile

import (
	"fmt"
)

const (
	attrCode                                 = "Code"
	attrExceptions                           = "Exceptions"
	attrSignature                            = "Signature"
	attrLocalVariableTable                   = "LocalVariableTable"
	attrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	attrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	attrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	attrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
)

// maxAnnotationDepth bounds nested annotation values.
const maxAnnotationDepth = 64

type rawAttribute struct {
	name string
	info []byte
}

func readAttributes(br *BinaryReader, pool Pool) ([]rawAttribute, error) {
	count, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute count: %w", err)
	}
	attrs := make([]rawAttribute, 0, count)
	for i := 0; i < int(count); i++ {
		nameIdx, err := br.ReadU2()
		if err != nil {
			return nil, fmt.Errorf("failed to read attribute name: %w", err)
		}
		length, err := br.ReadU4()
		if err != nil {
			return nil, fmt.Errorf("failed to read attribute length: %w", err)
		}
		name, err := pool.Utf8(nameIdx)
		if err != nil {
			return nil, fmt.Errorf("attribute name: %w", err)
		}
		info, err := br.ReadNBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("failed to read attribute %s: %w", name, err)
		}
		attrs = append(attrs, rawAttribute{name: name, info: info})
	}
	return attrs, nil
}

func decodeSignature(info []byte, pool Pool) (string, error) {
	idx, err := newSliceReader(info).ReadU2()
	if err != nil {
		return "", fmt.Errorf("signature attribute: %w", err)
	}
	return pool.Utf8(idx)
}

func decodeExceptions(info []byte, pool Pool) ([]string, error) {
	idxs, err := newSliceReader(info).ReadU2List()
	if err != nil {
		return nil, fmt.Errorf("exceptions attribute: %w", err)
	}
	out := make([]string, 0, len(idxs))
	for _, idx := range idxs {
		name, err := pool.ClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("exceptions attribute: %w", err)
		}
		out = append(out, name)
	}
	return out, nil
}

func decodeCode(info []byte, pool Pool) (*Code, error) {
	br := newSliceReader(info)
	c := &Code{}
	var err error
	if c.MaxStack, err = br.ReadU2(); err != nil {
		return nil, fmt.Errorf("code max_stack: %w", err)
	}
	if c.MaxLocals, err = br.ReadU2(); err != nil {
		return nil, fmt.Errorf("code max_locals: %w", err)
	}
	length, err := br.ReadU4()
	if err != nil {
		return nil, fmt.Errorf("code length: %w", err)
	}
	if c.Bytecode, err = br.ReadNBytes(int(length)); err != nil {
		return nil, fmt.Errorf("code bytes: %w", err)
	}

	handlers, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("exception table length: %w", err)
	}
	for i := 0; i < int(handlers); i++ {
		var h ExceptionHandler
		var catchIdx uint16
		for _, dst := range []*uint16{&h.StartPC, &h.EndPC, &h.HandlerPC, &catchIdx} {
			if *dst, err = br.ReadU2(); err != nil {
				return nil, fmt.Errorf("exception table entry %d: %w", i, err)
			}
		}
		if catchIdx != 0 {
			if h.CatchType, err = pool.ClassName(catchIdx); err != nil {
				return nil, fmt.Errorf("exception table entry %d: %w", i, err)
			}
		}
		c.ExceptionTable = append(c.ExceptionTable, h)
	}

	attrs, err := readAttributes(br, pool)
	if err != nil {
		return nil, fmt.Errorf("code attributes: %w", err)
	}
	for _, a := range attrs {
		if a.name != attrLocalVariableTable {
			continue
		}
		vars, err := decodeLocalVariables(a.info, pool)
		if err != nil {
			return nil, err
		}
		c.LocalVariables = append(c.LocalVariables, vars...)
	}
	return c, nil
}

func decodeLocalVariables(info []byte, pool Pool) ([]LocalVariable, error) {
	br := newSliceReader(info)
	count, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("local variable table: %w", err)
	}
	out := make([]LocalVariable, 0, count)
	for i := 0; i < int(count); i++ {
		var lv LocalVariable
		var nameIdx, descIdx uint16
		for _, dst := range []*uint16{&lv.StartPC, &lv.Length, &nameIdx, &descIdx, &lv.Index} {
			if *dst, err = br.ReadU2(); err != nil {
				return nil, fmt.Errorf("local variable %d: %w", i, err)
			}
		}
		if lv.Name, err = pool.Utf8(nameIdx); err != nil {
			return nil, fmt.Errorf("local variable %d name: %w", i, err)
		}
		if lv.Descriptor, err = pool.Utf8(descIdx); err != nil {
			return nil, fmt.Errorf("local variable %d descriptor: %w", i, err)
		}
		out = append(out, lv)
	}
	return out, nil
}

// decodeAnnotations returns every annotation type in a Runtime*Annotations
// attribute, including annotations nested inside element values.
func decodeAnnotations(info []byte, pool Pool, visible bool) ([]Annotation, error) {
	br := newSliceReader(info)
	count, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("annotation count: %w", err)
	}
	var out []Annotation
	for i := 0; i < int(count); i++ {
		if out, err = readAnnotation(br, pool, visible, out, 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeParameterAnnotations(info []byte, pool Pool, visible bool) ([]Annotation, error) {
	br := newSliceReader(info)
	params, err := br.ReadU1()
	if err != nil {
		return nil, fmt.Errorf("parameter annotation count: %w", err)
	}
	var out []Annotation
	for p := 0; p < int(params); p++ {
		count, err := br.ReadU2()
		if err != nil {
			return nil, fmt.Errorf("parameter %d annotation count: %w", p, err)
		}
		for i := 0; i < int(count); i++ {
			if out, err = readAnnotation(br, pool, visible, out, 0); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func readAnnotation(br *BinaryReader, pool Pool, visible bool, out []Annotation, depth int) ([]Annotation, error) {
	if depth > maxAnnotationDepth {
		return nil, fmt.Errorf("annotation nesting exceeds %d", maxAnnotationDepth)
	}
	typeIdx, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("annotation type: %w", err)
	}
	typ, err := pool.Utf8(typeIdx)
	if err != nil {
		return nil, fmt.Errorf("annotation type: %w", err)
	}
	out = append(out, Annotation{Type: typ, Visible: visible})

	pairs, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("annotation pairs: %w", err)
	}
	for i := 0; i < int(pairs); i++ {
		if err := br.Skip(2); err != nil {
			return nil, err
		}
		if out, err = readElementValue(br, pool, visible, out, depth+1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readElementValue(br *BinaryReader, pool Pool, visible bool, out []Annotation, depth int) ([]Annotation, error) {
	if depth > maxAnnotationDepth {
		return nil, fmt.Errorf("element value nesting exceeds %d", maxAnnotationDepth)
	}
	tag, err := br.ReadU1()
	if err != nil {
		return nil, fmt.Errorf("element value tag: %w", err)
	}
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		return out, br.Skip(2)
	case 'e':
		return out, br.Skip(4)
	case '@':
		return readAnnotation(br, pool, visible, out, depth+1)
	case '[':
		n, err := br.ReadU2()
		if err != nil {
			return nil, fmt.Errorf("element array length: %w", err)
		}
		for i := 0; i < int(n); i++ {
			if out, err = readElementValue(br, pool, visible, out, depth+1); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown element value tag %q", tag)
	}
}
