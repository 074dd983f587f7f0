// # internal/engine/classfile/parse.go
package classfile

import (
	"bytes"
	"depaudit/internal/core/errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Parse decodes one compiled unit. Any structural failure is reported as a
// MALFORMED_UNIT domain error so callers can skip the unit and continue.
func Parse(r io.Reader) (*Unit, error) {
	br := NewBinaryReader(r)
	u, err := parse(br)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMalformedUnit, fmt.Sprintf("malformed compiled unit at byte %d", br.BytesRead()))
	}
	return u, nil
}

func ParseBytes(b []byte) (*Unit, error) {
	return Parse(bytes.NewReader(b))
}

func ParseFile(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read compiled unit"), errors.CtxPath, path)
	}
	u, err := ParseBytes(data)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return u, nil
}

func parse(br *BinaryReader) (*Unit, error) {
	magic, err := br.ReadU4()
	if err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("bad magic 0x%08X", magic)
	}

	u := &Unit{}
	if u.MinorVersion, err = br.ReadU2(); err != nil {
		return nil, fmt.Errorf("failed to read minor version: %w", err)
	}
	if u.MajorVersion, err = br.ReadU2(); err != nil {
		return nil, fmt.Errorf("failed to read major version: %w", err)
	}
	if u.Pool, err = readConstantPool(br); err != nil {
		return nil, err
	}
	if u.AccessFlags, err = br.ReadU2(); err != nil {
		return nil, fmt.Errorf("failed to read access flags: %w", err)
	}

	thisIdx, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("failed to read this_class: %w", err)
	}
	if u.Name, err = u.Pool.ClassName(thisIdx); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}

	superIdx, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("failed to read super_class: %w", err)
	}
	// Only java.lang.Object and module-info carry a zero super_class.
	if superIdx != 0 {
		if u.SuperName, err = u.Pool.ClassName(superIdx); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	ifaces, err := br.ReadU2List()
	if err != nil {
		return nil, fmt.Errorf("failed to read interfaces: %w", err)
	}
	for _, idx := range ifaces {
		name, err := u.Pool.ClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("interface: %w", err)
		}
		u.Interfaces = append(u.Interfaces, name)
	}

	if u.Fields, err = readFields(br, u.Pool); err != nil {
		return nil, err
	}
	if u.Methods, err = readMethods(br, u.Pool); err != nil {
		return nil, err
	}

	attrs, err := readAttributes(br, u.Pool)
	if err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	for _, a := range attrs {
		switch a.name {
		case attrSignature:
			if u.Signature, err = decodeSignature(a.info, u.Pool); err != nil {
				return nil, err
			}
		case attrRuntimeVisibleAnnotations, attrRuntimeInvisibleAnnotations:
			anns, err := decodeAnnotations(a.info, u.Pool, a.name == attrRuntimeVisibleAnnotations)
			if err != nil {
				return nil, fmt.Errorf("class annotations: %w", err)
			}
			u.Annotations = append(u.Annotations, anns...)
		}
	}
	return u, nil
}

func readMemberHeader(br *BinaryReader, pool Pool) (uint16, string, string, []rawAttribute, error) {
	flags, err := br.ReadU2()
	if err != nil {
		return 0, "", "", nil, err
	}
	nameIdx, err := br.ReadU2()
	if err != nil {
		return 0, "", "", nil, err
	}
	descIdx, err := br.ReadU2()
	if err != nil {
		return 0, "", "", nil, err
	}
	name, err := pool.Utf8(nameIdx)
	if err != nil {
		return 0, "", "", nil, err
	}
	desc, err := pool.Utf8(descIdx)
	if err != nil {
		return 0, "", "", nil, err
	}
	attrs, err := readAttributes(br, pool)
	if err != nil {
		return 0, "", "", nil, err
	}
	return flags, name, desc, attrs, nil
}

func readFields(br *BinaryReader, pool Pool) ([]Field, error) {
	count, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("failed to read field count: %w", err)
	}
	fields := make([]Field, 0, count)
	for i := 0; i < int(count); i++ {
		flags, name, desc, attrs, err := readMemberHeader(br, pool)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		f := Field{AccessFlags: flags, Name: name, Descriptor: desc}
		for _, a := range attrs {
			switch a.name {
			case attrSignature:
				if f.Signature, err = decodeSignature(a.info, pool); err != nil {
					return nil, fmt.Errorf("field %s: %w", name, err)
				}
			case attrRuntimeVisibleAnnotations, attrRuntimeInvisibleAnnotations:
				anns, err := decodeAnnotations(a.info, pool, a.name == attrRuntimeVisibleAnnotations)
				if err != nil {
					return nil, fmt.Errorf("field %s annotations: %w", name, err)
				}
				f.Annotations = append(f.Annotations, anns...)
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func readMethods(br *BinaryReader, pool Pool) ([]Method, error) {
	count, err := br.ReadU2()
	if err != nil {
		return nil, fmt.Errorf("failed to read method count: %w", err)
	}
	methods := make([]Method, 0, count)
	for i := 0; i < int(count); i++ {
		flags, name, desc, attrs, err := readMemberHeader(br, pool)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		m := Method{AccessFlags: flags, Name: name, Descriptor: desc}
		if err := applyMethodAttributes(&m, attrs, pool); err != nil {
			return nil, fmt.Errorf("method %s%s: %w", name, desc, err)
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func applyMethodAttributes(m *Method, attrs []rawAttribute, pool Pool) error {
	var err error
	for _, a := range attrs {
		switch a.name {
		case attrCode:
			if m.Code, err = decodeCode(a.info, pool); err != nil {
				return err
			}
		case attrExceptions:
			if m.Exceptions, err = decodeExceptions(a.info, pool); err != nil {
				return err
			}
		case attrSignature:
			if m.Signature, err = decodeSignature(a.info, pool); err != nil {
				return err
			}
		case attrRuntimeVisibleAnnotations, attrRuntimeInvisibleAnnotations:
			anns, err := decodeAnnotations(a.info, pool, a.name == attrRuntimeVisibleAnnotations)
			if err != nil {
				return err
			}
			m.Annotations = append(m.Annotations, anns...)
		case attrRuntimeVisibleParameterAnnotations, attrRuntimeInvisibleParameterAnnotations:
			anns, err := decodeParameterAnnotations(a.info, pool, a.name == attrRuntimeVisibleParameterAnnotations)
			if err != nil {
				return err
			}
			m.Annotations = append(m.Annotations, anns...)
		}
	}
	return nil
}

// InternalToDotted converts "com/lib/Widget" to "com.lib.Widget".
func InternalToDotted(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// EntryName returns the archive entry path for a dot-qualified class name.
func EntryName(className string) string {
	return strings.ReplaceAll(className, ".", "/") + ".class"
}

// ClassNameFromEntry converts an archive entry path to a dot-qualified class
// name. Multi-release entries under META-INF/versions/N/ map to their base name.
func ClassNameFromEntry(entry string) (string, bool) {
	if !strings.HasSuffix(entry, ".class") {
		return "", false
	}
	entry = strings.TrimSuffix(entry, ".class")
	if rest, ok := strings.CutPrefix(entry, "META-INF/versions/"); ok {
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			return "", false
		}
		entry = rest[slash+1:]
	}
	if strings.HasPrefix(entry, "META-INF/") {
		return "", false
	}
	base := entry[strings.LastIndexByte(entry, '/')+1:]
	if base == "module-info" || base == "package-info" {
		return "", false
	}
	return InternalToDotted(entry), true
}
