// Package archive reads compiled units out of dependency archives.
package archive

import (
	"archive/zip"
	"depaudit/internal/core/errors"
	"depaudit/internal/engine/classfile"
	"io"
	"sort"
)

// maxEntrySize caps a single class entry read from an archive.
const maxEntrySize = 64 << 20

// Archive is an open jar. It is not safe for concurrent use.
type Archive struct {
	path    string
	zr      *zip.ReadCloser
	classes map[string]*zip.File
}

// Open opens path and indexes its class entries. Failures carry ARCHIVE_IO.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeArchiveIO, "open archive"), errors.CtxArchive, path)
	}
	a := &Archive{path: path, zr: zr, classes: make(map[string]*zip.File)}
	for _, f := range zr.File {
		name, ok := classfile.ClassNameFromEntry(f.Name)
		if !ok || f.FileInfo().IsDir() {
			continue
		}
		// Base entries win over multi-release overlays.
		if existing, dup := a.classes[name]; dup && existing.Name == classfile.EntryName(name) {
			continue
		}
		a.classes[name] = f
	}
	return a, nil
}

func (a *Archive) Path() string {
	return a.path
}

// Classes returns the dot-qualified names of every class in the archive.
func (a *Archive) Classes() []string {
	out := make([]string, 0, len(a.classes))
	for name := range a.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (a *Archive) Has(className string) bool {
	_, ok := a.classes[className]
	return ok
}

// ReadClass returns the raw bytes of a class entry.
func (a *Archive) ReadClass(className string) ([]byte, error) {
	f, ok := a.classes[className]
	if !ok {
		return nil, errors.AddContext(errors.New(errors.CodeNotFound, "class not in archive"), errors.CtxClass, className)
	}
	if f.UncompressedSize64 > maxEntrySize {
		return nil, errors.AddContext(errors.Newf(errors.CodeArchiveIO, "entry %s exceeds %d bytes", f.Name, maxEntrySize), errors.CtxArchive, a.path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeArchiveIO, "open entry "+f.Name), errors.CtxArchive, a.path)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeArchiveIO, "read entry "+f.Name), errors.CtxArchive, a.path)
	}
	return data, nil
}

// Unit reads and parses a class entry.
func (a *Archive) Unit(className string) (*classfile.Unit, error) {
	data, err := a.ReadClass(className)
	if err != nil {
		return nil, err
	}
	u, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxArchive, a.path)
	}
	return u, nil
}

func (a *Archive) Close() error {
	if a == nil || a.zr == nil {
		return nil
	}
	err := a.zr.Close()
	a.zr = nil
	return err
}

// ListClasses opens path, lists its classes and closes it.
func ListClasses(path string) ([]string, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.Classes(), nil
}
