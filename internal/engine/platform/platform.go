// Package platform loads and builds the table of platform library members.
package platform

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"depaudit/internal/core/errors"
	"depaudit/internal/engine/archive"
	"depaudit/internal/engine/classfile"
	"depaudit/internal/engine/reference"
	"depaudit/internal/shared/util"
)

// Table is the on-disk form: class name to member signatures. Methods are
// recorded as name+descriptor, fields by name.
type Table map[string][]string

// Load reads a JSON table and returns it as a reference map whose entries
// carry the Other access kind. A missing path yields an empty map.
func Load(path string) (reference.Map, error) {
	if path == "" {
		return reference.Map{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("platform table not found, every platform class will be unmapped", "path", path)
			return reference.Map{}, nil
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read platform table"), errors.CtxPath, path)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "decode platform table"), errors.CtxPath, path)
	}
	return t.Map(), nil
}

// Map converts the table into a reference map.
func (t Table) Map() reference.Map {
	m := make(reference.Map, len(t))
	for class, members := range t {
		m.Touch(class)
		for _, member := range members {
			m.Add(class, reference.Reference{Member: member, Access: reference.Other})
		}
	}
	return m
}

// FromMap collapses a reference map into a table with sorted members.
func FromMap(m reference.Map) Table {
	t := make(Table, len(m))
	for class := range m {
		members := make([]string, 0, len(m[class]))
		for member := range m.Members(class) {
			members = append(members, member)
		}
		sort.Strings(members)
		t[class] = members
	}
	return t
}

// Save writes the table as indented JSON.
func Save(path string, t Table) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode platform table")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "create table directory"), errors.CtxPath, dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write platform table"), errors.CtxPath, path)
	}
	return nil
}

// BuildFromArchives records the members of every class in the given
// archives: everything the class declares plus the public members it
// inherits from superclasses and interfaces found in the same archives.
// Constructors and initializers are never inherited. When two archives ship
// the same class the first one wins. Classes that fail to parse are skipped
// with a warning.
func BuildFromArchives(ctx context.Context, paths []string) (Table, error) {
	units := make(map[string]*classfile.Unit)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := archive.Open(path)
		if err != nil {
			return nil, err
		}
		for _, class := range a.Classes() {
			if _, dup := units[class]; dup {
				continue
			}
			u, err := a.Unit(class)
			if err != nil {
				slog.Warn("skipping platform class", "archive", path, "class", class, "error", err)
				continue
			}
			units[class] = u
		}
		if err := a.Close(); err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeArchiveIO, "close archive"), errors.CtxArchive, path)
		}
	}

	t := make(Table, len(units))
	for class, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		members := make(map[string]struct{})
		for _, m := range u.Methods {
			members[reference.MethodMember(m.Name, m.Descriptor)] = struct{}{}
		}
		for _, f := range u.Fields {
			members[f.Name] = struct{}{}
		}
		inherit(units, u, members, map[string]bool{class: true})
		t[class] = util.SortedKeys(members)
	}
	return t, nil
}

// inherit adds the public members of u's ancestors to members. visited
// guards against malformed cyclic hierarchies. Ancestors missing from the
// archives end that branch.
func inherit(units map[string]*classfile.Unit, u *classfile.Unit, members map[string]struct{}, visited map[string]bool) {
	for _, parent := range u.Supertypes() {
		if visited[parent] {
			continue
		}
		visited[parent] = true
		pu, ok := units[parent]
		if !ok {
			continue
		}
		for _, m := range pu.Methods {
			if m.AccessFlags&classfile.AccPublic == 0 || m.Name == classfile.ConstructorName || m.Name == "<clinit>" {
				continue
			}
			members[reference.MethodMember(m.Name, m.Descriptor)] = struct{}{}
		}
		for _, f := range pu.Fields {
			if f.AccessFlags&classfile.AccPublic != 0 {
				members[f.Name] = struct{}{}
			}
		}
		inherit(units, pu, members, visited)
	}
}
