// # internal/engine/sources/sources.go
// Package sources discovers the type names a project declares in its Java
// sources.
package sources

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"depaudit/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	"golang.org/x/sync/errgroup"
)

var declarationKinds = map[string]bool{
	"class_declaration":           true,
	"interface_declaration":       true,
	"enum_declaration":            true,
	"record_declaration":          true,
	"annotation_type_declaration": true,
}

var bodyKinds = map[string]bool{
	"class_body":             true,
	"interface_body":         true,
	"enum_body":              true,
	"enum_body_declarations": true,
	"annotation_type_body":   true,
}

// Discoverer parses Java sources with a pooled tree-sitter parser.
// It is safe for concurrent use.
type Discoverer struct {
	lang *sitter.Language
	pool sync.Pool
}

func NewDiscoverer() *Discoverer {
	d := &Discoverer{lang: sitter.NewLanguage(tree_sitter_java.Language())}
	d.pool = sync.Pool{
		New: func() any {
			p := sitter.NewParser()
			p.SetLanguage(d.lang)
			return p
		},
	}
	return d
}

// TypesInSource returns the binary names of the top-level and member types
// declared in one compilation unit, e.g. "com.acme.Outer$Inner". Local and
// anonymous classes are not reported.
func (d *Discoverer) TypesInSource(source []byte) []string {
	p := d.pool.Get().(*sitter.Parser)
	defer func() {
		p.Reset()
		d.pool.Put(p)
	}()

	tree := p.Parse(source, nil)
	if tree == nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	pkg := ""
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child.Kind() != "package_declaration" {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			id := child.NamedChild(j)
			if id.Kind() == "scoped_identifier" || id.Kind() == "identifier" {
				pkg = strings.Join(strings.Fields(id.Utf8Text(source)), "")
			}
		}
	}

	var out []string
	var visit func(node *sitter.Node, outer string)
	visit = func(node *sitter.Node, outer string) {
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			switch {
			case declarationKinds[child.Kind()]:
				nameNode := child.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				name := nameNode.Utf8Text(source)
				switch {
				case outer != "":
					name = outer + "$" + name
				case pkg != "":
					name = pkg + "." + name
				}
				out = append(out, name)
				if body := child.ChildByFieldName("body"); body != nil {
					visit(body, name)
				}
			case bodyKinds[child.Kind()]:
				visit(child, outer)
			}
		}
	}
	visit(root, "")
	return out
}

// Discover walks dirs for .java files and returns every declared type name,
// sorted and deduplicated. Unreadable files are skipped with a warning.
func (d *Discoverer) Discover(ctx context.Context, dirs []string, workers int) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() && strings.HasSuffix(path, ".java") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				slog.Debug("source directory missing", "path", dir)
				continue
			}
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "walk source directory"), errors.CtxPath, dir)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]struct{})
	eg, egCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for _, path := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(path)
			if err != nil {
				slog.Warn("skipping unreadable source", "path", path, "error", err)
				return nil
			}
			types := d.TypesInSource(src)
			mu.Lock()
			for _, t := range types {
				seen[t] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
