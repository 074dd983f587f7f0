// # internal/core/app/scanner.go
package app

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"depaudit/internal/core/errors"
	"depaudit/internal/engine/classfile"
	"depaudit/internal/engine/reference"
	"depaudit/internal/shared/observability"
	"depaudit/internal/shared/util"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"
)

// ClassScan is the merged extraction of one set of class directories.
type ClassScan struct {
	Refs reference.Map
	// Owned lists the classes defined in the scanned directories.
	Owned []string
	// Skipped lists class files that could not be parsed.
	Skipped []string
}

// ScanClasses parses every class file under dirs and merges the references
// they make. Malformed units are logged and skipped; missing directories
// are ignored.
func (a *App) ScanClasses(ctx context.Context, dirs []string) (*ClassScan, error) {
	files, err := a.classFiles(dirs)
	if err != nil {
		return nil, err
	}

	type extraction struct {
		name    string
		refs    reference.Map
		skipped bool
	}
	results := make([]extraction, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	if a.Config.Analysis.Workers > 0 {
		eg.SetLimit(a.Config.Analysis.Workers)
	}
	for i, f := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			start := time.Now()
			u, err := classfile.ParseFile(f.path)
			var refs reference.Map
			if err == nil {
				refs, err = reference.Extract(u)
			}
			observability.ExtractionDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				// A file removed while a compiler rewrites the directory reads
				// as not found; skip it like a malformed one.
				if !errors.IsCode(err, errors.CodeMalformedUnit) && !errors.IsCode(err, errors.CodeNotFound) {
					return err
				}
				slog.Warn("skipping class file", "path", f.path, "error", err)
				observability.UnitsExtractedTotal.WithLabelValues("skipped").Inc()
				results[i] = extraction{name: f.name, skipped: true}
				return nil
			}
			observability.UnitsExtractedTotal.WithLabelValues("ok").Inc()
			results[i] = extraction{name: u.Name, refs: refs}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	scan := &ClassScan{Refs: reference.Map{}}
	for i, r := range results {
		scan.Owned = append(scan.Owned, r.name)
		if r.skipped {
			scan.Skipped = append(scan.Skipped, files[i].path)
			continue
		}
		scan.Refs.Merge(r.refs)
	}
	return scan, nil
}

type classFile struct {
	path string
	// name is derived from the path and used when the unit cannot be parsed.
	name string
}

func (a *App) classFiles(dirs []string) ([]classFile, error) {
	var out []classFile
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			slog.Debug("class directory missing", "path", dir)
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if a.ignored(path, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			name, ok := util.ClassNameFromPath(rel)
			if !ok {
				return nil
			}
			out = append(out, classFile{path: path, name: name})
			return nil
		})
		if err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "walk class directory"), errors.CtxPath, dir)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

// ignored matches path against the ignore file, relative to the project root.
func (a *App) ignored(path string, isDir bool) bool {
	if a.ignore == nil {
		return false
	}
	rel, err := filepath.Rel(a.Paths.ProjectRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir {
		rel += "/"
	}
	return a.ignore.MatchesPath(rel)
}

// clientFilter drops references to classes the project defines itself and
// to classes matching the exclusion globs.
type clientFilter struct {
	owned map[string]bool
	globs []glob.Glob
}

func (a *App) clientFilter(ctx context.Context, scans ...*ClassScan) (*clientFilter, error) {
	f := &clientFilter{owned: make(map[string]bool), globs: a.excludes}
	for _, s := range scans {
		for _, name := range s.Owned {
			f.owned[name] = true
		}
	}

	if a.sources != nil && len(a.Paths.SourceDirs) > 0 {
		types, err := a.sources.Discover(ctx, a.Paths.SourceDirs, a.Config.Analysis.Workers)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxOperation, "discover_sources")
		}
		for _, name := range types {
			f.owned[name] = true
		}
	}
	return f, nil
}

func (f *clientFilter) excluded(class string) bool {
	if f.owned[class] {
		return true
	}
	// Nested types of an owned class are owned too, even when only the
	// outer type was discovered.
	for i := strings.IndexByte(class, '$'); i > 0; i = nextDollar(class, i) {
		if f.owned[class[:i]] {
			return true
		}
	}
	for _, g := range f.globs {
		if g.Match(class) {
			return true
		}
	}
	return false
}

func nextDollar(s string, after int) int {
	j := strings.IndexByte(s[after+1:], '$')
	if j < 0 {
		return -1
	}
	return after + 1 + j
}

// apply removes excluded classes from m and returns how many were removed.
func (f *clientFilter) apply(m reference.Map) int {
	dropped := 0
	for class := range m {
		if f.excluded(class) {
			delete(m, class)
			dropped++
		}
	}
	return dropped
}
