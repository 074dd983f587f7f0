// Package index maps class names to the dependency nodes whose archives
// ship them.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"depaudit/internal/core/errors"
	"depaudit/internal/engine/archive"
	"depaudit/internal/engine/depgraph"
	"depaudit/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Index is the Dependency Class Index. It is read-only once built.
type Index struct {
	candidates   map[string][]*depgraph.Node
	unattributed []string
	archives     int
}

func New() *Index {
	return &Index{candidates: make(map[string][]*depgraph.Node)}
}

// Insert appends node to the candidate list of className. A node is never
// listed twice for the same class.
func (ix *Index) Insert(className string, node *depgraph.Node) {
	for _, existing := range ix.candidates[className] {
		if existing == node {
			return
		}
	}
	ix.candidates[className] = append(ix.candidates[className], node)
}

// Lookup returns every candidate for className in insertion order.
func (ix *Index) Lookup(className string) []*depgraph.Node {
	return ix.candidates[className]
}

// First returns the candidate the resolver uses.
func (ix *Index) First(className string) (*depgraph.Node, bool) {
	c := ix.candidates[className]
	if len(c) == 0 {
		return nil, false
	}
	return c[0], true
}

func (ix *Index) Has(className string) bool {
	return len(ix.candidates[className]) > 0
}

// Len returns the number of distinct class names.
func (ix *Index) Len() int {
	return len(ix.candidates)
}

// Archives returns how many archives contributed classes.
func (ix *Index) Archives() int {
	return ix.archives
}

// Classes returns the indexed class names, sorted.
func (ix *Index) Classes() []string {
	out := make([]string, 0, len(ix.candidates))
	for name := range ix.candidates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Ambiguous returns class names with more than one candidate, sorted.
func (ix *Index) Ambiguous() []string {
	var out []string
	for name, c := range ix.candidates {
		if len(c) > 1 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Unattributed lists files that could not be matched to a node or opened.
func (ix *Index) Unattributed() []string {
	return ix.unattributed
}

// AddUnattributed records files found outside the graph, e.g. by Attribute.
func (ix *Index) AddUnattributed(paths ...string) {
	ix.unattributed = append(ix.unattributed, paths...)
	sort.Strings(ix.unattributed)
}

// Attribute matches the files of dir to graph nodes by archive file name and
// sets ArchivePath on each matched node. Non-omitted nodes are preferred over
// omitted ones with the same coordinates. Files with no matching node are
// returned as unattributed.
func Attribute(dir string, g *depgraph.Graph) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read dependency directory"), errors.CtxPath, dir)
	}

	byJar := make(map[string]*depgraph.Node)
	deps := g.Dependencies()
	for _, pass := range []bool{false, true} {
		for _, n := range deps {
			if n.Omitted != pass {
				continue
			}
			if _, taken := byJar[n.JarName()]; !taken {
				byJar[n.JarName()] = n
			}
		}
	}

	var unattributed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".jar") {
			unattributed = append(unattributed, path)
			continue
		}
		n, ok := byJar[e.Name()]
		if !ok {
			unattributed = append(unattributed, path)
			continue
		}
		n.ArchivePath = path
	}
	sort.Strings(unattributed)
	return unattributed, nil
}

// Build opens the archive of every non-omitted node and indexes its classes.
// Archives are listed concurrently by up to workers goroutines; insertion
// happens in node order so candidate lists are deterministic. Archives that
// cannot be opened are reported as unattributed rather than failing the run.
func Build(ctx context.Context, nodes []*depgraph.Node, workers int) (*Index, error) {
	ctx, span := observability.Tracer.Start(ctx, "index.Build", trace.WithAttributes(
		attribute.Int("nodes", len(nodes)),
	))
	defer span.End()

	type listing struct {
		classes []string
		err     error
	}

	var targets []*depgraph.Node
	for _, n := range nodes {
		if n.Omitted || n.ArchivePath == "" {
			continue
		}
		targets = append(targets, n)
	}

	results := make([]listing, len(targets))
	eg, egCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, n := range targets {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			classes, err := archive.ListClasses(n.ArchivePath)
			results[i] = listing{classes: classes, err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ix := New()
	for i, n := range targets {
		r := results[i]
		if r.err != nil {
			slog.Warn("archive not indexed", "archive", n.ArchivePath, "node", n.Key(), "error", r.err)
			ix.unattributed = append(ix.unattributed, n.ArchivePath)
			continue
		}
		for _, name := range r.classes {
			ix.Insert(name, n)
		}
		ix.archives++
	}
	sort.Strings(ix.unattributed)

	observability.ArchivesIndexed.Set(float64(ix.archives))
	observability.IndexedClasses.Set(float64(ix.Len()))
	span.SetAttributes(attribute.Int("classes", ix.Len()), attribute.Int("archives", ix.archives))
	slog.Debug("class index built", "archives", ix.archives, "classes", ix.Len(), "unattributed", len(ix.unattributed))
	return ix, nil
}
