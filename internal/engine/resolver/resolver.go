// # internal/engine/resolver/resolver.go
package resolver

import (
	"context"
	"log/slog"

	"depaudit/internal/core/errors"
	"depaudit/internal/engine/archive"
	"depaudit/internal/engine/classfile"
	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/index"
	"depaudit/internal/engine/reference"
	"depaudit/internal/shared/observability"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultCacheSize = 4096

// Result partitions the client references. A reference against a class
// lands in exactly one of Mapped, Platform or Unmapped.
type Result struct {
	Mapped map[*depgraph.Node]reference.Map
	// Platform holds references satisfied by the platform table.
	Platform reference.Map
	Unmapped reference.Map
}

func newResult() *Result {
	return &Result{
		Mapped:   make(map[*depgraph.Node]reference.Map),
		Platform: reference.Map{},
		Unmapped: reference.Map{},
	}
}

func (r *Result) mapped(n *depgraph.Node) reference.Map {
	m, ok := r.Mapped[n]
	if !ok {
		m = reference.Map{}
		r.Mapped[n] = m
	}
	return m
}

// Merge unions other into r.
func (r *Result) Merge(other *Result) {
	for n, m := range other.Mapped {
		r.mapped(n).Merge(m)
	}
	r.Platform.Merge(other.Platform)
	r.Unmapped.Merge(other.Unmapped)
}

// MappedLen counts mapped references across every node.
func (r *Result) MappedLen() int {
	total := 0
	for _, m := range r.Mapped {
		total += m.Len()
	}
	return total
}

type unitKey struct {
	archive string
	class   string
}

// Resolver attributes client references to dependency nodes. A single
// Resolver is not safe for concurrent Resolve calls.
type Resolver struct {
	index    *index.Index
	platform reference.Map
	units    *lru.Cache[unitKey, *classfile.Unit]
}

// New returns a resolver over ix and the platform table. cacheSize bounds
// the number of parsed archive units kept between passes; zero selects a
// default.
func New(ix *index.Index, platform reference.Map, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[unitKey, *classfile.Unit](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create unit cache")
	}
	if platform == nil {
		platform = reference.Map{}
	}
	return &Resolver{index: ix, platform: platform, units: cache}, nil
}

// Resolve is a one-shot pass with a fresh resolver.
func Resolve(ctx context.Context, refs reference.Map, ix *index.Index, platform reference.Map) (*Result, error) {
	r, err := New(ix, platform, 0)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Resolve(ctx, refs)
}

func (r *Resolver) Close() error {
	if r == nil || r.units == nil {
		return nil
	}
	r.units.Purge()
	return nil
}

// Resolve runs one pass over refs. Archive handles opened during the pass
// are released before it returns, including on error.
func (r *Resolver) Resolve(ctx context.Context, refs reference.Map) (res *Result, err error) {
	ctx, span := observability.Tracer.Start(ctx, "resolver.Resolve", trace.WithAttributes(
		attribute.Int("classes", len(refs)),
	))
	defer span.End()

	p := &pass{Resolver: r, pool: archive.NewPool()}
	defer func() {
		if cerr := p.pool.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.CodeArchiveIO, "close archives")
		}
	}()

	res = newResult()
	for _, class := range refs.Classes() {
		if err := p.resolveClass(ctx, res, class, refs[class]); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	observability.ReferencesResolved.WithLabelValues("mapped").Set(float64(res.MappedLen()))
	observability.ReferencesResolved.WithLabelValues("unmapped").Set(float64(res.Unmapped.Len()))
	span.SetAttributes(
		attribute.Int("mapped", res.MappedLen()),
		attribute.Int("unmapped", res.Unmapped.Len()),
		attribute.Int("archives_opened", p.pool.Opens()),
	)
	return res, nil
}

// pass holds the per-invocation archive handles.
type pass struct {
	*Resolver
	pool *archive.Pool
}

func (p *pass) resolveClass(ctx context.Context, res *Result, class string, refs reference.Set) error {
	remaining := refs

	if _, ok := p.platform[class]; ok {
		known := p.platform.Members(class)
		matched := reference.Set{}
		for ref := range remaining {
			if _, hit := known[ref.Member]; hit {
				matched.Add(ref)
			}
		}
		if len(matched) > 0 {
			res.Platform.AddSet(class, matched)
		}
		remaining = remaining.Without(matched)
		if !p.index.Has(class) {
			switch {
			case len(refs) == 0:
				res.Platform.Touch(class)
			case len(remaining) > 0:
				res.Unmapped.AddSet(class, remaining)
			}
			return nil
		}
		if len(remaining) == 0 && len(refs) > 0 {
			return nil
		}
	}

	node, ok := p.index.First(class)
	if !ok {
		res.Unmapped.AddSet(class, remaining)
		return nil
	}

	if len(remaining) == 0 {
		res.mapped(node).Touch(class)
		return nil
	}

	u, err := p.unit(ctx, node, class)
	if err != nil {
		return err
	}
	if u == nil {
		res.Unmapped.AddSet(class, remaining)
		return nil
	}
	used := matchDeclared(u, remaining)
	remaining = remaining.Without(used)

	if len(remaining) > 0 {
		var inherited reference.Set
		inherited, remaining, err = p.walk(ctx, u, remaining, map[string]bool{class: true})
		if err != nil {
			return err
		}
		for ref := range inherited {
			used.Add(ref)
		}
	}

	// A node is credited only when at least one member resolved against it.
	if len(used) > 0 {
		res.mapped(node).AddSet(class, used)
	}
	if len(remaining) > 0 {
		res.Unmapped.AddSet(class, remaining)
	}
	return nil
}

// walk searches the ancestors of u for the remaining references. It returns
// the references it matched and those still unresolved. visited stops the
// walk on cyclic hierarchies.
func (p *pass) walk(ctx context.Context, u *classfile.Unit, remaining reference.Set, visited map[string]bool) (reference.Set, reference.Set, error) {
	matched := reference.Set{}
	for _, parent := range u.Supertypes() {
		if len(remaining) == 0 {
			break
		}
		if visited[parent] {
			continue
		}
		visited[parent] = true

		node, ok := p.index.First(parent)
		if !ok {
			// Unknown ancestors end this branch.
			continue
		}
		pu, err := p.unit(ctx, node, parent)
		if err != nil {
			return nil, nil, err
		}
		if pu == nil {
			continue
		}
		hit := matchDeclared(pu, remaining)
		for ref := range hit {
			matched.Add(ref)
		}
		remaining = remaining.Without(hit)

		deeper, rest, err := p.walk(ctx, pu, remaining, visited)
		if err != nil {
			return nil, nil, err
		}
		for ref := range deeper {
			matched.Add(ref)
		}
		remaining = rest
	}
	return matched, remaining, nil
}

// unit loads class from node's archive, consulting the cache first. A nil
// unit with a nil error means the class could not be decoded and the caller
// treats it as unavailable. Failing to read the archive is an error.
func (p *pass) unit(ctx context.Context, node *depgraph.Node, class string) (*classfile.Unit, error) {
	key := unitKey{archive: node.ArchivePath, class: class}
	if u, ok := p.units.Get(key); ok {
		observability.ArchiveUnitLoadsTotal.WithLabelValues("cache").Inc()
		return u, nil
	}
	a, err := p.pool.Get(ctx, node.ArchivePath)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxNode, node.Key())
	}
	u, err := a.Unit(class)
	switch {
	case err == nil:
	case errors.IsCode(err, errors.CodeMalformedUnit), errors.IsCode(err, errors.CodeNotFound):
		slog.Warn("indexed class unavailable", "archive", node.ArchivePath, "class", class, "error", err)
		return nil, nil
	default:
		return nil, errors.AddContext(err, errors.CtxNode, node.Key())
	}
	observability.ArchiveUnitLoadsTotal.WithLabelValues("archive").Inc()
	p.units.Add(key, u)
	return u, nil
}

// matchDeclared returns the references satisfied by members u declares.
// Method members are name+descriptor, constructors included; fields match by
// name.
func matchDeclared(u *classfile.Unit, refs reference.Set) reference.Set {
	methods := make(map[string]struct{}, len(u.Methods))
	for _, m := range u.Methods {
		methods[reference.MethodMember(m.Name, m.Descriptor)] = struct{}{}
	}
	fields := make(map[string]struct{}, len(u.Fields))
	for _, f := range u.Fields {
		fields[f.Name] = struct{}{}
	}

	out := reference.Set{}
	for ref := range refs {
		if ref.Access.IsField() {
			if _, ok := fields[ref.Member]; ok {
				out.Add(ref)
			}
			continue
		}
		if _, ok := methods[ref.Member]; ok {
			out.Add(ref)
			continue
		}
		// Other-kind references (method handles) may name either.
		if ref.Access == reference.Other {
			if _, ok := fields[ref.Member]; ok {
				out.Add(ref)
			}
		}
	}
	return out
}
