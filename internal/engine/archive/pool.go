package archive

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
)

// Pool caches open archives for the lifetime of one resolution pass.
type Pool struct {
	mu      sync.Mutex
	handles map[string]*Archive
	opens   int
}

func NewPool() *Pool {
	return &Pool{handles: make(map[string]*Archive)}
}

// Get returns the open archive for path, opening it on first use. The
// context is checked before any blocking open.
func (p *Pool) Get(ctx context.Context, path string) (*Archive, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.handles[path]; ok {
		return a, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := Open(path)
	if err != nil {
		return nil, err
	}
	p.handles[path] = a
	p.opens++
	return a, nil
}

// Opens reports how many archives were opened through the pool.
func (p *Pool) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// Close releases every cached handle. The pool can be reused afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([]string, 0, len(p.handles))
	for path := range p.handles {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	var errs []error
	for _, path := range paths {
		if err := p.handles[path].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.handles = make(map[string]*Archive)
	return stderrors.Join(errs...)
}

// Len returns the number of open handles.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
