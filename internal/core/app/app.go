// # internal/core/app/app.go
package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"depaudit/internal/core/config"
	"depaudit/internal/core/ports"
	"depaudit/internal/data/store"
	"depaudit/internal/engine/build"
	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/index"
	"depaudit/internal/engine/platform"
	"depaudit/internal/engine/reference"
	"depaudit/internal/engine/resolver"
	"depaudit/internal/engine/sources"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// Dependencies are the collaborators an App drives. Nil Sources and Store
// disable source discovery and run persistence.
type Dependencies struct {
	Build   ports.BuildTool
	Sources ports.SourceScanner
	Store   ports.RunStore
}

type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	build    ports.BuildTool
	sources  ports.SourceScanner
	store    ports.RunStore
	excludes []glob.Glob
	ignore   *ignore.GitIgnore
	platform reference.Map

	// deps survives between runs so watch mode only re-reads client classes.
	depsMu sync.Mutex
	deps   *dependencyState

	updateMu sync.RWMutex
	onUpdate func(*Report)
	last     *Report
}

type dependencyState struct {
	graph    *depgraph.Graph
	index    *index.Index
	resolver *resolver.Resolver
}

// New wires the default collaborators: maven, tree-sitter source discovery
// and, when enabled, the SQLite run store.
func New(cfg *config.Config, cwd string) (*App, error) {
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, err
	}

	deps := Dependencies{
		Build: build.Maven{
			Command: cfg.Build.Command,
			Args:    cfg.Build.Args,
			Timeout: cfg.Build.Timeout,
		},
		Sources: sources.NewDiscoverer(),
	}
	if cfg.DB.Enabled {
		s, err := store.Open(paths.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		deps.Store = s
	}

	a, err := NewWithDependencies(cfg, paths, deps)
	if err != nil && deps.Store != nil {
		_ = deps.Store.Close()
	}
	return a, err
}

func NewWithDependencies(cfg *config.Config, paths config.ResolvedPaths, deps Dependencies) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Build == nil {
		return nil, fmt.Errorf("build tool is required")
	}

	excludes, err := compileGlobs(cfg.Analysis.ExcludeClasses)
	if err != nil {
		return nil, err
	}

	table, err := platform.Load(paths.PlatformTable)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:   cfg,
		Paths:    paths,
		build:    deps.Build,
		sources:  deps.Sources,
		store:    deps.Store,
		excludes: excludes,
		ignore:   loadIgnoreFile(paths.IgnoreFile),
		platform: table,
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude class pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func loadIgnoreFile(path string) *ignore.GitIgnore {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		slog.Warn("ignore file not usable", "path", path, "error", err)
		return nil
	}
	return gi
}

// SetUpdateHandler registers a callback invoked after every completed run.
func (a *App) SetUpdateHandler(handler func(*Report)) {
	a.updateMu.Lock()
	defer a.updateMu.Unlock()
	a.onUpdate = handler
}

// LastReport returns the most recent completed run, or nil.
func (a *App) LastReport() *Report {
	a.updateMu.RLock()
	defer a.updateMu.RUnlock()
	return a.last
}

func (a *App) emitUpdate(r *Report) {
	a.updateMu.Lock()
	a.last = r
	handler := a.onUpdate
	a.updateMu.Unlock()
	if handler != nil {
		handler(r)
	}
}

// Close releases the resolver cache and the run store.
func (a *App) Close() error {
	a.depsMu.Lock()
	if a.deps != nil && a.deps.resolver != nil {
		_ = a.deps.resolver.Close()
	}
	a.deps = nil
	a.depsMu.Unlock()

	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
