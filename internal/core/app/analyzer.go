// # internal/core/app/analyzer.go
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"depaudit/internal/core/errors"
	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/index"
	"depaudit/internal/engine/reference"
	"depaudit/internal/engine/resolver"
	"depaudit/internal/shared/observability"
	"depaudit/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Analyze runs the whole pipeline: dependency tree, archive index, optional
// compile, client extraction, resolution, reports and persistence.
func (a *App) Analyze(ctx context.Context) (*Report, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Analyze", trace.WithAttributes(
		attribute.String("project", a.Paths.ProjectRoot),
	))
	defer span.End()

	start := time.Now()
	deps, err := a.prepareDependencies(ctx)
	if err != nil {
		return nil, err
	}

	if a.Config.Build.ShouldRun() && a.Config.Build.ShouldCompile() {
		if err := a.stage("compile", func() error {
			return a.build.Compile(ctx, a.Paths.ProjectRoot, a.Config.Project.IncludeTests)
		}); err != nil {
			return nil, errors.AddContext(err, errors.CtxOperation, "compile")
		}
	}

	return a.analyzeClasses(ctx, deps, start)
}

// Reanalyze re-reads the client classes against the dependency index built by
// the last Analyze. It falls back to a full Analyze when there is none.
func (a *App) Reanalyze(ctx context.Context) (*Report, error) {
	a.depsMu.Lock()
	deps := a.deps
	a.depsMu.Unlock()
	if deps == nil {
		return a.Analyze(ctx)
	}

	ctx, span := observability.Tracer.Start(ctx, "app.Reanalyze")
	defer span.End()
	return a.analyzeClasses(ctx, deps, time.Now())
}

func (a *App) prepareDependencies(ctx context.Context) (*dependencyState, error) {
	if a.Config.Build.ShouldRun() {
		if err := os.MkdirAll(filepath.Dir(a.Paths.TreeFile), 0o755); err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "create tree file directory"), errors.CtxPath, a.Paths.TreeFile)
		}
		if err := a.stage("dependency_tree", func() error {
			return a.build.DependencyTree(ctx, a.Paths.ProjectRoot, a.Paths.TreeFile)
		}); err != nil {
			return nil, errors.AddContext(err, errors.CtxOperation, "dependency_tree")
		}
		if err := a.stage("copy_dependencies", func() error {
			return a.build.CopyDependencies(ctx, a.Paths.ProjectRoot, a.Paths.DependencyDir)
		}); err != nil {
			return nil, errors.AddContext(err, errors.CtxOperation, "copy_dependencies")
		}
	}

	g, err := depgraph.ParseFile(a.Paths.TreeFile)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "parse_dependency_tree")
	}

	var ix *index.Index
	err = a.stage("index", func() error {
		unattributed, err := index.Attribute(a.Paths.DependencyDir, g)
		if err != nil {
			return err
		}
		ix, err = index.Build(ctx, g.Dependencies(), a.Config.Analysis.Workers)
		if err != nil {
			return err
		}
		ix.AddUnattributed(unattributed...)
		return nil
	})
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "index")
	}
	observability.UnattributedFiles.Set(float64(len(ix.Unattributed())))
	slog.Info("dependency index ready",
		"nodes", len(g.Dependencies()),
		"archives", ix.Archives(),
		"classes", ix.Len(),
		"ambiguous", len(ix.Ambiguous()),
		"unattributed", len(ix.Unattributed()))

	r, err := resolver.New(ix, a.platform, a.Config.Analysis.ClassCacheSize)
	if err != nil {
		return nil, err
	}

	deps := &dependencyState{graph: g, index: ix, resolver: r}
	a.depsMu.Lock()
	if a.deps != nil && a.deps.resolver != nil {
		_ = a.deps.resolver.Close()
	}
	a.deps = deps
	a.depsMu.Unlock()
	return deps, nil
}

func (a *App) analyzeClasses(ctx context.Context, deps *dependencyState, start time.Time) (*Report, error) {
	var mainScan, testScan *ClassScan
	err := a.stage("extract", func() error {
		var err error
		mainScan, err = a.ScanClasses(ctx, a.Paths.ClassesDirs)
		if err != nil {
			return err
		}
		testScan = &ClassScan{Refs: reference.Map{}}
		if a.Config.Project.IncludeTests {
			testScan, err = a.ScanClasses(ctx, a.Paths.TestClassesDirs)
		}
		return err
	})
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "extract")
	}

	filter, err := a.clientFilter(ctx, mainScan, testScan)
	if err != nil {
		return nil, err
	}
	dropped := filter.apply(mainScan.Refs) + filter.apply(testScan.Refs)
	slog.Debug("client classes excluded", "owned", len(filter.owned), "dropped", dropped)

	result, err := a.resolveAll(ctx, deps.resolver, mainScan.Refs, testScan.Refs)
	if err != nil {
		return nil, err
	}

	rep := newReport(a.projectKey(), deps, result, a.Config.Output.ExcludeTestScope)
	rep.Skipped = append(append([]string(nil), mainScan.Skipped...), testScan.Skipped...)

	if err := a.stage("report", func() error {
		return a.writeOutputs(rep)
	}); err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "report")
	}
	if err := a.persist(rep); err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "persist")
	}

	rep.Duration = time.Since(start)
	slog.Info("analysis complete",
		"mapped_nodes", len(rep.Result.Mapped),
		"mapped_refs", rep.Result.MappedLen(),
		"unmapped_classes", len(rep.Result.Unmapped),
		"transitive_used", len(rep.Transitive),
		"duration", rep.Duration,
		"heap_mb", util.HeapAllocMB())
	a.emitUpdate(rep)
	return rep, nil
}

// resolveAll resolves main and test references with the same resolver and
// folds them into one partition.
func (a *App) resolveAll(ctx context.Context, r *resolver.Resolver, main, test reference.Map) (*resolver.Result, error) {
	var result *resolver.Result
	err := a.stage("resolve", func() error {
		var err error
		result, err = r.Resolve(ctx, main)
		if err != nil {
			return err
		}
		if len(test) == 0 {
			return nil
		}
		testResult, err := r.Resolve(ctx, test)
		if err != nil {
			return err
		}
		result.Merge(testResult)
		return nil
	})
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "resolve")
	}
	return result, nil
}

func (a *App) projectKey() string {
	if a.Config.Project.Name != "" {
		return a.Config.Project.Name
	}
	return filepath.Base(a.Paths.ProjectRoot)
}

// stage times fn under the given label.
func (a *App) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	observability.AnalysisDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}
