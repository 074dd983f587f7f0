package ports

import (
	"context"
	"time"

	"depaudit/internal/data/store"
)

// BuildTool drives the project's build to materialise what the analysis
// needs on disk.
type BuildTool interface {
	// DependencyTree writes the verbose dependency tree of projectDir to outFile.
	DependencyTree(ctx context.Context, projectDir, outFile string) error
	// CopyDependencies copies every resolved archive into outDir.
	CopyDependencies(ctx context.Context, projectDir, outDir string) error
	// Compile builds the project's classes, and its test classes when withTests is set.
	Compile(ctx context.Context, projectDir string, withTests bool) error
}

// SourceScanner reports the type names declared in a project's sources.
type SourceScanner interface {
	Discover(ctx context.Context, dirs []string, workers int) ([]string, error)
}

// RunStore abstracts run persistence for trend and audit workflows.
type RunStore interface {
	SaveRun(run store.Run, usages []store.Usage) (string, error)
	LoadRuns(projectKey string, since time.Time) ([]store.Run, error)
	LoadUsages(runID string) ([]store.Usage, error)
	Close() error
}
