package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolvedPaths holds the absolute locations a run reads and writes.
type ResolvedPaths struct {
	ProjectRoot     string
	ClassesDirs     []string
	TestClassesDirs []string
	SourceDirs      []string
	DependencyDir   string
	TreeFile        string
	PlatformTable   string
	IgnoreFile      string
	OutputDir       string
	MermaidFile     string
	CSVFile         string
	DBPath          string
}

// ResolvePaths anchors the project root at cwd and every other path at the
// project root. Output file names are anchored at the output directory.
func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}
	root := ResolveRelative(cwd, cfg.Project.Root)
	outputDir := ResolveRelative(root, cfg.Output.Dir)

	resolved := ResolvedPaths{
		ProjectRoot:     root,
		ClassesDirs:     resolveAll(root, cfg.Project.ClassesDirs),
		TestClassesDirs: resolveAll(root, cfg.Project.TestClassesDirs),
		SourceDirs:      resolveAll(root, cfg.Project.SourceDirs),
		DependencyDir:   ResolveRelative(root, cfg.Build.DependencyDir),
		TreeFile:        ResolveRelative(root, cfg.Build.TreeFile),
		IgnoreFile:      ResolveRelative(root, cfg.Analysis.IgnoreFile),
		OutputDir:       outputDir,
		MermaidFile:     ResolveRelative(outputDir, cfg.Output.Mermaid),
		CSVFile:         ResolveRelative(outputDir, cfg.Output.CSV),
		DBPath:          ResolveRelative(root, cfg.DB.Path),
	}
	if cfg.Analysis.PlatformTable != "" {
		resolved.PlatformTable = ResolveRelative(root, cfg.Analysis.PlatformTable)
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

func resolveAll(base string, values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, ResolveRelative(base, v))
	}
	return out
}
