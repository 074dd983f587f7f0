package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var supportedBuildTools = map[string]bool{
	"maven": true,
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateBuild(cfg *Config) error {
	if !supportedBuildTools[cfg.Build.Tool] {
		return fmt.Errorf("build.tool must be one of: maven, got %q", cfg.Build.Tool)
	}
	if cfg.Build.Timeout < 0 {
		return fmt.Errorf("build.timeout must not be negative")
	}
	return nil
}

func validateAnalysis(cfg *Config) error {
	if cfg.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be >= 1, got %d", cfg.Analysis.Workers)
	}
	if cfg.Analysis.ClassCacheSize < 1 {
		return fmt.Errorf("analysis.class_cache_size must be >= 1, got %d", cfg.Analysis.ClassCacheSize)
	}
	for i, pattern := range cfg.Analysis.ExcludeClasses {
		if _, err := glob.Compile(pattern, '.'); err != nil {
			return fmt.Errorf("analysis.exclude_classes[%d] %q is not a valid glob: %w", i, pattern, err)
		}
	}
	return nil
}

func validateOutput(cfg *Config) error {
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		return fmt.Errorf("output.dir must not be empty")
	}
	if cfg.Output.Mermaid != "" && !strings.HasSuffix(cfg.Output.Mermaid, ".mmd") && !strings.HasSuffix(cfg.Output.Mermaid, ".md") {
		return fmt.Errorf("output.mermaid must end in .mmd or .md, got %q", cfg.Output.Mermaid)
	}
	if cfg.Output.CSV != "" && !strings.HasSuffix(cfg.Output.CSV, ".csv") {
		return fmt.Errorf("output.csv must end in .csv, got %q", cfg.Output.CSV)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if cfg.DB.Enabled && strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty when db.enabled is set")
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.EnableTracing && cfg.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("observability.otlp_endpoint is required when enable_tracing is set")
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Watch.MaxRunsPerMinute < 1 {
		return fmt.Errorf("watch.max_runs_per_minute must be >= 1, got %d", cfg.Watch.MaxRunsPerMinute)
	}
	return nil
}
