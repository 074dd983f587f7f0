package config

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section. It is run by Load and again after
// environment overrides.
func Validate(cfg *Config) error {
	validators := []func(*Config) error{
		validateVersion,
		validateBuild,
		validateAnalysis,
		validateOutput,
		validateDatabase,
		validateObservability,
		validateWatch,
	}
	for _, v := range validators {
		if err := v(cfg); err != nil {
			return err
		}
	}
	return nil
}

// LoadOrDefault loads path, falling back to DefaultConfig when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Project.Root) == "" {
		cfg.Project.Root = "."
	}
	if len(cfg.Project.ClassesDirs) == 0 {
		cfg.Project.ClassesDirs = []string{"target/classes"}
	}
	if len(cfg.Project.TestClassesDirs) == 0 {
		cfg.Project.TestClassesDirs = []string{"target/test-classes"}
	}
	if len(cfg.Project.SourceDirs) == 0 {
		cfg.Project.SourceDirs = []string{"src/main/java", "src/test/java"}
	}

	if strings.TrimSpace(cfg.Build.Tool) == "" {
		cfg.Build.Tool = "maven"
	}
	if strings.TrimSpace(cfg.Build.DependencyDir) == "" {
		cfg.Build.DependencyDir = "target/depaudit/dependencies"
	}
	if strings.TrimSpace(cfg.Build.TreeFile) == "" {
		cfg.Build.TreeFile = "target/depaudit/dependency-tree.txt"
	}
	if cfg.Build.Timeout <= 0 {
		cfg.Build.Timeout = 10 * time.Minute
	}

	if cfg.Analysis.Workers == 0 {
		cfg.Analysis.Workers = runtime.NumCPU()
	}
	if cfg.Analysis.ClassCacheSize == 0 {
		cfg.Analysis.ClassCacheSize = 4096
	}
	if strings.TrimSpace(cfg.Analysis.IgnoreFile) == "" {
		cfg.Analysis.IgnoreFile = ".depauditignore"
	}

	if strings.TrimSpace(cfg.Output.Dir) == "" {
		cfg.Output.Dir = "target/depaudit"
	}
	if strings.TrimSpace(cfg.Output.Mermaid) == "" {
		cfg.Output.Mermaid = "dependency-graph.mmd"
	}
	if strings.TrimSpace(cfg.Output.CSV) == "" {
		cfg.Output.CSV = "dependency-usage.csv"
	}

	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = ".depaudit/depaudit.db"
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.MaxRunsPerMinute == 0 {
		cfg.Watch.MaxRunsPerMinute = 6
	}
}

func normalize(cfg *Config) {
	cfg.Project.Name = strings.TrimSpace(cfg.Project.Name)
	cfg.Project.Root = strings.TrimSpace(cfg.Project.Root)
	cfg.Project.ClassesDirs = trimAll(cfg.Project.ClassesDirs)
	cfg.Project.TestClassesDirs = trimAll(cfg.Project.TestClassesDirs)
	cfg.Project.SourceDirs = trimAll(cfg.Project.SourceDirs)
	cfg.Build.Tool = strings.ToLower(strings.TrimSpace(cfg.Build.Tool))
	cfg.Build.Command = strings.TrimSpace(cfg.Build.Command)
	cfg.Analysis.PlatformTable = strings.TrimSpace(cfg.Analysis.PlatformTable)
	cfg.Analysis.ExcludeClasses = trimAll(cfg.Analysis.ExcludeClasses)
	cfg.Observability.MetricsAddr = strings.TrimSpace(cfg.Observability.MetricsAddr)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
