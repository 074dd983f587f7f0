package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Project       Project       `toml:"project"`
	Build         Build         `toml:"build"`
	Analysis      Analysis      `toml:"analysis"`
	Output        Output        `toml:"output"`
	DB            Database      `toml:"db"`
	Observability Observability `toml:"observability"`
	Watch         Watch         `toml:"watch"`
}

// Project locates the analysed project and its compiled classes. Relative
// paths are resolved against Root.
type Project struct {
	Name            string   `toml:"name"`
	Root            string   `toml:"root"`
	ClassesDirs     []string `toml:"classes_dirs"`
	TestClassesDirs []string `toml:"test_classes_dirs"`
	IncludeTests    bool     `toml:"include_tests"`
	SourceDirs      []string `toml:"source_dirs"`
}

type Build struct {
	Tool          string   `toml:"tool"`
	Command       string   `toml:"command"`
	Args          []string `toml:"args"`
	DependencyDir string   `toml:"dependency_dir"`
	TreeFile      string   `toml:"tree_file"`
	// RunBuild invokes the build tool; when false the tree file and
	// dependency directory must already exist.
	RunBuild *bool         `toml:"run_build"`
	Compile  *bool         `toml:"compile"`
	Timeout  time.Duration `toml:"timeout"`
}

type Analysis struct {
	PlatformTable  string   `toml:"platform_table"`
	Workers        int      `toml:"workers"`
	ClassCacheSize int      `toml:"class_cache_size"`
	ExcludeClasses []string `toml:"exclude_classes"`
	IgnoreFile     string   `toml:"ignore_file"`
}

type Output struct {
	Dir                     string `toml:"dir"`
	Mermaid                 string `toml:"mermaid"`
	CSV                     string `toml:"csv"`
	ShowTransitiveFunctions bool   `toml:"show_transitive_functions"`
	ExcludeTestScope        bool   `toml:"exclude_test_scope"`
}

type Database struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	MetricsAddr   string `toml:"metrics_addr"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	OTLPInsecure  bool   `toml:"otlp_insecure"`
	EnableTracing bool   `toml:"enable_tracing"`
}

type Watch struct {
	Debounce         time.Duration `toml:"debounce"`
	MaxRunsPerMinute int           `toml:"max_runs_per_minute"`
}

// DefaultConfig returns a fully defaulted configuration for projects with no
// config file.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	normalize(cfg)
	return cfg
}

// ShouldRun reports whether the build tool should be invoked.
func (b Build) ShouldRun() bool {
	return b.RunBuild == nil || *b.RunBuild
}

// ShouldCompile reports whether the project is compiled before extraction.
func (b Build) ShouldCompile() bool {
	return b.Compile == nil || *b.Compile
}
