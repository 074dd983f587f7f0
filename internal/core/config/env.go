package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: DEPAUDIT_[SECTION]_[KEY] (e.g., DEPAUDIT_ANALYSIS_WORKERS).
func ApplyEnvOverrides(cfg *Config) {
	// Project
	setEnvString(&cfg.Project.Name, "DEPAUDIT_PROJECT_NAME")
	setEnvString(&cfg.Project.Root, "DEPAUDIT_PROJECT_ROOT")
	setEnvList(&cfg.Project.ClassesDirs, "DEPAUDIT_PROJECT_CLASSES_DIRS")
	setEnvList(&cfg.Project.TestClassesDirs, "DEPAUDIT_PROJECT_TEST_CLASSES_DIRS")
	setEnvBool(&cfg.Project.IncludeTests, "DEPAUDIT_PROJECT_INCLUDE_TESTS")
	setEnvList(&cfg.Project.SourceDirs, "DEPAUDIT_PROJECT_SOURCE_DIRS")

	// Build
	setEnvString(&cfg.Build.Command, "DEPAUDIT_BUILD_COMMAND")
	setEnvString(&cfg.Build.DependencyDir, "DEPAUDIT_BUILD_DEPENDENCY_DIR")
	setEnvString(&cfg.Build.TreeFile, "DEPAUDIT_BUILD_TREE_FILE")
	setEnvBoolPtr(&cfg.Build.RunBuild, "DEPAUDIT_BUILD_RUN_BUILD")
	setEnvBoolPtr(&cfg.Build.Compile, "DEPAUDIT_BUILD_COMPILE")
	setEnvDuration(&cfg.Build.Timeout, "DEPAUDIT_BUILD_TIMEOUT")

	// Analysis
	setEnvString(&cfg.Analysis.PlatformTable, "DEPAUDIT_ANALYSIS_PLATFORM_TABLE")
	setEnvInt(&cfg.Analysis.Workers, "DEPAUDIT_ANALYSIS_WORKERS")
	setEnvInt(&cfg.Analysis.ClassCacheSize, "DEPAUDIT_ANALYSIS_CLASS_CACHE_SIZE")
	setEnvList(&cfg.Analysis.ExcludeClasses, "DEPAUDIT_ANALYSIS_EXCLUDE_CLASSES")

	// Output
	setEnvString(&cfg.Output.Dir, "DEPAUDIT_OUTPUT_DIR")
	setEnvBool(&cfg.Output.ShowTransitiveFunctions, "DEPAUDIT_OUTPUT_SHOW_TRANSITIVE_FUNCTIONS")
	setEnvBool(&cfg.Output.ExcludeTestScope, "DEPAUDIT_OUTPUT_EXCLUDE_TEST_SCOPE")

	// Database
	setEnvBool(&cfg.DB.Enabled, "DEPAUDIT_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "DEPAUDIT_DB_PATH")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddr, "DEPAUDIT_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.OTLPEndpoint, "DEPAUDIT_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.OTLPInsecure, "DEPAUDIT_OBSERVABILITY_OTLP_INSECURE")
	setEnvBool(&cfg.Observability.EnableTracing, "DEPAUDIT_OBSERVABILITY_ENABLE_TRACING")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "DEPAUDIT_WATCH_DEBOUNCE")
	setEnvInt(&cfg.Watch.MaxRunsPerMinute, "DEPAUDIT_WATCH_MAX_RUNS_PER_MINUTE")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvList splits a comma separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = trimAll(strings.Split(val, ","))
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
