// Package build runs the project's build tool.
package build

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"depaudit/internal/core/errors"
)

const successMarker = "BUILD SUCCESS"

// Maven drives mvn. Command overrides the executable; empty selects mvn, or
// mvn.cmd on Windows.
type Maven struct {
	Command string
	// Args are prepended to every invocation, e.g. "-q" or "-o".
	Args    []string
	Timeout time.Duration
}

func (m Maven) command() string {
	if m.Command != "" {
		return m.Command
	}
	if runtime.GOOS == "windows" {
		return "mvn.cmd"
	}
	return "mvn"
}

// DependencyTree writes the verbose dependency tree to outFile.
func (m Maven) DependencyTree(ctx context.Context, projectDir, outFile string) error {
	return m.run(ctx, projectDir, "dependency:tree", "-DoutputFile="+outFile, "-Dverbose")
}

// CopyDependencies empties outDir and copies every resolved archive into it.
func (m Maven) CopyDependencies(ctx context.Context, projectDir, outDir string) error {
	if err := os.RemoveAll(outDir); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeBuildFailed, "clean dependency directory"), errors.CtxPath, outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeBuildFailed, "create dependency directory"), errors.CtxPath, outDir)
	}
	return m.run(ctx, projectDir, "dependency:copy-dependencies", "-DoutputDirectory="+outDir)
}

// Compile runs a clean build of the main classes, and test classes when
// withTests is set.
func (m Maven) Compile(ctx context.Context, projectDir string, withTests bool) error {
	goal := "compile"
	if withTests {
		goal = "test-compile"
	}
	return m.run(ctx, projectDir, "clean", goal)
}

// run succeeds only when the process exits cleanly and reports success.
func (m Maven) run(ctx context.Context, dir string, goals ...string) error {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, m.Args...), goals...)
	cmd := exec.CommandContext(ctx, m.command(), args...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	slog.Info("running build", "command", m.command(), "args", strings.Join(args, " "), "dir", dir)
	err := cmd.Run()
	slog.Debug("build finished", "goals", strings.Join(goals, " "), "duration", time.Since(start))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.AddContext(errors.Wrap(ctxErr, errors.CodeBuildFailed, "build interrupted"), errors.CtxOperation, strings.Join(goals, " "))
	}
	if err != nil {
		return errors.AddContext(
			errors.Wrap(fmt.Errorf("%w: %s", err, tail(out.String(), 20)), errors.CodeBuildFailed, "build failed"),
			errors.CtxOperation, strings.Join(goals, " "))
	}
	if !strings.Contains(out.String(), successMarker) {
		return errors.AddContext(
			errors.New(errors.CodeBuildFailed, "build output did not report success"),
			errors.CtxOperation, strings.Join(goals, " "))
	}
	return nil
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
