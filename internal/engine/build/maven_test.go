package build

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"depaudit/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMaven writes a shell script that records its arguments and prints body.
func fakeMaven(t *testing.T, body string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub needs a POSIX shell")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := filepath.Join(dir, "mvn")
	content := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n" + body + "\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script, argsFile
}

func TestMavenDependencyTree(t *testing.T) {
	script, argsFile := fakeMaven(t, "echo '[INFO] BUILD SUCCESS'")
	m := Maven{Command: script, Args: []string{"-B"}}

	require.NoError(t, m.DependencyTree(context.Background(), t.TempDir(), "/tmp/tree.txt"))
	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-B dependency:tree -DoutputFile=/tmp/tree.txt -Dverbose", strings.TrimSpace(string(args)))
}

func TestMavenCopyDependenciesCleansTarget(t *testing.T) {
	script, _ := fakeMaven(t, "echo 'BUILD SUCCESS'")
	out := filepath.Join(t.TempDir(), "deps")
	require.NoError(t, os.MkdirAll(out, 0o755))
	stale := filepath.Join(out, "stale-1.0.jar")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	require.NoError(t, Maven{Command: script}.CopyDependencies(context.Background(), t.TempDir(), out))
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMavenCompileGoal(t *testing.T) {
	script, argsFile := fakeMaven(t, "echo 'BUILD SUCCESS'")
	m := Maven{Command: script}

	require.NoError(t, m.Compile(context.Background(), t.TempDir(), true))
	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "clean test-compile", strings.TrimSpace(string(args)))
}

func TestMavenFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "non-zero exit", body: "echo 'BUILD FAILURE'; exit 1"},
		{name: "missing success marker", body: "echo 'nothing happened'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, _ := fakeMaven(t, tt.body)
			err := Maven{Command: script}.Compile(context.Background(), t.TempDir(), false)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeBuildFailed))
		})
	}
}

func TestMavenTimeout(t *testing.T) {
	script, _ := fakeMaven(t, "exec sleep 5")
	err := Maven{Command: script, Timeout: 50 * time.Millisecond}.Compile(context.Background(), t.TempDir(), false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeBuildFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "c\nd", tail("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", tail("a", 5))
}
