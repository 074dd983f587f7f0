package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"depaudit/internal/core/config"
	"depaudit/internal/core/errors"
	"depaudit/internal/data/store"
	"depaudit/internal/engine/classfile/classtest"
	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/reference"
	"depaudit/internal/engine/sources"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accPublic = 0x0001
	accStatic = 0x0008
)

const fixtureTree = `com.example:app:jar:1.0
+- com.lib:alpha:jar:1.0:compile
|  \- com.lib:shared:jar:2.0:compile
\- junit:junit:jar:4.13:test
`

// fakeBuild stands in for maven: it writes a fixed tree, copies a fixed set
// of archives and "compiles" by writing class files.
type fakeBuild struct {
	mu      sync.Mutex
	calls   []string
	jars    map[string][]*classtest.Class
	classes string
	tests   string
	main    []*classtest.Class
	testCls []*classtest.Class
	t       *testing.T
}

func (b *fakeBuild) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBuild) count(call string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (b *fakeBuild) DependencyTree(_ context.Context, _ string, outFile string) error {
	b.record("tree")
	return os.WriteFile(outFile, []byte(fixtureTree), 0o644)
}

func (b *fakeBuild) CopyDependencies(_ context.Context, _ string, outDir string) error {
	b.record("copy")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for name, classes := range b.jars {
		classtest.WriteJar(b.t, outDir, name, classes...)
	}
	return nil
}

func (b *fakeBuild) Compile(_ context.Context, _ string, withTests bool) error {
	b.record("compile")
	for _, c := range b.main {
		classtest.WriteClassFile(b.t, b.classes, c)
	}
	if withTests {
		for _, c := range b.testCls {
			classtest.WriteClassFile(b.t, b.tests, c)
		}
	}
	return nil
}

type fakeStore struct {
	mu     sync.Mutex
	runs   []store.Run
	usages [][]store.Usage
}

func (s *fakeStore) SaveRun(run store.Run, usages []store.Usage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	s.usages = append(s.usages, usages)
	return "run-" + string(rune('0'+len(s.runs))), nil
}

func (s *fakeStore) LoadRuns(string, time.Time) ([]store.Run, error) { return s.runs, nil }
func (s *fakeStore) LoadUsages(string) ([]store.Usage, error)       { return nil, nil }
func (s *fakeStore) Close() error                                   { return nil }

type fixture struct {
	root  string
	app   *App
	build *fakeBuild
	store *fakeStore
}

func newFixture(t *testing.T, tweak func(*config.Config)) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Project.Root = root
	cfg.Project.IncludeTests = true
	cfg.Analysis.PlatformTable = "platform.json"
	cfg.Analysis.ExcludeClasses = []string{"org.ignored.*"}
	cfg.Analysis.Workers = 2
	cfg.Watch.Debounce = 50 * time.Millisecond
	cfg.Watch.MaxRunsPerMinute = 600
	if tweak != nil {
		tweak(cfg)
	}
	paths, err := config.ResolvePaths(cfg, root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(paths.PlatformTable, []byte(`{"java.lang.String": ["length()I"]}`), 0o644))
	require.NoError(t, os.WriteFile(paths.IgnoreFile, []byte("target/classes/com/example/gen/\n"), 0o644))

	helperDir := filepath.Join(root, "src", "main", "java", "com", "example")
	require.NoError(t, os.MkdirAll(helperDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(helperDir, "Helper.java"),
		[]byte("package com.example;\n\nclass Helper {\n  void help() {}\n}\n"), 0o644))

	client := classtest.New("com.lib.alpha.Client", "java.lang.Object")
	client.Method(accPublic, "<init>", "()V").Code().Return()
	client.Method(accPublic, "connect", "()V").Code().Return()

	base := classtest.New("com.lib.shared.Base", "java.lang.Object")
	base.Method(accPublic, "run", "()V").Code().Return()
	base.Field(accPublic, "id", "I")

	assertCls := classtest.New("org.junit.Assert", "java.lang.Object")
	assertCls.Method(accPublic|accStatic, "assertTrue", "(Z)V").Code().Return()

	stray := classtest.New("org.stray.Thing", "java.lang.Object")

	app := classtest.New("com.example.App", "java.lang.Object")
	app.Method(accPublic, "main", "()V").Code().
		Type(classtest.OpNew, "com.lib.alpha.Client").
		Invoke(classtest.OpInvokeSpecial, "com.lib.alpha.Client", "<init>", "()V").
		Invoke(classtest.OpInvokeVirtual, "com.lib.alpha.Client", "connect", "()V").
		Invoke(classtest.OpInvokeVirtual, "com.lib.shared.Base", "run", "()V").
		Field(classtest.OpGetField, "com.lib.shared.Base", "id", "I").
		Invoke(classtest.OpInvokeStatic, "com.example.Helper", "help", "()V").
		Invoke(classtest.OpInvokeVirtual, "com.example.App$Inner", "go", "()V").
		Invoke(classtest.OpInvokeVirtual, "java.lang.String", "length", "()I").
		Invoke(classtest.OpInvokeStatic, "org.missing.Gone", "call", "()V").
		Invoke(classtest.OpInvokeStatic, "org.ignored.Noise", "make", "()V").
		Return()

	gen := classtest.New("com.example.gen.Gen", "java.lang.Object")
	gen.Method(accPublic, "x", "()V").Code().
		Invoke(classtest.OpInvokeStatic, "org.gen.Lib", "x", "()V").
		Return()

	appTest := classtest.New("com.example.AppTest", "java.lang.Object")
	appTest.Method(accPublic, "check", "()V").Code().
		Invoke(classtest.OpInvokeStatic, "org.junit.Assert", "assertTrue", "(Z)V").
		Invoke(classtest.OpInvokeStatic, "com.example.App", "main", "()V").
		Return()

	build := &fakeBuild{
		t: t,
		jars: map[string][]*classtest.Class{
			"alpha-1.0.jar":  {client},
			"shared-2.0.jar": {base},
			"junit-4.13.jar": {assertCls},
			"stray-0.1.jar":  {stray},
		},
		classes: paths.ClassesDirs[0],
		tests:   paths.TestClassesDirs[0],
		main:    []*classtest.Class{app, gen},
		testCls: []*classtest.Class{appTest},
	}
	st := &fakeStore{}

	a, err := NewWithDependencies(cfg, paths, Dependencies{
		Build:   build,
		Sources: sources.NewDiscoverer(),
		Store:   st,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	// A class file that is not a class file.
	brokenDir := filepath.Join(paths.ClassesDirs[0], "com", "example")
	require.NoError(t, os.MkdirAll(brokenDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(brokenDir, "Broken.class"), []byte("not a class"), 0o644))

	return &fixture{root: root, app: a, build: build, store: st}
}

func nodeByKey(t *testing.T, g *depgraph.Graph, key string) *depgraph.Node {
	t.Helper()
	for _, n := range g.Dependencies() {
		if n.Key() == key {
			return n
		}
	}
	t.Fatalf("node %s not in graph", key)
	return nil
}

func ref(member string, access reference.AccessKind) reference.Reference {
	return reference.Reference{Member: member, Access: access}
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, nil)

	rep, err := f.app.Analyze(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, 1, f.build.count("tree"))
	assert.Equal(t, 1, f.build.count("copy"))
	assert.Equal(t, 1, f.build.count("compile"))

	alpha := nodeByKey(t, rep.Graph, "com.lib:alpha:1.0")
	shared := nodeByKey(t, rep.Graph, "com.lib:shared:2.0")
	junit := nodeByKey(t, rep.Graph, "junit:junit:4.13")

	assert.Equal(t, reference.NewSet(
		ref("<init>()V", reference.InvokeSpecial),
		ref("connect()V", reference.InvokeVirtual),
	), rep.Result.Mapped[alpha]["com.lib.alpha.Client"])
	assert.Equal(t, reference.NewSet(
		ref("run()V", reference.InvokeVirtual),
		ref("id", reference.GetField),
	), rep.Result.Mapped[shared]["com.lib.shared.Base"])
	assert.True(t, rep.Result.Mapped[junit]["org.junit.Assert"].Has(ref("assertTrue(Z)V", reference.InvokeStatic)))

	assert.Contains(t, rep.Transitive, shared)
	assert.NotContains(t, rep.Transitive, alpha)
	assert.Equal(t, []string{"com.lib:shared:2.0"}, rep.TransitiveNames())

	assert.True(t, rep.Result.Platform["java.lang.String"].Has(ref("length()I", reference.InvokeVirtual)))
	assert.True(t, rep.Result.Unmapped["org.missing.Gone"].Has(ref("call()V", reference.InvokeStatic)))

	// Client classes, excluded globs and ignored paths never reach the resolver.
	for _, class := range []string{"com.example.Helper", "com.example.App$Inner", "com.example.App", "org.ignored.Noise", "org.gen.Lib"} {
		assert.NotContains(t, rep.Result.Unmapped, class)
		assert.NotContains(t, rep.Result.Platform, class)
	}

	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "Broken.class", filepath.Base(rep.Skipped[0]))
	require.Len(t, rep.Unattributed, 1)
	assert.Equal(t, "stray-0.1.jar", filepath.Base(rep.Unattributed[0]))

	assert.FileExists(t, f.app.Paths.MermaidFile)
	assert.FileExists(t, f.app.Paths.CSVFile)

	assert.Equal(t, "run-1", rep.RunID)
	require.Len(t, f.store.runs, 1)
	run := f.store.runs[0]
	assert.Equal(t, filepath.Base(f.root), run.ProjectKey)
	assert.Equal(t, 3, run.DependencyCount)
	assert.Equal(t, 3, run.MappedNodeCount)
	assert.Equal(t, 1, run.TransitiveUsed)
	assert.Equal(t, 1, run.UnattributedCount)
	assert.NotEmpty(t, f.store.usages[0])

	assert.Same(t, rep, f.app.LastReport())

	s := rep.Summary()
	assert.Equal(t, 3, s.Dependencies)
	assert.Equal(t, 1, s.SkippedUnits)
	assert.Equal(t, 1, s.PlatformClasses)
}

func TestAnalyzeWithoutBuildNeedsTree(t *testing.T) {
	off := false
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Build.RunBuild = &off
	})

	_, err := f.app.Analyze(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	assert.Zero(t, f.build.count("tree"))
}

func TestReanalyzeReusesIndex(t *testing.T) {
	f := newFixture(t, nil)

	var updates int
	f.app.SetUpdateHandler(func(*Report) { updates++ })

	_, err := f.app.Analyze(context.Background())
	require.NoError(t, err)

	extra := classtest.New("com.example.Extra", "java.lang.Object")
	extra.Method(accPublic, "x", "()V").Code().
		Invoke(classtest.OpInvokeStatic, "org.missing.Later", "x", "()V").
		Return()
	classtest.WriteClassFile(t, f.app.Paths.ClassesDirs[0], extra)

	rep, err := f.app.Reanalyze(context.Background())
	require.NoError(t, err)
	assert.Contains(t, rep.Result.Unmapped, "org.missing.Later")
	assert.Equal(t, 1, f.build.count("tree"))
	assert.Equal(t, 1, f.build.count("compile"))
	assert.Equal(t, 2, updates)
	assert.Len(t, f.store.runs, 2)
}

func TestClientFilter(t *testing.T) {
	f := newFixture(t, nil)
	filter, err := f.app.clientFilter(context.Background(), &ClassScan{Owned: []string{"com.example.Outer"}})
	require.NoError(t, err)

	assert.True(t, filter.excluded("com.example.Outer"))
	assert.True(t, filter.excluded("com.example.Outer$Inner"))
	assert.True(t, filter.excluded("com.example.Outer$Inner$Deep"))
	assert.True(t, filter.excluded("com.example.Helper"), "discovered from sources")
	assert.True(t, filter.excluded("org.ignored.Anything"))
	assert.False(t, filter.excluded("com.example.OuterX"))
	assert.False(t, filter.excluded("org.ignoredx.Thing"))

	m := reference.Map{"com.example.Outer$1": reference.NewSet(), "com.lib.alpha.Client": reference.NewSet()}
	assert.Equal(t, 1, filter.apply(m))
	assert.Contains(t, m, "com.lib.alpha.Client")
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	health := NewHealthService(f.app)

	status := health.Check(context.Background())
	assert.Equal(t, "starting", status.Status)
	assert.Equal(t, "none", status.Components["last_run"])

	_, err := f.app.Analyze(context.Background())
	require.NoError(t, err)

	status = health.Check(context.Background())
	assert.Equal(t, "up", status.Status)
	assert.Contains(t, status.Components["index"], "3 archives")
}

func TestWatchRerunsOnClassChange(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan *Report, 8)
	done := make(chan error, 1)
	go func() {
		done <- f.app.Watch(ctx, func(r *Report, err error) {
			if err == nil {
				reports <- r
			}
		})
	}()

	select {
	case <-reports:
	case <-time.After(10 * time.Second):
		t.Fatal("initial analysis did not complete")
	}

	// Give the watcher time to register the directories.
	time.Sleep(200 * time.Millisecond)
	later := classtest.New("com.example.Later", "java.lang.Object")
	later.Method(accPublic, "x", "()V").Code().
		Invoke(classtest.OpInvokeStatic, "org.missing.Watched", "x", "()V").
		Return()
	classtest.WriteClassFile(t, f.app.Paths.ClassesDirs[0], later)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case r := <-reports:
			if _, ok := r.Result.Unmapped["org.missing.Watched"]; ok {
				assert.Equal(t, 1, f.build.count("tree"))
				cancel()
				select {
				case err := <-done:
					assert.NoError(t, err)
				case <-time.After(5 * time.Second):
					t.Fatal("watch did not stop")
				}
				return
			}
		case <-deadline:
			t.Fatal("no re-run after class change")
		}
	}
}
