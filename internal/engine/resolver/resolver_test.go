// # internal/engine/resolver/resolver_test.go
package resolver

import (
	"context"
	"os"
	"testing"

	"depaudit/internal/core/errors"
	"depaudit/internal/engine/classfile/classtest"
	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/index"
	"depaudit/internal/engine/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accPublic   = 0x0001
	accAbstract = 0x0400
)

type fixture struct {
	lib, base, slf4j, loop *depgraph.Node
	ix                     *index.Index
}

// newFixture lays out four archives:
//
//	lib-1.0.jar    com.lib.Widget, com.lib.X extends com.base.Y implements com.base.Named
//	base-2.0.jar   com.base.Y, com.base.Named
//	slf4j-api.jar  org.slf4j.Logger
//	loop-1.0.jar   com.loop.A extends com.loop.B, com.loop.B extends com.loop.A
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	widget := classtest.New("com.lib.Widget", "java.lang.Exception")
	widget.Method(accPublic, "<init>", "()V").Code().Return()

	x := classtest.New("com.lib.X", "com.base.Y").Interface("com.base.Named")
	x.Method(accPublic, "<init>", "(I)V").Code().Return()
	x.Method(accPublic, "run", "()V").Code().Return()
	x.Field(accPublic, "size", "I")
	libJar := classtest.WriteJar(t, dir, "lib-1.0.jar", widget, x)

	y := classtest.New("com.base.Y", "java.lang.Object")
	y.Method(accPublic, "m", "()V").Code().Return()
	y.Field(accPublic, "count", "J")
	named := classtest.New("com.base.Named", "java.lang.Object").AsInterface()
	named.Method(accPublic|accAbstract, "name", "()Ljava/lang/String;")
	baseJar := classtest.WriteJar(t, dir, "base-2.0.jar", y, named)

	logger := classtest.New("org.slf4j.Logger", "java.lang.Object").AsInterface()
	logger.Method(accPublic|accAbstract, "debug", "(Ljava/lang/String;)V")
	slf4jJar := classtest.WriteJar(t, dir, "slf4j-api-2.0.16.jar", logger)

	a := classtest.New("com.loop.A", "com.loop.B")
	b := classtest.New("com.loop.B", "com.loop.A")
	loopJar := classtest.WriteJar(t, dir, "loop-1.0.jar", a, b)

	f := &fixture{
		lib:   &depgraph.Node{GroupID: "com.lib", ArtifactID: "lib", Version: "1.0", Depth: 1, ArchivePath: libJar},
		base:  &depgraph.Node{GroupID: "com.base", ArtifactID: "base", Version: "2.0", Depth: 2, ArchivePath: baseJar},
		slf4j: &depgraph.Node{GroupID: "org.slf4j", ArtifactID: "slf4j-api", Version: "2.0.16", Depth: 1, ArchivePath: slf4jJar},
		loop:  &depgraph.Node{GroupID: "com.loop", ArtifactID: "loop", Version: "1.0", Depth: 1, ArchivePath: loopJar},
	}
	ix, err := index.Build(context.Background(), []*depgraph.Node{f.lib, f.base, f.slf4j, f.loop}, 2)
	require.NoError(t, err)
	f.ix = ix
	return f
}

func ref(member string, access reference.AccessKind) reference.Reference {
	return reference.Reference{Member: member, Access: access}
}

// assertPartition checks that every input reference lands in exactly one
// output table.
func assertPartition(t *testing.T, refs reference.Map, res *Result) {
	t.Helper()
	for class, want := range refs {
		seen := reference.Set{}
		count := 0
		collect := func(m reference.Map) {
			for r := range m[class] {
				seen.Add(r)
				count++
			}
		}
		for _, m := range res.Mapped {
			collect(m)
		}
		collect(res.Platform)
		collect(res.Unmapped)
		assert.Equal(t, want, seen, "class %s", class)
		assert.Equal(t, len(want), count, "class %s counted twice", class)
	}
}

func TestResolveScenarios(t *testing.T) {
	f := newFixture(t)

	refs := reference.Map{
		// A: thrown type only.
		"com.lib.Widget": reference.NewSet(),
		// B: member declared on the interface.
		"org.slf4j.Logger": reference.NewSet(ref("debug(Ljava/lang/String;)V", reference.InvokeInterface)),
		// C: declared nowhere.
		"com.lib.X": reference.NewSet(ref("missing()V", reference.InvokeVirtual)),
	}

	res, err := Resolve(context.Background(), refs, f.ix, nil)
	require.NoError(t, err)

	widget, ok := res.Mapped[f.lib]["com.lib.Widget"]
	require.True(t, ok)
	assert.Empty(t, widget)

	assert.True(t, res.Mapped[f.slf4j]["org.slf4j.Logger"].Has(ref("debug(Ljava/lang/String;)V", reference.InvokeInterface)))

	assert.Equal(t, reference.NewSet(ref("missing()V", reference.InvokeVirtual)), res.Unmapped["com.lib.X"])
	assertPartition(t, refs, res)
}

func TestResolveDeclaredMembers(t *testing.T) {
	f := newFixture(t)
	refs := reference.Map{
		"com.lib.X": reference.NewSet(
			ref("<init>(I)V", reference.InvokeSpecial),
			ref("run()V", reference.InvokeVirtual),
			ref("size", reference.GetField),
			// A field reference never matches a method of the same name.
			ref("run", reference.GetField),
		),
	}
	res, err := Resolve(context.Background(), refs, f.ix, nil)
	require.NoError(t, err)

	assert.Equal(t, reference.NewSet(
		ref("<init>(I)V", reference.InvokeSpecial),
		ref("run()V", reference.InvokeVirtual),
		ref("size", reference.GetField),
	), res.Mapped[f.lib]["com.lib.X"])
	assert.Equal(t, reference.NewSet(ref("run", reference.GetField)), res.Unmapped["com.lib.X"])
	assertPartition(t, refs, res)
}

func TestResolveCreditsInheritedMembersToReferencedNode(t *testing.T) {
	f := newFixture(t)
	refs := reference.Map{
		"com.lib.X": reference.NewSet(
			ref("m()V", reference.InvokeVirtual),
			ref("count", reference.GetField),
			ref("name()Ljava/lang/String;", reference.InvokeInterface),
		),
	}
	res, err := Resolve(context.Background(), refs, f.ix, nil)
	require.NoError(t, err)

	assert.Equal(t, refs["com.lib.X"], res.Mapped[f.lib]["com.lib.X"])
	_, credited := res.Mapped[f.base]
	assert.False(t, credited, "ancestor node must not be credited")
	assert.Empty(t, res.Unmapped)
	assertPartition(t, refs, res)
}

func TestResolveUnresolvedMembersDoNotCreditNode(t *testing.T) {
	f := newFixture(t)
	refs := reference.Map{"com.base.Y": reference.NewSet(ref("missing()V", reference.InvokeVirtual))}

	res, err := Resolve(context.Background(), refs, f.ix, nil)
	require.NoError(t, err)

	_, credited := res.Mapped[f.base]
	assert.False(t, credited)
	assert.Equal(t, refs["com.base.Y"], res.Unmapped["com.base.Y"])
	assertPartition(t, refs, res)

	// Partially resolved classes keep only the members that matched.
	refs = reference.Map{"com.base.Y": reference.NewSet(
		ref("m()V", reference.InvokeVirtual),
		ref("missing()V", reference.InvokeVirtual),
	)}
	res, err = Resolve(context.Background(), refs, f.ix, nil)
	require.NoError(t, err)
	assert.Equal(t, reference.NewSet(ref("m()V", reference.InvokeVirtual)), res.Mapped[f.base]["com.base.Y"])
	assertPartition(t, refs, res)
}

func TestResolveDuplicateClassUsesFirstCandidate(t *testing.T) {
	dir := t.TempDir()
	near := classtest.New("com.dup.Shared", "java.lang.Object")
	near.Method(accPublic, "go", "()V").Code().Return()
	far := classtest.New("com.dup.Shared", "java.lang.Object")
	far.Method(accPublic, "go", "()V").Code().Return()

	first := &depgraph.Node{GroupID: "com.dup", ArtifactID: "near", Version: "1.0", Depth: 1,
		ArchivePath: classtest.WriteJar(t, dir, "near-1.0.jar", near)}
	second := &depgraph.Node{GroupID: "com.dup", ArtifactID: "far", Version: "1.0", Depth: 2,
		ArchivePath: classtest.WriteJar(t, dir, "far-1.0.jar", far)}
	ix, err := index.Build(context.Background(), []*depgraph.Node{first, second}, 2)
	require.NoError(t, err)
	require.Equal(t, []*depgraph.Node{first, second}, ix.Lookup("com.dup.Shared"))

	refs := reference.Map{
		"com.dup.Shared": reference.NewSet(ref("go()V", reference.InvokeVirtual)),
	}
	res, err := Resolve(context.Background(), refs, ix, nil)
	require.NoError(t, err)

	assert.Equal(t, refs["com.dup.Shared"], res.Mapped[first]["com.dup.Shared"])
	_, credited := res.Mapped[second]
	assert.False(t, credited)
	assertPartition(t, refs, res)
}

func TestResolveUnattributedClass(t *testing.T) {
	f := newFixture(t)
	want := reference.NewSet(ref("go()V", reference.InvokeStatic), ref("FLAG", reference.GetStatic))
	refs := reference.Map{"org.unknown.Thing": want}

	res, err := Resolve(context.Background(), refs, f.ix, nil)
	require.NoError(t, err)
	assert.Equal(t, want, res.Unmapped["org.unknown.Thing"])
	assert.Empty(t, res.Mapped)
}

func TestResolvePlatformTable(t *testing.T) {
	f := newFixture(t)
	platform := reference.Map{
		"java.lang.String": reference.NewSet(ref("length()I", reference.Other)),
		"java.util.List":   reference.NewSet(ref("size()I", reference.Other)),
		// Shadowed by a dependency that ships the same name.
		"org.slf4j.Logger": reference.NewSet(ref("info(Ljava/lang/String;)V", reference.Other)),
	}
	refs := reference.Map{
		"java.lang.String": reference.NewSet(
			ref("length()I", reference.InvokeVirtual),
			ref("bogus()V", reference.InvokeVirtual),
		),
		"java.util.List": reference.NewSet(),
		"org.slf4j.Logger": reference.NewSet(
			ref("info(Ljava/lang/String;)V", reference.InvokeInterface),
			ref("debug(Ljava/lang/String;)V", reference.InvokeInterface),
		),
	}

	res, err := Resolve(context.Background(), refs, f.ix, platform)
	require.NoError(t, err)

	assert.Equal(t, reference.NewSet(ref("length()I", reference.InvokeVirtual)), res.Platform["java.lang.String"])
	assert.Equal(t, reference.NewSet(ref("bogus()V", reference.InvokeVirtual)), res.Unmapped["java.lang.String"])
	_, listed := res.Platform["java.util.List"]
	assert.True(t, listed)
	assert.Equal(t, reference.NewSet(ref("debug(Ljava/lang/String;)V", reference.InvokeInterface)), res.Mapped[f.slf4j]["org.slf4j.Logger"])
	assertPartition(t, refs, res)
}

func TestResolveTerminatesOnCycles(t *testing.T) {
	f := newFixture(t)
	refs := reference.Map{"com.loop.A": reference.NewSet(ref("spin()V", reference.InvokeVirtual))}
	res, err := Resolve(context.Background(), refs, f.ix, nil)
	require.NoError(t, err)
	assert.Equal(t, refs["com.loop.A"], res.Unmapped["com.loop.A"])
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	refs := reference.Map{
		"com.lib.X":        reference.NewSet(ref("m()V", reference.InvokeVirtual), ref("nope()V", reference.InvokeVirtual)),
		"com.lib.Widget":   reference.NewSet(ref("<init>()V", reference.InvokeSpecial)),
		"org.slf4j.Logger": reference.NewSet(),
	}
	r, err := New(f.ix, nil, 8)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Resolve(context.Background(), refs)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveMissingArchiveFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.slf4j.ArchivePath))
	refs := reference.Map{"org.slf4j.Logger": reference.NewSet(ref("debug(Ljava/lang/String;)V", reference.InvokeInterface))}

	_, err := Resolve(context.Background(), refs, f.ix, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeArchiveIO))
}

func TestResolveHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	refs := reference.Map{"com.lib.X": reference.NewSet(ref("run()V", reference.InvokeVirtual))}
	_, err := Resolve(ctx, refs, f.ix, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
