package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"depaudit/internal/core/errors"
	"depaudit/internal/engine/classfile/classtest"
	"depaudit/internal/engine/index"
	"depaudit/internal/engine/reference"
	"depaudit/internal/engine/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSaveLoad(t *testing.T) {
	dir := t.TempDir()
	str := classtest.New("java.lang.String", "java.lang.Object")
	str.Field(0x0002, "value", "[B")
	str.Method(0x0001, "length", "()I").Code().Raw(0x03, 0xac)
	str.Method(0x0001, "<init>", "()V").Code().Return()
	list := classtest.New("java.util.List", "java.lang.Object").AsInterface()
	list.Method(0x0401, "size", "()I")
	jar := classtest.WriteJar(t, dir, "rt.jar", str, list)

	table, err := BuildFromArchives(context.Background(), []string{jar})
	require.NoError(t, err)
	assert.Equal(t, []string{"<init>()V", "length()I", "value"}, table["java.lang.String"])
	assert.Equal(t, []string{"size()I"}, table["java.util.List"])

	path := filepath.Join(dir, "out", "platform.json")
	require.NoError(t, Save(path, table))

	m, err := Load(path)
	require.NoError(t, err)
	assert.True(t, m["java.lang.String"].Has(reference.Reference{Member: "length()I", Access: reference.Other}))
	assert.Len(t, m["java.lang.String"], 3)
	assert.Equal(t, table, FromMap(m))
}

func TestBuildIncludesInheritedPublicMembers(t *testing.T) {
	dir := t.TempDir()
	throwable := classtest.New("java.lang.Throwable", "java.lang.Object")
	throwable.Field(0x0001, "trace", "[Ljava/lang/Object;")
	throwable.Field(0x0002, "detail", "Ljava/lang/String;")
	throwable.Method(0x0001, "<init>", "()V").Code().Return()
	throwable.Method(0x0001, "getMessage", "()Ljava/lang/String;").Code().Raw(0x01, 0xb0)
	throwable.Method(0x0002, "fillIn", "()V").Code().Return()
	closeable := classtest.New("java.io.Closeable", "java.lang.Object").AsInterface()
	closeable.Method(0x0401, "close", "()V")
	ioe := classtest.New("java.io.IOException", "java.lang.Throwable").Interface("java.io.Closeable")
	ioe.Method(0x0001, "<init>", "()V").Code().Return()
	// Split across archives: ancestors resolve from any input archive.
	base := classtest.WriteJar(t, dir, "base.jar", throwable, closeable)
	ioJar := classtest.WriteJar(t, dir, "io.jar", ioe)

	table, err := BuildFromArchives(context.Background(), []string{ioJar, base})
	require.NoError(t, err)
	assert.Equal(t, []string{"<init>()V", "close()V", "getMessage()Ljava/lang/String;", "trace"}, table["java.io.IOException"])
	assert.Equal(t, []string{"<init>()V", "detail", "fillIn()V", "getMessage()Ljava/lang/String;", "trace"}, table["java.lang.Throwable"])

	refs := reference.Map{}
	refs.Add("java.io.IOException", reference.Reference{Member: "getMessage()Ljava/lang/String;", Access: reference.InvokeVirtual})
	res, err := resolver.Resolve(context.Background(), refs, index.New(), table.Map())
	require.NoError(t, err)
	assert.Equal(t, refs, res.Platform)
	assert.Empty(t, res.Unmapped)
	assert.Empty(t, res.Mapped)
}

func TestBuildSurvivesCyclicHierarchy(t *testing.T) {
	a := classtest.New("p.A", "p.B")
	a.Method(0x0001, "a", "()V").Code().Return()
	b := classtest.New("p.B", "p.A")
	b.Method(0x0001, "b", "()V").Code().Return()
	jar := classtest.WriteJar(t, t.TempDir(), "cycle.jar", a, b)

	table, err := BuildFromArchives(context.Background(), []string{jar})
	require.NoError(t, err)
	assert.Equal(t, []string{"a()V", "b()V"}, table["p.A"])
	assert.Equal(t, []string{"a()V", "b()V"}, table["p.B"])
}

func TestLoadMissingIsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = Load("")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestEmptyClassIsKept(t *testing.T) {
	m := Table{"java.lang.Marker": {}}.Map()
	_, ok := m["java.lang.Marker"]
	assert.True(t, ok)
}
