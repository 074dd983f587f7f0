package depgraph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"depaudit/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTree = `com.example:demo:jar:1.0-SNAPSHOT
+- org.slf4j:slf4j-api:jar:2.0.16:compile
+- ch.qos.logback:logback-classic:jar:1.5.6:compile
|  +- ch.qos.logback:logback-core:jar:1.5.6:compile
|  \- (org.slf4j:slf4j-api:jar:2.0.13:compile - omitted for conflict with 2.0.16)
+- io.netty:netty-transport-native-epoll:jar:linux-x86_64:4.1.100.Final:runtime
\- junit:junit:jar:4.13.2:test
   \- org.hamcrest:hamcrest-core:jar:1.3:test (version managed from 1.1)
`

func TestParse(t *testing.T) {
	g, err := Parse(strings.NewReader(sampleTree))
	require.NoError(t, err)

	assert.Equal(t, "com.example:demo:1.0-SNAPSHOT", g.Root.Key())
	assert.Equal(t, 0, g.Root.Depth)

	nodes := g.Nodes()
	require.Len(t, nodes, 8)
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key()
	}
	assert.Equal(t, []string{
		"com.example:demo:1.0-SNAPSHOT",
		"org.slf4j:slf4j-api:2.0.16",
		"ch.qos.logback:logback-classic:1.5.6",
		"io.netty:netty-transport-native-epoll:linux-x86_64:4.1.100.Final",
		"junit:junit:4.13.2",
		"ch.qos.logback:logback-core:1.5.6",
		"org.slf4j:slf4j-api:2.0.13",
		"org.hamcrest:hamcrest-core:1.3",
	}, keys)

	loser := nodes[6]
	assert.True(t, loser.Omitted)
	assert.True(t, loser.IsConflictLoser())
	assert.Equal(t, "omitted for conflict with 2.0.16", loser.Description)
	assert.Equal(t, 2, loser.Depth)
	assert.Equal(t, nodes[2], g.Parent(loser))

	epoll := nodes[3]
	assert.Equal(t, "linux-x86_64", epoll.Classifier)
	assert.Equal(t, "runtime", epoll.Scope)
	assert.Equal(t, "netty-transport-native-epoll-4.1.100.Final-linux-x86_64.jar", epoll.JarName())

	hamcrest := nodes[7]
	assert.Equal(t, "version managed from 1.1", hamcrest.Description)
	assert.False(t, hamcrest.Omitted)
	assert.True(t, hamcrest.IsTestScope())
	assert.Equal(t, "hamcrest-core-1.3.jar", hamcrest.JarName())
	assert.Equal(t, "L2-org.hamcrest:hamcrest-core-1.3", hamcrest.String())

	assert.Len(t, g.Edges(), 7)
	assert.Len(t, g.Children(g.Root), 4)
}

func TestParseMavenLogPrefix(t *testing.T) {
	in := "[INFO] com.example:demo:jar:1.0\n[INFO] \\- org.slf4j:slf4j-api:jar:2.0.16:compile\n"
	g, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, g.Dependencies(), 1)
}

func TestParseKeepsFirstModule(t *testing.T) {
	in := "com.example:a:jar:1.0\n\\- x:y:jar:1:compile\ncom.example:b:jar:1.0\n\\- z:w:jar:1:compile\n"
	g, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, g.Dependencies(), 1)
	assert.Equal(t, "x:y", g.Dependencies()[0].Name())
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"missing root":    "+- x:y:jar:1:compile\n",
		"bad coordinates": "com.example:demo:jar:1.0\n+- x:y\n",
		"deep jump":       "com.example:demo:jar:1.0\n|  |  +- x:y:jar:1:compile\n",
		"unterminated":    "com.example:demo:jar:1.0\n+- (x:y:jar:1:compile - omitted\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidationError), "got %v", err)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DepTree.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleTree), 0o644))
	g, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, g.Nodes(), 8)

	_, err = ParseFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestDuplicates(t *testing.T) {
	g, err := Parse(strings.NewReader(sampleTree + ""))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"org.slf4j:slf4j-api": 2}, g.Duplicates(false))

	root := &Node{GroupID: "g", ArtifactID: "root", Version: "1"}
	g = NewGraph(root)
	a := &Node{GroupID: "junit", ArtifactID: "junit", Version: "4", Scope: "test"}
	b := &Node{GroupID: "junit", ArtifactID: "junit", Version: "5", Scope: "test"}
	g.AddChild(root, a)
	g.AddChild(a, b)
	assert.Equal(t, map[string]int{"junit:junit": 2}, g.Duplicates(false))
	assert.Empty(t, g.Duplicates(true))
	assert.Equal(t, 2, b.Depth)
}
