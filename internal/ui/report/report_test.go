package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tree = `com.example:app:jar:1.0
+- com.lib:alpha:jar:1.0:compile
|  \- com.lib:shared:jar:2.0:compile
+- com.lib:beta:jar:3.1:compile
|  \- (com.lib:shared:jar:1.5:compile - omitted for conflict with 2.0)
\- com.lib:gamma:jar:0.9:test
`

func fixture(t *testing.T) (*depgraph.Graph, map[*depgraph.Node]reference.Map) {
	t.Helper()
	g, err := depgraph.Parse(strings.NewReader(tree))
	require.NoError(t, err)

	nodes := g.Nodes()
	alpha, shared := nodes[1], nodes[4]
	require.Equal(t, "com.lib:shared:2.0", shared.Key())

	mapped := map[*depgraph.Node]reference.Map{
		alpha: {"com.lib.alpha.Client": reference.NewSet(
			reference.Reference{Member: "connect()V", Access: reference.InvokeVirtual},
		)},
		shared: {
			"com.lib.shared.Base": reference.NewSet(
				reference.Reference{Member: "id", Access: reference.GetField},
				reference.Reference{Member: "run()V", Access: reference.InvokeVirtual},
			),
			"com.lib.shared.Marker": reference.NewSet(),
		},
	}
	return g, mapped
}

func transitiveOf(mapped map[*depgraph.Node]reference.Map) map[*depgraph.Node]reference.Map {
	out := make(map[*depgraph.Node]reference.Map)
	for n, refs := range mapped {
		if n.Depth > 1 {
			out[n] = refs
		}
	}
	return out
}

func TestMermaid(t *testing.T) {
	g, mapped := fixture(t)
	out, err := NewMermaidGenerator(g, transitiveOf(mapped), MermaidOptions{}).Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "graph LR;\n"))
	assert.Contains(t, out, "A(\"L0-com.example:app-1.0\")\n")
	assert.Contains(t, out, "B(\"L1-com.lib:alpha-1.0\")\n")
	assert.Contains(t, out, "E{{\"`✔ L2-com.lib:shared-2.0`\"}}\n")
	assert.Contains(t, out, "F{{\"`⚔ L2-com.lib:shared-1.5`\"}}\n")
	assert.Contains(t, out, "\tA -. test .-> D\n")
	assert.Contains(t, out, "\tB --> E\n\tA --> E\n")
	assert.Contains(t, out, "style E fill:#cc3333, "+winnerStyle+"\n")
	assert.Contains(t, out, "style F fill:#db7070, "+conflictStyle+"\n")
	assert.True(t, strings.HasSuffix(out, "linkStyle 4 stroke:red\n"), out)
}

func TestMermaidExcludesTestScopeAndLabelsMembers(t *testing.T) {
	g, mapped := fixture(t)
	out, err := NewMermaidGenerator(g, transitiveOf(mapped), MermaidOptions{
		ExcludeTestScope:      true,
		ShowTransitiveMembers: true,
	}).Generate()
	require.NoError(t, err)

	assert.NotContains(t, out, "gamma")
	assert.NotContains(t, out, "-. test .->")
	assert.Contains(t, out, "\tA -- \"GETFIELD-#gt;com.lib.shared.Base::id<br/>INVOKEVIRTUAL-#gt;com.lib.shared.Base::run()V<br/>...\" --> D\n")
	assert.Contains(t, out, "linkStyle 3 stroke:red\n")
}

func TestMermaidWithoutRoot(t *testing.T) {
	_, err := NewMermaidGenerator(&depgraph.Graph{}, nil, MermaidOptions{}).Generate()
	assert.Error(t, err)
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "A", columnName(0))
	assert.Equal(t, "Z", columnName(25))
	assert.Equal(t, "AA", columnName(26))
	assert.Equal(t, "AZ", columnName(51))
	assert.Equal(t, "BA", columnName(52))
}

func TestPaletteWrapsLosers(t *testing.T) {
	p := newPalette(map[string]int{"g:a": 2})
	winner := p.winner("g:a")
	first := p.loser("g:a")
	second := p.loser("g:a")
	assert.NotEqual(t, winner, first)
	assert.Equal(t, first, second)
	assert.False(t, p.has("g:b"))
}

func TestWriteCSV(t *testing.T) {
	g, mapped := fixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, g, mapped))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"com.lib:alpha:1.0", "compile", "1", "false", "com.lib.alpha.Client.connect()V -> INVOKEVIRTUAL\n"}, rows[1])
	assert.Equal(t, []string{"com.lib:gamma:0.9", "test", "1", "false", ""}, rows[3])
	assert.Equal(t, "com.lib:shared:2.0", rows[4][0])
	assert.Equal(t,
		"com.lib.shared.Base.id -> GETFIELD\ncom.lib.shared.Base.run()V -> INVOKEVIRTUAL\ncom.lib.shared.Marker\n",
		rows[4][4])
	assert.Equal(t, "true", rows[5][3])
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(Summary{
		Project:          "app",
		Duration:         1500 * time.Millisecond,
		Dependencies:     5,
		MappedNodes:      2,
		UnmappedClasses:  1,
		TransitiveUsed:   []string{"com.lib:shared:2.0"},
		Duplicates:       map[string]int{"com.lib:shared": 2},
		MappedReferences: 3,
	})
	assert.Contains(t, out, "depaudit: app")
	assert.Contains(t, out, "Unmapped classes")
	assert.Contains(t, out, "com.lib:shared:2.0")
	assert.Contains(t, out, "com.lib:shared (2)")
	assert.Contains(t, out, "1.5s")
}
