package report

import (
	"fmt"
	"strings"

	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/reference"
)

const (
	defaultMaxEdgeMembers = 2
	winnerStyle           = "stroke-width:10px,stroke-dasharray: 5 5"
	conflictStyle         = "stroke:#ed1b0c,stroke-width:10px,stroke-dasharray: 5 5"
)

type MermaidOptions struct {
	ExcludeTestScope bool
	// ShowTransitiveMembers labels the root-to-transitive edges with the
	// members the project uses.
	ShowTransitiveMembers bool
	MaxEdgeMembers        int
}

// MermaidGenerator renders the dependency tree as a left-to-right flowchart.
// Transitive dependencies the project uses directly get an extra red edge
// from the root.
type MermaidGenerator struct {
	graph      *depgraph.Graph
	transitive map[*depgraph.Node]reference.Map
	opts       MermaidOptions
}

func NewMermaidGenerator(g *depgraph.Graph, transitive map[*depgraph.Node]reference.Map, opts MermaidOptions) *MermaidGenerator {
	if opts.MaxEdgeMembers <= 0 {
		opts.MaxEdgeMembers = defaultMaxEdgeMembers
	}
	return &MermaidGenerator{graph: g, transitive: transitive, opts: opts}
}

type nodeStyle struct {
	alias string
	fill  string
	extra string
}

func (m *MermaidGenerator) Generate() (string, error) {
	if m.graph == nil || m.graph.Root == nil {
		return "", fmt.Errorf("dependency graph has no root")
	}

	var b strings.Builder
	b.WriteString("graph LR;\n")

	colors := newPalette(m.graph.Duplicates(m.opts.ExcludeTestScope))
	aliases := make(map[*depgraph.Node]string)
	var styles []nodeStyle

	for _, n := range m.graph.Nodes() {
		if m.skip(n) {
			continue
		}
		alias := columnName(len(aliases))
		aliases[n] = alias

		label := fmt.Sprintf("(\"%s\")", escapeLabel(nodeLabel(n)))
		if n != m.graph.Root && colors.has(n.Name()) {
			style := nodeStyle{alias: alias}
			icon := ""
			switch {
			case !n.Omitted:
				icon = "✔"
				style.fill = colors.winner(n.Name())
				style.extra = winnerStyle
			case n.IsConflictLoser():
				icon = "⚔"
				style.fill = colors.loser(n.Name())
				style.extra = conflictStyle
			default:
				style.fill = colors.loser(n.Name())
			}
			if icon != "" {
				label = fmt.Sprintf("{{\"`%s %s`\"}}", icon, escapeLabel(nodeLabel(n)))
			}
			styles = append(styles, style)
		}
		fmt.Fprintf(&b, "%s%s\n", alias, label)
	}

	rootAlias := aliases[m.graph.Root]
	var redLinks []string
	edgeIdx := 0
	for _, e := range m.graph.Edges() {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		arrow := " --> "
		if e.To.IsTestScope() {
			arrow = " -. test .-> "
		}
		fmt.Fprintf(&b, "\t%s%s%s\n", from, arrow, to)
		edgeIdx++

		refs, used := m.transitive[e.To]
		if !used {
			continue
		}
		if m.opts.ShowTransitiveMembers {
			fmt.Fprintf(&b, "\t%s -- \"%s\" --> %s\n", rootAlias, m.edgeLabel(refs), to)
		} else {
			fmt.Fprintf(&b, "\t%s --> %s\n", rootAlias, to)
		}
		redLinks = append(redLinks, fmt.Sprint(edgeIdx))
		edgeIdx++
	}

	for _, s := range styles {
		line := "style " + s.alias + " fill:" + s.fill
		if s.extra != "" {
			line += ", " + s.extra
		}
		b.WriteString(line + "\n")
	}
	if len(redLinks) > 0 {
		b.WriteString("linkStyle " + strings.Join(redLinks, ",") + " stroke:red\n")
	}
	return b.String(), nil
}

func (m *MermaidGenerator) skip(n *depgraph.Node) bool {
	return m.opts.ExcludeTestScope && n != m.graph.Root && n.IsTestScope()
}

// edgeLabel lists at most MaxEdgeMembers uses as ACCESS->Class::member.
func (m *MermaidGenerator) edgeLabel(refs reference.Map) string {
	var items []string
	for _, class := range refs.Classes() {
		set := refs[class]
		if len(set) == 0 {
			items = append(items, escapeLabel(class))
			continue
		}
		for _, r := range set.Sorted() {
			items = append(items, escapeLabel(fmt.Sprintf("%s->%s::%s", r.Access, class, r.Member)))
		}
	}
	if len(items) > m.opts.MaxEdgeMembers {
		items = append(items[:m.opts.MaxEdgeMembers], "...")
	}
	return strings.Join(items, "<br/>")
}

func nodeLabel(n *depgraph.Node) string {
	return fmt.Sprintf("L%d-%s-%s", n.Depth, n.Name(), n.Version)
}

// columnName maps 0, 1, ... 25, 26 to A, B, ... Z, AA.
func columnName(i int) string {
	var out []byte
	for i >= 0 {
		out = append([]byte{byte('A' + i%26)}, out...)
		i = i/26 - 1
	}
	return string(out)
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "#quot;")
	s = strings.ReplaceAll(s, "<", "#lt;")
	s = strings.ReplaceAll(s, ">", "#gt;")
	return s
}
