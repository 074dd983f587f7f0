package depgraph

// Graph is the project's dependency tree. The root is the project itself.
type Graph struct {
	Root     *Node
	children map[*Node][]*Node
	parent   map[*Node]*Node
	order    []*Node
}

func NewGraph(root *Node) *Graph {
	return &Graph{
		Root:     root,
		children: make(map[*Node][]*Node),
		parent:   make(map[*Node]*Node),
	}
}

// AddChild links child under parent and sets its depth.
func (g *Graph) AddChild(parent, child *Node) {
	child.Depth = parent.Depth + 1
	g.children[parent] = append(g.children[parent], child)
	g.parent[child] = parent
	g.order = nil
}

func (g *Graph) Children(n *Node) []*Node {
	return g.children[n]
}

func (g *Graph) Parent(n *Node) *Node {
	return g.parent[n]
}

// Nodes returns every node in breadth-first order starting at the root.
func (g *Graph) Nodes() []*Node {
	if g.order != nil {
		return g.order
	}
	if g.Root == nil {
		return nil
	}
	order := []*Node{g.Root}
	for i := 0; i < len(order); i++ {
		order = append(order, g.children[order[i]]...)
	}
	g.order = order
	return order
}

// Dependencies returns every node except the root, breadth first.
func (g *Graph) Dependencies() []*Node {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil
	}
	return nodes[1:]
}

// Edge is a parent/child link.
type Edge struct {
	From *Node
	To   *Node
}

// Edges returns parent/child links breadth first.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, n := range g.Nodes() {
		for _, c := range g.children[n] {
			out = append(out, Edge{From: n, To: c})
		}
	}
	return out
}

// Duplicates counts group:artifact pairs that occur more than once. Test
// scoped nodes are ignored when excludeTest is set.
func (g *Graph) Duplicates(excludeTest bool) map[string]int {
	counts := make(map[string]int)
	for _, n := range g.Dependencies() {
		if excludeTest && n.IsTestScope() {
			continue
		}
		counts[n.Name()]++
	}
	for name, c := range counts {
		if c < 2 {
			delete(counts, name)
		}
	}
	return counts
}
