package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/reference"
)

var csvHeader = []string{"Dependency", "Dependency Scope", "Dependency Level", "Omitted", "Invoked References"}

// WriteCSV writes one row per dependency in breadth-first order. The last
// column lists Class.member -> ACCESS lines, or the bare class for type-only
// uses.
func WriteCSV(w io.Writer, g *depgraph.Graph, mapped map[*depgraph.Node]reference.Map) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, n := range g.Dependencies() {
		row := []string{
			n.Key(),
			n.Scope,
			strconv.Itoa(n.Depth),
			strconv.FormatBool(n.Omitted),
			invokedReferences(mapped[n]),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func invokedReferences(refs reference.Map) string {
	var b strings.Builder
	for _, class := range refs.Classes() {
		set := refs[class]
		if len(set) == 0 {
			b.WriteString(class + "\n")
			continue
		}
		for _, r := range set.Sorted() {
			b.WriteString(class + "." + r.String() + "\n")
		}
	}
	return b.String()
}
