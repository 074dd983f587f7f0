// # internal/core/app/output.go
package app

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"depaudit/internal/shared/util"
	"depaudit/internal/ui/report"
)

// writeOutputs writes the Mermaid graph and the CSV table. A Mermaid target
// ending in .md is wrapped in a fenced block so it renders on code hosts.
func (a *App) writeOutputs(r *Report) error {
	if a.Paths.MermaidFile != "" {
		diagram, err := report.NewMermaidGenerator(r.Graph, r.Transitive, report.MermaidOptions{
			ExcludeTestScope:      a.Config.Output.ExcludeTestScope,
			ShowTransitiveMembers: a.Config.Output.ShowTransitiveFunctions,
		}).Generate()
		if err != nil {
			return fmt.Errorf("generate mermaid graph: %w", err)
		}
		if strings.EqualFold(filepath.Ext(a.Paths.MermaidFile), ".md") {
			diagram = "```mermaid\n" + diagram + "```\n"
		}
		if err := util.WriteStringWithDirs(a.Paths.MermaidFile, diagram, 0o644); err != nil {
			return fmt.Errorf("write mermaid graph: %w", err)
		}
		slog.Info("wrote dependency graph", "path", a.Paths.MermaidFile)
	}

	if a.Paths.CSVFile != "" {
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, r.Graph, r.Result.Mapped); err != nil {
			return fmt.Errorf("generate usage table: %w", err)
		}
		if err := util.WriteFileWithDirs(a.Paths.CSVFile, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write usage table: %w", err)
		}
		slog.Info("wrote usage table", "path", a.Paths.CSVFile)
	}
	return nil
}
