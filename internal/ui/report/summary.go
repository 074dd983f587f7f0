package report

import (
	"fmt"
	"strings"
	"time"

	"depaudit/internal/shared/util"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Width(28)

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(0, 1)
)

// Summary is the headline of one analysis.
type Summary struct {
	Project            string
	Duration           time.Duration
	Dependencies       int
	MappedNodes        int
	MappedClasses      int
	MappedReferences   int
	PlatformClasses    int
	UnmappedClasses    int
	UnmappedReferences int
	UnattributedFiles  int
	SkippedUnits       int
	// TransitiveUsed names the dependencies below depth one that the
	// project uses directly.
	TransitiveUsed []string
	// Duplicates maps group:artifact to its number of occurrences.
	Duplicates map[string]int
}

// RenderSummary formats s for a terminal.
func RenderSummary(s Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("depaudit: %s", s.Project)) + "\n\n")

	row := func(label string, value int, warnOnNonZero bool) {
		style := goodStyle
		if warnOnNonZero && value > 0 {
			style = warnStyle
		}
		b.WriteString(labelStyle.Render(label) + style.Render(fmt.Sprint(value)) + "\n")
	}
	row("Dependencies", s.Dependencies, false)
	row("Used dependencies", s.MappedNodes, false)
	row("Mapped classes", s.MappedClasses, false)
	row("Mapped references", s.MappedReferences, false)
	row("Platform classes", s.PlatformClasses, false)
	row("Unmapped classes", s.UnmappedClasses, true)
	row("Unmapped references", s.UnmappedReferences, true)
	row("Unattributed files", s.UnattributedFiles, true)
	row("Skipped class files", s.SkippedUnits, true)
	row("Transitive dependencies used", len(s.TransitiveUsed), true)

	if len(s.TransitiveUsed) > 0 {
		b.WriteString("\n" + warnStyle.Render("Used without a direct declaration:") + "\n")
		for _, name := range s.TransitiveUsed {
			b.WriteString("  - " + name + "\n")
		}
	}
	if len(s.Duplicates) > 0 {
		b.WriteString("\n" + warnStyle.Render("Artifacts resolved more than once:") + "\n")
		for _, name := range util.SortedKeys(s.Duplicates) {
			fmt.Fprintf(&b, "  - %s (%d)\n", name, s.Duplicates[name])
		}
	}
	if s.Duration > 0 {
		fmt.Fprintf(&b, "\nfinished in %s\n", s.Duration.Round(time.Millisecond))
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
