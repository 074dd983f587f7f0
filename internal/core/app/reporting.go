// # internal/core/app/reporting.go
package app

import (
	"log/slog"
	"sort"
	"time"

	"depaudit/internal/data/store"
	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/reference"
	"depaudit/internal/engine/resolver"
	"depaudit/internal/shared/observability"
	"depaudit/internal/ui/report"
)

// Report is the outcome of one analysis run.
type Report struct {
	ProjectKey string
	Graph      *depgraph.Graph
	Result     *resolver.Result
	// Transitive holds the mapped references of nodes deeper than one, i.e.
	// dependencies the project uses without declaring them.
	Transitive   map[*depgraph.Node]reference.Map
	Duplicates   map[string]int
	Unattributed []string
	Skipped      []string
	RunID        string
	Duration     time.Duration
}

func newReport(projectKey string, deps *dependencyState, result *resolver.Result, excludeTestScope bool) *Report {
	transitive := make(map[*depgraph.Node]reference.Map)
	for n, refs := range result.Mapped {
		if n.Depth > 1 {
			transitive[n] = refs
		}
	}

	observability.ReferencesResolved.WithLabelValues("mapped").Set(float64(result.MappedLen()))
	observability.ReferencesResolved.WithLabelValues("platform").Set(float64(result.Platform.Len()))
	observability.ReferencesResolved.WithLabelValues("unmapped").Set(float64(result.Unmapped.Len()))

	return &Report{
		ProjectKey:   projectKey,
		Graph:        deps.graph,
		Result:       result,
		Transitive:   transitive,
		Duplicates:   deps.graph.Duplicates(excludeTestScope),
		Unattributed: append([]string(nil), deps.index.Unattributed()...),
	}
}

// TransitiveNames returns the keys of the transitively used nodes, sorted.
func (r *Report) TransitiveNames() []string {
	out := make([]string, 0, len(r.Transitive))
	for n := range r.Transitive {
		out = append(out, n.Key())
	}
	sort.Strings(out)
	return out
}

func (r *Report) MappedClasses() int {
	total := 0
	for _, m := range r.Result.Mapped {
		total += len(m)
	}
	return total
}

func (r *Report) Summary() report.Summary {
	return report.Summary{
		Project:            r.ProjectKey,
		Duration:           r.Duration,
		Dependencies:       len(r.Graph.Dependencies()),
		MappedNodes:        len(r.Result.Mapped),
		MappedClasses:      r.MappedClasses(),
		MappedReferences:   r.Result.MappedLen(),
		PlatformClasses:    len(r.Result.Platform),
		UnmappedClasses:    len(r.Result.Unmapped),
		UnmappedReferences: r.Result.Unmapped.Len(),
		UnattributedFiles:  len(r.Unattributed),
		SkippedUnits:       len(r.Skipped),
		TransitiveUsed:     r.TransitiveNames(),
		Duplicates:         r.Duplicates,
	}
}

// Usages flattens the mapped and unmapped partitions into store rows. A class
// with no member references yields one row with an empty member.
func (r *Report) Usages() []store.Usage {
	var out []store.Usage
	for n, m := range r.Result.Mapped {
		out = appendUsages(out, n.Key(), m, true)
	}
	out = appendUsages(out, "", r.Result.Unmapped, false)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.NodeKey != b.NodeKey {
			return a.NodeKey < b.NodeKey
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		if a.Member != b.Member {
			return a.Member < b.Member
		}
		return a.Access < b.Access
	})
	return out
}

func appendUsages(out []store.Usage, nodeKey string, m reference.Map, mapped bool) []store.Usage {
	for class, refs := range m {
		if len(refs) == 0 {
			out = append(out, store.Usage{NodeKey: nodeKey, Class: class, Mapped: mapped})
			continue
		}
		for ref := range refs {
			out = append(out, store.Usage{
				NodeKey: nodeKey,
				Class:   class,
				Member:  ref.Member,
				Access:  ref.Access.String(),
				Mapped:  mapped,
			})
		}
	}
	return out
}

func (a *App) persist(r *Report) error {
	if a.store == nil {
		return nil
	}
	run := store.Run{
		ProjectKey:         r.ProjectKey,
		Timestamp:          time.Now().UTC(),
		DependencyCount:    len(r.Graph.Dependencies()),
		MappedNodeCount:    len(r.Result.Mapped),
		MappedClassCount:   r.MappedClasses(),
		MappedRefCount:     r.Result.MappedLen(),
		UnmappedClassCount: len(r.Result.Unmapped),
		UnmappedRefCount:   r.Result.Unmapped.Len(),
		UnattributedCount:  len(r.Unattributed),
		TransitiveUsed:     len(r.Transitive),
	}
	id, err := a.store.SaveRun(run, r.Usages())
	if err != nil {
		return err
	}
	r.RunID = id
	slog.Debug("run saved", "run_id", id, "project", r.ProjectKey)
	return nil
}
