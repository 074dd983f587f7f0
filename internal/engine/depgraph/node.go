package depgraph

import (
	"fmt"
	"strings"
)

// Node is one resolved entry in the dependency graph. Nodes are compared by
// pointer identity; the same coordinates can appear more than once.
type Node struct {
	GroupID    string
	ArtifactID string
	Packaging  string
	Classifier string
	Version    string
	Scope      string
	// Depth is 0 for the project itself and 1 for direct dependencies.
	Depth int
	// Omitted is set for entries the build tool did not select, e.g. a
	// losing version in a conflict.
	Omitted     bool
	Description string
	// ArchivePath is the materialised archive, empty until attributed.
	ArchivePath string
}

// Key is group:artifact[:classifier]:version.
func (n *Node) Key() string {
	if n.Classifier != "" {
		return fmt.Sprintf("%s:%s:%s:%s", n.GroupID, n.ArtifactID, n.Classifier, n.Version)
	}
	return fmt.Sprintf("%s:%s:%s", n.GroupID, n.ArtifactID, n.Version)
}

// Name is group:artifact.
func (n *Node) Name() string {
	return n.GroupID + ":" + n.ArtifactID
}

// JarName is the file name the copy-dependencies goal gives the archive.
func (n *Node) JarName() string {
	if n.Classifier != "" {
		return fmt.Sprintf("%s-%s-%s.jar", n.ArtifactID, n.Version, n.Classifier)
	}
	return fmt.Sprintf("%s-%s.jar", n.ArtifactID, n.Version)
}

func (n *Node) IsTestScope() bool {
	return n.Scope == "test"
}

// IsConflictLoser reports whether the node was omitted in favour of another
// version.
func (n *Node) IsConflictLoser() bool {
	return n.Omitted && strings.Contains(n.Description, "conflict with")
}

func (n *Node) String() string {
	return fmt.Sprintf("L%d-%s-%s", n.Depth, n.Name(), n.Version)
}
