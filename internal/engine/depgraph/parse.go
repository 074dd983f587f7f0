package depgraph

import (
	"bufio"
	"depaudit/internal/core/errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const indentWidth = 3

// Parse reads the text output of `mvn dependency:tree -Dverbose`.
//
//	com.example:app:jar:1.0
//	+- org.slf4j:slf4j-api:jar:2.0.16:compile
//	\- ch.qos.logback:logback-classic:jar:1.5.6:compile
//	   \- (org.slf4j:slf4j-api:jar:2.0.13:compile - omitted for conflict with 2.0.16)
func Parse(r io.Reader) (*Graph, error) {
	var g *Graph
	var stack []*Node

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \r")
		line = strings.TrimPrefix(line, "[INFO] ")
		if strings.TrimSpace(line) == "" {
			continue
		}

		prefix := treePrefixLen(line)
		depth := prefix / indentWidth
		node, err := parseLine(line[prefix:], depth == 0)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("dependency tree line %d", lineNo))
		}

		if g == nil {
			if depth != 0 {
				return nil, errors.Newf(errors.CodeValidationError, "dependency tree line %d: missing root", lineNo)
			}
			g = NewGraph(node)
			stack = []*Node{node}
			continue
		}
		if depth == 0 {
			// A second root: mvn appends one tree per module, keep the first.
			break
		}
		if depth > len(stack) {
			return nil, errors.Newf(errors.CodeValidationError, "dependency tree line %d: unexpected indentation", lineNo)
		}
		g.AddChild(stack[depth-1], node)
		stack = append(stack[:depth], node)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dependency tree: %w", err)
	}
	if g == nil {
		return nil, errors.New(errors.CodeValidationError, "dependency tree is empty")
	}
	return g, nil
}

func ParseFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "open dependency tree"), errors.CtxPath, path)
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return g, nil
}

func treePrefixLen(line string) int {
	i := 0
	for i < len(line) && strings.IndexByte("|+-\\ ", line[i]) >= 0 {
		i++
	}
	return i
}

func parseLine(content string, root bool) (*Node, error) {
	var coords, desc string
	omitted := false

	if strings.HasPrefix(content, "(") {
		end := strings.LastIndexByte(content, ')')
		if end < 0 {
			return nil, fmt.Errorf("unterminated omitted entry %q", content)
		}
		inner := content[1:end]
		omitted = true
		coords, desc, _ = strings.Cut(inner, " - ")
	} else {
		var rest string
		coords, rest, _ = strings.Cut(content, " ")
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
			desc = rest[1 : len(rest)-1]
		}
	}

	n, err := parseCoordinates(strings.TrimSpace(coords), root)
	if err != nil {
		return nil, err
	}
	n.Omitted = omitted
	n.Description = strings.TrimSpace(desc)
	return n, nil
}

func parseCoordinates(coords string, root bool) (*Node, error) {
	parts := strings.Split(coords, ":")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("malformed coordinates %q", coords)
		}
	}
	n := &Node{}
	switch {
	case len(parts) == 4:
		n.GroupID, n.ArtifactID, n.Packaging, n.Version = parts[0], parts[1], parts[2], parts[3]
	case len(parts) == 5 && root:
		n.GroupID, n.ArtifactID, n.Packaging, n.Classifier, n.Version = parts[0], parts[1], parts[2], parts[3], parts[4]
	case len(parts) == 5:
		n.GroupID, n.ArtifactID, n.Packaging, n.Version, n.Scope = parts[0], parts[1], parts[2], parts[3], parts[4]
	case len(parts) == 6:
		n.GroupID, n.ArtifactID, n.Packaging, n.Classifier, n.Version, n.Scope = parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]
	default:
		return nil, fmt.Errorf("malformed coordinates %q", coords)
	}
	return n, nil
}
