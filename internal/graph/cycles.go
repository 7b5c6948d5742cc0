package graph

import (
	"sort"
	"strings"
)

// CycleError reports a circular `needs` chain. Path holds the offending
// cycle, first node repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// detectCycles checks for circular dependencies using depth-first search,
// keeping the current stack so the error can name the full cycle.
func (g *Graph) detectCycles() error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var stack []string

	var visit func(node *Node) error
	visit = func(node *Node) error {
		visiting[node.ID] = true
		stack = append(stack, node.ID)

		for _, dep := range sortedDeps(node) {
			if visiting[dep.ID] {
				// Slice the stack from the first occurrence of the dep to
				// reconstruct the cycle.
				start := 0
				for i, id := range stack {
					if id == dep.ID {
						start = i
						break
					}
				}
				path := append(append([]string{}, stack[start:]...), dep.ID)
				return &CycleError{Path: path}
			}
			if !visited[dep.ID] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(visiting, node.ID)
		visited[node.ID] = true
		return nil
	}

	for _, node := range sortedNodes(g) {
		if !visited[node.ID] {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortedNodes and sortedDeps keep traversal order deterministic so repeated
// validation of the same definition reports the same cycle.
func sortedNodes(g *Graph) []*Node {
	nodes := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

func sortedDeps(n *Node) []*Node {
	deps := make([]*Node, 0, len(n.Deps))
	for _, d := range n.Deps {
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].ID < deps[j].ID })
	return deps
}
