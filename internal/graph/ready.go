package graph

import (
	"fmt"

	"github.com/vk/gridci/internal/run"
)

// Skip describes a node that must not run: either its dependencies rule it
// out or its condition evaluated false. Result is Skipped in the normal case
// and Failed when the condition itself could not be evaluated.
type Skip struct {
	Node   *Node
	Result run.Result
	Reason string
}

// Ready scans the graph against the current result table and returns the
// nodes that may start now, plus the nodes that must transition straight to
// a terminal state without running.
//
// A node is runnable when every dependency reached a terminal state, none of
// them failed or was cancelled, skipped dependencies are tolerated by the
// job, and its condition (if any) evaluates true.
func (g *Graph) Ready(rc *run.Context, results map[string]run.Result) (ready []*Node, skips []Skip) {
	for _, node := range sortedNodes(g) {
		if results[node.ID] != run.Pending {
			continue
		}

		blocked, skip := gateOnDeps(node, results)
		if blocked {
			continue
		}
		if skip != nil {
			skips = append(skips, *skip)
			continue
		}

		if node.Job.Condition != nil {
			ok, err := run.EvaluateBool(node.Job.Condition, run.EvalContext(rc, node.Values, g.needResults(node, results)))
			if err != nil {
				skips = append(skips, Skip{Node: node, Result: run.Failed, Reason: fmt.Sprintf("condition error: %v", err)})
				continue
			}
			if !ok {
				skips = append(skips, Skip{Node: node, Result: run.Skipped, Reason: "condition evaluated false"})
				continue
			}
		}

		ready = append(ready, node)
	}
	return ready, skips
}

// gateOnDeps inspects a node's dependencies. It reports blocked when some
// dependency is still non-terminal, and a skip when a terminal dependency
// rules the node out.
func gateOnDeps(node *Node, results map[string]run.Result) (blocked bool, skip *Skip) {
	for _, dep := range sortedDeps(node) {
		switch results[dep.ID] {
		case run.Succeeded:
			continue
		case run.Failed:
			return false, &Skip{Node: node, Result: run.Skipped, Reason: fmt.Sprintf("dependency %q failed", dep.ID)}
		case run.Cancelled:
			return false, &Skip{Node: node, Result: run.Skipped, Reason: fmt.Sprintf("dependency %q was cancelled", dep.ID)}
		case run.Skipped:
			if node.Job.AllowSkippedNeeds {
				continue
			}
			return false, &Skip{Node: node, Result: run.Skipped, Reason: fmt.Sprintf("dependency %q was skipped", dep.ID)}
		default:
			return true, nil
		}
	}
	return false, nil
}

// needResults aggregates instance results per dependency template for the
// `needs` expression variable. All instances succeeded reads as succeeded;
// otherwise the worst instance result wins.
func (g *Graph) needResults(node *Node, results map[string]run.Result) map[string]run.Result {
	needs := make(map[string]run.Result, len(node.Job.Needs))
	for _, name := range node.Job.Needs {
		needs[name] = templateResult(g.byTemplate[name], results)
	}
	return needs
}

// TemplateResult aggregates the instance results of a job template the same
// way `needs` expressions and the run aggregator see them.
func (g *Graph) TemplateResult(template string, results map[string]run.Result) run.Result {
	return templateResult(g.byTemplate[template], results)
}

func templateResult(nodes []*Node, results map[string]run.Result) run.Result {
	agg := run.Succeeded
	for _, n := range nodes {
		r := results[n.ID]
		if rank(r) > rank(agg) {
			agg = r
		}
	}
	return agg
}

// rank orders results from best to worst for aggregation purposes.
func rank(r run.Result) int {
	switch r {
	case run.Succeeded:
		return 0
	case run.Pending:
		return 1
	case run.Running:
		return 2
	case run.Skipped:
		return 3
	case run.Cancelled:
		return 4
	case run.Failed:
		return 5
	}
	return 6
}
