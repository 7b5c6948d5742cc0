// Package graph builds and validates the dependency graph of a run: one node
// per expanded job instance, edges following `needs`. The graph is immutable
// after Build; execution state lives in the scheduler's result table.
package graph

import (
	"context"
	"fmt"

	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/matrix"
	"github.com/zclconf/go-cty/cty"
)

// Node is a single vertex of the run graph: one concrete job instance.
type Node struct {
	// ID is the instance identifier produced by matrix expansion.
	ID string

	// Job is the template this instance was expanded from.
	Job *config.Job

	// Values is the matrix combination of this instance, nil for plain jobs.
	Values map[string]cty.Value

	// ExpansionKey groups sibling instances of one matrix expansion.
	ExpansionKey string

	// FailFast marks instances whose failure cancels their expansion siblings.
	FailFast bool

	// Deps holds the nodes this one depends on (predecessors).
	Deps map[string]*Node

	// Dependents holds the nodes that depend on this one (successors).
	Dependents map[string]*Node
}

// Graph is the complete, validated dependency graph of one run.
type Graph struct {
	// Nodes stores all instances keyed by their unique ID.
	Nodes map[string]*Node

	byTemplate map[string][]*Node
}

// Build expands every job of the pipeline and constructs a validated graph.
// A dependency on a matrix job links the dependent to every instance of that
// expansion.
func Build(ctx context.Context, p *config.Pipeline) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.", "pipeline", p.Name)

	g := &Graph{
		Nodes:      make(map[string]*Node),
		byTemplate: make(map[string][]*Node),
	}

	// First pass: expand all job templates into nodes.
	for _, job := range p.Jobs {
		instances, err := matrix.Expand(job)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			node := &Node{
				ID:           inst.ID,
				Job:          inst.Job,
				Values:       inst.Values,
				ExpansionKey: inst.ExpansionKey,
				FailFast:     inst.FailFast,
				Deps:         make(map[string]*Node),
				Dependents:   make(map[string]*Node),
			}
			g.Nodes[node.ID] = node
			g.byTemplate[job.Name] = append(g.byTemplate[job.Name], node)
		}
	}
	logger.Debug("Build: node creation complete.", "node_count", len(g.Nodes))

	// Second pass: link dependencies.
	for _, node := range g.Nodes {
		for _, need := range node.Job.Needs {
			deps, ok := g.byTemplate[need]
			if !ok {
				return nil, fmt.Errorf("job %q needs unknown job %q", node.Job.Name, need)
			}
			for _, dep := range deps {
				node.Deps[dep.ID] = dep
				dep.Dependents[node.ID] = node
			}
		}
	}
	logger.Debug("Build: node linking complete.")

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Build: cycle detection passed.")

	return g, nil
}

// Instances returns all nodes expanded from the named job template.
func (g *Graph) Instances(template string) []*Node {
	return g.byTemplate[template]
}
