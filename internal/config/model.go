package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Pipeline is the unified, format-agnostic representation of a single
// pipeline definition. It is loaded once and immutable thereafter.
type Pipeline struct {
	Name        string
	Trigger     *Trigger
	Concurrency *Concurrency
	Required    []string
	Jobs        []*Job
}

// Trigger declares which events may start a run of this pipeline. Empty
// slices match everything.
type Trigger struct {
	Kinds    []string
	Branches []string
}

// Concurrency declares the run grouping policy. Key is a template evaluated
// against the run's event scope; when CancelInProgress is set, admitting a
// new run cancels any in-flight run sharing the same key.
type Concurrency struct {
	Key              hcl.Expression
	CancelInProgress bool
}

// Job is the format-agnostic representation of a `job` block. A job with no
// steps is a gate: it succeeds as soon as all of its dependencies have.
type Job struct {
	Name string

	// Needs lists the names of jobs that must reach a terminal state before
	// this one may start.
	Needs []string

	// Condition is evaluated against the run scope before dispatch. A nil
	// expression means the job always runs.
	Condition hcl.Expression

	// AllowSkippedNeeds lets the job run even when a dependency was skipped
	// (a failed or cancelled dependency still skips it).
	AllowSkippedNeeds bool

	// AllowSkip marks a skip of this job as acceptable to the aggregator
	// when the job is in the required set.
	AllowSkip bool

	Steps   []*Step
	Inputs  []string
	Outputs []string
	Timeout time.Duration
	Matrix  *Matrix
}

// Step is a single opaque external command within a job.
type Step struct {
	Run string
	Env map[string]string
}

// Matrix parameterizes a job template into one concrete job per combination
// of axis values.
type Matrix struct {
	Axes     []*Axis
	Exclude  []map[string]cty.Value
	FailFast bool
}

// Axis is one named dimension of a matrix, with its ordered values.
type Axis struct {
	Name   string
	Values []cty.Value
}

// Job returns the job with the given name, or nil.
func (p *Pipeline) Job(name string) *Job {
	for _, j := range p.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}
