// Package schema declares the HCL surface of a pipeline definition file.
// These structs are decoded directly by gohcl and then translated into the
// format-agnostic config model.
package schema

import "github.com/hashicorp/hcl/v2"

// PipelineBlock is the single `pipeline` block of a definition file.
type PipelineBlock struct {
	Name        string            `hcl:"name,label"`
	On          *OnBlock          `hcl:"on,block"`
	Concurrency *ConcurrencyBlock `hcl:"concurrency,block"`
	Required    []string          `hcl:"required,optional"`
}

// OnBlock declares the trigger predicates. Empty lists match everything.
type OnBlock struct {
	Kinds    []string `hcl:"kinds,optional"`
	Branches []string `hcl:"branches,optional"`
}

// ConcurrencyBlock declares the run grouping policy. Key stays an expression
// so it can interpolate event metadata at admission time.
type ConcurrencyBlock struct {
	Key              hcl.Expression `hcl:"key"`
	CancelInProgress bool           `hcl:"cancel_in_progress,optional"`
}

// JobBlock is one `job` block.
type JobBlock struct {
	Name              string         `hcl:"name,label"`
	Needs             []string       `hcl:"needs,optional"`
	If                hcl.Expression `hcl:"if,optional"`
	AllowSkippedNeeds bool           `hcl:"allow_skipped_needs,optional"`
	AllowSkip         bool           `hcl:"allow_skip,optional"`
	Timeout           string         `hcl:"timeout,optional"`
	Inputs            []string       `hcl:"inputs,optional"`
	Outputs           []string       `hcl:"outputs,optional"`
	Matrix            *MatrixBlock   `hcl:"matrix,block"`
	Steps             []*StepBlock   `hcl:"step,block"`
}

// StepBlock is a single external command of a job.
type StepBlock struct {
	Run string            `hcl:"run"`
	Env map[string]string `hcl:"env,optional"`
}

// MatrixBlock parameterizes a job into one instance per axis combination.
type MatrixBlock struct {
	Axes     []*AxisBlock    `hcl:"axis,block"`
	Excludes []*ExcludeBlock `hcl:"exclude,block"`
	FailFast bool            `hcl:"fail_fast,optional"`
}

// AxisBlock is one named matrix dimension with its ordered values.
type AxisBlock struct {
	Name   string         `hcl:"name,label"`
	Values hcl.Expression `hcl:"values"`
}

// ExcludeBlock matches combinations by axis-name attributes.
type ExcludeBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// File is the top-level structure of a pipeline definition file.
type File struct {
	Pipeline *PipelineBlock `hcl:"pipeline,block"`
	Jobs     []*JobBlock    `hcl:"job,block"`
}
