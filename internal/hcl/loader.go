// Package hcl implements the HCL pipeline definition loader. It parses a
// definition file into the schema structs, translates them into the
// format-agnostic config model, and validates the result before any job can
// be scheduled.
package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing HCL pipeline definition.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, &config.DefinitionError{Detail: fmt.Sprintf("failed to parse %s: %s", path, diags.Error())}
	}

	var raw schema.File
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, &config.DefinitionError{Detail: fmt.Sprintf("failed to decode %s: %s", path, diags.Error())}
	}
	if raw.Pipeline == nil {
		return nil, &config.DefinitionError{Detail: fmt.Sprintf("%s declares no pipeline block", path)}
	}

	p, err := translate(&raw)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Pipeline definition loaded.", "pipeline", p.Name, "jobs", len(p.Jobs))
	return p, nil
}

// translate converts the HCL schema structs into the agnostic model.
func translate(raw *schema.File) (*config.Pipeline, error) {
	p := &config.Pipeline{
		Name:     raw.Pipeline.Name,
		Required: raw.Pipeline.Required,
	}
	if raw.Pipeline.On != nil {
		p.Trigger = &config.Trigger{
			Kinds:    raw.Pipeline.On.Kinds,
			Branches: raw.Pipeline.On.Branches,
		}
	}
	if raw.Pipeline.Concurrency != nil {
		p.Concurrency = &config.Concurrency{
			Key:              raw.Pipeline.Concurrency.Key,
			CancelInProgress: raw.Pipeline.Concurrency.CancelInProgress,
		}
	}

	for _, jb := range raw.Jobs {
		job, err := translateJob(p.Name, jb)
		if err != nil {
			return nil, err
		}
		p.Jobs = append(p.Jobs, job)
	}
	return p, nil
}

func translateJob(pipeline string, jb *schema.JobBlock) (*config.Job, error) {
	job := &config.Job{
		Name:              jb.Name,
		Needs:             jb.Needs,
		AllowSkippedNeeds: jb.AllowSkippedNeeds,
		AllowSkip:         jb.AllowSkip,
		Inputs:            jb.Inputs,
		Outputs:           jb.Outputs,
	}

	// gohcl hands back a non-nil static expression even for absent optional
	// attributes; only keep conditions the user actually wrote.
	if jb.If != nil && len(jb.If.Variables()) > 0 {
		job.Condition = jb.If
	} else if jb.If != nil {
		if v, diags := jb.If.Value(nil); !diags.HasErrors() && !v.IsNull() {
			job.Condition = jb.If
		}
	}

	if jb.Timeout != "" {
		d, err := time.ParseDuration(jb.Timeout)
		if err != nil {
			return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q has invalid timeout %q: %v", jb.Name, jb.Timeout, err)}
		}
		job.Timeout = d
	}

	for _, sb := range jb.Steps {
		job.Steps = append(job.Steps, &config.Step{Run: sb.Run, Env: sb.Env})
	}

	if jb.Matrix != nil {
		m, err := translateMatrix(pipeline, jb.Name, jb.Matrix)
		if err != nil {
			return nil, err
		}
		job.Matrix = m
	}
	return job, nil
}

func translateMatrix(pipeline, job string, mb *schema.MatrixBlock) (*config.Matrix, error) {
	m := &config.Matrix{FailFast: mb.FailFast}

	for _, ab := range mb.Axes {
		vals, diags := ab.Values.Value(nil)
		if diags.HasErrors() {
			return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q matrix axis %q: %s", job, ab.Name, diags.Error())}
		}
		if !vals.CanIterateElements() {
			return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q matrix axis %q must be a list of values", job, ab.Name)}
		}
		axis := &config.Axis{Name: ab.Name}
		for it := vals.ElementIterator(); it.Next(); {
			_, v := it.Element()
			axis.Values = append(axis.Values, v)
		}
		m.Axes = append(m.Axes, axis)
	}

	for _, eb := range mb.Excludes {
		attrs, diags := eb.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q matrix exclude: %s", job, diags.Error())}
		}
		excl := make(map[string]cty.Value, len(attrs))
		for name, attr := range attrs {
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q matrix exclude %q: %s", job, name, diags.Error())}
			}
			excl[name] = v
		}
		m.Exclude = append(m.Exclude, excl)
	}
	return m, nil
}

var _ config.Loader = (*Loader)(nil)
