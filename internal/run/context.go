// Package run holds the per-run values shared across the engine: the run
// context visible to condition expressions, the job result states, and the
// construction of the HCL evaluation scope.
//
// A Context is an explicit value passed into every evaluation. There is no
// process-wide "current run".
package run

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Context carries the event metadata of a single triggered run.
type Context struct {
	// ID uniquely identifies the run.
	ID string

	// Trigger is the kind of event that started the run ("push",
	// "pull_request", "schedule", ...).
	Trigger string

	// Ref is the branch or tag the run was triggered for.
	Ref string

	// Actor identifies who or what triggered the run.
	Actor string

	// Attrs holds any additional event attributes exposed to expressions.
	Attrs map[string]cty.Value
}

// NewContext creates a run context with a fresh unique ID.
func NewContext(trigger, ref, actor string) *Context {
	return &Context{
		ID:      uuid.NewString(),
		Trigger: trigger,
		Ref:     ref,
		Actor:   actor,
	}
}

// EventValue returns the run's event metadata as a cty object, exposed to
// expressions as the `event` variable.
func (c *Context) EventValue() cty.Value {
	vals := map[string]cty.Value{
		"run_id":  cty.StringVal(c.ID),
		"trigger": cty.StringVal(c.Trigger),
		"ref":     cty.StringVal(c.Ref),
		"actor":   cty.StringVal(c.Actor),
	}
	for name, v := range c.Attrs {
		vals[name] = v
	}
	return cty.ObjectVal(vals)
}

// EvalContext builds the HCL evaluation scope for a job instance. The scope
// exposes `event` (run metadata), `matrix` (the instance's combination, empty
// for non-matrix jobs) and `needs` (one object per dependency template, with
// its result name).
func EvalContext(rc *Context, combination map[string]cty.Value, needs map[string]Result) *hcl.EvalContext {
	matrixVals := make(map[string]cty.Value, len(combination))
	for name, v := range combination {
		matrixVals[name] = v
	}

	needVals := make(map[string]cty.Value, len(needs))
	for name, res := range needs {
		needVals[name] = cty.ObjectVal(map[string]cty.Value{
			"result": cty.StringVal(res.String()),
		})
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"event":  rc.EventValue(),
			"matrix": cty.ObjectVal(matrixVals),
			"needs":  cty.ObjectVal(needVals),
		},
	}
}

// EvaluateBool evaluates an expression that must yield a boolean, converting
// where cty allows it.
func EvaluateBool(expr hcl.Expression, ectx *hcl.EvalContext) (bool, error) {
	v, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return false, fmt.Errorf("evaluating condition: %w", diags)
	}
	v, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition is not a boolean: %w", err)
	}
	if v.IsNull() {
		return false, fmt.Errorf("condition evaluated to null")
	}
	return v.True(), nil
}

// EvaluateString evaluates an expression that must yield a string, such as a
// concurrency group key template.
func EvaluateString(expr hcl.Expression, ectx *hcl.EvalContext) (string, error) {
	v, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluating expression: %w", diags)
	}
	v, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("expression is not a string: %w", err)
	}
	if v.IsNull() {
		return "", fmt.Errorf("expression evaluated to null")
	}
	return v.AsString(), nil
}
