// Package matrix expands a job template bound to a matrix into concrete job
// instances, one per combination of axis values. Expansion precomputes the
// full cartesian product and then filters excluded combinations, so no
// combination is dropped silently.
package matrix

import (
	"fmt"
	"strings"

	"github.com/vk/gridci/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// Instance is one concrete job produced by expansion. For jobs without a
// matrix there is exactly one instance whose ID is the template name.
type Instance struct {
	// ID is the template name, suffixed deterministically by the combination
	// values for matrix jobs (e.g. `test[go=1.22,os=linux]`). Identical
	// inputs always yield identical IDs, so re-dispatch is idempotent.
	ID string

	// Job is the template this instance was expanded from.
	Job *config.Job

	// Values is the instance's axis combination, exposed to expressions as
	// the `matrix` variable. Nil for non-matrix jobs.
	Values map[string]cty.Value

	// ExpansionKey groups all instances of one expansion; empty for
	// non-matrix jobs.
	ExpansionKey string

	// FailFast propagates the matrix fail-fast flag to the scheduler.
	FailFast bool
}

// ExpansionError reports a matrix that cannot be expanded. It is fatal for
// the affected job template only.
type ExpansionError struct {
	Job    string
	Detail string
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("cannot expand matrix for job %q: %s", e.Job, e.Detail)
}

// Expand produces the concrete instances of a job template. The result order
// follows the declared axis order and is stable across calls.
func Expand(job *config.Job) ([]*Instance, error) {
	m := job.Matrix
	if m == nil {
		return []*Instance{{ID: job.Name, Job: job}}, nil
	}
	if len(m.Axes) == 0 {
		return nil, &ExpansionError{Job: job.Name, Detail: "matrix has no axes"}
	}

	axisNames := make(map[string]bool, len(m.Axes))
	for _, a := range m.Axes {
		if len(a.Values) == 0 {
			return nil, &ExpansionError{Job: job.Name, Detail: fmt.Sprintf("axis %q has no values", a.Name)}
		}
		axisNames[a.Name] = true
	}
	for _, excl := range m.Exclude {
		for name := range excl {
			if !axisNames[name] {
				return nil, &ExpansionError{Job: job.Name, Detail: fmt.Sprintf("exclude references undefined axis %q", name)}
			}
		}
	}

	combos := product(m.Axes)

	instances := make([]*Instance, 0, len(combos))
	for _, combo := range combos {
		if excluded(combo, m.Exclude) {
			continue
		}
		instances = append(instances, &Instance{
			ID:           instanceID(job.Name, m.Axes, combo),
			Job:          job,
			Values:       combo,
			ExpansionKey: job.Name,
			FailFast:     m.FailFast,
		})
	}
	return instances, nil
}

// product computes the full cartesian product of the axes, in declared order.
func product(axes []*config.Axis) []map[string]cty.Value {
	combos := []map[string]cty.Value{{}}
	for _, axis := range axes {
		next := make([]map[string]cty.Value, 0, len(combos)*len(axis.Values))
		for _, combo := range combos {
			for _, v := range axis.Values {
				extended := make(map[string]cty.Value, len(combo)+1)
				for k, cv := range combo {
					extended[k] = cv
				}
				extended[axis.Name] = v
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}

// excluded reports whether a combination matches any exclude entry. An entry
// matches when every axis value it names equals the combination's value.
func excluded(combo map[string]cty.Value, excludes []map[string]cty.Value) bool {
	for _, excl := range excludes {
		match := len(excl) > 0
		for name, want := range excl {
			got, ok := combo[name]
			if !ok || !got.RawEquals(want) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// instanceID renders the deterministic instance identifier.
func instanceID(name string, axes []*config.Axis, combo map[string]cty.Value) string {
	parts := make([]string, 0, len(axes))
	for _, axis := range axes {
		parts = append(parts, fmt.Sprintf("%s=%s", axis.Name, ValueString(combo[axis.Name])))
	}
	return fmt.Sprintf("%s[%s]", name, strings.Join(parts, ","))
}

// ValueString renders a primitive cty value the way it appears in instance
// IDs and environment variables.
func ValueString(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return ""
	}
	switch v.Type() {
	case cty.String:
		return v.AsString()
	case cty.Number:
		return v.AsBigFloat().Text('f', -1)
	case cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	}
	return v.GoString()
}
