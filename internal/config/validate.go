package config

import "fmt"

// DefinitionError reports a malformed or inconsistent pipeline definition.
// It is fatal: no job of the affected pipeline is ever scheduled.
type DefinitionError struct {
	Pipeline string
	Detail   string
}

func (e *DefinitionError) Error() string {
	if e.Pipeline == "" {
		return "invalid pipeline definition: " + e.Detail
	}
	return fmt.Sprintf("invalid definition for pipeline %q: %s", e.Pipeline, e.Detail)
}

// Validate checks the structural integrity of a loaded pipeline: unique job
// names, resolvable needs and required references, well-formed matrices, and
// artifact inputs that some job actually produces. It returns a
// *DefinitionError describing the first problem found.
func (p *Pipeline) Validate() error {
	fail := func(format string, args ...any) error {
		return &DefinitionError{Pipeline: p.Name, Detail: fmt.Sprintf(format, args...)}
	}

	if p.Name == "" {
		return fail("pipeline name is empty")
	}
	if len(p.Jobs) == 0 {
		return fail("pipeline declares no jobs")
	}

	seen := make(map[string]bool, len(p.Jobs))
	outputs := make(map[string]string) // artifact name -> producing job
	for _, j := range p.Jobs {
		if j.Name == "" {
			return fail("job with empty name")
		}
		if seen[j.Name] {
			return fail("duplicate job %q", j.Name)
		}
		seen[j.Name] = true

		for _, out := range j.Outputs {
			if owner, ok := outputs[out]; ok {
				return fail("artifact %q declared by both %q and %q", out, owner, j.Name)
			}
			outputs[out] = j.Name
		}
	}

	for _, j := range p.Jobs {
		for _, need := range j.Needs {
			if need == j.Name {
				return fail("job %q needs itself", j.Name)
			}
			if !seen[need] {
				return fail("job %q needs unknown job %q", j.Name, need)
			}
		}
		for _, in := range j.Inputs {
			if _, ok := outputs[in]; !ok {
				return fail("job %q consumes artifact %q that no job produces", j.Name, in)
			}
		}
		if j.Timeout < 0 {
			return fail("job %q has a negative timeout", j.Name)
		}
		if err := validateMatrix(j, fail); err != nil {
			return err
		}
	}

	for _, name := range p.Required {
		if !seen[name] {
			return fail("required job %q is not defined", name)
		}
	}

	return nil
}

func validateMatrix(j *Job, fail func(string, ...any) error) error {
	m := j.Matrix
	if m == nil {
		return nil
	}
	if len(m.Axes) == 0 {
		return fail("job %q declares an empty matrix", j.Name)
	}
	axes := make(map[string]bool, len(m.Axes))
	for _, a := range m.Axes {
		if a.Name == "" {
			return fail("job %q has a matrix axis with no name", j.Name)
		}
		if axes[a.Name] {
			return fail("job %q repeats matrix axis %q", j.Name, a.Name)
		}
		if len(a.Values) == 0 {
			return fail("job %q matrix axis %q has no values", j.Name, a.Name)
		}
		axes[a.Name] = true
	}
	for _, excl := range m.Exclude {
		for name := range excl {
			if !axes[name] {
				return fail("job %q matrix exclude references undefined axis %q", j.Name, name)
			}
		}
	}
	return nil
}
