package artifact

import "fmt"

// Accessor is a job-scoped view of the store. Puts are limited to the job's
// declared outputs and Gets to its declared inputs, keeping the handoff
// append-only and explicit.
type Accessor struct {
	store   *Store
	jobID   string
	inputs  map[string]bool
	outputs map[string]bool
}

// ForJob returns an accessor restricted to the given job's declarations.
func (s *Store) ForJob(jobID string, inputs, outputs []string) *Accessor {
	a := &Accessor{
		store:   s,
		jobID:   jobID,
		inputs:  make(map[string]bool, len(inputs)),
		outputs: make(map[string]bool, len(outputs)),
	}
	for _, name := range inputs {
		a.inputs[name] = true
	}
	for _, name := range outputs {
		a.outputs[name] = true
	}
	return a
}

// Inputs returns the declared input names, in no particular order.
func (a *Accessor) Inputs() []string {
	names := make([]string, 0, len(a.inputs))
	for name := range a.inputs {
		names = append(names, name)
	}
	return names
}

// Outputs returns the declared output names, in no particular order.
func (a *Accessor) Outputs() []string {
	names := make([]string, 0, len(a.outputs))
	for name := range a.outputs {
		names = append(names, name)
	}
	return names
}

// Put stores a declared output of the job.
func (a *Accessor) Put(name string, payload []byte) error {
	if !a.outputs[name] {
		return fmt.Errorf("job %q does not declare output %q", a.jobID, name)
	}
	return a.store.Put(a.jobID, name, payload)
}

// Get reads a declared input of the job.
func (a *Accessor) Get(name string) ([]byte, error) {
	if !a.inputs[name] {
		return nil, fmt.Errorf("job %q does not declare input %q", a.jobID, name)
	}
	return a.store.Get(name)
}
