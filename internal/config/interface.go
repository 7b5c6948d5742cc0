package config

import "context"

// Loader is the interface for a format-specific pipeline definition loader.
type Loader interface {
	// Load reads a pipeline definition from the given path and translates it
	// into the format-agnostic model. The returned pipeline has already
	// passed Validate.
	Load(ctx context.Context, path string) (*Pipeline, error)
}
