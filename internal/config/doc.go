// Package config defines the format-agnostic pipeline model and the Loader
// interface implemented by format-specific parsers (HCL, YAML). Loaders
// translate raw documents into this model and validate it before anything
// is scheduled.
package config
