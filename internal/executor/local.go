package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/gridci/internal/artifact"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/graph"
	"github.com/vk/gridci/internal/matrix"
)

// Local runs job steps as shell commands on the host. Each job gets a
// scratch directory: declared inputs are materialized there as files before
// the first step, and declared outputs are collected from there after the
// last step succeeds.
type Local struct {
	// Shell is the interpreter used for step commands, /bin/sh by default.
	Shell string

	// WorkDir is the parent of per-job scratch directories. Empty means the
	// system temp directory.
	WorkDir string
}

// NewLocal returns a Local executor with default settings.
func NewLocal() *Local {
	return &Local{Shell: "/bin/sh"}
}

// Execute implements Executor.
func (l *Local) Execute(ctx context.Context, node *graph.Node, art *artifact.Accessor) error {
	logger := ctxlog.FromContext(ctx).With("job", node.ID)

	dir, err := os.MkdirTemp(l.WorkDir, "gridci-job-")
	if err != nil {
		return fmt.Errorf("creating job workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	for _, name := range art.Inputs() {
		payload, err := art.Get(name)
		if err != nil {
			return fmt.Errorf("fetching input artifact: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), payload, 0o600); err != nil {
			return fmt.Errorf("materializing input %q: %w", name, err)
		}
	}

	env := l.environment(node, dir)
	for i, step := range node.Job.Steps {
		logger.Debug("Running step.", "index", i, "command", step.Run)

		cmd := exec.CommandContext(ctx, l.shell(), "-c", step.Run)
		cmd.Dir = dir
		cmd.Env = append(env, stepEnv(step.Env)...)

		var output bytes.Buffer
		cmd.Stdout = &output
		cmd.Stderr = &output

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug("Step failed.", "index", i, "output", output.String())
			return fmt.Errorf("step %d failed: %w: %s", i, err, strings.TrimSpace(output.String()))
		}
		logger.Debug("Step finished.", "index", i, "output", output.String())
	}

	for _, name := range art.Outputs() {
		payload, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("job declared output %q but produced no such file: %w", name, err)
		}
		if err := art.Put(name, payload); err != nil {
			return fmt.Errorf("storing output artifact: %w", err)
		}
	}

	return nil
}

func (l *Local) shell() string {
	if l.Shell != "" {
		return l.Shell
	}
	return "/bin/sh"
}

// environment builds the base environment of every step: the host env, the
// artifact directory, and the matrix combination as MATRIX_* variables.
func (l *Local) environment(node *graph.Node, dir string) []string {
	env := append(os.Environ(), "ARTIFACTS_DIR="+dir, "GRIDCI_JOB="+node.ID)
	for name, v := range node.Values {
		env = append(env, fmt.Sprintf("MATRIX_%s=%s", strings.ToUpper(name), matrix.ValueString(v)))
	}
	return env
}

func stepEnv(extra map[string]string) []string {
	env := make([]string, 0, len(extra))
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
