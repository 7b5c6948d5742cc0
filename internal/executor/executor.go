// Package executor defines the seam between the scheduling core and the
// external toolchains that actually run job steps. The core only requires
// that an Executor eventually reports exactly one terminal result per job,
// or is forcibly timed out through its context.
package executor

import (
	"context"

	"github.com/vk/gridci/internal/artifact"
	"github.com/vk/gridci/internal/graph"
)

// Executor runs the steps of one job instance. Implementations must honor
// context cancellation: a cancelled job is signaled to stop and its eventual
// report is ignored by the scheduler.
type Executor interface {
	Execute(ctx context.Context, node *graph.Node, art *artifact.Accessor) error
}

// Func adapts a plain function to the Executor interface, mainly for tests.
type Func func(ctx context.Context, node *graph.Node, art *artifact.Accessor) error

// Execute implements Executor.
func (f Func) Execute(ctx context.Context, node *graph.Node, art *artifact.Accessor) error {
	return f(ctx, node, art)
}
