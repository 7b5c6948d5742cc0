package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vk/gridci/internal/artifact"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/executor"
	"github.com/vk/gridci/internal/graph"
	"github.com/vk/gridci/internal/run"
)

type eventKind int

const (
	evStarted eventKind = iota
	evFinished
	evCancel
)

// event is the only way state reaches the run loop. The loop is the single
// writer of the result table.
type event struct {
	kind eventKind
	node *graph.Node
	err  error
	ack  chan struct{}
}

// Run is one admitted pipeline run.
type Run struct {
	Pipeline string

	rc    *run.Context
	graph *graph.Graph
	store *artifact.Store
	exec  executor.Executor

	events chan event
	slots  chan struct{}
	done   chan struct{}
	onDone func()

	// mu guards results and reasons so outside readers can snapshot while
	// the loop runs. Only the loop goroutine ever writes.
	mu      sync.Mutex
	results map[string]run.Result
	reasons map[string]string

	// loop-owned bookkeeping, never touched outside the loop goroutine.
	dispatched map[string]bool
	cancels    map[string]context.CancelFunc
}

func newRun(g *graph.Graph, rc *run.Context, pipeline string, exec executor.Executor, workers int) *Run {
	r := &Run{
		Pipeline:   pipeline,
		rc:         rc,
		graph:      g,
		store:      artifact.NewStore(),
		exec:       exec,
		events:     make(chan event, 2*len(g.Nodes)+4),
		slots:      make(chan struct{}, workers),
		done:       make(chan struct{}),
		results:    make(map[string]run.Result, len(g.Nodes)),
		reasons:    make(map[string]string),
		dispatched: make(map[string]bool),
		cancels:    make(map[string]context.CancelFunc),
	}
	for id := range g.Nodes {
		r.results[id] = run.Pending
	}
	return r
}

// RunContext returns the event metadata the run was triggered with.
func (r *Run) RunContext() *run.Context { return r.rc }

// Graph returns the run's dependency graph.
func (r *Run) Graph() *graph.Graph { return r.graph }

// Store returns the run-scoped artifact store.
func (r *Run) Store() *artifact.Store { return r.store }

// Done is closed once every job reached a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run completes or the context is cancelled.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results snapshots the result table.
func (r *Run) Results() map[string]run.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]run.Result, len(r.results))
	for id, res := range r.results {
		out[id] = res
	}
	return out
}

// Reasons snapshots the per-job explanations for failures, skips and
// cancellations.
func (r *Run) Reasons() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.reasons))
	for id, reason := range r.reasons {
		out[id] = reason
	}
	return out
}

// Cancel transitions every non-terminal job to cancelled and returns once
// the sweep has been applied.
func (r *Run) Cancel() {
	ack := make(chan struct{})
	select {
	case r.events <- event{kind: evCancel, ack: ack}:
		select {
		case <-ack:
		case <-r.done:
		}
	case <-r.done:
	}
}

// loop is the run's single-writer state machine.
func (r *Run) loop(ctx context.Context) {
	logger := ctxlog.FromContext(ctx).With("run_id", r.rc.ID)
	defer close(r.done)
	defer r.store.Discard()
	defer func() {
		if r.onDone != nil {
			r.onDone()
		}
	}()

	r.dispatch(ctx, logger)

	ctxDone := ctx.Done()
	for !r.allTerminal() {
		select {
		case ev := <-r.events:
			r.handle(ctx, logger, ev)
		case <-ctxDone:
			ctxDone = nil
			r.sweep(logger, "run context cancelled")
		}
	}
	logger.Info("🏁 Run finished.")
}

func (r *Run) handle(ctx context.Context, logger *slog.Logger, ev event) {
	switch ev.kind {
	case evStarted:
		if r.result(ev.node.ID) == run.Pending {
			r.setResult(ev.node.ID, run.Running, "")
		}

	case evFinished:
		r.finish(logger, ev)
		r.dispatch(ctx, logger)

	case evCancel:
		r.sweep(logger, "run cancelled")
		close(ev.ack)
	}
}

func (r *Run) finish(logger *slog.Logger, ev event) {
	id := ev.node.ID

	// Cancellation takes priority over a concurrently reported completion:
	// a job already swept to cancelled never contributes a result.
	if r.result(id) == run.Cancelled {
		logger.Debug("Dropping completion report for cancelled job.", "job", id)
		return
	}

	if cancel := r.cancels[id]; cancel != nil {
		cancel()
		delete(r.cancels, id)
	}

	switch {
	case ev.err == nil:
		logger.Info("✅ Job succeeded.", "job", id)
		r.setResult(id, run.Succeeded, "")
		r.store.MarkSucceeded(id)

	case errors.Is(ev.err, context.Canceled):
		logger.Warn("Job cancelled.", "job", id)
		r.setResult(id, run.Cancelled, "cancelled")

	default:
		logger.Error("Job failed.", "job", id, "error", ev.err)
		r.setResult(id, run.Failed, ev.err.Error())
		if ev.node.FailFast && ev.node.ExpansionKey != "" {
			r.cancelExpansion(logger, ev.node)
		}
	}
}

// dispatch drains the ready set to a fixpoint: applying skips makes more
// dependencies terminal, which may ready or skip further nodes.
func (r *Run) dispatch(ctx context.Context, logger *slog.Logger) {
	for {
		ready, skips := r.graph.Ready(r.rc, r.Results())
		progressed := false

		for _, sk := range skips {
			logger.Warn("Skipping job.", "job", sk.Node.ID, "result", sk.Result.String(), "reason", sk.Reason)
			r.setResult(sk.Node.ID, sk.Result, sk.Reason)
			progressed = true
		}

		for _, node := range ready {
			if r.dispatched[node.ID] {
				continue
			}
			r.dispatched[node.ID] = true
			progressed = true

			jobCtx, cancel := context.WithCancel(ctx)
			if node.Job.Timeout > 0 {
				jobCtx, cancel = context.WithTimeout(ctx, node.Job.Timeout)
			}
			r.cancels[node.ID] = cancel

			logger.Debug("Dispatching job.", "job", node.ID)
			go r.runJob(jobCtx, node)
		}

		if !progressed {
			return
		}
	}
}

// runJob executes one job instance on a worker slot and reports exactly one
// terminal event back to the loop.
func (r *Run) runJob(ctx context.Context, node *graph.Node) {
	// Waiting for a free slot is the only blocking point before execution.
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		r.events <- event{kind: evFinished, node: node, err: ctx.Err()}
		return
	}
	defer func() { <-r.slots }()

	r.events <- event{kind: evStarted, node: node}

	art := r.store.ForJob(node.ID, node.Job.Inputs, node.Job.Outputs)
	err := r.exec.Execute(ctx, node, art)
	if node.Job.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &TimeoutError{JobID: node.ID, Limit: node.Job.Timeout}
	}

	r.events <- event{kind: evFinished, node: node, err: err}
}

// cancelExpansion applies fail-fast: every not-yet-completed sibling of the
// failed instance is cancelled.
func (r *Run) cancelExpansion(logger *slog.Logger, failed *graph.Node) {
	for id, node := range r.graph.Nodes {
		if id == failed.ID || node.ExpansionKey != failed.ExpansionKey {
			continue
		}
		if r.result(id).Terminal() {
			continue
		}
		logger.Warn("Cancelling matrix sibling (fail-fast).", "job", id, "failed_sibling", failed.ID)
		r.setResult(id, run.Cancelled, fmt.Sprintf("fail-fast: sibling %q failed", failed.ID))
		if cancel := r.cancels[id]; cancel != nil {
			cancel()
			delete(r.cancels, id)
		}
	}
}

// sweep cancels every non-terminal job.
func (r *Run) sweep(logger *slog.Logger, reason string) {
	for id := range r.graph.Nodes {
		if r.result(id).Terminal() {
			continue
		}
		logger.Warn("Cancelling job.", "job", id, "reason", reason)
		r.setResult(id, run.Cancelled, reason)
		if cancel := r.cancels[id]; cancel != nil {
			cancel()
			delete(r.cancels, id)
		}
	}
}

func (r *Run) result(id string) run.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[id]
}

func (r *Run) setResult(id string, res run.Result, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[id] = res
	if reason != "" {
		r.reasons[id] = reason
	}
}

func (r *Run) allTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if !res.Terminal() {
			return false
		}
	}
	return true
}
