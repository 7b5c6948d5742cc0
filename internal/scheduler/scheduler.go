package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/executor"
	"github.com/vk/gridci/internal/graph"
	"github.com/vk/gridci/internal/run"
)

// TimeoutError reports a job that exceeded its declared maximum duration.
// The job did not complete its declared work, so it counts as failed, not
// cancelled.
type TimeoutError struct {
	JobID string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %q exceeded its %s timeout", e.JobID, e.Limit)
}

// Options configures a Scheduler.
type Options struct {
	// Workers bounds how many jobs execute at once. Defaults to 4.
	Workers int

	// Executor runs the steps of each dispatched job.
	Executor executor.Executor
}

// Scheduler admits pipeline runs and enforces concurrency groups across
// them. It is safe for concurrent use.
type Scheduler struct {
	workers int
	exec    executor.Executor

	mu     sync.Mutex
	active map[string]*Run
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		workers: workers,
		exec:    opts.Executor,
		active:  make(map[string]*Run),
	}
}

// Start validates the pipeline's graph, applies concurrency-group admission,
// and begins executing the run. Pre-run errors (cycles, expansion failures,
// group key evaluation) are returned before any job is dispatched. The
// provided context cancels the whole run.
func (s *Scheduler) Start(ctx context.Context, p *config.Pipeline, rc *run.Context) (*Run, error) {
	logger := ctxlog.FromContext(ctx).With("pipeline", p.Name, "run_id", rc.ID)

	g, err := graph.Build(ctx, p)
	if err != nil {
		return nil, err
	}

	var groupKey string
	if p.Concurrency != nil {
		groupKey, err = run.EvaluateString(p.Concurrency.Key, run.EvalContext(rc, nil, nil))
		if err != nil {
			return nil, &config.DefinitionError{Pipeline: p.Name, Detail: fmt.Sprintf("concurrency key: %v", err)}
		}

		if p.Concurrency.CancelInProgress {
			s.mu.Lock()
			prior := s.active[groupKey]
			s.mu.Unlock()
			if prior != nil {
				logger.Info("Preempting in-flight run in concurrency group.", "group", groupKey, "prior_run_id", prior.rc.ID)
				prior.Cancel()
			}
		}
	}

	r := newRun(g, rc, p.Name, s.exec, s.workers)
	r.onDone = func() { s.release(groupKey, r) }

	if groupKey != "" {
		s.mu.Lock()
		s.active[groupKey] = r
		s.mu.Unlock()
	}

	logger.Info("🚀 Run admitted.", "jobs", len(g.Nodes), "group", groupKey)
	go r.loop(ctx)
	return r, nil
}

func (s *Scheduler) release(groupKey string, r *Run) {
	if groupKey == "" {
		return
	}
	s.mu.Lock()
	if s.active[groupKey] == r {
		delete(s.active, groupKey)
	}
	s.mu.Unlock()
}
