// Package app wires the engine together: configuration, logging, the
// pipeline loader, the scheduler, and the optional HTTP API.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/vk/gridci/internal/aggregate"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/executor"
	"github.com/vk/gridci/internal/notify"
	"github.com/vk/gridci/internal/run"
	"github.com/vk/gridci/internal/scheduler"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string

	Trigger string
	Ref     string
	Actor   string

	Workers    int
	APIPort    int
	WebhookURL string

	LogFormat string
	LogLevel  string
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	pipeline *config.Pipeline
	sched    *scheduler.Scheduler
	notifier notify.Notifier

	runsMu sync.Mutex
	runs   map[string]*runRecord
}

// runRecord tracks one triggered run until its result is aggregated.
type runRecord struct {
	run    *scheduler.Run
	result *aggregate.PipelineResult
	done   chan struct{}
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. A failure to load
// the pipeline definition is a fatal startup error and panics; the caller is
// expected to recover and present it cleanly.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, exec executor.Executor) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	pipeline, err := loader.Load(ctx, cfg.PipelinePath)
	if err != nil {
		panic(fmt.Errorf("failed to load pipeline definition: %w", err))
	}
	logger.Debug("Pipeline definition loaded.", "pipeline", pipeline.Name)

	if exec == nil {
		exec = executor.NewLocal()
	}

	var notifier notify.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL)
	}

	return &App{
		outW:     outW,
		logger:   logger,
		cfg:      cfg,
		pipeline: pipeline,
		sched: scheduler.New(scheduler.Options{
			Workers:  cfg.Workers,
			Executor: exec,
		}),
		notifier: notifier,
		runs:     make(map[string]*runRecord),
	}
}

// Pipeline returns the loaded pipeline definition. Primarily for testing.
func (a *App) Pipeline() *config.Pipeline {
	return a.pipeline
}

// startRun admits a run and spawns its finalizer.
func (a *App) startRun(ctx context.Context, rc *run.Context) (*runRecord, error) {
	r, err := a.sched.Start(ctx, a.pipeline, rc)
	if err != nil {
		return nil, err
	}

	rec := &runRecord{run: r, done: make(chan struct{})}
	a.runsMu.Lock()
	a.runs[rc.ID] = rec
	a.runsMu.Unlock()

	go a.finalize(ctx, rec)
	return rec, nil
}

// finalize waits for a run to complete, aggregates its result and delivers
// the notification. Notification failures never affect the result.
func (a *App) finalize(ctx context.Context, rec *runRecord) {
	defer close(rec.done)
	<-rec.run.Done()

	r := rec.run
	result := aggregate.Aggregate(a.pipeline, r.Graph(), r.RunContext(), r.Results(), r.Reasons())

	a.runsMu.Lock()
	rec.result = result
	a.runsMu.Unlock()

	if a.notifier != nil {
		if err := a.notifier.Notify(ctx, result); err != nil {
			a.logger.Error("Failed to deliver run notification.", "run_id", result.RunID, "error", err)
		}
	}
}

// record looks up a tracked run by ID.
func (a *App) record(id string) (*runRecord, bool) {
	a.runsMu.Lock()
	defer a.runsMu.Unlock()
	rec, ok := a.runs[id]
	return rec, ok
}
