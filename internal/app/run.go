package app

import (
	"context"
	"fmt"
	"path"

	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/run"
)

// Run executes the main application logic: trigger one run from the
// configured event, wait for it, and report the aggregated result. When an
// API port is configured, the status server runs alongside.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.APIPort > 0 {
		a.startAPIServer(ctx, a.cfg.APIPort)
	}

	rc := run.NewContext(a.cfg.Trigger, a.cfg.Ref, a.cfg.Actor)

	if !triggerMatches(a.pipeline.Trigger, rc) {
		a.logger.Info("Trigger does not match the pipeline's predicates, nothing to run.",
			"trigger", rc.Trigger, "ref", rc.Ref)
		fmt.Fprintf(a.outW, "pipeline %s: not triggered\n", a.pipeline.Name)
		return nil
	}

	a.logger.Info("🚦 Triggering run.", "pipeline", a.pipeline.Name, "run_id", rc.ID)
	rec, err := a.startRun(ctx, rc)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	select {
	case <-rec.done:
	case <-ctx.Done():
		rec.run.Cancel()
		<-rec.done
	}

	result := rec.result
	fmt.Fprintln(a.outW, result.Summary())

	if !result.Succeeded {
		return fmt.Errorf("run %s failed: %s", result.RunID, result.Summary())
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

// triggerMatches checks the run's event against the pipeline's trigger
// predicates. Empty predicate lists match everything; branch patterns accept
// path-style globs ("release/*").
func triggerMatches(t *config.Trigger, rc *run.Context) bool {
	if t == nil {
		return true
	}
	if len(t.Kinds) > 0 && !contains(t.Kinds, rc.Trigger) {
		return false
	}
	if len(t.Branches) > 0 {
		for _, pattern := range t.Branches {
			if ok, _ := path.Match(pattern, rc.Ref); ok {
				return true
			}
		}
		return false
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
