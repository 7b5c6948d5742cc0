// Package aggregate computes the overall result of a pipeline run from the
// individual job results. A designated set of required jobs acts as the
// single gating signal for downstream consumers: every one of them must
// succeed (or be skipped under an explicitly allowed condition) for the
// pipeline to report success, no matter how many non-required jobs ran.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/graph"
	"github.com/vk/gridci/internal/run"
)

// Gate is the aggregated status of one required job template.
type Gate struct {
	Job    string     `json:"job"`
	Result run.Result `json:"result"`
	OK     bool       `json:"ok"`
	Reason string     `json:"reason,omitempty"`
}

// PipelineResult is the final verdict of a run.
type PipelineResult struct {
	RunID     string `json:"run_id"`
	Pipeline  string `json:"pipeline"`
	Succeeded bool   `json:"succeeded"`
	Gates     []Gate `json:"gates"`

	// Results carries the full per-instance result table for reporting.
	Results map[string]run.Result `json:"results"`
}

// Aggregate computes the pipeline result from the run's result table. The
// reasons map explains failed, skipped and cancelled instances.
func Aggregate(p *config.Pipeline, g *graph.Graph, rc *run.Context, results map[string]run.Result, reasons map[string]string) *PipelineResult {
	pr := &PipelineResult{
		RunID:     rc.ID,
		Pipeline:  p.Name,
		Succeeded: true,
		Results:   results,
	}

	required := append([]string(nil), p.Required...)
	sort.Strings(required)

	for _, name := range required {
		res := g.TemplateResult(name, results)
		gate := Gate{Job: name, Result: res}

		switch res {
		case run.Succeeded:
			gate.OK = true
		case run.Skipped:
			if job := p.Job(name); job != nil && job.AllowSkip {
				gate.OK = true
				gate.Reason = "skipped (allowed)"
			} else {
				gate.Reason = instanceReasons(g, name, reasons)
			}
		default:
			gate.Reason = instanceReasons(g, name, reasons)
		}

		if !gate.OK {
			pr.Succeeded = false
		}
		pr.Gates = append(pr.Gates, gate)
	}

	return pr
}

// StatusOf returns the aggregated result of a required job, the single
// pass/fail signal consumed by branch-protection style gates. Jobs outside
// the required set report pending.
func (pr *PipelineResult) StatusOf(job string) run.Result {
	for _, gate := range pr.Gates {
		if gate.Job == job {
			return gate.Result
		}
	}
	return run.Pending
}

// Summary renders a one-line human-readable verdict.
func (pr *PipelineResult) Summary() string {
	if pr.Succeeded {
		return fmt.Sprintf("pipeline %s: success (%d required gates)", pr.Pipeline, len(pr.Gates))
	}
	var failed []string
	for _, gate := range pr.Gates {
		if !gate.OK {
			failed = append(failed, fmt.Sprintf("%s=%s", gate.Job, gate.Result))
		}
	}
	return fmt.Sprintf("pipeline %s: failure (%s)", pr.Pipeline, strings.Join(failed, ", "))
}

// instanceReasons joins the recorded explanations of a template's instances.
func instanceReasons(g *graph.Graph, template string, reasons map[string]string) string {
	var parts []string
	for _, node := range g.Instances(template) {
		if reason, ok := reasons[node.ID]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", node.ID, reason))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
