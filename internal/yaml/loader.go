// Package yaml implements the YAML pipeline definition loader. It accepts
// the same model as the HCL loader; condition and concurrency-key strings
// are parsed as HCL expressions so both formats share one evaluation path.
package yaml

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	goyaml "gopkg.in/yaml.v3"
)

// Loader is the YAML implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new YAML loader.
func NewLoader() *Loader {
	return &Loader{}
}

type fileDoc struct {
	Pipeline    string          `yaml:"pipeline"`
	On          *onDoc          `yaml:"on"`
	Concurrency *concurrencyDoc `yaml:"concurrency"`
	Required    []string        `yaml:"required"`
	Jobs        []*jobDoc       `yaml:"jobs"`
}

type onDoc struct {
	Kinds    []string `yaml:"kinds"`
	Branches []string `yaml:"branches"`
}

type concurrencyDoc struct {
	Key              string `yaml:"key"`
	CancelInProgress bool   `yaml:"cancel_in_progress"`
}

type jobDoc struct {
	Name              string     `yaml:"name"`
	Needs             []string   `yaml:"needs"`
	If                string     `yaml:"if"`
	AllowSkippedNeeds bool       `yaml:"allow_skipped_needs"`
	AllowSkip         bool       `yaml:"allow_skip"`
	Timeout           string     `yaml:"timeout"`
	Inputs            []string   `yaml:"inputs"`
	Outputs           []string   `yaml:"outputs"`
	Matrix            *matrixDoc `yaml:"matrix"`
	Steps             []*stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Run string            `yaml:"run"`
	Env map[string]string `yaml:"env"`
}

type matrixDoc struct {
	// Axes is kept as a raw node: mapping order defines expansion order.
	Axes     goyaml.Node      `yaml:"axes"`
	Exclude  []map[string]any `yaml:"exclude"`
	FailFast bool             `yaml:"fail_fast"`
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing YAML pipeline definition.", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &config.DefinitionError{Detail: fmt.Sprintf("failed to read %s: %v", path, err)}
	}

	var doc fileDoc
	if err := goyaml.Unmarshal(raw, &doc); err != nil {
		return nil, &config.DefinitionError{Detail: fmt.Sprintf("failed to parse %s: %v", path, err)}
	}
	if doc.Pipeline == "" {
		return nil, &config.DefinitionError{Detail: fmt.Sprintf("%s declares no pipeline name", path)}
	}

	p, err := translate(&doc, path)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Pipeline definition loaded.", "pipeline", p.Name, "jobs", len(p.Jobs))
	return p, nil
}

func translate(doc *fileDoc, path string) (*config.Pipeline, error) {
	p := &config.Pipeline{
		Name:     doc.Pipeline,
		Required: doc.Required,
	}
	if doc.On != nil {
		p.Trigger = &config.Trigger{Kinds: doc.On.Kinds, Branches: doc.On.Branches}
	}
	if doc.Concurrency != nil {
		key, err := parseTemplate(doc.Concurrency.Key, path)
		if err != nil {
			return nil, &config.DefinitionError{Pipeline: p.Name, Detail: fmt.Sprintf("concurrency key: %v", err)}
		}
		p.Concurrency = &config.Concurrency{
			Key:              key,
			CancelInProgress: doc.Concurrency.CancelInProgress,
		}
	}

	for _, jd := range doc.Jobs {
		job, err := translateJob(p.Name, jd, path)
		if err != nil {
			return nil, err
		}
		p.Jobs = append(p.Jobs, job)
	}
	return p, nil
}

func translateJob(pipeline string, jd *jobDoc, path string) (*config.Job, error) {
	job := &config.Job{
		Name:              jd.Name,
		Needs:             jd.Needs,
		AllowSkippedNeeds: jd.AllowSkippedNeeds,
		AllowSkip:         jd.AllowSkip,
		Inputs:            jd.Inputs,
		Outputs:           jd.Outputs,
	}

	if jd.If != "" {
		expr, err := parseExpression(jd.If, path)
		if err != nil {
			return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q condition: %v", jd.Name, err)}
		}
		job.Condition = expr
	}

	if jd.Timeout != "" {
		d, err := time.ParseDuration(jd.Timeout)
		if err != nil {
			return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q has invalid timeout %q: %v", jd.Name, jd.Timeout, err)}
		}
		job.Timeout = d
	}

	for _, sd := range jd.Steps {
		job.Steps = append(job.Steps, &config.Step{Run: sd.Run, Env: sd.Env})
	}

	if jd.Matrix != nil {
		m, err := translateMatrix(pipeline, jd.Name, jd.Matrix)
		if err != nil {
			return nil, err
		}
		job.Matrix = m
	}
	return job, nil
}

func translateMatrix(pipeline, job string, md *matrixDoc) (*config.Matrix, error) {
	m := &config.Matrix{FailFast: md.FailFast}

	if md.Axes.Kind != goyaml.MappingNode {
		return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q matrix axes must be a mapping of name to value list", job)}
	}
	// A YAML mapping node stores keys and values interleaved in Content,
	// preserving document order.
	for i := 0; i+1 < len(md.Axes.Content); i += 2 {
		keyNode, valNode := md.Axes.Content[i], md.Axes.Content[i+1]

		var values []any
		if err := valNode.Decode(&values); err != nil {
			return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q matrix axis %q: %v", job, keyNode.Value, err)}
		}
		axis := &config.Axis{Name: keyNode.Value}
		for _, v := range values {
			cv, err := ctyFromGo(v)
			if err != nil {
				return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q matrix axis %q: %v", job, keyNode.Value, err)}
			}
			axis.Values = append(axis.Values, cv)
		}
		m.Axes = append(m.Axes, axis)
	}

	for _, excl := range md.Exclude {
		entry := make(map[string]cty.Value, len(excl))
		for name, v := range excl {
			cv, err := ctyFromGo(v)
			if err != nil {
				return nil, &config.DefinitionError{Pipeline: pipeline, Detail: fmt.Sprintf("job %q matrix exclude %q: %v", job, name, err)}
			}
			entry[name] = cv
		}
		m.Exclude = append(m.Exclude, entry)
	}
	return m, nil
}

// parseExpression parses a condition string using HCL expression syntax.
func parseExpression(src, path string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), path, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}
	return expr, nil
}

// parseTemplate parses a string template (e.g. "ci-${event.ref}").
func parseTemplate(src, path string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), path, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}
	return expr, nil
}

// ctyFromGo maps the YAML scalar types onto cty values, matching how the HCL
// loader types the same literals.
func ctyFromGo(v any) (cty.Value, error) {
	switch t := v.(type) {
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value type %T", v)
	}
}

var _ config.Loader = (*Loader)(nil)
