package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridci/internal/artifact"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/graph"
	"github.com/zclconf/go-cty/cty"
)

func localNode(job *config.Job, values map[string]cty.Value) *graph.Node {
	return &graph.Node{ID: job.Name, Job: job, Values: values}
}

func TestLocal_RunsStepsAndCollectsOutputs(t *testing.T) {
	t.Parallel()

	store := artifact.NewStore()
	job := &config.Job{
		Name:    "build",
		Outputs: []string{"greeting"},
		Steps: []*config.Step{
			{Run: "printf hello > greeting"},
		},
	}

	err := NewLocal().Execute(context.Background(), localNode(job, nil), store.ForJob("build", nil, job.Outputs))
	require.NoError(t, err)

	store.MarkSucceeded("build")
	payload, err := store.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestLocal_MaterializesInputs(t *testing.T) {
	t.Parallel()

	store := artifact.NewStore()
	require.NoError(t, store.Put("build", "greeting", []byte("hello")))
	store.MarkSucceeded("build")

	job := &config.Job{
		Name:    "test",
		Inputs:  []string{"greeting"},
		Outputs: []string{"copy"},
		Steps: []*config.Step{
			{Run: "cat greeting > copy"},
		},
	}

	err := NewLocal().Execute(context.Background(), localNode(job, nil),
		store.ForJob("test", job.Inputs, job.Outputs))
	require.NoError(t, err)

	store.MarkSucceeded("test")
	payload, err := store.Get("copy")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestLocal_StepFailureIncludesOutput(t *testing.T) {
	t.Parallel()

	job := &config.Job{
		Name: "fail",
		Steps: []*config.Step{
			{Run: "echo broken build; exit 3"},
		},
	}

	err := NewLocal().Execute(context.Background(), localNode(job, nil),
		artifact.NewStore().ForJob("fail", nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 failed")
	assert.Contains(t, err.Error(), "broken build")
}

func TestLocal_MatrixValuesInEnvironment(t *testing.T) {
	t.Parallel()

	store := artifact.NewStore()
	job := &config.Job{
		Name:    "test",
		Outputs: []string{"env"},
		Steps: []*config.Step{
			{Run: `printf "%s" "$MATRIX_OS" > env`},
		},
	}
	values := map[string]cty.Value{"os": cty.StringVal("linux")}

	err := NewLocal().Execute(context.Background(), localNode(job, values),
		store.ForJob("test", nil, job.Outputs))
	require.NoError(t, err)

	store.MarkSucceeded("test")
	payload, err := store.Get("env")
	require.NoError(t, err)
	assert.Equal(t, []byte("linux"), payload)
}

func TestLocal_StepEnvOverlay(t *testing.T) {
	t.Parallel()

	store := artifact.NewStore()
	job := &config.Job{
		Name:    "test",
		Outputs: []string{"env"},
		Steps: []*config.Step{
			{
				Run: `printf "%s" "$EXTRA" > env`,
				Env: map[string]string{"EXTRA": "value"},
			},
		},
	}

	err := NewLocal().Execute(context.Background(), localNode(job, nil),
		store.ForJob("test", nil, job.Outputs))
	require.NoError(t, err)

	store.MarkSucceeded("test")
	payload, err := store.Get("env")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), payload)
}

func TestLocal_MissingDeclaredOutput(t *testing.T) {
	t.Parallel()

	job := &config.Job{
		Name:    "build",
		Outputs: []string{"binary"},
		Steps:   []*config.Step{{Run: "true"}},
	}

	err := NewLocal().Execute(context.Background(), localNode(job, nil),
		artifact.NewStore().ForJob("build", nil, job.Outputs))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `declared output "binary" but produced no such file`)
}

func TestLocal_Cancellation(t *testing.T) {
	t.Parallel()

	job := &config.Job{
		Name:  "slow",
		Steps: []*config.Step{{Run: "sleep 10"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewLocal().Execute(ctx, localNode(job, nil),
			artifact.NewStore().ForJob("slow", nil, nil))
	}()

	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
}
