package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_Run_EndToEnd(t *testing.T) {
	t.Parallel()

	// A real two-job pipeline handing an artifact from build to verify via
	// actual shell steps.
	pipelineHCL := `
pipeline "e2e" {
  required = ["verify"]
}

job "build" {
  outputs = ["greeting"]
  step {
    run = "printf hello > greeting"
  }
}

job "verify" {
  needs  = ["build"]
  inputs = ["greeting"]
  step {
    run = "test \"$(cat greeting)\" = \"hello\""
  }
}
`
	testApp, logBuffer := SetupAppTest(t, pipelineHCL, nil, nil)

	err := testApp.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logBuffer.String(), "pipeline e2e: success")
}

func TestApp_Run_RequiredFailurePropagates(t *testing.T) {
	t.Parallel()

	pipelineHCL := `
pipeline "failing" {
  required = ["test"]
}

job "test" {
  step {
    run = "exit 1"
  }
}
`
	testApp, _ := SetupAppTest(t, pipelineHCL, nil, nil)

	err := testApp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestApp_Run_TriggerMismatch(t *testing.T) {
	t.Parallel()

	pipelineHCL := `
pipeline "gated" {
  on {
    kinds    = ["push"]
    branches = ["main"]
  }
}

job "build" {
  step {
    run = "true"
  }
}
`
	cfg := &Config{Trigger: "pull_request", Ref: "main", Workers: 2}
	testApp, logBuffer := SetupAppTest(t, pipelineHCL, cfg, nil)

	err := testApp.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logBuffer.String(), "not triggered")
}

func TestApp_Run_BranchGlobMatch(t *testing.T) {
	t.Parallel()

	pipelineHCL := `
pipeline "release" {
  on {
    branches = ["release/*"]
  }
}

job "ship" {
  step {
    run = "true"
  }
}
`
	cfg := &Config{Trigger: "push", Ref: "release/1.2", Workers: 2}
	testApp, logBuffer := SetupAppTest(t, pipelineHCL, cfg, nil)

	err := testApp.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logBuffer.String(), "pipeline release: success")
}

func TestApp_Run_DeliversWebhookNotification(t *testing.T) {
	t.Parallel()

	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pipelineHCL := `
pipeline "notified" {
  required = ["build"]
}

job "build" {
  step {
    run = "true"
  }
}
`
	cfg := &Config{Trigger: "manual", Workers: 2, WebhookURL: server.URL}
	testApp, _ := SetupAppTest(t, pipelineHCL, cfg, nil)

	err := testApp.Run(context.Background())
	require.NoError(t, err)

	var payload struct {
		Pipeline  string `json:"pipeline"`
		Succeeded bool   `json:"succeeded"`
	}
	require.NoError(t, json.Unmarshal(<-received, &payload))
	assert.Equal(t, "notified", payload.Pipeline)
	assert.True(t, payload.Succeeded)
}

func TestApp_Run_ConditionSkipsJob(t *testing.T) {
	t.Parallel()

	pipelineHCL := `
pipeline "conditional" {
  required = ["deploy"]
}

job "deploy" {
  allow_skip = true
  if         = event.ref == "main"
  step {
    run = "true"
  }
}
`
	cfg := &Config{Trigger: "push", Ref: "feature/x", Workers: 2}
	testApp, logBuffer := SetupAppTest(t, pipelineHCL, cfg, nil)

	// The required job is skipped but allow_skip keeps the pipeline green.
	err := testApp.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logBuffer.String(), "pipeline conditional: success")
}

func TestNewApp_PanicsOnBrokenDefinition(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		require.NotNil(t, r, "NewApp should panic on an unparsable definition")
		assert.True(t, strings.Contains(r.(error).Error(), "failed to load pipeline definition"))
	}()

	SetupAppTest(t, `pipeline "broken" {`, nil, nil)
}
