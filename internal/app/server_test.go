package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiPipelineHCL = `
pipeline "api" {
  on {
    kinds = ["push"]
  }
  required = ["build"]
}

job "build" {
  step {
    run = "true"
  }
}
`

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	testApp, _ := SetupAppTest(t, apiPipelineHCL, nil, nil)
	router := testApp.apiRouter(context.Background())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "OK")
}

func TestAPI_TriggerAndStatus(t *testing.T) {
	t.Parallel()

	testApp, _ := SetupAppTest(t, apiPipelineHCL, nil, nil)
	router := testApp.apiRouter(context.Background())

	// Trigger a run.
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"trigger": "push", "ref": "main", "actor": "alice"}`)
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/runs", body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RunID)

	// Wait for the run to finish, then fetch its status.
	record, ok := testApp.record(accepted.RunID)
	require.True(t, ok)
	select {
	case <-record.done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish in time")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/runs/"+accepted.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		RunID    string            `json:"run_id"`
		Pipeline string            `json:"pipeline"`
		Done     bool              `json:"done"`
		Results  map[string]string `json:"results"`
		Summary  string            `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, accepted.RunID, status.RunID)
	assert.Equal(t, "api", status.Pipeline)
	assert.True(t, status.Done)
	assert.Equal(t, "succeeded", status.Results["build"])
	assert.Contains(t, status.Summary, "success")
}

func TestAPI_TriggerMismatchRejected(t *testing.T) {
	t.Parallel()

	testApp, _ := SetupAppTest(t, apiPipelineHCL, nil, nil)
	router := testApp.apiRouter(context.Background())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"trigger": "schedule"}`)
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/runs", body))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_InvalidBody(t *testing.T) {
	t.Parallel()

	testApp, _ := SetupAppTest(t, apiPipelineHCL, nil, nil)
	router := testApp.apiRouter(context.Background())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/runs", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UnknownRun(t *testing.T) {
	t.Parallel()

	testApp, _ := SetupAppTest(t, apiPipelineHCL, nil, nil)
	router := testApp.apiRouter(context.Background())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/runs/nope/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Cancel(t *testing.T) {
	t.Parallel()

	slowHCL := `
pipeline "slow" {}

job "wait" {
  step {
    run = "sleep 30"
  }
}
`
	testApp, _ := SetupAppTest(t, slowHCL, nil, nil)
	router := testApp.apiRouter(context.Background())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"trigger": "manual"}`)
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/runs", body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/runs/"+accepted.RunID+"/cancel", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	record, ok := testApp.record(accepted.RunID)
	require.True(t, ok)
	select {
	case <-record.done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run did not finish in time")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/runs/"+accepted.RunID, nil))
	var status struct {
		Results map[string]string `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "cancelled", status.Results["wait"])
}
