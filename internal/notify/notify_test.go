package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridci/internal/aggregate"
	"github.com/vk/gridci/internal/run"
)

func TestWebhook_Notify(t *testing.T) {
	t.Parallel()

	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := &aggregate.PipelineResult{
		RunID:     "r1",
		Pipeline:  "ci",
		Succeeded: true,
		Gates:     []aggregate.Gate{{Job: "test", Result: run.Succeeded, OK: true}},
		Results:   map[string]run.Result{"test": run.Succeeded},
	}

	err := NewWebhook(server.URL).Notify(context.Background(), result)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "r1", decoded["run_id"])
	assert.Equal(t, "ci", decoded["pipeline"])
	assert.Equal(t, true, decoded["succeeded"])
}

func TestWebhook_NotifyErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhook(server.URL).Notify(context.Background(), &aggregate.PipelineResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhook_NotifyUnreachable(t *testing.T) {
	t.Parallel()

	// A closed server to get a connection error deterministically.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	err := NewWebhook(server.URL).Notify(context.Background(), &aggregate.PipelineResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivering notification")
}
