package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/vk/gridci/internal/run"
)

// triggerRequest is the body of POST /v1/runs.
type triggerRequest struct {
	Trigger string `json:"trigger"`
	Ref     string `json:"ref"`
	Actor   string `json:"actor"`
}

// runStatus is the body of GET /v1/runs/{id}.
type runStatus struct {
	RunID    string                `json:"run_id"`
	Pipeline string                `json:"pipeline"`
	Done     bool                  `json:"done"`
	Results  map[string]run.Result `json:"results"`
	Summary  string                `json:"summary,omitempty"`
}

// apiRouter wires the trigger, status and health endpoints.
func (a *App) apiRouter(ctx context.Context) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/runs", a.handleTriggerRun(ctx)).Methods("POST")
	api.HandleFunc("/runs/{id}", a.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/cancel", a.handleCancelRun).Methods("POST")
	return router
}

// startAPIServer exposes the API while the process lives.
func (a *App) startAPIServer(ctx context.Context, port int) {
	a.logger.Debug("Configuring API server.")
	router := a.apiRouter(ctx)

	addr := fmt.Sprintf(":%d", port)
	go func() {
		a.logger.Info("🩺 API server starting.", "address", fmt.Sprintf("http://localhost%s", addr))
		if err := http.ListenAndServe(addr, router); err != nil {
			a.logger.Error("API server failed.", "error", err)
		}
	}()
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// handleTriggerRun admits a new run of the loaded pipeline. The run outlives
// the HTTP request, so it is bound to the app context, not the request's.
func (a *App) handleTriggerRun(appCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		rc := run.NewContext(req.Trigger, req.Ref, req.Actor)
		if !triggerMatches(a.pipeline.Trigger, rc) {
			http.Error(w, "event does not match the pipeline's trigger predicates", http.StatusUnprocessableEntity)
			return
		}

		rec, err := a.startRun(appCtx, rc)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"run_id": rec.run.RunContext().ID})
	}
}

func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := a.record(id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	status := runStatus{
		RunID:    id,
		Pipeline: a.pipeline.Name,
		Results:  rec.run.Results(),
	}
	select {
	case <-rec.done:
		status.Done = true
		status.Summary = rec.result.Summary()
	default:
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (a *App) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := a.record(id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	rec.run.Cancel()
	w.WriteHeader(http.StatusAccepted)
}
