package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dcshock/runpipe/checkpoint"
	"github.com/dcshock/runpipe/observer"
	"github.com/dcshock/runpipe/pipeline"
	"github.com/dcshock/runpipe/scope"
	"github.com/gorilla/mux"
)

type PipelineHandler struct {
	project  *scope.Project
	store    checkpoint.Store
	reporter pipeline.Reporter
	runs     observer.RunStore
	logger   *slog.Logger
}

// NewPipelineHandler serves the scopes of project. Runs checkpoint into store
// and report to reporter (may be nil) in addition to each scope's own reporters.
func NewPipelineHandler(project *scope.Project, store checkpoint.Store, reporter pipeline.Reporter, logger *slog.Logger) *PipelineHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PipelineHandler{project: project, store: store, reporter: reporter, logger: logger}
}

// WithRunHistory enables the runs endpoint, reading from runs.
func (h *PipelineHandler) WithRunHistory(runs observer.RunStore) *PipelineHandler {
	h.runs = runs
	return h
}

const defaultRunsLimit = 20

type ScopeSummary struct {
	Name        string            `json:"name"`
	Pipelines   []string          `json:"pipelines"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

type PipelineSummary struct {
	Name        string            `json:"name"`
	BatchSize   int               `json:"batch_size"`
	MaxAttempts int               `json:"max_attempts,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

type RunPipelineRequest struct {
	Config      map[string]any    `json:"config,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

type RunPipelineResponse struct {
	Scope    string `json:"scope"`
	Pipeline string `json:"pipeline"`
	Executed int    `json:"executed"`
	Error    string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *PipelineHandler) scope(w http.ResponseWriter, r *http.Request) (*scope.Scope, bool) {
	name := mux.Vars(r)["scope"]
	s, ok := h.project.Scope(name)
	if !ok {
		http.Error(w, "scope not found: "+name, http.StatusNotFound)
		return nil, false
	}
	return s, true
}

func (h *PipelineHandler) definition(w http.ResponseWriter, r *http.Request) (*scope.Scope, scope.Definition, bool) {
	s, ok := h.scope(w, r)
	if !ok {
		return nil, scope.Definition{}, false
	}
	name := mux.Vars(r)["pipeline"]
	def, ok := s.Get(name)
	if !ok {
		http.Error(w, "pipeline not found: "+name, http.StatusNotFound)
		return nil, scope.Definition{}, false
	}
	return s, def, true
}

func (h *PipelineHandler) ListScopes(w http.ResponseWriter, r *http.Request) {
	scopes := h.project.Scopes()
	out := make([]ScopeSummary, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, ScopeSummary{Name: s.Name, Pipelines: s.Names(), Annotations: s.Annotations})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PipelineHandler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scope(w, r)
	if !ok {
		return
	}
	out := make([]PipelineSummary, 0, s.Len())
	for _, name := range s.Names() {
		def, ok := s.Get(name)
		if !ok {
			continue
		}
		out = append(out, PipelineSummary{
			Name:        def.Name,
			BatchSize:   def.BatchSize,
			MaxAttempts: def.Retry.MaxAttempts,
			Annotations: def.Annotations,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RunPipeline runs the pipeline synchronously. An unknown pipeline answers 404
// with executed 0; a failed run answers 500 with executed 1 and the error.
func (h *PipelineHandler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scope(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["pipeline"]

	var body RunPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := RunPipelineResponse{Scope: s.Name, Pipeline: name}
	n, err := s.RunRequest(r.Context(), scope.RunRequest{
		Pipeline:    name,
		Store:       h.store,
		Reporter:    h.reporter,
		Config:      body.Config,
		Annotations: body.Annotations,
	})
	resp.Executed = n
	switch {
	case err != nil:
		h.logger.WarnContext(r.Context(), "run request failed", "scope", s.Name, "pipeline", name, "error", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
	case n == 0:
		writeJSON(w, http.StatusNotFound, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *PipelineHandler) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	s, def, ok := h.definition(w, r)
	if !ok {
		return
	}
	var snap pipeline.Snapshot
	err := s.PipelineStore(h.store, def.Name).Get(r.Context(), pipeline.CheckpointKey, &snap)
	if checkpoint.IsNotFound(err) {
		http.Error(w, "no checkpoint", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *PipelineHandler) ClearCheckpoint(w http.ResponseWriter, r *http.Request) {
	s, def, ok := h.definition(w, r)
	if !ok {
		return
	}
	if err := s.PipelineStore(h.store, def.Name).Delete(r.Context(), pipeline.CheckpointKey); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRuns returns the pipeline's most recent runs, newest first. The limit
// query parameter caps the count (default 20).
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "run history not enabled", http.StatusNotFound)
		return
	}
	s, def, ok := h.definition(w, r)
	if !ok {
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit: "+v, http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := h.runs.List(r.Context(), s.Name, def.Name, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []observer.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}
