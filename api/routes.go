// Package api exposes scopes and their pipelines over HTTP.
package api

import (
	"log/slog"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *PipelineHandler, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))

	r.HandleFunc("/api/v1/scopes", h.ListScopes).Methods("GET")
	r.HandleFunc("/api/v1/scopes/{scope}/pipelines", h.ListPipelines).Methods("GET")
	r.HandleFunc("/api/v1/scopes/{scope}/pipelines/{pipeline}/run", h.RunPipeline).Methods("POST")
	r.HandleFunc("/api/v1/scopes/{scope}/pipelines/{pipeline}/checkpoint", h.GetCheckpoint).Methods("GET")
	r.HandleFunc("/api/v1/scopes/{scope}/pipelines/{pipeline}/checkpoint", h.ClearCheckpoint).Methods("DELETE")
	r.HandleFunc("/api/v1/scopes/{scope}/pipelines/{pipeline}/runs", h.ListRuns).Methods("GET")

	return r
}
