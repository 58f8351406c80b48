// Package api exposes the job ledger, predictions and dashboard statistics
// over a local HTTP interface consumed by the CLI.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mtorell/workledger/internal/predictor"
	"github.com/mtorell/workledger/internal/storage"
)

const maxBodySize = 10 << 20 // 10MB

// AppDeps carries the collaborators the handlers need.
type AppDeps struct {
	Store     *storage.Store
	Predictor *predictor.Predictor
	Log       *slog.Logger
}

// NewHandler builds the full route tree.
func NewHandler(deps AppDeps) http.Handler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/jobs", handleListJobs(deps))
	r.Get("/jobs/facets", handleFacets(deps))
	r.Post("/jobs", handleCreateJob(deps))
	r.Patch("/jobs/{id}", handleUpdateJob(deps))
	r.Delete("/jobs", handleDeleteJobs(deps))

	r.Post("/jobs/import", handleImport(deps))
	r.Get("/jobs/export", handleExport(deps))

	r.Post("/predictions", handlePredictions(deps))

	r.Get("/stats", handleStats(deps))
	r.Get("/stats/series", handleSeries(deps))

	r.Post("/maintenance/clear", handleClear(deps))

	return r
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
