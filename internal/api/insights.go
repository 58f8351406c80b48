package api

import (
	"net/http"
	"time"

	"github.com/mtorell/workledger/internal/stats"
)

func handlePredictions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []int64 `json:"ids"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		preds, err := deps.Predictor.Predict(req.IDs)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "predicting pay: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"predictions": preds})
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := stats.Summarize(deps.Store)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "computing stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func handleSeries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interval := r.URL.Query().Get("interval")
		points, err := stats.CumulativeSeries(deps.Store, interval, time.Now())
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"interval": intervalOrAll(interval), "points": points})
	}
}

func intervalOrAll(interval string) string {
	if interval == "" {
		return "all"
	}
	return interval
}
