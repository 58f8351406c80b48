package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mtorell/workledger/internal/csvio"
	"github.com/mtorell/workledger/internal/storage"
)

func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		batchID := uuid.New().String()

		ids, err := csvio.Import(r.Body, deps.Store)
		// Rows inserted before a mid-file failure are real changes; count them
		// either way so the staleness tracking stays honest.
		if len(ids) > 0 {
			if nerr := deps.Predictor.NotifyChange(int64(len(ids)), ids...); nerr != nil {
				deps.Log.Warn("recording ledger change failed", "batch", batchID, "error", nerr)
			}
		}
		if err != nil {
			deps.Log.Warn("csv import failed", "batch", batchID, "imported", len(ids), "error", err)
			httpError(w, http.StatusBadRequest, "invalid_request_error", "import failed after %d rows: %v", len(ids), err)
			return
		}

		deps.Log.Info("csv import complete", "batch", batchID, "imported", len(ids))
		writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "imported": len(ids)})
	}
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, sort, err := parseListQuery(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		jobs, err := deps.Store.ListJobs(filter, sort)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing jobs: %v", err)
			return
		}

		ids := make([]int64, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		preds, err := deps.Predictor.Predict(ids)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "predicting pay: %v", err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="workledger.csv"`)
		if err := csvio.Export(w, jobs, preds); err != nil {
			deps.Log.Warn("csv export failed", "error", err)
		}
	}
}

func handleClear(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Store.CountJobs()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "counting jobs: %v", err)
			return
		}

		if err := deps.Store.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clearing ledger: %v", err)
			return
		}

		// The ledger is empty; drop the model and all bookkeeping with it.
		if err := deps.Predictor.Reset(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resetting model: %v", err)
			return
		}

		deps.Log.Info("ledger cleared", "deleted", count)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": count})
	}
}

var _ csvio.JobWriter = (*storage.Store)(nil)
