package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mtorell/workledger/internal/storage"
)

const dateLayout = "2006-01-02"

// JobPayload is the create/update request body. On PATCH all fields are
// optional; a pay of null is left untouched unless clear_pay is set.
type JobPayload struct {
	Date        *string  `json:"date"`
	JobName     *string  `json:"job_name"`
	JobType     *string  `json:"job_type"`
	HoursWorked *float64 `json:"hours_worked"`
	Pay         *float64 `json:"pay"`
	ClearPay    bool     `json:"clear_pay,omitempty"`
}

// JobResponse is the wire representation of a ledger entry.
type JobResponse struct {
	ID           int64    `json:"id"`
	Date         string   `json:"date"`
	JobName      string   `json:"job_name"`
	JobType      string   `json:"job_type"`
	HoursWorked  float64  `json:"hours_worked"`
	Pay          *float64 `json:"pay"`
	PredictedPay *float64 `json:"predicted_pay,omitempty"`
}

func toResponse(j storage.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Date:        j.JobDate.Format(dateLayout),
		JobName:     j.JobName,
		JobType:     j.JobType,
		HoursWorked: j.HoursWorked,
		Pay:         j.Pay,
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
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

		resp := make([]JobResponse, len(jobs))
		for i, j := range jobs {
			resp[i] = toResponse(j)
		}

		// The predicted-pay column is opt-in: it can trigger a model retrain.
		if r.URL.Query().Get("predict") == "true" && len(jobs) > 0 {
			ids := make([]int64, len(jobs))
			for i, j := range jobs {
				ids[i] = j.ID
			}
			preds, err := deps.Predictor.Predict(ids)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "predicting pay: %v", err)
				return
			}
			for i := range resp {
				if v, ok := preds[resp[i].ID]; ok {
					v := v
					resp[i].PredictedPay = &v
				}
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"jobs": resp})
	}
}

func handleCreateJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JobPayload
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		job := storage.Job{}
		if err := applyPayload(&job, req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if req.Date == nil || req.JobName == nil || req.JobType == nil || req.HoursWorked == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "date, job_name, job_type and hours_worked are required")
			return
		}

		id, err := deps.Store.InsertJob(job)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "inserting job: %v", err)
			return
		}
		job.ID = id

		if err := deps.Predictor.NotifyChange(1); err != nil {
			deps.Log.Warn("recording ledger change failed", "error", err)
		}

		writeJSON(w, http.StatusCreated, toResponse(job))
	}
}

func handleUpdateJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid job id")
			return
		}

		var req JobPayload
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		job, err := deps.Store.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "job %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading job: %v", err)
			return
		}

		if err := applyPayload(&job, req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if err := deps.Store.UpdateJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "updating job: %v", err)
			return
		}

		if err := deps.Predictor.NotifyChange(1, id); err != nil {
			deps.Log.Warn("recording ledger change failed", "error", err)
		}

		writeJSON(w, http.StatusOK, toResponse(job))
	}
}

func handleDeleteJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []int64 `json:"ids"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.IDs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ids is required")
			return
		}

		deleted, err := deps.Store.DeleteJobs(req.IDs)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting jobs: %v", err)
			return
		}

		if err := deps.Predictor.NotifyChange(deleted, req.IDs...); err != nil {
			deps.Log.Warn("recording ledger change failed", "error", err)
		}

		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	}
}

// handleFacets serves the distinct job types and years, used to populate
// filter pickers.
func handleFacets(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := deps.Store.DistinctJobTypes()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing job types: %v", err)
			return
		}
		years, err := deps.Store.Years()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing years: %v", err)
			return
		}
		if types == nil {
			types = []string{}
		}
		if years == nil {
			years = []int{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_types": types, "years": years})
	}
}

// applyPayload copies the set fields of req onto job, validating ranges the
// same way the entry form does.
func applyPayload(job *storage.Job, req JobPayload) error {
	if req.Date != nil {
		d, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			return errors.New("date must be formatted YYYY-MM-DD")
		}
		job.JobDate = d
	}
	if req.JobName != nil {
		if *req.JobName == "" {
			return errors.New("job name cannot be empty")
		}
		job.JobName = *req.JobName
	}
	if req.JobType != nil {
		if *req.JobType == "" {
			return errors.New("job type cannot be empty")
		}
		job.JobType = *req.JobType
	}
	if req.HoursWorked != nil {
		if *req.HoursWorked < 0 || *req.HoursWorked > 24 {
			return errors.New("hours worked must be between 0.00 and 24.00")
		}
		job.HoursWorked = *req.HoursWorked
	}
	if req.ClearPay {
		job.Pay = nil
	} else if req.Pay != nil {
		if *req.Pay < 0 {
			return errors.New("pay cannot be negative")
		}
		job.Pay = req.Pay
	}
	return nil
}

func parseListQuery(r *http.Request) (storage.ListFilter, storage.SortKey, error) {
	q := r.URL.Query()
	var f storage.ListFilter

	f.NameSearch = q.Get("search")
	f.JobType = q.Get("job_type")

	if v := q.Get("date_from"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, "", errors.New("date_from must be formatted YYYY-MM-DD")
		}
		f.DateFrom = d
	}
	if v := q.Get("date_to"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, "", errors.New("date_to must be formatted YYYY-MM-DD")
		}
		f.DateTo = d
	}

	for _, spec := range []struct {
		name string
		dst  **float64
	}{
		{"hours_min", &f.HoursMin},
		{"hours_max", &f.HoursMax},
		{"pay_min", &f.PayMin},
		{"pay_max", &f.PayMax},
	} {
		if v := q.Get(spec.name); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return f, "", errors.New(spec.name + " must be a number")
			}
			*spec.dst = &parsed
		}
	}

	sort := storage.SortKey(q.Get("sort"))
	if sort == "" {
		sort = storage.SortDateDesc
	}
	return f, sort, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
