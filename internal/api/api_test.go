package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mtorell/workledger/internal/estimator"
	"github.com/mtorell/workledger/internal/modelstore"
	"github.com/mtorell/workledger/internal/predictor"
	"github.com/mtorell/workledger/internal/storage"
)

type testApp struct {
	handler http.Handler
	store   *storage.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pred := predictor.New(store, modelstore.New(t.TempDir()), estimator.NewTree())
	return &testApp{
		handler: NewHandler(AppDeps{Store: store, Predictor: pred}),
		store:   store,
	}
}

func (a *testApp) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func createJob(t *testing.T, a *testApp, date, name, jobType string, hours float64, pay *float64) int64 {
	t.Helper()
	body := map[string]any{
		"date":         date,
		"job_name":     name,
		"job_type":     jobType,
		"hours_worked": hours,
	}
	if pay != nil {
		body["pay"] = *pay
	}
	w := a.request(t, "POST", "/jobs", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("creating job: status %d, body %s", w.Code, w.Body.String())
	}
	var resp JobResponse
	decode(t, w, &resp)
	return resp.ID
}

func fp(v float64) *float64 { return &v }

func seedApp(t *testing.T, a *testApp) {
	t.Helper()
	createJob(t, a, "2026-01-05", "Deck repair", "carpentry", 6, fp(480))
	createJob(t, a, "2026-01-06", "Logo draft", "design", 3, fp(300))
	createJob(t, a, "2026-02-10", "Cabinet build", "carpentry", 8, fp(720))
	createJob(t, a, "2026-02-11", "Site mockup", "design", 4, nil)
}

func TestCreateJob(t *testing.T) {
	a := newTestApp(t)

	w := a.request(t, "POST", "/jobs", map[string]any{
		"date": "2026-03-01", "job_name": "Fence", "job_type": "carpentry", "hours_worked": 5.5, "pay": 440,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp JobResponse
	decode(t, w, &resp)
	if resp.ID != 1 || resp.JobName != "Fence" || resp.Pay == nil || *resp.Pay != 440 {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateJobValidation(t *testing.T) {
	a := newTestApp(t)
	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing fields", map[string]any{"job_name": "x"}},
		{"bad date", map[string]any{"date": "March 1", "job_name": "x", "job_type": "y", "hours_worked": 1}},
		{"empty name", map[string]any{"date": "2026-03-01", "job_name": "", "job_type": "y", "hours_worked": 1}},
		{"hours out of range", map[string]any{"date": "2026-03-01", "job_name": "x", "job_type": "y", "hours_worked": 25}},
		{"negative pay", map[string]any{"date": "2026-03-01", "job_name": "x", "job_type": "y", "hours_worked": 1, "pay": -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := a.request(t, "POST", "/jobs", tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestListJobs(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "GET", "/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Jobs []JobResponse `json:"jobs"`
	}
	decode(t, w, &resp)
	if len(resp.Jobs) != 4 {
		t.Fatalf("got %d jobs, want 4", len(resp.Jobs))
	}
	// Default ordering is newest first.
	if resp.Jobs[0].Date != "2026-02-11" {
		t.Errorf("first date = %s, want 2026-02-11", resp.Jobs[0].Date)
	}
	for _, j := range resp.Jobs {
		if j.PredictedPay != nil {
			t.Error("predicted pay present without predict=true")
		}
	}
}

func TestListJobsFilteredAndSorted(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "GET", "/jobs?job_type=design&sort=hours_asc", nil)
	var resp struct {
		Jobs []JobResponse `json:"jobs"`
	}
	decode(t, w, &resp)
	if len(resp.Jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(resp.Jobs))
	}
	if resp.Jobs[0].HoursWorked != 3 || resp.Jobs[1].HoursWorked != 4 {
		t.Errorf("hours order = %v, %v", resp.Jobs[0].HoursWorked, resp.Jobs[1].HoursWorked)
	}
}

func TestListJobsWithPredictions(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "GET", "/jobs?predict=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Jobs []JobResponse `json:"jobs"`
	}
	decode(t, w, &resp)
	for _, j := range resp.Jobs {
		if j.PredictedPay == nil {
			t.Errorf("job %d has no predicted pay", j.ID)
		} else if *j.PredictedPay <= 0 {
			t.Errorf("job %d predicted pay = %v", j.ID, *j.PredictedPay)
		}
	}
}

func TestListJobsBadQuery(t *testing.T) {
	a := newTestApp(t)
	if w := a.request(t, "GET", "/jobs?date_from=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if w := a.request(t, "GET", "/jobs?hours_min=lots", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestFacets(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "GET", "/jobs/facets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		JobTypes []string `json:"job_types"`
		Years    []int    `json:"years"`
	}
	decode(t, w, &resp)
	if len(resp.JobTypes) != 2 {
		t.Errorf("job types = %v, want carpentry and design", resp.JobTypes)
	}
	if len(resp.Years) != 1 || resp.Years[0] != 2026 {
		t.Errorf("years = %v, want [2026]", resp.Years)
	}
}

func TestFacetsEmptyLedger(t *testing.T) {
	a := newTestApp(t)
	w := a.request(t, "GET", "/jobs/facets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		JobTypes []string `json:"job_types"`
		Years    []int    `json:"years"`
	}
	decode(t, w, &resp)
	if resp.JobTypes == nil || resp.Years == nil {
		t.Errorf("facets are null on empty ledger: %s", w.Body.String())
	}
}

func TestUpdateJob(t *testing.T) {
	a := newTestApp(t)
	id := createJob(t, a, "2026-03-01", "Draft", "design", 2, nil)

	w := a.request(t, "PATCH", fmt.Sprintf("/jobs/%d", id), map[string]any{"pay": 250})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp JobResponse
	decode(t, w, &resp)
	if resp.Pay == nil || *resp.Pay != 250 {
		t.Errorf("pay = %v, want 250", resp.Pay)
	}
	// Untouched fields survive a partial update.
	if resp.JobName != "Draft" || resp.HoursWorked != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestUpdateJobClearPay(t *testing.T) {
	a := newTestApp(t)
	id := createJob(t, a, "2026-03-01", "Paid", "design", 2, fp(100))

	w := a.request(t, "PATCH", fmt.Sprintf("/jobs/%d", id), map[string]any{"clear_pay": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp JobResponse
	decode(t, w, &resp)
	if resp.Pay != nil {
		t.Errorf("pay = %v, want null", *resp.Pay)
	}
}

func TestUpdateJobNotFound(t *testing.T) {
	a := newTestApp(t)
	if w := a.request(t, "PATCH", "/jobs/99", map[string]any{"pay": 1}); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteJobs(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "DELETE", "/jobs", map[string]any{"ids": []int64{1, 3, 77}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, w, &resp)
	if resp.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", resp.Deleted)
	}

	if w := a.request(t, "DELETE", "/jobs", map[string]any{"ids": []int64{}}); w.Code != http.StatusBadRequest {
		t.Errorf("empty ids: status = %d, want 400", w.Code)
	}
}

func TestPredictions(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "POST", "/predictions", map[string]any{"ids": []int64{1, 2, 99}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Predictions map[string]float64 `json:"predictions"`
	}
	decode(t, w, &resp)
	if len(resp.Predictions) != 2 {
		t.Fatalf("got %d predictions, want 2 (unknown id omitted): %v", len(resp.Predictions), resp.Predictions)
	}
	for id, v := range resp.Predictions {
		if v <= 0 {
			t.Errorf("prediction for %s = %v", id, v)
		}
	}
}

func TestPredictionsEmptyIDs(t *testing.T) {
	a := newTestApp(t)
	w := a.request(t, "POST", "/predictions", map[string]any{"ids": []int64{}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Predictions map[string]float64 `json:"predictions"`
	}
	decode(t, w, &resp)
	if len(resp.Predictions) != 0 {
		t.Errorf("got %d predictions, want 0", len(resp.Predictions))
	}
}

func TestStats(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "GET", "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Jobs         int64   `json:"jobs"`
		AvgPayPerJob float64 `json:"avg_pay_per_job"`
		HourlyRate   float64 `json:"hourly_rate"`
	}
	decode(t, w, &resp)
	if resp.Jobs != 4 {
		t.Errorf("jobs = %d, want 4", resp.Jobs)
	}
	if resp.AvgPayPerJob != 500 {
		t.Errorf("avg pay per job = %v, want 500", resp.AvgPayPerJob)
	}
	if resp.HourlyRate == 0 {
		t.Error("hourly rate is zero")
	}
}

func TestStatsSeries(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "GET", "/stats/series?interval=2026", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Interval string `json:"interval"`
		Points   []struct {
			CumulativePay float64 `json:"cumulative_pay"`
		} `json:"points"`
	}
	decode(t, w, &resp)
	if resp.Interval != "2026" {
		t.Errorf("interval = %q", resp.Interval)
	}
	if len(resp.Points) != 3 {
		t.Fatalf("got %d points, want 3", len(resp.Points))
	}
	if last := resp.Points[2].CumulativePay; last != 1500 {
		t.Errorf("final cumulative pay = %v, want 1500", last)
	}

	if w := a.request(t, "GET", "/stats/series?interval=someday", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid interval: status = %d, want 400", w.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	a := newTestApp(t)

	csv := `Date,Job Name,Job Type,Hours Worked,Pay
"Jan 05, 2026",Deck repair,carpentry,6,480
"Jan 06, 2026",Logo draft,design,3,300
`
	req := httptest.NewRequest("POST", "/jobs/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		BatchID  string `json:"batch_id"`
		Imported int    `json:"imported"`
	}
	decode(t, w, &resp)
	if resp.Imported != 2 {
		t.Errorf("imported = %d, want 2", resp.Imported)
	}
	if resp.BatchID == "" {
		t.Error("batch id is empty")
	}

	n, err := a.store.CountJobs()
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 2 {
		t.Errorf("stored %d jobs, want 2", n)
	}
}

func TestImportEndpointBadCSV(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest("POST", "/jobs/import", strings.NewReader("Wrong,Header\n"))
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "GET", "/jobs/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "Date,Job Name,Job Type,Hours Worked,Pay,Expected Pay") {
		t.Errorf("unexpected header line: %s", body)
	}
	if lines := strings.Split(strings.TrimSpace(body), "\n"); len(lines) != 5 {
		t.Errorf("got %d lines, want header + 4 rows", len(lines))
	}
}

func TestClearEndpoint(t *testing.T) {
	a := newTestApp(t)
	seedApp(t, a)

	w := a.request(t, "POST", "/maintenance/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, w, &resp)
	if resp.Deleted != 4 {
		t.Errorf("deleted = %d, want 4", resp.Deleted)
	}

	n, _ := a.store.CountJobs()
	if n != 0 {
		t.Errorf("ledger holds %d jobs after clear, want 0", n)
	}
}

func TestErrorEnvelope(t *testing.T) {
	a := newTestApp(t)
	w := a.request(t, "PATCH", "/jobs/99", map[string]any{"pay": 1})

	var resp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decode(t, w, &resp)
	if resp.Error.Type != "not_found_error" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
	if resp.Error.Message == "" {
		t.Error("error message is empty")
	}
}
