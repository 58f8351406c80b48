package csvio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mtorell/workledger/internal/storage"
)

type recordingWriter struct {
	jobs      []storage.Job
	failAfter int // fail the insert once this many rows landed; 0 disables
}

func (w *recordingWriter) InsertJob(j storage.Job) (int64, error) {
	if w.failAfter > 0 && len(w.jobs) >= w.failAfter {
		return 0, errors.New("insert failed")
	}
	w.jobs = append(w.jobs, j)
	return int64(len(w.jobs)), nil
}

func TestImport(t *testing.T) {
	input := `Date,Job Name,Job Type,Hours Worked,Pay
"Jan 05, 2026",Deck repair,carpentry,6,480
2026-01-06,Logo draft,design,3,"$1,200.50"
"Feb 10, 2026",Site mockup,design,4,
`
	w := &recordingWriter{}
	ids, err := Import(strings.NewReader(input), w)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("imported %d rows, want 3", len(ids))
	}

	first := w.jobs[0]
	if !first.JobDate.Equal(time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %v", first.JobDate)
	}
	if first.Pay == nil || *first.Pay != 480 {
		t.Errorf("first pay = %v, want 480", first.Pay)
	}

	second := w.jobs[1]
	if !second.JobDate.Equal(time.Date(2026, time.January, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("second date = %v (ISO format rejected)", second.JobDate)
	}
	if second.Pay == nil || *second.Pay != 1200.50 {
		t.Errorf("second pay = %v, want 1200.50 ($ and comma stripped)", second.Pay)
	}

	if w.jobs[2].Pay != nil {
		t.Errorf("third pay = %v, want nil for empty cell", *w.jobs[2].Pay)
	}
}

func TestImportIgnoresExpectedPayColumn(t *testing.T) {
	input := `Date,Job Name,Job Type,Hours Worked,Pay,Expected Pay
"Jan 05, 2026",Deck repair,carpentry,6,480,455.20
`
	w := &recordingWriter{}
	ids, err := Import(strings.NewReader(input), w)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("imported %d rows, want 1", len(ids))
	}
}

func TestImportHeaderValidation(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"wrong column", "Date,Title,Job Type,Hours Worked,Pay\n"},
		{"too few columns", "Date,Job Name,Job Type\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Import(strings.NewReader(tc.input), &recordingWriter{}); err == nil {
				t.Error("Import accepted invalid header")
			}
		})
	}
}

func TestImportBadRows(t *testing.T) {
	header := "Date,Job Name,Job Type,Hours Worked,Pay\n"
	cases := []struct {
		name string
		row  string
	}{
		{"bad date", "someday,Job,misc,2,100\n"},
		{"empty name", `"Jan 05, 2026",,misc,2,100` + "\n"},
		{"empty type", `"Jan 05, 2026",Job,,2,100` + "\n"},
		{"bad hours", `"Jan 05, 2026",Job,misc,abc,100` + "\n"},
		{"negative hours", `"Jan 05, 2026",Job,misc,-2,100` + "\n"},
		{"bad pay", `"Jan 05, 2026",Job,misc,2,lots` + "\n"},
		{"negative pay", `"Jan 05, 2026",Job,misc,2,-100` + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Import(strings.NewReader(header+tc.row), &recordingWriter{}); err == nil {
				t.Error("Import accepted invalid row")
			}
		})
	}
}

func TestImportReportsPartialProgress(t *testing.T) {
	input := `Date,Job Name,Job Type,Hours Worked,Pay
"Jan 05, 2026",One,misc,1,100
"Jan 06, 2026",Two,misc,1,100
"Jan 07, 2026",Three,misc,1,100
`
	w := &recordingWriter{failAfter: 2}
	ids, err := Import(strings.NewReader(input), w)
	if err == nil {
		t.Fatal("Import succeeded despite insert failure")
	}
	if len(ids) != 2 {
		t.Errorf("returned %d inserted ids, want the 2 that landed", len(ids))
	}
}

func TestExport(t *testing.T) {
	pay := 480.0
	jobs := []storage.Job{
		{
			ID:          1,
			JobDate:     time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
			JobName:     "Deck repair",
			JobType:     "carpentry",
			HoursWorked: 6,
			Pay:         &pay,
		},
		{
			ID:          2,
			JobDate:     time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC),
			JobName:     "Site mockup",
			JobType:     "design",
			HoursWorked: 4,
		},
	}
	predictions := map[int64]float64{2: 333.333}

	var buf bytes.Buffer
	if err := Export(&buf, jobs, predictions); err != nil {
		t.Fatalf("Export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Date,Job Name,Job Type,Hours Worked,Pay,Expected Pay" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != `"Jan 05, 2026",Deck repair,carpentry,6.00,480.00,` {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[2] != `"Feb 10, 2026",Site mockup,design,4.00,,333.33` {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestExportRoundTripsThroughImport(t *testing.T) {
	pay := 250.0
	jobs := []storage.Job{{
		ID:          1,
		JobDate:     time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		JobName:     "Fence",
		JobType:     "carpentry",
		HoursWorked: 5,
		Pay:         &pay,
	}}

	var buf bytes.Buffer
	if err := Export(&buf, jobs, nil); err != nil {
		t.Fatalf("Export: %v", err)
	}

	w := &recordingWriter{}
	ids, err := Import(&buf, w)
	if err != nil {
		t.Fatalf("Import of exported CSV: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("imported %d rows, want 1", len(ids))
	}
	got := w.jobs[0]
	if got.JobName != "Fence" || got.Pay == nil || *got.Pay != 250 {
		t.Errorf("round-tripped job = %+v", got)
	}
}
