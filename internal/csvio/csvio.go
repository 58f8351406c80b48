// Package csvio imports and exports the job ledger as CSV, matching the
// column layout of the original spreadsheet exports.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mtorell/workledger/internal/storage"
)

const displayDateLayout = "Jan 02, 2006"

var importHeader = []string{"Date", "Job Name", "Job Type", "Hours Worked", "Pay"}

// JobWriter is the insert side of the ledger. *storage.Store satisfies it.
type JobWriter interface {
	InsertJob(j storage.Job) (int64, error)
}

// Import reads CSV rows and inserts them into the ledger. It returns the ids
// of the inserted rows. The header row is required; a trailing "Expected
// Pay" column (present in files produced by Export) is ignored. Dates accept
// both "Jan 02, 2006" and "2006-01-02"; pay tolerates "$", commas and
// spaces, and an empty pay becomes null.
func Import(r io.Reader, store JobWriter) ([]int64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // validated per row below
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) < len(importHeader) {
		return nil, fmt.Errorf("CSV header has %d columns, want at least %d", len(header), len(importHeader))
	}
	for i, want := range importHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, fmt.Errorf("unexpected CSV column %d: got %q, want %q", i+1, header[i], want)
		}
	}

	var ids []int64
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return ids, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		if len(record) < len(importHeader) {
			return ids, fmt.Errorf("CSV line %d has %d columns, want at least %d", line, len(record), len(importHeader))
		}

		job, err := parseRow(record)
		if err != nil {
			return ids, fmt.Errorf("CSV line %d: %w", line, err)
		}

		id, err := store.InsertJob(job)
		if err != nil {
			return ids, fmt.Errorf("inserting CSV line %d: %w", line, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseRow(record []string) (storage.Job, error) {
	date, err := parseDate(strings.TrimSpace(record[0]))
	if err != nil {
		return storage.Job{}, err
	}

	name := strings.TrimSpace(record[1])
	if name == "" {
		return storage.Job{}, fmt.Errorf("job name is empty")
	}
	jobType := strings.TrimSpace(record[2])
	if jobType == "" {
		return storage.Job{}, fmt.Errorf("job type is empty")
	}

	hours, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return storage.Job{}, fmt.Errorf("invalid hours worked %q", record[3])
	}
	if hours < 0 {
		return storage.Job{}, fmt.Errorf("hours worked is negative")
	}

	pay, err := parsePay(record[4])
	if err != nil {
		return storage.Job{}, err
	}

	return storage.Job{
		JobDate:     date,
		JobName:     name,
		JobType:     jobType,
		HoursWorked: hours,
		Pay:         pay,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{displayDateLayout, "2006-01-02"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func parsePay(s string) (*float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if cleaned == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid pay %q", s)
	}
	if v < 0 {
		return nil, fmt.Errorf("pay is negative")
	}
	return &v, nil
}

// Export writes the given jobs as CSV, with a trailing predicted-pay column
// filled from predictions where available.
func Export(w io.Writer, jobs []storage.Job, predictions map[int64]float64) error {
	cw := csv.NewWriter(w)

	header := append(append([]string(nil), importHeader...), "Expected Pay")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, j := range jobs {
		pay := ""
		if j.Pay != nil {
			pay = strconv.FormatFloat(*j.Pay, 'f', 2, 64)
		}
		predicted := ""
		if v, ok := predictions[j.ID]; ok {
			predicted = strconv.FormatFloat(v, 'f', 2, 64)
		}
		record := []string{
			j.JobDate.Format(displayDateLayout),
			j.JobName,
			j.JobType,
			strconv.FormatFloat(j.HoursWorked, 'f', 2, 64),
			pay,
			predicted,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
