package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// Job is a single commission work entry. Pay is nil until it has been
// entered or computed.
type Job struct {
	ID          int64
	JobDate     time.Time
	JobName     string
	JobType     string
	HoursWorked float64
	Pay         *float64
	CreatedAt   time.Time
}

// ListFilter narrows ListJobs results. Zero values mean "no constraint".
type ListFilter struct {
	NameSearch string // substring match on job_name
	JobType    string
	DateFrom   time.Time
	DateTo     time.Time
	HoursMin   *float64
	HoursMax   *float64
	PayMin     *float64
	PayMax     *float64
}

// SortKey identifies a ListJobs ordering. The zero value sorts by date,
// newest first.
type SortKey string

const (
	SortDateDesc  SortKey = "date_desc"
	SortDateAsc   SortKey = "date_asc"
	SortNameAsc   SortKey = "name_asc"
	SortNameDesc  SortKey = "name_desc"
	SortTypeAsc   SortKey = "type_asc"
	SortTypeDesc  SortKey = "type_desc"
	SortHoursAsc  SortKey = "hours_asc"
	SortHoursDesc SortKey = "hours_desc"
	SortPayAsc    SortKey = "pay_asc"
	SortPayDesc   SortKey = "pay_desc"
)

var sortClauses = map[SortKey]string{
	SortDateDesc:  "job_date DESC, id DESC",
	SortDateAsc:   "job_date ASC, id ASC",
	SortNameAsc:   "job_name COLLATE NOCASE ASC",
	SortNameDesc:  "job_name COLLATE NOCASE DESC",
	SortTypeAsc:   "job_type COLLATE NOCASE ASC",
	SortTypeDesc:  "job_type COLLATE NOCASE DESC",
	SortHoursAsc:  "hours_worked ASC",
	SortHoursDesc: "hours_worked DESC",
	SortPayAsc:    "pay ASC",
	SortPayDesc:   "pay DESC",
}

const jobColumns = "id, job_date, job_name, job_type, hours_worked, pay, created_at"

// InsertJob stores a new job entry and returns its assigned id.
func (s *Store) InsertJob(j Job) (int64, error) {
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.Exec(`
		INSERT INTO jobs (job_date, job_name, job_type, hours_worked, pay, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		j.JobDate.Format(dateLayout), j.JobName, j.JobType, j.HoursWorked,
		payArg(j.Pay), createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateJob overwrites the stored entry with the given id.
func (s *Store) UpdateJob(j Job) error {
	res, err := s.db.Exec(`
		UPDATE jobs SET job_date = ?, job_name = ?, job_type = ?, hours_worked = ?, pay = ?
		WHERE id = ?`,
		j.JobDate.Format(dateLayout), j.JobName, j.JobType, j.HoursWorked, payArg(j.Pay), j.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteJobs removes the entries with the given ids. Unknown ids are ignored;
// the number of rows actually removed is returned.
func (s *Store) DeleteJobs(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.Exec("DELETE FROM jobs WHERE id IN (?"+placeholders+")", args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetJob returns the entry with the given id, or ErrNotFound.
func (s *Store) GetJob(id int64) (Job, error) {
	row := s.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	return j, err
}

// GetJobsByIDs returns the entries matching the given ids. Ids that do not
// exist are simply absent from the result.
func (s *Store) GetJobsByIDs(ids []int64) ([]Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query("SELECT "+jobColumns+" FROM jobs WHERE id IN (?"+placeholders+") ORDER BY id ASC", args...)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListJobs returns entries matching the filter, ordered by the sort key.
func (s *Store) ListJobs(f ListFilter, sort SortKey) ([]Job, error) {
	var conds []string
	var args []any

	if f.NameSearch != "" {
		conds = append(conds, "job_name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.NameSearch)+"%")
	}
	if f.JobType != "" {
		conds = append(conds, "job_type = ?")
		args = append(args, f.JobType)
	}
	if !f.DateFrom.IsZero() {
		conds = append(conds, "job_date >= ?")
		args = append(args, f.DateFrom.Format(dateLayout))
	}
	if !f.DateTo.IsZero() {
		conds = append(conds, "job_date <= ?")
		args = append(args, f.DateTo.Format(dateLayout))
	}
	if f.HoursMin != nil {
		conds = append(conds, "hours_worked >= ?")
		args = append(args, *f.HoursMin)
	}
	if f.HoursMax != nil {
		conds = append(conds, "hours_worked <= ?")
		args = append(args, *f.HoursMax)
	}
	if f.PayMin != nil {
		conds = append(conds, "pay >= ?")
		args = append(args, *f.PayMin)
	}
	if f.PayMax != nil {
		conds = append(conds, "pay <= ?")
		args = append(args, *f.PayMax)
	}

	query := "SELECT " + jobColumns + " FROM jobs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	order, ok := sortClauses[sort]
	if !ok {
		order = sortClauses[SortDateDesc]
	}
	query += " ORDER BY " + order

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// CountJobs returns the total number of job entries.
func (s *Store) CountJobs() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&n)
	return n, err
}

// DistinctJobTypes returns all job types present in the ledger, sorted.
func (s *Store) DistinctJobTypes() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT job_type FROM jobs ORDER BY job_type ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// Years returns the distinct years with at least one entry, newest first.
func (s *Store) Years() ([]int, error) {
	rows, err := s.db.Query("SELECT DISTINCT CAST(strftime('%Y', job_date) AS INTEGER) AS y FROM jobs ORDER BY y DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// Clear deletes every job entry and resets id assignment.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM jobs"); err != nil {
		return err
	}
	// Fresh databases have no sqlite_sequence row yet; ignore its absence.
	if _, err := s.db.Exec("DELETE FROM sqlite_sequence WHERE name = 'jobs'"); err != nil {
		return err
	}
	return nil
}

// WeeklyTotals returns the summed pay per ISO-style week (year-week bucket),
// considering only entries with a recorded pay.
func (s *Store) WeeklyTotals() ([]float64, error) {
	rows, err := s.db.Query(`
		SELECT SUM(pay) FROM jobs
		WHERE pay IS NOT NULL
		GROUP BY strftime('%Y-%W', job_date)`)
	if err != nil {
		return nil, err
	}
	return collectFloats(rows)
}

// Pays returns every recorded pay value.
func (s *Store) Pays() ([]float64, error) {
	rows, err := s.db.Query("SELECT pay FROM jobs WHERE pay IS NOT NULL")
	if err != nil {
		return nil, err
	}
	return collectFloats(rows)
}

// PayAndHoursTotals returns the sum of recorded pay and the hours worked on
// those entries.
func (s *Store) PayAndHoursTotals() (pay float64, hours float64, err error) {
	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(pay), 0), COALESCE(SUM(hours_worked), 0)
		FROM jobs WHERE pay IS NOT NULL`).Scan(&pay, &hours)
	return pay, hours, err
}

// PayPoint is a dated pay amount used for cumulative charting.
type PayPoint struct {
	Date time.Time
	Pay  float64
}

// PaySeries returns dated pay values in ascending date order, optionally
// bounded by from/to (zero values mean unbounded).
func (s *Store) PaySeries(from, to time.Time) ([]PayPoint, error) {
	query := "SELECT job_date, pay FROM jobs WHERE pay IS NOT NULL"
	var args []any
	if !from.IsZero() {
		query += " AND job_date >= ?"
		args = append(args, from.Format(dateLayout))
	}
	if !to.IsZero() {
		query += " AND job_date <= ?"
		args = append(args, to.Format(dateLayout))
	}
	query += " ORDER BY job_date ASC, id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []PayPoint
	for rows.Next() {
		var dateStr string
		var pay float64
		if err := rows.Scan(&dateStr, &pay); err != nil {
			return nil, err
		}
		d, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing job_date: %w", err)
		}
		points = append(points, PayPoint{Date: d, Pay: pay})
	}
	return points, rows.Err()
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (Job, error) {
	var j Job
	var jobDate, createdAt string
	var pay sql.NullFloat64
	if err := r.Scan(&j.ID, &jobDate, &j.JobName, &j.JobType, &j.HoursWorked, &pay, &createdAt); err != nil {
		return Job{}, err
	}
	d, err := time.Parse(dateLayout, jobDate)
	if err != nil {
		return Job{}, fmt.Errorf("parsing job_date: %w", err)
	}
	j.JobDate = d
	c, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Job{}, fmt.Errorf("parsing created_at: %w", err)
	}
	j.CreatedAt = c
	if pay.Valid {
		v := pay.Float64
		j.Pay = &v
	}
	return j, nil
}

func collectJobs(rows *sql.Rows) ([]Job, error) {
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func collectFloats(rows *sql.Rows) ([]float64, error) {
	defer rows.Close()
	var vals []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, rows.Err()
}

func payArg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
