// Package stats computes the dashboard aggregates over the job ledger.
package stats

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/mtorell/workledger/internal/storage"
)

// Source is the slice of the ledger the aggregates are computed from.
// *storage.Store satisfies it.
type Source interface {
	CountJobs() (int64, error)
	WeeklyTotals() ([]float64, error)
	Pays() ([]float64, error)
	PayAndHoursTotals() (pay float64, hours float64, err error)
	PaySeries(from, to time.Time) ([]storage.PayPoint, error)
}

// Summary holds the overall pay statistics. All money fields are zero when
// the ledger has no paid entries.
type Summary struct {
	Jobs            int64   `json:"jobs"`
	AvgWeeklyPay    float64 `json:"avg_weekly_pay"`
	MedianWeeklyPay float64 `json:"median_weekly_pay"`
	AvgPayPerJob    float64 `json:"avg_pay_per_job"`
	MedianPayPerJob float64 `json:"median_pay_per_job"`
	HourlyRate      float64 `json:"hourly_rate"`
}

// Summarize computes the overall statistics.
func Summarize(src Source) (Summary, error) {
	var sum Summary

	count, err := src.CountJobs()
	if err != nil {
		return Summary{}, err
	}
	sum.Jobs = count
	if count == 0 {
		return sum, nil
	}

	weekly, err := src.WeeklyTotals()
	if err != nil {
		return Summary{}, err
	}
	if len(weekly) > 0 {
		sum.AvgWeeklyPay = mean(weekly)
		sum.MedianWeeklyPay = median(weekly)
	}

	pays, err := src.Pays()
	if err != nil {
		return Summary{}, err
	}
	if len(pays) > 0 {
		sum.AvgPayPerJob = mean(pays)
		sum.MedianPayPerJob = median(pays)
	}

	totalPay, totalHours, err := src.PayAndHoursTotals()
	if err != nil {
		return Summary{}, err
	}
	if totalHours > 0 {
		sum.HourlyRate = totalPay / totalHours
	}

	return sum, nil
}

// Point is one step of the cumulative pay series.
type Point struct {
	Date          time.Time `json:"date"`
	CumulativePay float64   `json:"cumulative_pay"`
}

// CumulativeSeries returns the running pay total over time for the given
// interval: "all", "ytd", or a four-digit year.
func CumulativeSeries(src Source, interval string, now time.Time) ([]Point, error) {
	var from, to time.Time
	switch interval {
	case "", "all":
		// unbounded
	case "ytd":
		from = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		year, err := strconv.Atoi(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q", interval)
		}
		from = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to = time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}

	rows, err := src.PaySeries(from, to)
	if err != nil {
		return nil, err
	}

	points := make([]Point, len(rows))
	var running float64
	for i, r := range rows {
		running += r.Pay
		points[i] = Point{Date: r.Date, CumulativePay: running}
	}
	return points, nil
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
