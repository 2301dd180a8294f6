package metrics

import (
	"time"

	"github.com/wesm/clinicview/internal/timeutil"
)

// dayCounts buckets dates by calendar day in loc, ignoring zero
// dates.
func dayCounts(dates []time.Time, loc *time.Location) map[string]int {
	counts := make(map[string]int, len(dates))
	for _, d := range dates {
		if day := timeutil.Day(d, loc); day != "" {
			counts[day]++
		}
	}
	return counts
}

// buildSeries emits one point per day of w, zero-filled.
func buildSeries(w DateWindow, counts map[string]int) []TimeSeriesPoint {
	days := w.Days()
	series := make([]TimeSeriesPoint, 0, len(days))
	for _, day := range days {
		series = append(series, TimeSeriesPoint{
			Date:  day,
			Count: counts[day],
		})
	}
	return series
}

// SessionSeries counts sessions per day across the window.
func SessionSeries(
	sessions []Session, w DateWindow, loc *time.Location,
) []TimeSeriesPoint {
	dates := make([]time.Time, len(sessions))
	for i, s := range sessions {
		dates[i] = s.Date
	}
	return buildSeries(w, dayCounts(dates, loc))
}

// NewPatientSeries counts patients created per day across the
// window.
func NewPatientSeries(
	patients []Patient, w DateWindow, loc *time.Location,
) []TimeSeriesPoint {
	dates := make([]time.Time, len(patients))
	for i, p := range patients {
		dates[i] = p.CreatedAt
	}
	return buildSeries(w, dayCounts(dates, loc))
}

// SeriesTotal sums a series.
func SeriesTotal(series []TimeSeriesPoint) int {
	n := 0
	for _, p := range series {
		n += p.Count
	}
	return n
}
