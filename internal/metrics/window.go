package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/wesm/clinicview/internal/timeutil"
)

var (
	// ErrInvalidDate is returned when a window bound is not a
	// YYYY-MM-DD date.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidDateRange is returned when a window starts after
	// it ends.
	ErrInvalidDateRange = errors.New("invalid date range")
)

// DateWindow is an inclusive range of calendar days.
type DateWindow struct {
	Start string `json:"start"` // YYYY-MM-DD
	End   string `json:"end"`   // YYYY-MM-DD
}

// NewDateWindow builds a window and validates it.
func NewDateWindow(start, end string) (DateWindow, error) {
	w := DateWindow{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return DateWindow{}, err
	}
	return w, nil
}

// Validate checks both bounds parse and start <= end.
func (w DateWindow) Validate() error {
	s, err := time.Parse(timeutil.DateLayout, w.Start)
	if err != nil {
		return fmt.Errorf("%w: start %q", ErrInvalidDate, w.Start)
	}
	e, err := time.Parse(timeutil.DateLayout, w.End)
	if err != nil {
		return fmt.Errorf("%w: end %q", ErrInvalidDate, w.End)
	}
	if s.After(e) {
		return fmt.Errorf(
			"%w: start %s is after end %s",
			ErrInvalidDateRange, w.Start, w.End,
		)
	}
	return nil
}

// Len returns the number of days in the window, or 0 when the
// window is invalid.
func (w DateWindow) Len() int {
	n, ok := timeutil.DaysBetween(w.Start, w.End)
	if !ok || n < 0 {
		return 0
	}
	return n + 1
}

// Days lists every day in the window in ascending order.
func (w DateWindow) Days() []string {
	start, err := time.Parse(timeutil.DateLayout, w.Start)
	if err != nil {
		return nil
	}
	end, err := time.Parse(timeutil.DateLayout, w.End)
	if err != nil {
		return nil
	}
	days := make([]string, 0, w.Len())
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(timeutil.DateLayout))
	}
	return days
}

// Contains reports whether day (YYYY-MM-DD) falls inside the
// window. Empty days are never contained.
func (w DateWindow) Contains(day string) bool {
	return day != "" && day >= w.Start && day <= w.End
}

// Previous returns the window of equal length that ends the day
// before w starts.
func (w DateWindow) Previous() DateWindow {
	start, err := time.Parse(timeutil.DateLayout, w.Start)
	if err != nil {
		return DateWindow{}
	}
	n := w.Len()
	return DateWindow{
		Start: start.AddDate(0, 0, -n).Format(timeutil.DateLayout),
		End:   start.AddDate(0, 0, -1).Format(timeutil.DateLayout),
	}
}

// DefaultWindowDays is the length of the window used when a
// request names no dates.
const DefaultWindowDays = 30

// Trailing returns the window of days calendar days ending on
// the day of now in loc. A nil loc means UTC.
func Trailing(now time.Time, days int, loc *time.Location) DateWindow {
	if loc == nil {
		loc = time.UTC
	}
	if days < 1 {
		days = 1
	}
	end := now.In(loc)
	return DateWindow{
		Start: end.AddDate(0, 0, -(days - 1)).Format(timeutil.DateLayout),
		End:   end.Format(timeutil.DateLayout),
	}
}

// Resolve fills missing bounds: an empty end defaults to today
// in loc and an empty start to DefaultWindowDays before end. The
// result is not validated.
func Resolve(start, end string, now time.Time, loc *time.Location) DateWindow {
	if end == "" {
		end = Trailing(now, 1, loc).End
	}
	if start == "" {
		t, err := time.Parse(timeutil.DateLayout, end)
		if err != nil {
			return DateWindow{Start: start, End: end}
		}
		start = t.AddDate(0, 0, -(DefaultWindowDays - 1)).
			Format(timeutil.DateLayout)
	}
	return DateWindow{Start: start, End: end}
}
