// Package timeutil normalizes the date representations found in
// exported clinic documents into time.Time values.
package timeutil

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DateLayout is the calendar-day layout used for windows and
// series keys.
const DateLayout = "2006-01-02"

// epochMillisCutoff separates epoch seconds from epoch
// milliseconds. Second values above it would be past year 5000.
const epochMillisCutoff = 100_000_000_000

var stringLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// Ptr formats t as RFC3339Nano in UTC and returns a pointer to
// the string, or nil for the zero time.
func Ptr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// Format formats t as RFC3339Nano in UTC, or "" for the zero
// time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Parse parses an ISO-8601 style timestamp or date. Values
// without a zone are read as UTC.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FromJSON normalizes a JSON date value. Accepted shapes are ISO
// strings, epoch numbers in seconds or milliseconds, and
// timestamp wrapper objects carrying seconds/nanoseconds (with or
// without a leading underscore). Anything else reports false.
func FromJSON(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		return Parse(v.Str)
	case gjson.Number:
		return fromEpoch(v.Int())
	case gjson.JSON:
		if !v.IsObject() {
			return time.Time{}, false
		}
		secs := firstOf(v, "seconds", "_seconds")
		if !secs.Exists() || secs.Type != gjson.Number {
			return time.Time{}, false
		}
		nanos := firstOf(v, "nanoseconds", "_nanoseconds", "nanos")
		if secs.Int() <= 0 {
			return time.Time{}, false
		}
		return time.Unix(secs.Int(), nanos.Int()).UTC(), true
	default:
		return time.Time{}, false
	}
}

func fromEpoch(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n >= epochMillisCutoff {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func firstOf(v gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// LoadLocation returns the named location, or UTC when the name
// is empty or unknown.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Day returns the calendar day of t in loc, or "" for the zero
// time.
func Day(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(DateLayout)
}

// DaysBetween returns the number of calendar days from a to b.
// Both must be YYYY-MM-DD dates.
func DaysBetween(a, b string) (int, bool) {
	ta, err := time.Parse(DateLayout, a)
	if err != nil {
		return 0, false
	}
	tb, err := time.Parse(DateLayout, b)
	if err != nil {
		return 0, false
	}
	return int((tb.Unix() - ta.Unix()) / 86400), true
}
