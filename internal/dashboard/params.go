package dashboard

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wesm/clinicview/internal/metrics"
)

var (
	// ErrInvalidTimezone is returned for unknown IANA names.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrUnknownParam is returned for parameter names that
	// select nothing.
	ErrUnknownParam = errors.New("unknown parameter")
	// ErrInvalidParam is returned for malformed values.
	ErrInvalidParam = errors.New("invalid parameter")
	// ErrWindowTooLong is returned for windows longer than
	// MaxWindowDays.
	ErrWindowTooLong = errors.New("date window too long")
)

// MaxWindowDays bounds the window a query may ask for. Every day
// of the window becomes a point in each daily series.
const MaxWindowDays = 3660

// Query parameter names shared by the HTTP API and the CLI.
const (
	ParamFrom            = "from"
	ParamTo              = "to"
	ParamCenter          = "center"
	ParamProfessional    = "professional"
	ParamPatient         = "patient"
	ParamType            = "type"
	ParamTone            = "tone"
	ParamAlertType       = "alert_type"
	ParamStatus          = "status"
	ParamIncludeInactive = "include_inactive"
	ParamTimezone        = "timezone"
)

// QueryParams lists every recognized parameter.
var QueryParams = []string{
	ParamFrom, ParamTo, ParamCenter, ParamProfessional, ParamPatient,
	ParamType, ParamTone, ParamAlertType, ParamStatus,
	ParamIncludeInactive, ParamTimezone,
}

// Query is a parsed analytics request.
type Query struct {
	CenterID string
	Filter   metrics.Filter
}

// ParseQuery builds a Query from v. Center and timezone fall back
// to defaults. Missing dates resolve to the trailing window
// ending today in the query timezone. The window is validated,
// so date errors wrap metrics.ErrInvalidDate or
// metrics.ErrInvalidDateRange, and windows longer than
// MaxWindowDays fail with ErrWindowTooLong.
func ParseQuery(v url.Values, defaults Query, now time.Time) (Query, error) {
	q := defaults
	if c := strings.TrimSpace(v.Get(ParamCenter)); c != "" {
		q.CenterID = c
	}

	tz := strings.TrimSpace(v.Get(ParamTimezone))
	if tz == "" {
		tz = defaults.Filter.Timezone
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
	}

	f := metrics.Filter{
		ProfessionalID: strings.TrimSpace(v.Get(ParamProfessional)),
		PatientID:      strings.TrimSpace(v.Get(ParamPatient)),
		SessionType:    strings.TrimSpace(v.Get(ParamType)),
		EmotionalTone:  strings.TrimSpace(v.Get(ParamTone)),
		AlertType:      strings.TrimSpace(v.Get(ParamAlertType)),
		Status:         strings.TrimSpace(v.Get(ParamStatus)),
		Timezone:       tz,
	}
	if s := v.Get(ParamIncludeInactive); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Query{}, fmt.Errorf(
				"%w: include_inactive=%q", ErrInvalidParam, s,
			)
		}
		f.IncludeInactive = b
	} else {
		f.IncludeInactive = defaults.Filter.IncludeInactive
	}

	f.Window = metrics.Resolve(
		strings.TrimSpace(v.Get(ParamFrom)),
		strings.TrimSpace(v.Get(ParamTo)),
		now, loc,
	)
	if err := f.Window.Validate(); err != nil {
		return Query{}, err
	}
	if n := f.Window.Len(); n > MaxWindowDays {
		return Query{}, fmt.Errorf(
			"%w: %d days, at most %d allowed",
			ErrWindowTooLong, n, MaxWindowDays,
		)
	}
	q.Filter = f
	return q, nil
}

// ApplyEdits merges key=value tokens into v. An empty value
// removes the key. Unknown keys are rejected and leave v as it
// was.
func ApplyEdits(v url.Values, tokens []string) error {
	known := make(map[string]bool, len(QueryParams))
	for _, p := range QueryParams {
		known[p] = true
	}
	type edit struct{ key, value string }
	edits := make([]edit, 0, len(tokens))
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return fmt.Errorf("%w: %q is not key=value", ErrInvalidParam, tok)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if !known[key] {
			return fmt.Errorf("%w: %s", ErrUnknownParam, key)
		}
		edits = append(edits, edit{key, value})
	}
	for _, e := range edits {
		if e.value == "" {
			v.Del(e.key)
			continue
		}
		v.Set(e.key, e.value)
	}
	return nil
}
