package metrics

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{Now: func() time.Time { return fixedNow }}
}

// at parses an RFC3339 timestamp or a bare date, failing the test
// on malformed input.
func at(t *testing.T, s string) time.Time {
	t.Helper()
	layout := time.RFC3339
	if len(s) == len("2006-01-02") {
		layout = "2006-01-02"
	}
	ts, err := time.Parse(layout, s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return ts
}

func window(start, end string) DateWindow {
	return DateWindow{Start: start, End: end}
}

// session builds a session with defaults; opts override fields.
func session(
	t *testing.T, id, patient, date string,
	opts ...func(*Session),
) Session {
	t.Helper()
	s := Session{
		ID:             id,
		PatientID:      patient,
		ProfessionalID: "dr-a",
		Date:           at(t, date),
		Type:           "individual",
		Status:         SessionCompleted,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func patient(
	t *testing.T, id, created string, opts ...func(*Patient),
) Patient {
	t.Helper()
	p := Patient{
		ID:        id,
		CreatedAt: at(t, created),
		Active:    true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func alert(
	t *testing.T, id, patientID, created string,
	opts ...func(*Alert),
) Alert {
	t.Helper()
	a := Alert{
		ID:        id,
		PatientID: patientID,
		Type:      "no-show",
		Urgency:   "medium",
		Status:    AlertPending,
		CreatedAt: at(t, created),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func withTone(tone string) func(*Session) {
	return func(s *Session) { s.EmotionalTone = tone }
}

func withRisk(level string) func(*Session) {
	return func(s *Session) { s.RiskLevel = level }
}

func withProfessional(id string) func(*Session) {
	return func(s *Session) { s.ProfessionalID = id }
}

func inactive(p *Patient) { p.Active = false }
