// Package metrics derives analytics snapshots from clinic
// activity records bounded to a date window. Everything in this
// package is pure: callers materialize records first, then call
// Compute or Compare.
package metrics

import "time"

// Session is one clinical session as loaded from the record
// store. A zero Date means the source date was missing or could
// not be parsed.
type Session struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	ProfessionalID string    `json:"professional_id"`
	Date           time.Time `json:"date"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	EmotionalTone  string    `json:"emotional_tone,omitempty"`
	RiskLevel      string    `json:"risk_level,omitempty"`
}

// Patient is a patient profile.
type Patient struct {
	ID                 string    `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	Active             bool      `json:"active"`
	EmotionalState     string    `json:"emotional_state,omitempty"`
	ConsultationMotive string    `json:"consultation_motive,omitempty"`
}

// Alert is a clinical alert raised for a patient.
type Alert struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	Type      string    `json:"type"`
	Urgency   string    `json:"urgency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Records groups the three collections fed into the pipeline.
type Records struct {
	Sessions []Session `json:"sessions"`
	Patients []Patient `json:"patients"`
	Alerts   []Alert   `json:"alerts"`
}

// Filter selects the records a snapshot is computed over. Empty
// string fields are not applied.
type Filter struct {
	Window          DateWindow `json:"window"`
	ProfessionalID  string     `json:"professional_id,omitempty"`
	PatientID       string     `json:"patient_id,omitempty"`
	SessionType     string     `json:"session_type,omitempty"`
	EmotionalTone   string     `json:"emotional_tone,omitempty"`
	AlertType       string     `json:"alert_type,omitempty"`
	Status          string     `json:"status,omitempty"`
	IncludeInactive bool       `json:"include_inactive,omitempty"`
	Timezone        string     `json:"timezone,omitempty"` // IANA, day bucketing
}

// FrequencyMap counts occurrences of open-ended categorical
// values.
type FrequencyMap map[string]int

// Total returns the sum of all counts.
func (m FrequencyMap) Total() int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// TimeSeriesPoint is one calendar-day bucket.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// EmotionalTrendPoint is the share of one tone among a day's
// tagged sessions.
type EmotionalTrendPoint struct {
	Date       string  `json:"date"`
	Tone       string  `json:"tone"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Risk levels assigned by the external analysis step.
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

// Statuses with headline meaning. Other values are accepted and
// counted in distributions only.
const (
	PatientActive    = "active"
	SessionCompleted = "completed"
	AlertPending     = "pending"
)
