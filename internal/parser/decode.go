package parser

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/metrics"
	"github.com/wesm/clinicview/internal/timeutil"
)

// firstString returns the first non-empty scalar found at paths.
// Numbers are returned in their JSON spelling.
func firstString(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		r := v.Get(p)
		switch r.Type {
		case gjson.String:
			if r.Str != "" {
				return r.Str
			}
		case gjson.Number:
			return r.Raw
		}
	}
	return ""
}

// firstDate returns the first parseable date found at paths.
func firstDate(v gjson.Result, paths ...string) (time.Time, bool) {
	for _, p := range paths {
		r := v.Get(p)
		if !r.Exists() {
			continue
		}
		if t, ok := timeutil.FromJSON(r); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// DecodeSession maps a stored session document onto the engine's
// session type. AI-derived fields are read from the nested
// analysis object first, then from top-level fields.
func DecodeSession(id, body string) metrics.Session {
	v := gjson.Parse(body)
	s := metrics.Session{
		ID:             id,
		PatientID:      firstString(v, "patientId", "patient_id"),
		ProfessionalID: firstString(v, "professionalId", "professional_id", "psychologistId"),
		Type:           firstString(v, "type", "sessionType", "session_type"),
		Status:         firstString(v, "status"),
		EmotionalTone: firstString(v,
			"aiAnalysis.emotionalTone", "emotionalTone", "emotional_tone"),
		RiskLevel: firstString(v,
			"aiAnalysis.riskLevel", "riskLevel", "risk_level"),
	}
	s.Date, _ = firstDate(v, dateKeys[db.CollectionSessions]...)
	return s
}

// DecodePatient maps a stored patient document onto the engine's
// patient type. Patients without any status field are active.
func DecodePatient(id, body string) metrics.Patient {
	v := gjson.Parse(body)
	p := metrics.Patient{
		ID: id,
		EmotionalState: firstString(v,
			"emotionalState", "emotional_state", "aiAnalysis.emotionalState"),
		ConsultationMotive: firstString(v,
			"consultationMotive", "consultationReason", "consultation_reason"),
		Active: patientActive(v),
	}
	p.CreatedAt, _ = firstDate(v, dateKeys[db.CollectionPatients]...)
	return p
}

func patientActive(v gjson.Result) bool {
	for _, key := range []string{"isActive", "active"} {
		if r := v.Get(key); r.IsBool() {
			return r.Bool()
		}
	}
	if status := firstString(v, "status"); status != "" {
		return strings.EqualFold(status, metrics.PatientActive)
	}
	return true
}

// DecodeAlert maps a stored alert document onto the engine's
// alert type.
func DecodeAlert(id, body string) metrics.Alert {
	v := gjson.Parse(body)
	a := metrics.Alert{
		ID:        id,
		PatientID: firstString(v, "patientId", "patient_id"),
		Type:      firstString(v, "type", "alertType", "alert_type"),
		Urgency:   firstString(v, "urgency", "priority"),
		Status:    firstString(v, "status"),
	}
	a.CreatedAt, _ = firstDate(v, dateKeys[db.CollectionAlerts]...)
	return a
}
