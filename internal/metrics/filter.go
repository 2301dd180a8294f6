package metrics

import (
	"time"

	"github.com/wesm/clinicview/internal/timeutil"
)

// Apply returns the records selected by f. Sessions and alerts
// are bounded to the window using the calendar day of their date
// in the filter timezone; records with a zero date are dropped.
// Patients are not date bounded: the window only affects which of
// them count as new.
//
// The input slices are never modified and the result never
// shares backing arrays with them.
func Apply(recs Records, f Filter) Records {
	loc := f.location()
	out := Records{
		Sessions: make([]Session, 0, len(recs.Sessions)),
		Patients: make([]Patient, 0, len(recs.Patients)),
		Alerts:   make([]Alert, 0, len(recs.Alerts)),
	}
	for _, s := range recs.Sessions {
		if f.matchSession(s, loc) {
			out.Sessions = append(out.Sessions, s)
		}
	}
	for _, p := range recs.Patients {
		if f.matchPatient(p) {
			out.Patients = append(out.Patients, p)
		}
	}
	for _, a := range recs.Alerts {
		if f.matchAlert(a, loc) {
			out.Alerts = append(out.Alerts, a)
		}
	}
	return out
}

func (f Filter) location() *time.Location {
	return timeutil.LoadLocation(f.Timezone)
}

// matches reports whether an optional selector accepts value.
func matches(selector, value string) bool {
	return selector == "" || selector == value
}

func (f Filter) matchSession(s Session, loc *time.Location) bool {
	if !f.Window.Contains(timeutil.Day(s.Date, loc)) {
		return false
	}
	return matches(f.ProfessionalID, s.ProfessionalID) &&
		matches(f.PatientID, s.PatientID) &&
		matches(f.SessionType, s.Type) &&
		matches(f.EmotionalTone, s.EmotionalTone) &&
		matches(f.Status, s.Status)
}

func (f Filter) matchPatient(p Patient) bool {
	if !p.Active && !f.IncludeInactive {
		return false
	}
	return matches(f.PatientID, p.ID) &&
		matches(f.EmotionalTone, p.EmotionalState)
}

func (f Filter) matchAlert(a Alert, loc *time.Location) bool {
	if !f.Window.Contains(timeutil.Day(a.CreatedAt, loc)) {
		return false
	}
	return matches(f.PatientID, a.PatientID) &&
		matches(f.AlertType, a.Type)
}
