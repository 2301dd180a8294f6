package metrics

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
)

func TestApplySessions(t *testing.T) {
	recs := Records{Sessions: []Session{
		session(t, "s1", "p1", "2024-06-01T09:00:00Z"),
		session(t, "s2", "p1", "2024-06-03T09:00:00Z",
			withProfessional("dr-b"), withTone("anxious")),
		session(t, "s3", "p2", "2024-06-05T09:00:00Z",
			func(s *Session) { s.Type = "group"; s.Status = "cancelled" }),
		session(t, "s4", "p2", "2024-05-31T23:59:59Z"),
		{ID: "s5", PatientID: "p3"}, // unparseable date
	}}

	ids := func(ss []Session) []string {
		out := make([]string, 0, len(ss))
		for _, s := range ss {
			out = append(out, s.ID)
		}
		return out
	}

	base := Filter{Window: window("2024-06-01", "2024-06-07")}
	tests := []struct {
		name   string
		mutate func(*Filter)
		want   []string
	}{
		{"window only", func(*Filter) {}, []string{"s1", "s2", "s3"}},
		{"professional", func(f *Filter) { f.ProfessionalID = "dr-b" }, []string{"s2"}},
		{"patient", func(f *Filter) { f.PatientID = "p2" }, []string{"s3"}},
		{"session type", func(f *Filter) { f.SessionType = "group" }, []string{"s3"}},
		{"tone", func(f *Filter) { f.EmotionalTone = "anxious" }, []string{"s2"}},
		{"status", func(f *Filter) { f.Status = SessionCompleted }, []string{"s1", "s2"}},
		{"narrow window", func(f *Filter) {
			f.Window = window("2024-06-03", "2024-06-03")
		}, []string{"s2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			tt.mutate(&f)
			got := Apply(recs, f)
			assert.Equal(t, tt.want, ids(got.Sessions))
		})
	}
}

func TestApplyTimezoneShiftsDays(t *testing.T) {
	recs := Records{Sessions: []Session{
		// 23:30 UTC on May 31 is June 1 in Madrid (UTC+2).
		session(t, "s1", "p1", "2024-05-31T23:30:00Z"),
	}}
	f := Filter{Window: window("2024-06-01", "2024-06-01")}

	assert.Empty(t, Apply(recs, f).Sessions)

	f.Timezone = "Europe/Madrid"
	assert.Len(t, Apply(recs, f).Sessions, 1)
}

func TestApplyPatients(t *testing.T) {
	recs := Records{Patients: []Patient{
		patient(t, "p1", "2023-01-01"),
		patient(t, "p2", "2024-06-02", inactive),
		patient(t, "p3", "2024-06-03", func(p *Patient) {
			p.EmotionalState = "calm"
		}),
		{ID: "p4", Active: true}, // no creation date
	}}
	f := Filter{Window: window("2024-06-01", "2024-06-07")}

	got := Apply(recs, f)
	assert.Len(t, got.Patients, 3, "inactive excluded, undated kept")

	f.IncludeInactive = true
	assert.Len(t, Apply(recs, f).Patients, 4)

	f.EmotionalTone = "calm"
	got = Apply(recs, f)
	if assert.Len(t, got.Patients, 1) {
		assert.Equal(t, "p3", got.Patients[0].ID)
	}
}

func TestApplyAlerts(t *testing.T) {
	recs := Records{Alerts: []Alert{
		alert(t, "a1", "p1", "2024-06-02T10:00:00Z"),
		alert(t, "a2", "p2", "2024-06-02T10:00:00Z", func(a *Alert) {
			a.Type = "risk"
		}),
		alert(t, "a3", "p1", "2024-07-02T10:00:00Z"),
		{ID: "a4", PatientID: "p1", Type: "risk"},
	}}
	f := Filter{Window: window("2024-06-01", "2024-06-07")}
	assert.Len(t, Apply(recs, f).Alerts, 2)

	f.AlertType = "risk"
	got := Apply(recs, f).Alerts
	if assert.Len(t, got, 1) {
		assert.Equal(t, "a2", got[0].ID)
	}
}

func TestApplyDoesNotAliasInput(t *testing.T) {
	in := []Session{session(t, "s1", "p1", "2024-06-01T09:00:00Z")}
	recs := Records{Sessions: in}
	got := Apply(recs, Filter{Window: window("2024-06-01", "2024-06-01")})
	got.Sessions[0].ID = "changed"
	assert.Equal(t, "s1", in[0].ID)
	assert.NotNil(t, got.Patients)
	assert.NotNil(t, got.Alerts)
	assert.True(t, in[0].Date.Equal(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)))
}
