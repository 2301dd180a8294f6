package metrics

import (
	"strings"
	"time"
)

// Headline holds the scalar metrics shown on summary cards and
// compared between windows.
type Headline struct {
	TotalPatients             int     `json:"total_patients"`
	TotalActivePatients       int     `json:"total_active_patients"`
	NewPatients               int     `json:"new_patients"`
	TotalSessions             int     `json:"total_sessions"`
	CompletedSessions         int     `json:"completed_sessions"`
	AverageSessionsPerPatient float64 `json:"average_sessions_per_patient"`
	FollowUpRate              float64 `json:"follow_up_rate"`
	AverageSessionInterval    float64 `json:"average_session_interval"`
	TotalAlerts               int     `json:"total_alerts"`
	PendingAlerts             int     `json:"pending_alerts"`
	HighRiskSessions          int     `json:"high_risk_sessions"`
}

// Snapshot is the complete result of one aggregation pass over a
// single window. It is never modified after Compute returns it.
type Snapshot struct {
	Window       DateWindow `json:"window"`
	CalculatedAt time.Time  `json:"calculated_at"`
	Headline     Headline   `json:"headline"`
	Distributions
	SessionsPerDay    []TimeSeriesPoint     `json:"sessions_per_day"`
	NewPatientsPerDay []TimeSeriesPoint     `json:"new_patients_per_day"`
	EmotionalTrend    []EmotionalTrendPoint `json:"emotional_trend"`
	Cadence           Cadence               `json:"cadence"`
	Risk              RiskTally             `json:"risk"`
	Workload          FrequencyMap          `json:"workload"`
}

// Options tunes a computation. The zero value is usable.
type Options struct {
	// MinSessionsForFollowUp defaults to
	// DefaultMinSessionsForFollowUp when < 1.
	MinSessionsForFollowUp int
	// Now stamps CalculatedAt; defaults to time.Now.
	Now func() time.Time
	// OnPhase, when set, observes Compare's progress.
	OnPhase func(Phase)
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Parts are the builder outputs composed into a Snapshot.
type Parts struct {
	Counts            Headline
	Distributions     Distributions
	SessionsPerDay    []TimeSeriesPoint
	NewPatientsPerDay []TimeSeriesPoint
	EmotionalTrend    []EmotionalTrendPoint
	Cadence           Cadence
	Risk              RiskTally
	Workload          FrequencyMap
}

// Compute filters recs with f and derives a snapshot for
// f.Window. An invalid window is rejected before any work.
func Compute(recs Records, f Filter, opts Options) (Snapshot, error) {
	if err := f.Window.Validate(); err != nil {
		return Snapshot{}, err
	}
	loc := f.location()
	sel := Apply(recs, f)

	newPatients := NewPatientSeries(sel.Patients, f.Window, loc)
	cadence := ComputeCadence(
		sel.Sessions, sel.Patients,
		opts.MinSessionsForFollowUp, loc,
	)
	risk := TallyRisk(sel.Sessions)

	counts := countHeadline(sel)
	counts.NewPatients = SeriesTotal(newPatients)
	counts.FollowUpRate = cadence.FollowUpRate
	counts.AverageSessionInterval = cadence.AverageIntervalDays
	counts.HighRiskSessions = risk.High

	return Assemble(f.Window, Parts{
		Counts:            counts,
		Distributions:     BuildDistributions(sel),
		SessionsPerDay:    SessionSeries(sel.Sessions, f.Window, loc),
		NewPatientsPerDay: newPatients,
		EmotionalTrend:    EmotionalTrend(sel.Sessions, f.Window, loc),
		Cadence:           cadence,
		Risk:              risk,
		Workload:          Workload(sel.Sessions),
	}, opts.now()), nil
}

// countHeadline derives the plain counters from filtered records.
func countHeadline(sel Records) Headline {
	h := Headline{
		TotalPatients: len(sel.Patients),
		TotalSessions: len(sel.Sessions),
		TotalAlerts:   len(sel.Alerts),
	}
	for _, p := range sel.Patients {
		if p.Active {
			h.TotalActivePatients++
		}
	}
	for _, s := range sel.Sessions {
		if strings.EqualFold(s.Status, SessionCompleted) {
			h.CompletedSessions++
		}
	}
	for _, a := range sel.Alerts {
		if strings.EqualFold(a.Status, AlertPending) {
			h.PendingAlerts++
		}
	}
	h.AverageSessionsPerPatient = ratio(
		h.TotalSessions, h.TotalActivePatients,
	)
	return h
}

// Assemble composes builder outputs into a Snapshot stamped with
// at. Headline ratios are rounded to two decimals.
func Assemble(w DateWindow, p Parts, at time.Time) Snapshot {
	h := p.Counts
	h.AverageSessionsPerPatient = round2(h.AverageSessionsPerPatient)
	h.FollowUpRate = round2(h.FollowUpRate)
	h.AverageSessionInterval = round2(h.AverageSessionInterval)

	return Snapshot{
		Window:            w,
		CalculatedAt:      at,
		Headline:          h,
		Distributions:     p.Distributions,
		SessionsPerDay:    nonNil(p.SessionsPerDay),
		NewPatientsPerDay: nonNil(p.NewPatientsPerDay),
		EmotionalTrend:    nonNil(p.EmotionalTrend),
		Cadence:           p.Cadence,
		Risk:              p.Risk,
		Workload:          orEmpty(p.Workload),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func orEmpty(m FrequencyMap) FrequencyMap {
	if m == nil {
		return FrequencyMap{}
	}
	return m
}
