package metrics

// Phase is the state of a comparison run.
type Phase string

const (
	PhaseComputingCurrent  Phase = "computing-current"
	PhaseComputingPrevious Phase = "computing-previous"
	PhaseReady             Phase = "ready"
)

// MetricChange pairs one headline metric across two windows.
type MetricChange struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Change   float64 `json:"change"`
}

// Comparison reduces the snapshots of a window and the window
// before it to per-metric percentage changes.
type Comparison struct {
	Current    Snapshot                `json:"current"`
	Previous   Snapshot                `json:"previous"`
	Comparison map[string]MetricChange `json:"comparison"`
}

// PercentChange returns the change from previous to current in
// percent, rounded to two decimals. A zero previous value maps to
// 100 when current is positive and 0 otherwise.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return round2((current - previous) / previous * 100)
}

// headlineValues flattens the compared metrics by name.
func headlineValues(h Headline) map[string]float64 {
	return map[string]float64{
		"total_patients":               float64(h.TotalPatients),
		"total_active_patients":        float64(h.TotalActivePatients),
		"new_patients":                 float64(h.NewPatients),
		"total_sessions":               float64(h.TotalSessions),
		"completed_sessions":           float64(h.CompletedSessions),
		"average_sessions_per_patient": h.AverageSessionsPerPatient,
		"follow_up_rate":               h.FollowUpRate,
		"average_session_interval":     h.AverageSessionInterval,
		"total_alerts":                 float64(h.TotalAlerts),
		"pending_alerts":               float64(h.PendingAlerts),
		"high_risk_sessions":           float64(h.HighRiskSessions),
	}
}

// CompareSnapshots computes the per-metric changes between two
// snapshots.
func CompareSnapshots(current, previous Snapshot) Comparison {
	cur := headlineValues(current.Headline)
	prev := headlineValues(previous.Headline)
	changes := make(map[string]MetricChange, len(cur))
	for name, c := range cur {
		p := prev[name]
		changes[name] = MetricChange{
			Current:  c,
			Previous: p,
			Change:   PercentChange(c, p),
		}
	}
	return Comparison{
		Current:    current,
		Previous:   previous,
		Comparison: changes,
	}
}

// Compare computes the snapshot for f.Window over current, then
// the snapshot for the preceding window of the same length over
// previous, and reduces both. Each record set only needs to cover
// its own window.
func Compare(current, previous Records, f Filter, opts Options) (Comparison, error) {
	if err := f.Window.Validate(); err != nil {
		return Comparison{}, err
	}
	report := func(p Phase) {
		if opts.OnPhase != nil {
			opts.OnPhase(p)
		}
	}

	report(PhaseComputingCurrent)
	cur, err := Compute(current, f, opts)
	if err != nil {
		return Comparison{}, err
	}

	report(PhaseComputingPrevious)
	pf := f
	pf.Window = f.Window.Previous()
	prev, err := Compute(previous, pf, opts)
	if err != nil {
		return Comparison{}, err
	}

	report(PhaseReady)
	return CompareSnapshots(cur, prev), nil
}
