package metrics

import (
	"sort"
	"time"

	"github.com/wesm/clinicview/internal/timeutil"
)

// DefaultMinSessionsForFollowUp is the session count at which a
// patient counts as followed up.
const DefaultMinSessionsForFollowUp = 2

// Cadence summarizes how regularly patients are seen.
type Cadence struct {
	FollowUpRate         float64 `json:"follow_up_rate"`
	PatientsWithFollowUp int     `json:"patients_with_follow_up"`
	MinSessions          int     `json:"min_sessions"`
	AverageIntervalDays  float64 `json:"average_interval_days"`
	IntervalPairs        int     `json:"interval_pairs"`
	TotalIntervalDays    int     `json:"total_interval_days"`
}

// sessionsByPatient groups session days by patient. Sessions
// without a patient or a usable date are left out.
func sessionsByPatient(
	sessions []Session, loc *time.Location,
) map[string][]string {
	groups := make(map[string][]string)
	for _, s := range sessions {
		if s.PatientID == "" {
			continue
		}
		day := timeutil.Day(s.Date, loc)
		if day == "" {
			continue
		}
		groups[s.PatientID] = append(groups[s.PatientID], day)
	}
	return groups
}

// FollowUp returns the percentage of active patients with at
// least minSessions sessions, and how many such patients there
// are. Only patients present and active in patients are counted,
// so the rate stays within [0, 100].
func FollowUp(
	sessions []Session, patients []Patient,
	minSessions int, loc *time.Location,
) (float64, int) {
	if minSessions < 1 {
		minSessions = DefaultMinSessionsForFollowUp
	}
	active := make(map[string]bool, len(patients))
	for _, p := range patients {
		if p.Active {
			active[p.ID] = true
		}
	}
	if len(active) == 0 {
		return 0, 0
	}

	followed := 0
	for id, days := range sessionsByPatient(sessions, loc) {
		if active[id] && len(days) >= minSessions {
			followed++
		}
	}
	return percent(followed, len(active)), followed
}

// Intervals returns the day gaps between consecutive sessions of
// each patient, patients in ID order. Same-day sessions yield a
// zero gap.
func Intervals(sessions []Session, loc *time.Location) []int {
	groups := sessionsByPatient(sessions, loc)
	ids := make([]string, 0, len(groups))
	for id, days := range groups {
		if len(days) >= 2 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var gaps []int
	for _, id := range ids {
		days := groups[id]
		sort.Strings(days)
		for i := 1; i < len(days); i++ {
			n, ok := timeutil.DaysBetween(days[i-1], days[i])
			if !ok {
				continue
			}
			gaps = append(gaps, n)
		}
	}
	return gaps
}

// ComputeCadence combines the follow-up rate and the average
// inter-session interval.
func ComputeCadence(
	sessions []Session, patients []Patient,
	minSessions int, loc *time.Location,
) Cadence {
	if minSessions < 1 {
		minSessions = DefaultMinSessionsForFollowUp
	}
	rate, followed := FollowUp(sessions, patients, minSessions, loc)

	total := 0
	gaps := Intervals(sessions, loc)
	for _, g := range gaps {
		total += g
	}

	return Cadence{
		FollowUpRate:         rate,
		PatientsWithFollowUp: followed,
		MinSessions:          minSessions,
		AverageIntervalDays:  ratio(total, len(gaps)),
		IntervalPairs:        len(gaps),
		TotalIntervalDays:    total,
	}
}
