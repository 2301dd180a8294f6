package metrics

import "strings"

// RiskTally counts sessions per AI-assigned risk level.
type RiskTally struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Total returns the number of sessions with a recognized level.
func (r RiskTally) Total() int {
	return r.High + r.Medium + r.Low
}

// TallyRisk counts sessions by risk level. Levels are matched
// case-insensitively; untagged or unrecognized sessions are not
// counted anywhere.
func TallyRisk(sessions []Session) RiskTally {
	var r RiskTally
	for _, s := range sessions {
		switch strings.ToLower(strings.TrimSpace(s.RiskLevel)) {
		case RiskHigh:
			r.High++
		case RiskMedium:
			r.Medium++
		case RiskLow:
			r.Low++
		}
	}
	return r
}

// Workload counts sessions per professional.
func Workload(sessions []Session) FrequencyMap {
	return tally(sessions,
		func(s Session) string { return s.ProfessionalID })
}
