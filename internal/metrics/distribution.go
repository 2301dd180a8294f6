package metrics

import (
	"sort"
	"strings"
)

// Distributions holds the categorical tallies of a snapshot.
// Every map is allocated separately.
type Distributions struct {
	EmotionalStates     FrequencyMap `json:"emotional_states"`
	ConsultationMotives FrequencyMap `json:"consultation_motives"`
	SessionTypes        FrequencyMap `json:"session_types"`
	SessionTones        FrequencyMap `json:"session_tones"`
	AlertTypes          FrequencyMap `json:"alert_types"`
	AlertUrgency        FrequencyMap `json:"alert_urgency"`
}

// tally counts each non-blank value returned by key. Values are
// kept verbatim so unseen categories surface as new keys.
func tally[T any](items []T, key func(T) string) FrequencyMap {
	m := make(FrequencyMap)
	for _, it := range items {
		v := key(it)
		if strings.TrimSpace(v) == "" {
			continue
		}
		m[v]++
	}
	return m
}

// BuildDistributions tallies the categorical fields of already
// filtered records.
func BuildDistributions(recs Records) Distributions {
	return Distributions{
		EmotionalStates: tally(recs.Patients,
			func(p Patient) string { return p.EmotionalState }),
		ConsultationMotives: tally(recs.Patients,
			func(p Patient) string { return p.ConsultationMotive }),
		SessionTypes: tally(recs.Sessions,
			func(s Session) string { return s.Type }),
		SessionTones: tally(recs.Sessions,
			func(s Session) string { return s.EmotionalTone }),
		AlertTypes: tally(recs.Alerts,
			func(a Alert) string { return a.Type }),
		AlertUrgency: tally(recs.Alerts,
			func(a Alert) string { return a.Urgency }),
	}
}

// RankedEntry is one key of a FrequencyMap with its count.
type RankedEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Ranked orders the entries by count descending, breaking ties by
// key so output is deterministic.
func (m FrequencyMap) Ranked() []RankedEntry {
	out := make([]RankedEntry, 0, len(m))
	for k, v := range m {
		out = append(out, RankedEntry{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
