package metrics

import (
	"strings"
	"time"

	"github.com/wesm/clinicview/internal/timeutil"
)

// EmotionalTrend reports, for every day of the window, each
// tone's share of that day's tone-tagged sessions. Days without
// tagged sessions produce no points. Points are ordered by date,
// then count descending, then tone.
func EmotionalTrend(
	sessions []Session, w DateWindow, loc *time.Location,
) []EmotionalTrendPoint {
	byDay := make(map[string]FrequencyMap)
	for _, s := range sessions {
		if strings.TrimSpace(s.EmotionalTone) == "" {
			continue
		}
		day := timeutil.Day(s.Date, loc)
		if !w.Contains(day) {
			continue
		}
		tones, ok := byDay[day]
		if !ok {
			tones = make(FrequencyMap)
			byDay[day] = tones
		}
		tones[s.EmotionalTone]++
	}

	points := make([]EmotionalTrendPoint, 0)
	for _, day := range w.Days() {
		tones := byDay[day]
		total := tones.Total()
		if total == 0 {
			continue
		}
		for _, e := range tones.Ranked() {
			points = append(points, EmotionalTrendPoint{
				Date:       day,
				Tone:       e.Key,
				Count:      e.Count,
				Percentage: percent(e.Count, total),
			})
		}
	}
	return points
}
