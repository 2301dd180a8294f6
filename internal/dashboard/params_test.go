package dashboard

import (
	"errors"
	"net/url"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/clinicview/internal/metrics"
)

func TestParseQuery(t *testing.T) {
	now := time.Date(2024, 6, 30, 22, 0, 0, 0, time.UTC)
	defaults := Query{CenterID: "center-1"}

	t.Run("defaults", func(t *testing.T) {
		q, err := ParseQuery(url.Values{}, defaults, now)
		require.NoError(t, err)
		assert.Equal(t, "center-1", q.CenterID)
		assert.Equal(t, "UTC", q.Filter.Timezone)
		assert.Equal(t, metrics.DateWindow{Start: "2024-06-01", End: "2024-06-30"},
			q.Filter.Window)
	})

	t.Run("every selector", func(t *testing.T) {
		v := url.Values{
			"from":             {"2024-05-01"},
			"to":               {"2024-05-31"},
			"center":           {" center-2 "},
			"professional":     {"dr-a"},
			"patient":          {"p1"},
			"type":             {"group"},
			"tone":             {"anxious"},
			"alert_type":       {"risk"},
			"status":           {"completed"},
			"include_inactive": {"true"},
			"timezone":         {"Europe/Madrid"},
		}
		q, err := ParseQuery(v, defaults, now)
		require.NoError(t, err)
		assert.Equal(t, "center-2", q.CenterID)
		assert.Equal(t, metrics.Filter{
			Window:          metrics.DateWindow{Start: "2024-05-01", End: "2024-05-31"},
			ProfessionalID:  "dr-a",
			PatientID:       "p1",
			SessionType:     "group",
			EmotionalTone:   "anxious",
			AlertType:       "risk",
			Status:          "completed",
			IncludeInactive: true,
			Timezone:        "Europe/Madrid",
		}, q.Filter)
	})

	t.Run("today follows the timezone", func(t *testing.T) {
		q, err := ParseQuery(url.Values{"timezone": {"Asia/Tokyo"}}, defaults, now)
		require.NoError(t, err)
		assert.Equal(t, "2024-07-01", q.Filter.Window.End)
	})

	t.Run("longest window", func(t *testing.T) {
		end, err := time.Parse("2006-01-02", "2024-06-30")
		require.NoError(t, err)
		from := end.AddDate(0, 0, -(MaxWindowDays - 1)).Format("2006-01-02")
		q, err := ParseQuery(url.Values{"from": {from}, "to": {"2024-06-30"}},
			defaults, now)
		require.NoError(t, err)
		assert.Equal(t, MaxWindowDays, q.Filter.Window.Len())
	})

	tests := []struct {
		name    string
		v       url.Values
		wantErr error
	}{
		{"reversed", url.Values{"from": {"2024-06-10"}, "to": {"2024-06-01"}},
			metrics.ErrInvalidDateRange},
		{"bad from", url.Values{"from": {"June 1"}}, metrics.ErrInvalidDate},
		{"bad timezone", url.Values{"timezone": {"Mars/Olympus"}}, ErrInvalidTimezone},
		{"bad flag", url.Values{"include_inactive": {"maybe"}}, ErrInvalidParam},
		{"too long", url.Values{"from": {"0001-01-01"}, "to": {"9999-12-31"}},
			ErrWindowTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(tt.v, defaults, now)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestApplyEdits(t *testing.T) {
	v := url.Values{"tone": {"calm"}, "from": {"2024-06-01"}}

	require.NoError(t, ApplyEdits(v, []string{"tone=very anxious", "from=", "TYPE=group"}))
	assert.Equal(t, url.Values{"tone": {"very anxious"}, "type": {"group"}}, v)

	err := ApplyEdits(v, []string{"status=done", "colour=red"})
	assert.True(t, errors.Is(err, ErrUnknownParam))
	assert.Empty(t, v.Get("status"), "rejected edits leave values untouched")

	err = ApplyEdits(v, []string{"tone"})
	assert.True(t, errors.Is(err, ErrInvalidParam))
}
