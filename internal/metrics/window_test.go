package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateWindowValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       DateWindow
		wantErr error
	}{
		{"single day", window("2024-06-01", "2024-06-01"), nil},
		{"ordered", window("2024-06-01", "2024-06-30"), nil},
		{"reversed", window("2024-06-02", "2024-06-01"), ErrInvalidDateRange},
		{"bad start", window("06/01/2024", "2024-06-01"), ErrInvalidDate},
		{"bad end", window("2024-06-01", ""), ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestNewDateWindow(t *testing.T) {
	w, err := NewDateWindow("2024-06-01", "2024-06-07")
	require.NoError(t, err)
	assert.Equal(t, 7, w.Len())

	_, err = NewDateWindow("2024-06-07", "2024-06-01")
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestDateWindowDays(t *testing.T) {
	w := window("2024-02-27", "2024-03-02")
	want := []string{
		"2024-02-27", "2024-02-28", "2024-02-29",
		"2024-03-01", "2024-03-02",
	}
	if diff := cmp.Diff(want, w.Days()); diff != "" {
		t.Errorf("Days() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(want), w.Len())

	assert.Equal(t, 0, window("2024-03-02", "2024-02-27").Len())
	assert.Empty(t, window("bad", "2024-02-27").Days())
}

func TestDateWindowContains(t *testing.T) {
	w := window("2024-06-01", "2024-06-07")
	assert.True(t, w.Contains("2024-06-01"))
	assert.True(t, w.Contains("2024-06-07"))
	assert.False(t, w.Contains("2024-05-31"))
	assert.False(t, w.Contains("2024-06-08"))
	assert.False(t, w.Contains(""))
}

func TestDateWindowPrevious(t *testing.T) {
	tests := []struct {
		w, want DateWindow
	}{
		{window("2024-06-08", "2024-06-14"), window("2024-06-01", "2024-06-07")},
		{window("2024-03-01", "2024-03-01"), window("2024-02-29", "2024-02-29")},
		{window("2024-01-01", "2024-01-31"), window("2023-12-01", "2023-12-31")},
	}
	for _, tt := range tests {
		t.Run(tt.w.Start, func(t *testing.T) {
			got := tt.w.Previous()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.w.Len(), got.Len())
		})
	}
}

func TestTrailing(t *testing.T) {
	now := time.Date(2024, 6, 30, 23, 30, 0, 0, time.UTC)
	w := Trailing(now, DefaultWindowDays, nil)
	assert.Equal(t, DateWindow{Start: "2024-06-01", End: "2024-06-30"}, w)
	assert.Equal(t, DefaultWindowDays, w.Len())

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", Trailing(now, 1, tokyo).End)
	assert.Equal(t, 1, Trailing(now, 0, nil).Len())
}

func TestResolve(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		start, end string
		want       DateWindow
	}{
		{"both empty", "", "", window("2024-06-01", "2024-06-30")},
		{"only end", "", "2024-03-31", window("2024-03-02", "2024-03-31")},
		{"only start", "2024-06-20", "", window("2024-06-20", "2024-06-30")},
		{"both set", "2024-01-01", "2024-01-02", window("2024-01-01", "2024-01-02")},
		{"bad end kept", "", "junk", window("", "junk")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.start, tt.end, now, time.UTC))
		})
	}
}
