package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPruneData(t *testing.T, d *DB) {
	t.Helper()
	insertRecords(t, d,
		rec(CollectionSessions, "old", "2023-12-31T23:00:00Z"),
		rec(CollectionSessions, "boundary", "2024-01-01T00:00:00Z"),
		rec(CollectionSessions, "new", "2024-06-01T00:00:00Z"),
		rec(CollectionAlerts, "old-alert", "2023-06-01T00:00:00Z",
			func(r *Record) { r.SourcePath = "/imports/alerts_100%.jsonl" }),
		rec(CollectionPatients, "p1", "2023-01-01T00:00:00Z",
			func(r *Record) { r.CenterID = "center-2" }),
	)
}

func TestFindPruneCandidates(t *testing.T) {
	d := testDB(t)
	setupPruneData(t, d)

	tests := []struct {
		name   string
		filter PruneFilter
		want   []string
	}{
		{
			name:   "before date",
			filter: PruneFilter{Before: "2024-01-01"},
			want:   []string{"old", "old-alert", "p1"},
		},
		{
			name: "before date in collection",
			filter: PruneFilter{
				Before: "2024-01-01", Collection: CollectionSessions,
			},
			want: []string{"old"},
		},
		{
			name:   "center",
			filter: PruneFilter{CenterID: "center-2"},
			want:   []string{"p1"},
		},
		{
			name:   "source with literal percent",
			filter: PruneFilter{Source: "100%"},
			want:   []string{"old-alert"},
		},
		{
			name:   "source wildcard is escaped",
			filter: PruneFilter{Source: "_"},
			want:   []string{"old-alert"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.FindPruneCandidates(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestPruneRequiresFilter(t *testing.T) {
	d := testDB(t)
	_, err := d.FindPruneCandidates(PruneFilter{})
	require.Error(t, err)
	_, err = d.PruneRecords(PruneFilter{})
	require.Error(t, err)
}

func TestPruneRecords(t *testing.T) {
	d := testDB(t)
	setupPruneData(t, d)

	n, err := d.PruneRecords(PruneFilter{
		Before: "2024-01-01", Collection: CollectionSessions,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := d.FetchRecords(context.Background(),
		RecordQuery{Collection: CollectionSessions})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "boundary"}, ids(left))
}
