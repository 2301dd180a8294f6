package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportedFiles(t *testing.T) {
	d := testDB(t)

	got, err := d.LoadImportedFiles()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, d.MarkImported("/a.jsonl", FileMeta{Mtime: 1, Size: 10, Records: 3}))
	require.NoError(t, d.MarkImported("/b.jsonl", FileMeta{Mtime: 2, Size: 20}))
	require.NoError(t, d.MarkImported("/a.jsonl", FileMeta{Mtime: 5, Size: 50, Records: 4}))

	got, err = d.LoadImportedFiles()
	require.NoError(t, err)
	assert.Equal(t, map[string]FileMeta{
		"/a.jsonl": {Mtime: 5, Size: 50, Records: 4},
		"/b.jsonl": {Mtime: 2, Size: 20},
	}, got)

	require.NoError(t, d.ForgetImported("/a.jsonl"))
	got, err = d.LoadImportedFiles()
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, d.ResetImported())
	got, err = d.LoadImportedFiles()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetStats(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	s, err := d.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.RecordCount)
	assert.Nil(t, s.OldestDate)
	assert.Empty(t, s.Collections)

	insertRecords(t, d,
		rec(CollectionSessions, "s1", "2024-06-01T10:00:00Z"),
		rec(CollectionSessions, "s2", "2024-06-03T10:00:00Z"),
		rec(CollectionPatients, "p1", "",
			func(r *Record) { r.CenterID = "center-2" }),
	)
	require.NoError(t, d.MarkImported("/a.jsonl", FileMeta{Mtime: 1, Size: 1}))

	s, err = d.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.RecordCount)
	assert.Equal(t, 2, s.CenterCount)
	assert.Equal(t, 1, s.ImportedFiles)
	assert.Equal(t, map[string]int{"sessions": 2, "patients": 1}, s.Collections)
	require.NotNil(t, s.OldestDate)
	assert.Equal(t, "2024-06-01T10:00:00Z", *s.OldestDate)
	assert.Equal(t, "2024-06-03T10:00:00Z", *s.NewestDate)
}
