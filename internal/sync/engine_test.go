package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/clinicview/internal/db"
)

type testEnv struct {
	db     *db.DB
	dir    string
	engine *Engine
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	dir := t.TempDir()
	return &testEnv{
		db:     d,
		dir:    dir,
		engine: NewEngine(d, []string{dir}, "center-1"),
	}
}

// writeExport writes lines to rel under the import dir and
// returns the absolute path.
func (env *testEnv) writeExport(t *testing.T, rel string, lines ...string) string {
	t.Helper()
	path := filepath.Join(env.dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(
		path, []byte(strings.Join(lines, "\n")+"\n"), 0o644,
	))
	return path
}

func (env *testEnv) count(t *testing.T, collection string) int {
	t.Helper()
	recs, err := env.db.FetchRecords(context.Background(),
		db.RecordQuery{Collection: collection})
	require.NoError(t, err)
	return len(recs)
}

func TestSyncAllImportsAndSkipsUnchanged(t *testing.T) {
	env := setupTestEnv(t)
	env.writeExport(t, "sessions.jsonl",
		`{"id":"s1","patientId":"p1","date":"2024-06-01T10:00:00Z"}`,
		`{"id":"s2","patientId":"p1","date":"2024-06-02T10:00:00Z"}`,
		`garbage`,
	)
	env.writeExport(t, "nested/patients.ndjson",
		`{"id":"p1","createdAt":"2024-05-01T10:00:00Z"}`,
	)

	var phases []Phase
	stats := env.engine.SyncAll(func(p Progress) {
		phases = append(phases, p.Phase)
	})
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.Synced)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, PhaseDiscovering, phases[0])
	assert.Equal(t, PhaseDone, phases[len(phases)-1])

	assert.Equal(t, 2, env.count(t, db.CollectionSessions))
	assert.Equal(t, 1, env.count(t, db.CollectionPatients))
	assert.Equal(t, uint64(1), env.engine.Generation())
	assert.False(t, env.engine.LastSync().IsZero())

	again := env.engine.SyncAll(nil)
	assert.Equal(t, 2, again.Skipped)
	assert.Zero(t, again.Synced)
	assert.Equal(t, uint64(1), env.engine.Generation(),
		"a run that writes nothing does not advance the generation")
}

func TestSyncAllCacheSurvivesRestart(t *testing.T) {
	env := setupTestEnv(t)
	env.writeExport(t, "alerts.jsonl", `{"id":"a1","createdAt":"2024-06-01"}`)
	env.engine.SyncAll(nil)

	restarted := NewEngine(env.db, []string{env.dir}, "center-1")
	stats := restarted.SyncAll(nil)
	assert.Equal(t, 1, stats.Skipped)
}

func TestSyncAllReimportsChangedFile(t *testing.T) {
	env := setupTestEnv(t)
	path := env.writeExport(t, "sessions.jsonl", `{"id":"s1","date":"2024-06-01"}`)
	env.engine.SyncAll(nil)

	env.writeExport(t, "sessions.jsonl",
		`{"id":"s1","date":"2024-06-01"}`,
		`{"id":"s2","date":"2024-06-02"}`,
	)
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	stats := env.engine.SyncAll(nil)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 2, env.count(t, db.CollectionSessions))
}

func TestSyncAllUnsupportedFormat(t *testing.T) {
	env := setupTestEnv(t)
	env.writeExport(t, "sessions.jsonl",
		`{"kind":"header","format":"v2.0.0"}`,
		`{"id":"s1","date":"2024-06-01"}`,
	)
	stats := env.engine.SyncAll(nil)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Warnings, 1)
	assert.Contains(t, stats.Warnings[0], "unsupported export format")
	assert.Zero(t, env.count(t, db.CollectionSessions))

	// The failing file is not retried until it changes.
	again := env.engine.SyncAll(nil)
	assert.Equal(t, 1, again.Skipped)
}

func TestResyncAllRereadsEverything(t *testing.T) {
	env := setupTestEnv(t)
	env.writeExport(t, "sessions.jsonl", `{"id":"s1","date":"2024-06-01"}`)
	env.engine.SyncAll(nil)

	stats := env.engine.ResyncAll(nil)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, env.count(t, db.CollectionSessions))
}

func TestSyncPaths(t *testing.T) {
	env := setupTestEnv(t)
	inside := env.writeExport(t, "alerts.jsonl", `{"id":"a1","createdAt":"2024-06-01"}`)
	notes := env.writeExport(t, "notes.txt", "hello")

	outsideDir := t.TempDir()
	outside := filepath.Join(outsideDir, "sessions.jsonl")
	require.NoError(t, os.WriteFile(outside, []byte(`{"id":"s1"}`+"\n"), 0o644))

	stats := env.engine.SyncPaths([]string{inside, inside, notes, outside})
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 1, env.count(t, db.CollectionAlerts))
	assert.Zero(t, env.count(t, db.CollectionSessions))

	assert.Equal(t, SyncStats{}, env.engine.SyncPaths(nil))
}

func TestIsUnder(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/in", "/in/a.jsonl", true},
		{"/in", "/in/sub/a.jsonl", true},
		{"/in", "/in", false},
		{"/in", "/inbox/a.jsonl", false},
		{"/in", "/in/../etc/a.jsonl", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isUnder(tt.dir, tt.path), tt.path)
	}
}
