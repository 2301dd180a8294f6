package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"sessions.jsonl", "sessions"},
		{"session-2024-06.jsonl", "sessions"},
		{"/a/b/Patients_export.ndjson", "patients"},
		{"alert.jsonl", "alerts"},
		{"export.jsonl", ""},
		{"2024-sessions.jsonl", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectionFromName(tt.name))
		})
	}
}

func TestIsExportFile(t *testing.T) {
	assert.True(t, IsExportFile("a.jsonl"))
	assert.True(t, IsExportFile("/x/A.NDJSON"))
	assert.False(t, IsExportFile(".hidden.jsonl"))
	assert.False(t, IsExportFile("a.json"))
}

func TestDiscoverExportFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) string {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("{}\n"), 0o644))
		return p
	}
	s := write("sessions.jsonl")
	n := write("2024/06/patients.ndjson")
	write(".cache/sessions.jsonl")
	write("notes.txt")
	require.NoError(t, os.Symlink(s, filepath.Join(dir, "link.jsonl")))

	got := DiscoverExportFiles(dir, "", filepath.Join(dir, "missing"))
	assert.Equal(t, []DiscoveredFile{
		{Path: n, Collection: "patients"},
		{Path: s, Collection: "sessions"},
	}, got)
}
