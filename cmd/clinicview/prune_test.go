package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wesm/clinicview/internal/db"
)

func TestParsePruneFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, cfg PruneConfig)
	}{
		{
			name:    "no filters",
			args:    []string{},
			wantErr: "at least one filter",
		},
		{
			name: "collection filter",
			args: []string{"--collection", "Alert"},
			check: func(t *testing.T, cfg PruneConfig) {
				t.Helper()
				if cfg.Filter.Collection != "alerts" {
					t.Errorf(
						"Collection = %q, want %q",
						cfg.Filter.Collection, "alerts",
					)
				}
				if cfg.DryRun || cfg.Yes {
					t.Error("unexpected flag defaults")
				}
			},
		},
		{
			name: "all flags",
			args: []string{
				"--collection", "sessions",
				"--center", "north",
				"--before", "2024-01-01",
				"--source", "uploads/",
				"--dry-run",
				"--yes",
			},
			check: func(t *testing.T, cfg PruneConfig) {
				t.Helper()
				want := db.PruneFilter{
					Collection: "sessions",
					CenterID:   "north",
					Before:     "2024-01-01",
					Source:     "uploads/",
				}
				if cfg.Filter != want {
					t.Errorf("Filter = %+v, want %+v", cfg.Filter, want)
				}
				if !cfg.DryRun {
					t.Error("DryRun should be true")
				}
				if !cfg.Yes {
					t.Error("Yes should be true")
				}
			},
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "flag provided but not defined",
		},
		{
			name:    "unknown collection",
			args:    []string{"--collection", "invoices"},
			wantErr: "unknown collection: invoices",
		},
		{
			name:    "malformed before",
			args:    []string{"--before", "01/02/2024"},
			wantErr: "before must be YYYY-MM-DD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parsePruneFlags(tt.args)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q missing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestParsePruneFlagsHelp(t *testing.T) {
	_, err := parsePruneFlags([]string{"--help"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}

func TestPrunerEmptyFilterReturnsError(t *testing.T) {
	d := openTestDB(t)

	pruner, _ := newTestPruner(t, d, "")
	err := pruner.Prune(PruneConfig{Filter: db.PruneFilter{}})
	if err == nil {
		t.Fatal("expected error for empty filter")
	}
	if !strings.Contains(err.Error(), "at least one filter") {
		t.Errorf("error %q should mention filter requirement", err)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes lowercase", "y\n", true},
		{"yes full", "yes\n", true},
		{"YES uppercase", "YES\n", true},
		{"no", "n\n", false},
		{"empty", "\n", false},
		{"other text", "maybe\n", false},
		{"y with spaces", "  y  \n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := strings.NewReader(tt.input)
			out := &bytes.Buffer{}
			got := confirm(in, out, "Delete?")
			if got != tt.want {
				t.Errorf("confirm() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "[y/N]") {
				t.Error("prompt missing [y/N]")
			}
		})
	}
}

func TestWriteSummary(t *testing.T) {
	recs := []db.Record{
		{Collection: "sessions", ID: "s1", Date: ptr("2024-03-10T09:00:00Z")},
		{Collection: "sessions", ID: "s2", Date: ptr("2024-01-05T09:00:00Z")},
		{Collection: "alerts", ID: "a1", Date: ptr("2024-02-01T12:00:00Z")},
		{Collection: "patients", ID: "p1"},
	}

	var buf bytes.Buffer
	writeSummary(&buf, recs)

	want := `Found 4 records dated 2024-01-05 to 2024-03-10

By collection:
  alerts                                   1
  patients                                 1
  sessions                                 2
`
	if got := buf.String(); got != want {
		t.Errorf("writeSummary() mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestWriteSummaryUndated(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, []db.Record{{Collection: "patients", ID: "p1"}})
	if !strings.HasPrefix(buf.String(), "Found 1 records\n") {
		t.Errorf("unexpected summary: %q", buf.String())
	}
}

func TestPruner_PruneScenarios(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		cfg        PruneConfig
		wantOutput []string
		wantKept   bool
	}{
		{
			name:       "dry run",
			cfg:        PruneConfig{Filter: db.PruneFilter{Before: "2024-02-01"}, DryRun: true},
			wantOutput: []string{"Dry run", "Found 1 records"},
			wantKept:   true,
		},
		{
			name:       "no matches",
			cfg:        PruneConfig{Filter: db.PruneFilter{CenterID: "nowhere"}},
			wantOutput: []string{"No records match"},
			wantKept:   true,
		},
		{
			name:       "abort",
			input:      "n\n",
			cfg:        PruneConfig{Filter: db.PruneFilter{Before: "2024-02-01"}},
			wantOutput: []string{"Aborted"},
			wantKept:   true,
		},
		{
			name:       "confirm delete",
			input:      "y\n",
			cfg:        PruneConfig{Filter: db.PruneFilter{Before: "2024-02-01"}},
			wantOutput: []string{"Deleted 1 records"},
			wantKept:   false,
		},
		{
			name:       "yes flag skips prompt",
			cfg:        PruneConfig{Filter: db.PruneFilter{Source: "old.jsonl"}, Yes: true},
			wantOutput: []string{"Deleted 1 records"},
			wantKept:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := openTestDB(t)
			seedRecords(t, d,
				db.Record{
					Collection: "sessions", ID: "old", CenterID: "c1",
					Date:       ptr("2024-01-15T10:00:00Z"),
					Body:       `{"id":"old"}`,
					SourcePath: "/imports/old.jsonl",
				},
				db.Record{
					Collection: "sessions", ID: "new", CenterID: "c1",
					Date:       ptr("2024-03-15T10:00:00Z"),
					Body:       `{"id":"new"}`,
					SourcePath: "/imports/new.jsonl",
				},
			)

			pruner, buf := newTestPruner(t, d, tt.input)
			if err := pruner.Prune(tt.cfg); err != nil {
				t.Fatalf("Prune: %v", err)
			}

			out := buf.String()
			for _, want := range tt.wantOutput {
				if !strings.Contains(out, want) {
					t.Errorf("expected output containing %q, got: %s", want, out)
				}
			}
			if tt.cfg.Yes && strings.Contains(out, "[y/N]") {
				t.Error("should not prompt when --yes is set")
			}

			ctx := context.Background()
			old, err := d.GetRecord(ctx, "sessions", "old")
			if err != nil {
				t.Fatalf("GetRecord: %v", err)
			}
			if tt.wantKept && old == nil {
				t.Error("record was deleted unexpectedly")
			} else if !tt.wantKept && old != nil {
				t.Error("record still exists")
			}
			if kept, _ := d.GetRecord(ctx, "sessions", "new"); kept == nil {
				t.Error("unmatched record was deleted")
			}
		})
	}
}

func TestPruneHelpExitCode(t *testing.T) {
	if os.Getenv("GO_TEST_PRUNE_HELPER_PROCESS") == "1" {
		runPrune([]string{"--help"})
		t.Fatal("runPrune did not exit")
		return
	}

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	cmd := exec.Command(exe, "-test.run=^TestPruneHelpExitCode$")
	cmd.Env = append(os.Environ(), "GO_TEST_PRUNE_HELPER_PROCESS=1")
	var out bytes.Buffer
	cmd.Stderr = &out
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		t.Fatalf("subprocess failed with %v\nOutput: %s", err, out.String())
	}
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func seedRecords(t *testing.T, d *db.DB, recs ...db.Record) {
	t.Helper()
	if _, err := d.UpsertRecords(recs); err != nil {
		t.Fatalf("seeding records: %v", err)
	}
}

func newTestPruner(t *testing.T, d *db.DB, input string) (*Pruner, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	p := &Pruner{
		DB:  d,
		Out: &buf,
		In:  strings.NewReader(input),
	}
	return p, &buf
}

func ptr[T any](v T) *T { return &v }
