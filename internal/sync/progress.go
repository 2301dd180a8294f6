package sync

// Phase describes the current import phase.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseImporting   Phase = "importing"
	PhaseDone        Phase = "done"
)

// Progress reports import progress to listeners.
type Progress struct {
	Phase           Phase  `json:"phase"`
	CurrentFile     string `json:"current_file,omitempty"`
	FilesTotal      int    `json:"files_total"`
	FilesDone       int    `json:"files_done"`
	RecordsImported int    `json:"records_imported"`
}

// SyncStats summarizes an import run.
//
// Synced and Skipped count files; Records counts documents
// written and Invalid counts lines dropped while parsing.
type SyncStats struct {
	TotalFiles int      `json:"total_files"`
	Synced     int      `json:"synced"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Records    int      `json:"records"`
	Invalid    int      `json:"invalid"`
	Warnings   []string `json:"warnings,omitempty"`
}

// RecordSkip increments the skipped file counter.
func (s *SyncStats) RecordSkip() {
	s.Skipped++
}

// RecordSynced adds a file that produced n records.
func (s *SyncStats) RecordSynced(n int) {
	s.Synced++
	s.Records += n
}

// RecordFailed increments the hard-failure counter and keeps
// the message for the caller.
func (s *SyncStats) RecordFailed(msg string) {
	s.Failed++
	if msg != "" {
		s.Warnings = append(s.Warnings, msg)
	}
}

// Changed reports whether the run wrote anything.
func (s SyncStats) Changed() bool {
	return s.Records > 0
}

// Percent returns the import progress as a percentage (0–100).
func (p Progress) Percent() float64 {
	if p.FilesTotal == 0 {
		return 0
	}
	return float64(p.FilesDone) /
		float64(p.FilesTotal) * 100
}

// ProgressFunc is called with progress updates during import.
type ProgressFunc func(Progress)
