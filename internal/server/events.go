package server

import (
	"net/http"
	"time"

	syncpkg "github.com/wesm/clinicview/internal/sync"
)

type syncStatus struct {
	LastSync   string            `json:"last_sync"`
	Stats      syncpkg.SyncStats `json:"stats"`
	Generation uint64            `json:"generation"`
	ImportDirs []string          `json:"import_dirs"`
}

func (s *Server) handleTriggerSync(
	w http.ResponseWriter, r *http.Request,
) {
	s.runSync(w, s.engine.SyncAll)
}

func (s *Server) handleTriggerResync(
	w http.ResponseWriter, r *http.Request,
) {
	s.runSync(w, s.engine.ResyncAll)
}

// runSync streams progress events when the client can receive
// them and falls back to a single JSON response otherwise.
func (s *Server) runSync(
	w http.ResponseWriter,
	run func(syncpkg.ProgressFunc) syncpkg.SyncStats,
) {
	stream, err := NewSSEStream(w)
	if err != nil {
		stats := run(nil)
		s.metrics.observeSync(stats)
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats := run(func(p syncpkg.Progress) {
		stream.SendJSON("progress", p)
	})
	s.metrics.observeSync(stats)
	stream.SendJSON("done", stats)
}

func (s *Server) handleSyncStatus(
	w http.ResponseWriter, r *http.Request,
) {
	st := syncStatus{
		Stats:      s.engine.LastSyncStats(),
		Generation: s.engine.Generation(),
		ImportDirs: s.engine.ImportDirs(),
	}
	if last := s.engine.LastSync(); !last.IsZero() {
		st.LastSync = last.UTC().Format(time.RFC3339)
	}
	if st.ImportDirs == nil {
		st.ImportDirs = []string{}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetStats(
	w http.ResponseWriter, r *http.Request,
) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
