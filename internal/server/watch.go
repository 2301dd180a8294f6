package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/wesm/clinicview/internal/dashboard"
)

const (
	// pollInterval is how often watch streams check the import
	// generation.
	pollInterval = 1500 * time.Millisecond
	// heartbeatTicks is the keepalive period in poll intervals
	// (~30s).
	heartbeatTicks = 20
)

// watchEvent is one recomputed snapshot on a watch stream.
type watchEvent struct {
	snapshotResponse
	ImportGeneration uint64 `json:"import_generation"`
}

type watchResult struct {
	gen     uint64
	imports uint64
	event   watchEvent
	err     error
}

// handleWatch streams a snapshot for the requested filter and a
// fresh one after every import that changed records. A slow
// computation is cancelled when a newer import arrives, and its
// result is dropped if it still completes.
func (s *Server) handleWatch(
	w http.ResponseWriter, r *http.Request,
) {
	q, ok := s.parseAnalyticsQuery(w, r)
	if !ok {
		return
	}
	stream, err := NewSSEStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			"streaming not supported")
		return
	}

	ctx := r.Context()
	var latest dashboard.Latest[watchEvent]
	results := make(chan watchResult)
	cancelPrev := context.CancelFunc(func() {})
	defer func() { cancelPrev() }()

	start := func(imports uint64) {
		cancelPrev()
		cctx, cancel := context.WithCancel(ctx)
		cancelPrev = cancel
		gen := latest.Begin()
		go func() {
			snap, err := s.service.Snapshot(cctx, q.CenterID, q.Filter)
			res := watchResult{gen: gen, imports: imports, err: err}
			res.event.Snapshot = snap
			res.event.ImportGeneration = imports
			select {
			case results <- res:
			case <-ctx.Done():
			}
		}()
	}

	imports := s.engine.Generation()
	start(imports)

	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()
	ticks := 0

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-results:
			if !s.sendWatchResult(stream, &latest, res) {
				return
			}
		case <-ticker.C:
			if g := s.engine.Generation(); g != imports {
				imports = g
				start(g)
			}
			ticks++
			if ticks%heartbeatTicks == 0 && !stream.Heartbeat() {
				return
			}
		}
	}
}

// sendWatchResult publishes res unless a newer computation has
// started. It returns false when the client is gone.
func (s *Server) sendWatchResult(
	stream *SSEStream, latest *dashboard.Latest[watchEvent],
	res watchResult,
) bool {
	fetchErr, err := splitFetchError(res.err)
	res.event.FetchError = fetchErr
	if !latest.Accept(res.gen, res.event) {
		s.metrics.staleResults.Inc()
		return true
	}
	if err != nil {
		if handleContextError(nil, err) {
			return true
		}
		log.Printf("watch snapshot error: %v", err)
		return stream.SendJSON("error", jsonError{Error: err.Error()})
	}
	s.metrics.computed("watch")
	return stream.SendWithID("snapshot", res.imports, res.event)
}
