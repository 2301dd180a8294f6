package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/wesm/clinicview/internal/dashboard"
	"github.com/wesm/clinicview/internal/metrics"
)

// fetchErrorBody reports collections that could not be loaded.
// The accompanying result was computed without them.
type fetchErrorBody struct {
	Message     string   `json:"message"`
	Collections []string `json:"collections"`
}

type snapshotResponse struct {
	metrics.Snapshot
	FetchError *fetchErrorBody `json:"fetch_error,omitempty"`
}

type comparisonResponse struct {
	metrics.Comparison
	FetchError *fetchErrorBody `json:"fetch_error,omitempty"`
}

func (s *Server) defaultQuery() dashboard.Query {
	return dashboard.Query{
		CenterID: s.cfg.CenterID,
		Filter:   metrics.Filter{Timezone: s.cfg.Timezone},
	}
}

// parseAnalyticsQuery extracts the analytics filter from a
// request, writing a 400 when it is malformed.
func (s *Server) parseAnalyticsQuery(
	w http.ResponseWriter, r *http.Request,
) (dashboard.Query, bool) {
	q, err := dashboard.ParseQuery(
		r.URL.Query(), s.defaultQuery(), s.now(),
	)
	switch {
	case err == nil:
		return q, true
	case errors.Is(err, metrics.ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest,
			"from must not be after to")
	case errors.Is(err, metrics.ErrInvalidDate):
		writeError(w, http.StatusBadRequest,
			"invalid date format: use YYYY-MM-DD")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
	return dashboard.Query{}, false
}

// splitFetchError separates a partial-load error from fatal ones.
func splitFetchError(err error) (*fetchErrorBody, error) {
	var fe *dashboard.FetchError
	if errors.As(err, &fe) {
		return &fetchErrorBody{
			Message:     fe.Error(),
			Collections: fe.Collections(),
		}, nil
	}
	return nil, err
}

func (s *Server) handleSnapshot(
	w http.ResponseWriter, r *http.Request,
) {
	q, ok := s.parseAnalyticsQuery(w, r)
	if !ok {
		return
	}

	snap, err := s.service.Snapshot(r.Context(), q.CenterID, q.Filter)
	if r.Context().Err() != nil {
		return
	}
	fetchErr, err := splitFetchError(err)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("snapshot error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	if fetchErr != nil {
		log.Printf("snapshot: partial data: %s", fetchErr.Message)
	}
	s.metrics.computed("snapshot")
	writeJSON(w, http.StatusOK, snapshotResponse{
		Snapshot:   snap,
		FetchError: fetchErr,
	})
}

func (s *Server) handleCompare(
	w http.ResponseWriter, r *http.Request,
) {
	q, ok := s.parseAnalyticsQuery(w, r)
	if !ok {
		return
	}

	streaming, _ := strconv.ParseBool(r.URL.Query().Get("stream"))
	if !streaming {
		s.compareJSON(w, r, q)
		return
	}

	stream, err := NewSSEStream(w)
	if err != nil {
		s.compareJSON(w, r, q)
		return
	}
	cmp, err := s.service.Compare(
		r.Context(), q.CenterID, q.Filter,
		func(p metrics.Phase) {
			stream.SendJSON("phase", map[string]metrics.Phase{"phase": p})
		},
	)
	if r.Context().Err() != nil {
		return
	}
	fetchErr, err := splitFetchError(err)
	if err != nil {
		log.Printf("compare error: %v", err)
		stream.SendJSON("error", jsonError{Error: "internal server error"})
		return
	}
	s.metrics.computed("compare")
	stream.SendJSON("done", comparisonResponse{
		Comparison: cmp,
		FetchError: fetchErr,
	})
}

func (s *Server) compareJSON(
	w http.ResponseWriter, r *http.Request, q dashboard.Query,
) {
	cmp, err := s.service.Compare(r.Context(), q.CenterID, q.Filter, nil)
	if r.Context().Err() != nil {
		return
	}
	fetchErr, err := splitFetchError(err)
	if err != nil {
		log.Printf("compare error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	s.metrics.computed("compare")
	writeJSON(w, http.StatusOK, comparisonResponse{
		Comparison: cmp,
		FetchError: fetchErr,
	})
}
