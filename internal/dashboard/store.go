package dashboard

import (
	"context"

	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/metrics"
	"github.com/wesm/clinicview/internal/parser"
)

// Store is the record source consumed by the Loader. Each fetch
// returns at most limit records, newest first; an empty result is
// not an error. Dates are already normalized on return.
type Store interface {
	FetchSessions(ctx context.Context, centerID string, w metrics.DateWindow, limit int) ([]metrics.Session, error)
	FetchPatients(ctx context.Context, centerID string, limit int) ([]metrics.Patient, error)
	FetchAlerts(ctx context.Context, centerID string, w metrics.DateWindow, limit int) ([]metrics.Alert, error)
}

// DBStore reads records from the SQLite record store.
type DBStore struct {
	db *db.DB
}

// NewDBStore returns a Store backed by d.
func NewDBStore(d *db.DB) *DBStore {
	return &DBStore{db: d}
}

func (s *DBStore) fetch(
	ctx context.Context, q db.RecordQuery,
) ([]db.Record, error) {
	return s.db.FetchRecords(ctx, q)
}

// FetchSessions returns sessions dated within w (padded for
// timezone bucketing).
func (s *DBStore) FetchSessions(
	ctx context.Context, centerID string,
	w metrics.DateWindow, limit int,
) ([]metrics.Session, error) {
	recs, err := s.fetch(ctx, db.RecordQuery{
		Collection: db.CollectionSessions,
		CenterID:   centerID,
		From:       w.Start,
		To:         w.End,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]metrics.Session, 0, len(recs))
	for _, r := range recs {
		out = append(out, parser.DecodeSession(r.ID, r.Body))
	}
	return out, nil
}

// FetchPatients returns the center's patients regardless of
// creation date.
func (s *DBStore) FetchPatients(
	ctx context.Context, centerID string, limit int,
) ([]metrics.Patient, error) {
	recs, err := s.fetch(ctx, db.RecordQuery{
		Collection: db.CollectionPatients,
		CenterID:   centerID,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]metrics.Patient, 0, len(recs))
	for _, r := range recs {
		out = append(out, parser.DecodePatient(r.ID, r.Body))
	}
	return out, nil
}

// FetchAlerts returns alerts created within w.
func (s *DBStore) FetchAlerts(
	ctx context.Context, centerID string,
	w metrics.DateWindow, limit int,
) ([]metrics.Alert, error) {
	recs, err := s.fetch(ctx, db.RecordQuery{
		Collection: db.CollectionAlerts,
		CenterID:   centerID,
		From:       w.Start,
		To:         w.End,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]metrics.Alert, 0, len(recs))
	for _, r := range recs {
		out = append(out, parser.DecodeAlert(r.ID, r.Body))
	}
	return out, nil
}
