package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Collection names as they appear in exports.
const (
	CollectionSessions = "sessions"
	CollectionPatients = "patients"
	CollectionAlerts   = "alerts"
)

// Collections lists the collections the store understands.
var Collections = []string{
	CollectionSessions, CollectionPatients, CollectionAlerts,
}

// KnownCollection reports whether name is one of Collections.
func KnownCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// Record is one stored document.
type Record struct {
	Collection string  `json:"collection"`
	ID         string  `json:"id"`
	CenterID   string  `json:"center_id"`
	Date       *string `json:"record_date,omitempty"` // RFC3339 UTC
	Body       string  `json:"body"`
	SourcePath string  `json:"source_path,omitempty"`
	ImportedAt string  `json:"imported_at,omitempty"`
}

// UpsertRecords inserts or replaces records keyed by
// (collection, id) in one transaction and returns how many rows
// were written.
func (db *DB) UpsertRecords(recs []Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	n := 0
	err := db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO records (
				collection, id, center_id, record_date,
				body, source_path
			) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET
				center_id = excluded.center_id,
				record_date = excluded.record_date,
				body = excluded.body,
				source_path = excluded.source_path,
				imported_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, r := range recs {
			if r.Collection == "" || r.ID == "" {
				return fmt.Errorf(
					"record missing collection or id: %q/%q",
					r.Collection, r.ID,
				)
			}
			if _, err := stmt.Exec(
				r.Collection, r.ID, r.CenterID, r.Date,
				r.Body, r.SourcePath,
			); err != nil {
				return fmt.Errorf(
					"upserting %s/%s: %w",
					r.Collection, r.ID, err,
				)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecordQuery selects records of one collection.
type RecordQuery struct {
	Collection string
	CenterID   string // empty = all centers
	From       string // YYYY-MM-DD, inclusive; empty = unbounded
	To         string // YYYY-MM-DD, inclusive; empty = unbounded
	Limit      int    // <= 0 = no limit
}

// utcRange returns UTC bounds padded by ±14h so records on the
// edge of a local calendar day are still returned; callers
// narrow to exact local days afterwards.
func (q RecordQuery) utcRange() (string, string) {
	var from, to string
	if q.From != "" {
		from = q.From + "T00:00:00Z"
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			from = t.Add(-14 * time.Hour).Format(time.RFC3339)
		}
	}
	if q.To != "" {
		to = q.To + "T23:59:59.999999999Z"
		if t, err := time.Parse(time.RFC3339Nano, to); err == nil {
			to = t.Add(14 * time.Hour).Format(time.RFC3339Nano)
		}
	}
	return from, to
}

func (q RecordQuery) buildWhere() (string, []any) {
	preds := []string{"collection = ?"}
	args := []any{q.Collection}

	if q.CenterID != "" {
		preds = append(preds, "center_id = ?")
		args = append(args, q.CenterID)
	}
	from, to := q.utcRange()
	if from != "" {
		preds = append(preds, "record_date >= ?")
		args = append(args, from)
	}
	if to != "" {
		preds = append(preds, "record_date <= ?")
		args = append(args, to)
	}
	return strings.Join(preds, " AND "), args
}

const recordCols = `collection, id, center_id, record_date,
	body, source_path, imported_at`

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.Collection, &r.ID, &r.CenterID, &r.Date,
			&r.Body, &r.SourcePath, &r.ImportedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchRecords returns records matching q, newest first.
// Records without a date sort last and are excluded whenever a
// window bound is set.
func (db *DB) FetchRecords(
	ctx context.Context, q RecordQuery,
) ([]Record, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	where, args := q.buildWhere()
	query := "SELECT " + recordCols +
		" FROM records WHERE " + where +
		" ORDER BY record_date IS NULL, record_date DESC, id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf(
			"querying %s: %w", q.Collection, err,
		)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetRecord returns a single record or nil when absent.
func (db *DB) GetRecord(
	ctx context.Context, collection, id string,
) (*Record, error) {
	rows, err := db.reader.QueryContext(ctx,
		"SELECT "+recordCols+
			" FROM records WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	defer rows.Close()
	recs, err := scanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}
