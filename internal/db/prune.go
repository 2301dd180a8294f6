package db

import (
	"fmt"
	"strings"
)

// PruneFilter defines criteria for finding records to prune.
// Filters combine with AND. At least one must be set.
type PruneFilter struct {
	Collection string // exact collection name
	CenterID   string // exact center id
	Before     string // record_date < date (YYYY-MM-DD)
	Source     string // source_path substring (LIKE '%x%')
}

// HasFilters reports whether at least one filter is set.
func (f PruneFilter) HasFilters() bool {
	return f.Collection != "" ||
		f.CenterID != "" ||
		f.Before != "" ||
		f.Source != ""
}

// escapeLike escapes SQL LIKE wildcard characters so user
// input is matched literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`, `%`, `\%`, `_`, `\_`,
	)
	return r.Replace(s)
}

func (f PruneFilter) buildWhere() (string, []any) {
	where := "1=1"
	var args []any
	if f.Collection != "" {
		where += " AND collection = ?"
		args = append(args, f.Collection)
	}
	if f.CenterID != "" {
		where += " AND center_id = ?"
		args = append(args, f.CenterID)
	}
	if f.Before != "" {
		where += " AND record_date < ?"
		args = append(args, f.Before)
	}
	if f.Source != "" {
		where += ` AND source_path LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(f.Source)+"%")
	}
	return where, args
}

// FindPruneCandidates returns records matching all filter
// criteria, newest first.
func (db *DB) FindPruneCandidates(
	f PruneFilter,
) ([]Record, error) {
	if !f.HasFilters() {
		return nil, fmt.Errorf("at least one filter is required")
	}
	where, args := f.buildWhere()
	rows, err := db.reader.Query(
		"SELECT "+recordCols+" FROM records WHERE "+where+
			" ORDER BY record_date IS NULL, record_date DESC, collection, id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying prune candidates: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// PruneRecords deletes every record matching f and returns the
// number of rows removed.
func (db *DB) PruneRecords(f PruneFilter) (int, error) {
	if !f.HasFilters() {
		return 0, fmt.Errorf("at least one filter is required")
	}
	where, args := f.buildWhere()

	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.writer.Exec(
		"DELETE FROM records WHERE "+where, args...,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
