package db

import (
	"context"
	"fmt"
)

// Stats holds record store statistics.
type Stats struct {
	RecordCount   int            `json:"record_count"`
	Collections   map[string]int `json:"collections"`
	CenterCount   int            `json:"center_count"`
	ImportedFiles int            `json:"imported_files"`
	OldestDate    *string        `json:"oldest_date,omitempty"`
	NewestDate    *string        `json:"newest_date,omitempty"`
}

// GetStats returns per-collection counts and the overall date
// span of the store.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	s := Stats{Collections: make(map[string]int)}

	err := db.reader.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM records),
			(SELECT COUNT(DISTINCT center_id) FROM records),
			(SELECT COUNT(*) FROM imported_files),
			(SELECT MIN(record_date) FROM records),
			(SELECT MAX(record_date) FROM records)`,
	).Scan(
		&s.RecordCount, &s.CenterCount, &s.ImportedFiles,
		&s.OldestDate, &s.NewestDate,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}

	rows, err := db.reader.QueryContext(ctx,
		"SELECT collection, COUNT(*) FROM records GROUP BY collection",
	)
	if err != nil {
		return Stats{}, fmt.Errorf("counting collections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return Stats{}, fmt.Errorf("scanning collection count: %w", err)
		}
		s.Collections[name] = n
	}
	return s, rows.Err()
}
