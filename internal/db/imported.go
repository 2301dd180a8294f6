package db

import "fmt"

// FileMeta is the skip-cache entry of an imported file.
type FileMeta struct {
	Mtime   int64
	Size    int64
	Records int
}

// LoadImportedFiles returns all persisted skip cache entries
// keyed by file path.
func (db *DB) LoadImportedFiles() (map[string]FileMeta, error) {
	rows, err := db.reader.Query(
		"SELECT file_path, file_mtime, file_size, record_count" +
			" FROM imported_files",
	)
	if err != nil {
		return nil, fmt.Errorf(
			"loading imported files: %w", err,
		)
	}
	defer rows.Close()

	result := make(map[string]FileMeta)
	for rows.Next() {
		var path string
		var m FileMeta
		if err := rows.Scan(
			&path, &m.Mtime, &m.Size, &m.Records,
		); err != nil {
			return nil, fmt.Errorf(
				"scanning imported file: %w", err,
			)
		}
		result[path] = m
	}
	return result, rows.Err()
}

// MarkImported records that path was imported at the given
// mtime and size.
func (db *DB) MarkImported(path string, m FileMeta) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.writer.Exec(`
		INSERT INTO imported_files (
			file_path, file_mtime, file_size, record_count
		) VALUES (?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			file_mtime = excluded.file_mtime,
			file_size = excluded.file_size,
			record_count = excluded.record_count,
			imported_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		path, m.Mtime, m.Size, m.Records,
	)
	if err != nil {
		return fmt.Errorf("marking %s imported: %w", path, err)
	}
	return nil
}

// ForgetImported removes a single skip cache entry so the file
// is re-read on the next sync.
func (db *DB) ForgetImported(path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.writer.Exec(
		"DELETE FROM imported_files WHERE file_path = ?",
		path,
	)
	return err
}

// ResetImported clears the skip cache.
func (db *DB) ResetImported() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.writer.Exec("DELETE FROM imported_files")
	return err
}
