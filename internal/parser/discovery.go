package parser

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wesm/clinicview/internal/db"
)

// DiscoveredFile is an export file found under an import dir.
type DiscoveredFile struct {
	Path string
	// Collection inferred from the file name; empty when the
	// name carries none and documents must say so themselves.
	Collection string
}

// IsExportFile reports whether name looks like a JSONL export.
func IsExportFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".jsonl" || ext == ".ndjson"
}

// CollectionFromName infers a collection from a file name
// prefix such as "sessions-2024-06.jsonl" or "patient_export.ndjson".
func CollectionFromName(name string) string {
	base := strings.ToLower(filepath.Base(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	end := strings.IndexFunc(base, func(r rune) bool {
		return r < 'a' || r > 'z'
	})
	if end >= 0 {
		base = base[:end]
	}
	return NormalizeCollection(base)
}

// NormalizeCollection maps singular and plural spellings onto
// the store's collection names, returning "" for anything else.
func NormalizeCollection(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.HasSuffix(s, "s") {
		s += "s"
	}
	if db.KnownCollection(s) {
		return s
	}
	return ""
}

// DiscoverExportFiles walks each dir recursively and returns the
// export files found, sorted by path. Hidden directories and
// symlinks are skipped; unreadable entries are ignored.
func DiscoverExportFiles(dirs ...string) []DiscoveredFile {
	var files []DiscoveredFile
	seen := make(map[string]bool)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		_ = filepath.WalkDir(dir, func(
			path string, d fs.DirEntry, err error,
		) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
				return nil
			}
			if !IsExportFile(path) || seen[path] {
				return nil
			}
			seen[path] = true
			files = append(files, DiscoveredFile{
				Path:       path,
				Collection: CollectionFromName(path),
			})
			return nil
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files
}
