package sync

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	gosync "sync"
	"time"

	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/parser"
)

const (
	batchSize  = 100
	maxWorkers = 8
	// maxBatchRecords flushes a batch early when large exports
	// would otherwise hold too many documents in memory.
	maxBatchRecords = 20000
)

// Engine imports export files from the import directories into
// the record store.
type Engine struct {
	db         *db.DB
	importDirs []string
	centerID   string
	syncMu     gosync.Mutex // serializes import runs
	mu         gosync.RWMutex
	lastSync   time.Time
	lastStats  SyncStats
	generation uint64
	// imported mirrors the imported_files table: paths already
	// imported at the recorded mtime and size.
	fileMu   gosync.RWMutex
	imported map[string]db.FileMeta
}

// NewEngine creates an import engine. The skip cache is loaded
// from the database so unchanged files are not re-read after a
// restart.
func NewEngine(
	database *db.DB, importDirs []string, centerID string,
) *Engine {
	imported := make(map[string]db.FileMeta)
	if loaded, err := database.LoadImportedFiles(); err == nil {
		imported = loaded
	} else {
		log.Printf("loading import cache: %v", err)
	}
	return &Engine{
		db:         database,
		importDirs: importDirs,
		centerID:   centerID,
		imported:   imported,
	}
}

// ImportDirs returns the directories scanned by SyncAll.
func (e *Engine) ImportDirs() []string {
	return e.importDirs
}

// LastSync returns the time of the last completed import.
func (e *Engine) LastSync() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// LastSyncStats returns statistics from the last import.
func (e *Engine) LastSyncStats() SyncStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastStats
}

// Generation increases every time an import writes records.
// Readers compare generations to detect new data.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

func (e *Engine) finish(stats SyncStats) {
	e.mu.Lock()
	e.lastSync = time.Now()
	e.lastStats = stats
	if stats.Changed() {
		e.generation++
	}
	e.mu.Unlock()
}

// SyncAll discovers and imports every export file under the
// import directories. Files unchanged since their last import
// are skipped.
func (e *Engine) SyncAll(onProgress ProgressFunc) SyncStats {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.syncAllLocked(onProgress)
}

// ResyncAll clears the import cache and re-reads every file.
// Existing records are replaced by id.
func (e *Engine) ResyncAll(onProgress ProgressFunc) SyncStats {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	if err := e.db.ResetImported(); err != nil {
		log.Printf("resetting import cache: %v", err)
	}
	e.fileMu.Lock()
	e.imported = make(map[string]db.FileMeta)
	e.fileMu.Unlock()
	return e.syncAllLocked(onProgress)
}

func (e *Engine) syncAllLocked(onProgress ProgressFunc) SyncStats {
	t0 := time.Now()
	if onProgress != nil {
		onProgress(Progress{Phase: PhaseDiscovering})
	}

	files := parser.DiscoverExportFiles(e.importDirs...)
	verbose := onProgress == nil
	if verbose {
		log.Printf(
			"discovered %d export file(s) in %s",
			len(files), time.Since(t0).Round(time.Millisecond),
		)
	}

	if onProgress != nil {
		onProgress(Progress{
			Phase:      PhaseImporting,
			FilesTotal: len(files),
		})
	}

	tWorkers := time.Now()
	results := e.startWorkers(files)
	stats := e.collectAndBatch(results, len(files), onProgress)
	if verbose {
		log.Printf(
			"import: %d file(s) synced, %d skipped, %d record(s) in %s",
			stats.Synced, stats.Skipped, stats.Records,
			time.Since(tWorkers).Round(time.Millisecond),
		)
	}

	e.finish(stats)
	return stats
}

// SyncPaths imports only the given paths, typically reported by
// the watcher or written by an upload. Paths outside the import
// directories or without an export extension are ignored.
func (e *Engine) SyncPaths(paths []string) SyncStats {
	files := e.classifyPaths(paths)
	if len(files) == 0 {
		return SyncStats{}
	}

	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	results := e.startWorkers(files)
	stats := e.collectAndBatch(results, len(files), nil)
	e.finish(stats)

	if stats.Synced > 0 {
		log.Printf(
			"import: %d file(s) updated, %d record(s)",
			stats.Synced, stats.Records,
		)
	}
	return stats
}

// isUnder checks whether path is strictly inside dir after
// cleaning both paths.
func isUnder(dir, path string) bool {
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	sep := string(filepath.Separator)
	return rel != "." && rel != ".." &&
		!strings.HasPrefix(rel, ".."+sep)
}

func (e *Engine) classifyPaths(paths []string) []parser.DiscoveredFile {
	var files []parser.DiscoveredFile
	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] || !parser.IsExportFile(p) {
			continue
		}
		for _, dir := range e.importDirs {
			if dir != "" && isUnder(dir, p) {
				seen[p] = true
				files = append(files, parser.DiscoveredFile{
					Path:       p,
					Collection: parser.CollectionFromName(p),
				})
				break
			}
		}
	}
	return files
}

type processResult struct {
	path    string
	meta    db.FileMeta
	records []db.Record
	invalid int
	skip    bool
	err     error
}

func (e *Engine) startWorkers(
	files []parser.DiscoveredFile,
) <-chan processResult {
	workers := min(max(runtime.NumCPU(), 2), maxWorkers)

	jobs := make(chan parser.DiscoveredFile, len(files))
	results := make(chan processResult, len(files))

	for range workers {
		go func() {
			for file := range jobs {
				results <- e.processFile(file)
			}
		}()
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	return results
}

func (e *Engine) processFile(file parser.DiscoveredFile) processResult {
	res := processResult{path: file.Path}

	info, err := os.Lstat(file.Path)
	if err != nil {
		res.err = fmt.Errorf("stat %s: %w", file.Path, err)
		return res
	}
	if !info.Mode().IsRegular() {
		res.err = fmt.Errorf("%s: not a regular file", file.Path)
		return res
	}
	res.meta = db.FileMeta{
		Mtime: info.ModTime().UnixNano(),
		Size:  info.Size(),
	}

	e.fileMu.RLock()
	cached, ok := e.imported[file.Path]
	e.fileMu.RUnlock()
	if ok && cached.Mtime == res.meta.Mtime &&
		cached.Size == res.meta.Size {
		res.skip = true
		return res
	}

	parsed, err := parser.ParseFile(file.Path, e.centerID)
	if err != nil {
		res.err = err
		return res
	}
	res.invalid = parsed.Skipped
	res.records = make([]db.Record, 0, len(parsed.Documents))
	for _, d := range parsed.Documents {
		res.records = append(res.records, d.ToRecord(file.Path))
	}
	res.meta.Records = len(res.records)
	return res
}

func (e *Engine) collectAndBatch(
	results <-chan processResult, total int,
	onProgress ProgressFunc,
) SyncStats {
	stats := SyncStats{TotalFiles: total}
	progress := Progress{
		Phase:      PhaseImporting,
		FilesTotal: total,
	}
	report := func(path string) {
		progress.FilesDone++
		progress.CurrentFile = filepath.Base(path)
		if onProgress != nil {
			onProgress(progress)
		}
	}

	var pending []processResult
	pendingRecords := 0
	flush := func() {
		if len(pending) == 0 {
			return
		}
		written := e.writeBatch(pending, &stats)
		progress.RecordsImported += written
		pending = pending[:0]
		pendingRecords = 0
	}

	for range total {
		r := <-results
		switch {
		case r.err != nil:
			log.Printf("import error: %v", r.err)
			stats.RecordFailed(r.err.Error())
			if r.meta.Mtime != 0 {
				// Unreadable exports are retried once they change.
				e.remember(r.path, r.meta)
			}
		case r.skip:
			stats.RecordSkip()
		default:
			stats.Invalid += r.invalid
			pending = append(pending, r)
			pendingRecords += len(r.records)
			if len(pending) >= batchSize ||
				pendingRecords >= maxBatchRecords {
				flush()
			}
		}
		report(r.path)
	}
	flush()

	progress.Phase = PhaseDone
	progress.CurrentFile = ""
	if onProgress != nil {
		onProgress(progress)
	}
	return stats
}

// writeBatch stores the records of each file, then marks the
// file imported so a failed write is retried on the next run.
func (e *Engine) writeBatch(
	batch []processResult, stats *SyncStats,
) int {
	written := 0
	for _, r := range batch {
		n, err := e.db.UpsertRecords(r.records)
		if err != nil {
			log.Printf("writing %s: %v", r.path, err)
			stats.RecordFailed(fmt.Sprintf("%s: %v", r.path, err))
			continue
		}
		e.remember(r.path, r.meta)
		stats.RecordSynced(n)
		written += n
	}
	return written
}

func (e *Engine) remember(path string, meta db.FileMeta) {
	if err := e.db.MarkImported(path, meta); err != nil {
		log.Printf("marking %s imported: %v", path, err)
	}
	e.fileMu.Lock()
	e.imported[path] = meta
	e.fileMu.Unlock()
}
