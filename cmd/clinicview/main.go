package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/wesm/clinicview/internal/config"
	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/server"
	"github.com/wesm/clinicview/internal/sync"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	periodicSyncInterval = 15 * time.Minute
	watcherDebounce      = 500 * time.Millisecond
	shutdownTimeout      = 5 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "import":
			runImport(os.Args[2:])
			return
		case "snapshot":
			runSnapshot(os.Args[2:])
			return
		case "compare":
			runCompare(os.Args[2:])
			return
		case "watch":
			runWatch(os.Args[2:])
			return
		case "prune":
			runPrune(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("clinicview %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`clinicview %s - clinic dashboard analytics

Imports JSONL exports of sessions, patients and alerts into SQLite
and computes dashboard snapshots and period comparisons over them.

Usage:
  clinicview [flags]            Start the server (default command)
  clinicview serve [flags]      Start the server (explicit)
  clinicview import [flags]     Import exports from the import dirs
  clinicview snapshot [flags]   Print the snapshot of a date window
  clinicview compare [flags]    Compare a window with the one before it
  clinicview watch [flags]      Recompute as filter edits arrive on stdin
  clinicview prune [flags]      Delete records matching filters
  clinicview version            Show version information
  clinicview help               Show this help

Server flags:
  -host string          Host to bind to (default "127.0.0.1")
  -port int             Port to listen on (default 8090)
  -no-watch             Don't watch the import directory

Query flags (serve, import, snapshot, compare, watch):
  -center string        Center id to report on
  -timezone string      IANA timezone for day bucketing (default "UTC")
  -import-dir string    Directory scanned for JSONL exports
  -fetch-cap int        Maximum records fetched per collection (default 5000)
  -fetch-timeout dur    Timeout for loading records (default 10s)
  -min-sessions int     Sessions needed for follow-up (default 2)

Filter flags (snapshot, compare, watch):
  -from, -to            Window bounds, YYYY-MM-DD (default last 30 days)
  -professional, -patient, -type, -tone, -alert-type, -status
  -include-inactive     Count inactive patients
  -format string        Output format: json or text

Prune flags:
  -collection string    Records of this collection
  -center string        Records of this center
  -before string        Records dated before this day (YYYY-MM-DD)
  -source string        Records imported from paths containing this text
  -dry-run              Show what would be pruned without deleting
  -yes                  Skip confirmation prompt

Watch reads one edit per line, e.g.  tone="very anxious" from=2024-06-01
An empty value clears a filter. Only the newest edit's result is printed.

Environment variables:
  CLINICVIEW_DATA_DIR     Data directory (database, config, imports)
  CLINICVIEW_IMPORT_DIR   Directory scanned for exports
  CLINICVIEW_CENTER       Default center id
  CLINICVIEW_TIMEZONE     Default timezone
  CLINICVIEW_FETCH_CAP    Maximum records fetched per collection

Data is stored in ~/.clinicview/ by default.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)
	setupLogFile(cfg.DataDir)
	database := mustOpenDB(cfg)
	defer database.Close()

	importDirs := mustImportDirs(cfg)
	engine := sync.NewEngine(database, importDirs, cfg.CenterID)

	runInitialSync(engine)

	if !cfg.NoWatch {
		stopWatcher := startFileWatcher(importDirs, engine)
		defer stopWatcher()
	}

	go startPeriodicSync(engine)

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, database, engine,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)
	fmt.Printf("clinicview %s listening at %s\n", version, srv.URL())

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("clinicview", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: clinicview [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

func mustOpenDB(cfg config.Config) *db.DB {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	return database
}

// mustImportDirs returns the configured import dirs, creating
// them so the watcher has something to watch on first run.
func mustImportDirs(cfg config.Config) []string {
	dirs := cfg.ResolveImportDirs()
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("creating import dir: %v", err)
		}
	}
	return dirs
}

func runInitialSync(engine *sync.Engine) {
	fmt.Println("Running initial import...")
	stats := engine.SyncAll(printSyncProgress)
	fmt.Printf(
		"\nImport complete: %d files (%d synced, %d skipped, %d failed), %d records\n",
		stats.TotalFiles, stats.Synced, stats.Skipped,
		stats.Failed, stats.Records,
	)
}

func printSyncProgress(p sync.Progress) {
	if p.FilesTotal > 0 {
		fmt.Printf(
			"\r  %d/%d files (%.0f%%) · %d records",
			p.FilesDone, p.FilesTotal,
			p.Percent(), p.RecordsImported,
		)
	}
}

// startFileWatcher imports changed exports as they appear and
// returns a function that stops watching.
func startFileWatcher(dirs []string, engine *sync.Engine) func() {
	onChange := func(paths []string) {
		stats := engine.SyncPaths(paths)
		for _, w := range stats.Warnings {
			log.Printf("warning: %s", w)
		}
	}
	watcher, err := sync.NewWatcher(watcherDebounce, onChange)
	if err != nil {
		log.Printf("warning: file watcher unavailable: %v", err)
		return func() {}
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if _, err := watcher.WatchRecursive(dir); err != nil {
			log.Printf("warning: watching %s: %v", dir, err)
		}
	}
	watcher.Start()
	return watcher.Stop
}

func startPeriodicSync(engine *sync.Engine) {
	ticker := time.NewTicker(periodicSyncInterval)
	defer ticker.Stop()
	for range ticker.C {
		log.Println("Running scheduled import...")
		engine.SyncAll(nil)
	}
}
