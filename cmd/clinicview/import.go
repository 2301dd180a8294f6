package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/wesm/clinicview/internal/config"
	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/sync"
)

// importOptions is a parsed import command line.
type importOptions struct {
	cfg        config.Config
	dirs       []string
	resync     bool
	saveCenter bool
}

func parseImportFlags(args []string) (importOptions, error) {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: clinicview import [flags] [dir...]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterQueryFlags(fs)
	resync := fs.Bool(
		"resync", false,
		"Forget what was imported and read every export again",
	)
	saveCenter := fs.Bool(
		"save-center", false,
		"Store -center as the default center in config.json",
	)
	if err := fs.Parse(args); err != nil {
		return importOptions{}, err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return importOptions{}, err
	}
	if *saveCenter && cfg.CenterID == "" {
		return importOptions{}, fmt.Errorf(
			"-save-center needs -center",
		)
	}

	dirs := cfg.ResolveImportDirs()
	dirs = append(dirs, fs.Args()...)
	return importOptions{
		cfg:        cfg,
		dirs:       dirs,
		resync:     *resync,
		saveCenter: *saveCenter,
	}, nil
}

// runImportWith imports opts.dirs into database, reporting to out.
// It returns the run's stats.
func runImportWith(
	database *db.DB, opts importOptions, out io.Writer,
) sync.SyncStats {
	engine := sync.NewEngine(database, opts.dirs, opts.cfg.CenterID)
	progress := func(p sync.Progress) {
		if p.FilesTotal > 0 {
			fmt.Fprintf(out, "\r  %d/%d files (%.0f%%) · %d records",
				p.FilesDone, p.FilesTotal,
				p.Percent(), p.RecordsImported)
		}
	}

	var stats sync.SyncStats
	if opts.resync {
		stats = engine.ResyncAll(progress)
	} else {
		stats = engine.SyncAll(progress)
	}

	fmt.Fprintf(out,
		"\nImported %d records from %d files (%d skipped, %d failed, %d invalid lines)\n",
		stats.Records, stats.Synced, stats.Skipped,
		stats.Failed, stats.Invalid,
	)
	for _, w := range stats.Warnings {
		fmt.Fprintf(out, "  %s\n", w)
	}
	return stats
}

func runImport(args []string) {
	opts, err := parseImportFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(opts.cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	if opts.saveCenter {
		if err := opts.cfg.SaveCenter(opts.cfg.CenterID); err != nil {
			log.Fatalf("saving center: %v", err)
		}
	}

	database := mustOpenDB(opts.cfg)
	defer database.Close()

	stats := runImportWith(database, opts, os.Stdout)
	if stats.Failed > 0 {
		database.Close()
		os.Exit(1)
	}
}
