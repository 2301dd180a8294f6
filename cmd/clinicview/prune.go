package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/wesm/clinicview/internal/config"
	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/parser"
)

// PruneConfig holds parsed CLI options for the prune command.
type PruneConfig struct {
	Filter db.PruneFilter
	DryRun bool
	Yes    bool
}

func parsePruneFlags(args []string) (PruneConfig, error) {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	collection := fs.String(
		"collection", "",
		"Records of this collection (sessions, patients, alerts)",
	)
	center := fs.String(
		"center", "",
		"Records belonging to this center",
	)
	before := fs.String(
		"before", "",
		"Records dated before this day (YYYY-MM-DD)",
	)
	source := fs.String(
		"source", "",
		"Records imported from paths containing this text",
	)
	dryRun := fs.Bool(
		"dry-run", false,
		"Show what would be pruned without deleting",
	)
	yes := fs.Bool(
		"yes", false,
		"Skip confirmation prompt",
	)

	if err := fs.Parse(args); err != nil {
		return PruneConfig{}, err
	}

	coll := ""
	if *collection != "" {
		coll = parser.NormalizeCollection(*collection)
		if coll == "" {
			return PruneConfig{}, fmt.Errorf(
				"unknown collection: %s", *collection,
			)
		}
	}
	if *before != "" {
		if _, err := time.Parse("2006-01-02", *before); err != nil {
			return PruneConfig{}, fmt.Errorf(
				"before must be YYYY-MM-DD, got %q", *before,
			)
		}
	}

	cfg := PruneConfig{
		Filter: db.PruneFilter{
			Collection: coll,
			CenterID:   *center,
			Before:     *before,
			Source:     *source,
		},
		DryRun: *dryRun,
		Yes:    *yes,
	}

	if !cfg.Filter.HasFilters() {
		return PruneConfig{}, fmt.Errorf(
			"at least one filter is required\n" +
				"use --collection, --center, --before, or --source",
		)
	}

	return cfg, nil
}

// Pruner executes the prune workflow against a database.
type Pruner struct {
	DB  *db.DB
	Out io.Writer
	In  io.Reader
}

// Prune finds matching records and deletes them.
func (p *Pruner) Prune(cfg PruneConfig) error {
	if !cfg.Filter.HasFilters() {
		return fmt.Errorf(
			"at least one filter is required " +
				"(refusing to prune all records)",
		)
	}

	candidates, err := p.DB.FindPruneCandidates(cfg.Filter)
	if err != nil {
		return fmt.Errorf("finding candidates: %w", err)
	}

	if len(candidates) == 0 {
		fmt.Fprintln(p.Out,
			"No records match the given filters.")
		return nil
	}

	writeSummary(p.Out, candidates)

	if cfg.DryRun {
		fmt.Fprintln(p.Out, "\nDry run: no changes made.")
		return nil
	}

	if !cfg.Yes {
		msg := fmt.Sprintf(
			"\nDelete %d records?", len(candidates),
		)
		if !confirm(p.In, p.Out, msg) {
			fmt.Fprintln(p.Out, "Aborted.")
			return nil
		}
	}

	deleted, err := p.DB.PruneRecords(cfg.Filter)
	if err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}

	fmt.Fprintf(p.Out, "\nDeleted %d records\n", deleted)
	return nil
}

func confirm(r io.Reader, w io.Writer, msg string) bool {
	fmt.Fprintf(w, "%s [y/N] ", msg)
	scanner := bufio.NewScanner(r)
	scanner.Scan()
	ans := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return ans == "y" || ans == "yes"
}

// writeSummary prints the candidate count, the date span they
// cover and a per-collection breakdown.
func writeSummary(w io.Writer, recs []db.Record) {
	byCollection := map[string]int{}
	var collections []string
	oldest, newest := "", ""
	for _, r := range recs {
		if byCollection[r.Collection] == 0 {
			collections = append(collections, r.Collection)
		}
		byCollection[r.Collection]++
		if r.Date == nil || len(*r.Date) < 10 {
			continue
		}
		day := (*r.Date)[:10]
		if oldest == "" || day < oldest {
			oldest = day
		}
		if day > newest {
			newest = day
		}
	}

	sort.Strings(collections)

	fmt.Fprintf(w, "Found %d records", len(recs))
	if oldest != "" {
		fmt.Fprintf(w, " dated %s to %s", oldest, newest)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "\nBy collection:")
	for _, c := range collections {
		fmt.Fprintf(w, "  %-40s %d\n", c, byCollection[c])
	}
}

func runPrune(args []string) {
	cfg, err := parsePruneFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	appCfg, err := config.LoadMinimal()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	database, err := db.Open(appCfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	pruner := &Pruner{
		DB:  database,
		Out: os.Stdout,
		In:  os.Stdin,
	}
	if err := pruner.Prune(cfg); err != nil {
		log.Fatalf("prune: %v", err)
	}
}
