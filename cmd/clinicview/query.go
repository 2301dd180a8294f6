package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/wesm/clinicview/internal/config"
	"github.com/wesm/clinicview/internal/dashboard"
	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/metrics"
	"github.com/wesm/clinicview/internal/sync"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// filterFlags maps CLI flag names onto query parameters. The
// center and timezone flags come from config.RegisterQueryFlags
// and reach the query through the config defaults.
var filterFlags = []struct {
	flag, param, usage string
}{
	{"from", dashboard.ParamFrom, "First day of the window (YYYY-MM-DD)"},
	{"to", dashboard.ParamTo, "Last day of the window (YYYY-MM-DD)"},
	{"professional", dashboard.ParamProfessional, "Only this professional's sessions"},
	{"patient", dashboard.ParamPatient, "Only this patient's records"},
	{"type", dashboard.ParamType, "Only sessions of this type"},
	{"tone", dashboard.ParamTone, "Only this emotional tone"},
	{"alert-type", dashboard.ParamAlertType, "Only alerts of this type"},
	{"status", dashboard.ParamStatus, "Only sessions with this status"},
}

// queryOptions is a parsed snapshot, compare or watch command line.
type queryOptions struct {
	cfg    config.Config
	values url.Values
	format string
	noSync bool
}

// defaults returns the query defaults taken from config.
func (o queryOptions) defaults() dashboard.Query {
	return dashboard.Query{
		CenterID: o.cfg.CenterID,
		Filter:   metrics.Filter{Timezone: o.cfg.Timezone},
	}
}

// query resolves the current values against now.
func (o queryOptions) query(now time.Time) (dashboard.Query, error) {
	return dashboard.ParseQuery(o.values, o.defaults(), now)
}

func parseQueryFlags(name string, args []string) (queryOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	config.RegisterQueryFlags(fs)
	vals := make(map[string]*string, len(filterFlags))
	for _, ff := range filterFlags {
		vals[ff.param] = fs.String(ff.flag, "", ff.usage)
	}
	includeInactive := fs.Bool(
		"include-inactive", false, "Count inactive patients",
	)
	format := fs.String("format", formatText, "Output format: text or json")
	noSync := fs.Bool(
		"no-sync", false, "Skip importing new exports before computing",
	)

	if err := fs.Parse(args); err != nil {
		return queryOptions{}, err
	}
	if *format != formatText && *format != formatJSON {
		return queryOptions{}, fmt.Errorf(
			"format must be text or json, got %q", *format,
		)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return queryOptions{}, err
	}

	values := url.Values{}
	for param, v := range vals {
		if *v != "" {
			values.Set(param, *v)
		}
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "include-inactive" {
			values.Set(dashboard.ParamIncludeInactive,
				strconv.FormatBool(*includeInactive))
		}
	})

	return queryOptions{
		cfg:    cfg,
		values: values,
		format: *format,
		noSync: *noSync,
	}, nil
}

// newService wires a dashboard service over database the same
// way the server does.
func newService(cfg config.Config, database *db.DB) *dashboard.Service {
	loader := dashboard.NewLoader(dashboard.NewDBStore(database))
	if cfg.FetchCap > 0 {
		loader.Cap = cfg.FetchCap
	}
	if cfg.FetchTimeout > 0 {
		loader.Timeout = cfg.FetchTimeout
	}
	return dashboard.NewService(loader, metrics.Options{
		MinSessionsForFollowUp: cfg.MinSessionsForFollowUp,
	})
}

// openForQuery opens the database and, unless disabled, imports
// exports that changed since the last run.
func openForQuery(opts queryOptions) (*db.DB, *sync.Engine) {
	if err := os.MkdirAll(opts.cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	database := mustOpenDB(opts.cfg)
	engine := sync.NewEngine(
		database, opts.cfg.ResolveImportDirs(), opts.cfg.CenterID,
	)
	if !opts.noSync {
		stats := engine.SyncAll(nil)
		for _, w := range stats.Warnings {
			log.Printf("warning: %s", w)
		}
	}
	return database, engine
}

func mustParseQueryFlags(name string, args []string) queryOptions {
	opts, err := parseQueryFlags(name, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	return opts
}

func runSnapshot(args []string) {
	opts := mustParseQueryFlags("snapshot", args)
	q, err := opts.query(time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	database, _ := openForQuery(opts)
	defer database.Close()

	snap, err := newService(opts.cfg, database).Snapshot(
		context.Background(), q.CenterID, q.Filter,
	)
	if err != nil && !dashboard.IsFetchError(err) {
		log.Fatalf("snapshot: %v", err)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: partial data:", err)
	}
	if err := writeSnapshot(os.Stdout, opts.format, snap); err != nil {
		log.Fatalf("writing snapshot: %v", err)
	}
}

func runCompare(args []string) {
	opts := mustParseQueryFlags("compare", args)
	q, err := opts.query(time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	database, _ := openForQuery(opts)
	defer database.Close()

	cmp, err := newService(opts.cfg, database).Compare(
		context.Background(), q.CenterID, q.Filter,
		func(p metrics.Phase) {
			fmt.Fprintf(os.Stderr, "%s\n", p)
		},
	)
	if err != nil && !dashboard.IsFetchError(err) {
		log.Fatalf("compare: %v", err)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: partial data:", err)
	}
	if err := writeComparison(os.Stdout, opts.format, cmp); err != nil {
		log.Fatalf("writing comparison: %v", err)
	}
}

func writeSnapshot(w io.Writer, format string, snap metrics.Snapshot) error {
	if format == formatJSON {
		return writeIndentedJSON(w, snap)
	}
	writeSnapshotText(w, snap)
	return nil
}

func writeComparison(w io.Writer, format string, cmp metrics.Comparison) error {
	if format == formatJSON {
		return writeIndentedJSON(w, cmp)
	}
	writeComparisonText(w, cmp)
	return nil
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSnapshotText(w io.Writer, snap metrics.Snapshot) {
	h := snap.Headline
	fmt.Fprintf(w, "Window %s to %s\n\n", snap.Window.Start, snap.Window.End)
	rows := []struct {
		label string
		value string
	}{
		{"Patients", strconv.Itoa(h.TotalPatients)},
		{"Active patients", strconv.Itoa(h.TotalActivePatients)},
		{"New patients", strconv.Itoa(h.NewPatients)},
		{"Sessions", strconv.Itoa(h.TotalSessions)},
		{"Completed sessions", strconv.Itoa(h.CompletedSessions)},
		{"Sessions per patient", formatFloat(h.AverageSessionsPerPatient)},
		{"Follow-up rate", formatFloat(h.FollowUpRate) + "%"},
		{"Days between sessions", formatFloat(h.AverageSessionInterval)},
		{"Alerts", strconv.Itoa(h.TotalAlerts)},
		{"Pending alerts", strconv.Itoa(h.PendingAlerts)},
		{"High-risk sessions", strconv.Itoa(h.HighRiskSessions)},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-24s %s\n", r.label, r.value)
	}

	writeRanked(w, "Emotional states", snap.EmotionalStates)
	writeRanked(w, "Session types", snap.SessionTypes)
	writeRanked(w, "Session tones", snap.SessionTones)
	writeRanked(w, "Alert types", snap.AlertTypes)
	writeRanked(w, "Workload", snap.Workload)
}

// writeRanked prints the top entries of m, if any.
func writeRanked(w io.Writer, title string, m metrics.FrequencyMap) {
	const top = 5
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for i, e := range m.Ranked() {
		if i == top {
			fmt.Fprintf(w, "  ... %d more\n", len(m)-top)
			break
		}
		fmt.Fprintf(w, "  %-24s %d\n", e.Key, e.Count)
	}
}

func writeComparisonText(w io.Writer, cmp metrics.Comparison) {
	fmt.Fprintf(w, "Current  %s to %s\n",
		cmp.Current.Window.Start, cmp.Current.Window.End)
	fmt.Fprintf(w, "Previous %s to %s\n\n",
		cmp.Previous.Window.Start, cmp.Previous.Window.End)

	names := make([]string, 0, len(cmp.Comparison))
	for name := range cmp.Comparison {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "  %-30s %10s %10s %10s\n",
		"metric", "current", "previous", "change")
	for _, name := range names {
		c := cmp.Comparison[name]
		fmt.Fprintf(w, "  %-30s %10s %10s %9s%%\n",
			name, formatFloat(c.Current), formatFloat(c.Previous),
			formatChange(c.Change))
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatChange(v float64) string {
	if v > 0 {
		return "+" + formatFloat(v)
	}
	return formatFloat(v)
}
