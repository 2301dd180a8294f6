package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/sync"
	"github.com/wesm/clinicview/internal/testjsonl"
)

type professionalSpec struct {
	id          string
	sessionType string
	patients    int
	// every is the gap in days between a patient's sessions.
	every int
}

var specs = []professionalSpec{
	{"dr-alvarez", "individual", 6, 7},
	{"dr-baker", "couple", 3, 14},
	{"dr-chen", "group", 8, 10},
	{"dr-diaz", "individual", 2, 30},
}

var (
	tones   = []string{"calm", "anxious", "sad", "hopeful", "angry"}
	risks   = []string{"low", "low", "medium", "low", "high"}
	states  = []string{"anxious", "depressed", "stable", "stressed"}
	motives = []string{"anxiety", "grief", "couple conflict", "burnout"}
	alerts  = []string{"no-show", "risk", "follow-up", "medication"}
	urgency = []string{"low", "medium", "high"}
)

func main() {
	out := flag.String("out", "", "output database path")
	exports := flag.String(
		"exports", "", "directory for the JSONL exports (default: next to -out)",
	)
	days := flag.Int("days", 90, "days of activity ending at -end")
	end := flag.String("end", "2025-01-31", "last day of activity (YYYY-MM-DD)")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <path> [-exports dir]")
		os.Exit(1)
	}
	last, err := time.Parse("2006-01-02", *end)
	if err != nil {
		log.Fatalf("parsing -end: %v", err)
	}
	dir := *exports
	if dir == "" {
		dir = filepath.Join(filepath.Dir(*out), "exports")
	}

	if err := os.Remove(*out); err != nil &&
		!errors.Is(err, os.ErrNotExist) {
		log.Fatalf("removing existing db: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("creating export dir: %v", err)
	}

	start := last.AddDate(0, 0, -(*days - 1)).Add(9 * time.Hour)
	patientNo := 0
	for _, spec := range specs {
		b := buildProfessional(spec, start, last, &patientNo)
		path := filepath.Join(dir, spec.id+".jsonl")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			log.Fatalf("writing %s: %v", path, err)
		}
		fmt.Printf("  %s: %d documents\n", filepath.Base(path), b.Len()-1)
	}

	database, err := db.Open(*out)
	if err != nil {
		log.Fatalf("opening db: %v", err)
	}
	defer database.Close()

	stats := sync.NewEngine(database, []string{dir}, "center-1").SyncAll(nil)
	if stats.Failed > 0 {
		log.Fatalf("importing fixtures: %v", stats.Warnings)
	}
	fmt.Printf("Fixture DB written to %s (%d records)\n", *out, stats.Records)
}

// buildProfessional emits one professional's patients with their
// sessions and alerts between start and last. Patient numbering
// continues across professionals through n.
func buildProfessional(
	spec professionalSpec, start, last time.Time, n *int,
) *testjsonl.ExportBuilder {
	b := testjsonl.NewExportBuilder()
	for range spec.patients {
		*n++
		pid := fmt.Sprintf("patient-%03d", *n)
		created := start.AddDate(0, 0, (*n*5)%30)
		b.AddPatient(pid, created.Format(time.RFC3339), testjsonl.Fields{
			"isActive":           *n%7 != 0,
			"emotionalState":     states[*n%len(states)],
			"consultationMotive": motives[*n%len(motives)],
			"professionalId":     spec.id,
		})

		k := 0
		for d := created; !d.After(last); d = d.AddDate(0, 0, spec.every) {
			k++
			sid := fmt.Sprintf("%s-s%02d", pid, k)
			status := "completed"
			if k%9 == 0 {
				status = "cancelled"
			}
			b.AddSession(sid, pid, d.Format(time.RFC3339), testjsonl.Fields{
				"professionalId": spec.id,
				"type":           spec.sessionType,
				"status":         status,
				"aiAnalysis": map[string]any{
					"emotionalTone": tones[(*n+k)%len(tones)],
					"riskLevel":     risks[(*n+k)%len(risks)],
				},
			})
			if (*n+k)%6 == 0 {
				b.AddAlert(
					fmt.Sprintf("%s-a%02d", pid, k), pid,
					d.Add(2*time.Hour).Format(time.RFC3339),
					testjsonl.Fields{
						"type":    alerts[k%len(alerts)],
						"urgency": urgency[(*n+k)%len(urgency)],
						"status":  map[bool]string{true: "pending", false: "resolved"}[k%2 == 0],
					},
				)
			}
		}
	}
	return b
}
