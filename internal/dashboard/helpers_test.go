package dashboard

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/wesm/clinicview/internal/metrics"
)

// fakeStore serves fixed records and records the calls it gets.
type fakeStore struct {
	sessions []metrics.Session
	patients []metrics.Patient
	alerts   []metrics.Alert

	errs  map[string]error
	block map[string]bool

	mu      gosync.Mutex
	windows []metrics.DateWindow
	limits  []int
	calls   int
}

func (f *fakeStore) note(w metrics.DateWindow, limit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	if w != (metrics.DateWindow{}) {
		f.windows = append(f.windows, w)
	}
}

func (f *fakeStore) wait(ctx context.Context, collection string) error {
	if f.block[collection] {
		// Ignores ctx on purpose to model a stuck backend.
		time.Sleep(time.Second)
	}
	return f.errs[collection]
}

func (f *fakeStore) FetchSessions(
	ctx context.Context, _ string, w metrics.DateWindow, limit int,
) ([]metrics.Session, error) {
	f.note(w, limit)
	if err := f.wait(ctx, "sessions"); err != nil {
		return nil, err
	}
	return f.sessions, nil
}

func (f *fakeStore) FetchPatients(
	ctx context.Context, _ string, limit int,
) ([]metrics.Patient, error) {
	f.note(metrics.DateWindow{}, limit)
	if err := f.wait(ctx, "patients"); err != nil {
		return nil, err
	}
	return f.patients, nil
}

func (f *fakeStore) FetchAlerts(
	ctx context.Context, _ string, w metrics.DateWindow, limit int,
) ([]metrics.Alert, error) {
	f.note(w, limit)
	if err := f.wait(ctx, "alerts"); err != nil {
		return nil, err
	}
	return f.alerts, nil
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return ts
}

var fixedNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func testOptions() metrics.Options {
	return metrics.Options{Now: func() time.Time { return fixedNow }}
}
