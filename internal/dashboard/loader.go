package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/metrics"
)

const (
	// DefaultCap bounds each collection fetch.
	DefaultCap = 5000
	// DefaultTimeout bounds one Load across all collections.
	DefaultTimeout = 10 * time.Second
)

// FetchError reports the collections that could not be loaded.
// The records of the other collections are still returned.
type FetchError struct {
	Failed map[string]error
}

// Collections returns the failed collection names, sorted.
func (e *FetchError) Collections() []string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, name := range e.Collections() {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}
	return "fetching records: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-collection causes to errors.Is.
func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, name := range e.Collections() {
		errs = append(errs, e.Failed[name])
	}
	return errs
}

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// ObserveFunc receives the outcome of each collection fetch.
type ObserveFunc func(collection string, took time.Duration, n int, err error)

// Loader fetches the three collections a snapshot needs.
type Loader struct {
	Store   Store
	Cap     int
	Timeout time.Duration
	Observe ObserveFunc
}

// NewLoader returns a Loader with the default cap and timeout.
func NewLoader(store Store) *Loader {
	return &Loader{Store: store, Cap: DefaultCap, Timeout: DefaultTimeout}
}

func (l *Loader) limit() int {
	if l.Cap <= 0 {
		return DefaultCap
	}
	return l.Cap
}

func (l *Loader) timeout() time.Duration {
	if l.Timeout <= 0 {
		return DefaultTimeout
	}
	return l.Timeout
}

// bounded runs fetch and gives up when ctx ends, even if the
// store ignores cancellation. A late result is discarded.
func bounded[T any](
	ctx context.Context, fetch func(context.Context) ([]T, error),
) ([]T, error) {
	type result struct {
		v   []T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fetch(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Load fetches sessions and alerts within w, and all patients, of
// centerID concurrently under one timeout. A collection that
// fails or times out contributes an empty slice and is named in
// the returned *FetchError; the others are kept.
func (l *Loader) Load(
	ctx context.Context, centerID string, w metrics.DateWindow,
) (metrics.Records, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()

	var (
		recs   metrics.Records
		mu     gosync.Mutex
		failed = make(map[string]error)
		limit  = l.limit()
	)
	record := func(collection string, start time.Time, n int, err error) error {
		if l.Observe != nil {
			l.Observe(collection, time.Since(start), n, err)
		}
		if err != nil {
			mu.Lock()
			failed[collection] = err
			mu.Unlock()
		}
		return err
	}

	// A plain group: one failing collection must not cancel the
	// others.
	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		s, err := bounded(ctx, func(ctx context.Context) ([]metrics.Session, error) {
			return l.Store.FetchSessions(ctx, centerID, w, limit)
		})
		recs.Sessions = s
		return record(db.CollectionSessions, start, len(s), err)
	})
	g.Go(func() error {
		start := time.Now()
		p, err := bounded(ctx, func(ctx context.Context) ([]metrics.Patient, error) {
			return l.Store.FetchPatients(ctx, centerID, limit)
		})
		recs.Patients = p
		return record(db.CollectionPatients, start, len(p), err)
	})
	g.Go(func() error {
		start := time.Now()
		a, err := bounded(ctx, func(ctx context.Context) ([]metrics.Alert, error) {
			return l.Store.FetchAlerts(ctx, centerID, w, limit)
		})
		recs.Alerts = a
		return record(db.CollectionAlerts, start, len(a), err)
	})
	_ = g.Wait()

	if recs.Sessions == nil || failed[db.CollectionSessions] != nil {
		recs.Sessions = []metrics.Session{}
	}
	if recs.Patients == nil || failed[db.CollectionPatients] != nil {
		recs.Patients = []metrics.Patient{}
	}
	if recs.Alerts == nil || failed[db.CollectionAlerts] != nil {
		recs.Alerts = []metrics.Alert{}
	}
	if len(failed) > 0 {
		return recs, &FetchError{Failed: failed}
	}
	return recs, nil
}
