package dashboard

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/clinicview/internal/metrics"
)

// Service loads records and runs the metrics engine over them.
type Service struct {
	Loader  *Loader
	Options metrics.Options
}

// NewService returns a Service over loader.
func NewService(loader *Loader, opts metrics.Options) *Service {
	return &Service{Loader: loader, Options: opts}
}

// Snapshot computes the snapshot of centerID for f. An invalid
// window fails before anything is fetched. When some collections
// cannot be fetched the snapshot is computed over what was
// loaded and returned together with the *FetchError.
func (s *Service) Snapshot(
	ctx context.Context, centerID string, f metrics.Filter,
) (metrics.Snapshot, error) {
	if err := f.Window.Validate(); err != nil {
		return metrics.Snapshot{}, err
	}
	recs, fetchErr := s.Loader.Load(ctx, centerID, f.Window)
	snap, err := metrics.Compute(recs, f, s.Options)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return snap, fetchErr
}

// Compare computes the comparison of f.Window against the
// preceding window of equal length. The two windows are loaded
// concurrently, each under its own per-collection cap. onPhase,
// when set, observes progress.
func (s *Service) Compare(
	ctx context.Context, centerID string, f metrics.Filter,
	onPhase func(metrics.Phase),
) (metrics.Comparison, error) {
	if err := f.Window.Validate(); err != nil {
		return metrics.Comparison{}, err
	}

	var (
		current, previous       metrics.Records
		currentErr, previousErr error
	)
	// Load errors are partial-data reports, never fatal, so
	// neither load cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		current, currentErr = s.Loader.Load(ctx, centerID, f.Window)
		return nil
	})
	g.Go(func() error {
		previous, previousErr = s.Loader.Load(
			ctx, centerID, f.Window.Previous(),
		)
		return nil
	})
	_ = g.Wait()

	opts := s.Options
	opts.OnPhase = onPhase
	cmp, err := metrics.Compare(current, previous, f, opts)
	if err != nil {
		return metrics.Comparison{}, err
	}
	return cmp, mergeFetchErrors(currentErr, previousErr)
}

// mergeFetchErrors combines the load errors of both windows into
// one *FetchError. A collection that failed differently for both
// windows carries both causes.
func mergeFetchErrors(errs ...error) error {
	failed := make(map[string]error)
	for _, err := range errs {
		var fe *FetchError
		if !errors.As(err, &fe) {
			continue
		}
		for name, cause := range fe.Failed {
			prev, ok := failed[name]
			switch {
			case !ok:
				failed[name] = cause
			case prev.Error() != cause.Error():
				failed[name] = errors.Join(prev, cause)
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &FetchError{Failed: failed}
}
