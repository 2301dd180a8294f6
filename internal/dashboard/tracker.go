package dashboard

import (
	gosync "sync"
	"sync/atomic"
)

// Tracker issues increasing generations so that only the most
// recently started computation is accepted.
type Tracker struct {
	gen atomic.Uint64
}

// Begin starts a new computation and returns its generation.
// Every earlier generation becomes stale.
func (t *Tracker) Begin() uint64 {
	return t.gen.Add(1)
}

// Current returns the newest generation issued.
func (t *Tracker) Current() uint64 {
	return t.gen.Load()
}

// IsCurrent reports whether gen is still the newest generation.
func (t *Tracker) IsCurrent(gen uint64) bool {
	return gen != 0 && gen == t.gen.Load()
}

// Latest holds the result of the newest computation. Results
// from superseded generations are discarded on arrival.
type Latest[T any] struct {
	tracker Tracker
	mu      gosync.RWMutex
	value   T
	gen     uint64
	ok      bool
}

// Begin starts a computation; pass the returned generation to
// Accept with its result.
func (l *Latest[T]) Begin() uint64 {
	return l.tracker.Begin()
}

// Accept stores v when gen is still the newest generation and
// reports whether it did.
func (l *Latest[T]) Accept(gen uint64, v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.tracker.IsCurrent(gen) {
		return false
	}
	l.value, l.gen, l.ok = v, gen, true
	return true
}

// Get returns the accepted value, its generation and whether any
// value has been accepted.
func (l *Latest[T]) Get() (T, uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.gen, l.ok
}
