package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"

	"github.com/wesm/clinicview/internal/dashboard"
	"github.com/wesm/clinicview/internal/metrics"
)

const watchPollInterval = time.Second

// watchSession recomputes a snapshot whenever the filter is
// edited or new records are imported. Each recomputation
// cancels the one before it and only the newest result is
// printed.
type watchSession struct {
	service *dashboard.Service
	opts    queryOptions
	out     io.Writer
	errOut  io.Writer
	now     func() time.Time
	// imports returns the import generation; nil disables
	// import polling.
	imports   func() uint64
	pollEvery time.Duration
}

type watchUpdate struct {
	gen  uint64
	snap metrics.Snapshot
	err  error
}

// Run reads edits from in, one line of key=value tokens at a
// time, until in is exhausted or ctx ends. After EOF it waits for
// the last computation before returning.
func (s *watchSession) Run(ctx context.Context, in io.Reader) error {
	q, err := s.opts.query(s.now())
	if err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		latest   dashboard.Latest[metrics.Snapshot]
		current  uint64
		inflight int
		updates  = make(chan watchUpdate)
		cancel   = context.CancelFunc(func() {})
	)
	defer func() { cancel() }()

	start := func(q dashboard.Query) {
		cancel()
		var cctx context.Context
		cctx, cancel = context.WithCancel(ctx)
		gen := latest.Begin()
		current = gen
		inflight++
		go func() {
			snap, err := s.service.Snapshot(cctx, q.CenterID, q.Filter)
			select {
			case updates <- watchUpdate{gen: gen, snap: snap, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	var poll <-chan time.Time
	var seen uint64
	if s.imports != nil {
		seen = s.imports()
		every := s.pollEvery
		if every <= 0 {
			every = watchPollInterval
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		poll = ticker.C
	}

	start(q)
	eof := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				eof = true
				lines = nil
				if inflight == 0 {
					return nil
				}
				continue
			}
			next, err := s.edit(line)
			if err != nil {
				fmt.Fprintln(s.errOut, "error:", err)
				continue
			}
			if next != nil {
				q = *next
				start(q)
			}

		case <-poll:
			if g := s.imports(); g != seen {
				seen = g
				start(q)
			}

		case u := <-updates:
			inflight--
			s.report(&latest, current, u)
			if eof && inflight == 0 {
				return nil
			}
		}
	}
}

// edit applies one input line to the session's values. It
// returns nil for blank lines; on error the values are left
// unchanged.
func (s *watchSession) edit(line string) (*dashboard.Query, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", line, err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	prev := maps.Clone(s.opts.values)
	if err := dashboard.ApplyEdits(s.opts.values, tokens); err != nil {
		return nil, err
	}
	q, err := s.opts.query(s.now())
	if err != nil {
		s.opts.values = prev
		return nil, err
	}
	return &q, nil
}

// report prints u when it is the newest computation.
// Superseded and cancelled results are dropped.
func (s *watchSession) report(
	latest *dashboard.Latest[metrics.Snapshot], current uint64, u watchUpdate,
) {
	if u.gen != current || errors.Is(u.err, context.Canceled) {
		return
	}
	if u.err != nil && !dashboard.IsFetchError(u.err) {
		fmt.Fprintln(s.errOut, "error:", u.err)
		return
	}
	if u.err != nil {
		fmt.Fprintln(s.errOut, "warning: partial data:", u.err)
	}
	if !latest.Accept(u.gen, u.snap) {
		return
	}
	if s.opts.format == formatJSON {
		if err := json.NewEncoder(s.out).Encode(u.snap); err != nil {
			fmt.Fprintln(s.errOut, "error:", err)
		}
		return
	}
	writeSnapshotText(s.out, u.snap)
	fmt.Fprintln(s.out, strings.Repeat("-", 40))
}

func runWatch(args []string) {
	opts := mustParseQueryFlags("watch", args)
	database, engine := openForQuery(opts)
	defer database.Close()

	stopWatcher := startFileWatcher(opts.cfg.ResolveImportDirs(), engine)
	defer stopWatcher()

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	session := &watchSession{
		service: newService(opts.cfg, database),
		opts:    opts,
		out:     os.Stdout,
		errOut:  os.Stderr,
		now:     time.Now,
		imports: engine.Generation,
	}
	if err := session.Run(ctx, os.Stdin); err != nil &&
		!errors.Is(err, context.Canceled) {
		log.Printf("watch: %v", err)
		database.Close()
		os.Exit(1)
	}
}
