// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-replete/handle"
	"github.com/joeycumines/logiface"
)

// ErrClosed is returned when scheduling on a closed subsystem.
var ErrClosed = errors.New("timer: subsystem closed")

// Kind distinguishes one-shot timers from repeating ones. Each kind has its
// own id space.
type Kind int

const (
	// OneShot timers fire at most once (setTimeout).
	OneShot Kind = iota
	// Repeating timers fire every period until cancelled (setInterval).
	Repeating
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case OneShot:
		return "timeout"
	case Repeating:
		return "interval"
	default:
		return "unknown"
	}
}

// Dispatcher re-enters the engine on behalf of timer workers. Both methods
// are called from worker goroutines and must not block on the engine.
type Dispatcher interface {
	// Invoke requests that the callback pinned by h be called.
	Invoke(h handle.Handle) error
	// Release requests that h be released.
	Release(h handle.Handle) error
}

// Entry is a scheduled timer.
type Entry struct {
	stop      chan struct{}
	stopOnce  sync.Once
	Target    handle.Handle
	Interval  time.Duration
	ID        ID
	Kind      Kind
	cancelled atomic.Bool
}

// Cancelled reports whether the entry has been cancelled.
func (e *Entry) Cancelled() bool {
	return e.cancelled.Load()
}

func (e *Entry) cancel() {
	e.cancelled.Store(true)
	e.stopOnce.Do(func() { close(e.stop) })
}

// table is the live set for one kind.
// WARNING: Do not use sync.Map here! Allocation and insertion must be atomic
// with respect to each other.
type table struct {
	entries map[ID]*Entry
	ids     idAllocator
	mu      sync.Mutex
}

// Subsystem owns the live timer tables, and the workers servicing them.
type Subsystem struct {
	dispatcher  Dispatcher
	logger      *logiface.Logger[logiface.Event]
	tables      [2]table
	wg          sync.WaitGroup
	minInterval time.Duration
	closed      atomic.Bool
}

// New creates a Subsystem that re-enters the engine via dispatcher.
func New(dispatcher Dispatcher, opts ...Option) (*Subsystem, error) {
	if dispatcher == nil {
		return nil, errors.New("timer: dispatcher cannot be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &Subsystem{
		dispatcher:  dispatcher,
		logger:      cfg.logger,
		minInterval: cfg.minInterval,
	}
	for i := range s.tables {
		s.tables[i].entries = make(map[ID]*Entry)
	}
	return s, nil
}

func (s *Subsystem) table(kind Kind) *table {
	if kind != OneShot && kind != Repeating {
		panic("timer: invalid kind")
	}
	return &s.tables[kind]
}

// Schedule starts a worker for target, returning the timer's id. For OneShot
// timers, d is the delay; for Repeating timers, d is the period. Negative
// durations are treated as zero.
func (s *Subsystem) Schedule(kind Kind, d time.Duration, target handle.Handle) (ID, error) {
	if d < 0 {
		d = 0
	}
	if kind == Repeating && d < s.minInterval {
		d = s.minInterval
	}

	tbl := s.table(kind)
	e := &Entry{
		stop:     make(chan struct{}),
		Target:   target,
		Interval: d,
		Kind:     kind,
	}

	tbl.mu.Lock()
	if s.closed.Load() {
		tbl.mu.Unlock()
		return 0, ErrClosed
	}
	e.ID = tbl.ids.next()
	if prev, ok := tbl.entries[e.ID]; ok {
		// only reachable after the counter wraps
		s.logger.Warning().
			Str(`kind`, kind.String()).
			Uint64(`id`, uint64(e.ID)).
			Log(`timer: id collision, cancelling previous timer`)
		prev.cancel()
	}
	tbl.entries[e.ID] = e
	s.wg.Add(1)
	tbl.mu.Unlock()

	s.logger.Trace().
		Str(`kind`, kind.String()).
		Uint64(`id`, uint64(e.ID)).
		Dur(`duration`, d).
		Log(`timer: scheduled`)

	switch kind {
	case OneShot:
		go s.runOneShot(e)
	default:
		go s.runRepeating(e)
	}

	return e.ID, nil
}

// Cancel stops the timer with the given id. It reports false if no such
// timer is live. A timer that is concurrently firing may still fire once.
func (s *Subsystem) Cancel(kind Kind, id ID) bool {
	tbl := s.table(kind)
	tbl.mu.Lock()
	e, ok := tbl.entries[id]
	if ok {
		delete(tbl.entries, id)
	}
	tbl.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	return true
}

// CancelAll cancels every live timer, of both kinds.
func (s *Subsystem) CancelAll() int {
	var n int
	for i := range s.tables {
		tbl := &s.tables[i]
		tbl.mu.Lock()
		entries := tbl.entries
		tbl.entries = make(map[ID]*Entry)
		tbl.mu.Unlock()
		for _, e := range entries {
			e.cancel()
			n++
		}
	}
	return n
}

// Close cancels all timers and rejects further scheduling. It does not wait
// for workers to exit, see [Subsystem.Wait].
func (s *Subsystem) Close() {
	for i := range s.tables {
		s.tables[i].mu.Lock()
	}
	s.closed.Store(true)
	for i := len(s.tables) - 1; i >= 0; i-- {
		s.tables[i].mu.Unlock()
	}
	s.CancelAll()
}

// Wait blocks until all workers have exited.
func (s *Subsystem) Wait() {
	s.wg.Wait()
}

// Len returns the number of live timers of the given kind.
func (s *Subsystem) Len(kind Kind) int {
	tbl := s.table(kind)
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	return len(tbl.entries)
}

func (s *Subsystem) remove(e *Entry) {
	tbl := s.table(e.Kind)
	tbl.mu.Lock()
	if cur, ok := tbl.entries[e.ID]; ok && cur == e {
		delete(tbl.entries, e.ID)
	}
	tbl.mu.Unlock()
}

func (s *Subsystem) runOneShot(e *Entry) {
	defer s.wg.Done()

	t := time.NewTimer(e.Interval)
	defer t.Stop()

	select {
	case <-t.C:
	case <-e.stop:
	}

	if !e.cancelled.Load() {
		s.remove(e)
		if err := s.dispatcher.Invoke(e.Target); err != nil {
			s.logDispatchError(e, err)
		}
	}

	if err := s.dispatcher.Release(e.Target); err != nil {
		s.logDispatchError(e, err)
	}
}

func (s *Subsystem) runRepeating(e *Entry) {
	defer s.wg.Done()

	t := time.NewTimer(e.Interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
		case <-e.stop:
		}

		if e.cancelled.Load() {
			if err := s.dispatcher.Release(e.Target); err != nil {
				s.logDispatchError(e, err)
			}
			return
		}

		if err := s.dispatcher.Invoke(e.Target); err != nil {
			s.logDispatchError(e, err)
			s.remove(e)
			return
		}

		t.Reset(e.Interval)
	}
}

func (s *Subsystem) logDispatchError(e *Entry, err error) {
	s.logger.Debug().
		Str(`kind`, e.Kind.String()).
		Uint64(`id`, uint64(e.ID)).
		Err(err).
		Log(`timer: dispatch failed`)
}
