// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package uisink buffers events emitted by the coordinator, and delivers them
// to a renderer in batches, on the UI's own goroutine.
package uisink

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/go-replete/event"
)

// Config models optional configuration for the Sink.
type Config struct {
	// MaxSize is the absolute maximum number of events per batch. Setting
	// this to a value < 0 will disable the maximum size constraint.
	//
	// Defaults to 64, if 0.
	MaxSize int

	// MinSize is the (target) minimum number of events per batch. If
	// PartialTimeout is configured, the effective minimum size will be 1, if
	// the PartialTimeout is reached.
	//
	// Setting this to a value < 0 will cause the PartialTimeout to start from
	// the call to Receive, and will allow returning an empty batch.
	//
	// Defaults to 8, if 0.
	MinSize int

	// PartialTimeout is the maximum time to wait for a partial batch, after
	// the first event.
	//
	// Defaults to 16ms, if 0.
	PartialTimeout time.Duration
}

// Sink is an [event.Emitter] that never blocks the sender. Events are
// buffered without bound until received.
type Sink struct {
	signal         chan struct{}
	buf            []event.Event
	mu             sync.Mutex
	partialTimeout time.Duration
	maxSize        int
	minSize        int
	closed         bool
}

// Renderer displays a batch of events.
type Renderer interface {
	Render(batch []event.Event) error
}

// RendererFunc adapts a function to [Renderer].
type RendererFunc func(batch []event.Event) error

// Render implements Renderer.
func (f RendererFunc) Render(batch []event.Event) error { return f(batch) }

// New constructs a Sink. The cfg parameter is optional, and may be nil, in
// which case the documented defaults will be used.
func New(cfg *Config) *Sink {
	s := &Sink{
		signal:         make(chan struct{}, 1),
		maxSize:        64,
		minSize:        8,
		partialTimeout: 16 * time.Millisecond,
	}
	if cfg != nil {
		if cfg.MaxSize != 0 {
			s.maxSize = cfg.MaxSize
		}
		if cfg.MinSize != 0 {
			s.minSize = cfg.MinSize
		}
		if cfg.PartialTimeout != 0 {
			s.partialTimeout = cfg.PartialTimeout
		}
	}
	return s
}

// Send implements [event.Emitter]. Events sent after Close are dropped.
func (s *Sink) Send(ev event.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()
	s.wake()
}

// Close stops accepting events. Buffered events remain receivable, after
// which Receive returns io.EOF.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

// Len returns the number of buffered events.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *Sink) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// take moves as many buffered events as allowed into batch, and reports
// whether the sink is closed and drained.
func (s *Sink) take(batch []event.Event) ([]event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.buf)
	if s.maxSize >= 0 && n > s.maxSize-len(batch) {
		n = s.maxSize - len(batch)
	}
	batch = append(batch, s.buf[:n]...)
	clear(s.buf[:n])
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return batch, s.closed && len(s.buf) == 0
}

// Receive blocks until a batch is available, per the configured size and
// timeout constraints. If ctx cancels, any events already taken are returned
// with the error. Once closed and drained, Receive returns io.EOF.
func (s *Sink) Receive(ctx context.Context) ([]event.Event, error) {
	if ctx == nil {
		panic(`uisink: nil context`)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var partialTimeoutCh <-chan time.Time
	if s.partialTimeout > 0 && s.minSize < 0 {
		timer := time.NewTimer(s.partialTimeout)
		defer timer.Stop()
		partialTimeoutCh = timer.C
	}

	var (
		batch  []event.Event
		closed bool
	)

MinSizeLoop:
	for (s.maxSize < 0 || len(batch) < s.maxSize) && (len(batch) < s.minSize || (len(batch) == 0 && partialTimeoutCh != nil)) {
		prev := len(batch)
		batch, closed = s.take(batch)

		if prev == 0 && len(batch) != 0 && s.partialTimeout > 0 && partialTimeoutCh == nil {
			// first event received, start the partial timeout
			timer := time.NewTimer(s.partialTimeout)
			//goland:noinspection GoDeferInLoop
			defer timer.Stop()
			partialTimeoutCh = timer.C
		}

		if closed {
			if len(batch) == 0 {
				return nil, io.EOF
			}
			return batch, nil
		}
		if len(batch) != prev {
			continue
		}

		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case <-partialTimeoutCh:
			break MinSizeLoop
		case <-s.signal:
		}
	}

	// take what additional events we can, up to the maximum size
	batch, _ = s.take(batch)

	return batch, ctx.Err()
}

// Run delivers batches to r until the sink is closed and drained, in which
// case it returns nil, or until ctx cancels or r fails.
func (s *Sink) Run(ctx context.Context, r Renderer) error {
	for {
		batch, err := s.Receive(ctx)
		if len(batch) != 0 {
			if err := r.Render(batch); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
