// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-replete/bridge"
	"github.com/joeycumines/go-replete/event"
	"github.com/joeycumines/logiface"
)

// coordinatorOptions holds configuration options for Coordinator creation.
type coordinatorOptions struct {
	logger      *logiface.Logger[logiface.Event]
	emitter     event.Emitter
	bundle      bridge.Bundle
	paths       bridge.PathResolver
	stdout      io.Writer
	stderr      io.Writer
	requester   *bridge.Requester
	misuseRates map[time.Duration]int
	bridgeOpts  []bridge.Option
	sessionID   uuid.UUID
	consented   bool
}

// Option configures a [Coordinator].
type Option interface {
	applyCoordinator(*coordinatorOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyCoordinatorFunc func(*coordinatorOptions) error
}

func (o *optionImpl) applyCoordinator(opts *coordinatorOptions) error {
	return o.applyCoordinatorFunc(opts)
}

// WithLogger configures structured logging. Every entry carries a
// "session" field. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithEmitter sets the destination for UI events. Send must not block.
func WithEmitter(emitter event.Emitter) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.emitter = emitter
		return nil
	}}
}

// WithBundle sets the source of bundled scripts. Required for Init to
// succeed.
func WithBundle(bundle bridge.Bundle) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.bundle = bundle
		return nil
	}}
}

// WithPathResolver sets how script-visible paths map onto the filesystem.
func WithPathResolver(paths bridge.PathResolver) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.paths = paths
		return nil
	}}
}

// WithStdout sets the writer behind the raw stdout native.
func WithStdout(w io.Writer) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.stdout = w
		return nil
	}}
}

// WithStderr sets the writer behind the raw stderr native.
func WithStderr(w io.Writer) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.stderr = w
		return nil
	}}
}

// WithRequester sets the HTTP implementation used by scripts.
func WithRequester(requester *bridge.Requester) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.requester = requester
		return nil
	}}
}

// WithMisuseRates sets the rate limits applied to misuse warnings, keyed by
// window. An empty, non-nil map disables limiting.
func WithMisuseRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.misuseRates = rates
		return nil
	}}
}

// WithSessionID overrides the randomly generated session id.
func WithSessionID(id uuid.UUID) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.sessionID = id
		return nil
	}}
}

// WithMacroConsent starts the session with macro definitions already
// consented to.
func WithMacroConsent(consented bool) Option {
	return &optionImpl{func(opts *coordinatorOptions) error {
		opts.consented = consented
		return nil
	}}
}

// WithBridgeOptions passes additional options through to the native
// registry. They are applied after the coordinator's own.
func WithBridgeOptions(opts ...bridge.Option) Option {
	return &optionImpl{func(o *coordinatorOptions) error {
		o.bridgeOpts = append(o.bridgeOpts, opts...)
		return nil
	}}
}

// resolveOptions applies options in order, skipping nil entries.
func resolveOptions(opts []Option) (*coordinatorOptions, error) {
	cfg := &coordinatorOptions{
		emitter: event.Discard,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyCoordinator(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.emitter == nil {
		cfg.emitter = event.Discard
	}
	if cfg.sessionID == uuid.Nil {
		cfg.sessionID = uuid.New()
	}
	return cfg, nil
}
