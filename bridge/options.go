// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/joeycumines/go-replete/event"
	"github.com/joeycumines/go-replete/handle"
	"github.com/joeycumines/go-replete/internal/misuse"
	"github.com/joeycumines/go-replete/timer"
	"github.com/joeycumines/logiface"
)

// registryOptions holds configuration options for Registry creation.
type registryOptions struct {
	bundle     Bundle
	paths      PathResolver
	emitter    event.Emitter
	handles    *handle.Registry[Callback]
	timers     *timer.Subsystem
	stdout     io.Writer
	stderr     io.Writer
	requester  *Requester
	logger     *logiface.Logger[logiface.Event]
	misuse     *misuse.Reporter
	suppressed func() bool
	sleep      func(ctx context.Context, d time.Duration)
}

// Option configures a [Registry].
type Option interface {
	applyRegistry(*registryOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRegistryFunc func(*registryOptions) error
}

func (o *optionImpl) applyRegistry(opts *registryOptions) error {
	return o.applyRegistryFunc(opts)
}

// WithBundle sets the source of script contents, used by REPLETE_LOAD and
// AMBLY_IMPORT_SCRIPT.
func WithBundle(bundle Bundle) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.bundle = bundle
		return nil
	}}
}

// WithPathResolver sets the resolver used by the filesystem and stream
// bridges. Without one, every path is treated as unresolvable.
func WithPathResolver(paths PathResolver) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.paths = paths
		return nil
	}}
}

// WithEmitter sets the destination for printed output and reported errors.
func WithEmitter(emitter event.Emitter) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.emitter = emitter
		return nil
	}}
}

// WithHandles sets the registry used to pin timer callbacks. Required if
// timers are configured.
func WithHandles(handles *handle.Registry[Callback]) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.handles = handles
		return nil
	}}
}

// WithTimers enables setTimeout, setInterval, and their cancel functions.
func WithTimers(timers *timer.Subsystem) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.timers = timers
		return nil
	}}
}

// WithStdout sets the writer behind REPLETE_RAW_WRITE_STDOUT, defaulting to
// [os.Stdout].
func WithStdout(w io.Writer) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.stdout = w
		return nil
	}}
}

// WithStderr sets the writer behind REPLETE_RAW_WRITE_STDERR, defaulting to
// [os.Stderr].
func WithStderr(w io.Writer) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.stderr = w
		return nil
	}}
}

// WithRequester sets the implementation of REPLETE_REQUEST.
func WithRequester(requester *Requester) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.requester = requester
		return nil
	}}
}

// WithLogger configures structured logging. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMisuseReporter sets the reporter for script misuse, e.g. writing to a
// stream that isn't open.
func WithMisuseReporter(reporter *misuse.Reporter) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.misuse = reporter
		return nil
	}}
}

// WithPrintSuppressed sets a predicate consulted by the print sink, output
// is dropped while it returns true.
func WithPrintSuppressed(fn func() bool) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.suppressed = fn
		return nil
	}}
}

// WithSleep overrides the implementation of REPLETE_SLEEP. The context is
// the one passed to [Registry.Install].
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.sleep = fn
		return nil
	}}
}

// resolveOptions applies options in order, skipping nil entries.
func resolveOptions(opts []Option) (*registryOptions, error) {
	cfg := &registryOptions{
		emitter: event.Discard,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRegistry(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.emitter == nil {
		cfg.emitter = event.Discard
	}
	if cfg.requester == nil {
		cfg.requester = NewRequester(nil).WithLogger(cfg.logger)
	}
	if cfg.misuse == nil {
		cfg.misuse = misuse.New(cfg.logger, nil)
	}
	return cfg, nil
}
