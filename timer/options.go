// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

import (
	"time"

	"github.com/joeycumines/logiface"
)

// subsystemOptions holds configuration options for Subsystem creation.
type subsystemOptions struct {
	logger      *logiface.Logger[logiface.Event]
	minInterval time.Duration
}

// Option configures a [Subsystem].
type Option interface {
	applySubsystem(*subsystemOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applySubsystemFunc func(*subsystemOptions) error
}

func (o *optionImpl) applySubsystem(opts *subsystemOptions) error {
	return o.applySubsystemFunc(opts)
}

// WithLogger configures structured logging for timer workers. A nil logger
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *subsystemOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMinInterval sets the lower bound applied to repeating timer periods,
// which defaults to 1ms. Non-positive values disable the bound.
func WithMinInterval(d time.Duration) Option {
	return &optionImpl{func(opts *subsystemOptions) error {
		opts.minInterval = d
		return nil
	}}
}

// resolveOptions applies options in order, skipping nil entries.
func resolveOptions(opts []Option) (*subsystemOptions, error) {
	cfg := &subsystemOptions{
		minInterval: time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applySubsystem(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
