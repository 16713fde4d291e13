// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package misuse reports recoverable API misuse by scripts (double release,
// operations on streams that aren't open, etc), as rate-limited warnings.
package misuse

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultRates bounds warnings per category.
var DefaultRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 30,
}

// Reporter logs misuse. The zero value is not usable, but a nil *Reporter
// is, and drops everything.
type Reporter struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	count   atomic.Uint64
}

// New returns a Reporter logging via logger, limited per category by rates.
// A nil rates map applies [DefaultRates], an empty one disables limiting.
func New(logger *logiface.Logger[logiface.Event], rates map[time.Duration]int) *Reporter {
	if rates == nil {
		rates = DefaultRates
	}
	r := &Reporter{logger: logger}
	if len(rates) != 0 {
		r.limiter = catrate.NewLimiter(rates)
	}
	return r
}

// Report counts an instance of misuse, and returns a warning builder for
// it, which will be nil if the category is currently rate limited, or
// logging is disabled. Builders are nil-safe, so callers may chain
// unconditionally.
func (x *Reporter) Report(category string) *logiface.Builder[logiface.Event] {
	if x == nil {
		return nil
	}
	x.count.Add(1)
	if _, ok := x.limiter.Allow(category); !ok {
		return nil
	}
	return x.logger.Warning().Str(`misuse`, category)
}

// Count returns the number of reports, including rate limited ones.
func (x *Reporter) Count() uint64 {
	if x == nil {
		return 0
	}
	return x.count.Load()
}
