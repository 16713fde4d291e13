// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"context"
	"time"

	"github.com/dop251/goja"
)

// REPLETE_HIGH_RES_TIMER() -> fractional milliseconds, monotonic
func (x *engine) highResTimer(goja.FunctionCall) goja.Value {
	return x.rt.ToValue(float64(time.Since(x.start)) / float64(time.Millisecond))
}

// REPLETE_SLEEP(ms[, ns]) blocks the engine goroutine, until the duration
// elapses or the engine's context is done.
func (x *engine) sleep(call goja.FunctionCall) goja.Value {
	if n := len(call.Arguments); n != 1 && n != 2 {
		return goja.Undefined()
	}
	d := time.Duration(call.Argument(0).ToInteger()) * time.Millisecond
	if len(call.Arguments) == 2 {
		d += time.Duration(call.Argument(1).ToInteger())
	}
	if d > 0 {
		x.registry.sleep(x.ctx, d)
	}
	return goja.Undefined()
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
