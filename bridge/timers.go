// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-replete/timer"
)

func (x *engine) setTimeout(call goja.FunctionCall) goja.Value {
	return x.schedule(timer.OneShot, call)
}

func (x *engine) clearTimeout(call goja.FunctionCall) goja.Value {
	return x.cancel(timer.OneShot, call)
}

func (x *engine) setInterval(call goja.FunctionCall) goja.Value {
	return x.schedule(timer.Repeating, call)
}

func (x *engine) clearInterval(call goja.FunctionCall) goja.Value {
	return x.cancel(timer.Repeating, call)
}

// schedule pins the callback then starts a timer for it. The delay defaults
// to zero. Returns undefined if timers aren't configured, or the first
// argument isn't a function.
func (x *engine) schedule(kind timer.Kind, call goja.FunctionCall) goja.Value {
	timers, handles := x.registry.timers, x.registry.handles
	if timers == nil || handles == nil {
		return goja.Undefined()
	}

	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return goja.Undefined()
	}

	var delay time.Duration
	if v := call.Argument(1); !goja.IsUndefined(v) && !goja.IsNull(v) {
		ms := v.ToFloat()
		if math.IsNaN(ms) || ms < 0 {
			ms = 0
		}
		if ms > float64(math.MaxInt64/int64(time.Millisecond)) {
			ms = float64(math.MaxInt64 / int64(time.Millisecond))
		}
		delay = time.Duration(ms * float64(time.Millisecond))
	}

	h := handles.Track(Callback{Fn: fn, Generation: x.generation})
	id, err := timers.Schedule(kind, delay, h)
	if err != nil {
		_ = handles.Release(h)
		panic(x.rt.NewGoError(err))
	}

	return x.rt.ToValue(float64(id))
}

func (x *engine) cancel(kind timer.Kind, call goja.FunctionCall) goja.Value {
	timers := x.registry.timers
	if timers == nil {
		return goja.Undefined()
	}
	v := call.Argument(0)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return goja.Undefined()
	}
	id := v.ToFloat()
	if math.IsNaN(id) || id < 0 || id > float64(timer.MaxID) || id != math.Trunc(id) {
		return goja.Undefined()
	}
	timers.Cancel(kind, timer.ID(id))
	return goja.Undefined()
}
