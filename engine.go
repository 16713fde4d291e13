// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

// engineLock is the exclusive lock over the engine. Only the coordinator
// goroutine acquires it, the held flag is observable from anywhere.
type engineLock struct {
	mu   sync.Mutex
	held atomic.Bool
}

// acquire locks, returning the (idempotent) release function.
func (l *engineLock) acquire() (release func()) {
	l.mu.Lock()
	l.held.Store(true)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.held.Store(false)
			l.mu.Unlock()
		})
	}
}

func (l *engineLock) locked() bool {
	return l.held.Load()
}

// withEngine runs fn with the engine lock held.
func (c *Coordinator) withEngine(fn func(rt *goja.Runtime) error) error {
	release := c.lock.acquire()
	defer release()
	if c.rt == nil {
		return ErrEngineNotReady
	}
	return fn(c.rt)
}

// replFunction resolves replete.repl.<name>.
func replFunction(rt *goja.Runtime, name string) (goja.Callable, error) {
	ns := rt.Get("replete")
	if ns == nil || goja.IsUndefined(ns) || goja.IsNull(ns) {
		return nil, fmt.Errorf("replete: namespace replete is not defined")
	}
	repl := ns.ToObject(rt).Get("repl")
	if repl == nil || goja.IsUndefined(repl) || goja.IsNull(repl) {
		return nil, fmt.Errorf("replete: namespace replete.repl is not defined")
	}
	fn, ok := goja.AssertFunction(repl.ToObject(rt).Get(name))
	if !ok {
		return nil, fmt.Errorf("replete: replete.repl.%s is not a function", name)
	}
	return fn, nil
}

// callRepl calls replete.repl.<name> with args.
func callRepl(rt *goja.Runtime, name string, args ...any) (goja.Value, error) {
	fn, err := replFunction(rt, name)
	if err != nil {
		return nil, err
	}
	values := make([]goja.Value, len(args))
	for i, arg := range args {
		values[i] = rt.ToValue(arg)
	}
	return fn(goja.Undefined(), values...)
}
