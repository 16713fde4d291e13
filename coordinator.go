// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/go-replete/bridge"
	"github.com/joeycumines/go-replete/event"
	"github.com/joeycumines/go-replete/handle"
	"github.com/joeycumines/go-replete/internal/misuse"
	"github.com/joeycumines/go-replete/timer"
	"github.com/joeycumines/logiface"
)

// Coordinator serializes all access to a single script engine. Commands are
// submitted from any goroutine, and executed one at a time, in submission
// order, by an event loop on the goroutine calling Run.
type Coordinator struct {
	ctx        context.Context // bounds blocking natives
	cancel     context.CancelCauseFunc
	emitter    event.Emitter
	logger     *logiface.Logger[logiface.Event]
	misuse     *misuse.Reporter
	loop       *eventloop.Loop
	handles    *handle.Registry[bridge.Callback]
	timers     *timer.Subsystem
	natives    *bridge.Registry
	done       chan struct{}
	current    atomic.Pointer[goja.Runtime]
	rt         *goja.Runtime // loop goroutine only
	session    session
	lock       engineLock
	pending    atomic.Int64
	sessionID  uuid.UUID
	finishOnce sync.Once
	ran        atomic.Bool
	stopping   atomic.Bool
	abandon    atomic.Bool
}

// session is state shared with the natives, for the lifetime of the
// coordinator.
type session struct {
	suppressPrinting  atomic.Bool
	consentedToMacros atomic.Bool
}

// dispatcher adapts the coordinator for the timer subsystem.
type dispatcher struct {
	c *Coordinator
}

func (x dispatcher) Invoke(h handle.Handle) error {
	return x.c.Submit(InvokeCallback{Handle: h})
}

func (x dispatcher) Release(h handle.Handle) error {
	return x.c.Submit(ReleaseHandle{Handle: h})
}

// New creates a coordinator. No engine exists until an [Init] command is
// processed by Run.
func New(opts ...Option) (*Coordinator, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		emitter:   cfg.emitter,
		handles:   handle.NewRegistry[bridge.Callback](),
		done:      make(chan struct{}),
		sessionID: cfg.sessionID,
	}
	c.ctx, c.cancel = context.WithCancelCause(context.Background())
	c.logger = cfg.logger.Clone().
		Str("session", c.sessionID.String()).
		Logger()
	c.misuse = misuse.New(c.logger, cfg.misuseRates)
	c.session.consentedToMacros.Store(cfg.consented)

	c.timers, err = timer.New(dispatcher{c}, timer.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	requester := cfg.requester
	if requester == nil {
		requester = bridge.NewRequester(nil)
	}
	bridgeOpts := []bridge.Option{
		bridge.WithBundle(cfg.bundle),
		bridge.WithPathResolver(cfg.paths),
		bridge.WithEmitter(cfg.emitter),
		bridge.WithHandles(c.handles),
		bridge.WithTimers(c.timers),
		bridge.WithLogger(c.logger),
		bridge.WithMisuseReporter(c.misuse),
		bridge.WithPrintSuppressed(c.session.suppressPrinting.Load),
		bridge.WithRequester(requester.WithLogger(c.logger)),
	}
	if cfg.stdout != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithStdout(cfg.stdout))
	}
	if cfg.stderr != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithStderr(cfg.stderr))
	}
	bridgeOpts = append(bridgeOpts, cfg.bridgeOpts...)

	c.natives, err = bridge.New(bridgeOpts...)
	if err != nil {
		c.timers.Close()
		return nil, err
	}

	c.loop, err = eventloop.New(eventloop.WithLogger(c.logger))
	if err != nil {
		c.timers.Close()
		return nil, err
	}

	return c, nil
}

// SessionID identifies this coordinator in logs.
func (c *Coordinator) SessionID() uuid.UUID {
	return c.sessionID
}

// State returns the state of the underlying event loop.
func (c *Coordinator) State() eventloop.LoopState {
	return c.loop.State()
}

// EngineLocked reports whether the engine lock is currently held.
func (c *Coordinator) EngineLocked() bool {
	return c.lock.locked()
}

// MacrosConsented reports whether macro definitions have been consented to,
// e.g. so the choice may be persisted.
func (c *Coordinator) MacrosConsented() bool {
	return c.session.consentedToMacros.Load()
}

// Pending returns the number of commands submitted but not yet dispatched.
func (c *Coordinator) Pending() int {
	return int(c.pending.Load())
}

// Done is closed once the coordinator has terminated.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Submit enqueues cmd, never blocking. It fails with [ErrTerminated] once
// shutdown has begun.
func (c *Coordinator) Submit(cmd Command) error {
	if cmd == nil {
		return errors.New("replete: command cannot be nil")
	}
	if c.stopping.Load() {
		return ErrTerminated
	}
	c.pending.Add(1)
	err := c.loop.Submit(func() {
		c.pending.Add(-1)
		if c.abandon.Load() {
			return
		}
		c.dispatch(cmd)
	})
	if err != nil {
		c.pending.Add(-1)
		if errors.Is(err, eventloop.ErrLoopTerminated) {
			return ErrTerminated
		}
		return err
	}
	return nil
}

// Run processes commands until shutdown, or until ctx is done, in which case
// ctx.Err() is returned. The calling goroutine is locked to its OS thread
// for the duration. Cancelling ctx also interrupts any running script, and
// abandons queued commands.
func (c *Coordinator) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.ran.CompareAndSwap(false, true) {
		if c.loop.State() == eventloop.StateAwake {
			// the first caller hasn't started the loop yet
			return ErrAlreadyRunning
		}
		return runError(c.loop.Run(ctx))
	}

	stop := context.AfterFunc(ctx, func() {
		c.stopping.Store(true)
		c.abandon.Store(true)
		c.interrupt(context.Cause(ctx))
	})
	defer stop()

	c.logger.Info().Log("replete: coordinator running")

	err := c.loop.Run(ctx)
	c.finish()
	return runError(err)
}

func runError(err error) error {
	switch {
	case errors.Is(err, eventloop.ErrReentrantRun):
		return ErrReentrantRun
	case errors.Is(err, eventloop.ErrLoopAlreadyRunning):
		return ErrAlreadyRunning
	case errors.Is(err, eventloop.ErrLoopTerminated):
		return ErrTerminated
	}
	return err
}

// Shutdown stops accepting commands, drains those already queued, then
// releases the engine and all timers. It waits for termination, or for ctx
// to be done. It must not be called from within a command, which would wait
// on itself.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.stopping.Store(true)
	if err := c.loop.Shutdown(ctx); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		return err
	}
	if !c.ran.Load() {
		c.finish()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates without draining queued commands, interrupting any
// running script, including one blocked in a native. It does not wait for
// termination, see [Coordinator.Done].
func (c *Coordinator) Close() error {
	c.stopping.Store(true)
	c.abandon.Store(true)
	c.interrupt(ErrTerminated)
	if err := c.loop.Close(); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		return err
	}
	if !c.ran.Load() {
		c.finish()
	}
	return nil
}

// interrupt stops the running script, and unblocks any native waiting on
// the engine context.
func (c *Coordinator) interrupt(cause error) {
	c.cancel(cause)
	if rt := c.current.Load(); rt != nil {
		rt.Interrupt(cause)
	}
}

// finish tears everything down, exactly once, after the loop has stopped.
func (c *Coordinator) finish() {
	c.finishOnce.Do(func() {
		c.timers.Close()

		release := c.lock.acquire()
		c.discardEngine()
		release()

		c.timers.Wait()
		pinned := c.handles.Clear()
		dropped := c.pending.Swap(0)
		c.cancel(ErrTerminated)
		close(c.done)

		c.logger.Info().
			Int64("dropped", dropped).
			Int("pinned", pinned).
			Log("replete: coordinator terminated")
	})
}

// dispatch executes a single command, on the engine goroutine.
func (c *Coordinator) dispatch(cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Err().
				Str("command", cmd.commandName()).
				Any("panic", r).
				Log("replete: command panicked")
			c.emit(event.Simple(event.Error, fmt.Sprint(r)))
		}
	}()

	c.logger.Trace().
		Str("command", cmd.commandName()).
		Log("replete: dispatch")

	switch cmd := cmd.(type) {
	case Init:
		c.init(cmd)
	case Eval:
		c.eval(cmd)
	case SetWidth:
		c.setWidth(cmd)
	case InvokeCallback:
		c.invokeCallback(cmd)
	case ReleaseHandle:
		c.releaseHandle(cmd)
	case ConsentMacros:
		c.consentMacros(cmd)
	default:
		panic(fmt.Sprintf("replete: unhandled command %T", cmd))
	}
}

func (c *Coordinator) emit(ev event.Event) {
	c.emitter.Send(ev)
}

func (c *Coordinator) init(cmd Init) {
	err := func() error {
		release := c.lock.acquire()
		defer release()

		c.discardEngine()

		rt := goja.New()
		if err := c.natives.Install(c.ctx, rt); err != nil {
			c.discardEngine()
			return err
		}
		c.rt = rt
		c.current.Store(rt)

		if err := c.bootstrap(rt, cmd.Device); err != nil {
			c.discardEngine()
			return err
		}
		return nil
	}()

	if err != nil {
		c.logger.Err().
			Err(err).
			Log("replete: init failed")
		c.emit(event.Simple(event.InitFailed, err.Error()))
		return
	}

	c.logger.Info().
		Str("idiom", cmd.Device.Idiom).
		Uint64("generation", c.natives.Generation()).
		Log("replete: engine ready")
	c.emit(event.Simple(event.EngineReady, ""))
	c.emit(event.Simple(event.WidthChanged, ""))
	c.emit(event.Simple(event.EvalEnabled, ""))
}

// discardEngine drops the current engine, if any, cancelling its timers and
// closing its streams. The caller must hold the engine lock.
func (c *Coordinator) discardEngine() {
	if n := c.timers.CancelAll(); n != 0 {
		c.logger.Debug().
			Int("count", n).
			Log("replete: cancelled timers of discarded engine")
	}
	c.natives.Close()
	c.rt = nil
	c.current.Store(nil)
}

func (c *Coordinator) eval(cmd Eval) {
	c.emit(event.Simple(event.InputEcho, cmd.Source))
	if c.rt == nil {
		c.emit(event.Simple(event.Error, ErrEngineNotReady.Error()))
		c.emit(event.Simple(event.EvalEnabled, ""))
		return
	}
	c.evaluate(cmd.Source)
}

// evaluate runs src through the REPL, which prints its own results.
func (c *Coordinator) evaluate(src string) {
	if !c.guardMacro(src) {
		return
	}
	err := c.withEngine(func(rt *goja.Runtime) error {
		_, err := callRepl(rt, "read_eval_print", src)
		return err
	})
	if err != nil {
		c.logger.Debug().
			Err(err).
			Log("replete: eval raised")
		c.emit(event.Simple(event.Error, trace(err)))
	}
	c.emit(event.Simple(event.EvalEnabled, ""))
	c.emit(event.Simple(event.PrintingEnabled, ""))
}

func (c *Coordinator) setWidth(cmd SetWidth) {
	err := c.withEngine(func(rt *goja.Runtime) error {
		_, err := callRepl(rt, "set_width", cmd.Width)
		return err
	})
	if err != nil {
		c.logger.Debug().
			Err(err).
			Float64("width", cmd.Width).
			Log("replete: set width failed")
	}
}

func (c *Coordinator) invokeCallback(cmd InvokeCallback) {
	cb, ok := c.handles.Get(cmd.Handle)
	if !ok {
		c.misuse.Report("unknown-handle").
			Str("handle", cmd.Handle.String()).
			Log("replete: invoke of unknown handle")
		return
	}
	if c.rt == nil || cb.Generation != c.natives.Generation() {
		c.logger.Debug().
			Str("handle", cmd.Handle.String()).
			Uint64("generation", cb.Generation).
			Log("replete: skipped callback of discarded engine")
		return
	}
	err := c.withEngine(func(rt *goja.Runtime) error {
		args := make([]goja.Value, len(cmd.Args))
		for i, arg := range cmd.Args {
			args[i] = rt.ToValue(arg)
		}
		_, err := cb.Fn(goja.Undefined(), args...)
		return err
	})
	if err != nil {
		c.emit(event.Simple(event.Error, trace(err)))
	}
}

func (c *Coordinator) releaseHandle(cmd ReleaseHandle) {
	if err := c.handles.Release(cmd.Handle); err != nil {
		c.misuse.Report("double-release").
			Str("handle", cmd.Handle.String()).
			Log("replete: release of unknown handle")
	}
}
