// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/go-replete/bridge"
	"github.com/joeycumines/go-replete/bundle"
	"github.com/joeycumines/go-replete/event"
	"github.com/joeycumines/go-replete/timer"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

// recorder captures every event, in order.
type recorder struct {
	ch     chan event.Event
	events []event.Event
	mu     sync.Mutex
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan event.Event, 4096)}
}

func (r *recorder) Send(ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.ch <- ev:
	default:
	}
}

func (r *recorder) all() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// next returns the next event of one of the given kinds, skipping others.
func (r *recorder) next(t *testing.T, kinds ...event.Kind) event.Event {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.ch:
			for _, k := range kinds {
				if ev.Kind == k {
					return ev
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", kinds)
		}
	}
}

// expect asserts the next events are exactly kinds, in order.
func (r *recorder) expect(t *testing.T, kinds ...event.Kind) []event.Event {
	t.Helper()
	out := make([]event.Event, 0, len(kinds))
	for _, want := range kinds {
		select {
		case ev := <-r.ch:
			require.Equal(t, want, ev.Kind, "got %s (%q%s), want %s", ev.Kind, ev.Text, ev.Marked.Plain, want)
			out = append(out, ev)
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	return out
}

func kinds(events []event.Event, kind event.Kind) (n int) {
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return
}

type testCoordinator struct {
	*Coordinator
	events *recorder
	errs   chan error
}

func newTestCoordinator(t *testing.T, dir string, opts ...Option) *testCoordinator {
	t.Helper()
	events := newRecorder()
	c, err := New(append([]Option{
		WithBundle(bundle.Dir(dir)),
		WithEmitter(events),
	}, opts...)...)
	require.NoError(t, err)
	x := &testCoordinator{Coordinator: c, events: events, errs: make(chan error, 1)}
	go func() { x.errs <- c.Run(context.Background()) }()
	require.Eventually(t, func() bool { return running(c.State()) }, waitTimeout, time.Millisecond)
	t.Cleanup(func() {
		_ = c.Close()
		select {
		case <-c.Done():
		case <-time.After(waitTimeout):
			t.Error("coordinator did not terminate")
		}
	})
	return x
}

func running(s eventloop.LoopState) bool {
	return s == eventloop.StateRunning || s == eventloop.StateSleeping
}

func (x *testCoordinator) submit(t *testing.T, cmd Command) {
	t.Helper()
	require.NoError(t, x.Submit(cmd))
}

func (x *testCoordinator) init(t *testing.T) {
	t.Helper()
	x.submit(t, Init{Device: DeviceProfile{Idiom: "iPad"}})
	x.events.expect(t, event.EngineReady, event.WidthChanged, event.EvalEnabled)
}

// eval submits src, returning the printed output.
func (x *testCoordinator) eval(t *testing.T, src string) string {
	t.Helper()
	x.submit(t, Eval{Source: src})
	x.events.expect(t, event.InputEcho)
	var out strings.Builder
	for {
		ev := x.events.next(t, event.Output, event.Error, event.EvalEnabled)
		switch ev.Kind {
		case event.Output:
			out.WriteString(ev.Marked.Plain)
		case event.Error:
			t.Fatalf("eval %q: %s", src, ev.Text)
		case event.EvalEnabled:
			x.events.expect(t, event.PrintingEnabled)
			return out.String()
		}
	}
}

func (x *testCoordinator) shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, x.Shutdown(ctx))
	require.NoError(t, <-x.errs)
}

func TestCoordinator_initThenEval(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	assert.False(t, x.EngineLocked())

	x.submit(t, Eval{Source: "(+ 1 2)"})
	evs := x.events.expect(t, event.InputEcho, event.Output, event.EvalEnabled, event.PrintingEnabled)
	assert.Equal(t, "(+ 1 2)", evs[0].Text)
	assert.Equal(t, "3\n", evs[1].Marked.Plain)

	x.shutdown(t)
	assert.Equal(t, 1, kinds(x.events.all(), event.Output))
	assert.Equal(t, 0, kinds(x.events.all(), event.Error))
	assert.Equal(t, eventloop.StateTerminated, x.State())
}

func TestCoordinator_bootstrapEnvironment(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.submit(t, Init{Device: DeviceProfile{Idiom: "iPhone", Debug: true}})
	x.events.expect(t, event.EngineReady, event.WidthChanged, event.EvalEnabled)

	for _, tc := range [...]struct {
		src  string
		want string
	}{
		{src: `(js* "replete.repl.app_env['user-interface-idiom']")`, want: "iPhone\n"},
		{src: `(js* "replete.repl.app_env['debug-build']")`, want: "true\n"},
		{src: `(js* "replete.repl.app_env['target-simulator']")`, want: "false\n"},
		{src: `(js* "replete.repl.user_ready")`, want: "true\n"},
		{src: `(js* "window === global && global === this")`, want: "true\n"},
		{src: `(js* "cljs.core.system_time === REPLETE_HIGH_RES_TIMER")`, want: "true\n"},
		{src: `(js* "cljs.core._STAR_print_fn_STAR_ === REPLETE_PRINT_FN")`, want: "true\n"},
		{src: `(js* "goog.isProvided_('cljs.core')")`, want: "false\n"},
		{src: `(js* "typeof goog.require__")`, want: "function\n"},
	} {
		assert.Equal(t, tc.want, x.eval(t, tc.src), tc.src)
	}
}

func TestCoordinator_setWidth(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	x.submit(t, SetWidth{Width: 80})
	assert.Equal(t, "80\n", x.eval(t, `(js* "replete.repl.width")`))
}

func TestCoordinator_initFailed(t *testing.T) {
	x := newTestCoordinator(t, "testdata/broken")
	x.submit(t, Init{})
	ev := x.events.expect(t, event.InitFailed)[0]
	assert.Contains(t, ev.Text, "bootstrap step 3 (module-loader)")

	// a later command proves the init has completed
	x.submit(t, Eval{Source: "(+ 1 2)"})
	x.events.expect(t, event.InputEcho, event.Error, event.EvalEnabled)
	assert.False(t, x.EngineLocked())

	x.shutdown(t)
	all := x.events.all()
	assert.Equal(t, 1, kinds(all, event.InitFailed))
	assert.Equal(t, 0, kinds(all, event.EngineReady))

	// a fresh instance is unaffected
	y := newTestCoordinator(t, "testdata/bundle")
	y.init(t)
	assert.Equal(t, "3\n", y.eval(t, "(+ 1 2)"))
}

func TestCoordinator_initMissingBundle(t *testing.T) {
	x := newTestCoordinator(t, t.TempDir())
	x.submit(t, Init{})
	ev := x.events.expect(t, event.InitFailed)[0]
	assert.Contains(t, ev.Text, "module-loader")
	assert.Contains(t, ev.Text, "goog/base.js")
}

func TestCoordinator_reinit(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	assert.Equal(t, "#'cljs.user/a\n", x.eval(t, "(def a 1)"))
	x.eval(t, `(js* "setInterval(function () {}, 60000)")`)
	assert.Equal(t, 1, x.timers.Len(timer.Repeating))

	x.init(t)
	assert.Equal(t, 0, x.timers.Len(timer.Repeating))

	// the new engine starts from scratch
	x.submit(t, Eval{Source: "a"})
	x.events.expect(t, event.InputEcho)
	ev := x.events.next(t, event.Output)
	assert.Contains(t, ev.Marked.Plain, "Use of undeclared Var cljs.user/a")
}

func TestCoordinator_evalBeforeInit(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.submit(t, Eval{Source: "(+ 1 2)"})
	evs := x.events.expect(t, event.InputEcho, event.Error, event.EvalEnabled)
	assert.Equal(t, ErrEngineNotReady.Error(), evs[1].Text)
}

func TestCoordinator_evalThrows(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	x.submit(t, Eval{Source: `(throw "boom")`})
	evs := x.events.expect(t, event.InputEcho, event.Error, event.EvalEnabled, event.PrintingEnabled)
	assert.Contains(t, evs[1].Text, "boom")

	// still healthy
	assert.Equal(t, "3\n", x.eval(t, "(+ 1 2)"))
}

func TestCoordinator_printMarkup(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	x.submit(t, Eval{Source: "missing"})
	x.events.expect(t, event.InputEcho)
	ev := x.events.next(t, event.Output)
	assert.Equal(t, "WARNING: Use of undeclared Var cljs.user/missing\n", ev.Marked.Plain)
	require.Len(t, ev.Marked.Spans, 1)
	assert.Equal(t, 0, ev.Marked.Spans[0].Start)
}

func TestCoordinator_setTimeout(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	assert.Equal(t, "1\n", x.eval(t, `(js* "setTimeout(function () { REPLETE_PRINT_FN('tick'); }, 1)")`))
	ev := x.events.next(t, event.Output)
	assert.Equal(t, "tick", ev.Marked.Plain)
	assert.Eventually(t, func() bool { return x.handles.Len() == 0 }, waitTimeout, time.Millisecond)
}

func TestCoordinator_ordering(t *testing.T) {
	var order []string
	x := newTestCoordinator(t, "testdata/bundle", WithEmitter(event.EmitterFunc(func(ev event.Event) {
		if ev.Kind == event.Output {
			order = append(order, strings.TrimSpace(ev.Marked.Plain))
		}
	})))
	callback := func(name string) goja.Callable {
		return func(goja.Value, ...goja.Value) (goja.Value, error) {
			order = append(order, name)
			return goja.Undefined(), nil
		}
	}

	x.submit(t, Init{})
	var want []string
	for i := range 20 {
		name := string(rune('a' + i))
		if i%3 == 0 {
			name = "cb-" + name
			// the first engine is generation 1
			h := x.handles.Track(bridge.Callback{Fn: callback(name), Generation: 1})
			x.submit(t, InvokeCallback{Handle: h})
			x.submit(t, ReleaseHandle{Handle: h})
		} else {
			x.submit(t, Eval{Source: `"` + name + `"`})
		}
		want = append(want, name)
	}

	x.shutdown(t)
	assert.Equal(t, want, order)
	assert.Equal(t, 0, x.handles.Len())
}

func TestCoordinator_staleCallback(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	x.init(t)
	var called bool
	h := x.handles.Track(bridge.Callback{
		Fn: func(goja.Value, ...goja.Value) (goja.Value, error) {
			called = true
			return goja.Undefined(), nil
		},
		Generation: 1,
	})
	x.submit(t, InvokeCallback{Handle: h})
	x.submit(t, ReleaseHandle{Handle: h})
	x.shutdown(t)
	assert.False(t, called)
}

func TestCoordinator_macroConsent(t *testing.T) {
	const src = "(defmacro foo [x] x)"
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	assert.False(t, x.MacrosConsented())

	x.submit(t, Eval{Source: src})
	evs := x.events.expect(t, event.InputEcho, event.MacroConsentRequired, event.EvalEnabled)
	assert.Equal(t, src, evs[1].Text)

	x.submit(t, ConsentMacros{Source: src})
	evs = x.events.expect(t, event.Output, event.EvalEnabled, event.PrintingEnabled)
	assert.Equal(t, "#'cljs.user/foo\n", evs[0].Marked.Plain)
	assert.True(t, x.MacrosConsented())

	assert.Equal(t, "#'cljs.user/bar\n", x.eval(t, "  (defmacfn bar [] 1)"))
}

func TestCoordinator_macroConsentPreset(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle", WithMacroConsent(true))
	x.init(t)
	assert.Equal(t, "#'cljs.user/foo\n", x.eval(t, "(defmacro foo [x] x)"))
}

func TestCoordinator_callbackMisuse(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle", WithMisuseRates(map[time.Duration]int{}))
	x.init(t)
	x.submit(t, InvokeCallback{Handle: 12345})
	x.submit(t, ReleaseHandle{Handle: 12345})
	x.shutdown(t)
	assert.Equal(t, uint64(2), x.misuse.Count())
}

func TestCoordinator_callbackPanics(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	h := x.handles.Track(bridge.Callback{
		Fn: func(goja.Value, ...goja.Value) (goja.Value, error) {
			panic("kaboom")
		},
		Generation: 1,
	})
	x.submit(t, InvokeCallback{Handle: h})
	ev := x.events.next(t, event.Error)
	assert.Contains(t, ev.Text, "kaboom")
	assert.False(t, x.EngineLocked())
	assert.Equal(t, "3\n", x.eval(t, "(+ 1 2)"))
}

func TestCoordinator_reentrantRun(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	errs := make(chan error, 1)
	h := x.handles.Track(bridge.Callback{
		Fn: func(goja.Value, ...goja.Value) (goja.Value, error) {
			errs <- x.Run(context.Background())
			return goja.Undefined(), nil
		},
		Generation: 1,
	})
	x.submit(t, InvokeCallback{Handle: h})
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrReentrantRun)
	case <-time.After(waitTimeout):
		t.Fatal("timed out")
	}
}

func TestCoordinator_shutdown(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	assert.ErrorIs(t, x.Run(context.Background()), ErrAlreadyRunning)
	x.shutdown(t)
	assert.ErrorIs(t, x.Submit(Eval{Source: "1"}), ErrTerminated)
	assert.ErrorIs(t, x.Run(context.Background()), ErrTerminated)
	require.NoError(t, x.Shutdown(context.Background()))
}

func TestCoordinator_shutdownBeforeRun(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	require.NoError(t, c.Submit(Eval{Source: "1"}))
	assert.Equal(t, 1, c.Pending())
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, eventloop.StateTerminated, c.State())
	assert.Equal(t, 0, c.Pending())
	assert.ErrorIs(t, c.Run(context.Background()), ErrTerminated)
}

func TestCoordinator_shutdownDrains(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.submit(t, Init{})
	for range 10 {
		x.submit(t, Eval{Source: "(+ 1 1)"})
	}
	x.shutdown(t)
	assert.Equal(t, 10, kinds(x.events.all(), event.Output))
}

func TestCoordinator_closeInterrupts(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	x.submit(t, Eval{Source: `(js* "for (;;) {}")`})
	x.submit(t, Eval{Source: "(+ 1 2)"})
	x.events.expect(t, event.InputEcho)
	require.NoError(t, x.Close())
	require.NoError(t, <-x.errs)
	assert.Equal(t, 0, kinds(x.events.all(), event.Output))
}

func TestCoordinator_closeInterruptsSleep(t *testing.T) {
	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	x.submit(t, Eval{Source: `(js* "REPLETE_SLEEP(30000)")`})
	x.events.expect(t, event.InputEcho)
	time.Sleep(20 * time.Millisecond)

	started := time.Now()
	require.NoError(t, x.Close())
	select {
	case err := <-x.errs:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("run did not return")
	}
	<-x.Done()
	assert.Less(t, time.Since(started), waitTimeout)
	assert.ErrorIs(t, context.Cause(x.ctx), ErrTerminated)
}

func TestCoordinator_closeInterruptsRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	x := newTestCoordinator(t, "testdata/bundle")
	x.init(t)
	x.submit(t, Eval{Source: `(js* "REPLETE_REQUEST({url: '` + srv.URL + `'}).error")`})
	x.events.expect(t, event.InputEcho)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, x.Close())
	select {
	case err := <-x.errs:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("run did not return")
	}
}

func TestCoordinator_contextCancelInterruptsSleep(t *testing.T) {
	c, err := New(WithBundle(bundle.Dir("testdata/bundle")))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() { errs <- c.Run(ctx) }()
	require.NoError(t, c.Submit(Init{}))
	require.NoError(t, c.Submit(Eval{Source: `(js* "REPLETE_SLEEP(30000)")`}))
	require.NoError(t, c.Submit(Eval{Source: "(+ 1 2)"}))
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitTimeout):
		t.Fatal("run did not return")
	}
	<-c.Done()
	assert.Equal(t, 0, c.Pending())
}

func TestCoordinator_requesterLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	var logs syncBuffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&logs)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
	id := uuid.MustParse("6b1d9a8e-6f0e-4a8e-9d6c-2f0d1b7c5e11")

	x := newTestCoordinator(t, "testdata/bundle",
		WithLogger(logger),
		WithSessionID(id),
		WithRequester(bridge.NewRequester(nil)),
	)
	assert.Equal(t, id, x.SessionID())
	x.init(t)
	assert.Equal(t, "ok\n", x.eval(t, `(js* "REPLETE_REQUEST({url: '`+srv.URL+`'}).body")`))

	var found bool
	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.Contains(line, "bridge: request complete") {
			found = true
			assert.Contains(t, line, id.String())
		}
	}
	assert.True(t, found, logs.String())
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func TestCoordinator_contextCancelled(t *testing.T) {
	c, err := New(WithBundle(bundle.Dir("testdata/bundle")))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- c.Run(ctx) }()
	require.NoError(t, c.Submit(Init{}))
	require.NoError(t, c.Submit(Eval{Source: `(js* "for (;;) {}")`}))
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, context.Canceled), err)
	case <-time.After(waitTimeout):
		t.Fatal("run did not return")
	}
	<-c.Done()
	assert.Equal(t, eventloop.StateTerminated, c.State())
	assert.ErrorIs(t, c.Submit(Init{}), ErrTerminated)
}

func TestSubmit_nil(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()
	assert.Error(t, c.Submit(nil))
}
