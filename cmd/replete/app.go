// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/joeycumines/go-replete"
	"github.com/joeycumines/go-replete/bundle"
	"github.com/joeycumines/go-replete/event"
	"github.com/joeycumines/go-replete/internal/appconfig"
	"github.com/joeycumines/go-replete/uisink"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

const shutdownTimeout = 5 * time.Second

// errInitFailed is returned when the bundle fails to bootstrap, the trace
// has already been rendered.
var errInitFailed = errors.New("engine initialization failed")

// app wires a coordinator to a UI sink, for a single run of the command.
type app struct {
	coord     *replete.Coordinator
	bundle    *bundle.FS
	sink      *uisink.Sink
	logger    *logiface.Logger[logiface.Event]
	text      *uisink.TextRenderer
	evalDone  chan struct{}
	initDone  chan error
	closeLog  func() error
	width     func() int
	pending   string
	config    string
	sinkErr   chan error
	device    replete.DeviceProfile
	errors    int
	pendingMu sync.Mutex
	errorsMu  sync.Mutex
}

type appOptions struct {
	stdout io.Writer
	stderr io.Writer
	width  func() int
	// config is the file macro consent is persisted to, empty for the
	// default path
	config string
	echo   bool
}

func newApp(cfg appconfig.Config, opts appOptions) (*app, error) {
	logger, closeLog, err := newLogger(cfg.Logging, opts.stderr)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("root: %w", err)
	}
	root, err := bundle.NewRoot(cfg.Root)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	text := uisink.NewTextRenderer(opts.stdout, cfg.UI.Color)
	text.NoEcho = !opts.echo

	x := &app{
		bundle:   bundle.Dir(cfg.Bundle.Dir),
		sink:     uisink.New(nil),
		logger:   logger,
		text:     text,
		evalDone: make(chan struct{}, 1),
		initDone: make(chan error, 1),
		closeLog: closeLog,
		width:    opts.width,
		config:   opts.config,
		sinkErr:  make(chan error, 1),
		device: replete.DeviceProfile{
			Idiom:     cfg.Device.Idiom,
			Debug:     cfg.Device.Debug,
			Simulator: cfg.Device.Simulator,
		},
	}
	if cfg.UI.Width > 0 {
		w := cfg.UI.Width
		x.width = func() int { return w }
	}
	if x.width == nil {
		x.width = func() int { return 80 }
	}

	x.coord, err = replete.New(
		replete.WithLogger(logger),
		replete.WithEmitter(x.sink),
		replete.WithBundle(x.bundle),
		replete.WithPathResolver(root),
		replete.WithStdout(opts.stdout),
		replete.WithStderr(opts.stderr),
		replete.WithMacroConsent(cfg.Macros.Consented),
	)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	return x, nil
}

// newLogger builds the diagnostic logger, writing JSON lines to the
// configured file, or w.
func newLogger(cfg appconfig.LoggingConfig, w io.Writer) (*logiface.Logger[logiface.Event], func() error, error) {
	level, err := appconfig.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	closeLog := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		w = f
		closeLog = f.Close
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
	return logger, closeLog, nil
}

// start runs the coordinator and sink, and initializes the engine, waiting
// for the result.
func (x *app) start(ctx context.Context) error {
	go func() {
		if err := x.coord.Run(ctx); err != nil {
			x.logger.Warning().Err(err).Log("replete: coordinator stopped")
		}
	}()
	// drained until closed, so output isn't lost on interrupt
	go func() { x.sinkErr <- x.sink.Run(context.WithoutCancel(ctx), x) }()

	if err := x.coord.Submit(replete.Init{Device: x.device}); err != nil {
		return err
	}
	select {
	case err := <-x.initDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Render implements [uisink.Renderer], rendering history before acting on
// control events.
func (x *app) Render(batch []event.Event) error {
	if err := x.text.Render(batch); err != nil {
		return err
	}
	for _, ev := range batch {
		switch ev.Kind {
		case event.EngineReady:
			x.signalInit(nil)
		case event.InitFailed:
			x.signalInit(errInitFailed)
		case event.WidthChanged:
			if err := x.coord.Submit(replete.SetWidth{Width: float64(x.width())}); err != nil {
				x.logger.Debug().Err(err).Log("replete: width not sent")
			}
		case event.Error:
			x.errorsMu.Lock()
			x.errors++
			x.errorsMu.Unlock()
		case event.MacroConsentRequired:
			x.pendingMu.Lock()
			x.pending = ev.Text
			x.pendingMu.Unlock()
			_, _ = io.WriteString(x.text.Writer(), macroConsentMessage)
		case event.EvalEnabled:
			select {
			case x.evalDone <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

const macroConsentMessage = `ClojureScript macros must be defined in a separate namespace and required
appropriately. For didactic purposes, macros may be defined directly in the
REPL, in which case any helper functions called during macroexpansion must be
defined using defmacfn in lieu of defn.
Enter :macros to enable REPL macro definitions.
`

func (x *app) signalInit(err error) {
	select {
	case x.initDone <- err:
	default:
	}
}

// eval submits src, and waits until input is enabled again.
func (x *app) eval(ctx context.Context, src string) error {
	x.drainEvalDone()
	if err := x.coord.Submit(replete.Eval{Source: src}); err != nil {
		return err
	}
	return x.awaitEval(ctx)
}

// consent enables macro definitions, evaluating the input that asked for
// them, if any.
func (x *app) consent(ctx context.Context) error {
	x.pendingMu.Lock()
	src := x.pending
	x.pending = ""
	x.pendingMu.Unlock()
	x.drainEvalDone()
	if err := x.coord.Submit(replete.ConsentMacros{Source: src}); err != nil {
		return err
	}
	if src == "" {
		return nil
	}
	return x.awaitEval(ctx)
}

// persistConsent records macro consent in the config file, so later
// sessions don't ask again.
func (x *app) persistConsent() {
	path, err := appconfig.SaveMacroConsent(x.config)
	if err != nil {
		x.logger.Warning().Err(err).Log("replete: macro consent not saved")
		return
	}
	x.logger.Debug().Str("path", path).Log("replete: macro consent saved")
}

func (x *app) pendingMacro() string {
	x.pendingMu.Lock()
	defer x.pendingMu.Unlock()
	return x.pending
}

func (x *app) errorCount() int {
	x.errorsMu.Lock()
	defer x.errorsMu.Unlock()
	return x.errors
}

func (x *app) drainEvalDone() {
	select {
	case <-x.evalDone:
	default:
	}
}

func (x *app) awaitEval(ctx context.Context) error {
	select {
	case <-x.evalDone:
		return nil
	case <-x.coord.Done():
		return replete.ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close shuts everything down, flushing pending output.
func (x *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := x.coord.Shutdown(ctx)
	if err != nil {
		err = errors.Join(err, x.coord.Close())
	}
	x.sink.Close()

	select {
	case sinkErr := <-x.sinkErr:
		err = errors.Join(err, sinkErr)
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}

	x.logger.Debug().
		Str("session", x.coord.SessionID().String()).
		Bool("macros_consented", x.coord.MacrosConsented()).
		Log("replete: session closed")

	return errors.Join(err, x.closeLog())
}
