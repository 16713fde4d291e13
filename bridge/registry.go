// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/go-replete/event"
)

// ModuleName is the name the natives are registered under, for require.
const ModuleName = "replete:native"

type (
	// Bundle provides script contents by bundle-relative path.
	Bundle interface {
		Contents(path string) (string, bool)
	}

	// PathResolver maps logical (script visible) paths to absolute
	// filesystem paths. Resolution may fail, e.g. for paths that escape the
	// document root.
	PathResolver interface {
		Resolve(path string) (string, bool)
	}

	// Callback is a pinned script function, tagged with the generation of
	// the engine that created it.
	Callback struct {
		Fn         goja.Callable
		Generation uint64
	}

	// Registry binds native callbacks into engines. Each call to Install
	// starts a new generation, with its own loaded-script set and stream
	// tables. A Registry must only be used from the goroutine that owns the
	// engine.
	Registry struct {
		*registryOptions
		current    *engine
		generation uint64
	}

	// engine is the per-runtime state.
	engine struct {
		registry   *Registry
		ctx        context.Context
		rt         *goja.Runtime
		loaded     map[string]struct{}
		streams    *streamTables
		start      time.Time
		generation uint64
	}

	native struct {
		fn   func(call goja.FunctionCall) goja.Value
		name string
	}
)

// New creates a Registry.
func New(opts ...Option) (*Registry, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.timers != nil && cfg.handles == nil {
		return nil, errors.New("bridge: timers require a handle registry")
	}
	return &Registry{registryOptions: cfg}, nil
}

// Install binds all natives into rt, replacing any previously installed
// engine (whose open streams are closed). The context bounds blocking
// natives, such as network requests.
func (x *Registry) Install(ctx context.Context, rt *goja.Runtime) error {
	if rt == nil {
		return errors.New("bridge: runtime cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	x.Close()

	x.generation++
	e := &engine{
		registry:   x,
		ctx:        ctx,
		rt:         rt,
		loaded:     make(map[string]struct{}),
		streams:    newStreamTables(),
		start:      time.Now(),
		generation: x.generation,
	}

	for _, n := range e.natives() {
		if err := rt.Set(n.name, n.fn); err != nil {
			return fmt.Errorf("bridge: set %s: %w", n.name, err)
		}
	}

	modules := require.NewRegistry(require.WithLoader(x.sourceLoader))
	modules.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&printer{e}))
	modules.RegisterNativeModule(ModuleName, e.moduleLoader)
	modules.Enable(rt)
	console.Enable(rt)

	x.current = e

	x.logger.Debug().
		Uint64(`generation`, e.generation).
		Log(`bridge: natives installed`)

	return nil
}

// Generation identifies the most recently installed engine, or zero.
func (x *Registry) Generation() uint64 {
	return x.generation
}

// Close closes any streams left open by the current engine. The registry
// remains usable.
func (x *Registry) Close() {
	if x.current == nil {
		return
	}
	if n := x.current.streams.closeAll(); n != 0 {
		x.logger.Debug().
			Int(`count`, n).
			Uint64(`generation`, x.current.generation).
			Log(`bridge: closed orphaned streams`)
	}
	x.current = nil
}

// OpenStreams returns the number of streams open in the current engine.
func (x *Registry) OpenStreams() int {
	if x.current == nil {
		return 0
	}
	return x.current.streams.len()
}

func (x *Registry) sourceLoader(path string) ([]byte, error) {
	if x.bundle != nil {
		if s, ok := x.bundle.Contents(path); ok {
			return []byte(s), nil
		}
	}
	return nil, require.ModuleFileDoesNotExistError
}

func (x *Registry) emitError(text string) {
	x.emitter.Send(event.Simple(event.Error, text))
}

// natives lists every global, in registration order.
func (x *engine) natives() []native {
	return []native{
		{name: `REPLETE_LOAD`, fn: x.load},
		{name: `AMBLY_IMPORT_SCRIPT`, fn: x.importScript},
		{name: `REPLETE_PRINT_FN`, fn: x.printFn},

		{name: `REPLETE_REQUEST`, fn: x.request},

		{name: `REPLETE_RAW_WRITE_STDOUT`, fn: x.writeStdout},
		{name: `REPLETE_RAW_FLUSH_STDOUT`, fn: x.flushStdout},
		{name: `REPLETE_RAW_WRITE_STDERR`, fn: x.writeStderr},
		{name: `REPLETE_RAW_FLUSH_STDERR`, fn: x.flushStderr},

		{name: `REPLETE_IS_DIRECTORY`, fn: x.isDirectory},
		{name: `REPLETE_LIST_FILES`, fn: x.listFiles},
		{name: `REPLETE_DELETE`, fn: x.deleteFile},
		{name: `REPLETE_COPY`, fn: x.copyFile},
		{name: `REPLETE_MKDIRS`, fn: x.makeParentDirectories},

		{name: `REPLETE_FILE_READER_OPEN`, fn: x.fileReaderOpen},
		{name: `REPLETE_FILE_READER_READ`, fn: x.fileReaderRead},
		{name: `REPLETE_FILE_READER_CLOSE`, fn: x.fileReaderClose},

		{name: `REPLETE_FILE_WRITER_OPEN`, fn: x.fileWriterOpen},
		{name: `REPLETE_FILE_WRITER_WRITE`, fn: x.fileWriterWrite},
		{name: `REPLETE_FILE_WRITER_FLUSH`, fn: x.fileWriterFlush},
		{name: `REPLETE_FILE_WRITER_CLOSE`, fn: x.fileWriterClose},

		{name: `REPLETE_FILE_INPUT_STREAM_OPEN`, fn: x.inputStreamOpen},
		{name: `REPLETE_FILE_INPUT_STREAM_READ`, fn: x.inputStreamRead},
		{name: `REPLETE_FILE_INPUT_STREAM_CLOSE`, fn: x.inputStreamClose},

		{name: `REPLETE_FILE_OUTPUT_STREAM_OPEN`, fn: x.outputStreamOpen},
		{name: `REPLETE_FILE_OUTPUT_STREAM_WRITE`, fn: x.outputStreamWrite},
		{name: `REPLETE_FILE_OUTPUT_STREAM_FLUSH`, fn: x.outputStreamFlush},
		{name: `REPLETE_FILE_OUTPUT_STREAM_CLOSE`, fn: x.outputStreamClose},

		{name: `REPLETE_FSTAT`, fn: x.fstat},
		{name: `REPLETE_SLEEP`, fn: x.sleep},
		{name: `REPLETE_HIGH_RES_TIMER`, fn: x.highResTimer},

		{name: `setTimeout`, fn: x.setTimeout},
		{name: `clearTimeout`, fn: x.clearTimeout},
		{name: `setInterval`, fn: x.setInterval},
		{name: `clearInterval`, fn: x.clearInterval},
	}
}

// moduleLoader exposes the natives to require(ModuleName).
func (x *engine) moduleLoader(runtime *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	for _, n := range x.natives() {
		_ = exports.Set(n.name, n.fn)
	}
}

// stringArg returns the i-th argument as a string, and false if it is
// missing, undefined, or null.
func stringArg(call goja.FunctionCall, i int) (string, bool) {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ``, false
	}
	return v.String(), true
}
