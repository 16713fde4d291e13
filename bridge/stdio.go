// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"io"

	"github.com/dop251/goja"
)

func (x *engine) writeStdout(call goja.FunctionCall) goja.Value {
	return x.rawWrite(x.registry.stdout, `stdout`, call)
}

func (x *engine) flushStdout(goja.FunctionCall) goja.Value {
	return x.rawFlush(x.registry.stdout, `stdout`)
}

func (x *engine) writeStderr(call goja.FunctionCall) goja.Value {
	return x.rawWrite(x.registry.stderr, `stderr`, call)
}

func (x *engine) flushStderr(goja.FunctionCall) goja.Value {
	return x.rawFlush(x.registry.stderr, `stderr`)
}

func (x *engine) rawWrite(w io.Writer, name string, call goja.FunctionCall) goja.Value {
	s, ok := stringArg(call, 0)
	if !ok || w == nil {
		return goja.Undefined()
	}
	if _, err := io.WriteString(w, s); err != nil {
		x.registry.logger.Warning().
			Str(`stream`, name).
			Err(err).
			Log(`bridge: raw write failed`)
	}
	return goja.Undefined()
}

func (x *engine) rawFlush(w io.Writer, name string) goja.Value {
	var err error
	switch w := w.(type) {
	case interface{ Flush() error }:
		err = w.Flush()
	case interface{ Sync() error }:
		err = w.Sync()
	}
	if err != nil {
		x.registry.logger.Debug().
			Str(`stream`, name).
			Err(err).
			Log(`bridge: raw flush failed`)
	}
	return goja.Undefined()
}
