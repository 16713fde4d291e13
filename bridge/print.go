// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"github.com/dop251/goja"
	"github.com/joeycumines/go-replete/event"
)

// Print sends s to the emitter as marked-up output, unless printing is
// currently suppressed.
func (x *Registry) Print(s string) {
	if x.suppressed != nil && x.suppressed() {
		return
	}
	x.emitter.Send(event.Printed(s))
}

// REPLETE_PRINT_FN(s)
func (x *engine) printFn(call goja.FunctionCall) goja.Value {
	if s, ok := stringArg(call, 0); ok {
		x.registry.Print(s)
	}
	return goja.Undefined()
}

// printer routes the console module to the print sink.
type printer struct {
	engine *engine
}

func (x *printer) Log(s string) { x.engine.registry.Print(s) }

func (x *printer) Warn(s string) { x.engine.registry.Print(s) }

func (x *printer) Error(s string) {
	if x.engine.registry.suppressed != nil && x.engine.registry.suppressed() {
		return
	}
	x.engine.registry.emitError(s)
}
