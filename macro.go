// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"strings"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-replete/event"
)

const referMacrosSource = "(require '[chivorcam.core :refer [defmacro defmacfn]])"

// isMacroDefinition reports whether src defines a macro, which requires
// chivorcam's defmacro to be referred into the user namespace.
func isMacroDefinition(src string) bool {
	src = strings.TrimLeft(src, " \t\r\n")
	return strings.HasPrefix(src, "(defmacro") || strings.HasPrefix(src, "(defmacfn")
}

// macrosReferred asks the running engine whether defmacro is available.
func (c *Coordinator) macrosReferred() bool {
	var referred bool
	err := c.withEngine(func(rt *goja.Runtime) error {
		v, err := callRepl(rt, "chivorcam_referred")
		if err != nil {
			return err
		}
		referred = v.ToBoolean()
		return nil
	})
	if err != nil {
		// without the check there's nothing to refer, evaluate as-is
		c.logger.Debug().
			Err(err).
			Log("replete: macro refer check failed")
		return true
	}
	return referred
}

// referMacros silently enables macro definitions in the user namespace.
func (c *Coordinator) referMacros() {
	c.session.suppressPrinting.Store(true)
	defer c.session.suppressPrinting.Store(false)
	err := c.withEngine(func(rt *goja.Runtime) error {
		_, err := callRepl(rt, "read_eval_print", referMacrosSource)
		return err
	})
	if err != nil {
		c.logger.Warning().
			Err(err).
			Log("replete: failed to refer macro support")
	}
}

func (c *Coordinator) consentMacros(cmd ConsentMacros) {
	if !c.session.consentedToMacros.Swap(true) {
		c.logger.Info().Log("replete: macro definitions enabled")
	}
	if cmd.Source == "" {
		return
	}
	c.evaluate(cmd.Source)
}

// guardMacro returns false if evaluation of src must wait for consent, in
// which case the UI has been asked for it.
func (c *Coordinator) guardMacro(src string) bool {
	if !isMacroDefinition(src) || c.macrosReferred() {
		return true
	}
	if !c.session.consentedToMacros.Load() {
		c.emit(event.Simple(event.MacroConsentRequired, src))
		c.emit(event.Simple(event.EvalEnabled, ""))
		return false
	}
	c.referMacros()
	return true
}
