// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"github.com/joeycumines/go-replete/handle"
)

type (
	// Command is a unit of work for the coordinator. The set of commands is
	// closed, see [Init], [Eval], [SetWidth], [InvokeCallback],
	// [ReleaseHandle], and [ConsentMacros].
	Command interface {
		commandName() string
	}

	// DeviceProfile describes the host, passed to the script environment
	// during initialization.
	DeviceProfile struct {
		// Idiom is the user interface idiom, e.g. "iPhone" or "iPad".
		Idiom     string
		Debug     bool
		Simulator bool
	}

	// Init (re)creates the engine and runs the bootstrap sequence.
	Init struct {
		Device DeviceProfile
	}

	// Eval reads, evaluates, and prints Source.
	Eval struct {
		Source string
	}

	// SetWidth informs the script environment of the display width, in
	// columns.
	SetWidth struct {
		Width float64
	}

	// InvokeCallback calls a pinned callback. Sent by timers.
	InvokeCallback struct {
		Args   []any
		Handle handle.Handle
	}

	// ReleaseHandle unpins a callback. Sent by timers.
	ReleaseHandle struct {
		Handle handle.Handle
	}

	// ConsentMacros records consent to macro definitions in the REPL, then
	// evaluates Source (if non-empty), typically the input that prompted
	// [event.MacroConsentRequired].
	ConsentMacros struct {
		Source string
	}
)

func (Init) commandName() string           { return "init" }
func (Eval) commandName() string           { return "eval" }
func (SetWidth) commandName() string       { return "set-width" }
func (InvokeCallback) commandName() string { return "invoke-callback" }
func (ReleaseHandle) commandName() string  { return "release-handle" }
func (ConsentMacros) commandName() string  { return "consent-macros" }
