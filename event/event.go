// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package event models the notifications sent from the engine side to the
// UI, and the sink interface they are delivered through.
package event

import (
	"github.com/joeycumines/go-replete/markup"
)

// Kind identifies the type of an [Event].
type Kind int

const (
	_ Kind = iota
	// InputEcho echoes submitted source back to the history.
	InputEcho
	// Output is printed output, with colour markup.
	Output
	// Error is an error message, for display.
	Error
	// EvalEnabled indicates the UI may accept input again.
	EvalEnabled
	// PrintingEnabled indicates printed output may be shown again.
	PrintingEnabled
	// WidthChanged asks the UI to report its width, via a SetWidth command.
	WidthChanged
	// EngineReady indicates a successful init.
	EngineReady
	// InitFailed carries the failure trace of an unsuccessful init.
	InitFailed
	// MacroConsentRequired asks the user to opt in to macro definitions
	// before Text (the source) is evaluated.
	MacroConsentRequired
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case InputEcho:
		return "InputEcho"
	case Output:
		return "Output"
	case Error:
		return "Error"
	case EvalEnabled:
		return "EvalEnabled"
	case PrintingEnabled:
		return "PrintingEnabled"
	case WidthChanged:
		return "WidthChanged"
	case EngineReady:
		return "EngineReady"
	case InitFailed:
		return "InitFailed"
	case MacroConsentRequired:
		return "MacroConsentRequired"
	default:
		return "Unknown"
	}
}

// Event is a single outbound notification. Text is set for InputEcho, Error,
// InitFailed and MacroConsentRequired; Marked is set for Output.
type Event struct {
	Marked markup.Text
	Text   string
	Kind   Kind
}

// Emitter receives events. Implementations must not block for long, and
// must be safe to call from the engine goroutine.
type Emitter interface {
	Send(ev Event)
}

// EmitterFunc adapts a function to [Emitter].
type EmitterFunc func(ev Event)

// Send implements Emitter.
func (f EmitterFunc) Send(ev Event) { f(ev) }

// Discard is an Emitter that drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Printed builds an Output event from raw (possibly ANSI coloured) text.
func Printed(s string) Event {
	return Event{Kind: Output, Marked: markup.Mark(s)}
}

// Simple builds an event of the given kind, carrying text.
func Simple(kind Kind, text string) Event {
	return Event{Kind: kind, Text: text}
}
