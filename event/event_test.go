// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package event

import (
	"testing"

	"github.com/joeycumines/go-replete/markup"
	"github.com/stretchr/testify/assert"
)

func TestKind_String(t *testing.T) {
	for k, want := range map[Kind]string{
		InputEcho:            "InputEcho",
		Output:               "Output",
		Error:                "Error",
		EvalEnabled:          "EvalEnabled",
		PrintingEnabled:      "PrintingEnabled",
		WidthChanged:         "WidthChanged",
		EngineReady:          "EngineReady",
		InitFailed:           "InitFailed",
		MacroConsentRequired: "MacroConsentRequired",
		0:                    "Unknown",
		Kind(100):            "Unknown",
	} {
		assert.Equal(t, want, k.String())
	}
}

func TestPrinted(t *testing.T) {
	ev := Printed("\x1b[34m:kw\x1b[m\n")
	assert.Equal(t, Output, ev.Kind)
	assert.Equal(t, ":kw\n", ev.Marked.Plain)
	if assert.Len(t, ev.Marked.Spans, 1) {
		assert.Equal(t, markup.Blue, ev.Marked.Spans[0].Color)
	}
}

func TestEmitterFunc(t *testing.T) {
	var got []Event
	var e Emitter = EmitterFunc(func(ev Event) { got = append(got, ev) })
	e.Send(Simple(Error, "boom"))
	Discard.Send(Simple(Error, "dropped"))
	assert.Equal(t, []Event{{Kind: Error, Text: "boom"}}, got)
}
