// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package uisink

import (
	"bufio"
	"io"
	"strings"

	"github.com/joeycumines/go-replete/event"
	"github.com/joeycumines/go-replete/markup"
)

// TextRenderer writes the history entries of a batch (input echoes, output,
// errors and init failures) to a terminal. Control events are ignored.
type TextRenderer struct {
	w io.Writer
	// Prompt prefixes echoed input.
	Prompt string
	// Color enables 24-bit ANSI colour.
	Color bool
	// NoEcho skips input echoes, e.g. when the terminal already shows them.
	NoEcho bool
}

// NewTextRenderer writes to w.
func NewTextRenderer(w io.Writer, color bool) *TextRenderer {
	return &TextRenderer{w: w, Color: color, Prompt: "cljs.user=> "}
}

// Writer returns the underlying writer.
func (x *TextRenderer) Writer() io.Writer {
	return x.w
}

// Render implements [Renderer].
func (x *TextRenderer) Render(batch []event.Event) error {
	w := bufio.NewWriter(x.w)
	for _, ev := range batch {
		switch ev.Kind {
		case event.InputEcho:
			if x.NoEcho {
				continue
			}
			_, _ = w.WriteString(x.Prompt)
			_, _ = w.WriteString(ev.Text)
			_ = w.WriteByte('\n')
		case event.Output:
			if x.Color {
				_, _ = w.WriteString(ev.Marked.ANSI())
			} else {
				_, _ = w.WriteString(ev.Marked.Plain)
			}
		case event.Error, event.InitFailed:
			_, _ = w.WriteString(x.errorText(ev.Text))
		}
	}
	return w.Flush()
}

func (x *TextRenderer) errorText(s string) string {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	if !x.Color {
		return s
	}
	body := strings.TrimSuffix(s, "\n")
	return markup.Text{
		Plain: body,
		Spans: []markup.Span{{Start: 0, End: len(body), Color: markup.Red}},
	}.ANSI() + "\n"
}
