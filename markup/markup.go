// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package markup converts the ANSI colour escapes emitted by the script
// printer into plain text plus colour spans, which a UI can render without
// understanding terminal escape codes.
package markup

import (
	"strconv"
	"strings"

	ansi "github.com/leaanthony/go-ansi-parser"
)

type (
	// RGB is an opaque 24-bit colour.
	RGB struct {
		R, G, B uint8
	}

	// Span colours Plain[Start:End], offsets are in bytes.
	Span struct {
		Start int
		End   int
		Color RGB
	}

	// Text is marked-up output.
	Text struct {
		Plain string
		Spans []Span
	}
)

// Recognised foreground colours. Text in any other colour is left unmarked.
var (
	Blue    = RGB{0, 0, 255}
	Green   = RGB{0, 191, 0}
	Magenta = RGB{191, 0, 191}
	Red     = RGB{255, 84, 84}
)

// palette is keyed by standard colour index, i.e. SGR code minus 30.
var palette = map[int]RGB{
	4: Blue,    // 34
	2: Green,   // 32
	5: Magenta, // 35
	1: Red,     // 31
}

// Mark strips SGR escapes from s, converting the recognised colour codes
// into spans. Input the parser rejects is returned unmarked.
func Mark(s string) Text {
	if strings.IndexByte(s, '\x1b') == -1 {
		return Text{Plain: s}
	}

	parts, err := ansi.Parse(s)
	if err != nil {
		return Text{Plain: s}
	}

	var (
		b     strings.Builder
		spans []Span
	)
	b.Grow(len(s))
	for _, part := range parts {
		if part == nil || part.Label == "" {
			continue
		}
		start := b.Len()
		b.WriteString(part.Label)
		c, ok := color(part)
		if !ok {
			continue
		}
		if n := len(spans); n != 0 && spans[n-1].End == start && spans[n-1].Color == c {
			spans[n-1].End = b.Len()
			continue
		}
		spans = append(spans, Span{Start: start, End: b.Len(), Color: c})
	}

	return Text{Plain: b.String(), Spans: spans}
}

func color(part *ansi.StyledText) (RGB, bool) {
	if part.FgCol == nil || part.ColourMode != ansi.Default {
		return RGB{}, false
	}
	c, ok := palette[part.FgCol.Id]
	return c, ok
}

// ANSI renders t using 24-bit foreground escapes, for terminals.
func (t Text) ANSI() string {
	if len(t.Spans) == 0 {
		return t.Plain
	}
	var b strings.Builder
	var pos int
	for _, sp := range t.Spans {
		if sp.Start < pos || sp.End > len(t.Plain) || sp.Start > sp.End {
			continue
		}
		b.WriteString(t.Plain[pos:sp.Start])
		b.WriteString("\x1b[38;2;")
		b.WriteString(strconv.Itoa(int(sp.Color.R)))
		b.WriteByte(';')
		b.WriteString(strconv.Itoa(int(sp.Color.G)))
		b.WriteByte(';')
		b.WriteString(strconv.Itoa(int(sp.Color.B)))
		b.WriteByte('m')
		b.WriteString(t.Plain[sp.Start:sp.End])
		b.WriteString("\x1b[0m")
		pos = sp.End
	}
	b.WriteString(t.Plain[pos:])
	return b.String()
}

// String implements fmt.Stringer, returning the plain text.
func (t Text) String() string { return t.Plain }
