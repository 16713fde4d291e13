// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

// depth returns the nesting depth of unclosed brackets in src, ignoring
// strings, comments and character literals. Negative if over-closed.
func depth(src string) int {
	var (
		n        int
		inString bool
		escaped  bool
		comment  bool
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
			}
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		case c == '\\':
			// character literal, e.g. \( or \"
			i++
		case c == '"':
			inString = true
		case c == ';':
			comment = true
		case c == '(' || c == '[' || c == '{':
			n++
		case c == ')' || c == ']' || c == '}':
			n--
		}
	}
	if inString {
		// an open string always needs more input
		return n + 1
	}
	return n
}
