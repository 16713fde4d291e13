// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMacroDefinition(t *testing.T) {
	for src, want := range map[string]bool{
		"(defmacro foo [x] x)":  true,
		"\n  (defmacfn bar [])": true,
		"(defn foo [] 1)":       false,
		"defmacro":              false,
		"'(defmacro)":           false,
		"":                      false,
	} {
		assert.Equal(t, want, isMacroDefinition(src), "%q", src)
	}
}
