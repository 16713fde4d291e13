// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// ErrNotInBundle is returned when a script is missing from the bundle.
var ErrNotInBundle = errors.New("bridge: not in bundle")

// ErrNotInstalled is returned by operations that require an installed
// engine.
var ErrNotInstalled = errors.New("bridge: no engine installed")

// importPrefix is stripped from import paths, Closure resolves dependency
// paths relative to goog/.
const importPrefix = "goog/../"

// Import executes the bundle script at path in the current engine, unless it
// has already been imported by that engine. It reports whether the script
// was executed. A script that throws is still considered imported.
func (x *Registry) Import(path string) (bool, error) {
	if x.current == nil {
		return false, ErrNotInstalled
	}
	return x.current.importPath(path)
}

// Loaded reports whether path has been imported by the current engine.
func (x *Registry) Loaded(path string) bool {
	if x.current == nil {
		return false
	}
	_, ok := x.current.loaded[normalizeImportPath(path)]
	return ok
}

func normalizeImportPath(path string) string {
	return strings.TrimPrefix(path, importPrefix)
}

func (x *engine) importPath(path string) (bool, error) {
	path = normalizeImportPath(path)
	if _, ok := x.loaded[path]; ok {
		return false, nil
	}
	if x.registry.bundle == nil {
		return false, fmt.Errorf("%w: %s", ErrNotInBundle, path)
	}
	src, ok := x.registry.bundle.Contents(path)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotInBundle, path)
	}
	// marked before running, so that cyclic imports terminate
	x.loaded[path] = struct{}{}
	x.registry.logger.Trace().
		Str(`path`, path).
		Log(`bridge: importing script`)
	if _, err := x.rt.RunScript(path, src); err != nil {
		return true, err
	}
	return true, nil
}

// throw rethrows err (from running script) into the calling script.
func (x *engine) throw(err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex)
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		panic(interrupted)
	}
	panic(x.rt.NewGoError(err))
}

// REPLETE_LOAD(path) -> string | null
func (x *engine) load(call goja.FunctionCall) goja.Value {
	path, ok := stringArg(call, 0)
	if !ok {
		return goja.Undefined()
	}
	if x.registry.bundle != nil {
		if s, ok := x.registry.bundle.Contents(path); ok {
			return x.rt.ToValue(s)
		}
	}
	return goja.Null()
}

// AMBLY_IMPORT_SCRIPT(path)
func (x *engine) importScript(call goja.FunctionCall) goja.Value {
	path, ok := stringArg(call, 0)
	if !ok {
		return goja.Undefined()
	}
	if _, err := x.importPath(path); err != nil {
		if errors.Is(err, ErrNotInBundle) {
			x.registry.misuse.Report(`import-missing`).
				Str(`path`, path).
				Log(`bridge: imported script not found`)
			return goja.Undefined()
		}
		x.throw(err)
	}
	return goja.Undefined()
}
