// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dop251/goja"
)

// errUnresolved is reported for logical paths the resolver rejects.
var errUnresolved = errors.New("bridge: path could not be resolved")

func (x *engine) resolve(path string) (string, bool) {
	if x.registry.paths == nil {
		return ``, false
	}
	return x.registry.paths.Resolve(path)
}

// reportIOError turns an I/O failure into an Error event.
func (x *engine) reportIOError(op string, err error) {
	x.registry.logger.Debug().
		Str(`op`, op).
		Err(err).
		Log(`bridge: filesystem operation failed`)
	x.registry.emitError(err.Error())
}

// REPLETE_IS_DIRECTORY(path) -> boolean | undefined
func (x *engine) isDirectory(call goja.FunctionCall) goja.Value {
	path, ok := stringArg(call, 0)
	if !ok {
		return goja.Undefined()
	}
	abs, ok := x.resolve(path)
	if !ok {
		return goja.Undefined()
	}
	info, err := os.Stat(abs)
	return x.rt.ToValue(err == nil && info.IsDir())
}

// REPLETE_LIST_FILES(path) -> string[], the logical paths of each child
func (x *engine) listFiles(call goja.FunctionCall) goja.Value {
	path, ok := stringArg(call, 0)
	if !ok {
		return goja.Undefined()
	}
	items := make([]any, 0)
	if abs, ok := x.resolve(path); ok {
		if entries, err := os.ReadDir(abs); err == nil {
			prefix := strings.TrimSuffix(path, `/`) + `/`
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				names = append(names, entry.Name())
			}
			sort.Strings(names)
			for _, name := range names {
				items = append(items, prefix+name)
			}
		}
	}
	return x.rt.NewArray(items...)
}

// REPLETE_DELETE(path)
func (x *engine) deleteFile(call goja.FunctionCall) goja.Value {
	path, ok := stringArg(call, 0)
	if !ok {
		return goja.Undefined()
	}
	abs, ok := x.resolve(path)
	if !ok {
		x.reportIOError(`delete`, fmt.Errorf("%w: %s", errUnresolved, path))
		return goja.Undefined()
	}
	if err := os.Remove(abs); err != nil {
		x.reportIOError(`delete`, err)
	}
	return goja.Undefined()
}

// REPLETE_COPY(from, to)
func (x *engine) copyFile(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 2 {
		return goja.Undefined()
	}
	from, _ := stringArg(call, 0)
	to, _ := stringArg(call, 1)
	fromAbs, ok := x.resolve(from)
	if !ok {
		x.reportIOError(`copy`, fmt.Errorf("%w: %s", errUnresolved, from))
		return goja.Undefined()
	}
	toAbs, ok := x.resolve(to)
	if !ok {
		x.reportIOError(`copy`, fmt.Errorf("%w: %s", errUnresolved, to))
		return goja.Undefined()
	}
	if err := copyPath(fromAbs, toAbs); err != nil {
		x.reportIOError(`copy`, err)
	}
	return goja.Undefined()
}

func copyPath(from, to string) (err error) {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(to)
	if err != nil {
		return err
	}
	defer func() {
		if e := dst.Close(); err == nil {
			err = e
		}
	}()
	_, err = io.Copy(dst, src)
	return err
}

// REPLETE_MKDIRS(path), creating path and any missing parents
func (x *engine) makeParentDirectories(call goja.FunctionCall) goja.Value {
	path, ok := stringArg(call, 0)
	if !ok {
		return goja.Undefined()
	}
	abs, ok := x.resolve(path)
	if !ok {
		return goja.Undefined()
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		x.reportIOError(`mkdirs`, err)
	}
	return goja.Undefined()
}

// REPLETE_FSTAT(path) -> {type, modified} | {}
func (x *engine) fstat(call goja.FunctionCall) goja.Value {
	path, ok := stringArg(call, 0)
	if !ok {
		return goja.Undefined()
	}
	ret := x.rt.NewObject()
	abs, ok := x.resolve(path)
	if !ok {
		return ret
	}
	kind, modified := `unknown`, float64(0)
	if info, err := os.Stat(abs); err == nil {
		switch {
		case info.Mode().IsRegular():
			kind = `file`
		case info.IsDir():
			kind = `directory`
		}
		modified = float64(info.ModTime().UnixMilli())
	}
	_ = ret.Set(`type`, kind)
	_ = ret.Set(`modified`, modified)
	return ret
}
