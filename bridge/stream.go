// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dop251/goja"
)

// readChunkSize is the maximum number of bytes returned per input stream
// read.
const readChunkSize = 1024

// openFailed is returned by the open natives on failure. Scripts compare
// against it, so it must not change.
const openFailed = "0"

type (
	// streamTable maps logical paths to open streams. Opening a path that is
	// already open replaces the table entry, and the previous stream becomes
	// unreachable from scripts (an orphan). Orphans are closed along with
	// the table.
	streamTable[S io.Closer] struct {
		entries map[string]S
		name    string
		orphans []S
	}

	streamTables struct {
		outputs streamTable[*os.File]
		inputs  streamTable[*os.File]
		writers streamTable[*fileWriter]
		readers streamTable[*fileReader]
	}

	fileWriter struct {
		file *os.File
		*bufio.Writer
	}

	fileReader struct {
		file *os.File
		*bufio.Reader
	}
)

func newStreamTable[S io.Closer](name string) streamTable[S] {
	return streamTable[S]{name: name, entries: make(map[string]S)}
}

func newStreamTables() *streamTables {
	return &streamTables{
		outputs: newStreamTable[*os.File](`output stream`),
		inputs:  newStreamTable[*os.File](`input stream`),
		writers: newStreamTable[*fileWriter](`writer`),
		readers: newStreamTable[*fileReader](`reader`),
	}
}

// put stores s, reporting whether an existing stream was orphaned.
func (x *streamTable[S]) put(path string, s S) bool {
	prev, ok := x.entries[path]
	if ok {
		x.orphans = append(x.orphans, prev)
	}
	x.entries[path] = s
	return ok
}

func (x *streamTable[S]) get(path string) (S, bool) {
	s, ok := x.entries[path]
	return s, ok
}

func (x *streamTable[S]) remove(path string) {
	delete(x.entries, path)
}

func (x *streamTable[S]) closeAll() int {
	n := len(x.entries) + len(x.orphans)
	for _, s := range x.entries {
		_ = s.Close()
	}
	for _, s := range x.orphans {
		_ = s.Close()
	}
	clear(x.entries)
	x.orphans = nil
	return n
}

func (x *streamTables) closeAll() int {
	return x.outputs.closeAll() +
		x.inputs.closeAll() +
		x.writers.closeAll() +
		x.readers.closeAll()
}

func (x *streamTables) len() int {
	return len(x.outputs.entries) +
		len(x.inputs.entries) +
		len(x.writers.entries) +
		len(x.readers.entries)
}

func (x *fileWriter) Close() error {
	return errors.Join(x.Flush(), x.file.Close())
}

func (x *fileReader) Close() error {
	return x.file.Close()
}

// register adds s to table, reporting a replaced stream as misuse.
func register[S io.Closer](x *engine, table *streamTable[S], path string, s S) goja.Value {
	if table.put(path, s) {
		x.registry.misuse.Report(`stream-reopened`).
			Str(`path`, path).
			Str(`table`, table.name).
			Log(`bridge: path reopened, previous stream orphaned`)
	}
	return x.rt.ToValue(path)
}

// lookup finds the stream for path, reporting a miss as misuse.
func lookup[S io.Closer](x *engine, table *streamTable[S], path string) (S, error) {
	s, ok := table.get(path)
	if !ok {
		x.registry.misuse.Report(`stream-not-open`).
			Str(`path`, path).
			Str(`table`, table.name).
			Log(`bridge: no open stream for path`)
		return s, fmt.Errorf("no open %s for %s", table.name, path)
	}
	return s, nil
}

// closeStream closes and removes the stream for path, returning undefined on
// success or an error message.
func closeStream[S io.Closer](x *engine, table *streamTable[S], call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return x.rt.ToValue(`expected 1 argument`)
	}
	path, _ := stringArg(call, 0)
	s, err := lookup(x, table, path)
	if err != nil {
		return x.rt.ToValue(err.Error())
	}
	table.remove(path)
	if err := s.Close(); err != nil {
		return x.rt.ToValue(err.Error())
	}
	return goja.Undefined()
}

func (x *engine) openFile(path string, flag int) (*os.File, bool) {
	abs, ok := x.resolve(path)
	if !ok {
		return nil, false
	}
	f, err := os.OpenFile(abs, flag, 0o644)
	if err != nil {
		x.registry.logger.Debug().
			Str(`path`, path).
			Err(err).
			Log(`bridge: open failed`)
		return nil, false
	}
	return f, true
}

func writeFlags(appendMode bool) int {
	if appendMode {
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
}

// bytesArg converts an array of numbers, an ArrayBuffer, or a typed array,
// into bytes. Numbers are truncated to their low 8 bits.
func (x *engine) bytesArg(v goja.Value) ([]byte, error) {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, errors.New("expected an array of bytes, got null/undefined")
	}
	switch b := v.Export().(type) {
	case goja.ArrayBuffer:
		return b.Bytes(), nil
	case []byte:
		return b, nil
	}
	obj := v.ToObject(x.rt)
	length := obj.Get(`length`)
	if length == nil {
		return nil, errors.New("expected an array of bytes")
	}
	n := length.ToInteger()
	if n < 0 {
		n = 0
	}
	b := make([]byte, n)
	for i := range b {
		if elem := obj.Get(strconv.Itoa(i)); elem != nil {
			b[i] = byte(elem.ToInteger())
		}
	}
	return b, nil
}

// REPLETE_FILE_OUTPUT_STREAM_OPEN(path, append) -> path | "0"
func (x *engine) outputStreamOpen(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 2 {
		return x.rt.ToValue(openFailed)
	}
	path, _ := stringArg(call, 0)
	f, ok := x.openFile(path, writeFlags(call.Argument(1).ToBoolean()))
	if !ok {
		return x.rt.ToValue(openFailed)
	}
	return register(x, &x.streams.outputs, path, f)
}

// REPLETE_FILE_OUTPUT_STREAM_WRITE(path, bytes) -> undefined | message
func (x *engine) outputStreamWrite(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 2 {
		return x.rt.ToValue(`expected 2 arguments`)
	}
	path, _ := stringArg(call, 0)
	f, err := lookup(x, &x.streams.outputs, path)
	if err != nil {
		return x.rt.ToValue(err.Error())
	}
	b, err := x.bytesArg(call.Argument(1))
	if err != nil {
		return x.rt.ToValue(err.Error())
	}
	if _, err := f.Write(b); err != nil {
		return x.rt.ToValue(err.Error())
	}
	return goja.Undefined()
}

// REPLETE_FILE_OUTPUT_STREAM_FLUSH(path) -> undefined | message
func (x *engine) outputStreamFlush(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return x.rt.ToValue(`expected 1 argument`)
	}
	path, _ := stringArg(call, 0)
	// writes are unbuffered
	if _, err := lookup(x, &x.streams.outputs, path); err != nil {
		return x.rt.ToValue(err.Error())
	}
	return goja.Undefined()
}

// REPLETE_FILE_OUTPUT_STREAM_CLOSE(path) -> undefined | message
func (x *engine) outputStreamClose(call goja.FunctionCall) goja.Value {
	return closeStream(x, &x.streams.outputs, call)
}

// REPLETE_FILE_INPUT_STREAM_OPEN(path) -> path | "0"
func (x *engine) inputStreamOpen(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return x.rt.ToValue(openFailed)
	}
	path, _ := stringArg(call, 0)
	f, ok := x.openFile(path, os.O_RDONLY)
	if !ok {
		return x.rt.ToValue(openFailed)
	}
	return register(x, &x.streams.inputs, path, f)
}

// REPLETE_FILE_INPUT_STREAM_READ(path) -> number[] | undefined
//
// Values are signed bytes, in the range [-128, 127]. Undefined marks the end
// of the stream.
func (x *engine) inputStreamRead(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return goja.Undefined()
	}
	path, _ := stringArg(call, 0)
	f, err := lookup(x, &x.streams.inputs, path)
	if err != nil {
		return goja.Undefined()
	}
	buf := make([]byte, readChunkSize)
	n, err := f.Read(buf)
	if n == 0 {
		if err != nil && err != io.EOF {
			x.registry.logger.Debug().
				Str(`path`, path).
				Err(err).
				Log(`bridge: input stream read failed`)
		}
		return goja.Undefined()
	}
	items := make([]any, n)
	for i, b := range buf[:n] {
		items[i] = int64(int8(b))
	}
	return x.rt.NewArray(items...)
}

// REPLETE_FILE_INPUT_STREAM_CLOSE(path)
func (x *engine) inputStreamClose(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return goja.Undefined()
	}
	closeStream(x, &x.streams.inputs, call)
	return goja.Undefined()
}

// REPLETE_FILE_READER_OPEN(path, encoding) -> path | "0"
//
// Only UTF-8 is supported, the encoding is ignored.
func (x *engine) fileReaderOpen(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 2 {
		return x.rt.ToValue(openFailed)
	}
	path, _ := stringArg(call, 0)
	f, ok := x.openFile(path, os.O_RDONLY)
	if !ok {
		return x.rt.ToValue(openFailed)
	}
	return register(x, &x.streams.readers, path, &fileReader{file: f, Reader: bufio.NewReader(f)})
}

// REPLETE_FILE_READER_READ(path) -> [char, undefined] | [undefined, undefined] | [undefined, message]
func (x *engine) fileReaderRead(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return goja.Undefined()
	}
	path, _ := stringArg(call, 0)
	r, err := lookup(x, &x.streams.readers, path)
	if err != nil {
		return x.rt.NewArray(goja.Undefined(), err.Error())
	}
	c, _, err := r.ReadRune()
	switch {
	case err == io.EOF:
		return x.rt.NewArray(goja.Undefined(), goja.Undefined())
	case err != nil:
		return x.rt.NewArray(goja.Undefined(), err.Error())
	default:
		return x.rt.NewArray(string(c), goja.Undefined())
	}
}

// REPLETE_FILE_READER_CLOSE(path)
func (x *engine) fileReaderClose(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return goja.Undefined()
	}
	closeStream(x, &x.streams.readers, call)
	return goja.Undefined()
}

// REPLETE_FILE_WRITER_OPEN(path, append, encoding) -> path | "0"
//
// Only UTF-8 is supported, the encoding is ignored.
func (x *engine) fileWriterOpen(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 3 {
		return x.rt.ToValue(openFailed)
	}
	path, _ := stringArg(call, 0)
	f, ok := x.openFile(path, writeFlags(call.Argument(1).ToBoolean()))
	if !ok {
		return x.rt.ToValue(openFailed)
	}
	return register(x, &x.streams.writers, path, &fileWriter{file: f, Writer: bufio.NewWriter(f)})
}

// REPLETE_FILE_WRITER_WRITE(path, content) -> undefined | message
func (x *engine) fileWriterWrite(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 2 {
		return x.rt.ToValue(`expected 2 arguments`)
	}
	path, _ := stringArg(call, 0)
	w, err := lookup(x, &x.streams.writers, path)
	if err != nil {
		return x.rt.ToValue(err.Error())
	}
	content, _ := stringArg(call, 1)
	if _, err := w.WriteString(content); err != nil {
		return x.rt.ToValue(err.Error())
	}
	return goja.Undefined()
}

// REPLETE_FILE_WRITER_FLUSH(path) -> undefined | message
func (x *engine) fileWriterFlush(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return x.rt.ToValue(`expected 1 argument`)
	}
	path, _ := stringArg(call, 0)
	w, err := lookup(x, &x.streams.writers, path)
	if err != nil {
		return x.rt.ToValue(err.Error())
	}
	if err := w.Flush(); err != nil {
		return x.rt.ToValue(err.Error())
	}
	return goja.Undefined()
}

// REPLETE_FILE_WRITER_CLOSE(path) -> undefined | message
func (x *engine) fileWriterClose(call goja.FunctionCall) goja.Value {
	return closeStream(x, &x.streams.writers, call)
}
