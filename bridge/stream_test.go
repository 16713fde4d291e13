// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteStream_roundTrip(t *testing.T) {
	x := newTestEngine(t)

	assert.Equal(t, `data.bin`, x.run(t, `REPLETE_FILE_OUTPUT_STREAM_OPEN('data.bin', false)`).String())
	assert.Equal(t, 1, x.registry.OpenStreams())
	assert.True(t, goja.IsUndefined(x.run(t, `REPLETE_FILE_OUTPUT_STREAM_WRITE('data.bin', [104, 105, -1, 255, 0])`)))
	assert.True(t, goja.IsUndefined(x.run(t, `REPLETE_FILE_OUTPUT_STREAM_WRITE('data.bin', new Uint8Array([7]))`)))
	assert.True(t, goja.IsUndefined(x.run(t, `REPLETE_FILE_OUTPUT_STREAM_FLUSH('data.bin')`)))
	assert.True(t, goja.IsUndefined(x.run(t, `REPLETE_FILE_OUTPUT_STREAM_CLOSE('data.bin')`)))
	assert.Equal(t, 0, x.registry.OpenStreams())

	b, err := os.ReadFile(filepath.Join(x.root, `data.bin`))
	require.NoError(t, err)
	assert.Equal(t, []byte{104, 105, 255, 255, 0, 7}, b)

	assert.Equal(t, `data.bin`, x.run(t, `REPLETE_FILE_INPUT_STREAM_OPEN('data.bin')`).String())
	assert.Equal(t, `104,105,-1,-1,0,7`, x.run(t, `REPLETE_FILE_INPUT_STREAM_READ('data.bin').join(',')`).String())
	assert.True(t, goja.IsUndefined(x.run(t, `REPLETE_FILE_INPUT_STREAM_READ('data.bin')`)))
	x.run(t, `REPLETE_FILE_INPUT_STREAM_CLOSE('data.bin')`)
	assert.Equal(t, 0, x.registry.OpenStreams())

	// table entry is gone, so further operations report misuse
	assert.True(t, goja.IsUndefined(x.run(t, `REPLETE_FILE_INPUT_STREAM_READ('data.bin')`)))
}

func TestByteStream_append(t *testing.T) {
	x := newTestEngine(t)
	x.run(t, `REPLETE_FILE_OUTPUT_STREAM_OPEN('a.bin', false); REPLETE_FILE_OUTPUT_STREAM_WRITE('a.bin', [1]); REPLETE_FILE_OUTPUT_STREAM_CLOSE('a.bin');`)
	x.run(t, `REPLETE_FILE_OUTPUT_STREAM_OPEN('a.bin', true); REPLETE_FILE_OUTPUT_STREAM_WRITE('a.bin', [2]); REPLETE_FILE_OUTPUT_STREAM_CLOSE('a.bin');`)
	b, err := os.ReadFile(filepath.Join(x.root, `a.bin`))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
}

func TestByteStream_chunked(t *testing.T) {
	x := newTestEngine(t)
	data := make([]byte, readChunkSize+10)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(x.root, `big.bin`), data, 0o644))

	x.run(t, `REPLETE_FILE_INPUT_STREAM_OPEN('big.bin')`)
	assert.Equal(t, int64(readChunkSize), x.run(t, `REPLETE_FILE_INPUT_STREAM_READ('big.bin').length`).ToInteger())
	assert.Equal(t, int64(10), x.run(t, `REPLETE_FILE_INPUT_STREAM_READ('big.bin').length`).ToInteger())
	assert.True(t, goja.IsUndefined(x.run(t, `REPLETE_FILE_INPUT_STREAM_READ('big.bin')`)))
}

func TestCharacterStream_roundTrip(t *testing.T) {
	x := newTestEngine(t)

	assert.Equal(t, `notes.txt`, x.run(t, `REPLETE_FILE_WRITER_OPEN('notes.txt', false, 'UTF-8')`).String())
	x.run(t, `REPLETE_FILE_WRITER_WRITE('notes.txt', 'hé'); REPLETE_FILE_WRITER_FLUSH('notes.txt'); REPLETE_FILE_WRITER_WRITE('notes.txt', '!');`)
	assert.True(t, goja.IsUndefined(x.run(t, `REPLETE_FILE_WRITER_CLOSE('notes.txt')`)))

	b, err := os.ReadFile(filepath.Join(x.root, `notes.txt`))
	require.NoError(t, err)
	assert.Equal(t, `hé!`, string(b))

	assert.Equal(t, `notes.txt`, x.run(t, `REPLETE_FILE_READER_OPEN('notes.txt', 'UTF-8')`).String())
	v := x.run(t, `
var out = [];
for (;;) {
  var r = REPLETE_FILE_READER_READ('notes.txt');
  if (r[0] === undefined) {
    out.push(String(r[1]));
    break;
  }
  out.push(r[0]);
}
out.join('|')
`)
	assert.Equal(t, `h|é|!|undefined`, v.String())
	x.run(t, `REPLETE_FILE_READER_CLOSE('notes.txt')`)
	assert.Equal(t, 0, x.registry.OpenStreams())
}

func TestStream_notOpen(t *testing.T) {
	x := newTestEngine(t)
	assert.Contains(t, x.run(t, `REPLETE_FILE_OUTPUT_STREAM_WRITE('nope', [1])`).String(), `nope`)
	assert.Contains(t, x.run(t, `REPLETE_FILE_WRITER_WRITE('nope', 'x')`).String(), `nope`)
	assert.Contains(t, x.run(t, `REPLETE_FILE_WRITER_CLOSE('nope')`).String(), `nope`)
	assert.Equal(t, `undefined`, x.run(t, `String(REPLETE_FILE_READER_READ('nope')[0])`).String())
	assert.Contains(t, x.run(t, `REPLETE_FILE_READER_READ('nope')[1]`).String(), `nope`)
	assert.Equal(t, `expected 2 arguments`, x.run(t, `REPLETE_FILE_OUTPUT_STREAM_WRITE('nope')`).String())
}

func TestStream_openFailure(t *testing.T) {
	x := newTestEngine(t)
	assert.Equal(t, `0`, x.run(t, `REPLETE_FILE_INPUT_STREAM_OPEN('missing.bin')`).String())
	assert.Equal(t, `0`, x.run(t, `REPLETE_FILE_READER_OPEN('../escape', 'UTF-8')`).String())
	assert.Equal(t, `0`, x.run(t, `REPLETE_FILE_WRITER_OPEN('x.txt', false)`).String())
	assert.Equal(t, `0`, x.run(t, `REPLETE_FILE_OUTPUT_STREAM_OPEN('no/such/dir/x.bin', false)`).String())
	assert.Equal(t, 0, x.registry.OpenStreams())
}

func TestStream_reopenOrphansPrevious(t *testing.T) {
	x := newTestEngine(t)
	x.run(t, `REPLETE_FILE_WRITER_OPEN('same.txt', false, 'UTF-8'); REPLETE_FILE_WRITER_WRITE('same.txt', 'first');`)
	x.run(t, `REPLETE_FILE_WRITER_OPEN('same.txt', true, 'UTF-8'); REPLETE_FILE_WRITER_WRITE('same.txt', 'second');`)
	assert.Equal(t, 1, x.registry.OpenStreams())

	x.run(t, `REPLETE_FILE_WRITER_CLOSE('same.txt')`)
	assert.Equal(t, 0, x.registry.OpenStreams())

	// the orphan is still open, with its buffered write
	b, err := os.ReadFile(filepath.Join(x.root, `same.txt`))
	require.NoError(t, err)
	assert.Equal(t, `second`, string(b))

	// until the engine's streams are released
	x.registry.Close()
	b, err = os.ReadFile(filepath.Join(x.root, `same.txt`))
	require.NoError(t, err)
	assert.Equal(t, `first`, string(b)[:5])
}
