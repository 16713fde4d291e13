// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package handle implements a registry of opaque, engine-owned values, keyed
// by [Handle].
//
// A handle pins a value (typically a script function) so that it may be
// referenced from outside the engine, e.g. by a timer worker. Handles are
// allocated from a monotonic counter, and are never reused for the lifetime
// of a [Registry]. Releasing a handle that is not live is reported via
// [ErrUnknownHandle], and is otherwise a no-op.
package handle
