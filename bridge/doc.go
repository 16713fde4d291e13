// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package bridge installs the native callbacks a script bundle expects into
// a [goja.Runtime]: script loading and import, printing, raw stdio, the
// filesystem and stream bridges, network requests, clocks, and timers.
//
// Native names are a fixed contract with the bundle, and are exposed as
// globals. The same functions are also available to CommonJS code, as the
// [ModuleName] module.
//
// All natives run on the goroutine that owns the runtime. None of them
// re-enter the runtime asynchronously: timers are serviced by the [timer]
// package, which re-enters via the owner's command queue, and every other
// native completes synchronously.
package bridge
