// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package replete coordinates access to a single embedded script engine,
// hosting a ClojureScript REPL.
//
// A [Coordinator] owns the engine. Commands ([Init], [Eval], [SetWidth],
// [ConsentMacros], and the timer driven [InvokeCallback] and
// [ReleaseHandle]) are submitted from any goroutine, never blocking, and are
// executed strictly in submission order by the goroutine calling
// [Coordinator.Run]. Results reach the UI as [event.Event] values.
//
// Natives bound into the engine are provided by package bridge, and timers
// by package timer.
package replete
