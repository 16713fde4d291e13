// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package timer implements script timers (setTimeout and setInterval) as
// dedicated worker goroutines, which never touch the engine directly.
//
// Each worker sleeps until its deadline, or until it is woken by
// cancellation, and then re-enters the engine by way of a [Dispatcher],
// which is expected to enqueue commands onto the engine's single consumer.
// A one-shot timer dispatches Invoke followed by Release. A repeating timer
// dispatches Invoke each period, and Release once it observes cancellation.
//
// Timeout and interval ids are allocated independently, from counters that
// start at 1, and wrap to 0 after [MaxID].
package timer
