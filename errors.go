// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrTerminated is returned when submitting to, or running, a
	// coordinator that has been shut down.
	ErrTerminated = errors.New("replete: coordinator terminated")

	// ErrAlreadyRunning is returned by Run if the coordinator is running.
	ErrAlreadyRunning = errors.New("replete: coordinator already running")

	// ErrReentrantRun is returned when Run is called from the coordinator's
	// own goroutine.
	ErrReentrantRun = errors.New("replete: cannot call Run from within the coordinator")

	// ErrEngineNotReady indicates a command that needs an engine arrived
	// before a successful Init.
	ErrEngineNotReady = errors.New("replete: engine not initialized")
)

// BootstrapError reports the failure of one step of engine initialization.
type BootstrapError struct {
	Err  error
	Name string
	Step int
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap step %d (%s): %s", e.Step, e.Name, trace(e.Err))
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// trace renders err for display, including the script stack when err was
// thrown by script.
func trace(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.String()
	}
	return err.Error()
}
