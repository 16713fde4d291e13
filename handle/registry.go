// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package handle

import (
	"errors"
	"strconv"
	"sync"
)

// ErrUnknownHandle is returned when a handle is not live, which includes
// handles that have already been released.
var ErrUnknownHandle = errors.New("handle: unknown or released handle")

// Handle identifies a tracked value. The zero value is never allocated.
type Handle uint64

// String implements fmt.Stringer.
func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// Registry tracks live values of type V. It is safe for concurrent use.
type Registry[V any] struct {
	data map[Handle]V

	// nextID is the counter for generating unique handles.
	nextID Handle
	mu     sync.RWMutex
}

// NewRegistry creates a new, empty registry.
func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{
		data:   make(map[Handle]V),
		nextID: 1, // Start at 1 so 0 is null marker
	}
}

// Track pins value, returning a new handle for it.
func (r *Registry[V]) Track(value V) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.nextID
	r.nextID++

	r.data[h] = value

	return h
}

// Get returns the value for a live handle.
func (r *Registry[V]) Get(h Handle) (value V, ok bool) {
	r.mu.RLock()
	value, ok = r.data[h]
	r.mu.RUnlock()
	return
}

// Release unpins the value for h. Releasing a handle more than once returns
// [ErrUnknownHandle] and has no other effect.
func (r *Registry[V]) Release(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[h]; !ok {
		return ErrUnknownHandle
	}
	delete(r.data, h)
	return nil
}

// Len returns the number of live handles.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Clear releases every live handle, returning how many were released. The
// counter is not reset.
func (r *Registry[V]) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.data)
	clear(r.data)
	return n
}
