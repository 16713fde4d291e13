// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

// MaxID is the largest id handed out before the counter wraps, and is the
// largest integer exactly representable by a script number (2^53-1).
const MaxID ID = 9007199254740991

// ID identifies a live timer, within its [Kind].
type ID uint64

// idAllocator hands out ids. Not safe for concurrent use, callers hold the
// owning table's lock.
type idAllocator struct {
	last ID
}

// next returns the id after the last one, wrapping from MaxID to 0.
func (x *idAllocator) next() ID {
	if x.last >= MaxID {
		x.last = 0
	} else {
		x.last++
	}
	return x.last
}
