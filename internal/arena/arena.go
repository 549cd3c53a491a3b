// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package arena implements the bump allocator with a generation counter that
// underlies every other SERAPH component: AST/IR nodes, capabilities, and
// (file-backed) the Atlas store.
//
// A Ref names a byte range inside an Arena together with the generation the
// arena was at when the range was carved. Resetting the arena advances the
// generation monotonically, which retroactively invalidates every Ref handed
// out before the reset — callers must re-check Ref.Generation against
// Arena.Generation() before trusting a Ref.
package arena

import (
	"errors"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// ErrOutOfMemory is returned when an allocation would exceed the arena's
// capacity.
var ErrOutOfMemory = errors.New("arena: out of memory")

// ErrZeroSize is returned when Alloc is called with a zero size.
var ErrZeroSize = errors.New("arena: zero-size allocation")

// Flags describe arena-wide behavior bits.
type Flags uint32

const (
	// FlagFileBacked marks an arena whose memory is a file-backed mmap
	// region rather than an anonymous Go byte slice (the Atlas case).
	FlagFileBacked Flags = 1 << iota
	// FlagZeroOnReset zeroes the used region on Reset instead of merely
	// rewinding the bump pointer. Off by default: SERAPH relies on the
	// generation counter, not zeroing, to invalidate stale references.
	FlagZeroOnReset
)

// Ref names a byte range inside an Arena, paired with the generation the
// arena held when the range was allocated.
type Ref struct {
	Offset     uint64
	Length     uint64
	Generation uint64
}

// Arena is a bump allocator carrying a generation counter.
//
// The zero value is not usable; construct with New or NewFileBacked.
type Arena struct {
	memory     []byte
	mmapRegion mmap.MMap // non-nil iff file-backed
	file       *os.File  // non-nil iff file-backed

	capacity   uint64
	used       uint64
	alignment  uint64
	generation uint64
	flags      Flags
}

// New creates an anonymous-memory arena of the given capacity. alignment
// must be a power of two; 0 defaults to 8.
func New(capacity uint64, alignment uint64) *Arena {
	if alignment == 0 {
		alignment = 8
	}
	return &Arena{
		memory:    make([]byte, capacity),
		capacity:  capacity,
		alignment: alignment,
	}
}

// NewFileBacked maps f into memory and returns an arena whose backing store
// is the mapped region. The file must already be sized to capacity bytes
// (the caller — typically internal/atlas — is responsible for truncating
// it first). This is the Atlas case described in spec §3 ("Arenas may be
// anonymous memory or a file-backed mapping").
func NewFileBacked(f *os.File, capacity uint64) (*Arena, error) {
	region, err := mmap.MapRegion(f, int(capacity), mmap.RDWR, 0, 0)
	if err != nil {
		return nil, err
	}
	return &Arena{
		memory:     region,
		mmapRegion: region,
		file:       f,
		capacity:   capacity,
		alignment:  8,
		flags:      FlagFileBacked,
	}, nil
}

// Close unmaps a file-backed arena. It is a no-op for anonymous arenas.
func (a *Arena) Close() error {
	if a.mmapRegion != nil {
		return a.mmapRegion.Unmap()
	}
	return nil
}

// Sync flushes a file-backed arena's dirty pages to disk. It is a no-op for
// anonymous arenas.
func (a *Arena) Sync() error {
	if a.mmapRegion != nil {
		return a.mmapRegion.Flush()
	}
	return nil
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// Alloc bumps the allocator by size bytes (rounded up to the arena's
// alignment) and returns a Ref naming the new region.
func (a *Arena) Alloc(size uint64) (Ref, error) {
	if size == 0 {
		return Ref{}, ErrZeroSize
	}
	aligned := roundUp(size, a.alignment)
	if a.used+aligned > a.capacity {
		return Ref{}, ErrOutOfMemory
	}
	off := a.used
	a.used += aligned
	return Ref{Offset: off, Length: size, Generation: a.generation}, nil
}

// Reserve advances the bump pointer to offset off without handing back a
// Ref, used by internal/atlas to pre-consume the genesis-header and
// generation-table region a file-backed arena's first real allocation must
// land after.
func (a *Arena) Reserve(off uint64) error {
	if off > a.capacity {
		return ErrOutOfMemory
	}
	if off > a.used {
		a.used = off
	}
	return nil
}

// RollbackTo forcibly resets the bump pointer to off, discarding any
// allocations made since — used by internal/atlas to implement transaction
// Abort by restoring the first_free_offset snapshot taken at Begin.
func (a *Arena) RollbackTo(off uint64) error {
	if off > a.capacity {
		return ErrOutOfMemory
	}
	a.used = off
	return nil
}

// AllocPages rounds size up to pageSize before bumping — used by Atlas's
// alloc_pages operation (spec §4.8).
func (a *Arena) AllocPages(size, pageSize uint64) (Ref, error) {
	if pageSize == 0 {
		pageSize = 4096
	}
	saved := a.alignment
	a.alignment = pageSize
	defer func() { a.alignment = saved }()
	return a.Alloc(size)
}

// Bytes returns the live (sub-slice of [0,used)) bytes backing a Ref, or nil
// if the Ref's generation no longer matches the arena's current generation.
func (a *Arena) Bytes(r Ref) []byte {
	if r.Generation != a.generation {
		return nil
	}
	if r.Offset+r.Length > uint64(len(a.memory)) {
		return nil
	}
	return a.memory[r.Offset : r.Offset+r.Length]
}

// Valid reports whether r's generation matches the arena's current
// generation — the single test every capability check and every AST/IR
// pointer dereference must perform before trusting a Ref (spec §3
// Invariants).
func (a *Arena) Valid(r Ref) bool {
	return r.Generation == a.generation
}

// Reset increments the generation counter and rewinds the bump pointer,
// invalidating every Ref carved before the call. Generation values never
// repeat within a process lifetime.
func (a *Arena) Reset() {
	a.generation++
	if a.flags&FlagZeroOnReset != 0 {
		for i := range a.memory[:a.used] {
			a.memory[i] = 0
		}
	}
	a.used = 0
}

// Generation returns the arena's current generation.
func (a *Arena) Generation() uint64 { return a.generation }

// Used returns the number of bytes bumped past since the last Reset.
func (a *Arena) Used() uint64 { return a.used }

// Capacity returns the arena's total byte capacity.
func (a *Arena) Capacity() uint64 { return a.capacity }

// Raw exposes the full backing slice for low-level callers (Atlas's genesis
// header access). Callers must bounds-check themselves.
func (a *Arena) Raw() []byte { return a.memory }
