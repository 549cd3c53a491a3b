// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package capability implements SERAPH's {base, length, generation,
// permissions} access record and the three-test validity check that gates
// every memory access through it (spec §3).
package capability

import "github.com/seraphlang/seraph/internal/voidval"

// Permission is a single bit in a Capability's permission mask.
type Permission uint32

const (
	Read Permission = 1 << iota
	Write
	Execute
	Derive
)

// Has reports whether mask contains every bit of want.
func (mask Permission) Has(want Permission) bool {
	return mask&want == want
}

// Capability is a 32-byte record gating memory access: {base, length,
// generation, permissions}.
type Capability struct {
	Base        uint64
	Length      uint64
	Generation  uint64
	Permissions Permission
}

// Source abstracts whatever owns the generation counter a Capability was
// carved against — an Arena in the common case, but the interface lets
// internal/strand and internal/atlas supply their own generation sources
// without importing internal/arena directly.
type Source interface {
	Generation() uint64
}

// checkResult is the outcome of the three ordered tests §3 requires:
// generation match, offset within length, permission mask contains the
// required permission.
type checkResult struct {
	ok  bool
	bit voidval.Vbit
}

// check performs the three ordered tests against src's current generation.
// Per spec §3: "Checking a capability always performs three tests in
// order: generation match, offset within length, permission mask contains
// required permission."
func check(c Capability, src Source, offset uint64, want Permission) checkResult {
	if c.Generation != src.Generation() {
		return checkResult{ok: false, bit: voidval.Void}
	}
	if offset >= c.Length {
		return checkResult{ok: false, bit: voidval.Void}
	}
	if !c.Permissions.Has(want) {
		return checkResult{ok: false, bit: voidval.Void}
	}
	return checkResult{ok: true, bit: voidval.True}
}

// CheckLoad validates c for a read of the given permission at offset,
// returning the Vbit the compiler's CIR_CAP_LOAD check would observe.
func CheckLoad(c Capability, src Source, offset uint64, want Permission) voidval.Vbit {
	r := check(c, src, offset, want)
	if !r.ok {
		return voidval.Void
	}
	return voidval.True
}

// Load reads size bytes at offset through capability c, gated by the
// standard three-test check. mem is the full backing region c.Base
// addresses into. On check failure it returns (nil, false); the caller
// (codegen lowering or the IR evaluator) is responsible for substituting
// the type's VOID constant — per spec §3, a failed load yields VOID, never
// a trap.
func Load(c Capability, src Source, mem []byte, offset uint64, size uint64) ([]byte, bool) {
	if !check(c, src, offset, Read).ok {
		return nil, false
	}
	start := c.Base + offset
	end := start + size
	if end > uint64(len(mem)) || offset+size > c.Length {
		return nil, false
	}
	return mem[start:end], true
}

// Store writes data at offset through capability c. Per spec §3, a failed
// check "yields ... a no-op silent drop for stores (the latter is a
// deliberate SERAPH convention so corrupt programs fault via VOID
// downstream, not traps)" — Store therefore never returns an error, only
// whether the write actually happened.
func Store(c Capability, src Source, mem []byte, offset uint64, data []byte) (wrote bool) {
	if !check(c, src, offset, Write).ok {
		return false
	}
	start := c.Base + offset
	end := start + uint64(len(data))
	if end > uint64(len(mem)) || offset+uint64(len(data)) > c.Length {
		return false
	}
	copy(mem[start:end], data)
	return true
}

// Narrow returns a new Capability covering [base+offset, base+offset+length)
// with a permission mask that is a subset of c's. Per spec §3's invariant
// ("A capability's permissions is monotonically narrowing under
// narrow/split; there is no widening operation"), it is the caller's
// responsibility to pass a perms value that is already a subset — Narrow
// additionally masks defensively.
func Narrow(c Capability, offset, length uint64, perms Permission) Capability {
	return Capability{
		Base:        c.Base + offset,
		Length:      length,
		Generation:  c.Generation,
		Permissions: c.Permissions & perms,
	}
}

// SplitResult is the pair of capabilities produced by Split.
type SplitResult struct {
	Left, Right Capability
	// OriginalVoided is always true: per DESIGN.md's resolution of spec
	// §9's open question, the original capability is voided (not retained)
	// once split, mirroring a linear resource being moved into its two
	// derived halves.
	OriginalVoided bool
}

// Split divides c into two adjacent, narrower capabilities at byte offset
// mid. The original is voided (see SplitResult.OriginalVoided) — callers
// must not continue to use c after calling Split.
func Split(c Capability, mid uint64) (SplitResult, bool) {
	if mid == 0 || mid >= c.Length {
		return SplitResult{}, false
	}
	left := Capability{
		Base:        c.Base,
		Length:      mid,
		Generation:  c.Generation,
		Permissions: c.Permissions,
	}
	right := Capability{
		Base:        c.Base + mid,
		Length:      c.Length - mid,
		Generation:  c.Generation,
		Permissions: c.Permissions,
	}
	return SplitResult{Left: left, Right: right, OriginalVoided: true}, true
}

// Valid reports whether c currently validates against src — the generation
// test alone, useful for capability-table bookkeeping that needs a cheap
// liveness probe without performing a full load/store.
func Valid(c Capability, src Source) bool {
	return c.Generation == src.Generation()
}
