// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package asmutil provides the Buffer/Label/Fixup machinery shared by both
// native code emitters (spec §4.6), generalizing the forward-reference
// patching implicit in the teacher's codegen.Generator (its patches/labels
// fields) into a reusable component.
package asmutil

import (
	"encoding/binary"
	"fmt"
)

// Label names a not-yet-known code offset, resolved once the emitter
// reaches the point it marks (a block entry, typically).
type Label struct {
	name     string
	resolved bool
	offset   int
}

// NewLabel allocates an unresolved label.
func NewLabel(name string) *Label { return &Label{name: name} }

// fixupKind distinguishes how a pending patch is encoded.
type fixupKind int

const (
	fixupAbs32 fixupKind = iota // little-endian absolute offset, 4 bytes
	fixupRel32                  // little-endian offset relative to end-of-patch-field, 4 bytes
	fixupCustom                 // caller-supplied encoder, given the byte displacement (label.offset - offset)
)

type fixup struct {
	offset  int
	label   *Label
	kind    fixupKind
	encode  func(displacement int32) [4]byte
}

// FixupCustom reserves 4 bytes (typically a whole placeholder instruction
// word, as RISC-V's B-type/J-type branch encodings scatter their immediate
// across non-contiguous bit fields rather than occupying a clean trailing
// byte range) and records a pending patch that calls encode with the byte
// displacement from offset to l's resolved offset once ResolveFixups runs.
func (b *Buffer) FixupCustom(offset int, l *Label, encode func(displacement int32) [4]byte) {
	b.fixups = append(b.fixups, fixup{offset: offset, label: l, kind: fixupCustom, encode: encode})
}

// Buffer accumulates emitted machine code, tracks instruction-boundary
// offsets for Verify, and records forward-reference fixups against Labels.
type Buffer struct {
	code       []byte
	boundaries map[int]bool
	fixups     []fixup
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{boundaries: make(map[int]bool)}
}

// Mark records the current offset as an instruction boundary; emitters call
// this immediately before encoding each Celestial IR instruction's native
// form.
func (b *Buffer) Mark() { b.boundaries[len(b.code)] = true }

// Emit appends raw bytes to the buffer.
func (b *Buffer) Emit(bs ...byte) { b.code = append(b.code, bs...) }

// Len returns the current buffer length.
func (b *Buffer) Len() int { return len(b.code) }

// Bytes returns the accumulated code. Valid only after ResolveFixups.
func (b *Buffer) Bytes() []byte { return b.code }

// BindLabel resolves l to the buffer's current offset, which must itself be
// an instruction boundary.
func (b *Buffer) BindLabel(l *Label) {
	l.offset = len(b.code)
	l.resolved = true
	b.Mark()
}

// FixupAbs32 reserves 4 zero bytes at the current offset and records a
// pending patch that writes l's resolved absolute offset there, little
// endian, once ResolveFixups runs.
func (b *Buffer) FixupAbs32(l *Label) {
	b.fixups = append(b.fixups, fixup{offset: len(b.code), label: l, kind: fixupAbs32})
	b.Emit(0, 0, 0, 0)
}

// FixupRel32 reserves 4 zero bytes and records a pending patch computing
// l's offset relative to the byte immediately following the patch field —
// the x86-64 RIP-relative / RISC-V pc-relative branch-displacement
// convention.
func (b *Buffer) FixupRel32(l *Label) {
	b.fixups = append(b.fixups, fixup{offset: len(b.code), label: l, kind: fixupRel32})
	b.Emit(0, 0, 0, 0)
}

// ResolveFixups patches every pending fixup now that all labels have been
// bound. Returns an error naming the first unresolved label encountered.
func (b *Buffer) ResolveFixups() error {
	for _, f := range b.fixups {
		if !f.label.resolved {
			return fmt.Errorf("asmutil: undefined label %q", f.label.name)
		}
		if f.kind == fixupCustom {
			word := f.encode(int32(f.label.offset - f.offset))
			copy(b.code[f.offset:f.offset+4], word[:])
			continue
		}
		var v uint32
		switch f.kind {
		case fixupAbs32:
			v = uint32(f.label.offset)
		case fixupRel32:
			v = uint32(f.label.offset - (f.offset + 4))
		}
		binary.LittleEndian.PutUint32(b.code[f.offset:f.offset+4], v)
	}
	return nil
}

// FuncSpan names one function's byte range within a fully-assembled Buffer,
// Start inclusive and End exclusive.
type FuncSpan struct {
	Name       string
	Start, End int
}

// VerifyError describes a single post-generation validation failure,
// generalizing the teacher's VerifyError (probe-lang/lang/codegen/verify.go)
// into architecture-agnostic native-code verification.
type VerifyError struct {
	Offset  int
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify error at offset %d: %s", e.Offset, e.Message)
}

// Verify checks, per spec §4.6: every jump target lands on an instruction
// boundary, and every function ends in a terminator (as judged by the
// caller-supplied isTerminator, which knows the target ISA's encoding).
func Verify(b *Buffer, funcs []FuncSpan, isTerminator func(code []byte, lastInstrOffset int) bool) []VerifyError {
	var errs []VerifyError

	for _, f := range b.fixups {
		if !f.label.resolved {
			errs = append(errs, VerifyError{Offset: f.offset, Message: fmt.Sprintf("unresolved label %q", f.label.name)})
			continue
		}
		if !b.boundaries[f.label.offset] {
			errs = append(errs, VerifyError{Offset: f.label.offset, Message: "jump target does not land on an instruction boundary"})
		}
	}

	for _, fn := range funcs {
		last := lastBoundaryBefore(b.boundaries, fn.End)
		if last < fn.Start {
			errs = append(errs, VerifyError{Offset: fn.Start, Message: fmt.Sprintf("function %q has no instructions", fn.Name)})
			continue
		}
		if !isTerminator(b.code, last) {
			errs = append(errs, VerifyError{Offset: last, Message: fmt.Sprintf("function %q does not end with a terminator", fn.Name)})
		}
	}

	return errs
}

func lastBoundaryBefore(boundaries map[int]bool, end int) int {
	best := -1
	for off := range boundaries {
		if off < end && off > best {
			best = off
		}
	}
	return best
}
