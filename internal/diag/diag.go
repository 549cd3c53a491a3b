// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package diag accumulates compile-time diagnostics. It generalizes the
// teacher's single-purpose VerifyError/LinearError types into one record
// shared by the lexer, parser and checker, so that — per spec §7 — "a
// compilation that accumulates any error still completes all passes where
// safe so the user sees the full error set."
package diag

import (
	"fmt"

	"github.com/go-stack/stack"
)

// Kind classifies a diagnostic.
type Kind int

const (
	KindLex Kind = iota
	KindParse
	KindType
	KindEffect
	KindUndefined
	KindInternal // lowering-pass-internal: an AST shape the lowerer doesn't yet handle
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex"
	case KindParse:
		return "parse"
	case KindType:
		return "type"
	case KindEffect:
		return "effect"
	case KindUndefined:
		return "undefined"
	case KindInternal:
		return "internal"
	default:
		return "diag"
	}
}

// Position locates a diagnostic in source text.
type Position struct {
	File   string
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Diagnostic is a single accumulated compiler error.
//
// Required/Allowed are populated only for KindEffect diagnostics, naming
// the effect bits that were required versus permitted at the violating
// construct (spec §4.3, §8 scenario 6).
type Diagnostic struct {
	Kind     Kind
	Pos      Position
	Message  string
	Required uint8
	Allowed  uint8
	Stack    stack.CallStack // nil unless captured (see CaptureStacks)
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Kind, d.Message)
}

// CaptureStacks gates whether new diagnostics record a call stack —
// expensive, so it defaults to off and is switched on by internal/config
// for debug builds.
var CaptureStacks = false

// List is an accumulating, arena-free singly-linked diagnostic list (a
// plain slice suffices in Go; the teacher's arena-allocated linked list
// becomes a slice field on the owning checker/parser context).
type List struct {
	items []Diagnostic
}

// Add appends a diagnostic, capturing a call stack if CaptureStacks is set.
func (l *List) Add(d Diagnostic) {
	if CaptureStacks && d.Stack == nil {
		d.Stack = stack.Trace().TrimRuntime()
	}
	l.items = append(l.items, d)
}

// Errors returns the accumulated diagnostics in order.
func (l *List) Errors() []Diagnostic { return l.items }

// HasErrors reports whether any diagnostic has been recorded.
func (l *List) HasErrors() bool { return len(l.items) > 0 }

// Len reports the number of accumulated diagnostics.
func (l *List) Len() int { return len(l.items) }
