// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package checker

import (
	"testing"

	"github.com/seraphlang/seraph/internal/parser"
)

func checkSource(t *testing.T, src string) []string {
	t.Helper()
	prog, errs := parser.Parse("test.srph", src)
	if len(errs) != 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	c := New()
	diags := c.Check(prog)
	var msgs []string
	for _, d := range diags {
		msgs = append(msgs, d.Message)
	}
	return msgs
}

func TestPureFnWithNoEffectsPasses(t *testing.T) {
	msgs := checkSource(t, `[pure] fn add(a, b) -> i64 { a + b }`)
	if len(msgs) != 0 {
		t.Fatalf("expected no diagnostics, got %v", msgs)
	}
}

func TestPureFnCallingAtlasFails(t *testing.T) {
	msgs := checkSource(t, `[pure] fn bad() -> i64 { atlas_load(1) }`)
	if len(msgs) == 0 {
		t.Fatalf("expected an effect diagnostic")
	}
}

func TestEffectsAnnotationAllowsDeclaredEffect(t *testing.T) {
	msgs := checkSource(t, `effects(PERSIST, VOID) fn store() -> i64 { atlas_load(1) }`)
	if len(msgs) != 0 {
		t.Fatalf("expected no diagnostics, got %v", msgs)
	}
}

func TestDivisionInfersVoid(t *testing.T) {
	msgs := checkSource(t, `[pure] fn div(a, b) -> i64 { a / b }`)
	if len(msgs) == 0 {
		t.Fatalf("expected a VOID effect violation from division under [pure]")
	}
}

func TestVoidPropagateInfersVoid(t *testing.T) {
	msgs := checkSource(t, `[pure] fn f(a) -> i64 { a?? }`)
	if len(msgs) == 0 {
		t.Fatalf("expected a VOID effect violation from ??")
	}
}

func TestUndefinedIdentifierReported(t *testing.T) {
	msgs := checkSource(t, `fn f() -> i64 { y }`)
	found := false
	for _, m := range msgs {
		if m == "undefined identifier y" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected undefined identifier diagnostic, got %v", msgs)
	}
}

func TestUnannotatedFnDefaultsToAll(t *testing.T) {
	msgs := checkSource(t, `fn f() -> i64 { atlas_load(1) }`)
	if len(msgs) != 0 {
		t.Fatalf("expected no diagnostics for unannotated fn, got %v", msgs)
	}
}

func TestSubstrateBlockRaisesPersistEffect(t *testing.T) {
	msgs := checkSource(t, `[pure] fn f() -> i64 { persist { 1 } }`)
	if len(msgs) == 0 {
		t.Fatalf("expected a PERSIST effect violation from persist block under [pure]")
	}
}

func TestRecoverElseTypeMismatchReported(t *testing.T) {
	msgs := checkSource(t, `fn f() -> i64 { persist { 1 } recover { 1 } else { "nope" } }`)
	found := false
	for _, m := range msgs {
		if m != "" && (m == "recover and else branches must agree in type: i64 vs string") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a recover/else type-mismatch diagnostic, got %v", msgs)
	}
}
