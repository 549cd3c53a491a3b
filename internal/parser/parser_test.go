// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package parser

import (
	"testing"

	"github.com/seraphlang/seraph/internal/ast"
)

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, errs := Parse("test.srp", src)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors for %q: %v", src, errs)
	}
	return prog
}

func TestParseSimpleFn(t *testing.T) {
	prog := parseOK(t, `fn add(a: i64, b: i64) -> i64 { a + b }`)
	if len(prog.Declarations) != 1 {
		t.Fatalf("want 1 declaration, got %d", len(prog.Declarations))
	}
	fn, ok := prog.Declarations[0].(*ast.FnDecl)
	if !ok {
		t.Fatalf("want *ast.FnDecl, got %T", prog.Declarations[0])
	}
	if fn.Name != "add" || len(fn.Params) != 2 {
		t.Fatalf("got %+v", fn)
	}
	if fn.Body.Trailing == nil {
		t.Fatalf("expected trailing expression in block")
	}
}

func TestParsePureAnnotation(t *testing.T) {
	prog := parseOK(t, `[pure] fn square(x: i64) -> i64 { x * x }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	if fn.Annotation == nil || !fn.Annotation.Pure {
		t.Fatalf("expected pure annotation, got %+v", fn.Annotation)
	}
}

func TestParseEffectsAnnotation(t *testing.T) {
	prog := parseOK(t, `effects(NETWORK, TIMER) fn fetch() { }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	if fn.Annotation == nil || fn.Annotation.Pure {
		t.Fatalf("expected non-pure annotation")
	}
	if len(fn.Annotation.Effect) != 2 {
		t.Fatalf("got effects %v", fn.Annotation.Effect)
	}
}

func TestParseVoidPropagateIsPostfix(t *testing.T) {
	prog := parseOK(t, `fn f() { a?? }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	if _, ok := fn.Body.Trailing.(*ast.VoidPropagateExpr); !ok {
		t.Fatalf("want VoidPropagateExpr, got %T", fn.Body.Trailing)
	}
}

func TestParseVoidCoalesceIsInfix(t *testing.T) {
	prog := parseOK(t, `fn f() { a ?? b }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	infix, ok := fn.Body.Trailing.(*ast.InfixExpr)
	if !ok || infix.Operator != "??" {
		t.Fatalf("want infix ??, got %T", fn.Body.Trailing)
	}
}

func TestParseVoidAssert(t *testing.T) {
	prog := parseOK(t, `fn f() { a!! }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	if _, ok := fn.Body.Trailing.(*ast.VoidAssertExpr); !ok {
		t.Fatalf("want VoidAssertExpr, got %T", fn.Body.Trailing)
	}
}

func TestParseIfExpr(t *testing.T) {
	prog := parseOK(t, `fn f() -> i64 { if a > b { a } else { b } }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	ifExpr, ok := fn.Body.Trailing.(*ast.IfExpr)
	if !ok {
		t.Fatalf("want IfExpr, got %T", fn.Body.Trailing)
	}
	if ifExpr.Else == nil {
		t.Fatalf("expected else branch")
	}
}

func TestParseMatchExpr(t *testing.T) {
	prog := parseOK(t, `fn f() { match x { 1 => a, 2 => b, _ => c } }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	m, ok := fn.Body.Trailing.(*ast.MatchExpr)
	if !ok {
		t.Fatalf("want MatchExpr, got %T", fn.Body.Trailing)
	}
	if len(m.Arms) != 3 {
		t.Fatalf("want 3 arms, got %d", len(m.Arms))
	}
}

func TestParseSubstrateBlockWithRecover(t *testing.T) {
	prog := parseOK(t, `fn f() { persist { write() } recover { retry() } else { give_up() } }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	sb, ok := fn.Body.Trailing.(*ast.SubstrateBlock)
	if !ok {
		t.Fatalf("want SubstrateBlock, got %T", fn.Body.Trailing)
	}
	if sb.Kind != "persist" || sb.Recover == nil || sb.ElseBlock == nil {
		t.Fatalf("got %+v", sb)
	}
}

func TestParseStructDeclAndLiteral(t *testing.T) {
	prog := parseOK(t, `struct Point { x: i64, y: i64 }`)
	sd := prog.Declarations[0].(*ast.StructDecl)
	if sd.Name != "Point" || len(sd.Fields) != 2 {
		t.Fatalf("got %+v", sd)
	}

	prog2 := parseOK(t, `fn f() { Point { x: 1, y: 2 } }`)
	fn := prog2.Declarations[0].(*ast.FnDecl)
	lit, ok := fn.Body.Trailing.(*ast.StructLiteral)
	if !ok {
		t.Fatalf("want StructLiteral, got %T", fn.Body.Trailing)
	}
	if lit.Name != "Point" || len(lit.Order) != 2 {
		t.Fatalf("got %+v", lit)
	}
}

func TestParseEnumDecl(t *testing.T) {
	prog := parseOK(t, `enum Option { Some(i64), None }`)
	ed := prog.Declarations[0].(*ast.EnumDecl)
	if ed.Name != "Option" || len(ed.Variants) != 2 {
		t.Fatalf("got %+v", ed)
	}
	if len(ed.Variants[0].Fields) != 1 || len(ed.Variants[1].Fields) != 0 {
		t.Fatalf("got variants %+v", ed.Variants)
	}
}

func TestParseForInAndWhile(t *testing.T) {
	parseOK(t, `fn f() { for x in 0..10 { } }`)
	parseOK(t, `fn f() { while true { break } }`)
}

func TestParseRangeInclusive(t *testing.T) {
	prog := parseOK(t, `fn f() { 0..=10 }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	r, ok := fn.Body.Trailing.(*ast.RangeExpr)
	if !ok || !r.Inclusive {
		t.Fatalf("got %+v", fn.Body.Trailing)
	}
}

func TestParsePrecedence(t *testing.T) {
	prog := parseOK(t, `fn f() { 1 + 2 * 3 }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	infix := fn.Body.Trailing.(*ast.InfixExpr)
	if infix.Operator != "+" {
		t.Fatalf("want top-level +, got %s", infix.Operator)
	}
	rhs, ok := infix.Right.(*ast.InfixExpr)
	if !ok || rhs.Operator != "*" {
		t.Fatalf("want nested *, got %+v", infix.Right)
	}
}

func TestParsePipeExpr(t *testing.T) {
	prog := parseOK(t, `fn f() { x |> transform }`)
	fn := prog.Declarations[0].(*ast.FnDecl)
	if _, ok := fn.Body.Trailing.(*ast.PipeExpr); !ok {
		t.Fatalf("want PipeExpr, got %T", fn.Body.Trailing)
	}
}

func TestParseUseAndConstAndImpl(t *testing.T) {
	prog := parseOK(t, `
use strand::Capability;
const MAX: i64 = 100;
struct Counter { n: i64 }
impl Counter {
	[pure] fn get(self) -> i64 { self.n }
}
`)
	if len(prog.Declarations) != 4 {
		t.Fatalf("want 4 declarations, got %d: %+v", len(prog.Declarations), prog.Declarations)
	}
	impl, ok := prog.Declarations[3].(*ast.ImplDecl)
	if !ok || impl.Target != "Counter" || len(impl.Methods) != 1 {
		t.Fatalf("got %+v", prog.Declarations[3])
	}
}
