// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package compiler

import (
	"testing"

	"github.com/seraphlang/seraph/internal/config"
	"github.com/seraphlang/seraph/internal/parser"
)

func TestCompilePureAddFunction(t *testing.T) {
	cfg := config.Default()
	res := Compile("add.srf", `[pure] fn add(a: i64, b: i64) -> i64 { a + b }`, cfg)
	if res.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics)
	}
	if res.Module == nil || len(res.Module.Functions) != 1 {
		t.Fatalf("expected one lowered function, got module %+v", res.Module)
	}
	if len(res.Code) == 0 {
		t.Fatalf("expected non-empty emitted code")
	}
	if res.Module.Functions[0].Effects != 0 {
		t.Fatalf("expected a [pure] function to lower to the NONE effect set, got %d", res.Module.Functions[0].Effects)
	}
}

func TestCompileStopsBeforeLoweringOnSyntaxError(t *testing.T) {
	cfg := config.Default()
	res := Compile("bad.srf", `fn f( { }`, cfg)
	if !res.HasErrors() {
		t.Fatalf("expected a syntax diagnostic")
	}
	if res.Module != nil {
		t.Fatalf("expected lowering to be skipped on a parse error")
	}
}

func TestCompileRiscvTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Target.Arch = config.ArchRV64
	res := Compile("mul.srf", `fn mul(a: i64, b: i64) -> i64 { a * b }`, cfg)
	if res.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics)
	}
	if len(res.Code)%4 != 0 {
		t.Fatalf("expected word-aligned RV64 code length, got %d", len(res.Code))
	}
}

func TestLowerWhileLoopProducesThreeBlocks(t *testing.T) {
	prog, errs := parser.Parse("loop.srf", `fn count(n: i64) -> i64 { while n > 0 { n = n - 1 } n }`)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	mod := Lower(prog)
	if len(mod.Functions) != 1 {
		t.Fatalf("expected one function")
	}
	fn := mod.Functions[0]
	if len(fn.Blocks) < 3 {
		t.Fatalf("expected at least head/body/exit blocks for a while loop, got %d", len(fn.Blocks))
	}
}
