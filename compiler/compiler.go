// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package compiler drives the full pipeline a Seraphim source file passes
// through: lex+parse, check, lower to Celestial IR, optimize, register
// allocate, and emit native code for the configured target. Each stage is
// its own package; compiler only sequences them, stopping early exactly
// where spec §7 says to: "code generation is skipped if the checker
// reports errors."
package compiler

import (
	"fmt"

	"github.com/seraphlang/seraph/internal/checker"
	"github.com/seraphlang/seraph/internal/codegen/riscv"
	"github.com/seraphlang/seraph/internal/codegen/x64"
	"github.com/seraphlang/seraph/internal/config"
	"github.com/seraphlang/seraph/internal/diag"
	"github.com/seraphlang/seraph/internal/ir"
	"github.com/seraphlang/seraph/internal/obslog"
	"github.com/seraphlang/seraph/internal/optimize"
	"github.com/seraphlang/seraph/internal/parser"
)

// Result is everything a caller needs after a full-pipeline Compile: the
// Celestial IR module (present only when neither the parser nor the
// checker reported anything; nil otherwise), accumulated diagnostics from
// every stage, and the machine code a target emitter produced, if any.
type Result struct {
	Module      *ir.Module
	Diagnostics []diag.Diagnostic
	Code        []byte
}

// HasErrors reports whether any stage recorded a diagnostic.
func (r *Result) HasErrors() bool { return len(r.Diagnostics) > 0 }

// Compile runs filename/source through lex+parse, check, lower, optimize,
// register-allocate and emit, in that order, per spec §7's "a compilation
// that accumulates any error still completes all passes where safe" — the
// parser keeps going after a syntax error to report as many as it can, but
// lowering/codegen are skipped once the parser or checker has reported
// anything,
// since Celestial IR built over an ill-typed program has no defined
// meaning.
func Compile(filename, source string, cfg config.Config) *Result {
	res := &Result{}
	diag.CaptureStacks = cfg.Debug.CaptureStacks

	prog, perrs := parser.Parse(filename, source)
	for _, e := range perrs {
		res.Diagnostics = append(res.Diagnostics, diag.Diagnostic{Kind: diag.KindParse, Message: e.Error()})
	}
	if prog == nil {
		return res
	}

	c := checker.New()
	res.Diagnostics = append(res.Diagnostics, c.Check(prog)...)
	if len(res.Diagnostics) > 0 {
		obslog.Warn("compile: parser or checker reported errors, skipping lowering and codegen",
			obslog.Field("file", filename), obslog.Field("count", len(res.Diagnostics)))
		return res
	}

	mod := Lower(prog)
	res.Module = mod

	if cfg.Optimize.ConstantFold || cfg.Optimize.DeadCode {
		optimize.Run(mod)
	}

	code, err := emit(mod, cfg.Target.Arch)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, diag.Diagnostic{Kind: diag.KindInternal, Message: err.Error()})
		return res
	}
	res.Code = code

	obslog.Info("compile: emitted native code",
		obslog.Field("file", filename), obslog.Field("arch", cfg.Target.Arch), obslog.Field("bytes", len(code)))
	return res
}

// emit dispatches to the configured target's Emitter. Register allocation
// runs inside each Emitter's Emit (the emitter package owns its
// architecture's RegisterFile, per internal/codegen/{x64,riscv}), so emit's
// only job here is picking the right one and surfacing its Verify result
// as an error if the generated code fails self-check.
func emit(mod *ir.Module, arch config.Arch) ([]byte, error) {
	switch arch {
	case config.ArchX64:
		e := x64.New()
		code, err := e.Emit(mod)
		if err != nil {
			return nil, err
		}
		if verrs := e.Verify(); len(verrs) > 0 {
			return nil, fmt.Errorf("x64: %v", verrs[0])
		}
		return code, nil
	case config.ArchRV64:
		e := riscv.New()
		code, err := e.Emit(mod)
		if err != nil {
			return nil, err
		}
		if verrs := e.Verify(); len(verrs) > 0 {
			return nil, fmt.Errorf("riscv: %v", verrs[0])
		}
		return code, nil
	default:
		return nil, fmt.Errorf("compiler: unknown target arch %q", arch)
	}
}
