// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package riscv

import (
	"encoding/binary"
	"testing"

	"github.com/seraphlang/seraph/internal/effect"
	"github.com/seraphlang/seraph/internal/ir"
)

func buildAddFn() *ir.Module {
	b := ir.NewBuilder()
	params := []ir.Value{{ID: 100, Type: ir.TypeI64, Name: "a"}}
	b.StartFunction("add_one", params, ir.TypeI64, effect.NONE)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)
	one := b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(1)})
	oneVal := b.NewValue(ir.TypeI64, "", false)
	b.EmitConst(oneVal, one)
	sum := b.NewValue(ir.TypeI64, "", false)
	b.Emit(ir.OpAdd, sum, params[0], oneVal)
	b.EmitReturn(&sum)
	return b.Module()
}

func buildDivFn() *ir.Module {
	b := ir.NewBuilder()
	params := []ir.Value{
		{ID: 100, Type: ir.TypeI64, Name: "a"},
		{ID: 101, Type: ir.TypeI64, Name: "b"},
	}
	b.StartFunction("safe_div", params, ir.TypeI64, effect.VOID)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)
	q := b.NewValue(ir.TypeI64, "", true)
	b.EmitDiv(q, params[0], params[1])
	b.EmitReturn(&q)
	return b.Module()
}

func TestEmitAddFunctionEndsInRet(t *testing.T) {
	mod := buildAddFn()
	e := New()
	code, err := e.Emit(mod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) < 4 {
		t.Fatalf("expected non-empty code")
	}
	last := binary.LittleEndian.Uint32(code[len(code)-4:])
	if last != jalrRetWord {
		t.Fatalf("expected function to end in ret, got word 0x%08X", last)
	}
}

func TestEmitAddFunctionPassesVerify(t *testing.T) {
	mod := buildAddFn()
	e := New()
	if _, err := e.Emit(mod); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errs := e.Verify(); len(errs) != 0 {
		t.Fatalf("expected no verify errors, got %v", errs)
	}
}

func TestEmitDivFunctionGuardsZeroDivisor(t *testing.T) {
	mod := buildDivFn()
	e := New()
	code, err := e.Emit(mod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) == 0 {
		t.Fatalf("expected non-empty code")
	}
	if errs := e.Verify(); len(errs) != 0 {
		t.Fatalf("expected no verify errors, got %v", errs)
	}
}

func TestEmitPrologueComputesFrameSize(t *testing.T) {
	e := New()
	e.emitPrologue(32)
	if e.buf.Len() != 16 {
		t.Fatalf("expected 4 prologue instructions (16 bytes), got %d", e.buf.Len())
	}
}

func TestJTypeEncodesForwardDisplacement(t *testing.T) {
	word := jType(X0, 16)
	if word&0x7F != 0x6F {
		t.Fatalf("expected jal opcode bits set, got 0x%08X", word)
	}
}

// buildMaxFn exercises a comparison, a conditional branch, and a phi merge.
func buildMaxFn() *ir.Module {
	b := ir.NewBuilder()
	params := []ir.Value{
		{ID: 100, Type: ir.TypeI64, Name: "a"},
		{ID: 101, Type: ir.TypeI64, Name: "b"},
	}
	b.StartFunction("max", params, ir.TypeI64, effect.NONE)
	entry := b.NewBlock("entry")
	takeA := b.NewBlock("take_a")
	takeB := b.NewBlock("take_b")
	merge := b.NewBlock("merge")

	b.SetBlock(entry)
	cond := b.NewValue(ir.TypeBool, "", false)
	b.Emit(ir.OpGt, cond, params[0], params[1])
	b.EmitCondBranch(cond, takeA, takeB)

	b.SetBlock(takeA)
	b.EmitBranch(merge)

	b.SetBlock(takeB)
	b.EmitBranch(merge)

	b.SetBlock(merge)
	result := b.NewValue(ir.TypeI64, "", false)
	b.EmitPhi(result, params[0], params[1])
	b.EmitReturn(&result)

	return b.Module()
}

func TestEmitMaxFunctionLowersComparisonBranchAndPhi(t *testing.T) {
	mod := buildMaxFn()
	e := New()
	code, err := e.Emit(mod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) == 0 {
		t.Fatalf("expected non-empty code")
	}
	if errs := e.Verify(); len(errs) != 0 {
		t.Fatalf("expected no verify errors, got %v", errs)
	}
}

// buildCallerFn exercises OpCall's cross-function relocation.
func buildCallerFn() *ir.Module {
	b := ir.NewBuilder()
	calleeParams := []ir.Value{{ID: 100, Type: ir.TypeI64, Name: "x"}}
	b.StartFunction("double", calleeParams, ir.TypeI64, effect.NONE)
	calleeEntry := b.NewBlock("entry")
	b.SetBlock(calleeEntry)
	sum := b.NewValue(ir.TypeI64, "", false)
	b.Emit(ir.OpAdd, sum, calleeParams[0], calleeParams[0])
	b.EmitReturn(&sum)

	b.StartFunction("caller", nil, ir.TypeI64, effect.NONE)
	callerEntry := b.NewBlock("entry")
	b.SetBlock(callerEntry)
	ten := b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(10)})
	tenVal := b.NewValue(ir.TypeI64, "", false)
	b.EmitConst(tenVal, ten)
	result := b.NewValue(ir.TypeI64, "", false)
	b.EmitCall(result, "double", tenVal)
	b.EmitReturn(&result)

	return b.Module()
}

func TestEmitCallerFunctionResolvesCrossFunctionCall(t *testing.T) {
	mod := buildCallerFn()
	e := New()
	code, err := e.Emit(mod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) == 0 {
		t.Fatalf("expected non-empty code")
	}
	if errs := e.Verify(); len(errs) != 0 {
		t.Fatalf("expected no verify errors, got %v", errs)
	}
}

// buildVoidPropFn exercises CIR_VOID_PROP's early-return path.
func buildVoidPropFn() *ir.Module {
	b := ir.NewBuilder()
	params := []ir.Value{{ID: 100, Type: ir.TypeI64, Name: "a"}}
	b.StartFunction("first_or_void", params, ir.TypeI64, effect.VOID)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)
	propagated := b.NewValue(ir.TypeI64, "", true)
	b.EmitVoidProp(propagated, params[0])
	b.EmitReturn(&propagated)
	return b.Module()
}

func TestEmitVoidPropFunctionLowersEarlyReturn(t *testing.T) {
	mod := buildVoidPropFn()
	e := New()
	code, err := e.Emit(mod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) == 0 {
		t.Fatalf("expected non-empty code")
	}
	if errs := e.Verify(); len(errs) != 0 {
		t.Fatalf("expected no verify errors, got %v", errs)
	}
}

// buildConstFn checks that a constant pool value is resolved, not its
// index: the pool holds two entries and the function loads the second.
func buildConstFn() *ir.Module {
	b := ir.NewBuilder()
	b.StartFunction("answer", nil, ir.TypeI64, effect.NONE)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)
	_ = b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(1)})
	fortyTwo := b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(42)})
	result := b.NewValue(ir.TypeI64, "", false)
	b.EmitConst(result, fortyTwo)
	b.EmitReturn(&result)
	return b.Module()
}

func TestEmitConstFunctionResolvesPooledValue(t *testing.T) {
	mod := buildConstFn()
	e := New()
	if _, err := e.Emit(mod); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errs := e.Verify(); len(errs) != 0 {
		t.Fatalf("expected no verify errors, got %v", errs)
	}
}
