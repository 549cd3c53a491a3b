// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package ir

import (
	"testing"

	"github.com/seraphlang/seraph/internal/effect"
)

func TestBuilderBasic(t *testing.T) {
	b := NewBuilder()

	paramA := Value{ID: 100, Type: TypeI64, Name: "a"}
	paramB := Value{ID: 101, Type: TypeI64, Name: "b"}

	b.StartFunction("add", []Value{paramA, paramB}, TypeI64, effect.NONE)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	result := b.NewValue(TypeI64, "result", false)
	b.Emit(OpAdd, result, paramA, paramB)
	b.EmitReturn(&result)

	mod := b.Module()
	if len(mod.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(mod.Functions))
	}
	fn := mod.Functions[0]
	if fn.Name != "add" {
		t.Errorf("expected function name 'add', got %q", fn.Name)
	}
	if len(fn.Blocks[0].Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(fn.Blocks[0].Instructions))
	}
	if fn.Blocks[0].Instructions[0].Op != OpAdd {
		t.Errorf("expected OpAdd, got %s", fn.Blocks[0].Instructions[0].Op)
	}
}

func TestBuilderDivMarksMayBeVoid(t *testing.T) {
	b := NewBuilder()
	paramA := Value{ID: 100, Type: TypeI64, Name: "a"}
	paramB := Value{ID: 101, Type: TypeI64, Name: "b"}
	b.StartFunction("div", []Value{paramA, paramB}, TypeI64, effect.VOID)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	result := b.NewValue(TypeI64, "result", false)
	got := b.EmitDiv(result, paramA, paramB)
	if !got.MayBeVoid {
		t.Fatalf("expected CIR_DIV result to be may_be_void")
	}
	inst := entry.Instructions[0]
	if inst.Op != OpDiv || len(inst.Operands) != 2 {
		t.Fatalf("unexpected div instruction: %+v", inst)
	}
}

func TestVoidCoalesceAndAssert(t *testing.T) {
	b := NewBuilder()
	b.StartFunction("f", nil, TypeI64, effect.VOID)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	v := b.NewValue(TypeI64, "v", true)
	d := b.NewValue(TypeI64, "d", false)
	coalesced := b.NewValue(TypeI64, "c", false)
	b.EmitVoidCoalesce(coalesced, v, d)

	asserted := b.NewValue(TypeI64, "a", false)
	b.EmitVoidAssert(asserted, v)

	if len(entry.Instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(entry.Instructions))
	}
	if entry.Instructions[0].Op != OpVoidCoalesce || entry.Instructions[1].Op != OpVoidAssert {
		t.Fatalf("unexpected ops: %s, %s", entry.Instructions[0].Op, entry.Instructions[1].Op)
	}
}

func TestCapLoadMarksMayBeVoid(t *testing.T) {
	b := NewBuilder()
	b.StartFunction("load", nil, TypeI64, effect.VOID|effect.PERSIST)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	capVal := b.NewValue(TypeCapability, "cap", false)
	off := b.NewValue(TypeI64, "off", false)
	result := b.NewValue(TypeI64, "result", false)
	got := b.EmitCapLoad(result, capVal, off)
	if !got.MayBeVoid {
		t.Fatalf("CIR_CAP_LOAD result must be may_be_void")
	}
}

func TestControlFlowWiresPredsAndSuccs(t *testing.T) {
	b := NewBuilder()
	paramX := Value{ID: 100, Type: TypeI64, Name: "x"}
	b.StartFunction("abs", []Value{paramX}, TypeI64, effect.NONE)

	entry := b.NewBlock("entry")
	thenBlk := b.NewBlock("then")
	elseBlk := b.NewBlock("else")

	b.SetBlock(entry)
	zeroIdx := b.AddConstant(Constant{Type: TypeI64, Value: int64(0)})
	zero := b.NewValue(TypeI64, "zero", false)
	b.EmitConst(zero, zeroIdx)
	cmp := b.NewValue(TypeBool, "cmp", false)
	b.Emit(OpLt, cmp, paramX, zero)
	b.EmitCondBranch(cmp, thenBlk, elseBlk)

	b.SetBlock(thenBlk)
	neg := b.NewValue(TypeI64, "neg", false)
	b.Emit(OpNeg, neg, paramX)
	b.EmitReturn(&neg)

	b.SetBlock(elseBlk)
	b.EmitReturn(&paramX)

	if len(thenBlk.Preds) != 1 || thenBlk.Preds[0] != entry {
		t.Fatalf("expected then block's sole predecessor to be entry")
	}
	if len(entry.Succs) != 2 {
		t.Fatalf("expected entry to have 2 successors, got %d", len(entry.Succs))
	}
}

func TestHasSideEffects(t *testing.T) {
	if !HasSideEffects(OpStore) || !HasSideEffects(OpCapStore) || !HasSideEffects(OpVoidAssert) {
		t.Fatalf("expected store/capstore/voidassert to have side effects")
	}
	if HasSideEffects(OpAdd) || HasSideEffects(OpConst) {
		t.Fatalf("expected pure ops to have no side effects")
	}
}
