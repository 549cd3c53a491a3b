// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package optimize

import (
	"testing"

	"github.com/seraphlang/seraph/internal/effect"
	"github.com/seraphlang/seraph/internal/ir"
)

func TestConstantFoldAdd(t *testing.T) {
	b := ir.NewBuilder()
	b.StartFunction("f", nil, ir.TypeI64, effect.NONE)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	aIdx := b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(2)})
	a := b.NewValue(ir.TypeI64, "a", false)
	b.EmitConst(a, aIdx)

	bIdx := b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(3)})
	bv := b.NewValue(ir.TypeI64, "b", false)
	b.EmitConst(bv, bIdx)

	sum := b.NewValue(ir.TypeI64, "sum", false)
	b.Emit(ir.OpAdd, sum, a, bv)
	b.EmitReturn(&sum)

	mod := b.Module()
	fn := mod.Functions[0]
	ConstantFold(mod, fn)

	if len(fn.Blocks[0].Instructions) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(fn.Blocks[0].Instructions))
	}
	folded := fn.Blocks[0].Instructions[2]
	if folded.Op != ir.OpConst {
		t.Fatalf("expected folded instruction to be OpConst, got %s", folded.Op)
	}
	if got := mod.Constants[folded.ConstIdx].Value.(int64); got != 5 {
		t.Fatalf("expected folded constant 5, got %d", got)
	}
}

func TestConstantFoldSkipsDivByZero(t *testing.T) {
	b := ir.NewBuilder()
	b.StartFunction("f", nil, ir.TypeI64, effect.VOID)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	aIdx := b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(10)})
	a := b.NewValue(ir.TypeI64, "a", false)
	b.EmitConst(a, aIdx)

	zeroIdx := b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(0)})
	zero := b.NewValue(ir.TypeI64, "zero", false)
	b.EmitConst(zero, zeroIdx)

	result := b.NewValue(ir.TypeI64, "result", true)
	b.EmitDiv(result, a, zero)
	b.EmitReturn(&result)

	mod := b.Module()
	fn := mod.Functions[0]
	ConstantFold(mod, fn)

	if fn.Blocks[0].Instructions[2].Op != ir.OpDiv {
		t.Fatalf("division by a statically-zero constant must not be folded")
	}
}

func TestDeadCodeEliminateRemovesUnusedPureOp(t *testing.T) {
	b := ir.NewBuilder()
	b.StartFunction("f", nil, ir.TypeI64, effect.NONE)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	aIdx := b.AddConstant(ir.Constant{Type: ir.TypeI64, Value: int64(1)})
	a := b.NewValue(ir.TypeI64, "a", false)
	b.EmitConst(a, aIdx)
	dead := b.NewValue(ir.TypeI64, "dead", false)
	b.Emit(ir.OpNeg, dead, a)
	used := b.NewValue(ir.TypeI64, "used", false)
	b.Emit(ir.OpAdd, used, a, a)
	b.EmitReturn(&used)

	fn := b.Module().Functions[0]
	DeadCodeEliminate(fn)

	for _, inst := range fn.Blocks[0].Instructions {
		if inst.Result.ID == dead.ID {
			t.Fatalf("expected dead OpNeg instruction to be eliminated")
		}
	}
}

func TestDeadCodeEliminateKeepsSideEffects(t *testing.T) {
	b := ir.NewBuilder()
	b.StartFunction("f", nil, ir.TypeVoid, effect.PERSIST|effect.VOID)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	capVal := b.NewValue(ir.TypeCapability, "cap", false)
	off := b.NewValue(ir.TypeI64, "off", false)
	v := b.NewValue(ir.TypeI64, "v", false)
	b.EmitCapStore(capVal, off, v)
	b.EmitReturn(nil)

	fn := b.Module().Functions[0]
	DeadCodeEliminate(fn)

	if len(fn.Blocks[0].Instructions) != 1 || fn.Blocks[0].Instructions[0].Op != ir.OpCapStore {
		t.Fatalf("expected CIR_CAP_STORE to survive DCE despite no result uses")
	}
}
