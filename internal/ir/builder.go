// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ir

import "github.com/seraphlang/seraph/internal/effect"

// Builder constructs Celestial IR. It carries (module, function, block,
// insert_point) per spec §4.4 and inserts new instructions at the current
// block's end.
type Builder struct {
	module   *Module
	function *Function
	block    *Block
}

// NewBuilder returns a Builder over a fresh, empty Module.
func NewBuilder() *Builder {
	return &Builder{module: &Module{}}
}

// Module returns the module built so far.
func (b *Builder) Module() *Module { return b.module }

// AddConstant appends a constant to the pool, returning its index.
func (b *Builder) AddConstant(c Constant) int {
	idx := len(b.module.Constants)
	b.module.Constants = append(b.module.Constants, c)
	return idx
}

// AddType appends a type definition, returning its TypeRef.
func (b *Builder) AddType(td TypeDef) TypeRef {
	idx := len(b.module.Types)
	b.module.Types = append(b.module.Types, td)
	return TypeRef(int(typePredefinedEnd) + idx)
}

// StartFunction begins a new function and makes it the insertion target.
func (b *Builder) StartFunction(name string, params []Value, ret TypeRef, effects effect.Set) *Function {
	f := &Function{Name: name, Params: params, ReturnType: ret, Effects: effects}
	b.function = f
	b.module.Functions = append(b.module.Functions, f)
	return f
}

// NewBlock creates a block in the current function.
func (b *Builder) NewBlock(label string) *Block {
	bb := &Block{Label: label}
	b.function.Blocks = append(b.function.Blocks, bb)
	return bb
}

// SetBlock sets the current insertion point.
func (b *Builder) SetBlock(bb *Block) { b.block = bb }

// NewValue allocates a fresh SSA vreg. mayBeVoid should be the union of
// every operand's MayBeVoid flag (spec §4.4: "the builder is responsible
// for marking the result's may_be_void flag by union of operands' flags").
func (b *Builder) NewValue(typ TypeRef, name string, mayBeVoid bool) Value {
	v := Value{ID: b.function.NextValue, Type: typ, Name: name, MayBeVoid: mayBeVoid}
	b.function.NextValue++
	return v
}

func (b *Builder) emit(inst *Instruction) Value {
	b.block.Instructions = append(b.block.Instructions, inst)
	return inst.Result
}

// Emit appends a plain arithmetic/bitwise/comparison/logical instruction.
func (b *Builder) Emit(op Op, result Value, operands ...Value) Value {
	return b.emit(&Instruction{Op: op, Result: result, Operands: operands, Type: result.Type})
}

// EmitConst loads a pooled constant into result.
func (b *Builder) EmitConst(result Value, constIdx int) Value {
	return b.emit(&Instruction{Op: OpConst, Result: result, ConstIdx: constIdx, Type: result.Type})
}

// EmitDiv emits CIR_DIV: VOID on divide-by-zero or VOID operands (spec
// §4.4). The result is always marked may_be_void regardless of operand
// flags, since the runtime zero-test alone can produce VOID.
func (b *Builder) EmitDiv(result Value, a, bOperand Value) Value {
	result.MayBeVoid = true
	return b.emit(&Instruction{Op: OpDiv, Result: result, Operands: []Value{a, bOperand}, Type: result.Type})
}

// EmitMod mirrors EmitDiv for CIR_MOD.
func (b *Builder) EmitMod(result Value, a, bOperand Value) Value {
	result.MayBeVoid = true
	return b.emit(&Instruction{Op: OpMod, Result: result, Operands: []Value{a, bOperand}, Type: result.Type})
}

// EmitVoidTest emits CIR_VOID_TEST(v) -> Vbit.
func (b *Builder) EmitVoidTest(result Value, v Value) Value {
	return b.emit(&Instruction{Op: OpVoidTest, Result: result, Operands: []Value{v}, Type: TypeBool})
}

// EmitVoidProp emits CIR_VOID_PROP(v), a terminator-adjacent op that early
// returns the function's VOID constant when v is VOID.
func (b *Builder) EmitVoidProp(result Value, v Value) Value {
	return b.emit(&Instruction{Op: OpVoidProp, Result: result, Operands: []Value{v}, Type: result.Type})
}

// EmitVoidAssert emits CIR_VOID_ASSERT(v), trapping on VOID.
func (b *Builder) EmitVoidAssert(result Value, v Value) Value {
	return b.emit(&Instruction{Op: OpVoidAssert, Result: result, Operands: []Value{v}, Type: result.Type})
}

// EmitVoidCoalesce emits CIR_VOID_COALESCE(v, d): v unless VOID, else d.
func (b *Builder) EmitVoidCoalesce(result Value, v, d Value) Value {
	return b.emit(&Instruction{Op: OpVoidCoalesce, Result: result, Operands: []Value{v, d}, Type: result.Type})
}

// EmitCapLoad emits CIR_CAP_LOAD(cap, off, ty): effect VOID|READ, result
// always may_be_void since any of the three capability checks may fail.
func (b *Builder) EmitCapLoad(result Value, capVal, off Value) Value {
	result.MayBeVoid = true
	return b.emit(&Instruction{Op: OpCapLoad, Result: result, Operands: []Value{capVal, off}, Type: result.Type})
}

// EmitCapStore emits CIR_CAP_STORE(cap, off, v): effect VOID|WRITE, no
// result; a failed capability check silently drops the store.
func (b *Builder) EmitCapStore(capVal, off, v Value) {
	b.emit(&Instruction{Op: OpCapStore, Operands: []Value{capVal, off, v}})
}

// EmitCapSplit emits a capability split, which VOIDs the original
// capability value (Open Question decision, see DESIGN.md).
func (b *Builder) EmitCapSplit(result, original Value, at Value) Value {
	return b.emit(&Instruction{Op: OpCapSplit, Result: result, Operands: []Value{original, at}, Type: result.Type})
}

// EmitCall emits a function call.
func (b *Builder) EmitCall(result Value, funcName string, args ...Value) Value {
	return b.emit(&Instruction{Op: OpCall, Result: result, FuncName: funcName, Operands: args, Type: result.Type})
}

// EmitFieldPtr emits a struct field pointer access.
func (b *Builder) EmitFieldPtr(result, base Value, fieldIdx int) Value {
	return b.emit(&Instruction{Op: OpFieldPtr, Result: result, Operands: []Value{base}, FieldIdx: fieldIdx, Type: result.Type})
}

// EmitSubstrateEnter marks entry into a persist/aether block, pinning its
// capability for the duration of the block.
func (b *Builder) EmitSubstrateEnter(kind string, cap Value) {
	b.emit(&Instruction{Op: OpSubstrateEnter, Operands: []Value{cap}, SubstrateK: kind})
}

// EmitSubstrateExit closes the matching EmitSubstrateEnter.
func (b *Builder) EmitSubstrateExit(kind string) {
	b.emit(&Instruction{Op: OpSubstrateExit, SubstrateK: kind})
}

// EmitChrononYield emits a compiler-inserted cooperative preemption point.
func (b *Builder) EmitChrononYield() {
	b.emit(&Instruction{Op: OpChrononYield})
}

// EmitBranch sets an unconditional branch terminator, wiring predecessor
// and successor edges.
func (b *Builder) EmitBranch(target *Block) {
	b.block.Terminator = &TermBranch{Target: target}
	b.block.Succs = append(b.block.Succs, target)
	target.Preds = append(target.Preds, b.block)
}

// EmitCondBranch sets a conditional branch terminator.
func (b *Builder) EmitCondBranch(cond Value, trueBlk, falseBlk *Block) {
	b.block.Terminator = &TermCondBranch{Cond: cond, TrueBlk: trueBlk, FalseBlk: falseBlk}
	b.block.Succs = append(b.block.Succs, trueBlk, falseBlk)
	trueBlk.Preds = append(trueBlk.Preds, b.block)
	falseBlk.Preds = append(falseBlk.Preds, b.block)
}

// EmitReturn sets a return terminator.
func (b *Builder) EmitReturn(val *Value) {
	b.block.Terminator = &TermReturn{Value: val}
}

// EmitHalt sets a halt terminator (used to close out OpUnreachable/OpTrap
// blocks, which have no well-defined successor).
func (b *Builder) EmitHalt() {
	b.block.Terminator = &TermHalt{}
}

// EmitPhi prepends a phi instruction at the start of the current block, the
// conventional SSA placement for merge-point values.
func (b *Builder) EmitPhi(result Value, values ...Value) Value {
	inst := &Instruction{Op: OpPhi, Result: result, Operands: values, Type: result.Type}
	b.block.Instructions = append([]*Instruction{inst}, b.block.Instructions...)
	return result
}
