// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package ir defines Celestial IR, Seraphim's SSA intermediate
// representation (spec §4.4): a true linked-list-of-instructions SSA form
// bridging the checked AST and the linear-scan register allocator, with
// VOID- and capability-aware opcode families.
package ir

import (
	"fmt"

	"github.com/seraphlang/seraph/internal/effect"
)

// Module is a complete compiled unit: a set of functions plus the constant
// and type pools they reference.
type Module struct {
	Functions []*Function
	Constants []Constant
	Types     []TypeDef
}

// Function is one function in SSA form.
type Function struct {
	Name       string
	Params     []Value
	ReturnType TypeRef
	Effects    effect.Set
	Blocks     []*Block
	NextValue  int // monotonic vreg ID allocator
}

// Block is a straight-line instruction sequence ending in a Terminator.
type Block struct {
	Label        string
	Instructions []*Instruction
	Terminator   Terminator
	Preds        []*Block
	Succs        []*Block
}

// Value is an SSA virtual register. Every Value of kind vreg has exactly
// one defining Instruction (spec §4.4's strict-SSA invariant).
type Value struct {
	ID        int
	Type      TypeRef
	Name      string // optional debug name
	MayBeVoid bool   // union of defining operation's operand VOID-ability
}

func (v Value) String() string {
	if v.Name != "" {
		return "%" + v.Name
	}
	return fmt.Sprintf("%%v%d", v.ID)
}

// TypeRef indexes Module.Types, or names one of the predefined refs below.
type TypeRef int

const (
	TypeVoid TypeRef = iota
	TypeBool
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeScalar
	TypeGalactic
	TypeString
	TypeChar
	TypeCapability
	typePredefinedEnd
)

// TypeDef describes a user-defined (struct/enum/array/slice/fn) type.
type TypeDef struct {
	Name   string
	Kind   TypeDefKind
	Fields []FieldDef
}

type TypeDefKind int

const (
	TypeDefStruct TypeDefKind = iota
	TypeDefEnum
	TypeDefArray
	TypeDefSlice
	TypeDefFn
)

// FieldDef names one struct/enum-variant field and its type.
type FieldDef struct {
	Name string
	Type TypeRef
}

// Constant is a compile-time constant value, addressed by index in the
// constant pool.
type Constant struct {
	Type  TypeRef
	Value interface{} // int64, uint64, [2]uint64 (Scalar), [4]float64 (Galactic), string, bool
}

// Op is a Celestial IR instruction opcode (spec §4.4).
type Op int

const (
	// Arithmetic
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv // CIR_DIV: VOID on divide-by-zero, propagates operand VOID
	OpMod // CIR_MOD: as OpDiv
	OpNeg

	// Bitwise
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShl
	OpShr

	// Comparison
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte

	// Logical
	OpLogAnd
	OpLogOr
	OpLogNot

	// VOID family (spec §4.4 "VOID semantics at IR level")
	OpVoidTest     // CIR_VOID_TEST(v) -> Vbit
	OpVoidProp     // CIR_VOID_PROP(v): terminator-adjacent early return
	OpVoidAssert   // CIR_VOID_ASSERT(v): traps (UD2/EBREAK) on VOID
	OpVoidCoalesce // CIR_VOID_COALESCE(v, d): v unless VOID, else d

	// Capability family
	OpCapLoad  // CIR_CAP_LOAD(cap, off, ty): effect VOID|READ
	OpCapStore // CIR_CAP_STORE(cap, off, v): effect VOID|WRITE, no result
	OpCapSplit // capability Split (Open Question: VOIDs the original)

	// Memory
	OpAlloc
	OpLoad
	OpStore
	OpFieldPtr
	OpIndexPtr

	// Value operations
	OpConst
	OpCopy
	OpPhi

	// Calls
	OpCall
	OpCallMethod

	// Substrate
	OpSubstrateEnter // marks entry to a persist/aether block, pins the named capability
	OpSubstrateExit

	// Strand / Chronon
	OpChrononYield // CIR_CHRONON_YIELD: compiler-inserted preemption point
	OpStrandSpawn
	OpStrandJoin

	// Galactic
	OpGalacticPredict // Predict(g, Δt)

	// Type conversion
	OpConvert
	OpTruncate
	OpExtend

	// Misc
	OpUnreachable // CIR_UNREACHABLE
	OpTrap        // CIR_TRAP
	OpNop         // constant-folded-away instruction marker
)

var opNames = map[Op]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod", OpNeg: "neg",
	OpBitAnd: "and", OpBitOr: "or", OpBitXor: "xor", OpBitNot: "not", OpShl: "shl", OpShr: "shr",
	OpEq: "eq", OpNeq: "neq", OpLt: "lt", OpLte: "lte", OpGt: "gt", OpGte: "gte",
	OpLogAnd: "land", OpLogOr: "lor", OpLogNot: "lnot",
	OpVoidTest: "void_test", OpVoidProp: "void_prop", OpVoidAssert: "void_assert", OpVoidCoalesce: "void_coalesce",
	OpCapLoad: "cap_load", OpCapStore: "cap_store", OpCapSplit: "cap_split",
	OpAlloc: "alloc", OpLoad: "load", OpStore: "store", OpFieldPtr: "fieldptr", OpIndexPtr: "indexptr",
	OpConst: "const", OpCopy: "copy", OpPhi: "phi",
	OpCall: "call", OpCallMethod: "callmethod",
	OpSubstrateEnter: "substrate_enter", OpSubstrateExit: "substrate_exit",
	OpChrononYield: "chronon_yield", OpStrandSpawn: "strand_spawn", OpStrandJoin: "strand_join",
	OpGalacticPredict: "galactic_predict",
	OpConvert:         "convert", OpTruncate: "truncate", OpExtend: "extend",
	OpUnreachable: "unreachable", OpTrap: "trap", OpNop: "nop",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", op)
}

// HasSideEffects reports whether op must never be removed by DCE even when
// its result is unused (spec §4.4's DCE liveness seed set).
func HasSideEffects(op Op) bool {
	switch op {
	case OpStore, OpCapStore, OpCall, OpCallMethod, OpVoidAssert,
		OpSubstrateEnter, OpSubstrateExit, OpStrandSpawn, OpStrandJoin,
		OpUnreachable, OpTrap:
		return true
	}
	return false
}

// Instruction is a single SSA instruction.
type Instruction struct {
	Op         Op
	Result     Value
	Operands   []Value
	ConstIdx   int     // for OpConst
	FieldIdx   int     // for OpFieldPtr
	FuncName   string  // for OpCall
	SubstrateK string  // "persist" or "aether", for OpSubstrateEnter/Exit
	Type       TypeRef // result type annotation
}

func (inst *Instruction) String() string {
	s := fmt.Sprintf("%s = %s", inst.Result, inst.Op)
	for _, op := range inst.Operands {
		s += " " + op.String()
	}
	if inst.Op == OpConst {
		s += fmt.Sprintf(" $%d", inst.ConstIdx)
	}
	return s
}

// Terminator ends a Block.
type Terminator interface {
	terminator()
	String() string
}

// TermReturn returns a value (or nothing) from the enclosing function.
type TermReturn struct{ Value *Value }

func (t *TermReturn) terminator() {}
func (t *TermReturn) String() string {
	if t.Value != nil {
		return "ret " + t.Value.String()
	}
	return "ret void"
}

// TermBranch unconditionally transfers control to Target.
type TermBranch struct{ Target *Block }

func (t *TermBranch) terminator() {}
func (t *TermBranch) String() string { return "br " + t.Target.Label }

// TermCondBranch transfers control to TrueBlk or FalseBlk based on Cond.
type TermCondBranch struct {
	Cond               Value
	TrueBlk, FalseBlk *Block
}

func (t *TermCondBranch) terminator() {}
func (t *TermCondBranch) String() string {
	return fmt.Sprintf("br %s, %s, %s", t.Cond, t.TrueBlk.Label, t.FalseBlk.Label)
}

// TermHalt stops execution unconditionally (used for OpUnreachable/OpTrap
// block endings).
type TermHalt struct{}

func (t *TermHalt) terminator() {}
func (t *TermHalt) String() string { return "halt" }
