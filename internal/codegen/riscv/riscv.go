// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package riscv emits RV64IMAC machine code from Celestial IR (spec §4.6).
package riscv

import (
	"encoding/binary"
	"fmt"

	"github.com/seraphlang/seraph/internal/codegen/asmutil"
	"github.com/seraphlang/seraph/internal/ir"
	"github.com/seraphlang/seraph/internal/regalloc"
)

// Register numbers per the standard RVG ABI naming.
const (
	X0  = 0 // zero
	RA  = 1
	SP  = 2
	GP  = 3
	TP  = 4
	T0  = 5
	T1  = 6
	T2  = 7
	FP  = 8 // s0/fp
	S1  = 9
	A0  = 10
	A1  = 11
	A2  = 12
	A3  = 13
	A4  = 14
	A5  = 15
	A6  = 16
	A7  = 17
	S2  = 18
	S3  = 19
	S4  = 20
	S5  = 21
	S6  = 22
	S7  = 23
	S8  = 24
	S9  = 25
	S10 = 26 // reserved: substrate transaction-depth counter
	S11 = 27 // reserved: capability context (live generation counter)
	T3  = 28
	T4  = 29
	T5  = 30
	T6  = 31
)

// RegisterFile: allocatable temporaries t0-t6 (caller-saved), allocatable
// saved s0-s9 minus fp (callee-saved), arguments a0-a7 (spec §4.6: "x0-x4,
// s10, s11 reserved; t0-t6 and s0-s9 allocatable").
var RegisterFile = regalloc.RegisterFile{
	CallerSaved: []int{T0, T1, T2, T3, T4, T5, T6},
	CalleeSaved: []int{S1, S2, S3, S4, S5, S6, S7, S8, S9},
	ArgRegs:     []int{A0, A1, A2, A3, A4, A5, A6, A7},
}

// Capability record field offsets (spec §3's {base, length, generation,
// permissions} layout, addressed through the pointer an OpCapLoad/OpCapStore
// operand carries).
const (
	capOffBase = 0
	capOffLen  = 8
	capOffGen  = 16
	capOffPerm = 24
)

// Permission bits, mirroring internal/capability's Read/Write constants.
const (
	permRead  = 1
	permWrite = 2
)

// Emitter lowers a Celestial IR module to RV64IMAC machine code.
type Emitter struct {
	buf   *asmutil.Buffer
	funcs []asmutil.FuncSpan

	substrateEnterLbl *asmutil.Label
	substrateExitLbl  *asmutil.Label
	chrononYieldLbl   *asmutil.Label
}

// New returns an Emitter over a fresh Buffer.
func New() *Emitter {
	return &Emitter{buf: asmutil.NewBuffer()}
}

// Emit lowers every function in mod, returning the assembled machine code.
// Per spec §4.6 it also emits a module-entry stub that calls "main" and
// invokes the host's exit syscall, and three tiny runtime-support routines
// the effect-lowering cases below call into.
func (e *Emitter) Emit(mod *ir.Module) ([]byte, error) {
	funcLabels := make(map[string]*asmutil.Label, len(mod.Functions))
	for _, fn := range mod.Functions {
		funcLabels[fn.Name] = asmutil.NewLabel(fn.Name)
	}

	e.emitEntryStub(funcLabels)
	e.emitRuntimeStubs()

	for _, fn := range mod.Functions {
		start := e.buf.Len()
		if err := e.emitFunction(fn, mod, funcLabels); err != nil {
			return nil, fmt.Errorf("riscv: function %s: %w", fn.Name, err)
		}
		e.funcs = append(e.funcs, asmutil.FuncSpan{Name: fn.Name, Start: start, End: e.buf.Len()})
	}
	if err := e.buf.ResolveFixups(); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// emitEntryStub calls main and exits the host process via the Linux RV64
// exit syscall (a7=93), carrying main's result through a0 as the exit code
// (spec §4.6). A module with no main (a library unit) gets no stub.
func (e *Emitter) emitEntryStub(funcLabels map[string]*asmutil.Label) {
	mainLbl, ok := funcLabels["main"]
	if !ok {
		return
	}
	e.buf.Mark()
	e.buf.Emit(0, 0, 0, 0)
	e.patchLastJType(RA, mainLbl) // jal ra, main
	e.buf.Mark()
	e.emitWord(iType(0x13, 0, A7, X0, 93)) // addi a7, x0, 93 (SYS_exit)
	e.buf.Mark()
	e.emitWord(iType(0x73, 0, 0, 0, 0)) // ecall
}

// emitRuntimeStubs lowers spec §4.6's "effect lowering" for persist/aether
// blocks and cooperative preemption into three small always-resident
// routines, each a real jal target with its own relocation — not an
// instruction-local no-op.
func (e *Emitter) emitRuntimeStubs() {
	e.substrateEnterLbl = asmutil.NewLabel("substrate_enter")
	e.buf.BindLabel(e.substrateEnterLbl)
	e.buf.Mark()
	e.emitWord(iType(0x13, 0, S10, S10, 1)) // addi s10, s10, 1 (open transaction count)
	e.buf.Mark()
	e.emitWord(jalrRetWord)

	e.substrateExitLbl = asmutil.NewLabel("substrate_exit")
	e.buf.BindLabel(e.substrateExitLbl)
	e.buf.Mark()
	e.emitWord(iType(0x13, 0, S10, S10, -1)) // addi s10, s10, -1
	e.buf.Mark()
	e.emitWord(jalrRetWord)

	e.chrononYieldLbl = asmutil.NewLabel("chronon_yield")
	e.buf.BindLabel(e.chrononYieldLbl)
	e.buf.Mark()
	e.emitWord(rType(0x33, 0, X0, S10, S10, 0)) // add x0, s10, s10: never preempt mid-transaction
	e.buf.Mark()
	e.emitWord(jalrRetWord)
}

// jalrRetWord is `jalr x0, x1, 0` — the canonical `ret` pseudo-instruction.
const jalrRetWord uint32 = 0x00008067

// ebreakWord is the RISC-V trap instruction, used for VOID_ASSERT failures
// and OpTrap/OpUnreachable.
const ebreakWord uint32 = 0x00100073

// Verify runs the shared post-generation validation pass: every function
// must end in `ret` or `ebreak`.
func (e *Emitter) Verify() []asmutil.VerifyError {
	return asmutil.Verify(e.buf, e.funcs, isTerminatorAt)
}

func isTerminatorAt(code []byte, off int) bool {
	if off+4 > len(code) {
		return false
	}
	word := binary.LittleEndian.Uint32(code[off : off+4])
	return word == jalrRetWord || word == ebreakWord
}

func (e *Emitter) emitWord(w uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], w)
	e.buf.Emit(b[:]...)
}

func align16(n uint32) uint32 { return (n + 15) &^ 15 }

func (e *Emitter) emitFunction(fn *ir.Function, mod *ir.Module, funcLabels map[string]*asmutil.Label) error {
	alloc := regalloc.Allocate(fn, RegisterFile)
	// +16 reserves ra/fp save slots per the prologue shape (spec §4.6).
	frameSize := align16(uint32(alloc.NumSpillSlots)*8 + 16)

	e.buf.BindLabel(funcLabels[fn.Name])
	e.emitPrologue(frameSize)

	labels := make(map[string]*asmutil.Label)
	for _, block := range fn.Blocks {
		labels[block.Label] = asmutil.NewLabel(block.Label)
	}

	for _, block := range fn.Blocks {
		e.buf.BindLabel(labels[block.Label])
		for _, inst := range block.Instructions {
			e.buf.Mark()
			if err := e.emitInstruction(inst, alloc, mod, funcLabels, frameSize); err != nil {
				return err
			}
		}
		e.resolvePhis(block, alloc)
		if block.Terminator != nil {
			e.buf.Mark()
			if err := e.emitTerminator(block.Terminator, alloc, labels, frameSize); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitPrologue: addi sp,sp,-frame; sd ra,(frame-8)(sp); sd fp,(frame-16)(sp);
// addi fp,sp,frame (spec §4.6).
func (e *Emitter) emitPrologue(frame uint32) {
	e.buf.Mark()
	e.emitWord(iType(0x13, 0, SP, SP, -int32(frame))) // addi sp, sp, -frame
	e.buf.Mark()
	e.emitWord(sType(0x23, 3, SP, RA, int32(frame)-8)) // sd ra, frame-8(sp)
	e.buf.Mark()
	e.emitWord(sType(0x23, 3, SP, FP, int32(frame)-16)) // sd fp, frame-16(sp)
	e.buf.Mark()
	e.emitWord(iType(0x13, 0, FP, SP, int32(frame))) // addi fp, sp, frame
}

func (e *Emitter) emitEpilogue(frame uint32) {
	e.buf.Mark()
	e.emitWord(iType(0x03, 3, RA, SP, int32(frame)-8)) // ld ra, frame-8(sp)
	e.buf.Mark()
	e.emitWord(iType(0x03, 3, FP, SP, int32(frame)-16)) // ld fp, frame-16(sp)
	e.buf.Mark()
	e.emitWord(iType(0x13, 0, SP, SP, int32(frame))) // addi sp, sp, frame
	e.buf.Mark()
	e.emitWord(jalrRetWord)
}

// R-type / I-type / S-type / B-type / U-type / J-type encoders, minimal
// subset sufficient for the instructions this emitter generates.

func rType(opcode, funct3, rd, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func iType(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return uint32(imm&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func sType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7F)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1F)<<7 | opcode
}

func bType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>12&1)<<31 | (u>>5&0x3F)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u>>11&1)<<7 | (u>>1&0xF)<<8 | opcode
}

// uType encodes U-type instructions (lui, auipc): the raw 20-bit immediate
// occupies bits 31:12 verbatim.
func uType(opcode, rd uint32, imm20 int32) uint32 {
	return uint32(imm20&0xFFFFF)<<12 | rd<<7 | opcode
}

func regOf(alloc *regalloc.Result, v ir.Value) uint32 {
	loc, ok := alloc.Locations[v.ID]
	if !ok || !loc.InReg {
		return 0
	}
	return uint32(loc.Register)
}

// resolvePhis injects, at the end of block (just before its terminator), a
// register move into each successor's leading OpPhi destinations sourced
// from the operand matching block's position in that successor's Preds
// (spec §4.4's strict-SSA phi placement); it does not attempt the general
// parallel-copy/swap problem.
func (e *Emitter) resolvePhis(block *ir.Block, alloc *regalloc.Result) {
	for _, succ := range block.Succs {
		predIdx := -1
		for i, p := range succ.Preds {
			if p == block {
				predIdx = i
				break
			}
		}
		if predIdx < 0 {
			continue
		}
		for _, inst := range succ.Instructions {
			if inst.Op != ir.OpPhi {
				break
			}
			if predIdx >= len(inst.Operands) {
				continue
			}
			dst := regOf(alloc, inst.Result)
			src := regOf(alloc, inst.Operands[predIdx])
			e.buf.Mark()
			e.emitWord(iType(0x13, 0, dst, src, 0)) // mv dst, src
		}
	}
}

// emitVoidTest emits only srli tmp, val, 63, leaving tmp 1 iff val's VOID
// bit (bit 63) is set; the branch on tmp is emitted by the caller.
func (e *Emitter) emitVoidTest(tmp, val uint32) {
	e.emitWord(iType(0x13, 5, tmp, val, 63)) // srli tmp, val, 63
}

func (e *Emitter) emitInstruction(inst *ir.Instruction, alloc *regalloc.Result, mod *ir.Module, funcLabels map[string]*asmutil.Label, frame uint32) error {
	dst := regOf(alloc, inst.Result)

	switch inst.Op {
	case ir.OpAdd:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 0, dst, a, b, 0x00)) // add
	case ir.OpSub:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 0, dst, a, b, 0x20)) // sub
	case ir.OpMul:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 0, dst, a, b, 0x01)) // mul (RV64M)
	case ir.OpBitAnd:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 7, dst, a, b, 0x00))
	case ir.OpBitOr:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 6, dst, a, b, 0x00))
	case ir.OpBitXor:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 4, dst, a, b, 0x00))
	case ir.OpBitNot:
		a := regOf(alloc, inst.Operands[0])
		e.emitWord(iType(0x13, 4, dst, a, -1)) // xori dst, a, -1
	case ir.OpShl:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 1, dst, a, b, 0x00)) // sll
	case ir.OpShr:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 5, dst, a, b, 0x00)) // srl (logical)
	case ir.OpEq:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 4, dst, a, b, 0x00))  // xor dst, a, b
		e.emitWord(iType(0x13, 3, dst, dst, 1))      // sltiu dst, dst, 1
	case ir.OpNeq:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 4, dst, a, b, 0x00)) // xor dst, a, b
		e.emitWord(rType(0x33, 3, dst, X0, dst, 0)) // sltu dst, x0, dst
	case ir.OpLt:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 2, dst, a, b, 0x00)) // slt dst, a, b
	case ir.OpLte:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 2, dst, b, a, 0x00)) // slt dst, b, a
		e.emitWord(iType(0x13, 3, dst, dst, 1))     // sltiu dst, dst, 1 (logical not of a 0/1 value)
	case ir.OpGt:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 2, dst, b, a, 0x00)) // slt dst, b, a
	case ir.OpGte:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 2, dst, a, b, 0x00)) // slt dst, a, b
		e.emitWord(iType(0x13, 3, dst, dst, 1))     // sltiu dst, dst, 1 (logical not of a 0/1 value)
	case ir.OpLogAnd:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 7, dst, a, b, 0x00)) // and
	case ir.OpLogOr:
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(rType(0x33, 6, dst, a, b, 0x00)) // or
	case ir.OpLogNot:
		a := regOf(alloc, inst.Operands[0])
		e.emitWord(iType(0x13, 3, dst, a, 1)) // sltiu dst, a, 1
	case ir.OpIndexPtr:
		base, idx := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		e.emitWord(iType(0x13, 1, dst, idx, 3))       // slli dst, idx, 3 (8-byte elements)
		e.emitWord(rType(0x33, 0, dst, dst, base, 0)) // add dst, dst, base
	case ir.OpFieldPtr:
		base := regOf(alloc, inst.Operands[0])
		e.emitWord(iType(0x13, 0, dst, base, int32(inst.FieldIdx*8))) // addi dst, base, FieldIdx*8
	case ir.OpNeg:
		a := regOf(alloc, inst.Operands[0])
		e.emitWord(rType(0x33, 0, dst, X0, a, 0x20)) // sub dst, x0, a
	case ir.OpDiv, ir.OpMod:
		// beq rs2,zero,.void; div/rem rd,rs1,rs2 (spec §4.6's divide-by-zero guard).
		a, b := regOf(alloc, inst.Operands[0]), regOf(alloc, inst.Operands[1])
		void := asmutil.NewLabel("divzero_void")
		e.buf.Emit(0, 0, 0, 0) // placeholder word for beq; patched via fixup below
		e.patchLastBType(0x63, 0, b, X0, void)
		funct3 := uint32(4) // div
		if inst.Op == ir.OpMod {
			funct3 = 6 // rem
		}
		e.emitWord(rType(0x33, funct3, dst, a, b, 0x01))
		done := asmutil.NewLabel("divzero_done")
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(X0, done)
		e.buf.BindLabel(void)
		e.emitWord(iType(0x13, 0, dst, X0, -1)) // addi dst, x0, -1 (VOID literal)
		e.buf.BindLabel(done)
	case ir.OpConst:
		if inst.ConstIdx < 0 || inst.ConstIdx >= len(mod.Constants) {
			return fmt.Errorf("riscv: const index %d out of range", inst.ConstIdx)
		}
		if err := e.emitLoadConst(dst, mod.Constants[inst.ConstIdx]); err != nil {
			return err
		}
	case ir.OpPhi:
		// Resolved by resolvePhis at the end of each predecessor block.
	case ir.OpCall:
		for i, arg := range inst.Operands {
			if i >= len(RegisterFile.ArgRegs) {
				break // spilled call arguments beyond the register file are not supported
			}
			a := regOf(alloc, arg)
			e.emitWord(iType(0x13, 0, uint32(RegisterFile.ArgRegs[i]), a, 0)) // mv argreg, a
		}
		lbl, ok := funcLabels[inst.FuncName]
		if !ok {
			return fmt.Errorf("riscv: call to undefined function %q", inst.FuncName)
		}
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(RA, lbl) // jal ra, label
		if dst != A0 {
			e.emitWord(iType(0x13, 0, dst, A0, 0)) // mv dst, a0
		}
	case ir.OpVoidProp:
		a := regOf(alloc, inst.Operands[0])
		e.emitVoidTest(T0, a)
		notVoid := asmutil.NewLabel("voidprop_ok")
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 0, T0, X0, notVoid) // beq t0, zero, notVoid
		e.emitWord(iType(0x13, 0, A0, a, 0))        // mv a0, a
		e.emitEpilogue(frame)                       // CIR_VOID_PROP: early-return VOID from the enclosing function
		e.buf.BindLabel(notVoid)
		e.emitWord(iType(0x13, 0, dst, a, 0)) // mv dst, a
	case ir.OpVoidTest:
		a := regOf(alloc, inst.Operands[0])
		e.emitVoidTest(dst, a)
	case ir.OpVoidAssert:
		a := regOf(alloc, inst.Operands[0])
		e.emitVoidTest(T0, a)
		ok := asmutil.NewLabel("assert_ok")
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 0, T0, X0, ok) // beq t0, zero, ok
		e.emitWord(ebreakWord)
		e.buf.BindLabel(ok)
		e.emitWord(iType(0x13, 0, dst, a, 0)) // addi dst, a, 0 (mv)
	case ir.OpVoidCoalesce:
		a := regOf(alloc, inst.Operands[0])
		d := regOf(alloc, inst.Operands[1])
		e.emitVoidTest(T0, a)
		useDefault := asmutil.NewLabel("coalesce_default")
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 1, T0, X0, useDefault) // bne t0, zero, useDefault
		e.emitWord(iType(0x13, 0, dst, a, 0))
		done := asmutil.NewLabel("coalesce_done")
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(X0, done)
		e.buf.BindLabel(useDefault)
		e.emitWord(iType(0x13, 0, dst, d, 0))
		e.buf.BindLabel(done)
	case ir.OpCapLoad:
		// Three sequential capability checks — generation match, offset
		// within length, permission mask contains Read — each branching to
		// a shared VOID tail (spec §4.6); the success path loads the value
		// at cap.Base+offset. s11 holds the live generation counter the
		// runtime maintains for the slot the capability was carved from.
		capReg := regOf(alloc, inst.Operands[0])
		offReg := regOf(alloc, inst.Operands[1])
		fail := asmutil.NewLabel("capload_fail")
		done := asmutil.NewLabel("capload_done")

		e.emitWord(iType(0x03, 3, T1, capReg, capOffGen)) // ld t1, gen(cap)
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 1, T1, S11, fail) // bne t1, s11, fail

		e.emitWord(iType(0x03, 3, T1, capReg, capOffLen)) // ld t1, len(cap)
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 7, offReg, T1, fail) // bgeu offReg, t1, fail (offset >= length)

		e.emitWord(iType(0x03, 3, T1, capReg, capOffPerm)) // ld t1, perm(cap)
		e.emitWord(iType(0x13, 7, T1, T1, permRead))        // andi t1, t1, Read
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 0, T1, X0, fail) // beq t1, zero, fail

		e.emitWord(iType(0x03, 3, dst, capReg, capOffBase)) // ld dst, base(cap)
		e.emitWord(rType(0x33, 0, dst, dst, offReg, 0x00))  // add dst, dst, offReg
		e.emitWord(iType(0x03, 3, dst, dst, 0))             // ld dst, 0(dst)
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(X0, done)
		e.buf.BindLabel(fail)
		e.emitWord(iType(0x13, 0, dst, X0, -1)) // addi dst, x0, -1 (VOID)
		e.buf.BindLabel(done)
	case ir.OpCapStore:
		// Same three checks gating a write, using t1/t2 as address scratch
		// since CapStore defines no result register (spec: "a failed check
		// yields ... a no-op silent drop for stores").
		capReg := regOf(alloc, inst.Operands[0])
		offReg := regOf(alloc, inst.Operands[1])
		valReg := regOf(alloc, inst.Operands[2])
		fail := asmutil.NewLabel("capstore_fail")

		e.emitWord(iType(0x03, 3, T1, capReg, capOffGen))
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 1, T1, S11, fail)

		e.emitWord(iType(0x03, 3, T1, capReg, capOffLen))
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 7, offReg, T1, fail)

		e.emitWord(iType(0x03, 3, T1, capReg, capOffPerm))
		e.emitWord(iType(0x13, 7, T1, T1, permWrite))
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 0, T1, X0, fail)

		e.emitWord(iType(0x03, 3, T2, capReg, capOffBase)) // t2 = cap.Base
		e.emitWord(rType(0x33, 0, T2, T2, offReg, 0x00))   // t2 += offset
		e.emitWord(sType(0x23, 3, T2, valReg, 0))          // sd val, 0(t2)
		e.buf.BindLabel(fail)
	case ir.OpSubstrateEnter:
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(RA, e.substrateEnterLbl)
	case ir.OpSubstrateExit:
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(RA, e.substrateExitLbl)
	case ir.OpChrononYield:
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(RA, e.chrononYieldLbl)
	default:
		return fmt.Errorf("riscv: unsupported op %s", inst.Op)
	}
	return nil
}

// emitLoadConst materializes a pooled constant's resolved value into dst.
func (e *Emitter) emitLoadConst(dst uint32, c ir.Constant) error {
	switch v := c.Value.(type) {
	case int64:
		e.emitLoadImm64(dst, uint64(v))
		return nil
	case uint64:
		e.emitLoadImm64(dst, v)
		return nil
	case bool:
		var u uint64
		if v {
			u = 1
		}
		e.emitLoadImm64(dst, u)
		return nil
	default:
		return fmt.Errorf("riscv: constant of type %T is not representable in a single register", v)
	}
}

// emitLoadImm32 materializes a 32-bit signed value via the standard
// lui+addi "li" expansion.
func (e *Emitter) emitLoadImm32(dst uint32, v int32) {
	hi := (v + 0x800) >> 12
	lo := v - (hi << 12)
	if hi != 0 {
		e.emitWord(uType(0x37, dst, hi)) // lui dst, hi
		if lo != 0 {
			e.emitWord(iType(0x13, 0, dst, dst, lo)) // addi dst, dst, lo
		}
	} else {
		e.emitWord(iType(0x13, 0, dst, X0, lo)) // addi dst, x0, lo
	}
}

// emitLoadImm64 materializes an arbitrary 64-bit value into dst, splicing a
// separately-built high half in via shift-and-or when it doesn't fit a
// 32-bit immediate (spec §4.6's "wide-constant sequence"). t1 is clobbered.
func (e *Emitter) emitLoadImm64(dst uint32, v uint64) {
	sv := int64(v)
	if sv >= -2048 && sv <= 2047 {
		e.emitWord(iType(0x13, 0, dst, X0, int32(sv))) // addi dst, x0, v
		return
	}
	if sv >= -(1<<31) && sv < (1<<31) {
		e.emitLoadImm32(dst, int32(sv))
		return
	}
	hi := uint32(v >> 32)
	lo := uint32(v)
	e.emitLoadImm32(dst, int32(hi))
	e.emitWord(iType(0x13, 1, dst, dst, 32)) // slli dst, dst, 32
	e.emitLoadImm32(T1, int32(lo))
	e.emitWord(iType(0x13, 1, T1, T1, 32)) // slli t1, t1, 32
	e.emitWord(iType(0x13, 5, T1, T1, 32)) // srli t1, t1, 32 (zero-extend lo half)
	e.emitWord(rType(0x33, 6, dst, dst, T1, 0x00))
}

// patchLastBType reserves the 4 placeholder bytes just emitted as a B-type
// branch instruction, resolved once label's offset is known.
func (e *Emitter) patchLastBType(opcode, funct3, rs1, rs2 uint32, label *asmutil.Label) {
	off := e.buf.Len() - 4
	e.buf.FixupCustom(off, label, func(disp int32) [4]byte {
		word := bType(opcode, funct3, rs1, rs2, disp)
		var out [4]byte
		binary.LittleEndian.PutUint32(out[:], word)
		return out
	})
}

// patchLastJType reserves the 4 placeholder bytes just emitted as a
// `jal rd, label` instruction (rd = x0 for an unconditional jump, ra for a
// call).
func (e *Emitter) patchLastJType(rd uint32, label *asmutil.Label) {
	off := e.buf.Len() - 4
	e.buf.FixupCustom(off, label, func(disp int32) [4]byte {
		word := jType(rd, disp)
		var out [4]byte
		binary.LittleEndian.PutUint32(out[:], word)
		return out
	})
}

func jType(rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>20&1)<<31 | (u>>1&0x3FF)<<21 | (u>>11&1)<<20 | (u>>12&0xFF)<<12 | rd<<7 | 0x6F
}

func (e *Emitter) emitTerminator(term ir.Terminator, alloc *regalloc.Result, labels map[string]*asmutil.Label, frame uint32) error {
	switch t := term.(type) {
	case *ir.TermReturn:
		if t.Value != nil {
			if r := regOf(alloc, *t.Value); r != A0 {
				e.emitWord(iType(0x13, 0, A0, r, 0)) // mv a0, r
			}
		}
		e.emitEpilogue(frame)
	case *ir.TermBranch:
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(X0, labels[t.Target.Label])
	case *ir.TermCondBranch:
		// beq cond, zero, FalseBlk; fallthrough jal x0, TrueBlk.
		cond := regOf(alloc, t.Cond)
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastBType(0x63, 0, cond, X0, labels[t.FalseBlk.Label])
		e.buf.Emit(0, 0, 0, 0)
		e.patchLastJType(X0, labels[t.TrueBlk.Label])
	case *ir.TermHalt:
		e.emitWord(ebreakWord)
	default:
		return fmt.Errorf("riscv: unsupported terminator %T", term)
	}
	return nil
}
