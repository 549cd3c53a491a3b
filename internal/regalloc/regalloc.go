// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package regalloc implements the linear-scan register allocator described
// in spec §4.5. It is architecture-agnostic: callers supply a RegisterFile
// naming the physical registers available on their target ISA.
package regalloc

import (
	"sort"

	"github.com/seraphlang/seraph/internal/ir"
)

// RegisterFile names a target's allocatable and argument registers. Caller-
// and callee-saved registers are tracked separately because the allocator
// prefers caller-saved registers for short-lived values, cutting down on
// prologue/epilogue saves (spec §4.5's "allocatable caller-saved,
// allocatable callee-saved, and reserved" partition).
type RegisterFile struct {
	CallerSaved []int
	CalleeSaved []int
	ArgRegs     []int // platform argument registers, in order
}

func (rf RegisterFile) allocatable() []int {
	out := make([]int, 0, len(rf.CallerSaved)+len(rf.CalleeSaved))
	out = append(out, rf.CallerSaved...)
	out = append(out, rf.CalleeSaved...)
	return out
}

// Location is where a vreg lives after allocation: either a physical
// register (InReg true) or a frame (stack) slot.
type Location struct {
	InReg     bool
	Register  int
	StackSlot int // index into the frame's spill area; meaningful iff !InReg
}

// Result is the per-function output of Allocate: a value_location map
// (spec §4.5) plus how many spill slots the frame must reserve.
type Result struct {
	Locations     map[int]Location // vreg ID -> Location
	NumSpillSlots int
}

// interval is a vreg's live range [Start, End] in flat instruction-index
// space, per spec §4.5.
type interval struct {
	vregID int
	typ    ir.TypeRef
	start  int
	end    int
}

// Allocate runs linear-scan register allocation over fn (spec §4.5):
// build live intervals, sort by start, and on each interval open expire
// expired actives before assigning a free register or spilling.
func Allocate(fn *ir.Function, regs RegisterFile) *Result {
	order := flatten(fn)
	intervals := buildIntervals(fn, order)

	res := &Result{Locations: make(map[int]Location)}

	for i, p := range fn.Params {
		if i < len(regs.ArgRegs) {
			res.Locations[p.ID] = Location{InReg: true, Register: regs.ArgRegs[i]}
		} else {
			res.Locations[p.ID] = Location{InReg: false, StackSlot: res.NumSpillSlots}
			res.NumSpillSlots++
		}
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })

	free := regs.allocatable()
	var active []interval
	inUse := make(map[int]int) // register -> vreg ID currently holding it

	freeReg := func() (int, bool) {
		for i, r := range free {
			if _, used := inUse[r]; !used {
				_ = i
				return r, true
			}
		}
		return 0, false
	}

	expireOld := func(start int) {
		kept := active[:0]
		for _, iv := range active {
			if iv.end < start {
				if loc, ok := res.Locations[iv.vregID]; ok && loc.InReg {
					delete(inUse, loc.Register)
				}
				continue
			}
			kept = append(kept, iv)
		}
		active = kept
	}

	for _, cur := range intervals {
		if _, already := res.Locations[cur.vregID]; already {
			continue // parameter, pre-assigned above
		}
		expireOld(cur.start)

		if r, ok := freeReg(); ok {
			res.Locations[cur.vregID] = Location{InReg: true, Register: r}
			inUse[r] = cur.vregID
			active = append(active, cur)
			continue
		}

		// No free register: spill either the active interval with the
		// furthest end, or the current interval, whichever ends later
		// (spec §4.5).
		spillIdx, furthest := -1, cur.end
		for i, a := range active {
			if a.end > furthest {
				furthest = a.end
				spillIdx = i
			}
		}
		if spillIdx >= 0 {
			loser := active[spillIdx]
			loc := res.Locations[loser.vregID]
			res.Locations[loser.vregID] = Location{InReg: false, StackSlot: res.NumSpillSlots}
			res.NumSpillSlots++
			res.Locations[cur.vregID] = Location{InReg: true, Register: loc.Register}
			inUse[loc.Register] = cur.vregID
			active[spillIdx] = cur
		} else {
			res.Locations[cur.vregID] = Location{InReg: false, StackSlot: res.NumSpillSlots}
			res.NumSpillSlots++
		}
	}

	return res
}

// flatten produces the flat sequential instruction numbering in block
// layout order that spec §4.5 requires: "build a flat sequential numbering
// of instructions in block layout order."
func flatten(fn *ir.Function) []*ir.Instruction {
	var out []*ir.Instruction
	for _, block := range fn.Blocks {
		out = append(out, block.Instructions...)
	}
	return out
}

// hasResult reports whether op defines a result vreg. A handful of ops
// (capability store, substrate markers, the chronon yield point) are pure
// side-effecting markers with no destination value.
func hasResult(op ir.Op) bool {
	switch op {
	case ir.OpCapStore, ir.OpSubstrateEnter, ir.OpSubstrateExit, ir.OpChrononYield:
		return false
	default:
		return true
	}
}

// buildIntervals computes, for each vreg, the live interval [start, end]
// where start is the defining instruction's flat index and end is the
// index of its last use (including terminator uses).
func buildIntervals(fn *ir.Function, order []*ir.Instruction) []interval {
	starts := make(map[int]int)
	ends := make(map[int]int)
	types := make(map[int]ir.TypeRef)

	for idx, inst := range order {
		if hasResult(inst.Op) {
			if _, ok := starts[inst.Result.ID]; !ok {
				starts[inst.Result.ID] = idx
				types[inst.Result.ID] = inst.Type
			}
		}
		for _, op := range inst.Operands {
			if e, ok := ends[op.ID]; !ok || idx > e {
				ends[op.ID] = idx
			}
		}
	}

	lastIdx := len(order)
	for _, block := range fn.Blocks {
		switch term := block.Terminator.(type) {
		case *ir.TermCondBranch:
			ends[term.Cond.ID] = lastIdx
		case *ir.TermReturn:
			if term.Value != nil {
				ends[term.Value.ID] = lastIdx
			}
		}
	}

	var out []interval
	for id, start := range starts {
		end, ok := ends[id]
		if !ok || end < start {
			end = start
		}
		out = append(out, interval{vregID: id, typ: types[id], start: start, end: end})
	}
	return out
}
