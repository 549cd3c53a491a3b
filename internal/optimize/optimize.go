// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package optimize implements Celestial IR's constant-folding and
// dead-code-elimination passes (spec §4.4).
package optimize

import (
	"encoding/binary"
	"hash"
	"hash/fnv"

	"github.com/holiman/bloomfilter/v2"

	"github.com/seraphlang/seraph/internal/ir"
)

// Run applies every optimization pass to every function in mod, to a fixed
// point, per spec §4.4.
func Run(mod *ir.Module) {
	for _, fn := range mod.Functions {
		ConstantFold(mod, fn)
		DeadCodeEliminate(fn)
	}
}

// ConstantFold walks fn repeatedly, replacing any arithmetic, bitwise, or
// comparison instruction whose operands are all constants with a constant
// load appended to mod's constant pool (spec §4.4).
func ConstantFold(mod *ir.Module, fn *ir.Function) {
	changed := true
	for changed {
		changed = false
		for _, block := range fn.Blocks {
			defs := indexConstDefs(block)
			for i, inst := range block.Instructions {
				if folded, ok := tryFold(mod, inst, defs); ok {
					block.Instructions[i] = folded
					defs[folded.Result.ID] = folded
					changed = true
				}
			}
		}
	}
}

func indexConstDefs(block *ir.Block) map[int]*ir.Instruction {
	defs := make(map[int]*ir.Instruction)
	for _, inst := range block.Instructions {
		if inst.Op == ir.OpConst {
			defs[inst.Result.ID] = inst
		}
	}
	return defs
}

func tryFold(mod *ir.Module, inst *ir.Instruction, defs map[int]*ir.Instruction) (*ir.Instruction, bool) {
	if len(inst.Operands) != 2 {
		return nil, false
	}
	left, ok := constInt(mod, inst.Operands[0], defs)
	if !ok {
		return nil, false
	}
	right, ok := constInt(mod, inst.Operands[1], defs)
	if !ok {
		return nil, false
	}

	var result int64
	switch inst.Op {
	case ir.OpAdd:
		result = left + right
	case ir.OpSub:
		result = left - right
	case ir.OpMul:
		result = left * right
	case ir.OpBitAnd:
		result = left & right
	case ir.OpBitOr:
		result = left | right
	case ir.OpBitXor:
		result = left ^ right
	case ir.OpDiv, ir.OpMod:
		// VOID-on-zero semantics (spec §4.4) are a runtime concern the
		// emitters must still guard; constant folding only applies when
		// the divisor is statically known non-zero.
		if right == 0 {
			return nil, false
		}
		if inst.Op == ir.OpDiv {
			result = left / right
		} else {
			result = left % right
		}
	case ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpLte, ir.OpGt, ir.OpGte:
		holds := map[ir.Op]bool{ir.OpEq: left == right, ir.OpNeq: left != right, ir.OpLt: left < right,
			ir.OpLte: left <= right, ir.OpGt: left > right, ir.OpGte: left >= right}[inst.Op]
		if holds {
			result = 1
		}
	default:
		return nil, false
	}

	idx := len(mod.Constants)
	mod.Constants = append(mod.Constants, ir.Constant{Type: inst.Type, Value: result})
	return &ir.Instruction{Op: ir.OpConst, Result: inst.Result, ConstIdx: idx, Type: inst.Type}, true
}

// constInt resolves v to a constant int64 if it is OpConst-defined and its
// pooled constant holds an int64.
func constInt(mod *ir.Module, v ir.Value, defs map[int]*ir.Instruction) (int64, bool) {
	def, ok := defs[v.ID]
	if !ok || def.Op != ir.OpConst || def.ConstIdx < 0 || def.ConstIdx >= len(mod.Constants) {
		return 0, false
	}
	n, ok := mod.Constants[def.ConstIdx].Value.(int64)
	return n, ok
}

// DeadCodeEliminate removes instructions whose results are unused and that
// have no side effects, iterating to a fixed point (spec §4.4). A bloom
// filter pre-filters the common "definitely unused" case before the
// definitive map lookup, shrinking probe cost on large functions.
func DeadCodeEliminate(fn *ir.Function) {
	changed := true
	for changed {
		changed = false
		uses := countUses(fn)
		liveFilter := buildLiveFilter(uses)

		for _, block := range fn.Blocks {
			alive := block.Instructions[:0]
			for _, inst := range block.Instructions {
				if ir.HasSideEffects(inst.Op) || isLive(inst.Result.ID, uses, liveFilter) {
					alive = append(alive, inst)
					continue
				}
				changed = true
			}
			block.Instructions = alive
		}
	}
}

func countUses(fn *ir.Function) map[int]int {
	uses := make(map[int]int)
	for _, block := range fn.Blocks {
		for _, inst := range block.Instructions {
			for _, op := range inst.Operands {
				uses[op.ID]++
			}
		}
		switch term := block.Terminator.(type) {
		case *ir.TermCondBranch:
			uses[term.Cond.ID]++
		case *ir.TermReturn:
			if term.Value != nil {
				uses[term.Value.ID]++
			}
		}
	}
	return uses
}

// buildLiveFilter inserts every used value ID into a bloom filter sized for
// the use-count map, giving isLive a fast negative test before the
// authoritative map lookup.
func buildLiveFilter(uses map[int]int) *bloomfilter.Filter {
	n := uint64(len(uses))
	if n == 0 {
		n = 1
	}
	filter, err := bloomfilter.New(n*10, 5)
	if err != nil {
		return nil
	}
	for id := range uses {
		filter.Add(bloomHash(id))
	}
	return filter
}

func bloomHash(id int) hash.Hash64 {
	h := fnv.New64a()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))
	h.Write(buf[:])
	return h
}

func isLive(id int, uses map[int]int, filter *bloomfilter.Filter) bool {
	if filter != nil && !filter.Contains(bloomHash(id)) {
		return false
	}
	return uses[id] > 0
}
