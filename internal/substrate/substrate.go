// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package substrate names the runtime collaborators a capability's memory
// class targets (spec glossary: "Substrate: memory class a capability
// targets: Volatile, Atlas, Aether") and implements the one piece of Aether
// structure the compiler emits into without implementing Aether itself: the
// node/offset address encoding (spec §8's bijective address_encode/decode
// property). The Aether NIC protocol, the SBF writer, and driver glue stay
// out of scope (spec §0 Non-goals) — Transactor and NIC below are named
// interfaces a host runtime supplies, not implementations.
//
// Grounded on probe-lang/integration/engine.go's Contract/ExecutionContext/
// ExecutionResult narrow-interface pattern bridging a VM to external chain
// state; here the "chain state" is Atlas/Aether instead.
package substrate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/seraphlang/seraph/internal/voidval"
)

// Class names the memory a capability targets (spec glossary "Substrate").
type Class int

const (
	Volatile Class = iota
	AtlasClass
	AetherClass
)

func (c Class) String() string {
	switch c {
	case Volatile:
		return "volatile"
	case AtlasClass:
		return "atlas"
	case AetherClass:
		return "aether"
	default:
		return "unknown"
	}
}

// Transactor is the subset of internal/atlas.Store a persist block needs:
// begin on entry, commit on successful exit, rollback on a VOID escape
// (spec §4.3 "Effect lowering", §4.8). Named here so internal/strand and a
// future runtime driver can depend on the interface without atlas depending
// back on substrate.
type Transactor interface {
	Begin() (txID uuid.UUID, err error)
	Commit(newRoot uint64) error
	Abort() error
}

// NIC is the Aether distributed-memory NIC primitive a persist/aether block
// needs at entry/exit (spec §0: "treat as external collaborators with named
// interfaces only"). No implementation lives in this module; a host runtime
// supplies one.
type NIC interface {
	// Fetch reads the Aether-addressed word, returning Void on a network
	// miss (spec §7: "VOID flows through ... Atlas/Aether misses").
	Fetch(addr uint64) (uint64, voidval.Vbit)
	// Publish writes the Aether-addressed word.
	Publish(addr uint64, value uint64) voidval.Vbit
}

const (
	nodeBits   = 14
	offsetBits = 32
	nodeMask   = (uint64(1) << nodeBits) - 1
	offsetMask = (uint64(1) << offsetBits) - 1
)

// ErrOutOfRange is returned by AddressEncode when node or offset exceed the
// documented bit ranges (spec §8: n ∈ [0,2^14), o ∈ [0,2^32)).
var ErrOutOfRange = errors.New("substrate: node or offset out of range")

// AddressEncode packs a 14-bit node id and a 32-bit offset into Aether's
// wire address: node occupies the low 14 bits, offset the next 32, per the
// compiler's code-emission tests (spec §8). Bijective with AddressDecode on
// the documented ranges.
func AddressEncode(node uint32, offset uint32) (uint64, error) {
	if uint64(node) > nodeMask {
		return 0, fmt.Errorf("%w: node %d exceeds %d bits", ErrOutOfRange, node, nodeBits)
	}
	return uint64(node) | uint64(offset)<<nodeBits, nil
}

// AddressDecode is the inverse of AddressEncode: decode(encode(n, o)) ==
// (n, o) for every n ∈ [0, 2^14) and o ∈ [0, 2^32) (spec §8).
func AddressDecode(addr uint64) (node uint32, offset uint32) {
	node = uint32(addr & nodeMask)
	offset = uint32((addr >> nodeBits) & offsetMask)
	return node, offset
}

// Contract is a compiled Seraphim module staged for execution against a
// host's Atlas/Aether substrates, generalized from probe-lang's
// integration.Contract (compiled code plus a constant pool; no blockchain
// address, since Seraphim has no account model).
type Contract struct {
	Code      []byte
	Constants []uint64
}

// ExecutionContext supplies the host-side substrate handles a running
// module's persist/aether blocks dispatch into, generalized from
// probe-lang's integration.ExecutionContext (there: blockchain caller/
// origin/gas/block fields; here: the Transactor/NIC pair substrate-enter
// lowering calls through the substrate-context register, spec §4.3/§6).
type ExecutionContext struct {
	Atlas  Transactor
	Aether NIC
	Chronon uint64
}

// ExecutionResult mirrors probe-lang's integration.ExecutionResult, adapted
// to Seraphim's VOID-typed return convention instead of a gas/return-value
// pair.
type ExecutionResult struct {
	ReturnValue uint64
	ReturnVoid  voidval.Vbit
	Logs        []Log
}

// Log is an event a substrate block may emit; Seraphim has no blockchain
// topic/data convention of its own, so this keeps probe-lang's shape with
// the chain-specific Address field dropped.
type Log struct {
	Message string
	Data    []byte
}
