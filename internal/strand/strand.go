// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package strand implements the capability-isolated cooperative Strand
// scheduler (spec §4.7): a single thread of control per Scheduler, strands
// transitioning NASCENT→READY→RUNNING→{BLOCKED,WAITING}→TERMINATED, and a
// per-strand capability table supporting store/grant/lend/revoke/return.
package strand

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"github.com/seraphlang/seraph/internal/arena"
	"github.com/seraphlang/seraph/internal/capability"
)

// State is a Strand's lifecycle state (spec §4.7's valid transition table).
type State uint8

const (
	Nascent State = iota
	Ready
	Running
	Blocked
	Waiting
	Terminated
)

func (s State) String() string {
	switch s {
	case Nascent:
		return "nascent"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Waiting:
		return "waiting"
	case Terminated:
		return "terminated"
	default:
		return "state(?)"
	}
}

// SlotStatus is a capability-table slot's occupancy state.
type SlotStatus uint8

const (
	SlotVoid SlotStatus = iota
	SlotOwned
	SlotLent
	SlotBorrowed
)

// capTableSize is the fixed number of capability slots every Strand's table
// carries (spec §4.7: "a fixed-size capability table").
const capTableSize = 64

// Slot is one entry in a Strand's capability table.
type Slot struct {
	Cap         capability.Capability
	Status      SlotStatus
	LenderID    ID
	TimeoutTick uint64
}

// ID identifies a Strand, unique within its owning Scheduler.
type ID uint64

// ErrInvalidTransition is returned by state-changing methods when the
// current state forbids the requested transition (spec: "anything else is
// a no-op plus diagnostic").
var ErrInvalidTransition = errors.New("strand: invalid state transition")

// ErrSlotNotOwned is returned by grant/lend when src is not OWNED.
var ErrSlotNotOwned = errors.New("strand: source slot is not OWNED")

// ErrWouldDeadlock is returned by a wait operation that would complete a
// waiting_on cycle back to the caller.
var ErrWouldDeadlock = errors.New("strand: wait would deadlock")

// ExecStats carries the Galactic hyper-dual quantities the predictor
// package consumes (spec §4.7's Galactic_Exec_Stats), one per tracked
// metric (exec time, CPU usage, wait time, response time).
type ExecStats struct {
	ExecTime     [4]float64 // (primal, dx, dy, dz) tangent-carrying quadruple
	CPUUsage     [4]float64
	WaitTime     [4]float64
	ResponseTime [4]float64
	Priority     int
	AccumDelta   float64
	LastAdjust   uint64 // chronon of the last priority change (cooldown gate)
}

// Strand is a capability-isolated cooperative thread record (spec §4.7).
type Strand struct {
	ID    ID
	State State

	Band *arena.Arena // private bump arena ("band")

	Caps [capTableSize]Slot

	StackBase uint64
	StackSize uint64
	StackCap  capability.Capability

	Entry    func(arg interface{}) int
	Arg      interface{}
	ExitCode int

	Chronon         uint64
	YieldCount      uint64
	ContextSwitches uint64

	WaitingOn      *ID // target this strand is WAITING on (strand join or capability drain)
	BlockedOnMutex *Mutex

	Stats ExecStats
}

// Mutex is a lock with a holder and a FIFO wait queue: releasing transfers
// ownership directly to the head of the wait queue (avoiding the
// thundering-herd problem). Acquiring records the holder only; no capability
// is written into the holder's capability table.
type Mutex struct {
	Holder *ID
	queue  []ID
}

// NewMutex returns an unheld mutex.
func NewMutex() *Mutex { return &Mutex{} }

// Scheduler runs one Strand at a time to completion of a quantum
// (cooperative, single-threaded per spec §5's scheduling model).
type Scheduler struct {
	strands map[ID]*Strand
	nextID  ID
	current *ID // g_current_strand, thread-local in spirit (one Scheduler per goroutine)
	ready   []ID
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{strands: make(map[ID]*Strand)}
}

// Create allocates a new Strand in state NASCENT (spec: "create() →
// NASCENT").
func (s *Scheduler) Create(band *arena.Arena, entry func(arg interface{}) int, arg interface{}) *Strand {
	id := s.nextID
	s.nextID++
	st := &Strand{ID: id, State: Nascent, Band: band, Entry: entry, Arg: arg}
	s.strands[id] = st
	return st
}

// Start transitions a NASCENT strand to READY.
func (s *Scheduler) Start(st *Strand) error {
	if st.State != Nascent {
		return fmt.Errorf("%w: start requires NASCENT, got %s", ErrInvalidTransition, st.State)
	}
	st.State = Ready
	s.ready = append(s.ready, st.ID)
	return nil
}

// Schedule picks the next READY strand and transitions it to RUNNING,
// becoming the current strand.
func (s *Scheduler) Schedule() (*Strand, bool) {
	for len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		st, ok := s.strands[id]
		if !ok || st.State != Ready {
			continue
		}
		st.State = Running
		cur := id
		s.current = &cur
		st.ContextSwitches++
		return st, true
	}
	return nil, false
}

// Yield transitions the running strand back to READY and ticks its
// chronon by one (spec: "yield() RUNNING → READY (and ticks chronon by
// 1)").
func (s *Scheduler) Yield(st *Strand) error {
	if st.State != Running {
		return fmt.Errorf("%w: yield requires RUNNING, got %s", ErrInvalidTransition, st.State)
	}
	st.State = Ready
	st.Chronon++
	st.YieldCount++
	s.ready = append(s.ready, st.ID)
	s.current = nil
	return nil
}

// Wake transitions a BLOCKED or WAITING strand back to READY.
func (s *Scheduler) Wake(st *Strand) error {
	if st.State != Blocked && st.State != Waiting {
		return fmt.Errorf("%w: wake requires BLOCKED or WAITING, got %s", ErrInvalidTransition, st.State)
	}
	st.State = Ready
	st.WaitingOn = nil
	st.BlockedOnMutex = nil
	s.ready = append(s.ready, st.ID)
	return nil
}

// Exit transitions the running strand to TERMINATED with the given code
// (spec: "entry returns or exit(code) → TERMINATED").
func (s *Scheduler) Exit(st *Strand, code int) error {
	if st.State != Running {
		return fmt.Errorf("%w: exit requires RUNNING, got %s", ErrInvalidTransition, st.State)
	}
	st.State = Terminated
	st.ExitCode = code
	if s.current != nil && *s.current == st.ID {
		s.current = nil
	}
	return nil
}

// waitingChainReaches walks the waiting_on chain from start and reports
// whether it reaches target (spec §4.7's deadlock check for join-waits;
// mutex waits use waitingChainReachesMutexHolder, which walks the holder
// chain instead).
func waitingChainReaches(strands map[ID]*Strand, start, target ID) bool {
	seen := mapset.NewThreadUnsafeSet()
	cur := start
	for {
		if cur == target {
			return true
		}
		if seen.Contains(cur) {
			return false // already-visited chain: no path to target, distinct cycle
		}
		seen.Add(cur)
		st, ok := strands[cur]
		if !ok || st.WaitingOn == nil {
			return false
		}
		cur = *st.WaitingOn
	}
}

// Join blocks the calling strand (waiter) on target's termination,
// refusing if the wait would deadlock (target's waiting_on chain already
// reaches waiter).
func (s *Scheduler) Join(waiter, target *Strand) error {
	if target.State == Terminated {
		return nil // already done; no suspension needed
	}
	if waitingChainReaches(s.strands, target.ID, waiter.ID) {
		return ErrWouldDeadlock
	}
	if waiter.State != Running {
		return fmt.Errorf("%w: join requires caller RUNNING, got %s", ErrInvalidTransition, waiter.State)
	}
	waiter.State = Waiting
	t := target.ID
	waiter.WaitingOn = &t
	return nil
}

// MutexAcquire records caller as the holder if the mutex is free (no
// capability is written into caller's table); otherwise blocks caller and
// enqueues it on the mutex's wait queue, refusing if the holder chain would
// deadlock.
func (s *Scheduler) MutexAcquire(caller *Strand, m *Mutex) error {
	if m.Holder == nil {
		id := caller.ID
		m.Holder = &id
		return nil
	}
	if waitingChainReachesMutexHolder(s.strands, *m.Holder, caller.ID) {
		return ErrWouldDeadlock
	}
	if caller.State != Running {
		return fmt.Errorf("%w: mutex_acquire requires caller RUNNING, got %s", ErrInvalidTransition, caller.State)
	}
	caller.State = Blocked
	caller.BlockedOnMutex = m
	m.queue = append(m.queue, caller.ID)
	return nil
}

func waitingChainReachesMutexHolder(strands map[ID]*Strand, holder, target ID) bool {
	seen := mapset.NewThreadUnsafeSet()
	cur := holder
	for {
		if cur == target {
			return true
		}
		if seen.Contains(cur) {
			return false
		}
		seen.Add(cur)
		st, ok := strands[cur]
		if !ok || st.BlockedOnMutex == nil || st.BlockedOnMutex.Holder == nil {
			return false
		}
		cur = *st.BlockedOnMutex.Holder
	}
}

// MutexRelease clears m's holder slot and transfers ownership directly to
// the head of the wait queue, avoiding the thundering-herd problem (spec
// §4.7).
func (s *Scheduler) MutexRelease(m *Mutex) {
	if len(m.queue) == 0 {
		m.Holder = nil
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	m.Holder = &next
	if st, ok := s.strands[next]; ok {
		st.State = Ready
		st.BlockedOnMutex = nil
		s.ready = append(s.ready, next)
	}
}

// Store places cap as OWNED in slot (spec: "store(slot, cap): places a
// capability as OWNED").
func (st *Strand) Store(slot int, cap capability.Capability) {
	st.Caps[slot] = Slot{Cap: cap, Status: SlotOwned}
}

// Grant moves an OWNED capability from src in st's table to dst in other's
// table, VOIDing src (spec: "moves OWNED to other[dst] and VOIDs src").
func Grant(st, other *Strand, src, dst int) error {
	if st.Caps[src].Status != SlotOwned {
		return ErrSlotNotOwned
	}
	other.Caps[dst] = Slot{Cap: st.Caps[src].Cap, Status: SlotOwned}
	st.Caps[src] = Slot{Status: SlotVoid}
	return nil
}

// Lend makes src LENT in st's table and creates a BORROWED mirror at dst in
// other's table, carrying the lender's id and expiry tick (spec §4.7).
func Lend(st, other *Strand, src, dst int, timeoutTick uint64) error {
	if st.Caps[src].Status != SlotOwned {
		return ErrSlotNotOwned
	}
	original := st.Caps[src]
	st.Caps[src] = Slot{Cap: original.Cap, Status: SlotLent}
	other.Caps[dst] = Slot{Cap: original.Cap, Status: SlotBorrowed, LenderID: st.ID, TimeoutTick: timeoutTick}
	return nil
}

// Revoke returns a LENT slot to OWNED; borrowers' mirrored copies become
// logically invalid from this tick, enforced lazily by ProcessLends (spec:
// "revoke(src): source LENT → OWNED").
func (st *Strand) Revoke(src int) {
	if st.Caps[src].Status == SlotLent {
		st.Caps[src].Status = SlotOwned
	}
}

// Return clears a BORROWED slot to VOID in the borrower's table (spec:
// "return(slot): BORROWED → VOID in the borrower's table").
func (st *Strand) Return(slot int) {
	if st.Caps[slot].Status == SlotBorrowed {
		st.Caps[slot] = Slot{Status: SlotVoid}
	}
}

// ProcessLends walks st's capability table and VOIDs any BORROWED slot
// whose TimeoutTick has passed st's current chronon (spec: "when the
// borrower's chronon advances past it, process_lends VOIDs the slot").
func (st *Strand) ProcessLends() {
	for i := range st.Caps {
		slot := &st.Caps[i]
		if slot.Status == SlotBorrowed && st.Chronon > slot.TimeoutTick {
			*slot = Slot{Status: SlotVoid}
		}
	}
}
