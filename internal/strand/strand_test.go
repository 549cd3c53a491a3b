// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package strand

import (
	"testing"

	"github.com/seraphlang/seraph/internal/capability"
)

func noopEntry(arg interface{}) int { return 0 }

func TestLifecycleTransitions(t *testing.T) {
	s := NewScheduler()
	st := s.Create(nil, noopEntry, nil)
	if st.State != Nascent {
		t.Fatalf("expected NASCENT, got %s", st.State)
	}
	if err := s.Start(st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.State != Ready {
		t.Fatalf("expected READY, got %s", st.State)
	}
	running, ok := s.Schedule()
	if !ok || running.State != Running {
		t.Fatalf("expected RUNNING, got %v ok=%v", running, ok)
	}
	if err := s.Yield(running); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running.State != Ready {
		t.Fatalf("expected READY after yield, got %s", running.State)
	}
	if running.Chronon != 1 {
		t.Fatalf("expected chronon ticked to 1, got %d", running.Chronon)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	s := NewScheduler()
	st := s.Create(nil, noopEntry, nil)
	if err := s.Yield(st); err == nil {
		t.Fatalf("expected error yielding a NASCENT strand")
	}
}

func TestExitSetsCodeAndTerminated(t *testing.T) {
	s := NewScheduler()
	st := s.Create(nil, noopEntry, nil)
	s.Start(st)
	running, _ := s.Schedule()
	if err := s.Exit(running, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running.State != Terminated || running.ExitCode != 7 {
		t.Fatalf("expected TERMINATED with code 7, got %s / %d", running.State, running.ExitCode)
	}
}

func TestGrantMovesCapabilityAndVoidsSource(t *testing.T) {
	s := NewScheduler()
	a := s.Create(nil, noopEntry, nil)
	b := s.Create(nil, noopEntry, nil)
	a.Store(0, capability.Capability{Length: 16, Permissions: capability.Read})

	if err := Grant(a, b, 0, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Caps[0].Status != SlotVoid {
		t.Fatalf("expected source slot VOID after grant, got %v", a.Caps[0].Status)
	}
	if b.Caps[1].Status != SlotOwned {
		t.Fatalf("expected destination slot OWNED after grant, got %v", b.Caps[1].Status)
	}
}

func TestLendThenTimeoutVoidsBorrowedSlot(t *testing.T) {
	s := NewScheduler()
	a := s.Create(nil, noopEntry, nil)
	b := s.Create(nil, noopEntry, nil)
	a.Store(3, capability.Capability{Length: 16, Permissions: capability.Read})

	if err := Lend(a, b, 3, 3, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Caps[3].Status != SlotLent {
		t.Fatalf("expected lender slot LENT, got %v", a.Caps[3].Status)
	}
	if b.Caps[3].Status != SlotBorrowed || b.Caps[3].LenderID != a.ID {
		t.Fatalf("expected borrower slot BORROWED from lender, got %+v", b.Caps[3])
	}

	b.Chronon = 20
	b.ProcessLends()
	if b.Caps[3].Status != SlotVoid {
		t.Fatalf("expected expired borrowed slot to VOID, got %v", b.Caps[3].Status)
	}

	a.Revoke(3)
	if a.Caps[3].Status != SlotOwned {
		t.Fatalf("expected revoked slot OWNED again, got %v", a.Caps[3].Status)
	}
}

func TestJoinRefusesDeadlock(t *testing.T) {
	s := NewScheduler()
	a := s.Create(nil, noopEntry, nil)
	b := s.Create(nil, noopEntry, nil)
	s.Start(a)
	s.Start(b)
	runningA, _ := s.Schedule()

	// b waits on a first.
	tb := b.ID
	b.State = Waiting
	b.WaitingOn = &runningA.ID

	if err := s.Join(runningA, b); err != ErrWouldDeadlock {
		t.Fatalf("expected deadlock error, got %v", err)
	}
	_ = tb
}

func TestMutexAcquireReleaseTransfersOwnership(t *testing.T) {
	s := NewScheduler()
	a := s.Create(nil, noopEntry, nil)
	b := s.Create(nil, noopEntry, nil)
	s.Start(a)
	s.Start(b)
	runningA, _ := s.Schedule()

	m := NewMutex()
	if err := s.MutexAcquire(runningA, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Holder == nil || *m.Holder != runningA.ID {
		t.Fatalf("expected a to hold the mutex")
	}

	b.State = Running
	if err := s.MutexAcquire(b, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State != Blocked {
		t.Fatalf("expected b BLOCKED on contended mutex, got %s", b.State)
	}

	s.MutexRelease(m)
	if m.Holder == nil || *m.Holder != b.ID {
		t.Fatalf("expected ownership transferred directly to b, got %+v", m.Holder)
	}
	if b.State != Ready {
		t.Fatalf("expected b woken to READY, got %s", b.State)
	}
}
