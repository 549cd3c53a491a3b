// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package effect

import "testing"

func TestUnionIsOr(t *testing.T) {
	got := NETWORK.Union(TIMER)
	if got != NETWORK|TIMER {
		t.Fatalf("got %v", got)
	}
}

func TestSubset(t *testing.T) {
	if !NETWORK.Subset(NETWORK | TIMER) {
		t.Fatalf("NETWORK should be a subset of NETWORK|TIMER")
	}
	if IO.Subset(NETWORK | TIMER) {
		t.Fatalf("IO should not be a subset of NETWORK|TIMER")
	}
	if !NONE.Subset(NONE) {
		t.Fatalf("NONE should be a subset of itself")
	}
	if !ALL.Subset(ALL) {
		t.Fatalf("ALL should be a subset of itself")
	}
}

func TestFromNames(t *testing.T) {
	s, unknown := FromNames([]string{"network", "TIMER"})
	if len(unknown) != 0 {
		t.Fatalf("unexpected unknown names: %v", unknown)
	}
	if !s.Has(NETWORK) || !s.Has(TIMER) || s.Has(IO) {
		t.Fatalf("got %v", s)
	}
}

func TestFromNamesUnknown(t *testing.T) {
	_, unknown := FromNames([]string{"BOGUS"})
	if len(unknown) != 1 || unknown[0] != "BOGUS" {
		t.Fatalf("got %v", unknown)
	}
}

func TestStringRendering(t *testing.T) {
	if NONE.String() != "NONE" {
		t.Fatalf("got %q", NONE.String())
	}
	if ALL.String() != "ALL" {
		t.Fatalf("got %q", ALL.String())
	}
	if (NETWORK | TIMER).String() != "NETWORK|TIMER" {
		t.Fatalf("got %q", (NETWORK | TIMER).String())
	}
}
