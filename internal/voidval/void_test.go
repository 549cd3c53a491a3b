// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package voidval

import "testing"

func TestSentinelWidths(t *testing.T) {
	cases := []struct {
		w    Width
		want uint64
	}{
		{W8, 0xFF},
		{W16, 0xFFFF},
		{W32, 0xFFFFFFFF},
		{W64, 0xFFFFFFFFFFFFFFFF},
	}
	for _, c := range cases {
		if got := Sentinel(c.w); got != c.want {
			t.Errorf("Sentinel(%v) = %#x, want %#x", c.w, got, c.want)
		}
		if !IsSentinel(c.want, c.w) {
			t.Errorf("IsSentinel(%#x, %v) = false, want true", c.want, c.w)
		}
	}
}

func TestIsSentinelRejectsNonSentinel(t *testing.T) {
	if IsSentinel(0x1234, W16) {
		t.Fatalf("0x1234 should not be a W16 sentinel")
	}
}

func TestReg64VoidBit(t *testing.T) {
	v := Reg64VoidOf(42)
	if !IsReg64Void(v) {
		t.Fatalf("Reg64VoidOf result should have bit 63 set")
	}
	if v&^Reg64VoidMask != 42 {
		t.Fatalf("low 63 bits should be preserved, got %#x", v&^Reg64VoidMask)
	}
	if IsReg64Void(42) {
		t.Fatalf("42 should not look like VOID")
	}
}

func TestVbitString(t *testing.T) {
	if False.IsVoid() || True.IsVoid() {
		t.Fatalf("False/True must not report IsVoid")
	}
	if !Void.IsVoid() {
		t.Fatalf("Void must report IsVoid")
	}
	if FromBool(true) != True || FromBool(false) != False {
		t.Fatalf("FromBool mismatch")
	}
}
