// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package substrate

import "testing"

func TestAddressEncodeDecodeRoundTrips(t *testing.T) {
	cases := []struct {
		node, offset uint32
	}{
		{0, 0},
		{1, 1},
		{(1 << 14) - 1, (1 << 32) - 1},
		{42, 1 << 20},
		{8191, 0},
	}
	for _, c := range cases {
		addr, err := AddressEncode(c.node, c.offset)
		if err != nil {
			t.Fatalf("unexpected error encoding (%d, %d): %v", c.node, c.offset, err)
		}
		gotNode, gotOffset := AddressDecode(addr)
		if gotNode != c.node || gotOffset != c.offset {
			t.Fatalf("round trip mismatch: encoded (%d, %d), decoded (%d, %d)", c.node, c.offset, gotNode, gotOffset)
		}
	}
}

func TestAddressEncodeRejectsOutOfRangeNode(t *testing.T) {
	if _, err := AddressEncode(1<<14, 0); err == nil {
		t.Fatalf("expected an error for a node id at the 14-bit boundary")
	}
}

func TestClassString(t *testing.T) {
	for _, c := range []Class{Volatile, AtlasClass, AetherClass} {
		if c.String() == "unknown" {
			t.Fatalf("expected a named string for class %d", c)
		}
	}
}
