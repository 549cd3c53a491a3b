// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package capability

import (
	"testing"

	"github.com/seraphlang/seraph/internal/voidval"
)

type fakeSource struct{ gen uint64 }

func (f fakeSource) Generation() uint64 { return f.gen }

func TestLoadStoreRoundTrip(t *testing.T) {
	mem := make([]byte, 4096)
	src := fakeSource{gen: 1}
	c := Capability{Base: 0, Length: 64, Generation: 1, Permissions: Read | Write}

	if ok := Store(c, src, mem, 0, []byte{0xAB}); !ok {
		t.Fatalf("store should succeed")
	}
	got, ok := Load(c, src, mem, 0, 1)
	if !ok || got[0] != 0xAB {
		t.Fatalf("load should return the stored byte, got %v ok=%v", got, ok)
	}
}

func TestRevocationOnGenerationMismatch(t *testing.T) {
	// Scenario 3 from spec §8: arena reset -> capability check fails,
	// load returns VOID, and no store is observed.
	mem := make([]byte, 4096)
	mem[0] = 0x42
	src := &mutableSource{gen: 1}
	c := Capability{Base: 0, Length: 64, Generation: 1, Permissions: Read | Write}

	if CheckLoad(c, src, 0, Read) != voidval.True {
		t.Fatalf("capability should be valid before reset")
	}
	src.gen++ // simulate arena.Reset()

	if CheckLoad(c, src, 0, Read) != voidval.Void {
		t.Fatalf("capability should be VOID after generation bump")
	}
	if _, ok := Load(c, src, mem, 0, 1); ok {
		t.Fatalf("load through a stale capability must fail")
	}
	if ok := Store(c, src, mem, 0, []byte{0x99}); ok {
		t.Fatalf("store through a stale capability must silently drop")
	}
	if mem[0] != 0x42 {
		t.Fatalf("dropped store must not mutate memory, got %#x", mem[0])
	}
}

type mutableSource struct{ gen uint64 }

func (m *mutableSource) Generation() uint64 { return m.gen }

func TestOutOfBoundsOffset(t *testing.T) {
	mem := make([]byte, 4096)
	src := fakeSource{gen: 1}
	c := Capability{Base: 0, Length: 16, Generation: 1, Permissions: Read}
	if _, ok := Load(c, src, mem, 100, 1); ok {
		t.Fatalf("out-of-bounds load must fail")
	}
}

func TestPermissionDenied(t *testing.T) {
	mem := make([]byte, 4096)
	src := fakeSource{gen: 1}
	c := Capability{Base: 0, Length: 64, Generation: 1, Permissions: Read}
	if ok := Store(c, src, mem, 0, []byte{1}); ok {
		t.Fatalf("store without Write permission must fail")
	}
}

func TestNarrowIsMonotone(t *testing.T) {
	c := Capability{Base: 0, Length: 100, Generation: 1, Permissions: Read | Write | Execute}
	n := Narrow(c, 10, 20, Read)
	if n.Permissions != Read {
		t.Fatalf("narrowed permissions = %v, want Read only", n.Permissions)
	}
	if n.Base != 10 || n.Length != 20 {
		t.Fatalf("narrow bounds wrong: %+v", n)
	}
}

func TestSplitVoidsOriginal(t *testing.T) {
	c := Capability{Base: 0, Length: 100, Generation: 1, Permissions: Read | Write}
	result, ok := Split(c, 40)
	if !ok {
		t.Fatalf("split should succeed")
	}
	if !result.OriginalVoided {
		t.Fatalf("split must void the original per DESIGN.md decision")
	}
	if result.Left.Length != 40 || result.Right.Length != 60 {
		t.Fatalf("split lengths wrong: left=%d right=%d", result.Left.Length, result.Right.Length)
	}
	if result.Right.Base != 40 {
		t.Fatalf("right half base = %d, want 40", result.Right.Base)
	}
}
