// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package atlas

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atlas.db")
	s, err := Open(path, 1<<20)
	if err != nil {
		t.Fatalf("unexpected error opening fresh store: %v", err)
	}
	return s, path
}

func TestOpenFreshWritesGenesis(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	g := s.genesis()
	if g.Magic != magic {
		t.Fatalf("expected magic 0x%X, got 0x%X", magic, g.Magic)
	}
	if g.CommitCount != 0 || g.AbortCount != 0 {
		t.Fatalf("expected zeroed commit/abort counts on a fresh file")
	}
	if g.RootOffset != 0 {
		t.Fatalf("expected root_offset 0 on a fresh file, got %d", g.RootOffset)
	}
}

func TestAllocBumpsFromFirstFree(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	before := s.genesis().FirstFreeOffset
	ref, err := s.Alloc(128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Offset != before {
		t.Fatalf("expected first allocation at the pre-recorded first_free_offset %d, got %d", before, ref.Offset)
	}
}

func TestAllocIDsAreNeverReused(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	a, err := s.NewAllocID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := s.NewAllocID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct alloc ids, got %d twice", a)
	}
}

func TestRevokeIncrementsGeneration(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	id, _ := s.NewAllocID()
	before := s.GenerationOf(id)
	s.RevokeID(id)
	after := s.GenerationOf(id)
	if after != before+1 {
		t.Fatalf("expected generation to increment by 1, got %d -> %d", before, after)
	}
}

func TestCommitPublishesRootAndIncrementsCount(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	if _, err := s.Begin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ref, _ := s.Alloc(64)
	if err := s.Commit(ref.Offset); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RootOffset() != ref.Offset {
		t.Fatalf("expected root offset %d, got %d", ref.Offset, s.RootOffset())
	}
	if s.genesis().CommitCount != 1 {
		t.Fatalf("expected commit_count 1, got %d", s.genesis().CommitCount)
	}
}

func TestAbortRollsBackFirstFreeAndRoot(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	originalRoot := s.RootOffset()
	originalFree := s.genesis().FirstFreeOffset

	if _, err := s.Begin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Alloc(256)
	if err := s.Abort(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.genesis().FirstFreeOffset != originalFree {
		t.Fatalf("expected first_free_offset rolled back to %d, got %d", originalFree, s.genesis().FirstFreeOffset)
	}
	if s.RootOffset() != originalRoot {
		t.Fatalf("expected root_offset unchanged after abort, got %d", s.RootOffset())
	}
	if s.genesis().AbortCount != 1 {
		t.Fatalf("expected abort_count 1, got %d", s.genesis().AbortCount)
	}
}

func TestReopenExistingFileValidatesHeader(t *testing.T) {
	s, path := openTemp(t)
	if _, err := s.Begin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ref, _ := s.Alloc(32)
	if err := s.Commit(ref.Offset); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Close()

	reopened, err := Open(path, 0)
	if err != nil {
		t.Fatalf("unexpected error reopening: %v", err)
	}
	defer reopened.Close()
	if reopened.RootOffset() != ref.Offset {
		t.Fatalf("expected reopened store to recover last committed root %d, got %d", ref.Offset, reopened.RootOffset())
	}
}

func TestBeginTwiceFails(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	if _, err := s.Begin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Begin(); err == nil {
		t.Fatalf("expected error beginning a second concurrent transaction")
	}
}
