// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package atlas implements the single-level transactional mmap-backed
// store (spec §4.8): a genesis header, a generation table, and a bump heap,
// with ACID transactions at root-pointer-publication granularity.
package atlas

import (
	"encoding/binary"
	"errors"
	"os"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/seraphlang/seraph/internal/arena"
)

const (
	magic         uint64 = 0x5345_5241_5048_5854 // "SERAPHXT", the 64-bit SERAPH_ATLAS_MAGIC constant (spec §6)
	formatVersion uint32 = 1

	genesisSize  = 64 // fixed on-disk header size, padded for future fields
	genTableHead = 16 // entry_count + reserved padding
	genEntrySize = 8  // one uint64 generation counter per slot
)

// ErrBadMagic is returned when opening a file whose header doesn't carry
// the SERAPH magic number.
var ErrBadMagic = errors.New("atlas: bad magic")

// ErrVersionMismatch is returned when a file's format version differs from
// this package's.
var ErrVersionMismatch = errors.New("atlas: version mismatch")

// ErrSizeMismatch is returned when a file's recorded size disagrees with
// its actual size.
var ErrSizeMismatch = errors.New("atlas: size mismatch")

// ErrNoTransaction is returned by Commit/Abort called outside Begin.
var ErrNoTransaction = errors.New("atlas: no active transaction")

// Genesis is the on-disk header at offset 0 (spec §4.8). Magic is the
// 64-bit SERAPH_ATLAS_MAGIC constant; Version is a separate 32-bit field
// immediately following it (spec §6).
type Genesis struct {
	Magic           uint64
	Version         uint32
	CommitCount     uint64
	AbortCount      uint64
	RootOffset      uint64
	FirstFreeOffset uint64
	GenTableOffset  uint64
	Size            uint64
}

func (g Genesis) encode() [genesisSize]byte {
	var b [genesisSize]byte
	binary.LittleEndian.PutUint64(b[0:8], g.Magic)
	binary.LittleEndian.PutUint32(b[8:12], g.Version)
	binary.LittleEndian.PutUint64(b[16:24], g.CommitCount)
	binary.LittleEndian.PutUint64(b[24:32], g.AbortCount)
	binary.LittleEndian.PutUint64(b[32:40], g.RootOffset)
	binary.LittleEndian.PutUint64(b[40:48], g.FirstFreeOffset)
	binary.LittleEndian.PutUint64(b[48:56], g.GenTableOffset)
	binary.LittleEndian.PutUint64(b[56:64], g.Size)
	return b
}

func decodeGenesis(b []byte) Genesis {
	return Genesis{
		Magic:           binary.LittleEndian.Uint64(b[0:8]),
		Version:         binary.LittleEndian.Uint32(b[8:12]),
		CommitCount:     binary.LittleEndian.Uint64(b[16:24]),
		AbortCount:      binary.LittleEndian.Uint64(b[24:32]),
		RootOffset:      binary.LittleEndian.Uint64(b[32:40]),
		FirstFreeOffset: binary.LittleEndian.Uint64(b[40:48]),
		GenTableOffset:  binary.LittleEndian.Uint64(b[48:56]),
		Size:            binary.LittleEndian.Uint64(b[56:64]),
	}
}

// txn is the in-flight transaction state, valid only at root-pointer-
// publication granularity (spec §4.8).
type txn struct {
	id                uuid.UUID
	snapshotFreeOff   uint64
	snapshotRootOff   uint64
}

// Store is a single file mapped into the address space, laid out as
// genesis header, generation table, then bump heap (spec §4.8).
type Store struct {
	arena *arena.Arena

	genTableOff   uint64
	genTableCount uint64

	cache *lru.ARCCache // recently touched alloc_id -> generation, hot-path avoidance of re-reading the mapped table

	active *txn
}

// defaultGenTableEntries is the fixed capacity of the generation table for
// a freshly initialized file; revoking ids beyond this count is not
// supported (an implementation ceiling, not a spec requirement).
const defaultGenTableEntries = 4096

// Open maps path into the address space. If the file is empty it is
// initialized with a fresh genesis block; otherwise its magic, version,
// and size are validated before mapping (spec §4.8's "Opening").
func Open(path string, capacity uint64) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	cache, err := lru.NewARC(1024)
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() == 0 {
		return initFresh(f, capacity, cache)
	}
	return openExisting(f, cache)
}

func initFresh(f *os.File, capacity uint64, cache *lru.ARCCache) (*Store, error) {
	genTableOff := uint64(genesisSize)
	genTableBytes := genTableHead + defaultGenTableEntries*genEntrySize
	firstFree := genTableOff + uint64(genTableBytes)

	if capacity < firstFree {
		capacity = firstFree + 1<<20
	}
	if err := f.Truncate(int64(capacity)); err != nil {
		f.Close()
		return nil, err
	}

	a, err := arena.NewFileBacked(f, capacity)
	if err != nil {
		return nil, err
	}
	if err := a.Reserve(firstFree); err != nil {
		return nil, err
	}

	g := Genesis{
		Magic:           magic,
		Version:         formatVersion,
		RootOffset:      0,
		FirstFreeOffset: firstFree,
		GenTableOffset:  genTableOff,
		Size:            capacity,
	}
	raw := a.Raw()
	hdr := g.encode()
	copy(raw[0:genesisSize], hdr[:])
	binary.LittleEndian.PutUint64(raw[genTableOff:genTableOff+8], defaultGenTableEntries)

	return &Store{arena: a, genTableOff: genTableOff, genTableCount: defaultGenTableEntries, cache: cache}, nil
}

func openExisting(f *os.File, cache *lru.ARCCache) (*Store, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := uint64(info.Size())

	a, err := arena.NewFileBacked(f, size)
	if err != nil {
		return nil, err
	}
	raw := a.Raw()
	if len(raw) < genesisSize {
		return nil, ErrSizeMismatch
	}
	g := decodeGenesis(raw[:genesisSize])
	if g.Magic != magic {
		return nil, ErrBadMagic
	}
	if g.Version != formatVersion {
		return nil, ErrVersionMismatch
	}
	if g.Size != size {
		return nil, ErrSizeMismatch
	}
	if err := a.Reserve(g.FirstFreeOffset); err != nil {
		return nil, err
	}

	count := binary.LittleEndian.Uint64(raw[g.GenTableOffset : g.GenTableOffset+8])
	return &Store{arena: a, genTableOff: g.GenTableOffset, genTableCount: count, cache: cache}, nil
}

// Close unmaps and closes the backing file.
func (s *Store) Close() error { return s.arena.Close() }

func (s *Store) genesis() Genesis {
	return decodeGenesis(s.arena.Raw()[:genesisSize])
}

func (s *Store) writeGenesis(g Genesis) {
	hdr := g.encode()
	copy(s.arena.Raw()[0:genesisSize], hdr[:])
}

// Generation implements capability.Source: the store's overall generation
// concept is per-slot in the gen table, so the arena's own monotone
// counter (bumped only by Reset, never by normal allocation) stands in for
// "the store has not been reset under you."
func (s *Store) Generation() uint64 { return s.arena.Generation() }

// slotOffset returns the byte offset of gen-table entry id.
func (s *Store) slotOffset(id uint64) uint64 {
	return s.genTableOff + genTableHead + id*genEntrySize
}

// NewAllocID draws a fresh, never-reused alloc_id from the generation
// table at generation zero (spec: "every allocation may be associated
// with a fresh alloc_id drawn from the generation table"). The next-id
// counter lives in the table's reserved header word, just after
// entry_count.
func (s *Store) NewAllocID() (uint64, error) {
	raw := s.arena.Raw()
	nextOff := s.genTableOff + 8
	id := binary.LittleEndian.Uint64(raw[nextOff : nextOff+8])
	if id >= s.genTableCount {
		return 0, errors.New("atlas: generation table exhausted")
	}
	binary.LittleEndian.PutUint64(raw[nextOff:nextOff+8], id+1)
	binary.LittleEndian.PutUint64(raw[s.slotOffset(id):s.slotOffset(id)+8], 0)
	s.cache.Add(id, uint64(0))
	return id, nil
}

// GenerationOf reads alloc_id's current generation counter through s.cache
// (SPEC_FULL.md §3: "a read-through cache in front of the mmap-backed
// generation table"), avoiding a mapped-memory read on every capability
// check once a slot is hot.
func (s *Store) GenerationOf(id uint64) uint64 {
	if v, ok := s.cache.Get(id); ok {
		return v.(uint64)
	}
	raw := s.arena.Raw()
	off := s.slotOffset(id)
	gen := binary.LittleEndian.Uint64(raw[off : off+8])
	s.cache.Add(id, gen)
	return gen
}

// RevokeID increments alloc_id's slot generation, invalidating any
// capability carrying the old generation (spec §4.8), and refreshes the
// cache entry so the next GenerationOf sees the new generation immediately
// instead of a stale hit.
func (s *Store) RevokeID(id uint64) {
	raw := s.arena.Raw()
	off := s.slotOffset(id)
	gen := binary.LittleEndian.Uint64(raw[off:off+8]) + 1
	binary.LittleEndian.PutUint64(raw[off:off+8], gen)
	s.cache.Add(id, gen)
}

// Alloc bumps the heap by size bytes, returning an arena.Ref into the
// mapped file (spec: "Allocation is bump from first_free_offset"). Free is
// a no-op: Atlas is an arena, not a GC'd heap.
func (s *Store) Alloc(size uint64) (arena.Ref, error) {
	return s.arena.Alloc(size)
}

// AllocPages bumps the heap page-aligned.
func (s *Store) AllocPages(size, pageSize uint64) (arena.Ref, error) {
	return s.arena.AllocPages(size, pageSize)
}

// Bytes returns the byte slice a Ref names.
func (s *Store) Bytes(r arena.Ref) []byte { return s.arena.Bytes(r) }

// Begin starts a transaction, snapshotting first_free_offset and
// root_offset so Abort can roll back (spec §4.8: "Transactions provide
// ACID... abort rolls back by discarding the first_free_offset snapshot
// taken at begin").
func (s *Store) Begin() (uuid.UUID, error) {
	if s.active != nil {
		return uuid.UUID{}, errors.New("atlas: transaction already active")
	}
	g := s.genesis()
	t := &txn{id: uuid.New(), snapshotFreeOff: g.FirstFreeOffset, snapshotRootOff: g.RootOffset}
	s.active = t
	return t.id, nil
}

// Commit durably syncs mapped pages and atomically updates root_offset and
// commit_count (spec §4.8).
func (s *Store) Commit(newRoot uint64) error {
	if s.active == nil {
		return ErrNoTransaction
	}
	if err := s.arena.Sync(); err != nil {
		return err
	}
	g := s.genesis()
	g.RootOffset = newRoot
	g.CommitCount++
	g.FirstFreeOffset = s.arena.Used()
	s.writeGenesis(g)
	if err := s.arena.Sync(); err != nil {
		return err
	}
	s.active = nil
	return nil
}

// Abort discards the first_free_offset snapshot taken at Begin and
// increments abort_count (spec §4.8).
func (s *Store) Abort() error {
	if s.active == nil {
		return ErrNoTransaction
	}
	if err := s.arena.RollbackTo(s.active.snapshotFreeOff); err != nil {
		return err
	}
	g := s.genesis()
	g.FirstFreeOffset = s.active.snapshotFreeOff
	g.RootOffset = s.active.snapshotRootOff
	g.AbortCount++
	s.writeGenesis(g)
	s.active = nil
	return nil
}

// RootOffset returns the last committed root (spec: "Crash recovery:
// reopening a valid file... finds the last committed world").
func (s *Store) RootOffset() uint64 { return s.genesis().RootOffset }

// Sync forces the host to flush the whole arena to storage, as SyncAll
// does; off and length do not narrow the flush to a range.
func (s *Store) Sync(off, length uint64) error {
	_ = off
	_ = length
	return s.arena.Sync()
}

// SyncAll forces everything to storage.
func (s *Store) SyncAll() error { return s.arena.Sync() }
