// Package flushstore provides a temp-file backed scratch area for the
// contractor's mid-preprocessing flush (spec.md §4.5.5), grounded on
// original_source's Contractor.h flush block, which writes a dummy edge
// count, streams edges, then seeks back and rewrites the true count once
// known. The original keeps this as a single process-wide file; this port
// gives each flush its own slot so a FlushStore instance can be reused
// across multiple Contract calls (e.g. in tests) without collisions.
package flushstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SlotID identifies one flush scratch slot.
type SlotID int

// Store manages a set of temp-file backed flush slots.
type Store struct {
	files []*os.File
}

// New returns an empty Store. Callers should Close it when done to remove
// the backing temp files.
func New() *Store { return &Store{} }

// AcquireSlot creates a new temp file and returns its slot ID.
func (s *Store) AcquireSlot() (SlotID, error) {
	f, err := os.CreateTemp("", "chrouter-flush-*")
	if err != nil {
		return 0, fmt.Errorf("flushstore: create temp file: %w", err)
	}
	s.files = append(s.files, f)
	return SlotID(len(s.files) - 1), nil
}

// WriteEdges streams the flushed edges (already serialized by the caller,
// one record at a time via the write func) to the slot, writing a dummy
// count first and seeking back to patch in the real count afterward —
// the exact two-pass pattern Contractor.h uses because the count isn't
// known until the caller has finished iterating contracted nodes.
func (s *Store) WriteEdges(slot SlotID, recordSize int, write func(emit func(record []byte) error) (count uint64, err error)) error {
	f := s.files[slot]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var dummy uint64
	if err := binary.Write(f, binary.LittleEndian, dummy); err != nil {
		return fmt.Errorf("flushstore: write placeholder count: %w", err)
	}

	var n uint64
	emit := func(record []byte) error {
		if len(record) != recordSize {
			return fmt.Errorf("flushstore: record size %d != expected %d", len(record), recordSize)
		}
		if _, err := f.Write(record); err != nil {
			return err
		}
		n++
		return nil
	}

	count, err := write(emit)
	if err != nil {
		return fmt.Errorf("flushstore: writing records: %w", err)
	}
	if count != n {
		return fmt.Errorf("flushstore: caller reported count %d, wrote %d", count, n)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, n); err != nil {
		return fmt.Errorf("flushstore: patch real count: %w", err)
	}
	return nil
}

// ReadEdges reads the slot's count-prefixed records back, invoking read
// once per record.
func (s *Store) ReadEdges(slot SlotID, recordSize int, read func(record []byte) error) error {
	f := s.files[slot]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var count uint64
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("flushstore: read count: %w", err)
	}
	buf := make([]byte, recordSize)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("flushstore: read record %d: %w", i, err)
		}
		if err := read(buf); err != nil {
			return err
		}
	}
	return nil
}

// Release closes and removes the slot's backing file.
func (s *Store) Release(slot SlotID) error {
	f := s.files[slot]
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Close releases every acquired slot.
func (s *Store) Close() error {
	var firstErr error
	for i := range s.files {
		if err := s.Release(SlotID(i)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
