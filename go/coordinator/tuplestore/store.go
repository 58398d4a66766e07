// Copyright 2025 The Multidist Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tuplestore provides the append-only row buffer that materialized
// distributed results live in. A store accepts rows until it is sealed,
// spilling to a temp file once its in-memory estimate exceeds the budget,
// and is then drained by exactly one consuming scan. Stores are exclusively
// owned by their requesting scan and are not safe for concurrent use.
package tuplestore

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/multidist/multidist/go/common/sqltypes"
	"github.com/multidist/multidist/go/coordinator/copydata"
	"github.com/multidist/multidist/go/mderrors"
)

// DefaultMemLimit is the spill threshold used when Options leaves it unset.
const DefaultMemLimit = int64(4 << 20)

// Options configures a store.
type Options struct {
	// MemLimit is the in-memory byte budget before rows spill to disk.
	// Zero or negative selects DefaultMemLimit.
	MemLimit int64

	// Fs is the filesystem spill files are created on. Nil selects the
	// OS filesystem.
	Fs afero.Fs

	// TempDir is the directory for spill files. Empty selects the
	// filesystem's default temp directory.
	TempDir string
}

// Store is one append-only, spill-capable tuple sequence.
type Store struct {
	shape *sqltypes.RowShape
	opts  Options
	fs    afero.Fs

	mem      []*sqltypes.Row
	memBytes int64
	rowCount int64

	spillFile   afero.File
	spillName   string
	spillCount  *countingWriter
	spillWriter copydata.Writer
	offsets     []int64

	sealed bool
	closed bool
}

// New creates an empty store for rows of the given shape.
func New(shape *sqltypes.RowShape, opts Options) *Store {
	if opts.MemLimit <= 0 {
		opts.MemLimit = DefaultMemLimit
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{
		shape: shape,
		opts:  opts,
		fs:    fs,
	}
}

// Shape returns the row shape the store was created for.
func (s *Store) Shape() *sqltypes.RowShape {
	return s.shape
}

// Len returns the number of rows appended so far.
func (s *Store) Len() int64 {
	return s.rowCount
}

// Sealed reports whether DoneStoring has been called.
func (s *Store) Sealed() bool {
	return s.sealed
}

// Put appends one row. The row is cloned, so callers may reuse their
// scratch. Appending to a sealed or closed store is a usage error.
func (s *Store) Put(row *sqltypes.Row) error {
	if s.closed {
		return mderrors.MD10004("is closed")
	}
	if s.sealed {
		return mderrors.MD10004("is sealed, no further writes occur")
	}
	if err := s.shape.CheckRow(row); err != nil {
		return err
	}

	if s.spillWriter == nil {
		size := row.Size()
		if s.memBytes+size <= s.opts.MemLimit {
			s.mem = append(s.mem, row.Clone())
			s.memBytes += size
			s.rowCount++
			return nil
		}
		if err := s.beginSpill(); err != nil {
			return err
		}
	}

	if err := s.spillRow(row); err != nil {
		return err
	}
	s.rowCount++
	return nil
}

// DoneStoring seals the store: the writer side is finished and the
// consuming scan may start reading. Sealing twice is harmless.
func (s *Store) DoneStoring() error {
	if s.closed {
		return mderrors.MD10004("is closed")
	}
	if s.sealed {
		return nil
	}
	s.sealed = true
	if s.spillWriter != nil {
		if err := s.spillWriter.Close(); err != nil {
			return fmt.Errorf("sealing spill file: %w", err)
		}
		if err := s.spillFile.Close(); err != nil {
			return fmt.Errorf("sealing spill file: %w", err)
		}
		s.spillFile = nil
	}
	return nil
}

// Close releases the store and deletes its spill file, if any. The store
// must not be used afterwards.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.mem = nil
	if s.spillFile != nil {
		_ = s.spillFile.Close()
		s.spillFile = nil
	}
	if s.spillName != "" {
		if err := s.fs.Remove(s.spillName); err != nil {
			return fmt.Errorf("removing spill file: %w", err)
		}
		s.spillName = ""
	}
	return nil
}

// beginSpill moves the store to its disk-backed regime: all buffered rows
// are flushed to a fresh temp file in order and the memory buffer is
// dropped. Once spilled, the store stays spilling.
func (s *Store) beginSpill() error {
	file, err := afero.TempFile(s.fs, s.opts.TempDir, "tuplestore-*.spill")
	if err != nil {
		return fmt.Errorf("creating spill file: %w", err)
	}
	s.spillFile = file
	s.spillName = file.Name()
	s.spillCount = &countingWriter{w: file}

	w, err := copydata.NewWriter(s.spillCount, copydata.FormatText, s.shape)
	if err != nil {
		return err
	}
	s.spillWriter = w

	for _, row := range s.mem {
		if err := s.spillRow(row); err != nil {
			return err
		}
	}
	s.mem = nil
	s.memBytes = 0
	return nil
}

func (s *Store) spillRow(row *sqltypes.Row) error {
	s.offsets = append(s.offsets, s.spillCount.n)
	if err := s.spillWriter.Write(row); err != nil {
		return fmt.Errorf("writing spill file: %w", err)
	}
	return nil
}

func (s *Store) spilled() bool {
	return s.spillName != ""
}

// countingWriter tracks the byte offset rows land at, so readers can seek
// straight to any row.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
