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

package tuplestore

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/multidist/multidist/go/common/sqltypes"
	"github.com/multidist/multidist/go/coordinator/copydata"
	"github.com/multidist/multidist/go/mderrors"
)

// Reader drains a sealed store. It supports forward iteration and single
// backward steps, matching the host tuplestore's random-access contract.
// Returned rows are owned by the reader and valid until the next call.
type Reader struct {
	store *Store

	// pos is the index of the next row a forward fetch returns.
	pos int64

	file   afero.File
	dec    copydata.Reader
	decPos int64
}

// NewReader opens a reader over a sealed store. Reading before the store is
// sealed is a usage error.
func (s *Store) NewReader() (*Reader, error) {
	if s.closed {
		return nil, mderrors.MD10004("is closed")
	}
	if !s.sealed {
		return nil, mderrors.MD10004("is not sealed yet, cannot be read")
	}
	r := &Reader{store: s}
	if s.spilled() {
		file, err := s.fs.Open(s.spillName)
		if err != nil {
			return nil, fmt.Errorf("opening spill file: %w", err)
		}
		r.file = file
		if err := r.resetDecoder(0); err != nil {
			file.Close()
			return nil, err
		}
	}
	return r, nil
}

// Next returns the next row in insertion order, or io.EOF past the end.
func (r *Reader) Next() (*sqltypes.Row, error) {
	if r.pos >= r.store.rowCount {
		return nil, io.EOF
	}
	row, err := r.rowAt(r.pos)
	if err != nil {
		return nil, err
	}
	r.pos++
	return row, nil
}

// Prev steps back and returns the row before the last one fetched, or
// io.EOF when the reader is at the start.
func (r *Reader) Prev() (*sqltypes.Row, error) {
	if r.pos <= 1 {
		r.pos = 0
		return nil, io.EOF
	}
	r.pos--
	return r.rowAt(r.pos - 1)
}

// Close releases the reader. The store itself stays open.
func (r *Reader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.dec = nil
		return err
	}
	return nil
}

func (r *Reader) rowAt(i int64) (*sqltypes.Row, error) {
	if !r.store.spilled() {
		return r.store.mem[i], nil
	}
	if r.dec == nil || r.decPos != i {
		if err := r.resetDecoder(i); err != nil {
			return nil, err
		}
	}
	row, err := r.dec.Next()
	if err != nil {
		return nil, fmt.Errorf("reading spill file: %w", err)
	}
	r.decPos = i + 1
	return row, nil
}

// resetDecoder seeks the spill file to row i and rebuilds the decoder.
func (r *Reader) resetDecoder(i int64) error {
	offset := int64(0)
	if i < int64(len(r.store.offsets)) {
		offset = r.store.offsets[i]
	}
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking spill file: %w", err)
	}
	dec, err := copydata.NewReader(r.file, copydata.FormatText, r.store.shape)
	if err != nil {
		return err
	}
	r.dec = dec
	r.decPos = i
	return nil
}
