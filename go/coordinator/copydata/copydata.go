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

// Package copydata decodes and encodes PostgreSQL COPY-formatted row
// streams. Worker nodes write their task results in COPY text or binary
// format; the coordinator reads them back against the query's row shape.
// Readers take the row shape directly, so no storage object is involved.
package copydata

import (
	"fmt"
	"io"

	"github.com/multidist/multidist/go/common/sqltypes"
)

// Format selects the COPY variant of a row stream.
type Format int

const (
	// FormatText is the tab-delimited COPY text format.
	FormatText Format = iota

	// FormatBinary is the PGCOPY binary format.
	FormatBinary
)

// String returns the format name as used in COPY options.
func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "text"
}

// ParseFormat parses a COPY format name.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text":
		return FormatText, nil
	case "binary":
		return FormatBinary, nil
	default:
		return FormatText, fmt.Errorf("unknown copy format %q", s)
	}
}

// Reader decodes one COPY stream row by row.
type Reader interface {
	// Next returns the next row, or io.EOF after the last one. The
	// returned row is only valid until the following Next call; callers
	// that retain rows must clone them. Any shape mismatch or framing
	// problem is returned as an error and the reader must not be used
	// afterwards.
	Next() (*sqltypes.Row, error)
}

// Writer encodes rows into one COPY stream.
type Writer interface {
	// Write appends one row to the stream.
	Write(row *sqltypes.Row) error

	// Close finishes the stream (binary trailer). It does not close the
	// underlying io.Writer.
	Close() error
}

// NewReader returns a reader decoding r in the given format against shape.
func NewReader(r io.Reader, format Format, shape *sqltypes.RowShape) (Reader, error) {
	switch format {
	case FormatText:
		return newTextReader(r, shape), nil
	case FormatBinary:
		return newBinaryReader(r, shape), nil
	default:
		return nil, fmt.Errorf("unknown copy format %d", format)
	}
}

// NewWriter returns a writer encoding rows to w in the given format.
func NewWriter(w io.Writer, format Format, shape *sqltypes.RowShape) (Writer, error) {
	switch format {
	case FormatText:
		return &textWriter{w: w, shape: shape}, nil
	case FormatBinary:
		return newBinaryWriter(w, shape), nil
	default:
		return nil, fmt.Errorf("unknown copy format %d", format)
	}
}
