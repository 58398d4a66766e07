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

package copydata

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/multidist/multidist/go/common/sqltypes"
)

// binarySignature opens every PGCOPY binary stream.
var binarySignature = []byte("PGCOPY\n\xff\r\n\x00")

// binaryTrailer is the field count that terminates the tuple stream.
const binaryTrailer = -1

// maxFieldLen guards against corrupt length words allocating unbounded
// scratch. Worker result values are far below this.
const maxFieldLen = 1 << 30

type binaryReader struct {
	br    *bufio.Reader
	shape *sqltypes.RowShape

	row        sqltypes.Row
	headerRead bool
	done       bool
	tupleno    int
}

func newBinaryReader(r io.Reader, shape *sqltypes.RowShape) *binaryReader {
	return &binaryReader{
		br:    bufio.NewReader(r),
		shape: shape,
	}
}

func (b *binaryReader) Next() (*sqltypes.Row, error) {
	if b.done {
		return nil, io.EOF
	}
	if !b.headerRead {
		if err := b.readHeader(); err != nil {
			return nil, err
		}
		if b.done {
			return nil, io.EOF
		}
	}

	var fieldCount int16
	if err := binary.Read(b.br, binary.BigEndian, &fieldCount); err != nil {
		if err == io.EOF {
			// Stream ended without a trailer. Treat as a truncated file.
			return nil, fmt.Errorf("tuple %d: unexpected end of binary stream", b.tupleno+1)
		}
		return nil, err
	}
	if fieldCount == binaryTrailer {
		b.done = true
		return nil, io.EOF
	}
	b.tupleno++
	if int(fieldCount) != b.shape.NumColumns() {
		return nil, fmt.Errorf("tuple %d: has %d columns, shape expects %d",
			b.tupleno, fieldCount, b.shape.NumColumns())
	}

	b.row.Values = b.row.Values[:0]
	for i := 0; i < int(fieldCount); i++ {
		var fieldLen int32
		if err := binary.Read(b.br, binary.BigEndian, &fieldLen); err != nil {
			return nil, fmt.Errorf("tuple %d: truncated field header: %w", b.tupleno, err)
		}
		if fieldLen == -1 {
			b.row.Values = append(b.row.Values, nil)
			continue
		}
		if fieldLen < 0 || fieldLen > maxFieldLen {
			return nil, fmt.Errorf("tuple %d: invalid field length %d", b.tupleno, fieldLen)
		}
		value := make(sqltypes.Value, fieldLen)
		if _, err := io.ReadFull(b.br, value); err != nil {
			return nil, fmt.Errorf("tuple %d: truncated field data: %w", b.tupleno, err)
		}
		b.row.Values = append(b.row.Values, value)
	}

	if err := b.shape.CheckRow(&b.row); err != nil {
		return nil, fmt.Errorf("tuple %d: %w", b.tupleno, err)
	}
	return &b.row, nil
}

// readHeader consumes the signature, flags and header extension. A
// zero-byte stream is a valid empty result.
func (b *binaryReader) readHeader() error {
	b.headerRead = true

	sig := make([]byte, len(binarySignature))
	n, err := io.ReadFull(b.br, sig)
	if err == io.EOF && n == 0 {
		b.done = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("truncated binary signature: %w", err)
	}
	for i := range sig {
		if sig[i] != binarySignature[i] {
			return fmt.Errorf("invalid binary signature")
		}
	}

	var flags uint32
	if err := binary.Read(b.br, binary.BigEndian, &flags); err != nil {
		return fmt.Errorf("truncated binary flags: %w", err)
	}
	var extLen uint32
	if err := binary.Read(b.br, binary.BigEndian, &extLen); err != nil {
		return fmt.Errorf("truncated binary header extension: %w", err)
	}
	if extLen > 0 {
		if _, err := io.CopyN(io.Discard, b.br, int64(extLen)); err != nil {
			return fmt.Errorf("truncated binary header extension: %w", err)
		}
	}
	return nil
}

type binaryWriter struct {
	bw      *bufio.Writer
	shape   *sqltypes.RowShape
	started bool
	closed  bool
}

func newBinaryWriter(w io.Writer, shape *sqltypes.RowShape) *binaryWriter {
	return &binaryWriter{
		bw:    bufio.NewWriter(w),
		shape: shape,
	}
}

func (b *binaryWriter) Write(row *sqltypes.Row) error {
	if b.closed {
		return fmt.Errorf("write on closed binary writer")
	}
	if err := b.shape.CheckRow(row); err != nil {
		return err
	}
	if !b.started {
		if err := b.writeHeader(); err != nil {
			return err
		}
	}
	if err := binary.Write(b.bw, binary.BigEndian, int16(len(row.Values))); err != nil {
		return err
	}
	for _, v := range row.Values {
		if v.IsNull() {
			if err := binary.Write(b.bw, binary.BigEndian, int32(-1)); err != nil {
				return err
			}
			continue
		}
		if err := binary.Write(b.bw, binary.BigEndian, int32(len(v))); err != nil {
			return err
		}
		if _, err := b.bw.Write(v); err != nil {
			return err
		}
	}
	return nil
}

func (b *binaryWriter) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if !b.started {
		if err := b.writeHeader(); err != nil {
			return err
		}
	}
	if err := binary.Write(b.bw, binary.BigEndian, int16(binaryTrailer)); err != nil {
		return err
	}
	return b.bw.Flush()
}

func (b *binaryWriter) writeHeader() error {
	b.started = true
	if _, err := b.bw.Write(binarySignature); err != nil {
		return err
	}
	if err := binary.Write(b.bw, binary.BigEndian, uint32(0)); err != nil {
		return err
	}
	return binary.Write(b.bw, binary.BigEndian, uint32(0))
}
