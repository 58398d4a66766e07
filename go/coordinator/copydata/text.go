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
	"bytes"
	"fmt"
	"io"

	"github.com/multidist/multidist/go/common/sqltypes"
)

// nullMarker is the raw text of a NULL field in COPY text format.
var nullMarker = []byte(`\N`)

// endMarker terminates a COPY text stream early, as psql emits it.
var endMarker = []byte(`\.`)

type textReader struct {
	br    *bufio.Reader
	shape *sqltypes.RowShape

	// row and line are scratch reused across Next calls.
	row  sqltypes.Row
	line []byte

	lineno int
	done   bool
}

func newTextReader(r io.Reader, shape *sqltypes.RowShape) *textReader {
	return &textReader{
		br:    bufio.NewReader(r),
		shape: shape,
	}
}

func (t *textReader) Next() (*sqltypes.Row, error) {
	if t.done {
		return nil, io.EOF
	}

	line, err := t.readLine()
	if err != nil {
		return nil, err
	}
	t.lineno++

	if bytes.Equal(line, endMarker) {
		t.done = true
		return nil, io.EOF
	}

	t.row.Values = t.row.Values[:0]
	for {
		field, rest, last := splitField(line)
		value, err := decodeTextField(field)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.lineno, err)
		}
		t.row.Values = append(t.row.Values, value)
		if last {
			break
		}
		line = rest
	}

	if err := t.shape.CheckRow(&t.row); err != nil {
		return nil, fmt.Errorf("line %d: %w", t.lineno, err)
	}
	return &t.row, nil
}

// readLine returns the next line without its terminator. An optional
// trailing \r is stripped so files written on either line convention load.
func (t *textReader) readLine() ([]byte, error) {
	t.line = t.line[:0]
	for {
		chunk, err := t.br.ReadSlice('\n')
		t.line = append(t.line, chunk...)
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			if len(t.line) == 0 {
				t.done = true
				return nil, io.EOF
			}
			// Final line without terminator.
			return trimLineEnding(t.line), nil
		}
		return nil, err
	}
	return trimLineEnding(t.line), nil
}

func trimLineEnding(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// splitField cuts the next tab-separated field off the line, honoring
// backslash escapes so an escaped tab does not split.
func splitField(line []byte) (field, rest []byte, last bool) {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++ // skip the escaped character
		case '\t':
			return line[:i], line[i+1:], false
		}
	}
	return line, nil, true
}

// decodeTextField resolves COPY text escapes in one raw field. A field
// consisting solely of \N is NULL.
func decodeTextField(raw []byte) (sqltypes.Value, error) {
	if bytes.Equal(raw, nullMarker) {
		return nil, nil
	}
	if !bytes.ContainsRune(raw, '\\') {
		out := make(sqltypes.Value, len(raw))
		copy(out, raw)
		return out, nil
	}

	out := make(sqltypes.Value, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(raw) {
			return nil, fmt.Errorf("field ends with lone backslash")
		}
		switch e := raw[i]; e {
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, '\v')
		case '\\':
			out = append(out, '\\')
		case 'x':
			v, n := parseHex(raw[i+1:])
			if n == 0 {
				// \x without hex digits is a literal x, as in PostgreSQL.
				out = append(out, 'x')
			} else {
				out = append(out, v)
				i += n
			}
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v, n := parseOctal(raw[i:])
			out = append(out, v)
			i += n - 1
		default:
			// Unknown escapes copy the character through.
			out = append(out, e)
		}
	}
	return out, nil
}

// parseHex consumes up to two hex digits, returning the byte value and the
// number of digits consumed.
func parseHex(in []byte) (byte, int) {
	var v byte
	n := 0
	for n < 2 && n < len(in) {
		d, ok := hexDigit(in[n])
		if !ok {
			break
		}
		v = v<<4 | d
		n++
	}
	return v, n
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// parseOctal consumes up to three octal digits starting at in[0], which the
// caller has verified is an octal digit.
func parseOctal(in []byte) (byte, int) {
	var v byte
	n := 0
	for n < 3 && n < len(in) && in[n] >= '0' && in[n] <= '7' {
		v = v<<3 | (in[n] - '0')
		n++
	}
	return v, n
}

type textWriter struct {
	w     io.Writer
	shape *sqltypes.RowShape
	buf   bytes.Buffer
}

func (t *textWriter) Write(row *sqltypes.Row) error {
	if err := t.shape.CheckRow(row); err != nil {
		return err
	}
	t.buf.Reset()
	for i, v := range row.Values {
		if i > 0 {
			t.buf.WriteByte('\t')
		}
		if v.IsNull() {
			t.buf.Write(nullMarker)
			continue
		}
		encodeTextField(&t.buf, v)
	}
	t.buf.WriteByte('\n')
	_, err := t.w.Write(t.buf.Bytes())
	return err
}

func (t *textWriter) Close() error {
	return nil
}

func encodeTextField(buf *bytes.Buffer, v sqltypes.Value) {
	for _, c := range v {
		switch c {
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\v':
			buf.WriteString(`\v`)
		default:
			buf.WriteByte(c)
		}
	}
}
