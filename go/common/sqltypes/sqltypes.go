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

// Package sqltypes provides the row and row-shape types shared by the
// coordinator packages. Values preserve the NULL vs empty string
// distinction: nil means NULL, []byte{} means empty string.
package sqltypes

import "fmt"

// Value represents a nullable column value.
// nil means NULL, []byte{} means empty string.
type Value []byte

// IsNull returns true if the value is NULL.
func (v Value) IsNull() bool {
	return v == nil
}

// Clone returns a copy of the value that does not alias v's storage.
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	c := make(Value, len(v))
	copy(c, v)
	return c
}

// Row represents a row with nullable column values.
type Row struct {
	// Values contains the column values. nil entry means NULL.
	Values []Value
}

// Clone returns a deep copy of the row. Decoders reuse scratch buffers
// between rows, so anything that retains a row must clone it first.
func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	values := make([]Value, len(r.Values))
	for i, v := range r.Values {
		values[i] = v.Clone()
	}
	return &Row{Values: values}
}

// Size returns a byte estimate of the row for memory accounting.
func (r *Row) Size() int64 {
	size := int64(0)
	for _, v := range r.Values {
		size += int64(len(v)) + 16
	}
	return size
}

// Field describes one column of a row shape.
type Field struct {
	// Name is the column name.
	Name string

	// Type is the PostgreSQL type name (e.g. "int4", "text").
	Type string

	// Nullable reports whether the column may hold NULL.
	Nullable bool
}

// RowShape is the column-type contract that a query's output and every
// worker result file must satisfy. It is immutable for the duration of a
// materialization.
type RowShape struct {
	Fields []*Field
}

// NewRowShape builds a row shape from the given fields.
func NewRowShape(fields ...*Field) *RowShape {
	return &RowShape{Fields: fields}
}

// NumColumns returns the number of columns in the shape.
func (s *RowShape) NumColumns() int {
	if s == nil {
		return 0
	}
	return len(s.Fields)
}

// CheckRow verifies that the row matches the shape's cardinality and
// nullability constraints.
func (s *RowShape) CheckRow(row *Row) error {
	if len(row.Values) != s.NumColumns() {
		return fmt.Errorf("row has %d columns, shape expects %d", len(row.Values), s.NumColumns())
	}
	for i, v := range row.Values {
		if v.IsNull() && !s.Fields[i].Nullable {
			return fmt.Errorf("NULL in non-nullable column %q", s.Fields[i].Name)
		}
	}
	return nil
}
