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

package fakepgdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
)

// fakeDriver implements driver.Driver
type fakeDriver struct {
	db *DB
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	return &fakeConn{db: d.db}, nil
}

// fakeConn implements driver.Conn
type fakeConn struct {
	db *DB
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{conn: c, query: query}, nil
}

func (c *fakeConn) Close() error {
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return &fakeTx{}, nil
}

// QueryContext executes a query that may return rows.
func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	result, err := c.db.handleQuery(query)
	if err != nil {
		return nil, err
	}
	return &fakeRows{columns: result.Columns, rows: result.Rows}, nil
}

// ExecContext executes a query that doesn't return rows.
func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	result, err := c.db.handleQuery(query)
	if err != nil {
		return nil, err
	}
	return &fakeResult{rowsAffected: int64(len(result.Rows))}, nil
}

// fakeStmt implements driver.Stmt
type fakeStmt struct {
	conn  *fakeConn
	query string
}

func (s *fakeStmt) Close() error {
	return nil
}

func (s *fakeStmt) NumInput() int {
	return -1 // the driver doesn't know
}

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	result, err := s.conn.db.handleQuery(s.query)
	if err != nil {
		return nil, err
	}
	return &fakeResult{rowsAffected: int64(len(result.Rows))}, nil
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	result, err := s.conn.db.handleQuery(s.query)
	if err != nil {
		return nil, err
	}
	return &fakeRows{columns: result.Columns, rows: result.Rows}, nil
}

// fakeTx implements driver.Tx
type fakeTx struct{}

func (tx *fakeTx) Commit() error   { return nil }
func (tx *fakeTx) Rollback() error { return nil }

// fakeResult implements driver.Result
type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (r *fakeResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// fakeRows implements driver.Rows
type fakeRows struct {
	columns []string
	rows    [][]any
	index   int
}

func (r *fakeRows) Columns() []string {
	return r.columns
}

func (r *fakeRows) Close() error {
	return nil
}

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.index >= len(r.rows) {
		return io.EOF
	}
	row := r.rows[r.index]
	r.index++

	if len(dest) != len(row) {
		return errors.New("fakepgdb: destination slice length doesn't match row length")
	}
	for i, val := range row {
		dest[i] = val
	}
	return nil
}

// Ensure interfaces are implemented
var (
	_ driver.Connector      = (*DB)(nil)
	_ driver.Driver         = (*fakeDriver)(nil)
	_ driver.Conn           = (*fakeConn)(nil)
	_ driver.QueryerContext = (*fakeConn)(nil)
	_ driver.ExecerContext  = (*fakeConn)(nil)
	_ driver.Stmt           = (*fakeStmt)(nil)
	_ driver.Tx             = (*fakeTx)(nil)
	_ driver.Result         = (*fakeResult)(nil)
	_ driver.Rows           = (*fakeRows)(nil)
)
