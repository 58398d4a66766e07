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

// Package fakepgdb provides a fake PostgreSQL driver for tests. Queries are
// matched against registered results, exactly or by pattern, and the full
// query log is kept for assertions. It implements driver.Connector so it
// can be handed to sql.OpenDB.
package fakepgdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// DB is a fake PostgreSQL database. All methods are thread-safe.
type DB struct {
	t testing.TB

	// mu protects all the following fields
	mu sync.Mutex

	// data maps tolower(query) to a result
	data map[string]*Result

	// rejectedData maps tolower(query) to an error
	rejectedData map[string]error

	// patternData maps regexp patterns to results, checked after exact
	// matches
	patternData map[string]patternResult

	// queryCalled counts how many times each query was called
	queryCalled map[string]int

	// querylog keeps every query in call order
	querylog []string
}

// Result holds the canned rows for a matched query.
type Result struct {
	Columns []string
	Rows    [][]any
}

type patternResult struct {
	expr   *regexp.Regexp
	result *Result
	err    string
}

// New creates a new fake PostgreSQL database for testing.
func New(t testing.TB) *DB {
	return &DB{
		t:            t,
		data:         make(map[string]*Result),
		rejectedData: make(map[string]error),
		patternData:  make(map[string]patternResult),
		queryCalled:  make(map[string]int),
	}
}

// Connect returns a driver.Conn implementation.
func (db *DB) Connect(ctx context.Context) (driver.Conn, error) {
	return &fakeConn{db: db}, nil
}

// Driver returns a driver.Driver implementation.
func (db *DB) Driver() driver.Driver {
	return &fakeDriver{db: db}
}

// OpenDB returns a *sql.DB connected to this fake database.
func (db *DB) OpenDB() *sql.DB {
	return sql.OpenDB(db)
}

// AddQuery adds a query and its expected result.
func (db *DB) AddQuery(query string, result *Result) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(query)
	db.data[key] = result
	db.queryCalled[key] = 0
}

// AddQueryPattern adds an expected result for a set of queries. Patterns
// are checked if no exact match from AddQuery() is found. Begin/end anchors
// are forced and matching is case-insensitive.
func (db *DB) AddQueryPattern(queryPattern string, result *Result) {
	expr := regexp.MustCompile("(?is)^" + queryPattern + "$")
	db.mu.Lock()
	defer db.mu.Unlock()
	db.patternData[queryPattern] = patternResult{expr: expr, result: result}
}

// RejectQueryPattern makes queries matching the pattern fail with an error.
func (db *DB) RejectQueryPattern(queryPattern, error string) {
	expr := regexp.MustCompile("(?is)^" + queryPattern + "$")
	db.mu.Lock()
	defer db.mu.Unlock()
	db.patternData[queryPattern] = patternResult{expr: expr, err: error}
}

// AddRejectedQuery adds a query which will be rejected at execution time.
func (db *DB) AddRejectedQuery(query string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rejectedData[strings.ToLower(query)] = err
}

// GetQueryCalledNum returns how many times a query was executed.
func (db *DB) GetQueryCalledNum(query string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.queryCalled[strings.ToLower(query)]
}

// QueryLog returns the query log as a semicolon separated string.
func (db *DB) QueryLog() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return strings.Join(db.querylog, ";")
}

// ResetQueryLog resets the query log.
func (db *DB) ResetQueryLog() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.querylog = nil
}

// handleQuery handles a query and returns the result.
func (db *DB) handleQuery(query string) (*Result, error) {
	key := strings.ToLower(query)
	db.mu.Lock()
	db.queryCalled[key]++
	db.querylog = append(db.querylog, key)

	if err, ok := db.rejectedData[key]; ok {
		db.mu.Unlock()
		return nil, err
	}

	if result, ok := db.data[key]; ok {
		db.mu.Unlock()
		return result, nil
	}

	for _, pat := range db.patternData {
		if pat.expr.MatchString(query) {
			db.mu.Unlock()
			if pat.err != "" {
				return nil, errors.New(pat.err)
			}
			return pat.result, nil
		}
	}
	db.mu.Unlock()

	return nil, fmt.Errorf("fakepgdb: query '%s' is not supported", query)
}
