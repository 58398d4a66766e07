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

// Package mderrors contains the coded errors used across multidist.
// Every error that callers are expected to branch on carries a stable
// MD identifier and a coarse Code usable with errors.Is.
package mderrors

import (
	"errors"
	"fmt"
)

// Code classifies an error coarsely. It mirrors the taxonomy used by the
// executor: usage errors are caller bugs, format errors come from decoding
// worker data, failed preconditions are one-shot operations invoked twice.
type Code int

const (
	CodeUnknown Code = iota
	CodeUsage
	CodeBadFormat
	CodeFailedPrecondition
	CodeInternal
)

// Errors added to the list of variables below must be added to the Errors
// slice a little below in this same file. This enables auto-documentation
// of error codes on the website.
var (
	// MD10001: a query string handed to the nested query runner contained
	// more than one statement.
	MD10001 = errorFactory("MD10001", CodeUsage, "can only execute a single query", "The nested query runner accepts exactly one statement per invocation. Split the query string.")

	// MD10002: a scan state was asked to materialize twice.
	MD10002 = errorFactory("MD10002", CodeFailedPrecondition, "tuple store already materialized for this scan", "Materialization is one-shot per scan node instance.")

	// MD10003: a worker task file did not match the expected row shape.
	MD10003 = errorFactory("MD10003", CodeBadFormat, "malformed task file: %s", "A worker result file could not be decoded against the query's row shape. The whole materialization is aborted.")

	// MD10004: a tuple store was used after being sealed, or read before.
	MD10004 = errorFactory("MD10004", CodeUsage, "tuple store %s", "Tuple stores are append-only until sealed and readable only afterwards.")

	// MD13001: general bug.
	MD13001 = errorFactory("MD13001", CodeInternal, "[BUG] %s", "This error should not happen and is a bug. Please file an issue.")

	// Errors is the list of error factories above, kept in sync for
	// auto-documentation.
	Errors = []func(args ...any) *Error{
		MD10001,
		MD10002,
		MD10003,
		MD10004,
		MD13001,
	}
)

// Error is a coded multidist error.
type Error struct {
	ID          string
	Code        Code
	Description string
	message     string
}

// Error implements error.
func (e *Error) Error() string {
	return e.ID + ": " + e.message
}

// Is implements error comparison for errors.Is. Two coded errors match
// when their IDs match; a bare code target matches on Code alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.ID != "" {
			return e.ID == t.ID
		}
		return e.Code == t.Code
	}
	return false
}

var _ error = (*Error)(nil)

// errorFactory builds the constructor for one catalog entry. The short
// message may contain fmt verbs consumed by the call-site arguments.
func errorFactory(id string, code Code, short, long string) func(args ...any) *Error {
	return func(args ...any) *Error {
		s := short
		if len(args) != 0 {
			s = fmt.Sprintf(s, args...)
		}
		return &Error{
			ID:          id,
			Code:        code,
			Description: long,
			message:     s,
		}
	}
}

// IsCode reports whether err (or anything it wraps) carries the given code.
func IsCode(err error, code Code) bool {
	var mde *Error
	if errors.As(err, &mde) {
		return mde.Code == code
	}
	return false
}

// IsID reports whether err (or anything it wraps) carries the given MD id.
func IsID(err error, id string) bool {
	var mde *Error
	if errors.As(err, &mde) {
		return mde.ID == id
	}
	return false
}
