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

// Package hostexec defines the seam between multidist and the host engine's
// query-execution machinery. The coordinator consumes these interfaces; it
// never reimplements what sits behind them (planning, storage, transaction
// management). Production implementations are provided by the embedding
// process, a local-PostgreSQL adapter lives in pghost, and tests use fakes.
//
// This interface set is implemented by:
// - the embedding host process (actual executor, portals, transactions)
// - the pghost adapter (local PostgreSQL over database/sql)
// - fake implementations for testing
package hostexec

import (
	"context"

	pgquery "github.com/pganalyze/pg_query_go/v6"

	"github.com/multidist/multidist/go/common/sqltypes"
	"github.com/multidist/multidist/go/coordinator/plantree"
)

// CommandType classifies a statement the way the host's planner does.
type CommandType int

const (
	CmdUnknown CommandType = iota
	CmdSelect
	CmdInsert
	CmdUpdate
	CmdDelete
	CmdUtility
)

// String returns the command tag prefix for the command type.
func (c CommandType) String() string {
	switch c {
	case CmdSelect:
		return "SELECT"
	case CmdInsert:
		return "INSERT"
	case CmdUpdate:
		return "UPDATE"
	case CmdDelete:
		return "DELETE"
	case CmdUtility:
		return "UTILITY"
	default:
		return "UNKNOWN"
	}
}

// ScanDirection is the direction the consuming scan advances in.
type ScanDirection int

const (
	ForwardScan ScanDirection = iota
	BackwardScan
	NoMovementScan
)

// ExecFlags carries the host's executor preparation flags.
type ExecFlags uint32

const (
	// ExecFlagExplainOnly prepares the query for EXPLAIN without running it.
	ExecFlagExplainOnly ExecFlags = 1 << iota

	// ExecFlagSkipTriggers suppresses AFTER trigger queueing.
	ExecFlagSkipTriggers
)

// FetchAll asks a portal or executor run for every remaining row.
const FetchAll uint64 = 0

// DestKind tags which consumer a destination receiver feeds.
type DestKind int

const (
	// DestNone discards rows.
	DestNone DestKind = iota

	// DestRemote sends rows to the client connection.
	DestRemote

	// DestSPI feeds rows to a procedural-language call. A query running
	// toward DestSPI is part of a bigger transaction-level call chain.
	DestSPI

	// DestTupleStore buffers rows into an in-process tuple store.
	DestTupleStore
)

// DestReceiver is the host's destination-sink abstraction. Startup and
// Shutdown bracket the rows of exactly one execution.
type DestReceiver interface {
	// Startup prepares the receiver for rows of the given shape.
	Startup(commandType CommandType, shape *sqltypes.RowShape) error

	// Receive accepts one row. The row is only valid for the duration of
	// the call; receivers that retain it must clone it.
	Receive(row *sqltypes.Row) error

	// Shutdown ends the current execution's row stream.
	Shutdown() error

	// Kind reports which consumer this receiver feeds.
	Kind() DestKind
}

// Snapshot is the host's opaque MVCC snapshot handle.
type Snapshot interface{}

// ParamList carries the bind parameters of one execution.
type ParamList []sqltypes.Value

// QueryDesc describes one query execution, mirroring what the host hands
// its executor hooks: the plan, its declared output shape, the destination
// and the reported row count.
type QueryDesc struct {
	// CommandType is the statement's command type.
	CommandType CommandType

	// SourceText is the original query string.
	SourceText string

	// Plan is the root of the host-owned plan tree. Read-only.
	Plan plantree.Node

	// RowShape is the declared output shape of the query.
	RowShape *sqltypes.RowShape

	// Dest receives the query's rows.
	Dest DestReceiver

	// Params are the bind parameters, if any.
	Params ParamList

	// Processed is the row count the execution reports back to the host.
	Processed uint64
}

// Executor is the host's standard executor. The dispatcher wraps it and
// delegates to it on the ordinary path.
type Executor interface {
	// Start prepares the query for execution (the host's start phase).
	Start(ctx context.Context, desc *QueryDesc, flags ExecFlags) error

	// Run executes the prepared query, feeding desc.Dest.
	Run(ctx context.Context, desc *QueryDesc, direction ScanDirection, count uint64) error
}

// TxnController exposes the transaction state the coordinator needs: the
// session's read-only restriction, standby status and the active snapshot.
type TxnController interface {
	// ReadOnly reports whether the read-only restriction is in force.
	ReadOnly() bool

	// SetReadOnly toggles the read-only restriction. Callers that lift it
	// must restore the prior value on every exit path.
	SetReadOnly(readOnly bool)

	// RecoveryInProgress reports whether this process is a read-only
	// secondary replaying WAL.
	RecoveryInProgress() bool

	// ActiveSnapshot returns the currently active snapshot.
	ActiveSnapshot() Snapshot
}

// Catalog is the slice of the catalog layer the coordinator consults.
type Catalog interface {
	// AlterTableInProgress reports whether the session is currently inside
	// a schema-alteration operation.
	AlterTableInProgress() bool
}

// ParsedQuery is one parsed statement plus its source text.
type ParsedQuery struct {
	// SourceText is the statement's original text.
	SourceText string

	// Stmt is the parse tree of the single statement.
	Stmt *pgquery.RawStmt

	// CommandType is derived from the statement's top-level node.
	CommandType CommandType
}

// PlannedStmt is the host planner's output for one statement.
type PlannedStmt struct {
	// CommandType is the statement's command type.
	CommandType CommandType

	// SourceText is the statement's original text.
	SourceText string

	// Plan is the root plan node. May itself be a distributed plan.
	Plan plantree.Node

	// RowShape is the planned output shape.
	RowShape *sqltypes.RowShape
}

// Planner plans a parsed query. Planning a derived query may produce
// another distributed plan.
type Planner interface {
	PlanQuery(ctx context.Context, query *ParsedQuery, params ParamList) (*PlannedStmt, error)
}

// PortalOptions configures a new execution context.
type PortalOptions struct {
	// Visible controls whether the portal shows up in session-level
	// cursor listings. Internal executions set it to false.
	Visible bool
}

// PortalManager creates execution contexts ("portals") in the host.
type PortalManager interface {
	NewPortal(opts PortalOptions) (Portal, error)
}

// Portal is one execution context: define, start, run, drop.
type Portal interface {
	// DefineQuery binds the planned statement and its command tag.
	DefineQuery(commandTag string, stmt *PlannedStmt)

	// Start readies the portal under the given snapshot.
	Start(ctx context.Context, params ParamList, snapshot Snapshot) error

	// Run executes up to count rows (FetchAll for all) into dest.
	Run(ctx context.Context, count uint64, dest DestReceiver) error

	// Drop tears the portal down. Must be called on every exit path.
	Drop(ctx context.Context) error
}

// PrivilegeLevel is the privilege a configuration change is applied with.
type PrivilegeLevel int

const (
	PrivUser PrivilegeLevel = iota
	PrivSuperuser
)

// OptionScope is the lifetime of a configuration change.
type OptionScope int

const (
	// ScopeSession applies until the session ends.
	ScopeSession OptionScope = iota

	// ScopeLocal applies to the current (sub)transaction only.
	ScopeLocal
)

// ConfigService sets session configuration variables in the host.
type ConfigService interface {
	SetOption(ctx context.Context, name, value string, priv PrivilegeLevel, scope OptionScope) error
}

// SessionInfo exposes the calling session's identity attributes.
type SessionInfo interface {
	IsSuperuser() bool
}
