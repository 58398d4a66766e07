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

// Package pghost adapts a local PostgreSQL instance to the coordinator's
// host-engine seams. It executes statements through database/sql with the
// lib/pq driver and streams rows into the destination receiver.
package pghost

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/lib/pq"
	pgquery "github.com/pganalyze/pg_query_go/v6"

	"github.com/multidist/multidist/go/common/sqltypes"
	"github.com/multidist/multidist/go/coordinator/hostexec"
)

// DBConfig contains database connection parameters.
type DBConfig struct {
	SocketDir string
	Database  string
	User      string
	PgPort    int
}

// Host is the lib/pq-backed host adapter. It implements hostexec.Executor
// and hostexec.ConfigService against a live PostgreSQL connection.
type Host struct {
	logger   *slog.Logger
	dbConfig *DBConfig
	db       *sql.DB
	isOpen   atomic.Bool
}

// NewHost creates a new Host instance.
func NewHost(logger *slog.Logger, dbConfig *DBConfig) *Host {
	return &Host{
		logger:   logger,
		dbConfig: dbConfig,
	}
}

// Open creates the database connection over the Unix socket.
// PostgreSQL creates socket files as: {SocketDir}/.s.PGSQL.{port}
func (h *Host) Open() error {
	if h.isOpen.Load() {
		return nil
	}
	if h.dbConfig == nil {
		return fmt.Errorf("database config not set")
	}

	user := h.dbConfig.User
	if user == "" {
		user = "postgres"
	}
	dsn := fmt.Sprintf("user=%s dbname=%s host=%s port=%d sslmode=disable",
		user, h.dbConfig.Database, filepath.Clean(h.dbConfig.SocketDir), h.dbConfig.PgPort)

	h.logger.Info("pghost: opening Unix socket connection",
		"socket_dir", h.dbConfig.SocketDir,
		"database", h.dbConfig.Database,
		"pg_port", h.dbConfig.PgPort)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	h.db = db
	h.isOpen.Store(true)
	return nil
}

// OpenWith connects through an injected connector instead of a DSN.
// Tests use it with a fake driver.
func (h *Host) OpenWith(connector driver.Connector) error {
	if h.isOpen.Load() {
		return nil
	}
	h.db = sql.OpenDB(connector)
	h.isOpen.Store(true)
	return nil
}

// Close closes the host and releases resources.
func (h *Host) Close(ctx context.Context) error {
	if !h.isOpen.Swap(false) {
		return nil
	}

	if h.db != nil {
		if err := h.db.Close(); err != nil {
			// db.Close() can return "write: broken pipe" if the connection is
			// already gone, because lib/pq sends a termination message during
			// Close(). Safe to ignore.
			if errors.Is(err, syscall.EPIPE) {
				h.logger.WarnContext(ctx, "pghost: broken pipe when closing database", "error", err)
				return nil
			}
			return fmt.Errorf("failed to close database: %w", err)
		}
		h.db = nil
	}
	return nil
}

// IsHealthy checks that the host can serve queries.
func (h *Host) IsHealthy() error {
	if h.db == nil {
		return fmt.Errorf("database connection not initialized")
	}
	if err := h.db.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Start implements hostexec.Executor. Local preparation has nothing to set
// up beyond a live connection; EXPLAIN-only descriptors stop here.
func (h *Host) Start(ctx context.Context, desc *hostexec.QueryDesc, flags hostexec.ExecFlags) error {
	if h.db == nil {
		return fmt.Errorf("database connection not initialized")
	}
	if flags&hostexec.ExecFlagExplainOnly != 0 {
		return nil
	}
	return h.db.PingContext(ctx)
}

// Run implements hostexec.Executor. It executes desc.SourceText against
// PostgreSQL and streams results into desc.Dest. Row-returning statements
// go through QueryContext; everything else through ExecContext.
func (h *Host) Run(ctx context.Context, desc *hostexec.QueryDesc, direction hostexec.ScanDirection, count uint64) error {
	if direction == hostexec.NoMovementScan {
		return nil
	}
	if direction == hostexec.BackwardScan {
		return fmt.Errorf("backward scan is not supported by the local host adapter")
	}

	h.logger.DebugContext(ctx, "executing local query", "query", desc.SourceText)

	if returnsRows(desc.SourceText) {
		return h.runQuery(ctx, desc, count)
	}
	return h.runExec(ctx, desc)
}

// returnsRows classifies the statement by its parse tree rather than by
// string prefix. On a parse failure the statement still goes to the server,
// through the non-row path, so the server reports the real error.
func returnsRows(sqlText string) bool {
	result, err := pgquery.Parse(sqlText)
	if err != nil || len(result.Stmts) == 0 {
		return false
	}
	switch result.Stmts[0].Stmt.Node.(type) {
	case *pgquery.Node_SelectStmt, *pgquery.Node_VariableShowStmt, *pgquery.Node_ExplainStmt:
		return true
	default:
		return false
	}
}

func (h *Host) runQuery(ctx context.Context, desc *hostexec.QueryDesc, count uint64) error {
	rows, err := h.db.QueryContext(ctx, desc.SourceText)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	shape := desc.RowShape
	if shape == nil {
		shape, err = shapeFromRows(rows)
		if err != nil {
			return err
		}
	}

	if desc.Dest != nil {
		if err := desc.Dest.Startup(desc.CommandType, shape); err != nil {
			return err
		}
	}

	numCols := shape.NumColumns()
	scanValues := make([]any, numCols)
	scanPointers := make([]any, numCols)
	for i := range scanValues {
		scanPointers[i] = &scanValues[i]
	}

	processed := uint64(0)
	for rows.Next() && (count == hostexec.FetchAll || processed < count) {
		if err := rows.Scan(scanPointers...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		row := &sqltypes.Row{Values: make([]sqltypes.Value, numCols)}
		for i, val := range scanValues {
			row.Values[i] = valueBytes(val)
		}
		if desc.Dest != nil {
			if err := desc.Dest.Receive(row); err != nil {
				return err
			}
		}
		processed++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error reading rows: %w", err)
	}

	desc.Processed = processed
	if desc.Dest != nil {
		return desc.Dest.Shutdown()
	}
	return nil
}

func (h *Host) runExec(ctx context.Context, desc *hostexec.QueryDesc) error {
	result, err := h.db.ExecContext(ctx, desc.SourceText)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		// Some statements don't report affected rows, that's okay.
		rowsAffected = 0
	}
	desc.Processed = uint64(rowsAffected)
	return nil
}

// shapeFromRows derives a row shape from the result set metadata.
func shapeFromRows(rows *sql.Rows) (*sqltypes.RowShape, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	fields := make([]*sqltypes.Field, len(columns))
	for i, col := range columns {
		fields[i] = &sqltypes.Field{
			Name:     col,
			Type:     columnTypes[i].DatabaseTypeName(),
			Nullable: true,
		}
	}
	return sqltypes.NewRowShape(fields...), nil
}

// valueBytes converts a scanned driver value to the wire representation.
func valueBytes(val any) sqltypes.Value {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return append(sqltypes.Value(nil), v...)
	case string:
		return sqltypes.Value(v)
	default:
		return fmt.Appendf(nil, "%v", v)
	}
}

// SetOption implements hostexec.ConfigService by issuing a SET statement.
// Values are quoted with lib/pq; option names are validated and embedded,
// since SET does not take parameters.
func (h *Host) SetOption(ctx context.Context, name, value string, priv hostexec.PrivilegeLevel, scope hostexec.OptionScope) error {
	quotedName, err := quoteOptionName(name)
	if err != nil {
		return err
	}

	scopeWord := "SESSION"
	if scope == hostexec.ScopeLocal {
		scopeWord = "LOCAL"
	}
	stmt := fmt.Sprintf("SET %s %s = %s", scopeWord, quotedName, pq.QuoteLiteral(value))

	h.logger.DebugContext(ctx, "setting configuration option",
		"option", name, "value", value, "scope", scopeWord)

	if _, err := h.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to set option %s: %w", name, err)
	}
	return nil
}

// quoteOptionName quotes each dotted segment of a configuration variable
// name. Custom options have exactly one dot.
func quoteOptionName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty option name")
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if part == "" {
			return "", fmt.Errorf("invalid option name %q", name)
		}
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, "."), nil
}

// RecoveryInProgress reports whether the local PostgreSQL is a standby.
func (h *Host) RecoveryInProgress() (bool, error) {
	var inRecovery bool
	if err := h.db.QueryRow("SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return false, fmt.Errorf("failed to query recovery state: %w", err)
	}
	return inRecovery, nil
}

var (
	_ hostexec.Executor      = (*Host)(nil)
	_ hostexec.ConfigService = (*Host)(nil)
)
