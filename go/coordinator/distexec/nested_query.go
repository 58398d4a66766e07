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

package distexec

import (
	"context"
	"fmt"
	"log/slog"

	pgquery "github.com/pganalyze/pg_query_go/v6"

	"github.com/multidist/multidist/go/coordinator/hostexec"
	"github.com/multidist/multidist/go/mderrors"
)

// QueryRunner executes a derived query to completion within the current
// transaction. The distributed planner uses it when a query it synthesizes
// mid-planning must run immediately instead of being handed back as a plan.
// Execution happens in an internal portal that never shows up in the
// session's cursor listings.
type QueryRunner struct {
	planner hostexec.Planner
	portals hostexec.PortalManager
	txn     hostexec.TxnController
	logger  *slog.Logger
}

// NewQueryRunner wires a runner to the host's planner and portal machinery.
func NewQueryRunner(
	planner hostexec.Planner,
	portals hostexec.PortalManager,
	txn hostexec.TxnController,
	logger *slog.Logger,
) *QueryRunner {
	return &QueryRunner{
		planner: planner,
		portals: portals,
		txn:     txn,
		logger:  logger,
	}
}

// ParseQueryString parses a query string into exactly one statement.
// Multiple statements in one string are a usage error, reported before
// anything executes.
func ParseQueryString(sql string) (*hostexec.ParsedQuery, error) {
	result, err := pgquery.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parsing query: %w", err)
	}
	if len(result.Stmts) != 1 {
		return nil, mderrors.MD10001()
	}

	stmt := result.Stmts[0]
	return &hostexec.ParsedQuery{
		SourceText:  sql,
		Stmt:        stmt,
		CommandType: commandTypeOf(stmt),
	}, nil
}

// commandTypeOf derives the command type from the statement's top-level
// parse node.
func commandTypeOf(stmt *pgquery.RawStmt) hostexec.CommandType {
	if stmt == nil || stmt.Stmt == nil {
		return hostexec.CmdUnknown
	}
	switch stmt.Stmt.Node.(type) {
	case *pgquery.Node_SelectStmt:
		return hostexec.CmdSelect
	case *pgquery.Node_InsertStmt:
		return hostexec.CmdInsert
	case *pgquery.Node_UpdateStmt:
		return hostexec.CmdUpdate
	case *pgquery.Node_DeleteStmt:
		return hostexec.CmdDelete
	default:
		return hostexec.CmdUtility
	}
}

// RunQueryString parses, plans and executes a query string, sending its
// results to dest.
func (r *QueryRunner) RunQueryString(ctx context.Context, sql string, params hostexec.ParamList, dest hostexec.DestReceiver) error {
	parsed, err := ParseQueryString(sql)
	if err != nil {
		return err
	}
	return r.RunQuery(ctx, parsed, params, dest)
}

// RunQuery plans and executes a parsed query, sending its results to dest.
// Planning the subquery may yield another distributed plan; that is fine,
// the portal executes whatever comes back.
func (r *QueryRunner) RunQuery(ctx context.Context, query *hostexec.ParsedQuery, params hostexec.ParamList, dest hostexec.DestReceiver) error {
	stmt, err := r.planner.PlanQuery(ctx, query, params)
	if err != nil {
		return fmt.Errorf("planning query: %w", err)
	}
	return r.RunPlan(ctx, stmt, params, dest)
}

// RunPlan executes a planned statement to completion under the currently
// active snapshot, sending its results to dest. The portal is internal
// (invisible to cursor listings) and is dropped on every exit path.
func (r *QueryRunner) RunPlan(ctx context.Context, stmt *hostexec.PlannedStmt, params hostexec.ParamList, dest hostexec.DestReceiver) (err error) {
	portal, err := r.portals.NewPortal(hostexec.PortalOptions{Visible: false})
	if err != nil {
		return fmt.Errorf("creating portal: %w", err)
	}
	defer func() {
		if dropErr := portal.Drop(ctx); dropErr != nil && err == nil {
			err = fmt.Errorf("dropping portal: %w", dropErr)
		}
	}()

	r.logger.DebugContext(ctx, "running nested query",
		"query", stmt.SourceText,
		"command", stmt.CommandType.String())

	portal.DefineQuery(stmt.CommandType.String(), stmt)
	if err := portal.Start(ctx, params, r.txn.ActiveSnapshot()); err != nil {
		return err
	}
	return portal.Run(ctx, hostexec.FetchAll, dest)
}
