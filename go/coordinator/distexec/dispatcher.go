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
	"log/slog"

	"github.com/multidist/multidist/go/coordinator/hostexec"
)

// Dispatcher implements the executor lifecycle hooks the host engine calls
// at the start and run phases of every query. It is installed once at
// process start and wraps the host's standard executor; one Dispatcher
// serves one session.
type Dispatcher struct {
	host       hostexec.Executor
	txn        hostexec.TxnController
	session    *hostexec.SessionState
	suppressor *Suppressor
	config     *Config
	logger     *slog.Logger
}

// NewDispatcher wires the lifecycle hooks to their collaborators.
func NewDispatcher(
	host hostexec.Executor,
	txn hostexec.TxnController,
	catalog hostexec.Catalog,
	session *hostexec.SessionState,
	config *Config,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		host:       host,
		txn:        txn,
		session:    session,
		suppressor: &Suppressor{Catalog: catalog},
		config:     config,
		logger:     logger,
	}
}

// ExecutorStart is the start-phase hook, called when the host prepares a
// query for execution or EXPLAIN.
func (d *Dispatcher) ExecutorStart(ctx context.Context, desc *hostexec.QueryDesc, flags hostexec.ExecFlags) error {
	if d.txn.RecoveryInProgress() && d.config.WritableStandbyCoordinator &&
		IsDistributedPlan(desc.Plan) {
		return d.startWithWriteOverride(ctx, desc, flags)
	}
	return d.host.Start(ctx, desc, flags)
}

// startWithWriteOverride prepares a distributed query on a standby
// coordinator. The host's start phase rejects writes while the read-only
// restriction is in force, so the restriction is lifted for the duration of
// preparation and restored on every exit path, including failures.
func (d *Dispatcher) startWithWriteOverride(ctx context.Context, desc *hostexec.QueryDesc, flags hostexec.ExecFlags) error {
	saved := d.txn.ReadOnly()
	d.txn.SetReadOnly(false)
	defer d.txn.SetReadOnly(saved)

	d.logger.DebugContext(ctx, "lifting read-only restriction for standby preparation",
		"query", desc.SourceText)
	return d.host.Start(ctx, desc, flags)
}

// ExecutorRun is the run-phase hook, called when the host executes a query.
func (d *Dispatcher) ExecutorRun(ctx context.Context, desc *hostexec.QueryDesc, direction hostexec.ScanDirection, count uint64) error {
	if desc.Dest != nil && desc.Dest.Kind() == hostexec.DestSPI {
		// The query runs via SPI, so it is part of a procedural call
		// inside a bigger transaction. The restore puts the counter back
		// to its pre-call value rather than decrementing it, because an
		// abort can unwind several call levels at once. The abort handler
		// resets the counter to zero separately.
		restore := d.session.EnterFunctionCall()
		defer restore()
	}

	// Constraint validation queries issued during ALTER TABLE are answered
	// with an empty result: workers validate the constraints shard by
	// shard, so the coordinator scan would be redundant. The synthetic
	// result is indistinguishable from a query returning zero rows.
	if d.suppressor.ShouldSuppress(desc) {
		d.logger.DebugContext(ctx, "substituting empty result for constraint check",
			"query", desc.SourceText)
		return d.substituteEmptyResult(desc)
	}

	return d.host.Run(ctx, desc, direction, count)
}

// substituteEmptyResult reports zero processed rows and runs the
// destination sink through its startup/shutdown pair against the query's
// declared row shape, exactly as an empty execution would.
func (d *Dispatcher) substituteEmptyResult(desc *hostexec.QueryDesc) error {
	desc.Processed = 0

	if err := desc.Dest.Startup(hostexec.CmdSelect, desc.RowShape); err != nil {
		return err
	}
	return desc.Dest.Shutdown()
}
