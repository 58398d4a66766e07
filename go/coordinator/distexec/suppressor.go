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
	"github.com/multidist/multidist/go/coordinator/hostexec"
)

// Suppressor recognizes the constraint-validation sub-queries the host
// engine issues while an ALTER TABLE is in progress. Workers validate
// constraints on their own shards, so running these queries on the
// coordinator would scan the data a second time for no benefit. The
// dispatcher answers them with an empty result instead.
type Suppressor struct {
	// Catalog reports whether a schema alteration is in progress.
	Catalog hostexec.Catalog
}

// ShouldSuppress returns whether the query is an ALTER TABLE constraint
// check against a distributed table.
//
// For example, ALTER TABLE ... ATTACH PARTITION checks that the new
// partition doesn't violate constraints of the parent table, which may
// involve running SELECT queries against it.
func (s *Suppressor) ShouldSuppress(desc *hostexec.QueryDesc) bool {
	if s.Catalog == nil || !s.Catalog.AlterTableInProgress() {
		return false
	}

	// Constraint checks are one or more SELECT queries whose results the
	// host inspects for NULLs or for the existence of any row at all.
	if desc.CommandType != hostexec.CmdSelect {
		return false
	}

	// While an ALTER TABLE is in progress the session also runs SELECTs
	// on catalog tables, e.g. when a drop trigger fires. Those are local
	// plans and must execute normally.
	if !IsDistributedPlan(desc.Plan) {
		return false
	}

	return true
}
