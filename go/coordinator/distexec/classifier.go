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

// Package distexec is the entrypoint into distributed query execution: it
// intercepts the host engine's executor lifecycle, classifies plans,
// materializes worker result files into tuple stores and runs derived
// queries to completion on behalf of the distributed planner.
package distexec

import (
	"github.com/multidist/multidist/go/coordinator/plantree"
)

// DistributedPlan is the payload the distributed planner attaches to the
// custom scan nodes it generates. Its presence on any node of a plan tree
// is the sole criterion for classifying the whole tree as distributed.
type DistributedPlan struct {
	// Job is the worker job whose task output files hold this plan
	// fragment's result.
	Job *Job
}

// IsDistributedPlan returns whether a plan tree contains a custom scan
// generated by the distributed planner, by recursively walking through the
// tree. A nil tree is not distributed.
func IsDistributedPlan(plan plantree.Node) bool {
	if plan == nil {
		return false
	}

	if isDistributedScan(plan) {
		return true
	}

	if plan.Left() != nil && IsDistributedPlan(plan.Left()) {
		return true
	}

	if plan.Right() != nil && IsDistributedPlan(plan.Right()) {
		return true
	}

	return false
}

// isDistributedScan returns whether the plan node is a custom scan carrying
// a well-formed distributed plan: the payload list must be non-empty and
// its first element must be a non-nil *DistributedPlan. Anything else is
// treated as an ordinary node, not as an error.
func isDistributedScan(plan plantree.Node) bool {
	if plan.Kind() != plantree.NodeCustomScan {
		return false
	}

	customScan, ok := plan.(plantree.CustomScan)
	if !ok {
		return false
	}

	private := customScan.Private()
	if len(private) == 0 {
		return false
	}

	distributedPlan, ok := private[0].(*DistributedPlan)
	if !ok || distributedPlan == nil {
		return false
	}

	return true
}
