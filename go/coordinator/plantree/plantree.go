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

// Package plantree exposes the host engine's execution-plan tree to the
// coordinator. The tree is owned by the host for the duration of one query;
// multidist only reads it, so the package offers traversal capabilities and
// nothing that mutates. Plan trees are acyclic by construction on the host
// side.
package plantree

// NodeKind identifies the operator a plan node represents. Only the kinds
// the coordinator branches on are enumerated individually; everything else
// is NodeOther.
type NodeKind int

const (
	NodeOther NodeKind = iota
	NodeResult
	NodeSeqScan
	NodeIndexScan
	NodeNestLoop
	NodeHashJoin
	NodeMergeJoin
	NodeAgg
	NodeSort
	NodeLimit
	NodeCustomScan
)

// String returns the kind name for logging.
func (k NodeKind) String() string {
	switch k {
	case NodeResult:
		return "Result"
	case NodeSeqScan:
		return "SeqScan"
	case NodeIndexScan:
		return "IndexScan"
	case NodeNestLoop:
		return "NestLoop"
	case NodeHashJoin:
		return "HashJoin"
	case NodeMergeJoin:
		return "MergeJoin"
	case NodeAgg:
		return "Agg"
	case NodeSort:
		return "Sort"
	case NodeLimit:
		return "Limit"
	case NodeCustomScan:
		return "CustomScan"
	default:
		return "Other"
	}
}

// Node is the minimal read-only view of one plan node. Left is evaluated
// before Right by every walker in the coordinator.
type Node interface {
	// Kind returns the operator kind of this node.
	Kind() NodeKind

	// Left returns the left (outer) subtree, or nil.
	Left() Node

	// Right returns the right (inner) subtree, or nil.
	Right() Node
}

// CustomScan is a plan node carrying an opaque payload list. The host
// engine uses custom scan nodes as extension points; the distributed
// executor marks its scan nodes by placing a *distexec.DistributedPlan as
// the first payload element.
type CustomScan interface {
	Node

	// Private returns the node's opaque payload list. Callers must not
	// mutate the returned slice.
	Private() []any
}
