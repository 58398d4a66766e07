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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/multidist/multidist/go/coordinator/plantree"
)

func TestIsDistributedPlan(t *testing.T) {
	tests := []struct {
		name string
		plan plantree.Node
		want bool
	}{
		{
			name: "nil plan",
			plan: nil,
			want: false,
		},
		{
			name: "plain scan",
			plan: &fakeNode{kind: plantree.NodeSeqScan},
			want: false,
		},
		{
			name: "distributed scan at the root",
			plan: distributedScanNode(),
			want: true,
		},
		{
			name: "distributed scan in the left subtree",
			plan: &fakeNode{
				kind: plantree.NodeHashJoin,
				left: &fakeNode{
					kind: plantree.NodeSort,
					left: distributedScanNode(),
				},
				right: &fakeNode{kind: plantree.NodeSeqScan},
			},
			want: true,
		},
		{
			name: "distributed scan in the right subtree",
			plan: &fakeNode{
				kind:  plantree.NodeNestLoop,
				left:  &fakeNode{kind: plantree.NodeIndexScan},
				right: distributedScanNode(),
			},
			want: true,
		},
		{
			name: "custom scan with empty payload is not distributed",
			plan: &fakeNode{kind: plantree.NodeCustomScan},
			want: false,
		},
		{
			name: "custom scan with foreign payload is not distributed",
			plan: &fakeNode{
				kind:    plantree.NodeCustomScan,
				private: []any{"some other extension"},
			},
			want: false,
		},
		{
			name: "custom scan with nil distributed plan is not distributed",
			plan: &fakeNode{
				kind:    plantree.NodeCustomScan,
				private: []any{(*DistributedPlan)(nil)},
			},
			want: false,
		},
		{
			name: "custom scan without payload capability is not distributed",
			plan: bareNode{},
			want: false,
		},
		{
			name: "malformed marker above a well-formed one still classifies",
			plan: &fakeNode{
				kind:    plantree.NodeCustomScan,
				private: []any{"foreign"},
				left:    distributedScanNode(),
			},
			want: true,
		},
		{
			name: "deep chain without markers",
			plan: &fakeNode{
				kind: plantree.NodeLimit,
				left: &fakeNode{
					kind: plantree.NodeAgg,
					left: &fakeNode{
						kind: plantree.NodeSort,
						left: &fakeNode{kind: plantree.NodeSeqScan},
					},
				},
			},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDistributedPlan(tc.plan))
		})
	}
}
