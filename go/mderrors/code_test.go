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

package mderrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := MD10003("job_1/task_2: bad tuple")
	assert.Equal(t, "MD10003: malformed task file: job_1/task_2: bad tuple", err.Error())

	// No-arg factories keep the short message verbatim.
	assert.Equal(t, "MD10001: can only execute a single query", MD10001().Error())
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("loading: %w", MD10002())

	assert.True(t, IsID(err, "MD10002"))
	assert.False(t, IsID(err, "MD10001"))
	assert.True(t, IsCode(err, CodeFailedPrecondition))
	assert.False(t, IsCode(err, CodeUsage))

	// errors.Is matches on ID, or on Code alone for a bare-code target.
	assert.True(t, errors.Is(err, &Error{ID: "MD10002"}))
	assert.True(t, errors.Is(err, &Error{Code: CodeFailedPrecondition}))
	assert.False(t, errors.Is(err, &Error{ID: "MD10004"}))
}

func TestCatalogIsRegistered(t *testing.T) {
	seen := map[string]bool{}
	for _, factory := range Errors {
		err := factory()
		require.NotEmpty(t, err.ID)
		require.NotEmpty(t, err.Description)
		assert.False(t, seen[err.ID], "duplicate id %s", err.ID)
		seen[err.ID] = true
	}
}
