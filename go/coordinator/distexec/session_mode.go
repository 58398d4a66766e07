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

	"github.com/multidist/multidist/go/coordinator/hostexec"
)

// ModeController flips the session's multi-shard modification mode. The
// distributed planner calls it before issuing shard modifications whose
// statement shape requires strict per-shard ordering.
type ModeController struct {
	config  hostexec.ConfigService
	session hostexec.SessionInfo
}

// NewModeController returns a controller bound to the session's
// configuration service.
func NewModeController(config hostexec.ConfigService, session hostexec.SessionInfo) *ModeController {
	return &ModeController{
		config:  config,
		session: session,
	}
}

// SetLocalMultiShardModifyModeToSequential is the programmatic equivalent
// of:
//
//	SET LOCAL multidist.multi_shard_modify_mode = 'sequential';
//
// The change is scoped to the current transaction and uses the caller's
// privilege level, so it never outlives the statement shape that needed it.
func (c *ModeController) SetLocalMultiShardModifyModeToSequential(ctx context.Context) error {
	priv := hostexec.PrivUser
	if c.session != nil && c.session.IsSuperuser() {
		priv = hostexec.PrivSuperuser
	}
	return c.config.SetOption(ctx, MultiShardModifyModeOption, ModeSequential, priv, hostexec.ScopeLocal)
}
