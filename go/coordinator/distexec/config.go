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
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Multi-shard modification modes.
const (
	// ModeParallel lets multi-shard modifications run on all shards
	// concurrently.
	ModeParallel = "parallel"

	// ModeSequential forces multi-shard modifications to execute one
	// shard at a time.
	ModeSequential = "sequential"
)

// MultiShardModifyModeOption is the session configuration variable that
// controls the connection mode for multi-shard modifications, DDL and
// real-time SELECT queries.
const MultiShardModifyModeOption = "multidist.multi_shard_modify_mode"

// Config carries the coordinator-side execution settings. One value exists
// per process; per-session overrides go through the host's configuration
// variables instead.
type Config struct {
	// WritableStandbyCoordinator allows distributed writes from a
	// read-only secondary coordinator.
	WritableStandbyCoordinator bool `mapstructure:"writable-standby-coordinator"`

	// BinaryCopyFormat makes workers transfer task results in COPY
	// binary format instead of text.
	BinaryCopyFormat bool `mapstructure:"binary-copy-format"`

	// MultiShardModifyMode is the default mode for multi-shard
	// modifications, ModeParallel or ModeSequential.
	MultiShardModifyMode string `mapstructure:"multi-shard-modify-mode"`

	// JobCacheDir is the directory worker task output files land in.
	JobCacheDir string `mapstructure:"job-cache-dir"`

	// TupleStoreMemLimit is the per-store byte budget before rows spill
	// to disk.
	TupleStoreMemLimit int64 `mapstructure:"tuplestore-mem-limit"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		WritableStandbyCoordinator: false,
		BinaryCopyFormat:           false,
		MultiShardModifyMode:       ModeParallel,
		JobCacheDir:                "pgsql_job_cache",
		TupleStoreMemLimit:         4 << 20,
	}
}

// RegisterFlags registers the coordinator execution flags.
func RegisterFlags(fs *pflag.FlagSet) {
	defaults := DefaultConfig()
	fs.Bool("writable-standby-coordinator", defaults.WritableStandbyCoordinator,
		"Allow distributed writes from a read-only standby coordinator")
	fs.Bool("binary-copy-format", defaults.BinaryCopyFormat,
		"Transfer worker task results in COPY binary format")
	fs.String("multi-shard-modify-mode", defaults.MultiShardModifyMode,
		"Default execution mode for multi-shard modifications (parallel or sequential)")
	fs.String("job-cache-dir", defaults.JobCacheDir,
		"Directory worker task output files are read from")
	fs.Int64("tuplestore-mem-limit", defaults.TupleStoreMemLimit,
		"Per-query tuple store memory budget in bytes before spilling to disk")
}

// LoadConfig resolves the configuration from viper (config file plus
// environment) and, when given, a parsed flag set. Flags win over the file.
func LoadConfig(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can act on.
func (c *Config) Validate() error {
	if c.MultiShardModifyMode != ModeParallel && c.MultiShardModifyMode != ModeSequential {
		return fmt.Errorf("invalid multi-shard-modify-mode %q, want %q or %q",
			c.MultiShardModifyMode, ModeParallel, ModeSequential)
	}
	if c.TupleStoreMemLimit <= 0 {
		return fmt.Errorf("tuplestore-mem-limit must be positive, got %d", c.TupleStoreMemLimit)
	}
	return nil
}
