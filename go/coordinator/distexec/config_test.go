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
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.WritableStandbyCoordinator)
	assert.False(t, cfg.BinaryCopyFormat)
	assert.Equal(t, ModeParallel, cfg.MultiShardModifyMode)
	assert.Equal(t, "pgsql_job_cache", cfg.JobCacheDir)
	assert.Equal(t, int64(4<<20), cfg.TupleStoreMemLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	settings := map[string]any{
		"binary-copy-format":      true,
		"multi-shard-modify-mode": ModeSequential,
		"job-cache-dir":           "/var/lib/multidist/job_cache",
		"tuplestore-mem-limit":    1 << 20,
	}
	raw, err := yaml.Marshal(settings)
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(raw)))

	cfg, err := LoadConfig(v, nil)
	require.NoError(t, err)
	assert.True(t, cfg.BinaryCopyFormat)
	assert.Equal(t, ModeSequential, cfg.MultiShardModifyMode)
	assert.Equal(t, "/var/lib/multidist/job_cache", cfg.JobCacheDir)
	assert.Equal(t, int64(1<<20), cfg.TupleStoreMemLimit)
	// Settings absent from the file keep their defaults.
	assert.False(t, cfg.WritableStandbyCoordinator)
}

func TestLoadConfigFlagsWinOverFile(t *testing.T) {
	raw, err := yaml.Marshal(map[string]any{
		"multi-shard-modify-mode": ModeParallel,
	})
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(raw)))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--multi-shard-modify-mode=sequential",
		"--writable-standby-coordinator",
	}))

	cfg, err := LoadConfig(v, fs)
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, cfg.MultiShardModifyMode)
	assert.True(t, cfg.WritableStandbyCoordinator)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:   "sequential mode is valid",
			mutate: func(c *Config) { c.MultiShardModifyMode = ModeSequential },
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.MultiShardModifyMode = "adaptive" },
			wantErr: "invalid multi-shard-modify-mode",
		},
		{
			name:    "non-positive memory limit",
			mutate:  func(c *Config) { c.TupleStoreMemLimit = 0 },
			wantErr: "tuplestore-mem-limit must be positive",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	raw, err := yaml.Marshal(map[string]any{
		"multi-shard-modify-mode": "adaptive",
	})
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(raw)))

	_, err = LoadConfig(v, nil)
	assert.ErrorContains(t, err, "invalid multi-shard-modify-mode")
}
