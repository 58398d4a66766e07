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
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multidist/multidist/go/common/sqltypes"
	"github.com/multidist/multidist/go/coordinator/copydata"
	"github.com/multidist/multidist/go/coordinator/hostexec"
	"github.com/multidist/multidist/go/mderrors"
)

func testShape(t *testing.T) *sqltypes.RowShape {
	t.Helper()
	return sqltypes.NewRowShape(
		&sqltypes.Field{Name: "id", Type: "int8", Nullable: false},
		&sqltypes.Field{Name: "name", Type: "text", Nullable: true},
	)
}

func testRow(values ...[]byte) *sqltypes.Row {
	row := &sqltypes.Row{Values: make([]sqltypes.Value, len(values))}
	for i, v := range values {
		row.Values[i] = v
	}
	return row
}

// writeTaskFile encodes rows into the job cache on fs, the way a worker
// fetch would have left them.
func writeTaskFile(t *testing.T, fs afero.Fs, cfg *Config, task *Task, format copydata.Format, shape *sqltypes.RowShape, rows []*sqltypes.Row) {
	t.Helper()
	var buf bytes.Buffer
	w, err := copydata.NewWriter(&buf, format, shape)
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, w.Write(row))
	}
	require.NoError(t, w.Close())

	filename := TaskFilename(cfg.JobCacheDir, task)
	require.NoError(t, fs.MkdirAll(filepath.Dir(filename), 0o755))
	require.NoError(t, afero.WriteFile(fs, filename, buf.Bytes(), 0o644))
}

func TestMaterialize(t *testing.T) {
	for _, binary := range []bool{false, true} {
		name := "text"
		format := copydata.FormatText
		if binary {
			name = "binary"
			format = copydata.FormatBinary
		}

		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			cfg := DefaultConfig()
			cfg.BinaryCopyFormat = binary
			shape := testShape(t)

			job := &Job{ID: 7, Tasks: []*Task{
				{JobID: 7, TaskID: 1},
				{JobID: 7, TaskID: 2},
				{JobID: 7, TaskID: 3},
			}}
			taskRows := [][]*sqltypes.Row{
				{testRow([]byte("1"), []byte("alpha")), testRow([]byte("2"), nil)},
				{}, // an empty task file contributes zero rows
				{testRow([]byte("3"), []byte("gamma"))},
			}
			for i, task := range job.Tasks {
				writeTaskFile(t, fs, cfg, task, format, shape, taskRows[i])
			}

			m := NewMaterializer(fs, cfg, testLogger())
			store, err := m.Materialize(context.Background(), job, shape)
			require.NoError(t, err)
			defer store.Close()

			assert.Equal(t, int64(3), store.Len())
			assert.True(t, store.Sealed())

			// Rows come back in task-list order, task files read front to back.
			reader, err := store.NewReader()
			require.NoError(t, err)
			defer reader.Close()

			want := []*sqltypes.Row{
				testRow([]byte("1"), []byte("alpha")),
				testRow([]byte("2"), nil),
				testRow([]byte("3"), []byte("gamma")),
			}
			for _, w := range want {
				row, err := reader.Next()
				require.NoError(t, err)
				assert.Equal(t, w, row)
			}
		})
	}
}

func TestMaterializeMissingTaskFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	shape := testShape(t)

	job := &Job{ID: 11, Tasks: []*Task{{JobID: 11, TaskID: 1}}}

	m := NewMaterializer(fs, cfg, testLogger())
	store, err := m.Materialize(context.Background(), job, shape)
	require.Error(t, err)
	assert.Nil(t, store)
	assert.ErrorContains(t, err, "opening task file")
}

func TestMaterializeMalformedTaskFileAbortsWholeJob(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	shape := testShape(t)

	job := &Job{ID: 13, Tasks: []*Task{
		{JobID: 13, TaskID: 1},
		{JobID: 13, TaskID: 2},
		{JobID: 13, TaskID: 3},
	}}
	writeTaskFile(t, fs, cfg, job.Tasks[0], copydata.FormatText, shape,
		[]*sqltypes.Row{testRow([]byte("1"), []byte("a"))})
	// Task 2 has a row with the wrong column count.
	badFile := TaskFilename(cfg.JobCacheDir, job.Tasks[1])
	require.NoError(t, afero.WriteFile(fs, badFile, []byte("only-one-column\n"), 0o644))
	writeTaskFile(t, fs, cfg, job.Tasks[2], copydata.FormatText, shape,
		[]*sqltypes.Row{testRow([]byte("3"), []byte("c"))})

	m := NewMaterializer(fs, cfg, testLogger())
	store, err := m.Materialize(context.Background(), job, shape)
	require.Error(t, err)
	assert.Nil(t, store, "no partially loaded store may survive")
	assert.True(t, mderrors.IsCode(err, mderrors.CodeBadFormat))
	assert.ErrorContains(t, err, badFile)
}

func TestMaterializeCanceledContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	shape := testShape(t)

	job := &Job{ID: 17, Tasks: []*Task{{JobID: 17, TaskID: 1}}}
	writeTaskFile(t, fs, cfg, job.Tasks[0], copydata.FormatText, shape,
		[]*sqltypes.Row{testRow([]byte("1"), []byte("a"))})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMaterializer(fs, cfg, testLogger())
	store, err := m.Materialize(ctx, job, shape)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, store)
}

func TestMaterializeSpillsOverMemLimit(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	cfg.TupleStoreMemLimit = 1 // every row spills
	shape := testShape(t)

	job := &Job{ID: 19, Tasks: []*Task{{JobID: 19, TaskID: 1}}}
	var rows []*sqltypes.Row
	for i := 0; i < 100; i++ {
		rows = append(rows, testRow([]byte(fmt.Sprintf("%d", i)), []byte("payload")))
	}
	writeTaskFile(t, fs, cfg, job.Tasks[0], copydata.FormatText, shape, rows)

	m := NewMaterializer(fs, cfg, testLogger())
	store, err := m.Materialize(context.Background(), job, shape)
	require.NoError(t, err)
	defer store.Close()

	require.Equal(t, int64(100), store.Len())
	reader, err := store.NewReader()
	require.NoError(t, err)
	defer reader.Close()
	for i := 0; i < 100; i++ {
		row, err := reader.Next()
		require.NoError(t, err)
		assert.Equal(t, rows[i], row)
	}
}

func TestScanState(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	shape := testShape(t)

	job := &Job{ID: 23, Tasks: []*Task{{JobID: 23, TaskID: 1}}}
	rows := []*sqltypes.Row{
		testRow([]byte("1"), []byte("a")),
		testRow([]byte("2"), []byte("b")),
	}
	writeTaskFile(t, fs, cfg, job.Tasks[0], copydata.FormatText, shape, rows)

	m := NewMaterializer(fs, cfg, testLogger())
	scan := NewScanState(m)
	defer scan.Close()

	// Before materialization the scan yields nothing.
	assert.False(t, scan.Materialized())
	row, err := scan.NextRow(hostexec.ForwardScan)
	require.NoError(t, err)
	assert.Nil(t, row)

	require.NoError(t, scan.Materialize(context.Background(), job, shape))
	assert.True(t, scan.Materialized())

	// Forward, then backward, then forward again.
	row, err = scan.NextRow(hostexec.ForwardScan)
	require.NoError(t, err)
	assert.Equal(t, rows[0], row)

	row, err = scan.NextRow(hostexec.ForwardScan)
	require.NoError(t, err)
	assert.Equal(t, rows[1], row)

	row, err = scan.NextRow(hostexec.BackwardScan)
	require.NoError(t, err)
	assert.Equal(t, rows[0], row)

	row, err = scan.NextRow(hostexec.ForwardScan)
	require.NoError(t, err)
	assert.Equal(t, rows[1], row)

	// Draining past the end yields nil without error.
	row, err = scan.NextRow(hostexec.ForwardScan)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestScanStateMaterializeIsOneShot(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	shape := testShape(t)

	job := &Job{ID: 29, Tasks: []*Task{{JobID: 29, TaskID: 1}}}
	writeTaskFile(t, fs, cfg, job.Tasks[0], copydata.FormatText, shape, nil)

	scan := NewScanState(NewMaterializer(fs, cfg, testLogger()))
	defer scan.Close()

	require.NoError(t, scan.Materialize(context.Background(), job, shape))
	err := scan.Materialize(context.Background(), job, shape)
	require.Error(t, err)
	assert.True(t, mderrors.IsID(err, "MD10002"))
}

func TestTaskFilename(t *testing.T) {
	task := &Task{JobID: 42, TaskID: 7}
	assert.Equal(t, "pgsql_job_cache/job_42", JobDirectoryName("pgsql_job_cache", 42))
	assert.Equal(t, "pgsql_job_cache/job_42/task_7", TaskFilename("pgsql_job_cache", task))
}
