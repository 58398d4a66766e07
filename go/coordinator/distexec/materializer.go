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
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/multidist/multidist/go/common/sqltypes"
	"github.com/multidist/multidist/go/coordinator/copydata"
	"github.com/multidist/multidist/go/coordinator/hostexec"
	"github.com/multidist/multidist/go/coordinator/tuplestore"
	"github.com/multidist/multidist/go/mderrors"
)

// Materializer merges the task output files of one distributed job into a
// single tuple store. By the time it runs, the worker phase is over and
// every task file already exists in the job cache.
type Materializer struct {
	fs     afero.Fs
	config *Config
	logger *slog.Logger
}

// NewMaterializer creates a materializer reading task files from fs.
func NewMaterializer(fs afero.Fs, config *Config, logger *slog.Logger) *Materializer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Materializer{
		fs:     fs,
		config: config,
		logger: logger,
	}
}

// Materialize loads every task file of the job, in task-list order, into
// one fresh spill-capable tuple store and seals it. The transfer format is
// decided once for the whole job. Any failure aborts the whole operation:
// a partially loaded distributed result is indistinguishable from a wrong
// one, so nothing of it stays visible.
func (m *Materializer) Materialize(ctx context.Context, job *Job, shape *sqltypes.RowShape) (*tuplestore.Store, error) {
	format := copydata.FormatText
	if m.config.BinaryCopyFormat {
		format = copydata.FormatBinary
	}

	store := tuplestore.New(shape, tuplestore.Options{
		MemLimit: m.config.TupleStoreMemLimit,
		Fs:       m.fs,
	})

	for _, task := range job.Tasks {
		filename := TaskFilename(m.config.JobCacheDir, task)
		if err := m.LoadTaskFile(ctx, filename, format, shape, store); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	if err := store.DoneStoring(); err != nil {
		_ = store.Close()
		return nil, err
	}

	m.logger.DebugContext(ctx, "materialized distributed result",
		"job_id", job.ID,
		"tasks", len(job.Tasks),
		"rows", store.Len(),
		"format", format.String())
	return store, nil
}

// LoadTaskFile parses the rows of one COPY-formatted task file and appends
// them to the store. Scratch is bounded per row, not per file: the decoder
// reuses its buffers and the store clones what it keeps. An empty file
// contributes zero rows. A row that does not match the shape fails the
// load; nothing recovers a partially readable file.
func (m *Materializer) LoadTaskFile(ctx context.Context, filename string, format copydata.Format, shape *sqltypes.RowShape, store *tuplestore.Store) error {
	file, err := m.fs.Open(filename)
	if err != nil {
		return fmt.Errorf("opening task file: %w", err)
	}
	defer file.Close()

	reader, err := copydata.NewReader(file, format, shape)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return mderrors.MD10003(fmt.Sprintf("%s: %v", filename, err))
		}
		if err := store.Put(row); err != nil {
			return err
		}
	}
}

// ScanState is the per-scan-node side of materialization. The consuming
// scan owns exactly one tuple store for the life of one query execution and
// drains it exactly once.
type ScanState struct {
	materializer *Materializer

	store  *tuplestore.Store
	reader *tuplestore.Reader
}

// NewScanState creates the state for one distributed scan node instance.
func NewScanState(materializer *Materializer) *ScanState {
	return &ScanState{materializer: materializer}
}

// Materialized reports whether the scan already holds its tuple store.
func (s *ScanState) Materialized() bool {
	return s.store != nil
}

// Store returns the scan's tuple store, or nil before materialization.
func (s *ScanState) Store() *tuplestore.Store {
	return s.store
}

// Materialize populates the scan's tuple store from the job's task files.
// It is one-shot: a scan that already holds a store must not materialize
// again.
func (s *ScanState) Materialize(ctx context.Context, job *Job, shape *sqltypes.RowShape) error {
	if s.store != nil {
		return mderrors.MD10002()
	}
	store, err := s.materializer.Materialize(ctx, job, shape)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// NextRow reads the next tuple from the scan's store in the given
// direction. It returns nil once all tuples are read, or when the scan has
// no store at all.
func (s *ScanState) NextRow(direction hostexec.ScanDirection) (*sqltypes.Row, error) {
	if s.store == nil {
		return nil, nil
	}
	if s.reader == nil {
		reader, err := s.store.NewReader()
		if err != nil {
			return nil, err
		}
		s.reader = reader
	}

	var row *sqltypes.Row
	var err error
	if direction == hostexec.BackwardScan {
		row, err = s.reader.Prev()
	} else {
		row, err = s.reader.Next()
	}
	if err == io.EOF {
		return nil, nil
	}
	return row, err
}

// Close releases the reader and the store.
func (s *ScanState) Close() error {
	if s.reader != nil {
		_ = s.reader.Close()
		s.reader = nil
	}
	if s.store != nil {
		err := s.store.Close()
		s.store = nil
		return err
	}
	return nil
}
