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
	"path/filepath"
)

// Task identifies one unit of distributed work. Every task produces exactly
// one output file under its job's directory in the job cache.
type Task struct {
	// JobID is the job this task belongs to.
	JobID uint64

	// TaskID is unique within the job.
	TaskID uint32
}

// Job is one distributed-execution unit: an ordered set of tasks whose
// output files are merged into a single result. Task order is insertion
// order; the merged result carries no row-order guarantee beyond it.
type Job struct {
	// ID is the stable job identifier.
	ID uint64

	// Tasks are loaded strictly in slice order during materialization.
	Tasks []*Task
}

// JobDirectoryName returns the job's directory inside the job cache.
func JobDirectoryName(cacheDir string, jobID uint64) string {
	return filepath.Join(cacheDir, fmt.Sprintf("job_%d", jobID))
}

// TaskFilename returns the path of the task's output file.
func TaskFilename(cacheDir string, task *Task) string {
	return filepath.Join(JobDirectoryName(cacheDir, task.JobID), fmt.Sprintf("task_%d", task.TaskID))
}
