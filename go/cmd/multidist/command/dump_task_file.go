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

package command

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/multidist/multidist/go/common/sqltypes"
	"github.com/multidist/multidist/go/coordinator/copydata"
)

type dumpTaskFileCmd struct {
	fs afero.Fs

	format  string
	columns string
}

func addDumpTaskFileCommand(root *cobra.Command) {
	d := &dumpTaskFileCmd{fs: afero.NewOsFs()}
	root.AddCommand(d.createCommand())
}

func (d *dumpTaskFileCmd) createCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump-task-file <file>",
		Short: "Decode a worker task file and print its rows",
		Long: `Decode a COPY-formatted worker task file from the job cache and print its
rows, tab-separated, one row per line. NULL values print as \N.

Examples:
  # Dump a text-format task file with two columns
  multidist dump-task-file --columns id:int8,name:text pgsql_job_cache/job_1/task_3

  # Dump a binary-format task file
  multidist dump-task-file --format binary --columns id:int8 pgsql_job_cache/job_1/task_3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.run(cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&d.format, "format", "text",
		"COPY format of the task file (text or binary)")
	cmd.Flags().StringVar(&d.columns, "columns", "",
		"Comma-separated column list as name:type, e.g. id:int8,name:text")
	return cmd
}

func (d *dumpTaskFileCmd) run(cmd *cobra.Command, filename string) error {
	format, err := copydata.ParseFormat(d.format)
	if err != nil {
		return err
	}
	shape, err := parseColumns(d.columns)
	if err != nil {
		return err
	}

	file, err := d.fs.Open(filename)
	if err != nil {
		return fmt.Errorf("opening task file: %w", err)
	}
	defer file.Close()

	reader, err := copydata.NewReader(file, format, shape)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	count := 0
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("decoding %s: %w", filename, err)
		}
		if err := printRow(out, row); err != nil {
			return err
		}
		count++
	}

	slog.Debug("dumped task file", "file", filename, "rows", count, "format", format.String())
	return nil
}

// parseColumns parses a name:type,... column list into a row shape. All
// columns are nullable; a task file carries no nullability information.
func parseColumns(spec string) (*sqltypes.RowShape, error) {
	if spec == "" {
		return nil, fmt.Errorf("--columns is required")
	}
	parts := strings.Split(spec, ",")
	fields := make([]*sqltypes.Field, len(parts))
	for i, part := range parts {
		name, typ, ok := strings.Cut(part, ":")
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("invalid column %q, want name:type", part)
		}
		fields[i] = &sqltypes.Field{Name: name, Type: typ, Nullable: true}
	}
	return sqltypes.NewRowShape(fields...), nil
}

func printRow(out io.Writer, row *sqltypes.Row) error {
	var sb strings.Builder
	for i, v := range row.Values {
		if i > 0 {
			sb.WriteByte('\t')
		}
		if v.IsNull() {
			sb.WriteString(`\N`)
		} else {
			sb.Write(v)
		}
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(out, sb.String())
	return err
}
