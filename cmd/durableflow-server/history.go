// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/internal/server/history"
)

type historyOptions struct {
	backend   string
	path      string
	table     string
	namespace string
	asJSON    bool
}

var historyOpts historyOptions

var historyCmd = &cobra.Command{
	Use:   "history <workflow-id> <run-id>",
	Short: "Print the stored history of a run",
	Long: `History reads a run's events directly from a sqlite or pebble history
store. Stop the server first when using pebble, which allows one process at
a time.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printHistory(cmd, historyOpts, args[0], args[1])
	},
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyOpts.backend, "backend", string(history.BackendSqlite), "history backend: sqlite or pebble")
	f.StringVar(&historyOpts.path, "path", "", "path of the history database")
	f.StringVar(&historyOpts.table, "table", history.DefaultTableName, "sqlite table name")
	f.StringVar(&historyOpts.namespace, "namespace", api.DefaultNamespace, "workflow namespace")
	f.BoolVar(&historyOpts.asJSON, "json", false, "print one JSON object per event")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(cmd *cobra.Command, opts historyOptions, workflowID, runID string) (err error) {
	backend := history.Backend(opts.backend)
	if backend == history.BackendMemory {
		return errors.New("the memory backend does not persist history")
	}
	if opts.path == "" {
		return errors.New("--path is required")
	}

	store, err := history.Open(backend, opts.path, opts.table)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	key := history.RunKey{Namespace: opts.namespace, WorkflowID: workflowID, RunID: runID}
	events, err := store.Read(cmd.Context(), key, 1)
	if err != nil {
		return fmt.Errorf("read history of %s: %w", key, err)
	}
	if len(events) == 0 {
		return fmt.Errorf("no history for %s", key)
	}
	if opts.asJSON {
		return writeJSONLines(cmd.OutOrStdout(), events)
	}
	return writeTable(cmd.OutOrStdout(), events)
}

func writeJSONLines(w io.Writer, events []api.HistoryEvent) error {
	enc := json.NewEncoder(w)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(w io.Writer, events []api.HistoryEvent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTYPE\tDETAIL")
	for i := range events {
		ev := &events[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ev.ID, ev.Timestamp.Format(time.RFC3339Nano), ev.Type, detail(ev))
	}
	return tw.Flush()
}

func detail(ev *api.HistoryEvent) string {
	var s string
	switch {
	case ev.Name != "" && ev.CorrelationID != 0:
		s = fmt.Sprintf("%s #%d", ev.Name, ev.CorrelationID)
	case ev.Name != "":
		s = ev.Name
	case ev.CorrelationID != 0:
		s = fmt.Sprintf("#%d", ev.CorrelationID)
	}
	if ev.Attempt > 1 {
		s += fmt.Sprintf(" attempt=%d", ev.Attempt)
	}
	if ev.Failure != nil {
		s += " failure=" + ev.Failure.Error()
	}
	if ev.NewRunID != "" {
		s += " new_run=" + ev.NewRunID
	}
	return s
}
