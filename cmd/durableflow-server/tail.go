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
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngnhng/durableflow/internal/server/config"
	jetstreamx "github.com/ngnhng/durableflow/internal/server/infra/jetstream"
	"github.com/ngnhng/durableflow/internal/server/projection"
)

var (
	tailOpts projection.TailOptions
	tailJSON bool
)

var tailCmd = &cobra.Command{
	Use:   "tail [workflow-id]",
	Short: "Follow events published to the history stream",
	Long: `Tail reads the history stream a server publishes to when
SERVER_PUBLISH_HISTORY is set, printing events as they arrive. NATS settings
come from the same environment as serve.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := tailOpts
		if len(args) == 1 {
			opts.WorkflowID = args[0]
		}
		if opts.RunID != "" && opts.WorkflowID == "" {
			return fmt.Errorf("--run requires a workflow id")
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		conn, err := jetstreamx.Connect(cfg, slog.Default())
		if err != nil {
			return err
		}
		defer conn.Close()
		js, err := conn.JS()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		enc := json.NewEncoder(out)
		return projection.Tail(ctx, js, opts, func(rec projection.Record) error {
			if tailJSON {
				return enc.Encode(rec)
			}
			ev := &rec.Event
			_, err := fmt.Fprintf(out, "%s %s/%s #%d %s %s\n",
				ev.Timestamp.Format(time.RFC3339Nano), rec.Execution.WorkflowID, rec.Execution.RunID,
				ev.ID, ev.Type, detail(ev))
			return err
		})
	},
}

func init() {
	f := tailCmd.Flags()
	f.StringVar(&tailOpts.RunID, "run", "", "only follow this run of the workflow")
	f.BoolVar(&tailOpts.New, "new", false, "skip events already in the stream")
	f.BoolVar(&tailJSON, "json", false, "print one JSON object per event")
	rootCmd.AddCommand(tailCmd)
}
