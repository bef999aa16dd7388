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
	"github.com/spf13/cobra"

	serverapp "github.com/ngnhng/durableflow/internal/server/app"
)

var serveOpts serverapp.Options

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverapp.Run(cmd.Context(), serveOpts)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.NATSHost, "host", "", "NATS server host (overrides NATS_HOST)")
	serveCmd.Flags().StringVar(&serveOpts.NATSPort, "port", "", "NATS server port (overrides NATS_PORT)")
	serveCmd.Flags().StringVar(&serveOpts.HTTPPort, "http-port", "", "HTTP server port (overrides SERVER_PORT)")
	rootCmd.AddCommand(serveCmd)
}
