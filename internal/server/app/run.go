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


package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/ngnhng/durableflow/internal/server/config"
	"github.com/ngnhng/durableflow/internal/server/logger"
)

// Options override values loaded from the environment.
type Options struct {
	NATSHost string
	NATSPort string
	HTTPPort string
}

func (o Options) apply(cfg *config.Config) {
	if o.NATSHost != "" || o.NATSPort != "" {
		// Flags win over a URL taken from the environment.
		cfg.NATS.URL = ""
	}
	if o.NATSHost != "" {
		cfg.NATS.Host = o.NATSHost
	}
	if o.NATSPort != "" {
		cfg.NATS.Port = o.NATSPort
	}
	if o.HTTPPort != "" {
		cfg.Server.Port = o.HTTPPort
	}
	cfg.ResolveNATSURL()
}

// Run loads configuration, starts the server and blocks until SIGINT or
// SIGTERM.
func Run(ctx context.Context, opts Options) (err error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	writers, closeWriters, err := cfg.Writers()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeWriters())
	}()

	log, err := logger.NewLogger(ctx, cfg, writers...)
	if err != nil {
		return err
	}
	slog.SetDefault(log.Slogger)
	defer func() {
		if err := log.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Error("failed to shut down logger provider", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := NewManager(ctx, cfg, log.Slogger)
	if err != nil {
		return err
	}
	return mgr.Run(ctx)
}
