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
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/durableflow/api/serde"
	"github.com/ngnhng/durableflow/internal/server/config"
	"github.com/ngnhng/durableflow/internal/server/handler/command"
	httphandler "github.com/ngnhng/durableflow/internal/server/handler/http"
	"github.com/ngnhng/durableflow/internal/server/history"
	jetstreamx "github.com/ngnhng/durableflow/internal/server/infra/jetstream"
	"github.com/ngnhng/durableflow/internal/server/service"
)

type Manager struct {
	cfg        *config.Config
	logger     *slog.Logger
	conn       *jetstreamx.Connection
	store      *history.Store
	sink       *jetstreamx.HistorySink
	handler    *command.Handler
	httpServer *httphandler.Server
}

func NewManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Manager, err error) {
	codec := &serde.MsgpackSerde{}
	m := &Manager{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			m.Shutdown(ctx)
		}
	}()

	m.conn, err = jetstreamx.Connect(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if !m.conn.IsConnected() {
		return nil, errors.New("cannot connect to NATS instance")
	}
	if err := m.ensureStreams(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure NATS streams: %w", err)
	}

	m.store, err = history.Open(cfg.History.Backend, cfg.History.Path, cfg.History.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	svcOpts := service.Options{
		Store:               m.store,
		Logger:              logger,
		DecisionTaskTimeout: cfg.Timeouts.DecisionTask,
		MaxHistoryWait:      cfg.Timeouts.MaxHistoryWait,
	}
	if cfg.Server.PublishHistory {
		m.sink, err = jetstreamx.NewHistorySink(m.conn, codec)
		if err != nil {
			return nil, fmt.Errorf("failed to create history sink: %w", err)
		}
		svcOpts.Sink = m.sink
	}
	svc := service.New(svcOpts)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.handler, err = command.NewHandler(svc, command.Options{
		Codec:      codec,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		return nil, err
	}
	m.httpServer = httphandler.NewServer(httphandler.Options{
		Addr:            net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Reader:          svc,
		Conn:            m.conn,
		Serde:           codec,
		Gatherer:        reg,
		Logger:          logger,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
	})
	return m, nil
}

func (m *Manager) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		m.logger.Info("starting command processor")
		return command.RunProcessor(gCtx, m.conn, m.handler, m.cfg.Server.QueueGroup)
	})

	m.logger.Info("manager is running",
		"history_backend", m.cfg.History.Backend,
		"publish_history", m.cfg.Server.PublishHistory,
	)

	err := g.Wait()

	m.logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.shutdownTimeout())
	defer cancel()
	m.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("manager stopped with error", "error", err)
		return err
	}

	m.logger.Info("manager shutdown complete")
	return nil
}

func (m *Manager) shutdownTimeout() time.Duration {
	if m.cfg.Timeouts.Shutdown > 0 {
		return m.cfg.Timeouts.Shutdown
	}
	return config.DefaultShutdownTimeout
}

// Shutdown flushes pending history publishes, then closes the store and the
// NATS connection.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.sink != nil {
		if err := m.sink.Flush(ctx); err != nil {
			m.logger.Warn("history publishes still pending at shutdown", "error", err)
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Error("failed to close history store", "error", err)
		}
	}
	if m.conn != nil {
		m.logger.Info("closing NATS connection")
		m.conn.Close()
	}
}
