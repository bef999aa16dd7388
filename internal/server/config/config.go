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

package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/internal/server/history"
	"github.com/ngnhng/durableflow/internal/server/types"
)

const (
	DefaultNATSHost        = "localhost"
	DefaultNATSPort        = "4222"
	DefaultReconnectWait   = 2 * time.Second
	DefaultDrainTimeout    = 30 * time.Second
	DefaultPingInterval    = 2 * time.Minute
	DefaultMaxReconnects   = -1 // Reconnect forever
	DefaultMaxPingsOut     = 2
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the complete server configuration
type Config struct {
	Service  string        `json:"service_name" env:"APP_NAME"    envDefault:"durableflow"`
	Version  string        `json:"version"      env:"VERSION"     envDefault:"v0.1.0"`
	Mode     types.Mode    `json:"mode"         env:"MODE"        envDefault:"debug"`
	NATS     NATSConfig    `json:"nats"         envPrefix:"NATS_"`
	Server   ServerConfig  `json:"server"       envPrefix:"SERVER_"`
	History  HistoryConfig `json:"history"      envPrefix:"HISTORY_"`
	Timeouts TimeoutConfig `json:"timeouts"     envPrefix:"TIMEOUTS_"`
	Logger   LoggerConfig  `json:"logger"       envPrefix:"LOG_"`
}

// NATSConfig holds NATS-specific configuration
type NATSConfig struct {
	URL           string        `json:"url"             env:"URL"`
	Host          string        `json:"host"            env:"HOST"`
	Port          string        `json:"port"            env:"PORT"`
	MaxReconnects int           `json:"max_reconnects"  env:"MAX_RECONNECTS"`
	ReconnectWait time.Duration `json:"reconnect_wait"  env:"RECONNECT_WAIT"`
	DrainTimeout  time.Duration `json:"drain_timeout"   env:"DRAIN_TIMEOUT"`
	PingInterval  time.Duration `json:"ping_interval"   env:"PING_INTERVAL"`
	MaxPingsOut   int           `json:"max_pings_out"   env:"MAX_PINGS_OUT"`
	ClientName    string        `json:"client_name"     env:"CLIENT_NAME"`
}

// ServerConfig covers the health endpoint and the request queue group.
type ServerConfig struct {
	Host       string `json:"host"        env:"HOST"        envDefault:"localhost"`
	Port       string `json:"port"        env:"PORT"        envDefault:"8080"`
	QueueGroup string `json:"queue_group" env:"QUEUE_GROUP"`
	// PublishHistory mirrors every appended event to the JetStream history
	// stream.
	PublishHistory bool `json:"publish_history" env:"PUBLISH_HISTORY" envDefault:"true"`
}

// HistoryConfig selects the event log backing the history store.
type HistoryConfig struct {
	Backend history.Backend `json:"backend" env:"BACKEND" envDefault:"memory"`
	Path    string          `json:"path"    env:"PATH"`
	Table   string          `json:"table"   env:"TABLE"`
}

// TimeoutConfig holds timeout-related configuration
type TimeoutConfig struct {
	DecisionTask   time.Duration `json:"decision_task"    env:"DECISION_TASK"`
	MaxHistoryWait time.Duration `json:"max_history_wait" env:"MAX_HISTORY_WAIT"`
	Shutdown       time.Duration `json:"shutdown"         env:"SHUTDOWN"`
}

func defaults() Config {
	return Config{
		NATS: NATSConfig{
			Host:          DefaultNATSHost,
			Port:          DefaultNATSPort,
			MaxReconnects: DefaultMaxReconnects,
			ReconnectWait: DefaultReconnectWait,
			DrainTimeout:  DefaultDrainTimeout,
			PingInterval:  DefaultPingInterval,
			MaxPingsOut:   DefaultMaxPingsOut,
			ClientName:    "durableflow-server",
		},
		Server: ServerConfig{
			QueueGroup: api.ServerQueueGroup,
		},
		History: HistoryConfig{
			Backend: history.BackendMemory,
			Table:   history.DefaultTableName,
		},
		Timeouts: TimeoutConfig{
			DecisionTask:   api.DefaultDecisionTaskTimeout,
			MaxHistoryWait: api.MaxGetHistoryWaitTimeout,
			Shutdown:       DefaultShutdownTimeout,
		},
		Logger: LoggerConfig{
			Level:        "info",
			Format:       "text",
			Output:       "stdout",
			FileMode:     0o644,
			OTELExporter: OTELExporterNone,
		},
	}
}

// LoadConfig reads the configuration from the environment on top of the
// defaults.
func LoadConfig() (*Config, error) {
	cfg := defaults()
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.ResolveNATSURL()
	return &cfg, nil
}

// ResolveNATSURL builds the NATS URL from host and port unless one was set.
func (c *Config) ResolveNATSURL() {
	if c.NATS.URL == "" {
		c.NATS.URL = fmt.Sprintf("nats://%s:%s", c.NATS.Host, c.NATS.Port)
	}
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Service != "", "service name is required")
	check(c.Version != "", "version is required")
	check(c.Mode == "" || c.Mode.Valid(), "unknown mode %q", c.Mode)

	check(c.NATS.Host != "", "NATS host is required")
	check(c.NATS.Port != "", "NATS port is required")
	if c.NATS.Port != "" {
		check(isPort(c.NATS.Port), "invalid NATS port %q", c.NATS.Port)
	}
	check(c.NATS.URL != "", "NATS URL is required")
	check(c.NATS.MaxReconnects >= -1, "NATS max reconnects must be >= -1")
	check(c.NATS.ReconnectWait > 0, "NATS reconnect wait must be positive")
	check(c.NATS.DrainTimeout > 0, "NATS drain timeout must be positive")

	check(c.Server.Host != "", "server host is required")
	check(c.Server.Port != "", "server port is required")
	if c.Server.Port != "" {
		check(isPort(c.Server.Port), "invalid server port %q", c.Server.Port)
	}

	switch c.History.Backend {
	case history.BackendMemory:
	case history.BackendSqlite, history.BackendPebble:
		check(c.History.Path != "", "history path is required for the %s backend", c.History.Backend)
	default:
		errs = append(errs, fmt.Errorf("unknown history backend %q", c.History.Backend))
	}

	check(c.Timeouts.DecisionTask >= 0, "decision task timeout must not be negative")
	check(c.Timeouts.MaxHistoryWait <= api.MaxGetHistoryWaitTimeout,
		"max history wait must not exceed %s", api.MaxGetHistoryWaitTimeout)

	switch c.Logger.OTELExporter {
	case "", OTELExporterNone, OTELExporterHTTP, OTELExporterGRPC:
	default:
		errs = append(errs, fmt.Errorf("unknown log exporter %q", c.Logger.OTELExporter))
	}

	return errors.Join(errs...)
}

func isPort(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0 && n < 65536
}

func (c *Config) ServiceName() string {
	return c.Service
}

func (c *Config) GetVersion() string {
	return c.Version
}

// Endpoint and the NATS accessors below satisfy jetstreamx.Config.
func (c *Config) Endpoint() string                 { return c.NATS.URL }
func (c *Config) NATSMaxReconnects() int           { return c.NATS.MaxReconnects }
func (c *Config) NATSReconnectWait() time.Duration { return c.NATS.ReconnectWait }
func (c *Config) NATSDrainTimeout() time.Duration  { return c.NATS.DrainTimeout }
func (c *Config) NATSPingInterval() time.Duration  { return c.NATS.PingInterval }
func (c *Config) NATSMaxPingsOut() int             { return c.NATS.MaxPingsOut }
func (c *Config) NATSClientName() string           { return c.NATS.ClientName }
