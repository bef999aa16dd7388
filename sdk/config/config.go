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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
	"github.com/ngnhng/durableflow/sdk/client"
	"github.com/ngnhng/durableflow/sdk/internal"
)

// Default configuration constants tuned for SDK clients.
const (
	DefaultNATSHost = "localhost"
	DefaultNATSPort = "4222"

	DefaultDrainTimeout  = 30 * time.Second
	DefaultReconnectWait = 2 * time.Second
	DefaultPingInterval  = 2 * time.Minute

	DefaultMaxReconnects = -1 // reconnect forever
	DefaultMaxPingsOut   = 2
)

// NATSConfig holds NATS-specific configuration knobs for the SDK.
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

// ClientConfig selects where the client works and how it names itself.
type ClientConfig struct {
	Namespace string `json:"namespace" env:"NAMESPACE"`
	// Identity names the client and its workers in history. It is required;
	// nothing is derived from the host.
	Identity string `json:"identity"  env:"IDENTITY"`
	TaskList string `json:"task_list" env:"TASK_LIST"`
	// Serde is one of msgpack, json or proto.
	Serde string `json:"serde"     env:"SERDE"`
}

// TimeoutConfig encapsulates SDK timeout values.
type TimeoutConfig struct {
	RequestTimeout time.Duration `json:"request_timeout" env:"REQUEST_TIMEOUT"`
	PollTimeout    time.Duration `json:"poll_timeout"    env:"POLL_TIMEOUT"`
}

// Config is the public SDK configuration users can construct or load from env.
type Config struct {
	NATS     NATSConfig    `json:"nats"     envPrefix:"NATS_"`
	Client   ClientConfig  `json:"client"   envPrefix:"CLIENT_"`
	Timeouts TimeoutConfig `json:"timeouts" envPrefix:"TIMEOUTS_"`
}

// Default returns a Config with every default applied and no identity.
func Default() *Config {
	cfg := &Config{
		NATS: NATSConfig{
			Host:          DefaultNATSHost,
			Port:          DefaultNATSPort,
			MaxReconnects: DefaultMaxReconnects,
			ReconnectWait: DefaultReconnectWait,
			DrainTimeout:  DefaultDrainTimeout,
			PingInterval:  DefaultPingInterval,
			MaxPingsOut:   DefaultMaxPingsOut,
			ClientName:    api.DefaultClientName,
		},
		Client: ClientConfig{
			Namespace: api.DefaultNamespace,
			TaskList:  api.DefaultTaskList,
			Serde:     serde.NameMsgpack,
		},
		Timeouts: TimeoutConfig{
			RequestTimeout: api.DefaultRequestTimeout,
			PollTimeout:    api.DefaultPollTimeout,
		},
	}
	cfg.NATS.URL = fmt.Sprintf("nats://%s:%s", cfg.NATS.Host, cfg.NATS.Port)
	return cfg
}

// LoadFromEnv loads configuration from environment variables applying defaults.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	cfg.NATS.URL = ""
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = fmt.Sprintf("nats://%s:%s", cfg.NATS.Host, cfg.NATS.Port)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Client.Identity) == "" {
		return fmt.Errorf("client identity is required")
	}
	if _, err := serde.ByName(c.Client.Serde); err != nil {
		return err
	}
	if c.Timeouts.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Timeouts.PollTimeout <= 0 || c.Timeouts.PollTimeout > api.MaxGetHistoryWaitTimeout {
		return fmt.Errorf("poll timeout must be in (0, %s]", api.MaxGetHistoryWaitTimeout)
	}
	return nil
}

// Interface implementation for the NATS transport connection.
func (c *Config) Endpoint() string                 { return c.NATS.URL }
func (c *Config) NATSMaxReconnects() int           { return c.NATS.MaxReconnects }
func (c *Config) NATSReconnectWait() time.Duration { return c.NATS.ReconnectWait }
func (c *Config) NATSDrainTimeout() time.Duration  { return c.NATS.DrainTimeout }
func (c *Config) NATSPingInterval() time.Duration  { return c.NATS.PingInterval }
func (c *Config) NATSMaxPingsOut() int             { return c.NATS.MaxPingsOut }
func (c *Config) NATSClientName() string           { return c.NATS.ClientName }

// Dial connects to NATS and returns a client that closes the connection when
// it is closed.
func (c *Config) Dial(logger *slog.Logger) (client.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s, err := serde.ByName(c.Client.Serde)
	if err != nil {
		return nil, err
	}
	conn, err := internal.Connect(c, internal.ConnOptions{
		Namespace:      c.Client.Namespace,
		Identity:       c.Client.Identity,
		RequestTimeout: c.Timeouts.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	cl, err := client.NewClient(client.Options{
		Transport: conn,
		Namespace: c.Client.Namespace,
		TaskList:  c.Client.TaskList,
		Serde:     s,
		Logger:    logger,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &dialedClient{Client: cl, conn: conn}, nil
}

type dialedClient struct {
	client.Client
	conn *internal.Conn
}

func (c *dialedClient) Close() {
	c.Client.Close()
	c.conn.Close()
}
