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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ngnhng/durableflow/internal/server/history"
	"github.com/ngnhng/durableflow/internal/server/types"
)

func validConfig() *Config {
	cfg := defaults()
	cfg.Service = "test-service"
	cfg.Version = "v1.0.0"
	cfg.Mode = types.ModeDebug
	cfg.Server.Host = "localhost"
	cfg.Server.Port = "8080"
	cfg.Logger.OTELExporter = OTELExporterNone
	cfg.ResolveNATSURL()
	return &cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing service name", mutate: func(c *Config) { c.Service = "" }, errMsg: "service name is required"},
		{name: "missing version", mutate: func(c *Config) { c.Version = "" }, errMsg: "version is required"},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "chaos" }, errMsg: "unknown mode"},
		{name: "missing NATS host", mutate: func(c *Config) { c.NATS.Host = "" }, errMsg: "NATS host is required"},
		{name: "missing NATS port", mutate: func(c *Config) { c.NATS.Port = "" }, errMsg: "NATS port is required"},
		{name: "invalid NATS port", mutate: func(c *Config) { c.NATS.Port = "invalid" }, errMsg: "invalid NATS port"},
		{name: "missing NATS URL", mutate: func(c *Config) { c.NATS.URL = "" }, errMsg: "NATS URL is required"},
		{name: "invalid NATS max reconnects", mutate: func(c *Config) { c.NATS.MaxReconnects = -2 }, errMsg: "NATS max reconnects must be >= -1"},
		{name: "invalid NATS reconnect wait", mutate: func(c *Config) { c.NATS.ReconnectWait = 0 }, errMsg: "NATS reconnect wait must be positive"},
		{name: "invalid NATS drain timeout", mutate: func(c *Config) { c.NATS.DrainTimeout = 0 }, errMsg: "NATS drain timeout must be positive"},
		{name: "missing server host", mutate: func(c *Config) { c.Server.Host = "" }, errMsg: "server host is required"},
		{name: "invalid server port", mutate: func(c *Config) { c.Server.Port = "not-a-number" }, errMsg: "invalid server port"},
		{name: "unknown history backend", mutate: func(c *Config) { c.History.Backend = "tape" }, errMsg: "unknown history backend"},
		{
			name:   "sqlite without path",
			mutate: func(c *Config) { c.History.Backend = history.BackendSqlite },
			errMsg: "history path is required for the sqlite backend",
		},
		{
			name: "pebble with path",
			mutate: func(c *Config) {
				c.History.Backend = history.BackendPebble
				c.History.Path = "/var/lib/durableflow"
			},
		},
		{
			name:   "history wait above ceiling",
			mutate: func(c *Config) { c.Timeouts.MaxHistoryWait = time.Hour },
			errMsg: "max history wait must not exceed",
		},
		{name: "unknown log exporter", mutate: func(c *Config) { c.Logger.OTELExporter = "carrier-pigeon" }, errMsg: "unknown log exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() expected error, got nil")
				return
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("NATS_HOST", "nats.internal")
	t.Setenv("NATS_PORT", "4333")
	t.Setenv("HISTORY_BACKEND", "sqlite")
	t.Setenv("HISTORY_PATH", "/tmp/history.db")
	t.Setenv("TIMEOUTS_DECISION_TASK", "15s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MODE", "release")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.NATS.URL != "nats://nats.internal:4333" {
		t.Errorf("NATS.URL = %v", cfg.NATS.URL)
	}
	if cfg.History.Backend != history.BackendSqlite || cfg.History.Path != "/tmp/history.db" {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.History.Table != history.DefaultTableName {
		t.Errorf("History.Table = %v, want default", cfg.History.Table)
	}
	if cfg.Timeouts.DecisionTask != 15*time.Second {
		t.Errorf("Timeouts.DecisionTask = %v", cfg.Timeouts.DecisionTask)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel() = %v", cfg.LogLevel())
	}
	if cfg.Mode != types.ModeRelease {
		t.Errorf("Mode = %v", cfg.Mode)
	}
	if cfg.Server.QueueGroup == "" {
		t.Errorf("Server.QueueGroup is empty")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadConfig_RejectsUnknownMode(t *testing.T) {
	t.Setenv("MODE", "chaos")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for unknown mode")
	}
}

func TestConfig_Writers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	cfg := validConfig()
	cfg.Logger.Output = "stdout, file:" + path + ", stdout, bogus"
	writers, closeAll, err := cfg.Writers()
	if err != nil {
		t.Fatalf("Writers() error = %v", err)
	}
	defer closeAll()

	if len(writers) != 2 {
		t.Fatalf("len(writers) = %d, want 2", len(writers))
	}
	if writers[0] != os.Stdout {
		t.Errorf("writers[0] is not stdout")
	}
	if _, err := writers[1].Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello\n" {
		t.Errorf("log file = %q, %v", data, err)
	}
}

func TestConfig_WritersFallback(t *testing.T) {
	cfg := validConfig()
	cfg.Logger.Output = "file"
	writers, closeAll, err := cfg.Writers()
	if err != nil {
		t.Fatalf("Writers() error = %v", err)
	}
	defer closeAll()
	if len(writers) != 1 || writers[0] != os.Stdout {
		t.Errorf("Writers() = %v, want stdout fallback", writers)
	}
}

func TestLoggerConfig_ParseExtraFields(t *testing.T) {
	lc := &LoggerConfig{ExtraFieldsRaw: "region=eu, zone = a ,broken,=x"}
	got := lc.ParseExtraFields()
	if len(got) != 2 || got["region"] != "eu" || got["zone"] != "a" {
		t.Errorf("ParseExtraFields() = %v", got)
	}
}

func TestConfig_LogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for level, want := range tests {
		cfg := validConfig()
		cfg.Logger.Level = level
		if got := cfg.LogLevel(); got != want {
			t.Errorf("LogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}

func TestConfig_ServiceName(t *testing.T) {
	cfg := &Config{Service: "test-service", Version: "v1.2.3"}
	if got := cfg.ServiceName(); got != "test-service" {
		t.Errorf("ServiceName() = %v, want %v", got, "test-service")
	}
	if got := cfg.GetVersion(); got != "v1.2.3" {
		t.Errorf("GetVersion() = %v, want %v", got, "v1.2.3")
	}
}
