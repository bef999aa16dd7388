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
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ngnhng/durableflow/internal/server/types"
)

// LoggerConfig is read from LOG_* variables.
type LoggerConfig struct {
	Level          string      `env:"LEVEL"         envDefault:"info"`   // trace|debug|info|warn|error
	Format         string      `env:"FORMAT"        envDefault:"text"`   // json|text
	Output         string      `env:"OUTPUT"        envDefault:"stdout"` // stdout|stderr|file|file:/path, comma separated
	FilePath       string      `env:"FILE_PATH"`                         // used by the bare "file" output
	FileMode       os.FileMode `env:"FILE_MODE"     envDefault:"0644"`
	ExtraFieldsRaw string      `env:"FIELDS"`                            // key1=val1,key2=val2
	OTELExporter   string      `env:"OTEL_EXPORTER" envDefault:"none"`   // none|otlp-http|otlp-grpc
	OTELEndpoint   string      `env:"OTEL_ENDPOINT"`
}

const (
	OTELExporterNone = "none"
	OTELExporterHTTP = "otlp-http"
	OTELExporterGRPC = "otlp-grpc"
)

// Writers opens the configured outputs. closeAll releases opened files.
//
//	stdout
//	file (uses LOG_FILE_PATH)
//	stdout,file:/tmp/durableflow.log,stderr
//
// Unknown entries are skipped with a warning. With nothing usable the
// writers fall back to stdout.
func (c *Config) Writers() (writers []io.Writer, closeAll func() error, err error) {
	var files []*os.File
	closeAll = func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}
	seen := make(map[string]bool)
	add := func(key string, w io.Writer) {
		if !seen[key] {
			seen[key] = true
			writers = append(writers, w)
		}
	}
	open := func(path string) error {
		if seen["file:"+path] {
			return nil
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, c.Logger.FileMode)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", path, err)
		}
		files = append(files, f)
		add("file:"+path, f)
		return nil
	}

	for _, raw := range strings.Split(c.Logger.Output, ",") {
		raw = strings.TrimSpace(raw)
		lower := strings.ToLower(raw)
		switch {
		case raw == "":
		case strings.HasPrefix(lower, "file:"):
			err = open(strings.TrimSpace(raw[len("file:"):]))
		case lower == "file":
			if c.Logger.FilePath == "" {
				slog.Warn("LOG_OUTPUT includes 'file' but LOG_FILE_PATH is not set; skipping")
				continue
			}
			err = open(c.Logger.FilePath)
		case lower == "stdout":
			add("stdout", os.Stdout)
		case lower == "stderr":
			add("stderr", os.Stderr)
		default:
			slog.Warn("unknown log output entry", "entry", raw)
		}
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
	}

	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	return writers, closeAll, nil
}

// ParseExtraFields parses ExtraFieldsRaw into a map.
func (lc *LoggerConfig) ParseExtraFields() map[string]string {
	res := make(map[string]string)
	if lc == nil || lc.ExtraFieldsRaw == "" {
		return res
	}
	for _, p := range strings.Split(lc.ExtraFieldsRaw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			res[k] = strings.TrimSpace(v)
		}
	}
	return res
}

func (lc *LoggerConfig) ParseLevel() string {
	if lc == nil {
		return "info"
	}
	lvl := strings.ToLower(strings.TrimSpace(lc.Level))
	switch lvl {
	case "trace", "debug", "info", "warn", "error":
		return lvl
	default:
		return "info"
	}
}

// LevelTrace sits below slog's debug level.
const LevelTrace = slog.Level(-8)

func (c *Config) LogLevel() slog.Level {
	switch c.Logger.ParseLevel() {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) LogFormat() string              { return c.Logger.Format }
func (c *Config) OTELExporter() string           { return c.Logger.OTELExporter }
func (c *Config) OTELEndpoint() string           { return c.Logger.OTELEndpoint }
func (c *Config) ExtraFields() map[string]string { return c.Logger.ParseExtraFields() }
func (c *Config) ModeField() types.Mode          { return c.Mode }
