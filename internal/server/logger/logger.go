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

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/ngnhng/durableflow/internal/server/types"
)

// Options is what the logger needs from the server configuration.
type Options interface {
	ServiceName() string
	GetVersion() string
	ModeField() types.Mode
	LogLevel() slog.Level
	LogFormat() string
	OTELExporter() string
	OTELEndpoint() string
	ExtraFields() map[string]string
}

type Logger struct {
	Slogger *slog.Logger
	// Provider is nil unless logs are exported over OTLP.
	Provider *sdklog.LoggerProvider
}

// NewLogger builds the server logger. Debug mode writes colourised lines to
// the writers. Release mode writes structured records to the writers and,
// with an exporter configured, ships them over OTLP as well.
func NewLogger(ctx context.Context, opts Options, writers ...io.Writer) (*Logger, error) {
	if len(writers) == 0 {
		return nil, fmt.Errorf("no log writer")
	}
	out := io.MultiWriter(writers...)
	level := opts.LogLevel()

	var (
		handlers []slog.Handler
		provider *sdklog.LoggerProvider
	)
	if opts.ModeField() == types.ModeDebug {
		handlers = append(handlers, NewDebugHandler(out, level))
	} else {
		handlerOpts := &slog.HandlerOptions{Level: level}
		if strings.EqualFold(opts.LogFormat(), "json") {
			handlers = append(handlers, slog.NewJSONHandler(out, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, handlerOpts))
		}

		exporter, err := newExporter(ctx, opts.OTELExporter(), opts.OTELEndpoint())
		if err != nil {
			return nil, err
		}
		if exporter != nil {
			res, err := resource.Merge(
				resource.Default(),
				resource.NewSchemaless(
					semconv.ServiceName(opts.ServiceName()),
					semconv.ServiceVersion(opts.GetVersion()),
				),
			)
			if err != nil {
				return nil, fmt.Errorf("log resource: %w", err)
			}
			provider = sdklog.NewLoggerProvider(
				sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
				sdklog.WithResource(res),
			)
			handlers = append(handlers, otelslog.NewHandler(opts.ServiceName(), otelslog.WithLoggerProvider(provider)))
		}
	}

	slogger := slog.New(&MultiHandler{handlers: handlers})
	for k, v := range opts.ExtraFields() {
		slogger = slogger.With(k, v)
	}
	return &Logger{Slogger: slogger, Provider: provider}, nil
}

func newExporter(ctx context.Context, kind, endpoint string) (sdklog.Exporter, error) {
	withURL := strings.Contains(endpoint, "://")
	switch kind {
	case "", "none":
		return nil, nil
	case "otlp-http":
		var opts []otlploghttp.Option
		switch {
		case withURL:
			opts = append(opts, otlploghttp.WithEndpointURL(endpoint))
		case endpoint != "":
			opts = append(opts, otlploghttp.WithEndpoint(endpoint), otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp http log exporter: %w", err)
		}
		return exp, nil
	case "otlp-grpc":
		var opts []otlploggrpc.Option
		switch {
		case withURL:
			opts = append(opts, otlploggrpc.WithEndpointURL(endpoint))
		case endpoint != "":
			opts = append(opts, otlploggrpc.WithEndpoint(endpoint), otlploggrpc.WithInsecure())
		}
		exp, err := otlploggrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp grpc log exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown log exporter %q", kind)
	}
}

// Shutdown flushes exported records.
func (l *Logger) Shutdown(ctx context.Context) error {
	if l.Provider == nil {
		return nil
	}
	return l.Provider.Shutdown(ctx)
}
