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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	color "github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durableflow/internal/server/types"
)

type testOptions struct {
	mode     types.Mode
	level    slog.Level
	format   string
	exporter string
	extra    map[string]string
}

func (o testOptions) ServiceName() string            { return "durableflow" }
func (o testOptions) GetVersion() string             { return "v0.0.0-test" }
func (o testOptions) ModeField() types.Mode          { return o.mode }
func (o testOptions) LogLevel() slog.Level           { return o.level }
func (o testOptions) LogFormat() string              { return o.format }
func (o testOptions) OTELExporter() string           { return o.exporter }
func (o testOptions) OTELEndpoint() string           { return "" }
func (o testOptions) ExtraFields() map[string]string { return o.extra }

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestDebugHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewDebugHandler(&buf, slog.LevelInfo))

	log.Debug("hidden")
	log.With("run_id", "r-1").WithGroup("task").Info("decision completed", "attempt", 2, "token", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, " INFO ")
	assert.Contains(t, out, "decision completed")
	assert.Contains(t, out, `run_id="r-1"`)
	assert.Contains(t, out, "task.attempt=2")
	assert.Contains(t, out, `task.token="abc"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestMultiHandler(t *testing.T) {
	var debug, warn bytes.Buffer
	log := slog.New(NewMultiHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	))

	log.Info("started", "component", "service")
	log.Warn("slow poll")

	assert.Contains(t, debug.String(), "started")
	assert.Contains(t, debug.String(), "slow poll")
	assert.NotContains(t, warn.String(), "started")
	assert.Contains(t, warn.String(), "slow poll")
	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))
}

func TestNewLogger_Release(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(context.Background(), testOptions{
		mode:   types.ModeRelease,
		level:  slog.LevelInfo,
		format: "json",
		extra:  map[string]string{"region": "eu"},
	}, &buf)
	require.NoError(t, err)
	assert.Nil(t, l.Provider)
	require.NoError(t, l.Shutdown(context.Background()))

	l.Slogger.Info("history appended", "event_id", 7)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "history appended", record["msg"])
	assert.Equal(t, "eu", record["region"])
	assert.EqualValues(t, 7, record["event_id"])
}

func TestNewLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(context.Background(), testOptions{mode: types.ModeDebug, level: slog.LevelDebug}, &buf)
	require.NoError(t, err)

	l.Slogger.Debug("polling", "task_list", "orders")
	assert.Contains(t, buf.String(), `task_list="orders"`)
}

func TestNewLogger_Errors(t *testing.T) {
	_, err := NewLogger(context.Background(), testOptions{mode: types.ModeRelease})
	require.Error(t, err)

	_, err = NewLogger(context.Background(), testOptions{mode: types.ModeRelease, exporter: "carrier-pigeon"}, &bytes.Buffer{})
	require.Error(t, err)
}
