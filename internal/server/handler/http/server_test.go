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


package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
	"github.com/ngnhng/durableflow/internal/server/service"
)

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

func newTestServer(t *testing.T, connected bool) (*service.Service, http.Handler) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	svc := service.New(service.Options{Logger: logger})

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"}))

	srv := NewServer(Options{
		Reader:   svc,
		Conn:     fakeConn(connected),
		Serde:    &serde.MsgpackSerde{},
		Gatherer: reg,
		Logger:   logger,
	})
	return svc, srv.Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, false)

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "disconnected", resp.Checks["nats"])

	_, h = newTestServer(t, true)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
}

func TestMetrics(t *testing.T) {
	_, h := newTestServer(t, true)
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_total")
}

func TestDescribeWorkflow(t *testing.T) {
	svc, h := newTestServer(t, true)
	started, err := svc.StartWorkflow(context.Background(), &api.StartWorkflowRequest{
		WorkflowID:   "order-1",
		WorkflowType: "OrderWorkflow",
		Options:      api.WorkflowOptions{TaskList: "orders"},
	})
	require.NoError(t, err)

	rec := get(t, h, "/api/workflows/order-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var state WorkflowState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.Equal(t, "order-1", state.WorkflowID)
	assert.Equal(t, started.RunID, state.RunID)
	assert.Equal(t, "OrderWorkflow", state.WorkflowType)
	assert.Equal(t, "orders", state.TaskList)
	assert.Equal(t, StatusRunning, state.Status)

	rec = get(t, h, "/api/workflows/order-1/history?run_id="+started.RunID)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Events []api.HistoryEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hist))
	require.NotEmpty(t, hist.Events)
	assert.Equal(t, api.EventWorkflowExecutionStarted, hist.Events[0].Type)
}

func TestDescribeWorkflow_NotFound(t *testing.T) {
	_, h := newTestServer(t, true)
	rec := get(t, h, "/api/workflows/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, api.FailureTypeEntityNotExists, resp.Type)
}

func TestSummarize(t *testing.T) {
	codec := &serde.MsgpackSerde{}
	result, err := codec.SerializeBinary("shipped")
	require.NoError(t, err)

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

	events := []api.HistoryEvent{
		{ID: 1, Type: api.EventWorkflowExecutionStarted, Name: "OrderWorkflow", TaskList: "orders", Timestamp: at(0)},
		{ID: 2, Type: api.EventActivityTaskScheduled, CorrelationID: 5, Name: "Charge", Timestamp: at(1)},
		{ID: 3, Type: api.EventActivityTaskScheduled, CorrelationID: 6, Name: "Ship", Timestamp: at(1)},
		{ID: 4, Type: api.EventActivityTaskStarted, CorrelationID: 5, Attempt: 3, Timestamp: at(2)},
		{ID: 5, Type: api.EventActivityTaskCompleted, CorrelationID: 5, Attempt: 3, Timestamp: at(3)},
		{ID: 6, Type: api.EventActivityTaskFailed, CorrelationID: 6, Attempt: 1, Timestamp: at(4),
			Failure: &api.Failure{Kind: api.FailureKindApplication, Type: "no_stock", Message: "empty shelf"}},
		{ID: 7, Type: api.EventWorkflowExecutionSignaled, Name: "approve", Timestamp: at(5)},
		{ID: 8, Type: api.EventWorkflowExecutionCompleted, Result: result, Timestamp: at(6)},
	}

	state := Summarize(events, codec)
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, "shipped", state.Result)
	assert.Equal(t, []string{"approve"}, state.Signals)
	assert.Equal(t, 8, state.EventCount)
	require.NotNil(t, state.CompletedAt)
	assert.Equal(t, at(6), *state.CompletedAt)

	require.Len(t, state.Steps, 2)
	charge, ship := state.Steps[0], state.Steps[1]
	assert.Equal(t, "Charge", charge.Name)
	assert.Equal(t, StatusCompleted, charge.Status)
	assert.EqualValues(t, 3, charge.Attempts)
	require.NotNil(t, charge.StartedAt)
	assert.Equal(t, at(2), *charge.StartedAt)

	assert.Equal(t, "Ship", ship.Name)
	assert.Equal(t, StatusFailed, ship.Status)
	assert.Contains(t, ship.Error, "empty shelf")
	assert.Nil(t, ship.StartedAt)
}

func TestSummarize_ContinuedAsNew(t *testing.T) {
	state := Summarize([]api.HistoryEvent{
		{ID: 1, Type: api.EventWorkflowExecutionStarted, Name: "Countdown"},
		{ID: 2, Type: api.EventWorkflowExecutionContinuedAsNew, NewRunID: "run-2"},
	}, nil)
	assert.Equal(t, StatusContinuedAsNew, state.Status)
	assert.Equal(t, "run-2", state.NewRunID)
}

func TestSummarize_Terminated(t *testing.T) {
	state := Summarize([]api.HistoryEvent{
		{ID: 1, Type: api.EventWorkflowExecutionStarted},
		{ID: 2, Type: api.EventWorkflowExecutionTerminated, Reason: "operator"},
	}, nil)
	assert.Equal(t, StatusTerminated, state.Status)
	assert.Equal(t, "operator", state.Error)
}
