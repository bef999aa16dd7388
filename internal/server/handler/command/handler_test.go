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

package command

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
	"github.com/ngnhng/durableflow/internal/server/service"
)

var codec = &serde.MsgpackSerde{}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	svc := service.New(service.Options{Logger: logger})
	h, err := NewHandler(svc, Options{Logger: logger})
	require.NoError(t, err)
	return h
}

func dispatch(t *testing.T, h *Handler, subject string, req any) api.Reply {
	t.Helper()
	data, err := codec.SerializeBinary(req)
	require.NoError(t, err)
	var reply api.Reply
	require.NoError(t, codec.DeserializeBinary(h.Dispatch(context.Background(), subject, data), &reply))
	return reply
}

func TestDispatch_StartAndPoll(t *testing.T) {
	h := newTestHandler(t)

	reply := dispatch(t, h, api.SubjectStartWorkflow, &api.StartWorkflowRequest{
		WorkflowID:   "order-1",
		WorkflowType: "OrderWorkflow",
		Options:      api.WorkflowOptions{TaskList: "orders"},
		Identity:     "test",
	})
	require.Nil(t, reply.Error)
	var started api.StartWorkflowResponse
	require.NoError(t, codec.DeserializeBinary(reply.Body, &started))
	assert.NotEmpty(t, started.RunID)

	reply = dispatch(t, h, api.SubjectPollDecisionTask, &api.PollRequest{
		TaskList: "orders",
		Identity: "worker-1",
		Timeout:  time.Second,
	})
	require.Nil(t, reply.Error)
	var task api.DecisionTask
	require.NoError(t, codec.DeserializeBinary(reply.Body, &task))
	assert.Equal(t, "order-1", task.Execution.WorkflowID)
	assert.Equal(t, started.RunID, task.Execution.RunID)
	assert.NotEmpty(t, task.TaskToken)
}

func TestDispatch_AlreadyStartedCarriesRunID(t *testing.T) {
	h := newTestHandler(t)
	req := &api.StartWorkflowRequest{
		WorkflowID:   "order-1",
		WorkflowType: "OrderWorkflow",
		Options:      api.WorkflowOptions{TaskList: "orders"},
	}

	first := dispatch(t, h, api.SubjectStartWorkflow, req)
	require.Nil(t, first.Error)
	var started api.StartWorkflowResponse
	require.NoError(t, codec.DeserializeBinary(first.Body, &started))

	second := dispatch(t, h, api.SubjectStartWorkflow, req)
	require.NotNil(t, second.Error)
	assert.Equal(t, api.FailureTypeWorkflowAlreadyStarted, second.Error.Type)
	assert.Equal(t, started.RunID, second.Error.RunID)
}

func TestDispatch_EmptyPoll(t *testing.T) {
	h := newTestHandler(t)

	reply := dispatch(t, h, api.SubjectPollActivityTask, &api.PollRequest{
		TaskList: "idle",
		Timeout:  10 * time.Millisecond,
	})
	assert.Nil(t, reply.Error)
	assert.Empty(t, reply.Body)
}

func TestDispatch_OnewayReply(t *testing.T) {
	h := newTestHandler(t)
	start := dispatch(t, h, api.SubjectStartWorkflow, &api.StartWorkflowRequest{
		WorkflowID:   "order-1",
		WorkflowType: "OrderWorkflow",
		Options:      api.WorkflowOptions{TaskList: "orders"},
	})
	require.Nil(t, start.Error)

	reply := dispatch(t, h, api.SubjectSignalWorkflow, &api.SignalWorkflowRequest{
		Execution:  api.WorkflowExecution{WorkflowID: "order-1"},
		SignalName: "approve",
	})
	assert.Nil(t, reply.Error)
	assert.Empty(t, reply.Body)
}

func TestDispatch_Failures(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name     string
		subject  string
		data     []byte
		wantType string
	}{
		{
			name:     "unknown subject",
			subject:  api.SubjectPrefix + ".nope",
			data:     mustEncode(t, struct{}{}),
			wantType: api.FailureTypeBadRequest,
		},
		{
			name:     "undecodable body",
			subject:  api.SubjectStartWorkflow,
			data:     []byte{0xc1},
			wantType: api.FailureTypeBadRequest,
		},
		{
			name:    "signal to unknown workflow",
			subject: api.SubjectSignalWorkflow,
			data: mustEncode(t, &api.SignalWorkflowRequest{
				Execution:  api.WorkflowExecution{WorkflowID: "missing"},
				SignalName: "approve",
			}),
			wantType: api.FailureTypeEntityNotExists,
		},
		{
			name:     "stale task token",
			subject:  api.SubjectActivityTaskCompleted,
			data:     mustEncode(t, &api.RespondActivityTaskCompletedRequest{TaskToken: []byte("stale")}),
			wantType: api.FailureTypeInvalidTaskToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reply api.Reply
			require.NoError(t, codec.DeserializeBinary(h.Dispatch(context.Background(), tt.subject, tt.data), &reply))
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.wantType, reply.Error.Type)
			assert.Empty(t, reply.Body)
		})
	}
}

func TestDispatch_PanicBecomesInternalFailure(t *testing.T) {
	h, err := NewHandler(panickingService{}, Options{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	reply := dispatch(t, h, api.SubjectTerminateWorkflow, &api.TerminateWorkflowRequest{})
	require.NotNil(t, reply.Error)
	assert.Equal(t, api.FailureTypeInternal, reply.Error.Type)
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := codec.SerializeBinary(v)
	require.NoError(t, err)
	return data
}

func TestDispatch_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.DiscardHandler)
	h, err := NewHandler(service.New(service.Options{Logger: logger}), Options{Logger: logger, Registerer: reg})
	require.NoError(t, err)

	dispatch(t, h, api.SubjectSignalWorkflow, &api.SignalWorkflowRequest{
		Execution:  api.WorkflowExecution{WorkflowID: "missing"},
		SignalName: "approve",
	})
	dispatch(t, h, "durableflow.api.bogus", struct{}{})

	assert.Equal(t, 1.0, testutil.ToFloat64(
		h.metrics.requests.WithLabelValues(api.SubjectSignalWorkflow, api.FailureTypeEntityNotExists)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		h.metrics.requests.WithLabelValues("durableflow.api.bogus", api.FailureTypeBadRequest)))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.inFlight))

	// A second handler on the same registry shares the collectors.
	_, err = NewHandler(service.New(service.Options{Logger: logger}), Options{Logger: logger, Registerer: reg})
	require.NoError(t, err)
}

type panickingService struct {
	Service
}

func (panickingService) TerminateWorkflow(context.Context, *api.TerminateWorkflowRequest) error {
	panic("boom")
}
