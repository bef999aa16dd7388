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

package internal

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ngnhng/durableflow/api"
	"github.com/stretchr/testify/require"
)

var (
	testExecution = api.WorkflowExecution{WorkflowID: "wf-1", RunID: "run-1"}
	testLogger    = slog.New(slog.DiscardHandler)
)

// testHistory builds histories the way the service records them.
type testHistory struct {
	t      *testing.T
	events []api.HistoryEvent
	now    time.Time
	conv   *dataConverter
}

func newTestHistory(t *testing.T, workflowType string, args ...any) *testHistory {
	t.Helper()
	h := &testHistory{
		t:    t,
		now:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		conv: newDataConverter(nil),
	}
	input, err := h.conv.encodeArgs(args)
	require.NoError(t, err)
	h.add(api.HistoryEvent{
		Type:     api.EventWorkflowExecutionStarted,
		Name:     workflowType,
		Input:    input,
		TaskList: "test-tasks",
		Attempt:  1,
	})
	return h.startDecision()
}

func (h *testHistory) add(e api.HistoryEvent) *testHistory {
	h.now = h.now.Add(time.Second)
	e.ID = int64(len(h.events) + 1)
	e.Timestamp = h.now
	h.events = append(h.events, e)
	return h
}

func (h *testHistory) startDecision() *testHistory {
	h.add(api.HistoryEvent{Type: api.EventDecisionTaskScheduled})
	return h.add(api.HistoryEvent{Type: api.EventDecisionTaskStarted})
}

// completeDecision records DecisionTaskCompleted followed by one event per
// command.
func (h *testHistory) completeDecision(cmds []api.Command) *testHistory {
	h.t.Helper()
	h.add(api.HistoryEvent{Type: api.EventDecisionTaskCompleted})
	for _, c := range cmds {
		typ, ok := c.RecordedEventType()
		require.True(h.t, ok, "no recorded event for %s", c.Kind)
		h.add(api.HistoryEvent{
			Type:          typ,
			CorrelationID: c.CorrelationID,
			Name:          c.Name,
			Input:         c.Input,
			Result:        c.Result,
			Failure:       c.Failure,
			Execution:     c.Execution,
			Duration:      c.Duration,
		})
	}
	return h
}

func (h *testHistory) payload(v any) api.Payload {
	h.t.Helper()
	p, err := h.conv.encode(v)
	require.NoError(h.t, err)
	return p
}

func (h *testHistory) signal(name string, v any) *testHistory {
	return h.add(api.HistoryEvent{
		Type:  api.EventWorkflowExecutionSignaled,
		Name:  name,
		Input: []api.Payload{h.payload(v)},
	})
}

func (h *testHistory) activityCompleted(correlationID int64, result any) *testHistory {
	h.add(api.HistoryEvent{Type: api.EventActivityTaskStarted, CorrelationID: correlationID})
	return h.add(api.HistoryEvent{
		Type:          api.EventActivityTaskCompleted,
		CorrelationID: correlationID,
		Result:        h.payload(result),
	})
}

func (h *testHistory) activityFailed(correlationID int64, failure *api.Failure) *testHistory {
	h.add(api.HistoryEvent{Type: api.EventActivityTaskStarted, CorrelationID: correlationID})
	return h.add(api.HistoryEvent{
		Type:          api.EventActivityTaskFailed,
		CorrelationID: correlationID,
		Failure:       failure,
	})
}

func decide(reg *registry, h *testHistory) ([]api.Command, error) {
	handler := newWorkflowTaskHandler(api.DefaultNamespace, reg, newDataConverter(nil), testLogger)
	result, err := handler.processDecisionTask(&api.DecisionTask{
		TaskToken:    []byte("token"),
		Execution:    testExecution,
		WorkflowType: h.events[0].Name,
		History:      h.events,
	})
	if err != nil {
		return nil, err
	}
	return result.commands, nil
}

func mustDecide(t *testing.T, reg *registry, h *testHistory) []api.Command {
	t.Helper()
	cmds, err := decide(reg, h)
	require.NoError(t, err)
	return cmds
}

func kinds(cmds []api.Command) []api.CommandKind {
	out := make([]api.CommandKind, len(cmds))
	for i, c := range cmds {
		out[i] = c.Kind
	}
	return out
}

// recordingTransport records requests and answers them from its fields.
type recordingTransport struct {
	mu    sync.Mutex
	calls []string

	startResp   *api.StartWorkflowResponse
	startErr    error
	historyResp *api.GetWorkflowHistoryResponse
	historyErr  error

	decisionTasks []*api.DecisionTask
	activityTasks []*api.ActivityTask

	started          []*api.StartWorkflowRequest
	signals          []*api.SignalWorkflowRequest
	historyRequests  []*api.GetWorkflowHistoryRequest
	decisionsDone    []*api.RespondDecisionTaskCompletedRequest
	decisionsFailed  []*api.RespondDecisionTaskFailedRequest
	activitiesDone   []*api.RespondActivityTaskCompletedRequest
	activitiesFailed []*api.RespondActivityTaskFailedRequest
}

var _ Transport = (*recordingTransport)(nil)

func (r *recordingTransport) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingTransport) StartWorkflow(ctx context.Context, req *api.StartWorkflowRequest) (*api.StartWorkflowResponse, error) {
	r.record("StartWorkflow")
	r.started = append(r.started, req)
	if r.startErr != nil {
		return nil, r.startErr
	}
	if r.startResp != nil {
		return r.startResp, nil
	}
	return &api.StartWorkflowResponse{RunID: "run-1"}, nil
}

func (r *recordingTransport) SignalWorkflow(ctx context.Context, req *api.SignalWorkflowRequest) error {
	r.record("SignalWorkflow")
	r.signals = append(r.signals, req)
	return nil
}

func (r *recordingTransport) SignalWithStartWorkflow(ctx context.Context, req *api.SignalWithStartWorkflowRequest) (*api.StartWorkflowResponse, error) {
	r.record("SignalWithStartWorkflow")
	r.started = append(r.started, &req.Start)
	if r.startErr != nil {
		return nil, r.startErr
	}
	return &api.StartWorkflowResponse{RunID: "run-1"}, nil
}

func (r *recordingTransport) RequestCancelWorkflow(ctx context.Context, req *api.RequestCancelWorkflowRequest) error {
	r.record("RequestCancelWorkflow")
	return nil
}

func (r *recordingTransport) TerminateWorkflow(ctx context.Context, req *api.TerminateWorkflowRequest) error {
	r.record("TerminateWorkflow")
	return nil
}

func (r *recordingTransport) GetWorkflowHistory(ctx context.Context, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error) {
	r.record("GetWorkflowHistory")
	r.historyRequests = append(r.historyRequests, req)
	if r.historyErr != nil {
		return nil, r.historyErr
	}
	if r.historyResp != nil {
		return r.historyResp, nil
	}
	return &api.GetWorkflowHistoryResponse{Execution: req.Execution}, nil
}

func (r *recordingTransport) PollDecisionTask(ctx context.Context, req *api.PollRequest) (*api.DecisionTask, error) {
	r.record("PollDecisionTask")
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.decisionTasks) == 0 {
		return nil, nil
	}
	task := r.decisionTasks[0]
	r.decisionTasks = r.decisionTasks[1:]
	return task, nil
}

func (r *recordingTransport) RespondDecisionTaskCompleted(ctx context.Context, req *api.RespondDecisionTaskCompletedRequest) error {
	r.record("RespondDecisionTaskCompleted")
	r.decisionsDone = append(r.decisionsDone, req)
	return nil
}

func (r *recordingTransport) RespondDecisionTaskFailed(ctx context.Context, req *api.RespondDecisionTaskFailedRequest) error {
	r.record("RespondDecisionTaskFailed")
	r.decisionsFailed = append(r.decisionsFailed, req)
	return nil
}

func (r *recordingTransport) PollActivityTask(ctx context.Context, req *api.PollRequest) (*api.ActivityTask, error) {
	r.record("PollActivityTask")
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.activityTasks) == 0 {
		return nil, nil
	}
	task := r.activityTasks[0]
	r.activityTasks = r.activityTasks[1:]
	return task, nil
}

func (r *recordingTransport) RespondActivityTaskCompleted(ctx context.Context, req *api.RespondActivityTaskCompletedRequest) error {
	r.record("RespondActivityTaskCompleted")
	r.activitiesDone = append(r.activitiesDone, req)
	return nil
}

func (r *recordingTransport) RespondActivityTaskFailed(ctx context.Context, req *api.RespondActivityTaskFailedRequest) error {
	r.record("RespondActivityTaskFailed")
	r.activitiesFailed = append(r.activitiesFailed, req)
	return nil
}

func (r *recordingTransport) Identity() string {
	return "test-identity"
}

func (r *recordingTransport) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
