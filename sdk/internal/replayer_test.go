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
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/ngnhng/durableflow/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggingWorkflow(ctx Context, name string) (string, error) {
	GetLogger(ctx).Info("greeting", "name", name)
	var greeting string
	if err := ExecuteActivity(ctx, greetActivity, name).Get(ctx, &greeting); err != nil {
		return "", err
	}
	GetLogger(ctx).Info("greeted", "greeting", greeting)
	return greeting, nil
}

func TestReplayAwareLogger_DropsRecordsWhileReplaying(t *testing.T) {
	var buf bytes.Buffer
	replaying := true
	logger := newReplayAwareLogger(slog.New(slog.NewTextHandler(&buf, nil)), func() bool { return replaying })

	logger.With("run_id", "r1").Info("hidden")
	replaying = false
	logger.With("run_id", "r1").WithGroup("wf").Info("shown", "step", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "run_id=r1")
	assert.Contains(t, out, "wf.step=2")
}

func TestWorkflowLogger_SkipsReplayedDecisions(t *testing.T) {
	var buf bytes.Buffer
	replayer := NewWorkflowReplayer(WorkflowReplayerOptions{
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	})
	require.NoError(t, replayer.RegisterWorkflow(loggingWorkflow, RegisterWorkflowOptions{Name: "logging"}))

	h := newTestHistory(t, "logging", "ada")
	cmds, err := replayer.ReplayWorkflowHistory(testExecution, h.events)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, 1, strings.Count(buf.String(), "msg=greeting"))

	buf.Reset()
	h.completeDecision(cmds).activityCompleted(1, "hello ada").startDecision()
	_, err = replayer.ReplayWorkflowHistory(testExecution, h.events)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "msg=greeting")
	assert.Equal(t, 1, strings.Count(buf.String(), "msg=greeted"))
}

func TestWorkflowReplayer_DetectsIncompatibleChange(t *testing.T) {
	original := NewWorkflowReplayer(WorkflowReplayerOptions{Logger: testLogger})
	require.NoError(t, original.RegisterWorkflow(sequentialWorkflow, RegisterWorkflowOptions{Name: "wf"}))
	h := newTestHistory(t, "wf", "world")
	cmds, err := original.ReplayWorkflowHistory(testExecution, h.events)
	require.NoError(t, err)
	h.completeDecision(cmds).activityCompleted(1, "hello world").startDecision()

	changed := NewWorkflowReplayer(WorkflowReplayerOptions{Logger: testLogger})
	require.NoError(t, changed.RegisterWorkflow(timerFirstWorkflow, RegisterWorkflowOptions{Name: "wf"}))
	_, err = changed.ReplayWorkflowHistory(testExecution, h.events)
	var nde *NonDeterminismError
	require.ErrorAs(t, err, &nde)
	assert.ErrorIs(t, err, ErrNonDeterministicBehavior)
}

func TestWorkflowReplayer_EmptyHistory(t *testing.T) {
	replayer := NewWorkflowReplayer(WorkflowReplayerOptions{Logger: testLogger})
	_, err := replayer.ReplayWorkflowHistory(testExecution, nil)
	assert.Error(t, err)
}

func TestWorkflowReplayer_ReplayExecutionPagesHistory(t *testing.T) {
	replayer := NewWorkflowReplayer(WorkflowReplayerOptions{Logger: testLogger})
	require.NoError(t, replayer.RegisterWorkflow(sequentialWorkflow, RegisterWorkflowOptions{Name: "wf"}))

	h := newTestHistory(t, "wf", "world")
	cmds, err := replayer.ReplayWorkflowHistory(testExecution, h.events)
	require.NoError(t, err)
	h.completeDecision(cmds).activityCompleted(1, "hello world").startDecision()

	rt := &pagedHistoryTransport{recordingTransport: &recordingTransport{}, events: h.events, pageSize: 3}
	cmds, err = replayer.ReplayWorkflowExecution(context.Background(), rt, testExecution)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, int64(2), cmds[0].CorrelationID)
	assert.Equal(t, (len(h.events)+2)/3+1, rt.pages)
}

// pagedHistoryTransport serves events with ID >= NextEventID, pageSize at a
// time.
type pagedHistoryTransport struct {
	*recordingTransport
	events   []api.HistoryEvent
	pageSize int
	pages    int
}

func (p *pagedHistoryTransport) GetWorkflowHistory(ctx context.Context, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error) {
	p.pages++
	var page []api.HistoryEvent
	for _, e := range p.events {
		if e.ID >= req.NextEventID && len(page) < p.pageSize {
			page = append(page, e)
		}
	}
	resp := &api.GetWorkflowHistoryResponse{Execution: req.Execution, Events: page, NextEventID: req.NextEventID}
	if len(page) > 0 {
		resp.NextEventID = page[len(page)-1].ID + 1
	}
	return resp, nil
}
