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
	"errors"
	"testing"
	"time"

	"github.com/ngnhng/durableflow/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, rt *recordingTransport) *Worker {
	t.Helper()
	c, err := NewClient(ClientOptions{Transport: rt, TaskList: "test-tasks", Logger: testLogger})
	require.NoError(t, err)
	w, err := NewWorker(c, WorkerOptions{MetricsRegisterer: prometheus.NewRegistry()})
	require.NoError(t, err)
	return w
}

func activityTask(t *testing.T, activityType string, args ...any) *api.ActivityTask {
	t.Helper()
	input, err := newDataConverter(nil).encodeArgs(args)
	require.NoError(t, err)
	return &api.ActivityTask{
		TaskToken:     []byte("activity-token"),
		Execution:     testExecution,
		WorkflowType:  "wf",
		ActivityType:  activityType,
		CorrelationID: 1,
		Input:         input,
		Attempt:       2,
	}
}

func TestWorker_ActivityCompleted(t *testing.T) {
	rt := &recordingTransport{}
	w := newTestWorker(t, rt)
	require.NoError(t, w.RegisterActivity(greetActivity, RegisterActivityOptions{Name: "greet"}))

	require.NoError(t, w.processActivityTask(context.Background(), activityTask(t, "greet", "ada")))

	require.Len(t, rt.activitiesDone, 1)
	assert.Equal(t, []byte("activity-token"), rt.activitiesDone[0].TaskToken)
	assert.Equal(t, "test-identity", rt.activitiesDone[0].Identity)
	var got string
	require.NoError(t, w.converter.decode(rt.activitiesDone[0].Result, &got))
	assert.Equal(t, "hello ada", got)
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.activityTasks.WithLabelValues("greet", "completed")))
}

func TestWorker_ActivityFailures(t *testing.T) {
	tests := []struct {
		name       string
		activity   any
		args       []any
		wantKind   api.FailureKind
		wantType   string
		wantStatus string
	}{
		{
			name: "application error",
			activity: func(ctx context.Context) error {
				return NewApplicationError("card declined", "PaymentError", true, nil)
			},
			wantKind:   api.FailureKindApplication,
			wantType:   "PaymentError",
			wantStatus: "failed",
		},
		{
			name: "panic",
			activity: func(ctx context.Context) error {
				panic("boom")
			},
			wantKind:   api.FailureKindPanic,
			wantStatus: "panicked",
		},
		{
			name:       "missing input",
			activity:   func(ctx context.Context, n int) error { return nil },
			wantKind:   api.FailureKindApplication,
			wantType:   "InvalidActivityInput",
			wantStatus: "failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingTransport{}
			w := newTestWorker(t, rt)
			require.NoError(t, w.RegisterActivity(tt.activity, RegisterActivityOptions{Name: "act"}))

			require.NoError(t, w.processActivityTask(context.Background(), activityTask(t, "act", tt.args...)))

			require.Len(t, rt.activitiesFailed, 1)
			assert.Empty(t, rt.activitiesDone)
			f := rt.activitiesFailed[0].Failure
			require.NotNil(t, f)
			assert.Equal(t, tt.wantKind, f.Kind)
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, f.Type)
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.activityTasks.WithLabelValues("act", tt.wantStatus)))
		})
	}
}

func TestWorker_ActivityNotRegistered(t *testing.T) {
	rt := &recordingTransport{}
	w := newTestWorker(t, rt)

	require.NoError(t, w.processActivityTask(context.Background(), activityTask(t, "missing")))

	require.Len(t, rt.activitiesFailed, 1)
	f := rt.activitiesFailed[0].Failure
	assert.Equal(t, "ActivityNotRegistered", f.Type)
	assert.True(t, f.NonRetryable)
}

func TestWorker_ActivityContext(t *testing.T) {
	rt := &recordingTransport{}
	w := newTestWorker(t, rt)

	var info ActivityInfo
	var deadline time.Time
	require.NoError(t, w.RegisterActivity(func(ctx context.Context) error {
		require.True(t, IsActivityContext(ctx))
		info = GetActivityInfo(ctx)
		deadline, _ = ctx.Deadline()
		GetActivityLogger(ctx).Info("inside activity")
		return nil
	}, RegisterActivityOptions{Name: "inspect"}))

	task := activityTask(t, "inspect")
	task.StartToCloseLimit = time.Minute
	require.NoError(t, w.processActivityTask(context.Background(), task))

	assert.Equal(t, "inspect", info.ActivityType)
	assert.Equal(t, testExecution, info.WorkflowExecution)
	assert.Equal(t, int32(2), info.Attempt)
	assert.Equal(t, "test-tasks", info.TaskList)
	assert.Equal(t, info.Deadline, deadline)
	assert.False(t, IsActivityContext(context.Background()))
}

func TestWorker_DecisionTaskCompleted(t *testing.T) {
	rt := &recordingTransport{}
	w := newTestWorker(t, rt)
	require.NoError(t, w.RegisterWorkflow(sequentialWorkflow, RegisterWorkflowOptions{Name: "seq"}))

	h := newTestHistory(t, "seq", "ada")
	require.NoError(t, w.processDecisionTask(context.Background(), &api.DecisionTask{
		TaskToken:    []byte("decision-token"),
		Execution:    testExecution,
		WorkflowType: "seq",
		History:      h.events,
	}))

	require.Len(t, rt.decisionsDone, 1)
	assert.Equal(t, []api.CommandKind{api.CommandScheduleActivity}, kinds(rt.decisionsDone[0].Commands))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.decisionTasks.WithLabelValues("seq", "completed")))
}

func TestWorker_DecisionTaskFailed(t *testing.T) {
	rt := &recordingTransport{}
	w := newTestWorker(t, rt)

	h := newTestHistory(t, "unknown")
	require.NoError(t, w.processDecisionTask(context.Background(), &api.DecisionTask{
		TaskToken:    []byte("decision-token"),
		Execution:    testExecution,
		WorkflowType: "unknown",
		History:      h.events,
	}))

	assert.Empty(t, rt.decisionsDone)
	require.Len(t, rt.decisionsFailed, 1)
	assert.Equal(t, []byte("decision-token"), rt.decisionsFailed[0].TaskToken)
	assert.NotNil(t, rt.decisionsFailed[0].Failure)
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.decisionTasks.WithLabelValues("unknown", "failed")))
}

func TestWorker_RunRequiresRegistrations(t *testing.T) {
	w := newTestWorker(t, &recordingTransport{})
	assert.Error(t, w.Run(context.Background()))
}

func TestWorker_StartStop(t *testing.T) {
	w := newTestWorker(t, &recordingTransport{})
	require.NoError(t, w.RegisterWorkflow(sequentialWorkflow, RegisterWorkflowOptions{Name: "seq"}))
	require.NoError(t, w.Start())
	assert.Error(t, w.Start())

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
	require.NoError(t, w.Stop())

	// A stopped worker can be started again.
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
}

func TestWorker_PollLoopStopsOnCancel(t *testing.T) {
	w := newTestWorker(t, &recordingTransport{})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := w.pollLoop(ctx, "activity", func(ctx context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("unavailable")
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(w.metrics.pollErrors.WithLabelValues("activity")))
}

func TestWorkerMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := newWorkerMetrics(reg, "tasks")
	require.NoError(t, err)
	second, err := newWorkerMetrics(reg, "tasks")
	require.NoError(t, err)

	first.pollErrors.WithLabelValues("decision").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.pollErrors.WithLabelValues("decision")))
}
