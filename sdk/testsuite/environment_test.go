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

package testsuite

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/sdk/client"
	"github.com/ngnhng/durableflow/sdk/worker"
	"github.com/ngnhng/durableflow/sdk/workflow"
)

var activityOptions = workflow.ActivityOptions{StartToCloseTimeout: 5 * time.Second}

func Greet(ctx context.Context, name string) (string, error) {
	return "hello " + name, nil
}

func GreetingWorkflow(ctx workflow.Context, name string) (string, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	var greeting string
	if err := workflow.ExecuteActivity(ctx, Greet, name).Get(ctx, &greeting); err != nil {
		return "", err
	}
	return greeting, nil
}

func ApprovalWorkflow(ctx workflow.Context) (string, error) {
	var decision string
	if err := workflow.GetSignalChannel(ctx, "approve").Receive(ctx, &decision); err != nil {
		return "", err
	}
	return "approved by " + decision, nil
}

func SleepingWorkflow(ctx workflow.Context, d time.Duration) (bool, error) {
	if err := workflow.Sleep(ctx, d); err != nil {
		return false, err
	}
	return true, nil
}

func CancellableWorkflow(ctx workflow.Context) error {
	if err := workflow.GetCancelRequestedFuture(ctx).Get(ctx, nil); err != nil {
		return err
	}
	return workflow.NewCanceledError("stopped on request")
}

func ParentWorkflow(ctx workflow.Context, name string) (string, error) {
	var got string
	if err := workflow.ExecuteChildWorkflow(ctx, GreetingWorkflow, name).Get(ctx, &got); err != nil {
		return "", err
	}
	return "child said " + got, nil
}

func workflowRegistration(name string) worker.RegisterWorkflowOptions {
	return worker.RegisterWorkflowOptions{Name: name}
}

func activityRegistration(name string) worker.RegisterActivityOptions {
	return worker.RegisterActivityOptions{Name: name}
}

func newEnv(t *testing.T) *Environment {
	t.Helper()
	env, err := NewEnvironment(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Stop() })
	return env
}

func run(t *testing.T, env *Environment, wf any, args ...any) client.WorkflowRun {
	t.Helper()
	require.NoError(t, env.Start())
	r, err := env.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{}, wf, args...)
	require.NoError(t, err)
	return r
}

func getCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func eventTypes(events []api.HistoryEvent) []api.EventType {
	out := make([]api.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestEnvironment_ActivityRoundTrip(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.RegisterWorkflow(GreetingWorkflow))
	require.NoError(t, env.RegisterActivity(Greet))

	r := run(t, env, GreetingWorkflow, "ada")
	var got string
	require.NoError(t, r.Get(getCtx(t), &got))
	assert.Equal(t, "hello ada", got)

	events, err := env.History(getCtx(t), r.GetID(), r.GetRunID())
	require.NoError(t, err)
	types := eventTypes(events)
	assert.Equal(t, api.EventWorkflowExecutionStarted, types[0])
	assert.Contains(t, types, api.EventActivityTaskScheduled)
	assert.Contains(t, types, api.EventActivityTaskCompleted)
	assert.Equal(t, api.EventWorkflowExecutionCompleted, types[len(types)-1])
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.ID)
	}

	assert.NoError(t, env.Replay(getCtx(t), GreetingWorkflow, r.GetID(), r.GetRunID()))
}

func TestEnvironment_Signal(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.RegisterWorkflow(ApprovalWorkflow))

	r := run(t, env, ApprovalWorkflow)
	require.NoError(t, env.Client().SignalWorkflow(getCtx(t), r.GetID(), "", "approve", "grace"))

	var got string
	require.NoError(t, r.Get(getCtx(t), &got))
	assert.Equal(t, "approved by grace", got)
}

func TestEnvironment_SignalWithStart(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.RegisterWorkflow(ApprovalWorkflow))
	require.NoError(t, env.Start())

	r, err := env.Client().SignalWithStartWorkflow(getCtx(t), "approve", "linus",
		client.StartWorkflowOptions{ID: "approval-1", TaskList: DefaultTaskList}, ApprovalWorkflow)
	require.NoError(t, err)

	var got string
	require.NoError(t, r.Get(getCtx(t), &got))
	assert.Equal(t, "approved by linus", got)
}

func TestEnvironment_Timer(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.RegisterWorkflow(SleepingWorkflow))

	r := run(t, env, SleepingWorkflow, 20*time.Millisecond)
	var woke bool
	require.NoError(t, r.Get(getCtx(t), &woke))
	assert.True(t, woke)

	events, err := env.History(getCtx(t), r.GetID(), r.GetRunID())
	require.NoError(t, err)
	assert.Contains(t, eventTypes(events), api.EventTimerFired)
}

func TestEnvironment_ActivityRetry(t *testing.T) {
	env := newEnv(t)
	var calls atomic.Int32
	flaky := func(ctx context.Context) (int32, error) {
		n := calls.Add(1)
		if n < 3 {
			return 0, fmt.Errorf("attempt %d failed", n)
		}
		return n, nil
	}
	wf := func(ctx workflow.Context) (int32, error) {
		opts := activityOptions
		opts.RetryPolicy = &workflow.RetryPolicy{InitialInterval: 5 * time.Millisecond, MaximumAttempts: 5}
		ctx = workflow.WithActivityOptions(ctx, opts)
		var n int32
		err := workflow.ExecuteActivity(ctx, "flaky").Get(ctx, &n)
		return n, err
	}
	require.NoError(t, env.RegisterActivity(flaky, activityRegistration("flaky")))
	require.NoError(t, env.RegisterWorkflow(wf, workflowRegistration("retrying")))
	require.NoError(t, env.Start())

	r, err := env.ExecuteWorkflow(getCtx(t), client.StartWorkflowOptions{}, "retrying")
	require.NoError(t, err)
	var got int32
	require.NoError(t, r.Get(getCtx(t), &got))
	assert.Equal(t, int32(3), got)
}

func TestEnvironment_ActivityFailure(t *testing.T) {
	env := newEnv(t)
	decline := func(ctx context.Context) error {
		return workflow.NewNonRetryableApplicationError("card declined", "card_declined", nil)
	}
	wf := func(ctx workflow.Context) error {
		ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: time.Second,
			RetryPolicy:         &workflow.RetryPolicy{InitialInterval: time.Millisecond, MaximumAttempts: 5},
		})
		return workflow.ExecuteActivity(ctx, "decline").Get(ctx, nil)
	}
	require.NoError(t, env.RegisterActivity(decline, activityRegistration("decline")))
	require.NoError(t, env.RegisterWorkflow(wf, workflowRegistration("charging")))
	require.NoError(t, env.Start())

	r, err := env.ExecuteWorkflow(getCtx(t), client.StartWorkflowOptions{}, "charging")
	require.NoError(t, err)
	err = r.Get(getCtx(t), nil)
	require.Error(t, err)

	var appErr *workflow.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "card_declined", appErr.Type())
}

func TestEnvironment_Cancel(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.RegisterWorkflow(CancellableWorkflow))

	r := run(t, env, CancellableWorkflow)
	require.NoError(t, env.Client().CancelWorkflow(getCtx(t), r.GetID(), ""))

	err := r.Get(getCtx(t), nil)
	require.Error(t, err)
	assert.True(t, workflow.IsCanceledError(err))
}

func TestEnvironment_Terminate(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.RegisterWorkflow(ApprovalWorkflow))

	r := run(t, env, ApprovalWorkflow)
	require.NoError(t, env.Client().TerminateWorkflow(getCtx(t), r.GetID(), "", "operator"))

	err := r.Get(getCtx(t), nil)
	var terminated *workflow.TerminatedError
	require.True(t, errors.As(err, &terminated))
}

func TestEnvironment_ChildWorkflow(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.RegisterWorkflow(ParentWorkflow))
	require.NoError(t, env.RegisterWorkflow(GreetingWorkflow))
	require.NoError(t, env.RegisterActivity(Greet))

	r := run(t, env, ParentWorkflow, "ada")
	var got string
	require.NoError(t, r.Get(getCtx(t), &got))
	assert.Equal(t, "child said hello ada", got)

	events, err := env.History(getCtx(t), r.GetID(), r.GetRunID())
	require.NoError(t, err)
	types := eventTypes(events)
	assert.Contains(t, types, api.EventChildWorkflowExecutionStarted)
	assert.Contains(t, types, api.EventChildWorkflowExecutionCompleted)
}

func TestEnvironment_ContinueAsNew(t *testing.T) {
	env := newEnv(t)
	countdown := func(ctx workflow.Context, n int) (string, error) {
		if n > 0 {
			return "", workflow.NewContinueAsNewError(ctx, "countdown", n-1)
		}
		return "liftoff", nil
	}
	require.NoError(t, env.RegisterWorkflow(countdown, workflowRegistration("countdown")))
	require.NoError(t, env.Start())

	r, err := env.ExecuteWorkflow(getCtx(t), client.StartWorkflowOptions{ID: "countdown-1"}, "countdown", 2)
	require.NoError(t, err)
	var got string
	require.NoError(t, r.Get(getCtx(t), &got))
	assert.Equal(t, "liftoff", got)

	events, err := env.History(getCtx(t), r.GetID(), r.GetRunID())
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, api.EventWorkflowExecutionContinuedAsNew, last.Type)
	assert.NotEmpty(t, last.NewRunID)
}
