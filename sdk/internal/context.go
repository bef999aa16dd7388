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
	"fmt"
	"log/slog"
	"time"

	"github.com/ngnhng/durableflow/api"
)

// Context is the workflow execution context. All workflow operations go
// through it so they are recorded as commands and replayed deterministically.
// A Context is bound to the coroutine it was handed to; blocking on it from
// another coroutine panics.
type Context interface {
	Value(key any) any
	WithValue(key, value any) Context

	// ExecuteActivity schedules activityFn, a registered function or an
	// activity name, with the activity options carried by the context.
	ExecuteActivity(activityFn any, args ...any) Future

	// ID returns the workflow id of the run.
	ID() string

	// WorkflowType returns the registered name of the running workflow.
	WorkflowType() string
}

var _ Context = (*workflowContext)(nil)

type valueNode struct {
	key, value any
	next       *valueNode
}

type workflowContext struct {
	env    *executionContext
	state  *coroutineState
	values *valueNode
}

func (c *workflowContext) Value(key any) any {
	for n := c.values; n != nil; n = n.next {
		if n.key == key {
			return n.value
		}
	}
	return nil
}

func (c *workflowContext) WithValue(key, value any) Context {
	return &workflowContext{
		env:    c.env,
		state:  c.state,
		values: &valueNode{key: key, value: value, next: c.values},
	}
}

func (c *workflowContext) ExecuteActivity(activityFn any, args ...any) Future {
	return c.env.scheduleActivity(c, activityFn, args)
}

func (c *workflowContext) ID() string {
	return c.env.info.WorkflowExecution.WorkflowID
}

func (c *workflowContext) WorkflowType() string {
	return c.env.info.WorkflowType
}

func getWorkflowContext(ctx Context) *workflowContext {
	wc, ok := ctx.(*workflowContext)
	if !ok || wc == nil {
		panic(fmt.Sprintf("%T is not a workflow context", ctx))
	}
	return wc
}

func getEnv(ctx Context) *executionContext {
	return getWorkflowContext(ctx).env
}

func getState(ctx Context) *coroutineState {
	return getWorkflowContext(ctx).state
}

// WorkflowInfo describes the running workflow.
type WorkflowInfo struct {
	WorkflowExecution       api.WorkflowExecution
	WorkflowType            string
	Namespace               string
	TaskList                string
	Attempt                 int32
	ExecutionTimeout        time.Duration
	DecisionTaskTimeout     time.Duration
	RetryPolicy             *RetryPolicy
	ParentWorkflowExecution *api.WorkflowExecution
	ContinuedRunID          string
	StartTime               time.Time
}

// ExecuteActivity schedules an activity. See Context.ExecuteActivity.
func ExecuteActivity(ctx Context, activityFn any, args ...any) Future {
	return ctx.ExecuteActivity(activityFn, args...)
}

// ExecuteChildWorkflow starts a child workflow with the options carried by
// the context. The future resolves with the child's result.
func ExecuteChildWorkflow(ctx Context, workflowFn any, args ...any) ChildWorkflowFuture {
	return getEnv(ctx).startChildWorkflow(ctx, workflowFn, args)
}

// NewTimer returns a future that resolves after d of workflow time.
func NewTimer(ctx Context, d time.Duration) Future {
	return getEnv(ctx).startTimer(d)
}

// Sleep blocks the coroutine for d of workflow time.
func Sleep(ctx Context, d time.Duration) error {
	return NewTimer(ctx, d).Get(ctx, nil)
}

// SignalExternalWorkflow sends a signal to another workflow. An empty runID
// addresses the current run of workflowID.
func SignalExternalWorkflow(ctx Context, workflowID, runID, signalName string, arg any) Future {
	return getEnv(ctx).signalExternal(api.WorkflowExecution{WorkflowID: workflowID, RunID: runID}, signalName, arg)
}

// RequestCancelExternalWorkflow asks the service to cancel another workflow.
func RequestCancelExternalWorkflow(ctx Context, workflowID, runID string) Future {
	return getEnv(ctx).requestCancelExternal(api.WorkflowExecution{WorkflowID: workflowID, RunID: runID})
}

// UpsertSearchAttributes merges attributes into the run's search attributes.
func UpsertSearchAttributes(ctx Context, attributes map[string]any) error {
	return getEnv(ctx).upsertSearchAttributes(attributes)
}

// GetSearchAttributes returns the search attributes known to the run.
func GetSearchAttributes(ctx Context) map[string]api.Payload {
	env := getEnv(ctx)
	out := make(map[string]api.Payload, len(env.searchAttributes))
	for k, v := range env.searchAttributes {
		out[k] = v
	}
	return out
}

// Go runs fn in a new coroutine of the same workflow run.
func Go(ctx Context, fn func(ctx Context)) {
	GoNamed(ctx, "", fn)
}

// GoNamed is Go with a coroutine name used in panics and debug output.
func GoNamed(ctx Context, name string, fn func(ctx Context)) {
	parent := getWorkflowContext(ctx)
	env := parent.env
	env.dispatcher.newCoroutine(name, func(state *coroutineState) {
		fn(&workflowContext{env: env, state: state, values: parent.values})
	})
}

// Await blocks until condition returns true. The condition is evaluated
// every time the coroutine is scheduled.
func Await(ctx Context, condition func() bool) {
	if condition() {
		return
	}
	state := getState(ctx)
	for !condition() {
		state.yield("blocked on Await")
	}
	state.unblocked()
}

// Now returns the deterministic workflow time: the start time of the
// decision task being processed.
func Now(ctx Context) time.Time {
	return getEnv(ctx).now
}

// IsReplaying reports whether the workflow is re-executing decisions that
// are already recorded in history.
func IsReplaying(ctx Context) bool {
	return getEnv(ctx).replaying
}

// GetInfo returns a copy of the running workflow's info.
func GetInfo(ctx Context) WorkflowInfo {
	return *getEnv(ctx).info
}

// GetLogger returns a logger tagged with the run's identity. It drops records
// while the workflow is replaying.
func GetLogger(ctx Context) *slog.Logger {
	return getEnv(ctx).logger
}

// GetCancelRequestedFuture returns a future that resolves when cancellation
// of the run is requested.
func GetCancelRequestedFuture(ctx Context) Future {
	return getEnv(ctx).cancelRequested
}

// IsCancelRequested reports whether cancellation of the run was requested.
func IsCancelRequested(ctx Context) bool {
	return getEnv(ctx).cancelRequested.IsReady()
}

// NewContinueAsNewError returns the error a workflow returns to close the
// current run and start a new run of workflowFn with args.
func NewContinueAsNewError(ctx Context, workflowFn any, args ...any) error {
	env := getEnv(ctx)
	name, err := env.registry.workflowName(workflowFn)
	if err != nil {
		return err
	}
	input, err := env.converter.encodeArgs(args)
	if err != nil {
		return fmt.Errorf("continue as new %s: %w", name, err)
	}
	return &ContinueAsNewError{
		WorkflowType: name,
		Input:        input,
		Options: api.WorkflowOptions{
			TaskList:            env.info.TaskList,
			ExecutionTimeout:    env.info.ExecutionTimeout,
			DecisionTaskTimeout: env.info.DecisionTaskTimeout,
			RetryPolicy:         env.info.RetryPolicy,
		},
	}
}
