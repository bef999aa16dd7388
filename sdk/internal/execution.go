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
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/ngnhng/durableflow/api"
)

// ExecutionStatus is the lifecycle state of a workflow run inside one
// decision task.
type ExecutionStatus string

const (
	StatusNotStarted     ExecutionStatus = "not_started"
	StatusRunning        ExecutionStatus = "running"
	StatusSuspended      ExecutionStatus = "suspended"
	StatusCompleted      ExecutionStatus = "completed"
	StatusFailed         ExecutionStatus = "failed"
	StatusCancelled      ExecutionStatus = "cancelled"
	StatusContinuedAsNew ExecutionStatus = "continued_as_new"
)

// IsTerminal reports whether the status closes the run.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusContinuedAsNew:
		return true
	}
	return false
}

// outstandingCommand is a command whose resolution events are still
// expected.
type outstandingCommand struct {
	kind      api.CommandKind
	name      string
	execution api.WorkflowExecution
	result    *futureImpl
	started   *futureImpl
}

// executionContext owns the state of one workflow run while a decision task
// replays its history: the coroutines, open futures, signal handlers and the
// command buffer. It is never shared between runs.
type executionContext struct {
	info       *WorkflowInfo
	registry   *registry
	converter  *dataConverter
	dispatcher *dispatcher
	commands   *commandBuffer
	signals    *signalDispatcher
	logger     *slog.Logger

	signalChannels   map[string]*signalChannel
	outstanding      map[int64]*outstandingCommand
	cancelRequested  *futureImpl
	searchAttributes map[string]api.Payload

	status    ExecutionStatus
	now       time.Time
	replaying bool

	returned  bool
	result    any
	resultErr error
}

func newExecutionContext(reg *registry, converter *dataConverter, logger *slog.Logger) *executionContext {
	e := &executionContext{
		info:             &WorkflowInfo{},
		registry:         reg,
		converter:        converter,
		dispatcher:       newDispatcher(),
		commands:         newCommandBuffer(),
		signalChannels:   make(map[string]*signalChannel),
		outstanding:      make(map[int64]*outstandingCommand),
		searchAttributes: make(map[string]api.Payload),
		status:           StatusNotStarted,
	}
	e.signals = newSignalDispatcher(e)
	e.cancelRequested = newFutureImpl(e)
	e.logger = newReplayAwareLogger(defaultLogger(logger), func() bool { return e.replaying })
	return e
}

// Status returns the lifecycle state of the run.
func (e *executionContext) Status() ExecutionStatus {
	return e.status
}

func (e *executionContext) close() {
	e.dispatcher.Close()
}

// processEvent applies one input event of a decision batch.
func (e *executionContext) processEvent(event *api.HistoryEvent) error {
	switch event.Type {
	case api.EventWorkflowExecutionStarted:
		return e.handleWorkflowExecutionStarted(event)

	case api.EventDecisionTaskStarted:
		e.now = event.Timestamp

	case api.EventDecisionTaskScheduled,
		api.EventDecisionTaskFailed,
		api.EventDecisionTaskTimedOut,
		api.EventActivityTaskStarted,
		api.EventWorkflowExecutionTerminated,
		api.EventWorkflowExecutionTimedOut:
		// Nothing to apply.

	case api.EventWorkflowExecutionSignaled:
		var input api.Payload
		if len(event.Input) > 0 {
			input = event.Input[0]
		}
		e.signals.deliver(event.Name, input)

	case api.EventWorkflowExecutionCancelRequested:
		if !e.cancelRequested.IsReady() {
			_ = e.cancelRequested.SetValue(nil)
		}

	default:
		return e.handleResolutionEvent(event)
	}
	return nil
}

func (e *executionContext) handleWorkflowExecutionStarted(event *api.HistoryEvent) error {
	if e.status != StatusNotStarted {
		return newNonDeterminismError(event.ID, "workflow started twice")
	}
	fn, err := e.registry.getWorkflow(event.Name)
	if err != nil {
		return err
	}

	e.now = event.Timestamp
	e.info.WorkflowType = event.Name
	e.info.StartTime = event.Timestamp
	e.info.Attempt = event.Attempt
	e.info.ParentWorkflowExecution = event.ParentExecution
	e.info.ContinuedRunID = event.ContinuedRunID
	e.info.TaskList = event.TaskList
	if o := event.WorkflowOptions; o != nil {
		e.info.ExecutionTimeout = o.ExecutionTimeout
		e.info.DecisionTaskTimeout = o.DecisionTaskTimeout
		e.info.RetryPolicy = o.RetryPolicy
		if e.info.TaskList == "" {
			e.info.TaskList = o.TaskList
		}
		for k, v := range o.SearchAttributes {
			e.searchAttributes[k] = v
		}
	}
	e.logger = e.logger.With(
		"workflow_id", e.info.WorkflowExecution.WorkflowID,
		"run_id", e.info.WorkflowExecution.RunID,
		"workflow_type", e.info.WorkflowType,
	)

	fnv := reflect.ValueOf(fn)
	args, err := e.converter.decodeArgs(fnv.Type(), 1, event.Input)
	if err != nil {
		e.workflowReturned(nil, NewApplicationError(err.Error(), "InvalidWorkflowInput", true, nil))
		return nil
	}

	e.dispatcher.newCoroutine("root", func(state *coroutineState) {
		ctx := &workflowContext{env: e, state: state}
		results := fnv.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, args...))
		result, err := splitResults(results)
		e.workflowReturned(result, err)
	})
	e.status = StatusRunning
	return nil
}

func (e *executionContext) workflowReturned(result any, err error) {
	e.returned = true
	e.result = result
	e.resultErr = err
}

func (e *executionContext) handleResolutionEvent(event *api.HistoryEvent) error {
	if event.IsCommandEvent() {
		return newNonDeterminismError(event.ID, "command event %s outside of a completed decision", event.Type)
	}
	oc, ok := e.outstanding[event.CorrelationID]
	if !ok {
		return newNonDeterminismError(event.ID, "%s references unknown correlation id %d", event.Type, event.CorrelationID)
	}

	switch event.Type {
	case api.EventActivityTaskCompleted:
		e.resolve(event, oc, event.Result, nil)
	case api.EventActivityTaskFailed, api.EventActivityTaskTimedOut:
		e.resolve(event, oc, nil, NewActivityError(oc.name, event.CorrelationID, ConvertFailureToError(event.Failure)))
	case api.EventActivityTaskCanceled:
		e.resolve(event, oc, nil, NewCanceledError("activity canceled"))

	case api.EventTimerFired:
		e.resolve(event, oc, nil, nil)

	case api.EventChildWorkflowExecutionStarted:
		if event.Execution != nil {
			oc.execution = *event.Execution
		}
		if oc.started != nil {
			_ = oc.started.SetValue(oc.execution)
		}
	case api.EventStartChildWorkflowExecutionFailed:
		err := ConvertFailureToError(event.Failure)
		if oc.started != nil {
			_ = oc.started.SetError(err)
		}
		e.resolve(event, oc, nil, err)
	case api.EventChildWorkflowExecutionCompleted:
		e.resolve(event, oc, event.Result, nil)
	case api.EventChildWorkflowExecutionFailed:
		e.resolve(event, oc, nil, NewChildWorkflowError(oc.name, oc.execution, ConvertFailureToError(event.Failure)))
	case api.EventChildWorkflowExecutionCanceled:
		e.resolve(event, oc, nil, NewChildWorkflowError(oc.name, oc.execution, NewCanceledError("child workflow canceled")))
	case api.EventChildWorkflowExecutionTimedOut:
		e.resolve(event, oc, nil, NewChildWorkflowError(oc.name, oc.execution, NewTimeoutError(api.TimeoutTypeExecution, nil)))
	case api.EventChildWorkflowExecutionTerminated:
		e.resolve(event, oc, nil, NewChildWorkflowError(oc.name, oc.execution, NewTerminatedError(event.Reason)))

	case api.EventExternalWorkflowExecutionSignaled, api.EventExternalWorkflowExecutionCancelRequested:
		if oc.kind == api.CommandStartChildWorkflow {
			// Cancellation request for a child; the child's close event resolves it.
			return nil
		}
		e.resolve(event, oc, nil, nil)
	case api.EventSignalExternalWorkflowExecutionFailed, api.EventRequestCancelExternalWorkflowExecutionFailed:
		if oc.kind == api.CommandStartChildWorkflow {
			return nil
		}
		e.resolve(event, oc, nil, ConvertFailureToError(event.Failure))

	default:
		return fmt.Errorf("unknown event type: %v", event.Type)
	}
	return nil
}

func (e *executionContext) resolve(event *api.HistoryEvent, oc *outstandingCommand, value any, err error) {
	delete(e.outstanding, event.CorrelationID)
	if setErr := oc.result.Set(value, err); setErr != nil {
		e.logger.Warn("resolution for an already resolved future", "event_id", event.ID, "event_type", event.Type, "error", setErr)
	}
}

// executeUntilAllBlocked runs workflow code and adds the closing command once
// the workflow function returned.
func (e *executionContext) executeUntilAllBlocked() {
	if e.status.IsTerminal() || e.status == StatusNotStarted && !e.returned {
		return
	}
	e.status = StatusRunning
	if err := e.dispatcher.ExecuteUntilAllBlocked(); err != nil {
		var panicErr *PanicError
		if !errors.As(err, &panicErr) {
			panicErr = newPanicError(err, "")
		}
		e.logger.Error("workflow panic", "error", panicErr.Error())
		e.workflowReturned(nil, panicErr)
	}
	if !e.returned {
		e.status = StatusSuspended
		return
	}
	e.completeWorkflow()
}

func (e *executionContext) completeWorkflow() {
	if e.commands.hasTerminal() {
		return
	}
	err := e.resultErr

	var canErr *ContinueAsNewError
	switch {
	case err == nil:
		payload, encErr := e.converter.encode(e.result)
		if encErr != nil {
			e.failWorkflow(NewApplicationError(encErr.Error(), "ResultEncodingError", true, nil))
			return
		}
		e.commands.add(api.Command{Kind: api.CommandCompleteWorkflow, Result: payload})
		e.status = StatusCompleted
	case errors.As(err, &canErr):
		opts := canErr.Options
		e.commands.add(api.Command{
			Kind:            api.CommandContinueAsNew,
			Name:            canErr.WorkflowType,
			Input:           canErr.Input,
			WorkflowOptions: &opts,
		})
		e.status = StatusContinuedAsNew
	case IsCanceledError(err) && e.cancelRequested.IsReady():
		e.commands.add(api.Command{Kind: api.CommandCancelWorkflow, Failure: ConvertErrorToFailure(err)})
		e.status = StatusCancelled
	default:
		e.failWorkflow(err)
	}
}

func (e *executionContext) failWorkflow(err error) {
	e.commands.add(api.Command{Kind: api.CommandFailWorkflow, Failure: ConvertErrorToFailure(err)})
	e.status = StatusFailed
}

func (e *executionContext) scheduleActivity(ctx Context, activityFn any, args []any) Future {
	name, err := e.registry.activityName(activityFn)
	if err != nil {
		return failedFuture(e, err)
	}
	input, err := e.converter.encodeArgs(args)
	if err != nil {
		return failedFuture(e, fmt.Errorf("activity %s: %w", name, err))
	}
	opts := getActivityOptions(ctx).toAPI()
	if opts.TaskList == "" {
		opts.TaskList = e.info.TaskList
	}

	entry := e.commands.add(api.Command{
		Kind:            api.CommandScheduleActivity,
		Name:            name,
		Input:           input,
		ActivityOptions: opts,
	})
	id := entry.command.CorrelationID
	f := newFutureImpl(e)
	f.cancelFn = func() { e.commands.cancel(id, api.CommandCancelActivity) }
	e.outstanding[id] = &outstandingCommand{kind: api.CommandScheduleActivity, name: name, result: f}
	return f
}

func (e *executionContext) startTimer(d time.Duration) Future {
	f := newFutureImpl(e)
	if d < 0 {
		_ = f.SetError(fmt.Errorf("negative timer duration %v", d))
		return f
	}
	if d == 0 {
		_ = f.SetValue(nil)
		return f
	}
	entry := e.commands.add(api.Command{Kind: api.CommandStartTimer, Duration: d})
	id := entry.command.CorrelationID
	f.cancelFn = func() { e.commands.cancel(id, api.CommandCancelTimer) }
	e.outstanding[id] = &outstandingCommand{kind: api.CommandStartTimer, result: f}
	return f
}

func (e *executionContext) startChildWorkflow(ctx Context, workflowFn any, args []any) ChildWorkflowFuture {
	started := newFutureImpl(e)
	f := &childWorkflowFutureImpl{futureImpl: newFutureImpl(e), execution: started}

	fail := func(err error) ChildWorkflowFuture {
		_ = f.SetError(err)
		_ = started.SetError(err)
		return f
	}
	name, err := e.registry.workflowName(workflowFn)
	if err != nil {
		return fail(err)
	}
	input, err := e.converter.encodeArgs(args)
	if err != nil {
		return fail(fmt.Errorf("child workflow %s: %w", name, err))
	}
	opts := getChildWorkflowOptions(ctx)
	attrs, err := e.encodeSearchAttributes(opts.SearchAttributes)
	if err != nil {
		return fail(err)
	}
	taskList := opts.TaskList
	if taskList == "" {
		taskList = e.info.TaskList
	}

	id := e.commands.nextCorrelationID()
	workflowID := opts.WorkflowID
	if workflowID == "" {
		workflowID = fmt.Sprintf("%s_%d", e.info.WorkflowExecution.RunID, id)
	}
	e.commands.add(api.Command{
		Kind:          api.CommandStartChildWorkflow,
		CorrelationID: id,
		Name:          name,
		Input:         input,
		Execution:     &api.WorkflowExecution{WorkflowID: workflowID},
		WorkflowOptions: &api.WorkflowOptions{
			TaskList:            taskList,
			ExecutionTimeout:    opts.ExecutionTimeout,
			DecisionTaskTimeout: opts.DecisionTaskTimeout,
			ReusePolicy:         opts.ReusePolicy,
			RetryPolicy:         opts.RetryPolicy,
			SearchAttributes:    attrs,
		},
	})
	f.cancelFn = func() { e.commands.cancel(id, api.CommandRequestCancelExternal) }
	e.outstanding[id] = &outstandingCommand{
		kind:      api.CommandStartChildWorkflow,
		name:      name,
		execution: api.WorkflowExecution{WorkflowID: workflowID},
		result:    f.futureImpl,
		started:   started,
	}
	return f
}

func (e *executionContext) signalExternal(execution api.WorkflowExecution, signalName string, arg any) Future {
	if execution.WorkflowID == "" || signalName == "" {
		return failedFuture(e, errors.New("signal external workflow: workflow id and signal name are required"))
	}
	payload, err := e.converter.encode(arg)
	if err != nil {
		return failedFuture(e, fmt.Errorf("signal %s: %w", signalName, err))
	}
	entry := e.commands.add(api.Command{
		Kind:      api.CommandSignalExternal,
		Name:      signalName,
		Input:     []api.Payload{payload},
		Execution: &execution,
	})
	f := newFutureImpl(e)
	e.outstanding[entry.command.CorrelationID] = &outstandingCommand{
		kind:      api.CommandSignalExternal,
		name:      signalName,
		execution: execution,
		result:    f,
	}
	return f
}

func (e *executionContext) requestCancelExternal(execution api.WorkflowExecution) Future {
	if execution.WorkflowID == "" {
		return failedFuture(e, errors.New("request cancel external workflow: workflow id is required"))
	}
	entry := e.commands.add(api.Command{
		Kind:      api.CommandRequestCancelExternal,
		Execution: &execution,
	})
	f := newFutureImpl(e)
	e.outstanding[entry.command.CorrelationID] = &outstandingCommand{
		kind:      api.CommandRequestCancelExternal,
		execution: execution,
		result:    f,
	}
	return f
}

func (e *executionContext) upsertSearchAttributes(attributes map[string]any) error {
	if len(attributes) == 0 {
		return errors.New("upsert search attributes: no attributes")
	}
	encoded, err := e.encodeSearchAttributes(attributes)
	if err != nil {
		return err
	}
	for k, v := range encoded {
		e.searchAttributes[k] = v
	}
	e.commands.add(api.Command{Kind: api.CommandUpsertSearchAttributes, SearchAttributes: encoded})
	return nil
}

func (e *executionContext) encodeSearchAttributes(attributes map[string]any) (map[string]api.Payload, error) {
	if len(attributes) == 0 {
		return nil, nil
	}
	out := make(map[string]api.Payload, len(attributes))
	for k, v := range attributes {
		p, err := e.converter.encode(v)
		if err != nil {
			return nil, fmt.Errorf("search attribute %s: %w", k, err)
		}
		out[k] = p
	}
	return out, nil
}
