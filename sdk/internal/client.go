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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

var _ Client = (*clientImpl)(nil)

var validate = validator.New(validator.WithRequiredStructEnabled())

type (
	// Client starts, signals and observes workflow executions.
	Client interface {
		// ExecuteWorkflow starts a run of workflow, a registered function or a
		// workflow type name.
		ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow any, args ...any) (WorkflowRun, error)

		// GetWorkflow returns a handle to a run. An empty runID follows the
		// current run of workflowID.
		GetWorkflow(ctx context.Context, workflowID, runID string) WorkflowRun

		SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg any) error

		// SignalWithStartWorkflow signals the open run of the options' workflow
		// id, starting a run first if none is open.
		SignalWithStartWorkflow(ctx context.Context, signalName string, signalArg any, options StartWorkflowOptions, workflow any, args ...any) (WorkflowRun, error)

		CancelWorkflow(ctx context.Context, workflowID, runID string) error
		TerminateWorkflow(ctx context.Context, workflowID, runID, reason string) error

		// GetWorkflowHistory reads history events. Long-poll requests are
		// validated before anything is sent.
		GetWorkflowHistory(ctx context.Context, options GetWorkflowHistoryOptions) (*api.GetWorkflowHistoryResponse, error)

		Close()

		// Accessors to underlying components, not exposed for public consumption
		getTransport() Transport
		getConverter() *dataConverter
		getLogger() *slog.Logger
		getNamespace() string
		getTaskList() string
	}

	ClientOptions struct {
		// Transport is used as is when set. Otherwise Conn is wrapped into a
		// NATS transport.
		Transport Transport
		Conn      *nats.Conn

		Namespace string
		// Identity names this client in history. Required with Conn.
		Identity string
		// TaskList is the default task list of workflows started without one.
		TaskList       string
		RequestTimeout time.Duration
		Serde          serde.BinarySerde
		Logger         *slog.Logger
	}

	// StartWorkflowOptions configure a new workflow run. An empty ID is
	// replaced by a random UUID.
	StartWorkflowOptions struct {
		ID                    string        `validate:"omitempty,max=1000"`
		TaskList              string        `validate:"required"`
		ExecutionTimeout      time.Duration `validate:"gte=0"`
		DecisionTaskTimeout   time.Duration `validate:"gte=0"`
		WorkflowIDReusePolicy string
		RetryPolicy           *RetryPolicy
		SearchAttributes      map[string]any
	}

	// GetWorkflowHistoryOptions select the events returned by
	// GetWorkflowHistory.
	GetWorkflowHistoryOptions struct {
		WorkflowID      string
		RunID           string
		NextEventID     int64
		WaitForNewEvent bool
		Timeout         time.Duration
		EventFilter     api.HistoryEventFilter
	}

	// WorkflowRun is a handle to a started run.
	WorkflowRun interface {
		GetID() string
		GetRunID() string

		// Get blocks until the run closes and decodes its result into
		// valuePtr. Runs that continue as new or retry are followed to the
		// last run of the chain.
		Get(ctx context.Context, valuePtr any) error
	}
)

type clientImpl struct {
	transport Transport
	converter *dataConverter
	logger    *slog.Logger
	namespace string
	taskList  string
	ownsConn  *Conn
}

func NewClient(options ClientOptions) (Client, error) {
	logger := defaultLogger(options.Logger)
	namespace := options.Namespace
	if namespace == "" {
		namespace = api.DefaultNamespace
	}
	taskList := options.TaskList
	if taskList == "" {
		taskList = api.DefaultTaskList
	}

	c := &clientImpl{
		converter: newDataConverter(options.Serde),
		logger:    logger,
		namespace: namespace,
		taskList:  taskList,
	}
	switch {
	case options.Transport != nil:
		c.transport = options.Transport
	case options.Conn != nil:
		conn, err := NewConn(options.Conn, ConnOptions{
			Namespace:      namespace,
			Identity:       options.Identity,
			RequestTimeout: options.RequestTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		c.transport = conn
		c.ownsConn = conn
	default:
		return nil, fmt.Errorf("client options must include a transport or an established NATS connection")
	}
	return c, nil
}

func (c *clientImpl) ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow any, args ...any) (WorkflowRun, error) {
	req, err := c.startRequest(options, workflow, args)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.StartWorkflow(ctx, req)
	if err != nil {
		return nil, toServiceError(err)
	}
	c.logger.Debug("workflow started", "workflow_id", req.WorkflowID, "run_id", resp.RunID, "workflow_type", req.WorkflowType)
	return c.newRun(req.WorkflowID, resp.RunID), nil
}

func (c *clientImpl) GetWorkflow(ctx context.Context, workflowID, runID string) WorkflowRun {
	return c.newRun(workflowID, runID)
}

func (c *clientImpl) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg any) error {
	if workflowID == "" {
		return newClientError("You must specify a workflow_id.")
	}
	if signalName == "" {
		return newClientError("You must specify a signal name.")
	}
	input, err := c.converter.encode(arg)
	if err != nil {
		return &ClientError{message: "cannot encode signal input", cause: err}
	}
	err = c.transport.SignalWorkflow(ctx, &api.SignalWorkflowRequest{
		Namespace:  c.namespace,
		Execution:  api.WorkflowExecution{WorkflowID: workflowID, RunID: runID},
		SignalName: signalName,
		Input:      input,
		Identity:   c.transport.Identity(),
	})
	return toServiceError(err)
}

func (c *clientImpl) SignalWithStartWorkflow(ctx context.Context, signalName string, signalArg any, options StartWorkflowOptions, workflow any, args ...any) (WorkflowRun, error) {
	if signalName == "" {
		return nil, newClientError("You must specify a signal name.")
	}
	start, err := c.startRequest(options, workflow, args)
	if err != nil {
		return nil, err
	}
	input, err := c.converter.encode(signalArg)
	if err != nil {
		return nil, &ClientError{message: "cannot encode signal input", cause: err}
	}
	resp, err := c.transport.SignalWithStartWorkflow(ctx, &api.SignalWithStartWorkflowRequest{
		Start:       *start,
		SignalName:  signalName,
		SignalInput: input,
	})
	if err != nil {
		return nil, toServiceError(err)
	}
	return c.newRun(start.WorkflowID, resp.RunID), nil
}

func (c *clientImpl) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	if workflowID == "" {
		return newClientError("You must specify a workflow_id.")
	}
	err := c.transport.RequestCancelWorkflow(ctx, &api.RequestCancelWorkflowRequest{
		Namespace: c.namespace,
		Execution: api.WorkflowExecution{WorkflowID: workflowID, RunID: runID},
		Identity:  c.transport.Identity(),
	})
	return toServiceError(err)
}

func (c *clientImpl) TerminateWorkflow(ctx context.Context, workflowID, runID, reason string) error {
	if workflowID == "" {
		return newClientError("You must specify a workflow_id.")
	}
	err := c.transport.TerminateWorkflow(ctx, &api.TerminateWorkflowRequest{
		Namespace: c.namespace,
		Execution: api.WorkflowExecution{WorkflowID: workflowID, RunID: runID},
		Reason:    reason,
		Identity:  c.transport.Identity(),
	})
	return toServiceError(err)
}

func (c *clientImpl) GetWorkflowHistory(ctx context.Context, options GetWorkflowHistoryOptions) (*api.GetWorkflowHistoryResponse, error) {
	req := &api.GetWorkflowHistoryRequest{
		Namespace:       c.namespace,
		Execution:       api.WorkflowExecution{WorkflowID: options.WorkflowID, RunID: options.RunID},
		NextEventID:     options.NextEventID,
		WaitForNewEvent: options.WaitForNewEvent,
		Timeout:         options.Timeout,
		EventFilter:     options.EventFilter,
	}
	if err := validateGetWorkflowHistory(req); err != nil {
		return nil, err
	}
	resp, err := c.transport.GetWorkflowHistory(ctx, req)
	if err != nil {
		return nil, toServiceError(err)
	}
	return resp, nil
}

func (c *clientImpl) Close() {
	if c.ownsConn != nil {
		c.ownsConn.Close()
	}
}

func (c *clientImpl) startRequest(options StartWorkflowOptions, workflow any, args []any) (*api.StartWorkflowRequest, error) {
	if options.TaskList == "" {
		options.TaskList = c.taskList
	}
	if err := validate.Struct(options); err != nil {
		return nil, &ClientError{message: "invalid start workflow options: " + err.Error(), cause: err}
	}
	if err := validateRetryPolicy(options.RetryPolicy); err != nil {
		return nil, err
	}
	policy, err := api.ParseWorkflowIDReusePolicy(options.WorkflowIDReusePolicy)
	if err != nil {
		return nil, &ClientError{message: err.Error(), cause: err}
	}

	workflowType, err := typeName(workflow)
	if err != nil {
		return nil, &ClientError{message: "invalid workflow: " + err.Error(), cause: err}
	}
	input, err := c.converter.encodeArgs(args)
	if err != nil {
		return nil, &ClientError{message: "cannot encode workflow input", cause: err}
	}
	attrs := make(map[string]api.Payload, len(options.SearchAttributes))
	for k, v := range options.SearchAttributes {
		p, err := c.converter.encode(v)
		if err != nil {
			return nil, &ClientError{message: "cannot encode search attribute " + k, cause: err}
		}
		attrs[k] = p
	}
	if len(attrs) == 0 {
		attrs = nil
	}

	workflowID := strings.TrimSpace(options.ID)
	if workflowID == "" {
		workflowID = uuid.Must(uuid.NewV4()).String()
	}
	return &api.StartWorkflowRequest{
		Namespace:    c.namespace,
		WorkflowID:   workflowID,
		WorkflowType: workflowType,
		Input:        input,
		Options: api.WorkflowOptions{
			TaskList:            options.TaskList,
			ExecutionTimeout:    options.ExecutionTimeout,
			DecisionTaskTimeout: options.DecisionTaskTimeout,
			ReusePolicy:         policy,
			RetryPolicy:         options.RetryPolicy,
			SearchAttributes:    attrs,
		},
		Identity: c.transport.Identity(),
	}, nil
}

func validateRetryPolicy(p *RetryPolicy) error {
	switch {
	case p == nil:
		return nil
	case p.InitialInterval < 0, p.MaximumInterval < 0:
		return newClientError("retry policy intervals must not be negative")
	case p.BackoffCoefficient != 0 && p.BackoffCoefficient < 1:
		return newClientError("retry policy backoff coefficient must be at least 1, got: %v", p.BackoffCoefficient)
	case p.MaximumAttempts < 0:
		return newClientError("retry policy maximum attempts must not be negative")
	case p.MaximumInterval > 0 && p.MaximumInterval < p.InitialInterval:
		return newClientError("retry policy maximum interval is shorter than the initial interval")
	}
	return nil
}

// typeName resolves a workflow function or name to a workflow type.
func typeName(fn any) (string, error) {
	if name, ok := fn.(string); ok {
		if name == "" {
			return "", fmt.Errorf("%w: empty name", ErrInvalidFunction)
		}
		return name, nil
	}
	return extractFullFunctionName(fn)
}

func (c *clientImpl) newRun(workflowID, runID string) *workflowRun {
	return &workflowRun{client: c, workflowID: workflowID, runID: runID}
}

func (c *clientImpl) getTransport() Transport      { return c.transport }
func (c *clientImpl) getConverter() *dataConverter { return c.converter }
func (c *clientImpl) getLogger() *slog.Logger      { return c.logger }
func (c *clientImpl) getNamespace() string         { return c.namespace }
func (c *clientImpl) getTaskList() string          { return c.taskList }

type workflowRun struct {
	client     *clientImpl
	workflowID string
	runID      string
}

func (r *workflowRun) GetID() string    { return r.workflowID }
func (r *workflowRun) GetRunID() string { return r.runID }

func (r *workflowRun) Get(ctx context.Context, valuePtr any) error {
	runID := r.runID
	for {
		event, err := r.waitForClose(ctx, runID)
		if err != nil {
			return err
		}
		switch event.Type {
		case api.EventWorkflowExecutionCompleted:
			return r.client.converter.decode(event.Result, valuePtr)
		case api.EventWorkflowExecutionContinuedAsNew:
			runID = event.NewRunID
			continue
		case api.EventWorkflowExecutionFailed, api.EventWorkflowExecutionTimedOut:
			if event.NewRunID != "" {
				// The service retried the run.
				runID = event.NewRunID
				continue
			}
			if event.Type == api.EventWorkflowExecutionTimedOut {
				return NewTimeoutError(api.TimeoutTypeExecution, nil)
			}
			return ConvertFailureToError(event.Failure)
		case api.EventWorkflowExecutionCanceled:
			if f := event.Failure; f != nil {
				return ConvertFailureToError(f)
			}
			return NewCanceledError("workflow canceled")
		case api.EventWorkflowExecutionTerminated:
			return NewTerminatedError(event.Reason)
		default:
			return fmt.Errorf("unexpected close event %s", event.Type)
		}
	}
}

// waitForClose long-polls the history of a run until its close event shows up.
func (r *workflowRun) waitForClose(ctx context.Context, runID string) (*api.HistoryEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := r.client.GetWorkflowHistory(ctx, GetWorkflowHistoryOptions{
			WorkflowID:      r.workflowID,
			RunID:           runID,
			WaitForNewEvent: true,
			Timeout:         api.MaxGetHistoryWaitTimeout,
			EventFilter:     api.HistoryEventFilterClose,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue
			}
			return nil, err
		}
		for i := len(resp.Events) - 1; i >= 0; i-- {
			if resp.Events[i].IsCloseEvent() {
				return &resp.Events[i], nil
			}
		}
	}
}
