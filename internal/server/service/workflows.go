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

package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/internal/server/history"
)

type startParams struct {
	namespace    string
	workflowID   string
	runID        string
	workflowType string
	input        []api.Payload
	options      api.WorkflowOptions
	identity     string

	parent              *api.WorkflowExecution
	parentCorrelationID int64
	attempt             int32
	continuedRunID      string

	// decisionDelay postpones the first decision, used for retry backoff.
	decisionDelay time.Duration
	// signal is recorded right after the started event.
	signal *api.HistoryEvent
}

func (s *Service) StartWorkflow(ctx context.Context, req *api.StartWorkflowRequest) (*api.StartWorkflowResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.startFromRequest(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return &api.StartWorkflowResponse{RunID: r.key.RunID}, nil
}

func (s *Service) SignalWithStartWorkflow(ctx context.Context, req *api.SignalWithStartWorkflowRequest) (*api.StartWorkflowResponse, error) {
	if req.SignalName == "" {
		return nil, badRequest("signal name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	signal := api.HistoryEvent{
		Type:     api.EventWorkflowExecutionSignaled,
		Name:     req.SignalName,
		Input:    []api.Payload{req.SignalInput},
		Identity: req.Start.Identity,
	}
	ns := namespaceOrDefault(req.Start.Namespace)
	if r, f := s.lookupOpen(ns, api.WorkflowExecution{WorkflowID: req.Start.WorkflowID}); f == nil {
		if err := s.record(ctx, r, signal); err != nil {
			return nil, internalError(err)
		}
		return &api.StartWorkflowResponse{RunID: r.key.RunID}, nil
	}
	r, err := s.startFromRequest(ctx, &req.Start, &signal)
	if err != nil {
		return nil, err
	}
	return &api.StartWorkflowResponse{RunID: r.key.RunID}, nil
}

func (s *Service) startFromRequest(ctx context.Context, req *api.StartWorkflowRequest, signal *api.HistoryEvent) (*run, error) {
	if req.WorkflowID == "" {
		return nil, badRequest("workflow id is required")
	}
	if req.WorkflowType == "" {
		return nil, badRequest("workflow type is required")
	}
	policy, err := api.ParseWorkflowIDReusePolicy(string(req.Options.ReusePolicy))
	if err != nil {
		return nil, badRequest("%v", err)
	}
	ns := namespaceOrDefault(req.Namespace)
	if f := s.checkReuse(ns, req.WorkflowID, policy); f != nil {
		return nil, f
	}
	r, err := s.startRun(ctx, startParams{
		namespace:    ns,
		workflowID:   req.WorkflowID,
		workflowType: req.WorkflowType,
		input:        req.Input,
		options:      req.Options,
		identity:     req.Identity,
		signal:       signal,
	})
	if err != nil {
		return nil, internalError(err)
	}
	return r, nil
}

// checkReuse applies the id reuse policy against the latest run of
// workflowID.
func (s *Service) checkReuse(namespace, workflowID string, policy api.WorkflowIDReusePolicy) *api.Failure {
	runID, ok := s.current[workflowKey{namespace, workflowID}]
	if !ok {
		return nil
	}
	prev := s.runs[history.RunKey{Namespace: namespace, WorkflowID: workflowID, RunID: runID}]
	if prev.isOpen() {
		return api.AlreadyStartedFailure(workflowID, runID)
	}
	switch policy {
	case api.ReusePolicyRejectDuplicate:
		return api.AlreadyStartedFailure(workflowID, runID)
	case api.ReusePolicyAllowDuplicateFailedOnly:
		if !prev.status.unsuccessful() {
			return api.AlreadyStartedFailure(workflowID, runID)
		}
	}
	return nil
}

// startRun creates a run, records its started event and schedules the first
// decision.
func (s *Service) startRun(ctx context.Context, p startParams) (*run, error) {
	if p.runID == "" {
		p.runID = uuid.Must(uuid.NewV7()).String()
	}
	if p.attempt == 0 {
		p.attempt = 1
	}
	if p.options.DecisionTaskTimeout <= 0 {
		p.options.DecisionTaskTimeout = s.decisionTaskTimeout
	}
	if p.options.TaskList == "" {
		p.options.TaskList = api.DefaultTaskList
	}

	r := newRun(history.RunKey{Namespace: p.namespace, WorkflowID: p.workflowID, RunID: p.runID})
	r.workflowType = p.workflowType
	r.taskList = p.options.TaskList
	r.options = p.options
	r.input = p.input
	r.attempt = p.attempt
	r.parent = p.parent
	r.parentCorrelationID = p.parentCorrelationID
	for k, v := range p.options.SearchAttributes {
		r.searchAttributes[k] = v
	}

	opts := p.options
	events := []api.HistoryEvent{{
		Type:                api.EventWorkflowExecutionStarted,
		Name:                p.workflowType,
		TaskList:            r.taskList,
		Input:               p.input,
		WorkflowOptions:     &opts,
		ParentExecution:     p.parent,
		ParentCorrelationID: p.parentCorrelationID,
		Attempt:             p.attempt,
		Identity:            p.identity,
		ContinuedRunID:      p.continuedRunID,
	}}
	if p.signal != nil {
		events = append(events, *p.signal)
	}
	if _, err := s.append(ctx, r, events...); err != nil {
		return nil, err
	}
	s.runs[r.key] = r
	s.current[workflowKey{p.namespace, p.workflowID}] = p.runID

	if timeout := p.options.ExecutionTimeout; timeout > 0 {
		r.executionTimeout = s.clock.AfterFunc(timeout, s.async("execution timeout", func(ctx context.Context) error {
			return s.timeoutRun(ctx, r)
		}))
	}

	s.logger.Info("workflow started",
		"namespace", p.namespace,
		"workflow_id", p.workflowID,
		"run_id", p.runID,
		"workflow_type", p.workflowType,
		"attempt", p.attempt,
	)

	if p.decisionDelay > 0 {
		r.delayedDecision = s.clock.AfterFunc(p.decisionDelay, s.async("delayed decision", func(ctx context.Context) error {
			r.delayedDecision = nil
			return s.scheduleDecision(ctx, r)
		}))
		return r, nil
	}
	return r, s.scheduleDecision(ctx, r)
}

func (s *Service) SignalWorkflow(ctx context.Context, req *api.SignalWorkflowRequest) error {
	if req.SignalName == "" {
		return badRequest("signal name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, f := s.lookupOpen(req.Namespace, req.Execution)
	if f != nil {
		return f
	}
	err := s.record(ctx, r, api.HistoryEvent{
		Type:     api.EventWorkflowExecutionSignaled,
		Name:     req.SignalName,
		Input:    []api.Payload{req.Input},
		Identity: req.Identity,
	})
	if err != nil {
		return internalError(err)
	}
	return nil
}

func (s *Service) RequestCancelWorkflow(ctx context.Context, req *api.RequestCancelWorkflowRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, f := s.lookupOpen(req.Namespace, req.Execution)
	if f != nil {
		return f
	}
	if err := s.requestCancel(ctx, r, req.Identity); err != nil {
		return internalError(err)
	}
	return nil
}

// requestCancel records a cancel request once per run.
func (s *Service) requestCancel(ctx context.Context, r *run, identity string) error {
	if r.cancelRequested {
		return nil
	}
	r.cancelRequested = true
	return s.record(ctx, r, api.HistoryEvent{
		Type:     api.EventWorkflowExecutionCancelRequested,
		Identity: identity,
	})
}

func (s *Service) TerminateWorkflow(ctx context.Context, req *api.TerminateWorkflowRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, f := s.lookupOpen(req.Namespace, req.Execution)
	if f != nil {
		return f
	}
	err := s.closeRun(ctx, r, api.HistoryEvent{
		Type:     api.EventWorkflowExecutionTerminated,
		Reason:   req.Reason,
		Identity: req.Identity,
	})
	if err != nil {
		return internalError(err)
	}
	return nil
}

func (s *Service) timeoutRun(ctx context.Context, r *run) error {
	r.executionTimeout = nil
	if !r.isOpen() {
		return nil
	}
	return s.closeRun(ctx, r, api.HistoryEvent{
		Type: api.EventWorkflowExecutionTimedOut,
		Failure: &api.Failure{
			Kind:        api.FailureKindTimeout,
			Message:     "workflow execution timed out",
			TimeoutType: api.TimeoutTypeExecution,
		},
	})
}

// closeRun appends the close event and settles what follows from it: a
// retry or continue-as-new run, and the report to the parent.
func (s *Service) closeRun(ctx context.Context, r *run, closeEvent api.HistoryEvent) error {
	var next *startParams
	switch closeEvent.Type {
	case api.EventWorkflowExecutionFailed, api.EventWorkflowExecutionTimedOut:
		policy := r.options.RetryPolicy
		if policy.ShouldRetry(r.attempt, closeEvent.Failure) {
			next = &startParams{
				workflowType:  r.workflowType,
				input:         r.input,
				options:       r.options,
				attempt:       r.attempt + 1,
				decisionDelay: policy.NextDelay(r.attempt),
			}
		}
	case api.EventWorkflowExecutionContinuedAsNew:
		opts := r.options
		if o := closeEvent.WorkflowOptions; o != nil {
			opts = *o
			if opts.TaskList == "" {
				opts.TaskList = r.taskList
			}
			if opts.SearchAttributes == nil {
				opts.SearchAttributes = r.searchAttributes
			}
		}
		workflowType := closeEvent.Name
		if workflowType == "" {
			workflowType = r.workflowType
		}
		next = &startParams{
			workflowType: workflowType,
			input:        closeEvent.Input,
			options:      opts,
		}
	}
	if next != nil {
		next.runID = uuid.Must(uuid.NewV7()).String()
		closeEvent.NewRunID = next.runID
	}

	if _, err := s.append(ctx, r, closeEvent); err != nil {
		return err
	}
	r.stopTimers()
	r.buffered = nil
	s.logger.Info("workflow closed",
		"namespace", r.key.Namespace,
		"workflow_id", r.key.WorkflowID,
		"run_id", r.key.RunID,
		"status", r.status.String(),
		"new_run_id", closeEvent.NewRunID,
	)

	if next != nil {
		next.namespace = r.key.Namespace
		next.workflowID = r.key.WorkflowID
		next.parent = r.parent
		next.parentCorrelationID = r.parentCorrelationID
		next.continuedRunID = r.key.RunID
		_, err := s.startRun(ctx, *next)
		return err
	}
	return s.reportToParent(ctx, r, closeEvent)
}

var childEventByClose = map[api.EventType]api.EventType{
	api.EventWorkflowExecutionCompleted:  api.EventChildWorkflowExecutionCompleted,
	api.EventWorkflowExecutionFailed:     api.EventChildWorkflowExecutionFailed,
	api.EventWorkflowExecutionCanceled:   api.EventChildWorkflowExecutionCanceled,
	api.EventWorkflowExecutionTerminated: api.EventChildWorkflowExecutionTerminated,
	api.EventWorkflowExecutionTimedOut:   api.EventChildWorkflowExecutionTimedOut,
}

// reportToParent tells the parent run, if still open, how its child closed.
func (s *Service) reportToParent(ctx context.Context, child *run, closeEvent api.HistoryEvent) error {
	if child.parent == nil {
		return nil
	}
	eventType, ok := childEventByClose[closeEvent.Type]
	if !ok {
		return nil
	}
	parent, f := s.lookupOpen(child.key.Namespace, *child.parent)
	if f != nil {
		return nil
	}
	execution := child.execution()
	return s.record(ctx, parent, api.HistoryEvent{
		Type:          eventType,
		CorrelationID: child.parentCorrelationID,
		Name:          child.workflowType,
		Execution:     &execution,
		Result:        closeEvent.Result,
		Failure:       closeEvent.Failure,
		Reason:        closeEvent.Reason,
	})
}
