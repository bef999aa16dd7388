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

	"github.com/ngnhng/durableflow/api"
)

// FailureTypeUnhandledDecision fails a decision that tried to close the run
// while new events were waiting for it.
const FailureTypeUnhandledDecision = "UnhandledDecision"

// scheduleDecision schedules a decision task unless one is already
// scheduled or started.
func (s *Service) scheduleDecision(ctx context.Context, r *run) error {
	if !r.isOpen() || r.decision.phase != decisionIdle || r.delayedDecision != nil {
		return nil
	}
	events, err := s.append(ctx, r, api.HistoryEvent{
		Type:     api.EventDecisionTaskScheduled,
		TaskList: r.taskList,
		Attempt:  r.decision.attempt,
	})
	if err != nil || len(events) == 0 {
		return err
	}
	r.decision.phase = decisionScheduled
	r.decision.scheduledID = events[0].ID
	s.decisionQueue(s.taskListKey(r.key.Namespace, r.taskList)).push(decisionRef{key: r.key, scheduledID: events[0].ID})
	return nil
}

func (s *Service) PollDecisionTask(ctx context.Context, req *api.PollRequest) (*api.DecisionTask, error) {
	if req.TaskList == "" {
		return nil, badRequest("task list is required")
	}
	k := s.taskListKey(req.Namespace, req.TaskList)
	return poll(ctx, s, req.Timeout, func(ctx context.Context) (*api.DecisionTask, <-chan struct{}, error) {
		q := s.decisionQueue(k)
		for {
			ref, ok := q.pop()
			if !ok {
				return nil, q.ready, nil
			}
			task, err := s.startDecision(ctx, ref, req.Identity)
			if err != nil {
				return nil, nil, internalError(err)
			}
			if task != nil {
				return task, nil, nil
			}
		}
	})
}

// startDecision hands the scheduled decision of ref's run to a poller. Stale
// queue entries yield a nil task.
func (s *Service) startDecision(ctx context.Context, ref decisionRef, identity string) (*api.DecisionTask, error) {
	r, ok := s.runs[ref.key]
	if !ok || !r.isOpen() || r.decision.phase != decisionScheduled || r.decision.scheduledID != ref.scheduledID {
		return nil, nil
	}
	events, err := s.append(ctx, r, api.HistoryEvent{
		Type:     api.EventDecisionTaskStarted,
		Identity: identity,
	})
	if err != nil {
		return nil, err
	}
	r.decision.phase = decisionStarted
	r.decision.startedID = events[0].ID
	scheduledID := ref.scheduledID
	r.decision.timeout = s.clock.AfterFunc(r.options.DecisionTaskTimeout, s.async("decision timeout", func(ctx context.Context) error {
		return s.decisionTimedOut(ctx, r, scheduledID)
	}))

	hist, err := s.store.Read(ctx, r.key, 1)
	if err != nil {
		return nil, err
	}
	token := s.newToken(taskToken{key: r.key, decision: true, scheduledID: scheduledID})
	r.decision.token = string(token)

	return &api.DecisionTask{
		TaskToken:      token,
		Execution:      r.execution(),
		WorkflowType:   r.workflowType,
		StartedEventID: r.decision.startedID,
		Attempt:        r.decision.attempt,
		History:        hist,
	}, nil
}

// endDecision returns the run's decision to idle.
func (s *Service) endDecision(r *run, nextAttempt int32) {
	if r.decision.timeout != nil {
		r.decision.timeout.Stop()
	}
	delete(s.tokens, r.decision.token)
	r.decision = decisionState{attempt: nextAttempt}
}

func (s *Service) decisionTimedOut(ctx context.Context, r *run, scheduledID int64) error {
	if !r.isOpen() || r.decision.phase != decisionStarted || r.decision.scheduledID != scheduledID {
		return nil
	}
	s.logger.Warn("decision task timed out", "run", r.key.String(), "scheduled_event_id", scheduledID)
	_, err := s.append(ctx, r, api.HistoryEvent{
		Type: api.EventDecisionTaskTimedOut,
		Failure: &api.Failure{
			Kind:        api.FailureKindTimeout,
			Message:     "decision task timed out",
			TimeoutType: api.TimeoutTypeStartToClose,
		},
	})
	if err != nil {
		return err
	}
	s.endDecision(r, r.decision.attempt+1)
	if err := s.flushBuffered(ctx, r); err != nil {
		return err
	}
	return s.scheduleDecision(ctx, r)
}

// decisionToken resolves a decision task token to its started decision.
func (s *Service) decisionToken(token []byte) (*run, *api.Failure) {
	t, ok := s.tokens[string(token)]
	if !ok || !t.decision {
		return nil, api.ServerFailure(api.FailureTypeInvalidTaskToken, "unknown decision task token")
	}
	r, ok := s.runs[t.key]
	if !ok || !r.isOpen() {
		delete(s.tokens, string(token))
		return nil, notFound("workflow run %s/%s is not open", t.key.WorkflowID, t.key.RunID)
	}
	if r.decision.phase != decisionStarted || r.decision.scheduledID != t.scheduledID {
		delete(s.tokens, string(token))
		return nil, api.ServerFailure(api.FailureTypeInvalidTaskToken, "decision task %d is no longer started", t.scheduledID)
	}
	return r, nil
}

func (s *Service) RespondDecisionTaskFailed(ctx context.Context, req *api.RespondDecisionTaskFailedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, f := s.decisionToken(req.TaskToken)
	if f != nil {
		return f
	}
	s.logger.Warn("decision task failed",
		"run", r.key.String(),
		"attempt", r.decision.attempt,
		"identity", req.Identity,
		"failure", req.Failure.Error(),
	)
	_, err := s.append(ctx, r, api.HistoryEvent{
		Type:     api.EventDecisionTaskFailed,
		Failure:  req.Failure,
		Identity: req.Identity,
	})
	if err != nil {
		return internalError(err)
	}
	s.endDecision(r, r.decision.attempt+1)
	// Not rescheduled until a new event shows up.
	if err := s.flushBuffered(ctx, r); err != nil {
		return internalError(err)
	}
	return nil
}

func (s *Service) RespondDecisionTaskCompleted(ctx context.Context, req *api.RespondDecisionTaskCompletedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, f := s.decisionToken(req.TaskToken)
	if f != nil {
		return f
	}
	if f := validateCommands(req.Commands); f != nil {
		return f
	}

	if closesRun(req.Commands) && needsDecision(r.buffered) {
		_, err := s.append(ctx, r, api.HistoryEvent{
			Type:     api.EventDecisionTaskFailed,
			Failure:  api.ServerFailure(FailureTypeUnhandledDecision, "new events arrived while the decision was closing the run"),
			Identity: req.Identity,
		})
		if err != nil {
			return internalError(err)
		}
		s.endDecision(r, 1)
		if err := s.flushBuffered(ctx, r); err != nil {
			return internalError(err)
		}
		return nil
	}

	_, err := s.append(ctx, r, api.HistoryEvent{
		Type:     api.EventDecisionTaskCompleted,
		Identity: req.Identity,
	})
	if err != nil {
		return internalError(err)
	}
	s.endDecision(r, 1)
	if err := s.applyCommands(ctx, r, req.Commands); err != nil {
		return internalError(err)
	}
	return nil
}

func validateCommands(cmds []api.Command) *api.Failure {
	for i := range cmds {
		cmd := &cmds[i]
		if _, ok := cmd.RecordedEventType(); !ok {
			return badRequest("command %d: unknown kind %q", i, cmd.Kind)
		}
		switch cmd.Kind {
		case api.CommandScheduleActivity, api.CommandStartChildWorkflow:
			if cmd.Name == "" {
				return badRequest("command %d: %s requires a name", i, cmd.Kind)
			}
		case api.CommandSignalExternal:
			if cmd.Name == "" {
				return badRequest("command %d: %s requires a signal name", i, cmd.Kind)
			}
		}
		switch cmd.Kind {
		case api.CommandSignalExternal, api.CommandRequestCancelExternal, api.CommandStartChildWorkflow:
			if cmd.Execution == nil || cmd.Execution.WorkflowID == "" {
				return badRequest("command %d: %s requires a workflow id", i, cmd.Kind)
			}
		}
	}
	return nil
}

func closesRun(cmds []api.Command) bool {
	for i := range cmds {
		if cmds[i].IsTerminal() {
			return true
		}
	}
	return false
}

func needsDecision(events []api.HistoryEvent) bool {
	for i := range events {
		if events[i].TriggersDecision() {
			return true
		}
	}
	return false
}

// applyCommands records each command as its event, then acts on it. Effects
// that add events to this run are deferred until every command is recorded.
func (s *Service) applyCommands(ctx context.Context, r *run, cmds []api.Command) error {
	var followups []func() error

	for i := range cmds {
		if !r.isOpen() {
			break
		}
		cmd := cmds[i]
		eventType, _ := cmd.RecordedEventType()
		event := api.HistoryEvent{
			Type:             eventType,
			CorrelationID:    cmd.CorrelationID,
			Name:             cmd.Name,
			Input:            cmd.Input,
			Result:           cmd.Result,
			Failure:          cmd.Failure,
			Execution:        cmd.Execution,
			ActivityOptions:  cmd.ActivityOptions,
			WorkflowOptions:  cmd.WorkflowOptions,
			SearchAttributes: cmd.SearchAttributes,
			Duration:         cmd.Duration,
		}

		if cmd.IsTerminal() {
			if err := s.closeRun(ctx, r, event); err != nil {
				return err
			}
			break
		}
		if _, err := s.append(ctx, r, event); err != nil {
			return err
		}

		switch cmd.Kind {
		case api.CommandScheduleActivity:
			s.scheduleActivity(r, &cmd)

		case api.CommandCancelActivity:
			if s.cancelActivity(r, cmd.CorrelationID) {
				followups = append(followups, func() error {
					return s.record(ctx, r, api.HistoryEvent{
						Type:          api.EventActivityTaskCanceled,
						CorrelationID: cmd.CorrelationID,
						Name:          cmd.Name,
					})
				})
			}

		case api.CommandStartTimer:
			followups = append(followups, s.startTimer(ctx, r, cmd.CorrelationID, cmd.Duration))

		case api.CommandCancelTimer:
			if t, ok := r.timers[cmd.CorrelationID]; ok {
				t.Stop()
				delete(r.timers, cmd.CorrelationID)
			}
			r.dropBuffered(cmd.CorrelationID, api.EventTimerFired)

		case api.CommandUpsertSearchAttributes:
			for k, v := range cmd.SearchAttributes {
				r.searchAttributes[k] = v
			}

		case api.CommandSignalExternal:
			followups = append(followups, func() error { return s.signalExternal(ctx, r, &cmd) })

		case api.CommandRequestCancelExternal:
			followups = append(followups, func() error { return s.cancelExternal(ctx, r, &cmd) })

		case api.CommandStartChildWorkflow:
			followups = append(followups, func() error { return s.startChild(ctx, r, &cmd) })
		}
	}

	if err := s.flushBuffered(ctx, r); err != nil {
		return err
	}
	for _, fn := range followups {
		if fn == nil {
			continue
		}
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// dropBuffered removes buffered events of the given types for correlationID
// and reports whether any were removed.
func (r *run) dropBuffered(correlationID int64, types ...api.EventType) bool {
	kept := r.buffered[:0]
	dropped := false
	for _, e := range r.buffered {
		match := false
		if e.CorrelationID == correlationID {
			for _, t := range types {
				if e.Type == t {
					match = true
					break
				}
			}
		}
		if match {
			dropped = true
			continue
		}
		kept = append(kept, e)
	}
	r.buffered = kept
	return dropped
}

// startTimer arms a timer for the run. A non-positive duration fires as soon
// as the decision's events are recorded.
func (s *Service) startTimer(ctx context.Context, r *run, correlationID int64, d time.Duration) func() error {
	fired := func(ctx context.Context) error {
		delete(r.timers, correlationID)
		return s.record(ctx, r, api.HistoryEvent{
			Type:          api.EventTimerFired,
			CorrelationID: correlationID,
		})
	}
	if d <= 0 {
		return func() error { return fired(ctx) }
	}
	r.timers[correlationID] = s.clock.AfterFunc(d, s.async("timer", fired))
	return nil
}

func (s *Service) signalExternal(ctx context.Context, r *run, cmd *api.Command) error {
	execution := *cmd.Execution
	target, f := s.lookupOpen(r.key.Namespace, execution)
	if f != nil {
		return s.record(ctx, r, api.HistoryEvent{
			Type:          api.EventSignalExternalWorkflowExecutionFailed,
			CorrelationID: cmd.CorrelationID,
			Name:          cmd.Name,
			Execution:     &execution,
			Failure:       f,
		})
	}
	var input api.Payload
	if len(cmd.Input) > 0 {
		input = cmd.Input[0]
	}
	err := s.record(ctx, target, api.HistoryEvent{
		Type:     api.EventWorkflowExecutionSignaled,
		Name:     cmd.Name,
		Input:    []api.Payload{input},
		Identity: r.execution().String(),
	})
	if err != nil {
		return err
	}
	execution.RunID = target.key.RunID
	return s.record(ctx, r, api.HistoryEvent{
		Type:          api.EventExternalWorkflowExecutionSignaled,
		CorrelationID: cmd.CorrelationID,
		Name:          cmd.Name,
		Execution:     &execution,
	})
}

func (s *Service) cancelExternal(ctx context.Context, r *run, cmd *api.Command) error {
	execution := *cmd.Execution
	if child, ok := r.children[cmd.CorrelationID]; ok && child.WorkflowID == execution.WorkflowID {
		execution = child
	}
	target, f := s.lookupOpen(r.key.Namespace, execution)
	if f != nil {
		return s.record(ctx, r, api.HistoryEvent{
			Type:          api.EventRequestCancelExternalWorkflowExecutionFailed,
			CorrelationID: cmd.CorrelationID,
			Name:          cmd.Name,
			Execution:     &execution,
			Failure:       f,
		})
	}
	if err := s.requestCancel(ctx, target, r.execution().String()); err != nil {
		return err
	}
	execution.RunID = target.key.RunID
	return s.record(ctx, r, api.HistoryEvent{
		Type:          api.EventExternalWorkflowExecutionCancelRequested,
		CorrelationID: cmd.CorrelationID,
		Name:          cmd.Name,
		Execution:     &execution,
	})
}

func (s *Service) startChild(ctx context.Context, r *run, cmd *api.Command) error {
	execution := *cmd.Execution
	var opts api.WorkflowOptions
	if cmd.WorkflowOptions != nil {
		opts = *cmd.WorkflowOptions
	}
	if opts.TaskList == "" {
		opts.TaskList = r.taskList
	}
	startFailed := func(f *api.Failure) error {
		return s.record(ctx, r, api.HistoryEvent{
			Type:          api.EventStartChildWorkflowExecutionFailed,
			CorrelationID: cmd.CorrelationID,
			Name:          cmd.Name,
			Execution:     &execution,
			Failure:       f,
		})
	}
	policy, err := api.ParseWorkflowIDReusePolicy(string(opts.ReusePolicy))
	if err != nil {
		return startFailed(badRequest("%v", err))
	}
	if f := s.checkReuse(r.key.Namespace, execution.WorkflowID, policy); f != nil {
		return startFailed(f)
	}

	parent := r.execution()
	child, err := s.startRun(ctx, startParams{
		namespace:           r.key.Namespace,
		workflowID:          execution.WorkflowID,
		workflowType:        cmd.Name,
		input:               cmd.Input,
		options:             opts,
		identity:            parent.String(),
		parent:              &parent,
		parentCorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		return err
	}
	childExecution := child.execution()
	r.children[cmd.CorrelationID] = childExecution
	return s.record(ctx, r, api.HistoryEvent{
		Type:          api.EventChildWorkflowExecutionStarted,
		CorrelationID: cmd.CorrelationID,
		Name:          cmd.Name,
		Execution:     &childExecution,
	})
}
