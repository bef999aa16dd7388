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

	"github.com/ngnhng/durableflow/api"
)

// scheduleActivity tracks a newly recorded activity and queues its first
// attempt.
func (s *Service) scheduleActivity(r *run, cmd *api.Command) {
	var opts api.ActivityOptions
	if cmd.ActivityOptions != nil {
		opts = *cmd.ActivityOptions
	}
	taskList := opts.TaskList
	if taskList == "" {
		taskList = r.taskList
	}
	now := s.clock.Now()
	a := &activityState{
		correlationID: cmd.CorrelationID,
		name:          cmd.Name,
		taskList:      taskList,
		input:         cmd.Input,
		options:       opts,
		attempt:       1,
		scheduledTime: now,
	}
	if timeout := opts.ScheduleToCloseTimeout; timeout > 0 {
		a.expires = now.Add(timeout)
		a.scheduleToClose = s.clock.AfterFunc(timeout, s.async("activity schedule-to-close timeout", func(ctx context.Context) error {
			return s.activityScheduleToCloseTimeout(ctx, r, a)
		}))
	}
	r.activities[a.correlationID] = a
	s.dispatchActivity(r, a)
}

func (s *Service) dispatchActivity(r *run, a *activityState) {
	s.activityQueue(s.taskListKey(r.key.Namespace, a.taskList)).push(activityRef{
		key:           r.key,
		correlationID: a.correlationID,
		attempt:       a.attempt,
	})
}

// cancelActivity drops the activity and any buffered outcome of it. It
// reports whether a cancellation should be recorded.
func (s *Service) cancelActivity(r *run, correlationID int64) bool {
	dropped := r.dropBuffered(correlationID,
		api.EventActivityTaskStarted,
		api.EventActivityTaskCompleted,
		api.EventActivityTaskFailed,
		api.EventActivityTaskTimedOut,
	)
	a, ok := r.activities[correlationID]
	if !ok {
		return dropped
	}
	s.finishActivity(r, a)
	return true
}

func (s *Service) finishActivity(r *run, a *activityState) {
	a.stopTimers()
	delete(s.tokens, a.token)
	delete(r.activities, a.correlationID)
}

func (s *Service) PollActivityTask(ctx context.Context, req *api.PollRequest) (*api.ActivityTask, error) {
	if req.TaskList == "" {
		return nil, badRequest("task list is required")
	}
	k := s.taskListKey(req.Namespace, req.TaskList)
	return poll(ctx, s, req.Timeout, func(ctx context.Context) (*api.ActivityTask, <-chan struct{}, error) {
		q := s.activityQueue(k)
		for {
			ref, ok := q.pop()
			if !ok {
				return nil, q.ready, nil
			}
			if task := s.startActivity(ref, req.Identity); task != nil {
				return task, nil, nil
			}
		}
	})
}

func (s *Service) startActivity(ref activityRef, identity string) *api.ActivityTask {
	r, ok := s.runs[ref.key]
	if !ok || !r.isOpen() {
		return nil
	}
	a, ok := r.activities[ref.correlationID]
	if !ok || a.attempt != ref.attempt || a.started {
		return nil
	}
	a.started = true
	a.identity = identity
	a.startedTime = s.clock.Now()
	if timeout := a.options.StartToCloseTimeout; timeout > 0 {
		attempt := a.attempt
		a.startToClose = s.clock.AfterFunc(timeout, s.async("activity start-to-close timeout", func(ctx context.Context) error {
			return s.activityStartToCloseTimeout(ctx, r, a, attempt)
		}))
	}
	token := s.newToken(taskToken{key: r.key, correlationID: a.correlationID, attempt: a.attempt})
	a.token = string(token)

	limit := a.options.StartToCloseTimeout
	if !a.expires.IsZero() {
		if left := a.expires.Sub(a.startedTime); limit == 0 || left < limit {
			limit = left
		}
	}
	return &api.ActivityTask{
		TaskToken:         token,
		Execution:         r.execution(),
		WorkflowType:      r.workflowType,
		ActivityType:      a.name,
		CorrelationID:     a.correlationID,
		Input:             a.input,
		Attempt:           a.attempt,
		ScheduledTime:     a.scheduledTime,
		StartedTime:       a.startedTime,
		StartToCloseLimit: limit,
	}
}

// activityToken resolves an activity task token to its started attempt.
func (s *Service) activityToken(token []byte) (*run, *activityState, *api.Failure) {
	t, ok := s.tokens[string(token)]
	if !ok || t.decision {
		return nil, nil, api.ServerFailure(api.FailureTypeInvalidTaskToken, "unknown activity task token")
	}
	r, ok := s.runs[t.key]
	if !ok || !r.isOpen() {
		delete(s.tokens, string(token))
		return nil, nil, notFound("workflow run %s/%s is not open", t.key.WorkflowID, t.key.RunID)
	}
	a, ok := r.activities[t.correlationID]
	if !ok || a.attempt != t.attempt || !a.started {
		delete(s.tokens, string(token))
		return nil, nil, notFound("activity %d attempt %d is no longer running", t.correlationID, t.attempt)
	}
	return r, a, nil
}

func (s *Service) RespondActivityTaskCompleted(ctx context.Context, req *api.RespondActivityTaskCompletedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, a, f := s.activityToken(req.TaskToken)
	if f != nil {
		return f
	}
	s.finishActivity(r, a)
	if err := s.recordActivityOutcome(ctx, r, a, api.HistoryEvent{
		Type:          api.EventActivityTaskCompleted,
		CorrelationID: a.correlationID,
		Name:          a.name,
		Result:        req.Result,
		Identity:      req.Identity,
	}); err != nil {
		return internalError(err)
	}
	return nil
}

func (s *Service) RespondActivityTaskFailed(ctx context.Context, req *api.RespondActivityTaskFailedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, a, f := s.activityToken(req.TaskToken)
	if f != nil {
		return f
	}
	failure := req.Failure
	if failure == nil {
		failure = &api.Failure{Kind: api.FailureKindApplication, Message: "activity failed without a failure"}
	}
	if err := s.activityAttemptFailed(ctx, r, a, failure, api.EventActivityTaskFailed); err != nil {
		return internalError(err)
	}
	return nil
}

// activityAttemptFailed retries the activity when its policy allows and
// time remains before the schedule-to-close deadline. Otherwise the failure
// is recorded.
func (s *Service) activityAttemptFailed(ctx context.Context, r *run, a *activityState, failure *api.Failure, eventType api.EventType) error {
	if a.startToClose != nil {
		a.startToClose.Stop()
		a.startToClose = nil
	}
	delete(s.tokens, a.token)
	a.lastFailure = failure

	policy := a.options.RetryPolicy
	if policy.ShouldRetry(a.attempt, failure) {
		delay := policy.NextDelay(a.attempt)
		if a.expires.IsZero() || s.clock.Now().Add(delay).Before(a.expires) {
			s.logger.Info("retrying activity",
				"run", r.key.String(),
				"activity_type", a.name,
				"correlation_id", a.correlationID,
				"attempt", a.attempt,
				"delay", delay,
				"failure", failure.Error(),
			)
			a.started = false
			a.attempt++
			a.retry = s.clock.AfterFunc(delay, s.async("activity retry", func(ctx context.Context) error {
				if cur, ok := r.activities[a.correlationID]; !ok || cur != a || !r.isOpen() {
					return nil
				}
				a.retry = nil
				a.scheduledTime = s.clock.Now()
				s.dispatchActivity(r, a)
				return nil
			}))
			return nil
		}
	}

	s.finishActivity(r, a)
	return s.recordActivityOutcome(ctx, r, a, api.HistoryEvent{
		Type:          eventType,
		CorrelationID: a.correlationID,
		Name:          a.name,
		Failure:       failure,
		Identity:      a.identity,
	})
}

// recordActivityOutcome records the started event of the final attempt
// followed by its outcome.
func (s *Service) recordActivityOutcome(ctx context.Context, r *run, a *activityState, outcome api.HistoryEvent) error {
	outcome.Attempt = a.attempt
	if a.started {
		err := s.record(ctx, r, api.HistoryEvent{
			Type:          api.EventActivityTaskStarted,
			CorrelationID: a.correlationID,
			Name:          a.name,
			Attempt:       a.attempt,
			Identity:      a.identity,
			Timestamp:     a.startedTime,
		})
		if err != nil {
			return err
		}
	}
	return s.record(ctx, r, outcome)
}

func (s *Service) activityStartToCloseTimeout(ctx context.Context, r *run, a *activityState, attempt int32) error {
	if cur, ok := r.activities[a.correlationID]; !ok || cur != a || a.attempt != attempt || !a.started || !r.isOpen() {
		return nil
	}
	a.startToClose = nil
	return s.activityAttemptFailed(ctx, r, a, &api.Failure{
		Kind:        api.FailureKindTimeout,
		Message:     "activity start-to-close timeout",
		TimeoutType: api.TimeoutTypeStartToClose,
	}, api.EventActivityTaskTimedOut)
}

func (s *Service) activityScheduleToCloseTimeout(ctx context.Context, r *run, a *activityState) error {
	if cur, ok := r.activities[a.correlationID]; !ok || cur != a || !r.isOpen() {
		return nil
	}
	a.scheduleToClose = nil
	s.finishActivity(r, a)
	return s.recordActivityOutcome(ctx, r, a, api.HistoryEvent{
		Type:          api.EventActivityTaskTimedOut,
		CorrelationID: a.correlationID,
		Name:          a.name,
		Failure: &api.Failure{
			Kind:        api.FailureKindTimeout,
			Message:     "activity schedule-to-close timeout",
			TimeoutType: api.TimeoutTypeScheduleToClose,
			Cause:       a.lastFailure,
		},
		Identity: a.identity,
	})
}
