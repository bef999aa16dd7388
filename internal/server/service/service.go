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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/internal/server/history"
)

// DefaultHistoryPageSize bounds the events returned by one
// GetWorkflowHistory call.
const DefaultHistoryPageSize = 1000

// EventSink receives every event appended to a run's history, in order.
type EventSink interface {
	Publish(ctx context.Context, execution api.WorkflowExecution, event api.HistoryEvent) error
}

type Options struct {
	Store  *history.Store
	Clock  clockwork.Clock
	Logger *slog.Logger
	Sink   EventSink

	// DecisionTaskTimeout applies to runs started without one.
	DecisionTaskTimeout time.Duration
	// MaxHistoryWait caps long-polling history reads.
	MaxHistoryWait  time.Duration
	HistoryPageSize int
}

// Service is the orchestration service. It owns task lists, timers and
// run state, and appends every state change to the history store.
type Service struct {
	store  *history.Store
	clock  clockwork.Clock
	logger *slog.Logger
	sink   EventSink

	decisionTaskTimeout time.Duration
	maxHistoryWait      time.Duration
	pageSize            int

	mu             sync.Mutex
	runs           map[history.RunKey]*run
	current        map[workflowKey]string
	decisionQueues map[taskListKey]*taskQueue[decisionRef]
	activityQueues map[taskListKey]*taskQueue[activityRef]
	tokens         map[string]taskToken
}

type workflowKey struct {
	namespace  string
	workflowID string
}

type taskListKey struct {
	namespace string
	name      string
}

type decisionRef struct {
	key         history.RunKey
	scheduledID int64
}

type activityRef struct {
	key           history.RunKey
	correlationID int64
	attempt       int32
}

type taskToken struct {
	key           history.RunKey
	decision      bool
	scheduledID   int64
	correlationID int64
	attempt       int32
}

func New(opts Options) *Service {
	if opts.Store == nil {
		opts.Store = history.NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DecisionTaskTimeout <= 0 {
		opts.DecisionTaskTimeout = api.DefaultDecisionTaskTimeout
	}
	if opts.MaxHistoryWait <= 0 || opts.MaxHistoryWait > api.MaxGetHistoryWaitTimeout {
		opts.MaxHistoryWait = api.MaxGetHistoryWaitTimeout
	}
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = DefaultHistoryPageSize
	}
	return &Service{
		store:               opts.Store,
		clock:               opts.Clock,
		logger:              opts.Logger.With("component", "service"),
		sink:                opts.Sink,
		decisionTaskTimeout: opts.DecisionTaskTimeout,
		maxHistoryWait:      opts.MaxHistoryWait,
		pageSize:            opts.HistoryPageSize,
		runs:                make(map[history.RunKey]*run),
		current:             make(map[workflowKey]string),
		decisionQueues:      make(map[taskListKey]*taskQueue[decisionRef]),
		activityQueues:      make(map[taskListKey]*taskQueue[activityRef]),
		tokens:              make(map[string]taskToken),
	}
}

func namespaceOrDefault(ns string) string {
	if ns == "" {
		return api.DefaultNamespace
	}
	return ns
}

func badRequest(format string, args ...any) *api.Failure {
	return api.ServerFailure(api.FailureTypeBadRequest, format, args...)
}

func notFound(format string, args ...any) *api.Failure {
	return api.ServerFailure(api.FailureTypeEntityNotExists, format, args...)
}

func internalError(err error) *api.Failure {
	return api.ServerFailure(api.FailureTypeInternal, "%v", err)
}

// lookup resolves execution to a run. An empty run id selects the current
// run of the workflow id.
func (s *Service) lookup(namespace string, execution api.WorkflowExecution) (*run, *api.Failure) {
	namespace = namespaceOrDefault(namespace)
	if execution.WorkflowID == "" {
		return nil, badRequest("workflow id is required")
	}
	runID := execution.RunID
	if runID == "" {
		var ok bool
		runID, ok = s.current[workflowKey{namespace, execution.WorkflowID}]
		if !ok {
			return nil, notFound("workflow %q not found", execution.WorkflowID)
		}
	}
	r, ok := s.runs[history.RunKey{Namespace: namespace, WorkflowID: execution.WorkflowID, RunID: runID}]
	if !ok {
		return nil, notFound("workflow run %s not found", execution)
	}
	return r, nil
}

func (s *Service) lookupOpen(namespace string, execution api.WorkflowExecution) (*run, *api.Failure) {
	r, f := s.lookup(namespace, execution)
	if f != nil {
		return nil, f
	}
	if !r.isOpen() {
		return nil, notFound("workflow run %s is already %s", r.execution(), r.status)
	}
	return r, nil
}

func (s *Service) newToken(t taskToken) []byte {
	id := uuid.Must(uuid.NewV7()).String()
	s.tokens[id] = t
	return []byte(id)
}

// append assigns ids and timestamps to events and writes them to the run's
// history. Events for a closed run are dropped.
func (s *Service) append(ctx context.Context, r *run, events ...api.HistoryEvent) ([]api.HistoryEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if !r.isOpen() {
		s.logger.Debug("dropping events for closed run", "run", r.key.String(), "count", len(events))
		return nil, nil
	}
	now := s.clock.Now()
	last := r.nextEventID - 1
	for i := range events {
		events[i].ID = last + int64(i) + 1
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = now
		}
	}
	if err := s.store.Append(ctx, r.key, last, events...); err != nil {
		return nil, err
	}
	r.nextEventID += int64(len(events))
	for i := range events {
		if status, ok := statusByCloseEvent[events[i].Type]; ok {
			r.status = status
			closed := events[i]
			r.closeEvent = &closed
		}
		if s.sink != nil {
			if err := s.sink.Publish(ctx, r.execution(), events[i]); err != nil {
				s.logger.Warn("event sink publish failed", "run", r.key.String(), "event_id", events[i].ID, "error", err)
			}
		}
	}
	close(r.changed)
	r.changed = make(chan struct{})
	return events, nil
}

// record adds an input event to the run. While a decision is started the
// event is buffered, otherwise it is appended. Events that need the
// workflow's attention schedule a decision.
func (s *Service) record(ctx context.Context, r *run, event api.HistoryEvent) error {
	if !r.isOpen() {
		return nil
	}
	if r.decision.phase == decisionStarted {
		r.buffered = append(r.buffered, event)
		return nil
	}
	if _, err := s.append(ctx, r, event); err != nil {
		return err
	}
	if event.TriggersDecision() {
		return s.scheduleDecision(ctx, r)
	}
	return nil
}

// flushBuffered appends the events buffered during a decision and schedules
// a new decision if any of them needs one.
func (s *Service) flushBuffered(ctx context.Context, r *run) error {
	buffered := r.buffered
	r.buffered = nil
	trigger := false
	for _, e := range buffered {
		trigger = trigger || e.TriggersDecision()
	}
	if _, err := s.append(ctx, r, buffered...); err != nil {
		return err
	}
	if trigger {
		return s.scheduleDecision(ctx, r)
	}
	return nil
}

// async runs fn under the service lock from a timer callback.
func (s *Service) async(what string, fn func(ctx context.Context) error) func() {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := fn(context.Background()); err != nil {
			s.logger.Error(fmt.Sprintf("%s failed", what), "error", err)
		}
	}
}

func (s *Service) taskListKey(namespace, name string) taskListKey {
	if name == "" {
		name = api.DefaultTaskList
	}
	return taskListKey{namespace: namespaceOrDefault(namespace), name: name}
}

func (s *Service) decisionQueue(k taskListKey) *taskQueue[decisionRef] {
	q, ok := s.decisionQueues[k]
	if !ok {
		q = newTaskQueue[decisionRef]()
		s.decisionQueues[k] = q
	}
	return q
}

func (s *Service) activityQueue(k taskListKey) *taskQueue[activityRef] {
	q, ok := s.activityQueues[k]
	if !ok {
		q = newTaskQueue[activityRef]()
		s.activityQueues[k] = q
	}
	return q
}

// pollContext bounds a long poll by the requested timeout.
func pollContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = api.DefaultPollTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// poll waits for take to produce a task. take runs under the service lock
// and returns the queue signal to wait on when it found nothing.
func poll[T any](ctx context.Context, s *Service, timeout time.Duration, take func(ctx context.Context) (*T, <-chan struct{}, error)) (*T, error) {
	pollCtx, cancel := pollContext(ctx, timeout)
	defer cancel()
	for {
		s.mu.Lock()
		task, ready, err := take(pollCtx)
		s.mu.Unlock()
		if err != nil || task != nil {
			return task, err
		}
		select {
		case <-ready:
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, nil
		}
	}
}
