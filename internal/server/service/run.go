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
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/internal/server/history"
)

type runStatus int

const (
	statusOpen runStatus = iota
	statusCompleted
	statusFailed
	statusCanceled
	statusTerminated
	statusTimedOut
	statusContinuedAsNew
)

func (s runStatus) String() string {
	switch s {
	case statusOpen:
		return "open"
	case statusCompleted:
		return "completed"
	case statusFailed:
		return "failed"
	case statusCanceled:
		return "canceled"
	case statusTerminated:
		return "terminated"
	case statusTimedOut:
		return "timed_out"
	case statusContinuedAsNew:
		return "continued_as_new"
	}
	return "unknown"
}

// unsuccessful reports whether a run closed with this status may be
// restarted under ReusePolicyAllowDuplicateFailedOnly.
func (s runStatus) unsuccessful() bool {
	switch s {
	case statusFailed, statusCanceled, statusTerminated, statusTimedOut:
		return true
	}
	return false
}

var statusByCloseEvent = map[api.EventType]runStatus{
	api.EventWorkflowExecutionCompleted:      statusCompleted,
	api.EventWorkflowExecutionFailed:         statusFailed,
	api.EventWorkflowExecutionCanceled:       statusCanceled,
	api.EventWorkflowExecutionTerminated:     statusTerminated,
	api.EventWorkflowExecutionTimedOut:       statusTimedOut,
	api.EventWorkflowExecutionContinuedAsNew: statusContinuedAsNew,
}

type decisionPhase int

const (
	decisionIdle decisionPhase = iota
	decisionScheduled
	decisionStarted
)

// decisionState tracks the single decision task a run may have in flight.
type decisionState struct {
	phase       decisionPhase
	scheduledID int64
	startedID   int64
	attempt     int32
	token       string
	timeout     clockwork.Timer
}

type activityState struct {
	correlationID int64
	name          string
	taskList      string
	input         []api.Payload
	options       api.ActivityOptions

	attempt       int32
	started       bool
	identity      string
	token         string
	scheduledTime time.Time
	startedTime   time.Time
	// expires is when the schedule-to-close timeout fires; zero if unset.
	expires     time.Time
	lastFailure *api.Failure

	scheduleToClose clockwork.Timer
	startToClose    clockwork.Timer
	retry           clockwork.Timer
}

func (a *activityState) stopTimers() {
	for _, t := range []clockwork.Timer{a.scheduleToClose, a.startToClose, a.retry} {
		if t != nil {
			t.Stop()
		}
	}
}

// run is the mutable state of one workflow run. History is the source of
// truth for what happened; run holds what the service needs to act next.
type run struct {
	key          history.RunKey
	workflowType string
	taskList     string
	options      api.WorkflowOptions
	input        []api.Payload
	attempt      int32

	parent              *api.WorkflowExecution
	parentCorrelationID int64

	status      runStatus
	nextEventID int64
	closeEvent  *api.HistoryEvent

	cancelRequested  bool
	searchAttributes map[string]api.Payload

	decision decisionState
	// buffered holds events that arrived while a decision was started. They
	// are appended once that decision completes, fails or times out.
	buffered []api.HistoryEvent

	activities map[int64]*activityState
	timers     map[int64]clockwork.Timer
	children   map[int64]api.WorkflowExecution

	executionTimeout clockwork.Timer
	delayedDecision  clockwork.Timer

	// changed is closed and replaced whenever an event is appended.
	changed chan struct{}
}

func newRun(key history.RunKey) *run {
	return &run{
		key:              key,
		nextEventID:      1,
		attempt:          1,
		searchAttributes: make(map[string]api.Payload),
		activities:       make(map[int64]*activityState),
		timers:           make(map[int64]clockwork.Timer),
		children:         make(map[int64]api.WorkflowExecution),
		changed:          make(chan struct{}),
		decision:         decisionState{attempt: 1},
	}
}

func (r *run) execution() api.WorkflowExecution {
	return api.WorkflowExecution{WorkflowID: r.key.WorkflowID, RunID: r.key.RunID}
}

func (r *run) isOpen() bool {
	return r.status == statusOpen
}

// stopTimers stops every timer the run owns. Called when the run closes.
func (r *run) stopTimers() {
	for _, a := range r.activities {
		a.stopTimers()
	}
	for _, t := range r.timers {
		t.Stop()
	}
	for _, t := range []clockwork.Timer{r.decision.timeout, r.executionTimeout, r.delayedDecision} {
		if t != nil {
			t.Stop()
		}
	}
}
