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

package api

import "time"

// EventType names a HistoryEvent.
type EventType string

const (
	EventWorkflowExecutionStarted         EventType = "WorkflowExecutionStarted"
	EventWorkflowExecutionCompleted       EventType = "WorkflowExecutionCompleted"
	EventWorkflowExecutionFailed          EventType = "WorkflowExecutionFailed"
	EventWorkflowExecutionCanceled        EventType = "WorkflowExecutionCanceled"
	EventWorkflowExecutionTerminated      EventType = "WorkflowExecutionTerminated"
	EventWorkflowExecutionTimedOut        EventType = "WorkflowExecutionTimedOut"
	EventWorkflowExecutionContinuedAsNew  EventType = "WorkflowExecutionContinuedAsNew"
	EventWorkflowExecutionCancelRequested EventType = "WorkflowExecutionCancelRequested"
	EventWorkflowExecutionSignaled        EventType = "WorkflowExecutionSignaled"

	EventDecisionTaskScheduled EventType = "DecisionTaskScheduled"
	EventDecisionTaskStarted   EventType = "DecisionTaskStarted"
	EventDecisionTaskCompleted EventType = "DecisionTaskCompleted"
	EventDecisionTaskFailed    EventType = "DecisionTaskFailed"
	EventDecisionTaskTimedOut  EventType = "DecisionTaskTimedOut"

	EventActivityTaskScheduled       EventType = "ActivityTaskScheduled"
	EventActivityTaskStarted         EventType = "ActivityTaskStarted"
	EventActivityTaskCompleted       EventType = "ActivityTaskCompleted"
	EventActivityTaskFailed          EventType = "ActivityTaskFailed"
	EventActivityTaskTimedOut        EventType = "ActivityTaskTimedOut"
	EventActivityTaskCancelRequested EventType = "ActivityTaskCancelRequested"
	EventActivityTaskCanceled        EventType = "ActivityTaskCanceled"

	EventTimerStarted  EventType = "TimerStarted"
	EventTimerFired    EventType = "TimerFired"
	EventTimerCanceled EventType = "TimerCanceled"

	EventStartChildWorkflowExecutionInitiated EventType = "StartChildWorkflowExecutionInitiated"
	EventStartChildWorkflowExecutionFailed    EventType = "StartChildWorkflowExecutionFailed"
	EventChildWorkflowExecutionStarted        EventType = "ChildWorkflowExecutionStarted"
	EventChildWorkflowExecutionCompleted      EventType = "ChildWorkflowExecutionCompleted"
	EventChildWorkflowExecutionFailed         EventType = "ChildWorkflowExecutionFailed"
	EventChildWorkflowExecutionCanceled       EventType = "ChildWorkflowExecutionCanceled"
	EventChildWorkflowExecutionTimedOut       EventType = "ChildWorkflowExecutionTimedOut"
	EventChildWorkflowExecutionTerminated     EventType = "ChildWorkflowExecutionTerminated"

	EventSignalExternalWorkflowExecutionInitiated EventType = "SignalExternalWorkflowExecutionInitiated"
	EventExternalWorkflowExecutionSignaled        EventType = "ExternalWorkflowExecutionSignaled"
	EventSignalExternalWorkflowExecutionFailed    EventType = "SignalExternalWorkflowExecutionFailed"

	EventRequestCancelExternalWorkflowExecutionInitiated EventType = "RequestCancelExternalWorkflowExecutionInitiated"
	EventExternalWorkflowExecutionCancelRequested        EventType = "ExternalWorkflowExecutionCancelRequested"
	EventRequestCancelExternalWorkflowExecutionFailed    EventType = "RequestCancelExternalWorkflowExecutionFailed"

	EventUpsertWorkflowSearchAttributes EventType = "UpsertWorkflowSearchAttributes"
)

// HistoryEvent is one immutable entry of a run's history. Attribute fields
// are populated according to Type; unused fields stay zero.
type HistoryEvent struct {
	ID        int64     `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID links command-recorded events and their resolutions back
	// to the command that produced them.
	CorrelationID int64 `json:"correlation_id,omitempty"`

	// Name is the workflow type, activity type or signal name.
	Name     string    `json:"name,omitempty"`
	TaskList string    `json:"task_list,omitempty"`
	Input    []Payload `json:"input,omitempty"`
	Result   Payload   `json:"result,omitempty"`
	Failure  *Failure  `json:"failure,omitempty"`

	// Execution is the child or external workflow addressed by the event.
	Execution *WorkflowExecution `json:"execution,omitempty"`

	ParentExecution     *WorkflowExecution `json:"parent_execution,omitempty"`
	ParentCorrelationID int64              `json:"parent_correlation_id,omitempty"`

	ActivityOptions  *ActivityOptions   `json:"activity_options,omitempty"`
	WorkflowOptions  *WorkflowOptions   `json:"workflow_options,omitempty"`
	SearchAttributes map[string]Payload `json:"search_attributes,omitempty"`

	Duration time.Duration `json:"duration,omitempty"`
	Attempt  int32         `json:"attempt,omitempty"`
	Identity string        `json:"identity,omitempty"`
	Reason   string        `json:"reason,omitempty"`

	// NewRunID is set on WorkflowExecutionContinuedAsNew; ContinuedRunID on
	// the WorkflowExecutionStarted event of the run it continues into.
	NewRunID       string `json:"new_run_id,omitempty"`
	ContinuedRunID string `json:"continued_run_id,omitempty"`
}

// IsCommandEvent reports whether the event records a command issued by a
// decision. These are the events replay matches against commands.
func (e *HistoryEvent) IsCommandEvent() bool {
	_, ok := commandKindByEvent[e.Type]
	return ok
}

// CommandKind returns the command kind recorded by the event, if any.
func (e *HistoryEvent) CommandKind() (CommandKind, bool) {
	k, ok := commandKindByEvent[e.Type]
	return k, ok
}

// IsCloseEvent reports whether the event closes the run.
func (e *HistoryEvent) IsCloseEvent() bool {
	switch e.Type {
	case EventWorkflowExecutionCompleted,
		EventWorkflowExecutionFailed,
		EventWorkflowExecutionCanceled,
		EventWorkflowExecutionTerminated,
		EventWorkflowExecutionTimedOut,
		EventWorkflowExecutionContinuedAsNew:
		return true
	}
	return false
}

// TriggersDecision reports whether appending the event should schedule a
// decision task for the run.
func (e *HistoryEvent) TriggersDecision() bool {
	switch e.Type {
	case EventWorkflowExecutionStarted,
		EventWorkflowExecutionSignaled,
		EventWorkflowExecutionCancelRequested,
		EventActivityTaskCompleted,
		EventActivityTaskFailed,
		EventActivityTaskTimedOut,
		EventActivityTaskCanceled,
		EventTimerFired,
		EventStartChildWorkflowExecutionFailed,
		EventChildWorkflowExecutionStarted,
		EventChildWorkflowExecutionCompleted,
		EventChildWorkflowExecutionFailed,
		EventChildWorkflowExecutionCanceled,
		EventChildWorkflowExecutionTimedOut,
		EventChildWorkflowExecutionTerminated,
		EventExternalWorkflowExecutionSignaled,
		EventSignalExternalWorkflowExecutionFailed,
		EventExternalWorkflowExecutionCancelRequested,
		EventRequestCancelExternalWorkflowExecutionFailed:
		return true
	}
	return false
}

var commandKindByEvent = map[EventType]CommandKind{
	EventActivityTaskScheduled:                           CommandScheduleActivity,
	EventTimerStarted:                                    CommandStartTimer,
	EventSignalExternalWorkflowExecutionInitiated:        CommandSignalExternal,
	EventStartChildWorkflowExecutionInitiated:            CommandStartChildWorkflow,
	EventWorkflowExecutionCompleted:                      CommandCompleteWorkflow,
	EventWorkflowExecutionFailed:                         CommandFailWorkflow,
	EventActivityTaskCancelRequested:                     CommandCancelActivity,
	EventTimerCanceled:                                   CommandCancelTimer,
	EventUpsertWorkflowSearchAttributes:                  CommandUpsertSearchAttributes,
	EventRequestCancelExternalWorkflowExecutionInitiated: CommandRequestCancelExternal,
	EventWorkflowExecutionCanceled:                       CommandCancelWorkflow,
	EventWorkflowExecutionContinuedAsNew:                 CommandContinueAsNew,
}
