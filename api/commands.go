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

// CommandKind names an outbound intent produced by a decision.
type CommandKind string

const (
	CommandScheduleActivity       CommandKind = "schedule_activity"
	CommandStartTimer             CommandKind = "start_timer"
	CommandSignalExternal         CommandKind = "signal_external"
	CommandStartChildWorkflow     CommandKind = "start_child_workflow"
	CommandCompleteWorkflow       CommandKind = "complete_workflow"
	CommandFailWorkflow           CommandKind = "fail_workflow"
	CommandCancelActivity         CommandKind = "cancel_activity"
	CommandCancelTimer            CommandKind = "cancel_timer"
	CommandUpsertSearchAttributes CommandKind = "upsert_search_attributes"
	CommandRequestCancelExternal  CommandKind = "request_cancel_external_workflow"
	CommandCancelWorkflow         CommandKind = "cancel_workflow"
	CommandContinueAsNew          CommandKind = "continue_as_new"
)

// Command is one intent in a decision batch. CorrelationID links it to the
// history events that record and later resolve it; cancel commands carry the
// correlation id of the command they cancel.
type Command struct {
	Kind          CommandKind `json:"kind"`
	CorrelationID int64       `json:"correlation_id,omitempty"`

	// Name is the activity type, workflow type or signal name.
	Name      string             `json:"name,omitempty"`
	Input     []Payload          `json:"input,omitempty"`
	Result    Payload            `json:"result,omitempty"`
	Failure   *Failure           `json:"failure,omitempty"`
	Execution *WorkflowExecution `json:"execution,omitempty"`
	Duration  time.Duration      `json:"duration,omitempty"`

	ActivityOptions  *ActivityOptions   `json:"activity_options,omitempty"`
	WorkflowOptions  *WorkflowOptions   `json:"workflow_options,omitempty"`
	SearchAttributes map[string]Payload `json:"search_attributes,omitempty"`
}

// IsCancel reports whether the command cancels an earlier command.
func (c *Command) IsCancel() bool {
	return c.Kind == CommandCancelActivity || c.Kind == CommandCancelTimer
}

// IsTerminal reports whether the command closes the run.
func (c *Command) IsTerminal() bool {
	switch c.Kind {
	case CommandCompleteWorkflow, CommandFailWorkflow, CommandCancelWorkflow, CommandContinueAsNew:
		return true
	}
	return false
}

// RecordedEventType returns the history event type the service records for
// the command.
func (c *Command) RecordedEventType() (EventType, bool) {
	for t, k := range commandKindByEvent {
		if k == c.Kind {
			return t, true
		}
	}
	return "", false
}
