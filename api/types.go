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

import (
	"fmt"
	"time"

	"github.com/ngnhng/durableflow/api/serde"
)

// Payload is a value encoded by the SDK payload serde. The service never
// looks inside it, and every serde passes it through unchanged.
type Payload = serde.Raw

// WorkflowExecution identifies one run of a workflow.
type WorkflowExecution struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id,omitempty"`
}

func (e WorkflowExecution) String() string {
	if e.RunID == "" {
		return e.WorkflowID
	}
	return e.WorkflowID + "/" + e.RunID
}

// WorkflowIDReusePolicy decides whether a workflow id may be started again
// after a previous run with that id has closed.
type WorkflowIDReusePolicy string

const (
	ReusePolicyAllowDuplicate           WorkflowIDReusePolicy = "allow"
	ReusePolicyAllowDuplicateFailedOnly WorkflowIDReusePolicy = "allow_failed"
	ReusePolicyRejectDuplicate          WorkflowIDReusePolicy = "reject"
)

// ParseWorkflowIDReusePolicy maps a policy name onto a policy. An empty name
// selects ReusePolicyAllowDuplicate.
func ParseWorkflowIDReusePolicy(name string) (WorkflowIDReusePolicy, error) {
	switch WorkflowIDReusePolicy(name) {
	case "":
		return ReusePolicyAllowDuplicate, nil
	case ReusePolicyAllowDuplicate, ReusePolicyAllowDuplicateFailedOnly, ReusePolicyRejectDuplicate:
		return WorkflowIDReusePolicy(name), nil
	}
	return "", fmt.Errorf("Unknown workflow_id_reuse_policy specified: %s", name)
}

// RetryPolicy is applied by the service to activities and workflow runs.
// A zero MaximumAttempts means unlimited attempts.
type RetryPolicy struct {
	InitialInterval        time.Duration `json:"initial_interval,omitempty"`
	BackoffCoefficient     float64       `json:"backoff_coefficient,omitempty"`
	MaximumInterval        time.Duration `json:"maximum_interval,omitempty"`
	MaximumAttempts        int32         `json:"maximum_attempts,omitempty"`
	NonRetryableErrorTypes []string      `json:"non_retryable_error_types,omitempty"`
}

// ActivityOptions travel with a schedule_activity command.
type ActivityOptions struct {
	TaskList               string        `json:"task_list,omitempty"`
	ScheduleToCloseTimeout time.Duration `json:"schedule_to_close_timeout,omitempty"`
	StartToCloseTimeout    time.Duration `json:"start_to_close_timeout,omitempty"`
	RetryPolicy            *RetryPolicy  `json:"retry_policy,omitempty"`
}

// WorkflowOptions travel with start requests and start_child_workflow
// commands.
type WorkflowOptions struct {
	TaskList            string                `json:"task_list,omitempty"`
	ExecutionTimeout    time.Duration         `json:"execution_timeout,omitempty"`
	DecisionTaskTimeout time.Duration         `json:"decision_task_timeout,omitempty"`
	ReusePolicy         WorkflowIDReusePolicy `json:"reuse_policy,omitempty"`
	RetryPolicy         *RetryPolicy          `json:"retry_policy,omitempty"`
	SearchAttributes    map[string]Payload    `json:"search_attributes,omitempty"`
}

type (
	StartWorkflowRequest struct {
		Namespace    string          `json:"namespace,omitempty"`
		WorkflowID   string          `json:"workflow_id"`
		WorkflowType string          `json:"workflow_type"`
		Input        []Payload       `json:"input,omitempty"`
		Options      WorkflowOptions `json:"options"`
		Identity     string          `json:"identity,omitempty"`
	}

	StartWorkflowResponse struct {
		RunID string `json:"run_id"`
	}

	SignalWorkflowRequest struct {
		Namespace  string            `json:"namespace,omitempty"`
		Execution  WorkflowExecution `json:"execution"`
		SignalName string            `json:"signal_name"`
		Input      Payload           `json:"input,omitempty"`
		Identity   string            `json:"identity,omitempty"`
	}

	SignalWithStartWorkflowRequest struct {
		Start       StartWorkflowRequest `json:"start"`
		SignalName  string               `json:"signal_name"`
		SignalInput Payload              `json:"signal_input,omitempty"`
	}

	RequestCancelWorkflowRequest struct {
		Namespace string            `json:"namespace,omitempty"`
		Execution WorkflowExecution `json:"execution"`
		Identity  string            `json:"identity,omitempty"`
	}

	TerminateWorkflowRequest struct {
		Namespace string            `json:"namespace,omitempty"`
		Execution WorkflowExecution `json:"execution"`
		Reason    string            `json:"reason,omitempty"`
		Identity  string            `json:"identity,omitempty"`
	}
)

// HistoryEventFilter narrows the events returned by GetWorkflowHistory.
type HistoryEventFilter string

const (
	HistoryEventFilterAll   HistoryEventFilter = "all"
	HistoryEventFilterClose HistoryEventFilter = "close"
)

type (
	GetWorkflowHistoryRequest struct {
		Namespace       string             `json:"namespace,omitempty"`
		Execution       WorkflowExecution  `json:"execution"`
		NextEventID     int64              `json:"next_event_id,omitempty"`
		WaitForNewEvent bool               `json:"wait_for_new_event,omitempty"`
		Timeout         time.Duration      `json:"timeout,omitempty"`
		EventFilter     HistoryEventFilter `json:"event_filter,omitempty"`
	}

	GetWorkflowHistoryResponse struct {
		Execution   WorkflowExecution `json:"execution"`
		Events      []HistoryEvent    `json:"events"`
		NextEventID int64             `json:"next_event_id"`
		Closed      bool              `json:"closed"`
	}
)

type (
	PollRequest struct {
		Namespace string        `json:"namespace,omitempty"`
		TaskList  string        `json:"task_list"`
		Identity  string        `json:"identity"`
		Timeout   time.Duration `json:"timeout,omitempty"`
	}

	// DecisionTask carries the full history of a run up to and including the
	// DecisionTaskStarted event that was recorded for this poll.
	DecisionTask struct {
		TaskToken      []byte            `json:"task_token"`
		Execution      WorkflowExecution `json:"execution"`
		WorkflowType   string            `json:"workflow_type"`
		StartedEventID int64             `json:"started_event_id"`
		Attempt        int32             `json:"attempt"`
		History        []HistoryEvent    `json:"history"`
	}

	RespondDecisionTaskCompletedRequest struct {
		TaskToken []byte    `json:"task_token"`
		Commands  []Command `json:"commands"`
		Identity  string    `json:"identity,omitempty"`
	}

	RespondDecisionTaskFailedRequest struct {
		TaskToken []byte   `json:"task_token"`
		Failure   *Failure `json:"failure"`
		Identity  string   `json:"identity,omitempty"`
	}

	ActivityTask struct {
		TaskToken         []byte            `json:"task_token"`
		Execution         WorkflowExecution `json:"execution"`
		WorkflowType      string            `json:"workflow_type"`
		ActivityType      string            `json:"activity_type"`
		CorrelationID     int64             `json:"correlation_id"`
		Input             []Payload         `json:"input,omitempty"`
		Attempt           int32             `json:"attempt"`
		ScheduledTime     time.Time         `json:"scheduled_time"`
		StartedTime       time.Time         `json:"started_time"`
		StartToCloseLimit time.Duration     `json:"start_to_close_limit,omitempty"`
	}

	RespondActivityTaskCompletedRequest struct {
		TaskToken []byte  `json:"task_token"`
		Result    Payload `json:"result,omitempty"`
		Identity  string  `json:"identity,omitempty"`
	}

	RespondActivityTaskFailedRequest struct {
		TaskToken []byte   `json:"task_token"`
		Failure   *Failure `json:"failure"`
		Identity  string   `json:"identity,omitempty"`
	}
)

// Reply is the envelope every request/reply subject answers with. Body holds
// the encoded response struct when Error is nil.
type Reply struct {
	Error *Failure `json:"error,omitempty"`
	Body  []byte   `json:"body,omitempty"`
}
