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
	"strings"
)

// FailureKind classifies a Failure so both sides of the wire can rebuild the
// matching error type.
type FailureKind string

const (
	FailureKindApplication   FailureKind = "application"
	FailureKindTimeout       FailureKind = "timeout"
	FailureKindCanceled      FailureKind = "canceled"
	FailureKindTerminated    FailureKind = "terminated"
	FailureKindPanic         FailureKind = "panic"
	FailureKindActivity      FailureKind = "activity"
	FailureKindChildWorkflow FailureKind = "child_workflow"
	FailureKindServer        FailureKind = "server"
)

// Failure types reported by the orchestration service.
const (
	FailureTypeWorkflowAlreadyStarted = "WorkflowExecutionAlreadyStarted"
	FailureTypeEntityNotExists        = "EntityNotExists"
	FailureTypeBadRequest             = "BadRequest"
	FailureTypeInvalidTaskToken       = "InvalidTaskToken"
	FailureTypeInternal               = "Internal"
)

// Timeout types carried by timeout failures.
const (
	TimeoutTypeStartToClose    = "StartToClose"
	TimeoutTypeScheduleToClose = "ScheduleToClose"
	TimeoutTypeExecution       = "Execution"
)

// Failure is the wire representation of an error. It is the only error shape
// that crosses the service boundary.
type Failure struct {
	Kind         FailureKind `json:"kind"`
	Type         string      `json:"type,omitempty"`
	Message      string      `json:"message,omitempty"`
	NonRetryable bool        `json:"non_retryable,omitempty"`
	Details      Payload     `json:"details,omitempty"`
	StackTrace   string      `json:"stack_trace,omitempty"`
	TimeoutType  string      `json:"timeout_type,omitempty"`

	// RunID is set on already-started failures so callers can join the
	// running execution.
	RunID string `json:"run_id,omitempty"`

	// Execution and Name describe the activity or child workflow that failed.
	Execution *WorkflowExecution `json:"execution,omitempty"`
	Name      string             `json:"name,omitempty"`

	Cause *Failure `json:"cause,omitempty"`
}

func (f *Failure) Error() string {
	if f == nil {
		return "<nil failure>"
	}
	var b strings.Builder
	if f.Type != "" {
		b.WriteString(f.Type)
		b.WriteString(": ")
	} else {
		b.WriteString(string(f.Kind))
		b.WriteString(": ")
	}
	b.WriteString(f.Message)
	if f.Cause != nil {
		b.WriteString(" (cause: ")
		b.WriteString(f.Cause.Error())
		b.WriteString(")")
	}
	return b.String()
}

// ServerFailure builds a failure reported by the service itself.
func ServerFailure(failureType, format string, args ...any) *Failure {
	return &Failure{
		Kind:         FailureKindServer,
		Type:         failureType,
		Message:      fmt.Sprintf(format, args...),
		NonRetryable: true,
	}
}

// AlreadyStartedFailure reports that workflowID already has an open run.
func AlreadyStartedFailure(workflowID, runID string) *Failure {
	f := ServerFailure(FailureTypeWorkflowAlreadyStarted, "workflow %q is already running", workflowID)
	f.RunID = runID
	f.Execution = &WorkflowExecution{WorkflowID: workflowID, RunID: runID}
	return f
}

// IsServerFailure reports whether f is a service failure of the given type.
func IsServerFailure(f *Failure, failureType string) bool {
	return f != nil && f.Kind == FailureKindServer && f.Type == failureType
}
