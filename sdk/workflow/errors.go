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

package workflow

import (
	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/sdk/internal"
)

var (
	// ErrAlreadyResolved is returned when a resolved future is set again.
	ErrAlreadyResolved = internal.ErrAlreadyResolved

	// ErrDuplicateSignalHandler is returned when a signal name already has a handler
	ErrDuplicateSignalHandler = internal.ErrDuplicateSignalHandler

	// ErrNonDeterministicBehavior is returned when non-deterministic behavior is detected during replay
	ErrNonDeterministicBehavior = internal.ErrNonDeterministicBehavior
)

type (
	// ApplicationError is raised by workflow or activity code. Its type
	// survives the round trip through history.
	ApplicationError = internal.ApplicationError

	// ActivityError wraps the final failure of an activity.
	ActivityError = internal.ActivityError

	// ChildWorkflowError wraps the failure of a child workflow.
	ChildWorkflowError = internal.ChildWorkflowError

	TimeoutError    = internal.TimeoutError
	CanceledError   = internal.CanceledError
	TerminatedError = internal.TerminatedError

	// PanicError represents a panic that occurred in workflow or activity code
	PanicError = internal.PanicError

	ContinueAsNewError = internal.ContinueAsNewError
)

// Timeout types carried by TimeoutError.
const (
	TimeoutTypeStartToClose    = api.TimeoutTypeStartToClose
	TimeoutTypeScheduleToClose = api.TimeoutTypeScheduleToClose
	TimeoutTypeExecution       = api.TimeoutTypeExecution
)

// NewApplicationError creates an ApplicationError of errType.
func NewApplicationError(message, errType string, cause error) *ApplicationError {
	return internal.NewApplicationError(message, errType, false, cause)
}

// NewNonRetryableApplicationError creates an ApplicationError the service
// never retries, whatever the retry policy says.
func NewNonRetryableApplicationError(message, errType string, cause error) *ApplicationError {
	return internal.NewApplicationError(message, errType, true, cause)
}

func NewCanceledError(message string) *CanceledError {
	return internal.NewCanceledError(message)
}

// IsCanceledError reports whether err is, or wraps, a CanceledError.
func IsCanceledError(err error) bool {
	return internal.IsCanceledError(err)
}
