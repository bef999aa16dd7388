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

package internal

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ngnhng/durableflow/api"
)

var (
	// ErrAlreadyResolved is returned when a future that already succeeded or
	// failed is set again.
	ErrAlreadyResolved = errors.New("future is already resolved")

	// ErrDuplicateSignalHandler is returned when a second handler is
	// registered for the same signal name.
	ErrDuplicateSignalHandler = errors.New("signal handler already registered")

	// ErrWorkflowNotRegistered is returned when a decision task references a
	// workflow type the worker does not know.
	ErrWorkflowNotRegistered = errors.New("workflow not registered")

	// ErrActivityNotRegistered is returned when an activity task references an
	// activity type the worker does not know.
	ErrActivityNotRegistered = errors.New("activity not registered")

	// ErrInvalidFunction is returned when a registered workflow or activity
	// does not have a supported signature.
	ErrInvalidFunction = errors.New("invalid workflow or activity function")

	// ErrNonDeterministicBehavior is matched by every NonDeterminismError.
	ErrNonDeterministicBehavior = errors.New("non-deterministic behavior detected")

	// ErrEntityNotExists is matched by service errors reporting an unknown
	// workflow execution.
	ErrEntityNotExists = errors.New("entity does not exist")
)

// ApplicationError is an error raised by workflow or activity code. Its Type
// survives the round trip through history, so callers can branch on it.
type ApplicationError struct {
	errType      string
	message      string
	nonRetryable bool
	details      api.Payload
	cause        error
}

// NewApplicationError creates an ApplicationError of the given type.
func NewApplicationError(message, errType string, nonRetryable bool, cause error) *ApplicationError {
	return &ApplicationError{
		errType:      errType,
		message:      message,
		nonRetryable: nonRetryable,
		cause:        cause,
	}
}

func (e *ApplicationError) Error() string {
	msg := e.message
	if e.errType != "" {
		msg = e.errType + ": " + msg
	}
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *ApplicationError) Type() string       { return e.errType }
func (e *ApplicationError) Message() string    { return e.message }
func (e *ApplicationError) NonRetryable() bool { return e.nonRetryable }
func (e *ApplicationError) Unwrap() error      { return e.cause }

// HasDetails reports whether the error carries an encoded details payload.
func (e *ApplicationError) HasDetails() bool { return len(e.details) > 0 }

// ActivityError wraps the terminal failure of an activity after the service
// exhausted its retries.
type ActivityError struct {
	ActivityType  string
	CorrelationID int64
	cause         error
}

func NewActivityError(activityType string, correlationID int64, cause error) *ActivityError {
	return &ActivityError{ActivityType: activityType, CorrelationID: correlationID, cause: cause}
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s (correlation id %d) failed: %v", e.ActivityType, e.CorrelationID, e.cause)
}

func (e *ActivityError) Unwrap() error { return e.cause }

// ChildWorkflowError wraps the terminal failure of a child workflow.
type ChildWorkflowError struct {
	WorkflowType string
	Execution    api.WorkflowExecution
	cause        error
}

func NewChildWorkflowError(workflowType string, execution api.WorkflowExecution, cause error) *ChildWorkflowError {
	return &ChildWorkflowError{WorkflowType: workflowType, Execution: execution, cause: cause}
}

func (e *ChildWorkflowError) Error() string {
	return fmt.Sprintf("child workflow %s (%s) failed: %v", e.WorkflowType, e.Execution, e.cause)
}

func (e *ChildWorkflowError) Unwrap() error { return e.cause }

// TimeoutError reports that the service timed an operation out.
type TimeoutError struct {
	timeoutType string
	cause       error
}

func NewTimeoutError(timeoutType string, cause error) *TimeoutError {
	return &TimeoutError{timeoutType: timeoutType, cause: cause}
}

func (e *TimeoutError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s timeout: %v", e.timeoutType, e.cause)
	}
	return e.timeoutType + " timeout"
}

func (e *TimeoutError) TimeoutType() string { return e.timeoutType }
func (e *TimeoutError) Unwrap() error       { return e.cause }

// CanceledError is the failure observed by code waiting on a cancelled
// operation.
type CanceledError struct {
	message string
}

func NewCanceledError(message string) *CanceledError {
	if message == "" {
		message = "canceled"
	}
	return &CanceledError{message: message}
}

func (e *CanceledError) Error() string { return e.message }

// IsCanceledError reports whether err is or wraps a CanceledError.
func IsCanceledError(err error) bool {
	var canceled *CanceledError
	return errors.As(err, &canceled)
}

// TerminatedError reports that a workflow was terminated by the service.
type TerminatedError struct {
	reason string
}

func NewTerminatedError(reason string) *TerminatedError {
	return &TerminatedError{reason: reason}
}

func (e *TerminatedError) Error() string {
	if e.reason == "" {
		return "terminated"
	}
	return "terminated: " + e.reason
}

func (e *TerminatedError) Reason() string { return e.reason }

// PanicError represents a panic recovered from workflow or activity code.
type PanicError struct {
	value      string
	stackTrace string
}

func newPanicError(value any, stackTrace string) *PanicError {
	return &PanicError{value: fmt.Sprintf("%v", value), stackTrace: stackTrace}
}

func (e *PanicError) Error() string       { return "panic: " + e.value }
func (e *PanicError) StackTrace() string { return e.stackTrace }

// WorkflowExecutionAlreadyStartedError is returned when a start request hits
// a workflow id that already has an open run. RunID names that run.
type WorkflowExecutionAlreadyStartedError struct {
	WorkflowID string
	RunID      string
	message    string
}

func (e *WorkflowExecutionAlreadyStartedError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("workflow execution already started: %s (run %s)", e.WorkflowID, e.RunID)
}

// ClientError is a validation error raised before a request reaches the
// transport.
type ClientError struct {
	message string
	cause   error
}

func newClientError(format string, args ...any) *ClientError {
	return &ClientError{message: fmt.Sprintf(format, args...)}
}

func (e *ClientError) Error() string { return e.message }
func (e *ClientError) Unwrap() error { return e.cause }

// NonDeterminismError reports that replaying history produced commands that
// differ from the recorded ones. It is fatal to the decision task.
type NonDeterminismError struct {
	EventID int64
	message string
}

func newNonDeterminismError(eventID int64, format string, args ...any) *NonDeterminismError {
	return &NonDeterminismError{EventID: eventID, message: fmt.Sprintf(format, args...)}
}

func (e *NonDeterminismError) Error() string {
	if e.EventID > 0 {
		return fmt.Sprintf("non-deterministic workflow at event %d: %s", e.EventID, e.message)
	}
	return "non-deterministic workflow: " + e.message
}

func (e *NonDeterminismError) Is(target error) bool {
	return target == ErrNonDeterministicBehavior
}

// ServiceError carries any other failure reported by the orchestration
// service.
type ServiceError struct {
	Failure *api.Failure
}

func (e *ServiceError) Error() string { return e.Failure.Error() }

func (e *ServiceError) Is(target error) bool {
	return target == ErrEntityNotExists && e.Failure.Type == api.FailureTypeEntityNotExists
}

// ContinueAsNewError is returned by workflow code to close the current run
// and start a new one with the same workflow id.
type ContinueAsNewError struct {
	WorkflowType string
	Input        []api.Payload
	Options      api.WorkflowOptions
}

func (e *ContinueAsNewError) Error() string {
	return "continue as new: " + e.WorkflowType
}

// ConvertErrorToFailure maps an error onto its wire representation.
func ConvertErrorToFailure(err error) *api.Failure {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *api.Failure:
		return e
	case *ApplicationError:
		return &api.Failure{
			Kind:         api.FailureKindApplication,
			Type:         e.errType,
			Message:      e.message,
			NonRetryable: e.nonRetryable,
			Details:      e.details,
			Cause:        ConvertErrorToFailure(e.cause),
		}
	case *CanceledError:
		return &api.Failure{Kind: api.FailureKindCanceled, Message: e.message, NonRetryable: true}
	case *TimeoutError:
		return &api.Failure{
			Kind:        api.FailureKindTimeout,
			Message:     e.Error(),
			TimeoutType: e.timeoutType,
			Cause:       ConvertErrorToFailure(e.cause),
		}
	case *TerminatedError:
		return &api.Failure{Kind: api.FailureKindTerminated, Message: e.reason, NonRetryable: true}
	case *PanicError:
		return &api.Failure{
			Kind:       api.FailureKindPanic,
			Message:    e.value,
			StackTrace: e.stackTrace,
		}
	case *ActivityError:
		return &api.Failure{
			Kind:    api.FailureKindActivity,
			Name:    e.ActivityType,
			Message: fmt.Sprintf("activity %s failed", e.ActivityType),
			Cause:   ConvertErrorToFailure(e.cause),
		}
	case *ChildWorkflowError:
		execution := e.Execution
		return &api.Failure{
			Kind:      api.FailureKindChildWorkflow,
			Name:      e.WorkflowType,
			Execution: &execution,
			Message:   fmt.Sprintf("child workflow %s failed", e.WorkflowType),
			Cause:     ConvertErrorToFailure(e.cause),
		}
	case *WorkflowExecutionAlreadyStartedError:
		return api.AlreadyStartedFailure(e.WorkflowID, e.RunID)
	case *ServiceError:
		return e.Failure
	}

	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return &api.Failure{
			Kind:         api.FailureKindApplication,
			Type:         appErr.errType,
			Message:      err.Error(),
			NonRetryable: appErr.nonRetryable,
			Details:      appErr.details,
		}
	}
	return &api.Failure{
		Kind:    api.FailureKindApplication,
		Type:    errorTypeName(err),
		Message: err.Error(),
	}
}

// ConvertFailureToError rebuilds the error a Failure was created from.
func ConvertFailureToError(f *api.Failure) error {
	if f == nil {
		return nil
	}
	cause := ConvertFailureToError(f.Cause)
	switch f.Kind {
	case api.FailureKindCanceled:
		return NewCanceledError(f.Message)
	case api.FailureKindTimeout:
		return NewTimeoutError(f.TimeoutType, cause)
	case api.FailureKindTerminated:
		return NewTerminatedError(f.Message)
	case api.FailureKindPanic:
		return &PanicError{value: f.Message, stackTrace: f.StackTrace}
	case api.FailureKindActivity:
		return NewActivityError(f.Name, 0, cause)
	case api.FailureKindChildWorkflow:
		var execution api.WorkflowExecution
		if f.Execution != nil {
			execution = *f.Execution
		}
		return NewChildWorkflowError(f.Name, execution, cause)
	case api.FailureKindServer:
		if f.Type == api.FailureTypeWorkflowAlreadyStarted {
			e := &WorkflowExecutionAlreadyStartedError{RunID: f.RunID, message: f.Message}
			if f.Execution != nil {
				e.WorkflowID = f.Execution.WorkflowID
			}
			return e
		}
		return &ServiceError{Failure: f}
	default:
		return &ApplicationError{
			errType:      f.Type,
			message:      f.Message,
			nonRetryable: f.NonRetryable,
			details:      f.Details,
			cause:        cause,
		}
	}
}

func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
