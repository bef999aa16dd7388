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
	"testing"

	"github.com/ngnhng/durableflow/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customError struct{ msg string }

func (e *customError) Error() string { return e.msg }

func TestConvertErrorToFailure(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		kind         api.FailureKind
		failureType  string
		nonRetryable bool
	}{
		{
			name:         "application error",
			err:          NewApplicationError("bad input", "ValidationError", true, nil),
			kind:         api.FailureKindApplication,
			failureType:  "ValidationError",
			nonRetryable: true,
		},
		{
			name:        "wrapped application error",
			err:         fmt.Errorf("step 2: %w", NewApplicationError("bad input", "ValidationError", false, nil)),
			kind:        api.FailureKindApplication,
			failureType: "ValidationError",
		},
		{
			name:        "plain error uses its type name",
			err:         &customError{msg: "custom"},
			kind:        api.FailureKindApplication,
			failureType: "customError",
		},
		{
			name:         "canceled",
			err:          NewCanceledError("stop"),
			kind:         api.FailureKindCanceled,
			nonRetryable: true,
		},
		{
			name: "timeout",
			err:  NewTimeoutError(api.TimeoutTypeStartToClose, nil),
			kind: api.FailureKindTimeout,
		},
		{
			name: "panic stays retryable",
			err:  newPanicError("boom", "stack"),
			kind: api.FailureKindPanic,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ConvertErrorToFailure(tt.err)
			require.NotNil(t, f)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.failureType, f.Type)
			assert.Equal(t, tt.nonRetryable, f.NonRetryable)
		})
	}
	assert.Nil(t, ConvertErrorToFailure(nil))
}

func TestConvertFailureToError_KeepsErrorKind(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "application",
			err:  NewApplicationError("bad", "ValidationError", true, nil),
			check: func(t *testing.T, err error) {
				var appErr *ApplicationError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, "ValidationError", appErr.Type())
				assert.Equal(t, "bad", appErr.Message())
				assert.True(t, appErr.NonRetryable())
			},
		},
		{
			name: "activity wrapping application",
			err:  NewActivityError("Validate", 3, NewApplicationError("bad", "ValidationError", false, nil)),
			check: func(t *testing.T, err error) {
				var actErr *ActivityError
				require.ErrorAs(t, err, &actErr)
				assert.Equal(t, "Validate", actErr.ActivityType)
				var appErr *ApplicationError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, "ValidationError", appErr.Type())
			},
		},
		{
			name: "timeout",
			err:  NewTimeoutError(api.TimeoutTypeScheduleToClose, nil),
			check: func(t *testing.T, err error) {
				var timeoutErr *TimeoutError
				require.ErrorAs(t, err, &timeoutErr)
				assert.Equal(t, api.TimeoutTypeScheduleToClose, timeoutErr.TimeoutType())
			},
		},
		{
			name: "canceled",
			err:  NewCanceledError("stop"),
			check: func(t *testing.T, err error) {
				assert.True(t, IsCanceledError(err))
			},
		},
		{
			name: "terminated child",
			err: NewChildWorkflowError("child", api.WorkflowExecution{WorkflowID: "c", RunID: "r"},
				NewTerminatedError("operator")),
			check: func(t *testing.T, err error) {
				var childErr *ChildWorkflowError
				require.ErrorAs(t, err, &childErr)
				assert.Equal(t, "r", childErr.Execution.RunID)
				var terminated *TerminatedError
				require.ErrorAs(t, err, &terminated)
				assert.Equal(t, "operator", terminated.Reason())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ConvertFailureToError(ConvertErrorToFailure(tt.err)))
		})
	}
	assert.NoError(t, ConvertFailureToError(nil))
}

func TestConvertFailureToError_AlreadyStarted(t *testing.T) {
	err := ConvertFailureToError(api.AlreadyStartedFailure("order-1", "run-9"))
	var started *WorkflowExecutionAlreadyStartedError
	require.ErrorAs(t, err, &started)
	assert.Equal(t, "order-1", started.WorkflowID)
	assert.Equal(t, "run-9", started.RunID)
}

func TestServiceError_EntityNotExists(t *testing.T) {
	err := ConvertFailureToError(api.ServerFailure(api.FailureTypeEntityNotExists, "no run %s", "x"))
	assert.ErrorIs(t, err, ErrEntityNotExists)
	assert.False(t, errors.Is(err, ErrNonDeterministicBehavior))
}
