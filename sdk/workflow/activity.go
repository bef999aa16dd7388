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
	"github.com/ngnhng/durableflow/sdk/internal"
)

// ActivityOptions configure activity execution.
//
// Use WithActivityOptions to attach options to a workflow context:
//
//	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
//		ScheduleToCloseTimeout: 5 * time.Minute,
//		StartToCloseTimeout:    30 * time.Second,
//		RetryPolicy: &workflow.RetryPolicy{
//			InitialInterval:    time.Second,
//			BackoffCoefficient: 2.0,
//			MaximumAttempts:    3,
//		},
//	})
type ActivityOptions = internal.ActivityOptions

// RetryPolicy defines how the service retries activities and workflow runs.
//
// Retries use exponential backoff. The delay before attempt n+1 is
// InitialInterval * BackoffCoefficient^(n-1), capped at MaximumInterval.
// Activities are not retried when:
//   - MaximumAttempts is reached
//   - the ApplicationError type is in NonRetryableErrorTypes
//   - the error was created as non-retryable
//   - the schedule-to-close timeout expired
//
// The workflow only sees the final failure.
type RetryPolicy = internal.RetryPolicy

// WithActivityOptions returns a copy of ctx whose activities use opts.
func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return internal.WithActivityOptions(ctx, opts)
}

// ExecuteActivity schedules activityFn, a registered activity function or an
// activity name, and returns a Future of its result.
//
// The arguments must be serializable by the worker's serde.
func ExecuteActivity(ctx Context, activityFn any, args ...any) Future {
	return internal.ExecuteActivity(ctx, activityFn, args...)
}
