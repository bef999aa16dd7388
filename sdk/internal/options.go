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
	"time"

	"github.com/ngnhng/durableflow/api"
)

// RetryPolicy defines how the service retries an activity or a workflow run.
//
// InitialInterval defaults to 1s, BackoffCoefficient to 2.0 and
// MaximumInterval to 100x InitialInterval. A zero MaximumAttempts means
// unlimited attempts, bounded by the schedule-to-close timeout.
// NonRetryableErrorTypes lists ApplicationError types that stop retries.
type RetryPolicy = api.RetryPolicy

type ActivityOptions struct {
	// TaskList the activity is dispatched on. Defaults to the workflow's task
	// list.
	TaskList string

	// ScheduleToCloseTimeout is the total time allowed for the activity,
	// including retries. Zero means unlimited.
	ScheduleToCloseTimeout time.Duration

	// StartToCloseTimeout is the maximum time of a single attempt. The service
	// relies on it to detect workers that died mid-attempt.
	StartToCloseTimeout time.Duration

	// RetryPolicy is applied by the service. Nil means a single attempt.
	RetryPolicy *RetryPolicy
}

func (o ActivityOptions) toAPI() *api.ActivityOptions {
	return &api.ActivityOptions{
		TaskList:               o.TaskList,
		ScheduleToCloseTimeout: o.ScheduleToCloseTimeout,
		StartToCloseTimeout:    o.StartToCloseTimeout,
		RetryPolicy:            o.RetryPolicy,
	}
}

// ChildWorkflowOptions configure a child workflow started from a workflow.
type ChildWorkflowOptions struct {
	// WorkflowID of the child. Defaults to "<parent workflow id>_<correlation id>".
	WorkflowID string

	TaskList            string
	ExecutionTimeout    time.Duration
	DecisionTaskTimeout time.Duration
	ReusePolicy         api.WorkflowIDReusePolicy
	RetryPolicy         *RetryPolicy
	SearchAttributes    map[string]any
}

type activityOptionsKey struct{}

type childWorkflowOptionsKey struct{}

// WithActivityOptions returns a context whose activities use opts.
func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return ctx.WithValue(activityOptionsKey{}, opts)
}

func getActivityOptions(ctx Context) ActivityOptions {
	opts, _ := ctx.Value(activityOptionsKey{}).(ActivityOptions)
	return opts
}

// WithChildWorkflowOptions returns a context whose child workflows use opts.
func WithChildWorkflowOptions(ctx Context, opts ChildWorkflowOptions) Context {
	return ctx.WithValue(childWorkflowOptionsKey{}, opts)
}

func getChildWorkflowOptions(ctx Context) ChildWorkflowOptions {
	opts, _ := ctx.Value(childWorkflowOptionsKey{}).(ChildWorkflowOptions)
	return opts
}
