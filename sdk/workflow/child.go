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

// ChildWorkflowOptions configure a child workflow.
type ChildWorkflowOptions = internal.ChildWorkflowOptions

// ChildWorkflowFuture resolves with the child's result. Its
// GetChildWorkflowExecution future resolves once the child started.
type ChildWorkflowFuture = internal.ChildWorkflowFuture

// WithChildWorkflowOptions returns a copy of ctx whose child workflows use
// opts.
func WithChildWorkflowOptions(ctx Context, opts ChildWorkflowOptions) Context {
	return internal.WithChildWorkflowOptions(ctx, opts)
}

// ExecuteChildWorkflow starts workflowFn as a child of the running workflow.
// Cancelling the returned future requests cancellation of the child.
func ExecuteChildWorkflow(ctx Context, workflowFn any, args ...any) ChildWorkflowFuture {
	return internal.ExecuteChildWorkflow(ctx, workflowFn, args...)
}

// SignalExternalWorkflow sends a signal to another workflow. An empty runID
// targets the current run of workflowID. The future resolves once the signal
// is delivered.
func SignalExternalWorkflow(ctx Context, workflowID, runID, signalName string, arg any) Future {
	return internal.SignalExternalWorkflow(ctx, workflowID, runID, signalName, arg)
}

// RequestCancelExternalWorkflow asks the service to cancel another workflow.
func RequestCancelExternalWorkflow(ctx Context, workflowID, runID string) Future {
	return internal.RequestCancelExternalWorkflow(ctx, workflowID, runID)
}

// NewContinueAsNewError returns the error a workflow returns to close the
// current run and start a new one with the same workflow id and fresh
// history.
func NewContinueAsNewError(ctx Context, workflowFn any, args ...any) error {
	return internal.NewContinueAsNewError(ctx, workflowFn, args...)
}
