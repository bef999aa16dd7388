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
	"context"

	"github.com/ngnhng/durableflow/api"
)

// Transport is the boundary to the orchestration service. Implementations
// carry requests over a network or, in tests, call an in-process service.
// Failures reported by the service are returned as *api.Failure.
type Transport interface {
	StartWorkflow(ctx context.Context, req *api.StartWorkflowRequest) (*api.StartWorkflowResponse, error)
	SignalWorkflow(ctx context.Context, req *api.SignalWorkflowRequest) error
	SignalWithStartWorkflow(ctx context.Context, req *api.SignalWithStartWorkflowRequest) (*api.StartWorkflowResponse, error)
	RequestCancelWorkflow(ctx context.Context, req *api.RequestCancelWorkflowRequest) error
	TerminateWorkflow(ctx context.Context, req *api.TerminateWorkflowRequest) error
	GetWorkflowHistory(ctx context.Context, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error)

	// PollDecisionTask returns a nil task when the poll timed out empty.
	PollDecisionTask(ctx context.Context, req *api.PollRequest) (*api.DecisionTask, error)
	RespondDecisionTaskCompleted(ctx context.Context, req *api.RespondDecisionTaskCompletedRequest) error
	RespondDecisionTaskFailed(ctx context.Context, req *api.RespondDecisionTaskFailedRequest) error

	// PollActivityTask returns a nil task when the poll timed out empty.
	PollActivityTask(ctx context.Context, req *api.PollRequest) (*api.ActivityTask, error)
	RespondActivityTaskCompleted(ctx context.Context, req *api.RespondActivityTaskCompletedRequest) error
	RespondActivityTaskFailed(ctx context.Context, req *api.RespondActivityTaskFailedRequest) error

	// Identity names the caller in requests and history.
	Identity() string
}

// validateGetWorkflowHistory rejects long-poll requests without a timeout or
// with a timeout above the service ceiling.
func validateGetWorkflowHistory(req *api.GetWorkflowHistoryRequest) error {
	if req.Execution.WorkflowID == "" {
		return newClientError("You must specify a workflow_id.")
	}
	if !req.WaitForNewEvent {
		return nil
	}
	if req.Timeout <= 0 {
		return newClientError("You must specify a timeout when wait_for_new_event = true.")
	}
	if req.Timeout > api.MaxGetHistoryWaitTimeout {
		return newClientError("You may not specify a timeout of more than %d seconds, got: %d.",
			int64(api.MaxGetHistoryWaitTimeout.Seconds()), int64(req.Timeout.Seconds()))
	}
	return nil
}

// toServiceError maps a transport error onto the SDK error taxonomy.
func toServiceError(err error) error {
	if err == nil {
		return nil
	}
	if f, ok := err.(*api.Failure); ok {
		return ConvertFailureToError(f)
	}
	return err
}
