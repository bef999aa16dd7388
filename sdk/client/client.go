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

package client

import (
	"github.com/ngnhng/durableflow/sdk/internal"
)

// Client is the interface for interacting with durableflow workflows.
//
// Use Client to start workflow executions, signal and cancel them, and read
// their results and history.
//
// Example:
//
//	c, err := client.NewClient(client.Options{
//		Conn:     nc,
//		Identity: "billing-api",
//		TaskList: "orders",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{ID: "order-42"}, OrderWorkflow, order)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var result OrderResult
//	if err := run.Get(ctx, &result); err != nil {
//		log.Fatal(err)
//	}
type Client = internal.Client

// Options contains configuration for creating a new Client.
type Options = internal.ClientOptions

// StartWorkflowOptions configure a new workflow run.
type StartWorkflowOptions = internal.StartWorkflowOptions

// GetWorkflowHistoryOptions select the events returned by GetWorkflowHistory.
type GetWorkflowHistoryOptions = internal.GetWorkflowHistoryOptions

// WorkflowRun is a handle to a started run.
type WorkflowRun = internal.WorkflowRun

// Transport is the boundary between the SDK and the orchestration service.
type Transport = internal.Transport

// Workflow id reuse policies accepted by StartWorkflowOptions.
const (
	WorkflowIDReusePolicyAllowDuplicate           = "allow"
	WorkflowIDReusePolicyAllowDuplicateFailedOnly = "allow_failed"
	WorkflowIDReusePolicyRejectDuplicate          = "reject"
)

// NewClient creates a new Client with the provided Options.
//
// The Options must include either a Transport or an established NATS
// connection together with an Identity.
func NewClient(options Options) (Client, error) {
	return internal.NewClient(options)
}
