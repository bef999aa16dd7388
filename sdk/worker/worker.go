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

package worker

import (
	"context"

	"github.com/ngnhng/durableflow/sdk/client"
	"github.com/ngnhng/durableflow/sdk/internal"
)

// Worker is the interface for the worker runtime that executes workflows and activities.
//
// A worker polls one task list for decision and activity tasks, runs
// workflow and activity code, and reports results back to the service.
// Workflows and activities must be registered before the worker starts.
//
// Example:
//
//	w, err := worker.New(c, worker.Options{TaskList: "orders"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	w.RegisterWorkflow(MyWorkflow)
//	w.RegisterActivity(MyActivity)
//
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
type Worker interface {
	Registry

	// Run polls for tasks until ctx is canceled. It returns nil on
	// cancellation.
	Run(ctx context.Context) error

	// Start runs the worker in the background; Stop cancels it and waits
	// for in-flight tasks.
	Start() error
	Stop() error
}

// Registry combines workflow and activity registration interfaces.
type Registry interface {
	WorkflowRegistry
	ActivityRegistry
}

// WorkflowRegistry provides methods for registering workflow functions.
//
// The workflow function signature should be:
// func(workflow.Context, ...args) (result, error) or func(workflow.Context, ...args) error
type WorkflowRegistry = internal.WorkflowRegistry

// ActivityRegistry provides methods for registering activity functions.
//
// The activity function signature should be:
// func(context.Context, ...args) (result, error) or func(context.Context, ...args) error
type ActivityRegistry = internal.ActivityRegistry

// Options contains configuration for creating a new Worker.
type Options = internal.WorkerOptions

type (
	RegisterWorkflowOptions = internal.RegisterWorkflowOptions
	RegisterActivityOptions = internal.RegisterActivityOptions
)

var _ Worker = (*internal.Worker)(nil)

// New creates a Worker that talks to the service through c's transport.
func New(c client.Client, options Options) (Worker, error) {
	return internal.NewWorker(c, options)
}

// WorkflowReplayer replays recorded histories against workflow code outside
// of a worker, to check that a code change is compatible with running
// workflows.
type WorkflowReplayer = internal.WorkflowReplayer

type WorkflowReplayerOptions = internal.WorkflowReplayerOptions

func NewWorkflowReplayer(options WorkflowReplayerOptions) *WorkflowReplayer {
	return internal.NewWorkflowReplayer(options)
}
