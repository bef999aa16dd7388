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

package testsuite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
	"github.com/ngnhng/durableflow/internal/server/history"
	"github.com/ngnhng/durableflow/internal/server/service"
	"github.com/ngnhng/durableflow/sdk/client"
	"github.com/ngnhng/durableflow/sdk/worker"
)

const (
	DefaultTaskList = "testsuite"
	DefaultIdentity = "testsuite"

	defaultPollTimeout = time.Second
)

type Options struct {
	Namespace string
	TaskList  string
	Identity  string
	Logger    *slog.Logger

	// Serde encodes workflow and activity payloads. Defaults to msgpack.
	Serde serde.BinarySerde

	// Clock drives service timers. A fake clock lets tests fire timers and
	// timeouts without waiting.
	Clock clockwork.Clock
	// Store defaults to an in-memory history store.
	Store *history.Store
	Sink  service.EventSink

	DecisionTaskTimeout time.Duration

	// Worker is passed to the worker with TaskList, PollTimeout and
	// MetricsRegisterer defaulted.
	Worker worker.Options
}

// Environment wires a service, a client and a worker together.
type Environment struct {
	svc      *service.Service
	client   client.Client
	worker   worker.Worker
	taskList string
	started  bool
}

func NewEnvironment(opts Options) (*Environment, error) {
	if opts.Namespace == "" {
		opts.Namespace = api.DefaultNamespace
	}
	if opts.TaskList == "" {
		opts.TaskList = DefaultTaskList
	}
	if opts.Identity == "" {
		opts.Identity = DefaultIdentity
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	svc := service.New(service.Options{
		Store:               opts.Store,
		Clock:               opts.Clock,
		Logger:              opts.Logger,
		Sink:                opts.Sink,
		DecisionTaskTimeout: opts.DecisionTaskTimeout,
	})
	c, err := client.NewClient(client.Options{
		Transport: &serviceTransport{svc: svc, namespace: opts.Namespace, identity: opts.Identity},
		Namespace: opts.Namespace,
		TaskList:  opts.TaskList,
		Serde:     opts.Serde,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("testsuite client: %w", err)
	}

	wopts := opts.Worker
	if wopts.TaskList == "" {
		wopts.TaskList = opts.TaskList
	}
	if wopts.PollTimeout <= 0 {
		wopts.PollTimeout = defaultPollTimeout
	}
	if wopts.MetricsRegisterer == nil {
		wopts.MetricsRegisterer = prometheus.NewRegistry()
	}
	if wopts.Logger == nil {
		wopts.Logger = opts.Logger
	}
	w, err := worker.New(c, wopts)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("testsuite worker: %w", err)
	}
	return &Environment{svc: svc, client: c, worker: w, taskList: wopts.TaskList}, nil
}

func (e *Environment) RegisterWorkflow(fn any, options ...worker.RegisterWorkflowOptions) error {
	return e.worker.RegisterWorkflow(fn, options...)
}

func (e *Environment) RegisterActivity(fn any, options ...worker.RegisterActivityOptions) error {
	return e.worker.RegisterActivity(fn, options...)
}

// Start runs the worker in the background. Register workflows and
// activities first.
func (e *Environment) Start() error {
	if e.started {
		return nil
	}
	if err := e.worker.Start(); err != nil {
		return err
	}
	e.started = true
	return nil
}

// Stop stops the worker and closes the client.
func (e *Environment) Stop() error {
	var err error
	if e.started {
		err = e.worker.Stop()
		e.started = false
	}
	e.client.Close()
	return err
}

func (e *Environment) Client() client.Client {
	return e.client
}

func (e *Environment) Worker() worker.Worker {
	return e.worker
}

func (e *Environment) Service() *service.Service {
	return e.svc
}

// ExecuteWorkflow starts workflow on the environment's task list. The run
// gets a random id unless options names one.
func (e *Environment) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error) {
	if options.TaskList == "" {
		options.TaskList = e.taskList
	}
	return e.client.ExecuteWorkflow(ctx, options, workflow, args...)
}

// History reads the complete history of a run, following pages.
func (e *Environment) History(ctx context.Context, workflowID, runID string) ([]api.HistoryEvent, error) {
	var (
		events []api.HistoryEvent
		next   int64
	)
	for {
		resp, err := e.client.GetWorkflowHistory(ctx, client.GetWorkflowHistoryOptions{
			WorkflowID:  workflowID,
			RunID:       runID,
			NextEventID: next,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Events) == 0 {
			return events, nil
		}
		events = append(events, resp.Events...)
		next = resp.NextEventID
	}
}

// Replay replays the recorded history of a run against the registered
// workflow fn and reports any nondeterminism.
func (e *Environment) Replay(ctx context.Context, fn any, workflowID, runID string) error {
	events, err := e.History(ctx, workflowID, runID)
	if err != nil {
		return err
	}
	replayer := worker.NewWorkflowReplayer(worker.WorkflowReplayerOptions{})
	if err := replayer.RegisterWorkflow(fn); err != nil {
		return err
	}
	_, err = replayer.ReplayWorkflowHistory(api.WorkflowExecution{WorkflowID: workflowID, RunID: runID}, events)
	return err
}
