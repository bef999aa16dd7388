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
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ngnhng/durableflow/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/ngnhng/durableflow/sdk"

type (
	WorkflowRegistry interface {
		RegisterWorkflow(w any, options ...RegisterWorkflowOptions) error
	}

	ActivityRegistry interface {
		RegisterActivity(a any, options ...RegisterActivityOptions) error
	}

	WorkerOptions struct {
		// TaskList the worker polls. Defaults to the client's task list.
		TaskList string
		Logger   *slog.Logger

		// Concurrent pollers; each poller runs one task at a time.
		MaxConcurrentDecisionTasks int
		MaxConcurrentActivities    int

		// ActivitiesPerSecond caps how fast activity tasks are taken from the
		// task list. Zero means unlimited.
		ActivitiesPerSecond float64

		PollTimeout time.Duration

		// MetricsRegisterer receives the worker collectors. A private
		// registry is used when nil.
		MetricsRegisterer prometheus.Registerer
		TracerProvider    trace.TracerProvider

		DisableWorkflowWorker bool
		DisableActivityWorker bool
	}
)

var (
	_ WorkflowRegistry = (*Worker)(nil)
	_ ActivityRegistry = (*Worker)(nil)
)

// Worker polls one task list for decision and activity tasks and runs them
// against its registered workflows and activities.
type Worker struct {
	transport Transport
	converter *dataConverter
	registry  *registry
	handler   *workflowTaskHandler
	options   WorkerOptions
	limiter   *rate.Limiter
	metrics   *workerMetrics
	tracer    trace.Tracer
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

func NewWorker(c Client, options WorkerOptions) (*Worker, error) {
	if c == nil {
		return nil, fmt.Errorf("worker requires a client")
	}
	if options.TaskList == "" {
		options.TaskList = c.getTaskList()
	}
	if options.MaxConcurrentDecisionTasks <= 0 {
		options.MaxConcurrentDecisionTasks = 2
	}
	if options.MaxConcurrentActivities <= 0 {
		options.MaxConcurrentActivities = 4
	}
	if options.PollTimeout <= 0 {
		options.PollTimeout = api.DefaultPollTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = c.getLogger()
	}
	logger = defaultLogger(logger).With("task_list", options.TaskList, "identity", c.getTransport().Identity())

	metrics, err := newWorkerMetrics(options.MetricsRegisterer, options.TaskList)
	if err != nil {
		return nil, fmt.Errorf("worker metrics: %w", err)
	}
	tp := options.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	limit := rate.Inf
	if options.ActivitiesPerSecond > 0 {
		limit = rate.Limit(options.ActivitiesPerSecond)
	}

	reg := newRegistry()
	return &Worker{
		transport: c.getTransport(),
		converter: c.getConverter(),
		registry:  reg,
		handler:   newWorkflowTaskHandler(c.getNamespace(), reg, c.getConverter(), logger),
		options:   options,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   metrics,
		tracer:    tp.Tracer(tracerName),
		logger:    logger,
	}, nil
}

func (w *Worker) RegisterWorkflow(fn any, options ...RegisterWorkflowOptions) error {
	return w.registry.registerWorkflow(fn, options...)
}

func (w *Worker) RegisterActivity(fn any, options ...RegisterActivityOptions) error {
	return w.registry.registerActivity(fn, options...)
}

// Run polls until ctx is done. It returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	runWorkflows := !w.options.DisableWorkflowWorker && w.registry.workflows.size() > 0
	runActivities := !w.options.DisableActivityWorker && w.registry.activities.size() > 0
	if !runWorkflows && !runActivities {
		return fmt.Errorf("worker has no registered workflows or activities")
	}

	g, gCtx := errgroup.WithContext(ctx)
	if runWorkflows {
		for range w.options.MaxConcurrentDecisionTasks {
			g.Go(func() error {
				return w.pollLoop(gCtx, "decision", w.pollDecisionTask)
			})
		}
	}
	if runActivities {
		for range w.options.MaxConcurrentActivities {
			g.Go(func() error {
				return w.pollLoop(gCtx, "activity", w.pollActivityTask)
			})
		}
	}
	w.logger.Info("worker started", "workflows", runWorkflows, "activities", runActivities)
	err := g.Wait()
	w.logger.Info("worker stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start runs the worker in the background until Stop is called.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("worker already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	done := make(chan error, 1)
	w.done = done
	go func() {
		done <- w.Run(ctx)
	}()
	return nil
}

// Stop cancels a worker started with Start and waits for its pollers.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return <-done
}

// pollLoop calls poll until ctx is done, backing off after poll errors.
func (w *Worker) pollLoop(ctx context.Context, taskType string, poll func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := poll(ctx)
		if err == nil {
			b.Reset()
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		w.metrics.pollErrors.WithLabelValues(taskType).Inc()
		delay := b.NextBackOff()
		w.logger.Warn("task poll failed", "task_type", taskType, "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (w *Worker) pollDecisionTask(ctx context.Context) error {
	task, err := w.transport.PollDecisionTask(ctx, &api.PollRequest{
		TaskList: w.options.TaskList,
		Identity: w.transport.Identity(),
		Timeout:  w.options.PollTimeout,
	})
	if err != nil || task == nil {
		return err
	}
	return w.processDecisionTask(ctx, task)
}

func (w *Worker) processDecisionTask(ctx context.Context, task *api.DecisionTask) error {
	ctx, span := w.tracer.Start(ctx, "DecisionTask:"+task.WorkflowType, trace.WithAttributes(
		attribute.String("workflow.id", task.Execution.WorkflowID),
		attribute.String("workflow.run_id", task.Execution.RunID),
		attribute.Int("history.length", len(task.History)),
	))
	defer span.End()

	start := time.Now()
	result, err := w.handler.processDecisionTask(task)
	w.metrics.observeDecision(task.WorkflowType, start, err)
	if err != nil {
		setSpanError(span, err)
		w.logger.Error("decision task failed",
			"workflow_id", task.Execution.WorkflowID,
			"run_id", task.Execution.RunID,
			"workflow_type", task.WorkflowType,
			"error", err)
		return w.transport.RespondDecisionTaskFailed(ctx, &api.RespondDecisionTaskFailedRequest{
			TaskToken: task.TaskToken,
			Failure:   decisionFailure(err),
			Identity:  w.transport.Identity(),
		})
	}

	span.SetAttributes(attribute.String("workflow.status", string(result.status)))
	w.logger.Debug("decision task completed",
		"workflow_id", task.Execution.WorkflowID,
		"run_id", task.Execution.RunID,
		"status", result.status,
		"commands", describeCommands(result.commands))
	return w.transport.RespondDecisionTaskCompleted(ctx, &api.RespondDecisionTaskCompletedRequest{
		TaskToken: task.TaskToken,
		Commands:  result.commands,
		Identity:  w.transport.Identity(),
	})
}

func (w *Worker) pollActivityTask(ctx context.Context) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	task, err := w.transport.PollActivityTask(ctx, &api.PollRequest{
		TaskList: w.options.TaskList,
		Identity: w.transport.Identity(),
		Timeout:  w.options.PollTimeout,
	})
	if err != nil || task == nil {
		return err
	}
	return w.processActivityTask(ctx, task)
}

func (w *Worker) processActivityTask(ctx context.Context, task *api.ActivityTask) error {
	ctx, span := w.tracer.Start(ctx, "Activity:"+task.ActivityType, trace.WithAttributes(
		attribute.String("workflow.id", task.Execution.WorkflowID),
		attribute.String("workflow.run_id", task.Execution.RunID),
		attribute.Int64("activity.correlation_id", task.CorrelationID),
		attribute.Int("activity.attempt", int(task.Attempt)),
	))
	defer span.End()

	w.metrics.activitiesActive.Inc()
	defer w.metrics.activitiesActive.Dec()

	start := time.Now()
	result, err := w.executeActivity(ctx, task)
	if err != nil {
		status := "failed"
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			status = "panicked"
		}
		w.metrics.observeActivity(task.ActivityType, status, start)
		setSpanError(span, err)
		w.logger.Warn("activity execution failed",
			"activity", task.ActivityType,
			"workflow_id", task.Execution.WorkflowID,
			"attempt", task.Attempt,
			"error", err)
		return w.transport.RespondActivityTaskFailed(ctx, &api.RespondActivityTaskFailedRequest{
			TaskToken: task.TaskToken,
			Failure:   ConvertErrorToFailure(err),
			Identity:  w.transport.Identity(),
		})
	}

	w.metrics.observeActivity(task.ActivityType, "completed", start)
	return w.transport.RespondActivityTaskCompleted(ctx, &api.RespondActivityTaskCompletedRequest{
		TaskToken: task.TaskToken,
		Result:    result,
		Identity:  w.transport.Identity(),
	})
}

// executeActivity runs the activity function for task. Panics are returned
// as *PanicError.
func (w *Worker) executeActivity(ctx context.Context, task *api.ActivityTask) (result api.Payload, err error) {
	fn, err := w.registry.getActivity(task.ActivityType)
	if err != nil {
		return nil, NewApplicationError(err.Error(), "ActivityNotRegistered", true, nil)
	}
	fnv := reflect.ValueOf(fn)
	args, err := w.converter.decodeArgs(fnv.Type(), 1, task.Input)
	if err != nil {
		return nil, NewApplicationError(err.Error(), "InvalidActivityInput", true, nil)
	}

	info := ActivityInfo{
		TaskToken:         task.TaskToken,
		WorkflowExecution: task.Execution,
		WorkflowType:      task.WorkflowType,
		ActivityType:      task.ActivityType,
		CorrelationID:     task.CorrelationID,
		TaskList:          w.options.TaskList,
		Attempt:           task.Attempt,
		ScheduledTime:     task.ScheduledTime,
		StartedTime:       task.StartedTime,
	}
	if task.StartToCloseLimit > 0 {
		var cancel context.CancelFunc
		info.Deadline = time.Now().Add(task.StartToCloseLimit)
		ctx, cancel = context.WithDeadline(ctx, info.Deadline)
		defer cancel()
	}
	ctx = withActivityEnv(ctx, &activityEnv{
		info: info,
		logger: w.logger.With(
			"activity", task.ActivityType,
			"workflow_id", task.Execution.WorkflowID,
			"run_id", task.Execution.RunID,
			"attempt", task.Attempt,
		),
	})

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = newPanicError(r, string(debug.Stack()))
		}
	}()
	value, err := splitResults(fnv.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, args...)))
	if err != nil {
		return nil, err
	}
	return w.converter.encode(value)
}

func setSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
