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
	"log/slog"
	"time"

	"github.com/ngnhng/durableflow/sdk/internal"
)

// Context is the workflow execution context that provides deterministic guarantees.
//
// All workflow operations must go through this context so they are recorded
// as commands and replayed from history. A Context is bound to the coroutine
// it was handed to: blocking on it from a signal handler, a future callback or
// a plain goroutine panics.
//
// Workflow code must be deterministic. Do not:
//   - Perform I/O operations directly
//   - Generate random numbers
//   - Read the wall clock (use Now)
//   - Start goroutines (use Go)
//
// Use activities for all non-deterministic operations.
type Context = internal.Context

// Info describes the running workflow.
type Info = internal.WorkflowInfo

// Go starts fn in a new workflow coroutine. Coroutines run one at a time and
// are scheduled deterministically.
func Go(ctx Context, fn func(ctx Context)) {
	internal.Go(ctx, fn)
}

// GoNamed is Go with a name that shows up in stack dumps.
func GoNamed(ctx Context, name string, fn func(ctx Context)) {
	internal.GoNamed(ctx, name, fn)
}

// Await blocks the calling coroutine until condition returns true.
// The condition is evaluated every time the workflow makes progress.
func Await(ctx Context, condition func() bool) {
	internal.Await(ctx, condition)
}

// Now returns the deterministic workflow time.
func Now(ctx Context) time.Time {
	return internal.Now(ctx)
}

// NewTimer returns a Future that resolves after d of workflow time.
// Cancelling the future cancels the timer.
func NewTimer(ctx Context, d time.Duration) Future {
	return internal.NewTimer(ctx, d)
}

// Sleep blocks for d of workflow time.
func Sleep(ctx Context, d time.Duration) error {
	return internal.Sleep(ctx, d)
}

func IsReplaying(ctx Context) bool {
	return internal.IsReplaying(ctx)
}

func GetInfo(ctx Context) Info {
	return internal.GetInfo(ctx)
}

// GetLogger returns a logger tagged with the run's identity. Records are
// dropped while the workflow replays history, so each line is written once.
func GetLogger(ctx Context) *slog.Logger {
	return internal.GetLogger(ctx)
}

// UpsertSearchAttributes merges attributes into the run's search attributes.
func UpsertSearchAttributes(ctx Context, attributes map[string]any) error {
	return internal.UpsertSearchAttributes(ctx, attributes)
}

// GetCancelRequestedFuture returns a Future that resolves when cancellation
// of the run is requested.
func GetCancelRequestedFuture(ctx Context) Future {
	return internal.GetCancelRequestedFuture(ctx)
}

func IsCancelRequested(ctx Context) bool {
	return internal.IsCancelRequested(ctx)
}
