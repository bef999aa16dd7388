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

// Future represents the result of an asynchronous workflow operation.
//
// Futures are returned by ExecuteActivity, NewTimer, ExecuteChildWorkflow and
// SignalExternalWorkflow. They allow parallel execution patterns:
//
//	// Start multiple activities in parallel
//	future1 := workflow.ExecuteActivity(ctx, Activity1, arg1)
//	future2 := workflow.ExecuteActivity(ctx, Activity2, arg2)
//
//	// Wait for results
//	var result1 string
//	if err := future1.Get(ctx, &result1); err != nil {
//		return err
//	}
//
//	var result2 int
//	if err := future2.Get(ctx, &result2); err != nil {
//		return err
//	}
//
// Get suspends the calling coroutine until the operation completes. During
// replay, results already in history resolve the future without waiting.
//
// OnSuccess and OnFailure callbacks run synchronously while history is
// applied. They must not block.
type Future = internal.Future

// Settable resolves a Future created by NewFuture.
type Settable = internal.Settable

// Value is the result carried by a succeeded Future.
type Value = internal.Value

// NewFuture creates a Future that workflow code resolves through the returned
// Settable.
func NewFuture(ctx Context) (Future, Settable) {
	return internal.NewFuture(ctx)
}
