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

package activity

import (
	"context"
	"log/slog"

	"github.com/ngnhng/durableflow/sdk/internal"
)

// Info describes the running activity attempt.
type Info = internal.ActivityInfo

// GetInfo returns the Info of the activity running in ctx. It panics when ctx
// is not an activity context.
func GetInfo(ctx context.Context) Info {
	return internal.GetActivityInfo(ctx)
}

// GetLogger returns a logger tagged with the activity and its workflow.
func GetLogger(ctx context.Context) *slog.Logger {
	return internal.GetActivityLogger(ctx)
}

func IsActivityContext(ctx context.Context) bool {
	return internal.IsActivityContext(ctx)
}

// NewApplicationError creates an error the service retries according to the
// activity's retry policy. errType is matched against the policy's
// NonRetryableErrorTypes.
func NewApplicationError(message, errType string, cause error) error {
	return internal.NewApplicationError(message, errType, false, cause)
}

// NewNonRetryableApplicationError creates an error that ends the activity on
// the current attempt.
func NewNonRetryableApplicationError(message, errType string, cause error) error {
	return internal.NewApplicationError(message, errType, true, cause)
}
