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
	"log/slog"
	"time"

	"github.com/ngnhng/durableflow/api"
)

// ActivityInfo describes the activity task an activity function runs for.
type ActivityInfo struct {
	TaskToken         []byte
	WorkflowExecution api.WorkflowExecution
	WorkflowType      string
	ActivityType      string
	CorrelationID     int64
	TaskList          string
	Attempt           int32
	ScheduledTime     time.Time
	StartedTime       time.Time
	Deadline          time.Time
}

type activityEnvKey struct{}

type activityEnv struct {
	info   ActivityInfo
	logger *slog.Logger
}

func withActivityEnv(ctx context.Context, env *activityEnv) context.Context {
	return context.WithValue(ctx, activityEnvKey{}, env)
}

func getActivityEnv(ctx context.Context) *activityEnv {
	env, ok := ctx.Value(activityEnvKey{}).(*activityEnv)
	if !ok {
		panic("not an activity context")
	}
	return env
}

// GetActivityInfo returns the info of the running activity. It panics when
// ctx was not handed to an activity function by a worker.
func GetActivityInfo(ctx context.Context) ActivityInfo {
	return getActivityEnv(ctx).info
}

// GetActivityLogger returns a logger tagged with the activity and the
// workflow that scheduled it.
func GetActivityLogger(ctx context.Context) *slog.Logger {
	return getActivityEnv(ctx).logger
}

// IsActivityContext reports whether ctx belongs to a running activity.
func IsActivityContext(ctx context.Context) bool {
	_, ok := ctx.Value(activityEnvKey{}).(*activityEnv)
	return ok
}
