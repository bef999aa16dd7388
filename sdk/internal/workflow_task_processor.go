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
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ngnhng/durableflow/api"
)

// decisionResult is the outcome of one decision task.
type decisionResult struct {
	commands []api.Command
	status   ExecutionStatus
}

// workflowTaskHandler turns a decision task into the commands of its pending
// decision by replaying the task's full history.
type workflowTaskHandler struct {
	namespace string
	registry  *registry
	converter *dataConverter
	logger    *slog.Logger
}

func newWorkflowTaskHandler(namespace string, reg *registry, converter *dataConverter, logger *slog.Logger) *workflowTaskHandler {
	return &workflowTaskHandler{
		namespace: namespace,
		registry:  reg,
		converter: converter,
		logger:    defaultLogger(logger),
	}
}

// processDecisionTask replays task.History in a fresh execution context. An
// error means the decision itself failed and must be reported as a decision
// task failure, never as a workflow failure.
func (h *workflowTaskHandler) processDecisionTask(task *api.DecisionTask) (result *decisionResult, err error) {
	if len(task.History) == 0 {
		return nil, fmt.Errorf("decision task for %s has no history", task.Execution)
	}
	if first := task.History[0]; first.Type != api.EventWorkflowExecutionStarted {
		return nil, newNonDeterminismError(first.ID, "history starts with %s", first.Type)
	}

	env := newExecutionContext(h.registry, h.converter, h.logger)
	env.info.WorkflowExecution = task.Execution
	env.info.Namespace = h.namespace
	defer env.close()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = newPanicError(r, string(debug.Stack()))
		}
	}()

	commands, err := env.replayHistory(task.History)
	if err != nil {
		return nil, err
	}
	return &decisionResult{commands: commands, status: env.Status()}, nil
}

// decisionFailure builds the failure reported for a failed decision task.
func decisionFailure(err error) *api.Failure {
	f := ConvertErrorToFailure(err)
	var nde *NonDeterminismError
	if errors.As(err, &nde) {
		f.Type = "NonDeterminism"
	}
	return f
}
