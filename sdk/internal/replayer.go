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
	"fmt"
	"log/slog"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

// WorkflowReplayer replays recorded histories against registered workflow
// code, outside of any worker. It is used to check that a code change is
// still compatible with histories of running workflows.
type WorkflowReplayer struct {
	registry  *registry
	converter *dataConverter
	logger    *slog.Logger
}

// WorkflowReplayerOptions configure a WorkflowReplayer.
type WorkflowReplayerOptions struct {
	Serde  serde.BinarySerde
	Logger *slog.Logger
}

func NewWorkflowReplayer(opts WorkflowReplayerOptions) *WorkflowReplayer {
	return &WorkflowReplayer{
		registry:  newRegistry(),
		converter: newDataConverter(opts.Serde),
		logger:    defaultLogger(opts.Logger),
	}
}

func (r *WorkflowReplayer) RegisterWorkflow(fn any, options ...RegisterWorkflowOptions) error {
	return r.registry.registerWorkflow(fn, options...)
}

// ReplayWorkflowHistory replays history and returns the commands its pending
// decision would produce. A history that ends in a completed decision
// returns no commands. Mismatches surface as *NonDeterminismError.
func (r *WorkflowReplayer) ReplayWorkflowHistory(execution api.WorkflowExecution, history []api.HistoryEvent) ([]api.Command, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("replay %s: empty history", execution)
	}
	h := newWorkflowTaskHandler(api.DefaultNamespace, r.registry, r.converter, r.logger)
	result, err := h.processDecisionTask(&api.DecisionTask{
		Execution:    execution,
		WorkflowType: history[0].Name,
		History:      history,
	})
	if err != nil {
		return nil, err
	}
	return result.commands, nil
}

// ReplayWorkflowExecution fetches the full history of execution through t
// and replays it.
func (r *WorkflowReplayer) ReplayWorkflowExecution(ctx context.Context, t Transport, execution api.WorkflowExecution) ([]api.Command, error) {
	history, err := fetchHistory(ctx, t, execution)
	if err != nil {
		return nil, err
	}
	return r.ReplayWorkflowHistory(execution, history)
}

// fetchHistory reads every event of a run, following NextEventID pages.
func fetchHistory(ctx context.Context, t Transport, execution api.WorkflowExecution) ([]api.HistoryEvent, error) {
	var (
		events []api.HistoryEvent
		next   int64
	)
	for {
		req := &api.GetWorkflowHistoryRequest{Execution: execution, NextEventID: next}
		if err := validateGetWorkflowHistory(req); err != nil {
			return nil, err
		}
		resp, err := t.GetWorkflowHistory(ctx, req)
		if err != nil {
			return nil, toServiceError(err)
		}
		events = append(events, resp.Events...)
		if len(resp.Events) == 0 || resp.NextEventID <= next {
			return events, nil
		}
		next = resp.NextEventID
	}
}
