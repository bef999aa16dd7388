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


package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

// HistoryReader is the slice of the service the read API needs.
type HistoryReader interface {
	GetWorkflowHistory(ctx context.Context, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error)
}

// WorkflowState is a summary of one run built from its history.
type WorkflowState struct {
	WorkflowID   string       `json:"workflow_id"`
	RunID        string       `json:"run_id"`
	WorkflowType string       `json:"workflow_type,omitempty"`
	TaskList     string       `json:"task_list,omitempty"`
	Status       string       `json:"status"`
	Steps        []StepDetail `json:"steps"`
	Signals      []string     `json:"signals,omitempty"`
	Result       any          `json:"result,omitempty"`
	Error        string       `json:"error,omitempty"`
	NewRunID     string       `json:"new_run_id,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	EventCount   int          `json:"event_count"`
}

// StepDetail is the status of one scheduled activity.
type StepDetail struct {
	CorrelationID int64      `json:"correlation_id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Attempts      int32      `json:"attempts"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

const (
	StatusRunning        = "running"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusCanceled       = "canceled"
	StatusTerminated     = "terminated"
	StatusTimedOut       = "timed_out"
	StatusContinuedAsNew = "continued_as_new"

	StepScheduled       = "scheduled"
	StepRunning         = "running"
	StepCancelRequested = "cancel_requested"
)

// readHistory pages through a run until an empty page.
func readHistory(ctx context.Context, r HistoryReader, namespace string, exec api.WorkflowExecution) (api.WorkflowExecution, []api.HistoryEvent, error) {
	var (
		events []api.HistoryEvent
		next   int64 = 1
	)
	for {
		resp, err := r.GetWorkflowHistory(ctx, &api.GetWorkflowHistoryRequest{
			Namespace:   namespace,
			Execution:   exec,
			NextEventID: next,
		})
		if err != nil {
			return exec, nil, err
		}
		exec = resp.Execution
		if len(resp.Events) == 0 {
			return exec, events, nil
		}
		events = append(events, resp.Events...)
		next = resp.NextEventID
	}
}

// Summarize folds a run's history into a WorkflowState. Payloads are
// decoded with s when it is non-nil.
func Summarize(events []api.HistoryEvent, s serde.BinarySerde) *WorkflowState {
	state := &WorkflowState{Status: StatusRunning, Steps: []StepDetail{}, EventCount: len(events)}
	steps := make(map[int64]int)

	step := func(ev *api.HistoryEvent) *StepDetail {
		i, ok := steps[ev.CorrelationID]
		if !ok {
			return nil
		}
		return &state.Steps[i]
	}
	end := func(d *StepDetail, ev *api.HistoryEvent, status string) {
		ts := ev.Timestamp
		d.Status = status
		d.EndedAt = &ts
		if ev.Attempt > d.Attempts {
			d.Attempts = ev.Attempt
		}
		if ev.Failure != nil {
			d.Error = ev.Failure.Error()
		}
	}

	for i := range events {
		ev := &events[i]
		switch ev.Type {
		case api.EventWorkflowExecutionStarted:
			state.WorkflowType = ev.Name
			state.TaskList = ev.TaskList
			state.StartedAt = ev.Timestamp
		case api.EventWorkflowExecutionSignaled:
			state.Signals = append(state.Signals, ev.Name)
		case api.EventActivityTaskScheduled:
			steps[ev.CorrelationID] = len(state.Steps)
			state.Steps = append(state.Steps, StepDetail{
				CorrelationID: ev.CorrelationID,
				Name:          ev.Name,
				Status:        StepScheduled,
				ScheduledAt:   ev.Timestamp,
			})
		case api.EventActivityTaskStarted:
			if d := step(ev); d != nil {
				ts := ev.Timestamp
				d.Status = StepRunning
				d.StartedAt = &ts
				d.Attempts = ev.Attempt
			}
		case api.EventActivityTaskCancelRequested:
			if d := step(ev); d != nil {
				d.Status = StepCancelRequested
			}
		case api.EventActivityTaskCompleted:
			if d := step(ev); d != nil {
				end(d, ev, StatusCompleted)
			}
		case api.EventActivityTaskFailed:
			if d := step(ev); d != nil {
				end(d, ev, StatusFailed)
			}
		case api.EventActivityTaskTimedOut:
			if d := step(ev); d != nil {
				end(d, ev, StatusTimedOut)
			}
		case api.EventActivityTaskCanceled:
			if d := step(ev); d != nil {
				end(d, ev, StatusCanceled)
			}
		}

		if !ev.IsCloseEvent() {
			continue
		}
		ts := ev.Timestamp
		state.CompletedAt = &ts
		if ev.Failure != nil {
			state.Error = ev.Failure.Error()
		}
		switch ev.Type {
		case api.EventWorkflowExecutionCompleted:
			state.Status = StatusCompleted
			state.Result = decodePayload(ev.Result, s)
		case api.EventWorkflowExecutionFailed:
			state.Status = StatusFailed
		case api.EventWorkflowExecutionCanceled:
			state.Status = StatusCanceled
		case api.EventWorkflowExecutionTerminated:
			state.Status = StatusTerminated
			if state.Error == "" {
				state.Error = ev.Reason
			}
		case api.EventWorkflowExecutionTimedOut:
			state.Status = StatusTimedOut
		case api.EventWorkflowExecutionContinuedAsNew:
			state.Status = StatusContinuedAsNew
			state.NewRunID = ev.NewRunID
		}
	}
	return state
}

func decodePayload(p api.Payload, s serde.BinarySerde) any {
	if len(p) == 0 {
		return nil
	}
	if s != nil {
		var v any
		if err := s.DeserializeBinary(p, &v); err == nil {
			return v
		}
	}
	if json.Valid(p) {
		return json.RawMessage(p)
	}
	return []byte(p)
}

// WorkflowHandler serves read-only views of workflow runs.
type WorkflowHandler struct {
	reader    HistoryReader
	namespace string
	serde     serde.BinarySerde
	logger    *slog.Logger
}

func (h *WorkflowHandler) load(r *http.Request) (api.WorkflowExecution, []api.HistoryEvent, error) {
	exec := api.WorkflowExecution{
		WorkflowID: r.PathValue("id"),
		RunID:      r.URL.Query().Get("run_id"),
	}
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = h.namespace
	}
	return readHistory(r.Context(), h.reader, namespace, exec)
}

// Describe returns the summarized state of a run. Without run_id the
// current run is used.
func (h *WorkflowHandler) Describe(w http.ResponseWriter, r *http.Request) {
	exec, events, err := h.load(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	state := Summarize(events, h.serde)
	state.WorkflowID = exec.WorkflowID
	state.RunID = exec.RunID
	writeJSON(w, h.logger, http.StatusOK, state)
}

// History returns the raw events of a run.
func (h *WorkflowHandler) History(w http.ResponseWriter, r *http.Request) {
	exec, events, err := h.load(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, struct {
		Execution api.WorkflowExecution `json:"execution"`
		Events    []api.HistoryEvent    `json:"events"`
	}{exec, events})
}
