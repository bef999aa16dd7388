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
	"fmt"

	"github.com/ngnhng/durableflow/api"
)

// decisionBatch is the slice of history one decision task consumed: the
// input events up to its DecisionTaskStarted and, for decisions that
// completed, the command events recorded from its response.
type decisionBatch struct {
	events        []*api.HistoryEvent
	commandEvents []*api.HistoryEvent
	started       *api.HistoryEvent
	completed     bool
}

// splitHistory cuts history into decision batches. A batch ends at a
// DecisionTaskStarted that is followed by DecisionTaskCompleted, or at the
// last event. Decisions that failed or timed out do not end a batch; their
// inputs roll into the next attempt.
func splitHistory(history []api.HistoryEvent) ([]*decisionBatch, error) {
	var batches []*decisionBatch
	cur := &decisionBatch{}
	var lastCompleted *decisionBatch

	for i := 0; i < len(history); i++ {
		event := &history[i]
		if i > 0 && event.ID <= history[i-1].ID {
			return nil, fmt.Errorf("history event ids are not increasing: %d after %d", event.ID, history[i-1].ID)
		}

		switch {
		case event.Type == api.EventDecisionTaskStarted:
			cur.events = append(cur.events, event)
			if i == len(history)-1 {
				cur.started = event
				batches = append(batches, cur)
				cur = nil
				continue
			}
			if history[i+1].Type == api.EventDecisionTaskCompleted {
				cur.started = event
				cur.completed = true
				batches = append(batches, cur)
				lastCompleted = cur
				cur = &decisionBatch{}
				i++
			}

		case event.IsCommandEvent():
			if lastCompleted == nil {
				return nil, newNonDeterminismError(event.ID, "command event %s before any completed decision", event.Type)
			}
			lastCompleted.commandEvents = append(lastCompleted.commandEvents, event)

		default:
			cur.events = append(cur.events, event)
		}
	}
	return batches, nil
}

// replayHistory runs the workflow against every decision batch of history.
// Completed batches are replayed and their commands checked against the
// recorded ones. It returns the commands of the trailing, not yet completed,
// decision.
func (e *executionContext) replayHistory(history []api.HistoryEvent) ([]api.Command, error) {
	batches, err := splitHistory(history)
	if err != nil {
		return nil, err
	}
	for i, batch := range batches {
		e.replaying = batch.completed || i < len(batches)-1
		for _, event := range batch.events {
			if err := e.processEvent(event); err != nil {
				return nil, err
			}
		}
		e.executeUntilAllBlocked()
		if batch.completed {
			if err := e.matchRecorded(batch.commandEvents); err != nil {
				return nil, err
			}
		}
	}
	return e.commands.commands(), nil
}

// matchRecorded checks the commands produced for a completed decision against
// the command events history recorded for it, in order.
func (e *executionContext) matchRecorded(recorded []*api.HistoryEvent) error {
	created := e.commands.created()
	for i, event := range recorded {
		kind, _ := event.CommandKind()
		if i >= len(created) {
			return newNonDeterminismError(event.ID,
				"history recorded %s %q (correlation id %d) but the workflow did not produce it",
				kind, event.Name, event.CorrelationID)
		}
		c := created[i].command
		if c.Kind != kind || c.CorrelationID != event.CorrelationID || c.Name != event.Name {
			return newNonDeterminismError(event.ID,
				"history recorded %s %q (correlation id %d) but the workflow produced %s %q (correlation id %d)",
				kind, event.Name, event.CorrelationID, c.Kind, c.Name, c.CorrelationID)
		}
		created[i].state = commandRecorded
	}
	if len(created) > len(recorded) {
		extra := make([]api.Command, 0, len(created)-len(recorded))
		for _, entry := range created[len(recorded):] {
			extra = append(extra, entry.command)
		}
		return newNonDeterminismError(0, "workflow produced commands not recorded in history: %s", describeCommands(extra))
	}
	return nil
}
