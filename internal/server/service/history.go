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

package service

import (
	"context"

	"github.com/ngnhng/durableflow/api"
)

// GetWorkflowHistory returns a page of a run's history starting at
// NextEventID. With WaitForNewEvent it holds the call until there is
// something to return or the timeout passes.
func (s *Service) GetWorkflowHistory(ctx context.Context, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error) {
	switch req.EventFilter {
	case "", api.HistoryEventFilterAll, api.HistoryEventFilterClose:
	default:
		return nil, badRequest("unknown history event filter %q", req.EventFilter)
	}
	if req.WaitForNewEvent {
		if req.Timeout <= 0 {
			return nil, badRequest("You must specify a timeout when wait_for_new_event = true.")
		}
		if req.Timeout > api.MaxGetHistoryWaitTimeout {
			return nil, badRequest("You may not specify a timeout of more than %d seconds, got: %d.",
				int64(api.MaxGetHistoryWaitTimeout.Seconds()), int64(req.Timeout.Seconds()))
		}
	}

	waitCtx := ctx
	if req.WaitForNewEvent {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, min(req.Timeout, s.maxHistoryWait))
		defer cancel()
	}

	for {
		s.mu.Lock()
		r, f := s.lookup(req.Namespace, req.Execution)
		if f != nil {
			s.mu.Unlock()
			return nil, f
		}
		resp, err := s.readHistory(ctx, r, req)
		changed := r.changed
		s.mu.Unlock()
		if err != nil {
			return nil, internalError(err)
		}

		if !req.WaitForNewEvent || len(resp.Events) > 0 || resp.Closed {
			return resp, nil
		}
		select {
		case <-changed:
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}

func (s *Service) readHistory(ctx context.Context, r *run, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error) {
	from := max(req.NextEventID, 1)
	resp := &api.GetWorkflowHistoryResponse{
		Execution:   r.execution(),
		NextEventID: from,
		Closed:      !r.isOpen(),
	}

	if req.EventFilter == api.HistoryEventFilterClose {
		if r.closeEvent != nil {
			resp.Events = []api.HistoryEvent{*r.closeEvent}
			resp.NextEventID = r.nextEventID
		}
		return resp, nil
	}

	events, err := s.store.Read(ctx, r.key, from)
	if err != nil {
		return nil, err
	}
	if len(events) > s.pageSize {
		events = events[:s.pageSize]
	}
	if n := len(events); n > 0 {
		resp.NextEventID = events[n-1].ID + 1
	}
	resp.Events = events
	return resp, nil
}
