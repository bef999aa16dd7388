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

// Package proxy implements synchronous request/response between workflows on
// top of signals.
//
// A requester sends a stage-tagged request to a target workflow and blocks on
// a Future that resolves when the target answers on the stage's response
// signal. The responder receives requests by signal name and replies to the
// calling workflow by id:
//
//	// requester
//	c := proxy.New(ctx)
//	resp, err := c.SendRequest(ctx, orderID, "size", "large").Get(ctx, nil)
//
//	// responder
//	c := proxy.New(ctx)
//	req, err := c.ReceiveRequest(ctx, "size_payload")
//	...
//	c.SendResponse(ctx, req.CallingWorkflowID, "color", "")
//
// Errors carried by a response fail the requester's Future with an
// ApplicationError of the same type, so the requester handles remote failures
// the way it handles local ones.
package proxy

import (
	"errors"
	"fmt"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/sdk/internal"
	"github.com/ngnhng/durableflow/sdk/workflow"
)

// ErrRequestOutstanding is returned when a request is sent to a target and
// stage that already have a request waiting for its response.
var ErrRequestOutstanding = errors.New("a request to this target and stage is already outstanding")

const (
	requestSuffix  = "_payload"
	responseSuffix = "_stage_payload"
)

// RequestSignal is the signal name requests for stage are sent on.
func RequestSignal(stage string) string { return stage + requestSuffix }

// ResponseSignal is the signal name responses for stage are sent on.
func ResponseSignal(stage string) string { return stage + responseSuffix }

// Request is the payload of a request signal.
type Request struct {
	CallingWorkflowID string `json:"calling_workflow_id"`
	Stage             string `json:"stage"`
	Value             any    `json:"value,omitempty"`
}

// Get stores the request value into valuePtr. The value is converted with
// the serde the workflow run was configured with.
func (r Request) Get(ctx workflow.Context, valuePtr any) error {
	return internal.AssignValue(ctx, r.Value, valuePtr)
}

// Response is the payload of a response signal. Key names the next stage of
// the conversation.
type Response struct {
	Key   string       `json:"key"`
	Value any          `json:"value,omitempty"`
	From  string       `json:"from"`
	Error *api.Failure `json:"error,omitempty"`
}

// Get stores the response value into valuePtr.
func (r Response) Get(ctx workflow.Context, valuePtr any) error {
	return internal.AssignValue(ctx, r.Value, valuePtr)
}

// IsError reports whether the response carries an error.
func (r Response) IsError() bool { return r.Error != nil }

// Err rebuilds the error carried by the response.
func (r Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return internal.ConvertFailureToError(r.Error)
}

type requestKey struct {
	target, stage string
}

// Communicator holds the protocol state of one workflow run. It must be
// created once per run, from the workflow function.
type Communicator struct {
	workflowID string

	outstanding map[requestKey]workflow.Settable
	lastByStage map[string]workflow.Future
	handled     map[string]bool

	// callerStage remembers the stage of the last request received from
	// each caller, which is where responses to it are sent.
	callerStage map[string]string
}

func New(ctx workflow.Context) *Communicator {
	return &Communicator{
		workflowID:  workflow.GetInfo(ctx).WorkflowExecution.WorkflowID,
		outstanding: make(map[requestKey]workflow.Settable),
		lastByStage: make(map[string]workflow.Future),
		handled:     make(map[string]bool),
		callerStage: make(map[string]string),
	}
}

// SendRequest signals targetID with a request for stage and returns a Future
// of the Response. The future fails with the response's error when it
// carries one, or with ErrRequestOutstanding when a request to the same
// target and stage is still waiting.
func (c *Communicator) SendRequest(ctx workflow.Context, targetID, stage string, value any) workflow.Future {
	f, s := workflow.NewFuture(ctx)
	key := requestKey{target: targetID, stage: stage}
	if _, ok := c.outstanding[key]; ok {
		_ = s.SetError(fmt.Errorf("%w: target %s, stage %s", ErrRequestOutstanding, targetID, stage))
		return f
	}
	if err := c.listen(ctx, stage); err != nil {
		_ = s.SetError(err)
		return f
	}

	c.outstanding[key] = s
	c.lastByStage[stage] = f
	sent := workflow.SignalExternalWorkflow(ctx, targetID, "", RequestSignal(stage), Request{
		CallingWorkflowID: c.workflowID,
		Stage:             stage,
		Value:             value,
	})
	sent.OnFailure(func(err error) {
		if c.outstanding[key] == s {
			delete(c.outstanding, key)
			_ = s.SetError(err)
		}
	})
	return f
}

// listen registers the response handler of stage once.
func (c *Communicator) listen(ctx workflow.Context, stage string) error {
	if c.handled[stage] {
		return nil
	}
	err := workflow.SetSignalHandler(ctx, ResponseSignal(stage), func(input workflow.Value) {
		var resp Response
		if err := input.Get(&resp); err != nil {
			workflow.GetLogger(ctx).Warn("dropping undecodable response", "stage", stage, "error", err)
			return
		}
		key := requestKey{target: resp.From, stage: stage}
		s, ok := c.outstanding[key]
		if !ok {
			workflow.GetLogger(ctx).Warn("dropping response without request", "stage", stage, "from", resp.From)
			return
		}
		delete(c.outstanding, key)
		if resp.IsError() {
			_ = s.SetError(resp.Err())
			return
		}
		_ = s.SetValue(resp)
	})
	if err != nil {
		return err
	}
	c.handled[stage] = true
	return nil
}

// ReceiveResponse blocks until the response to the last request sent for
// stage arrives.
func (c *Communicator) ReceiveResponse(ctx workflow.Context, stage string) (Response, error) {
	f, ok := c.lastByStage[stage]
	if !ok {
		return Response{}, fmt.Errorf("no request was sent for stage %s", stage)
	}
	var resp Response
	err := f.Get(ctx, &resp)
	return resp, err
}

// ReceiveRequest blocks until a request arrives on signalName.
func (c *Communicator) ReceiveRequest(ctx workflow.Context, signalName string) (Request, error) {
	var req Request
	if err := workflow.GetSignalChannel(ctx, signalName).Receive(ctx, &req); err != nil {
		return Request{}, err
	}
	c.callerStage[req.CallingWorkflowID] = req.Stage
	return req, nil
}

// SendResponse answers the last request received from targetID. key names
// the next stage.
func (c *Communicator) SendResponse(ctx workflow.Context, targetID, key string, value any) workflow.Future {
	return c.respond(ctx, targetID, Response{Key: key, Value: value, From: c.workflowID})
}

// SendErrorResponse answers the last request received from targetID with
// err. An ActivityError is unwrapped to the failure that caused it, so the
// requester sees the activity's own error type.
func (c *Communicator) SendErrorResponse(ctx workflow.Context, targetID string, err error) workflow.Future {
	f := internal.ConvertErrorToFailure(err)
	for f != nil && f.Kind == api.FailureKindActivity && f.Cause != nil {
		f = f.Cause
	}
	return c.respond(ctx, targetID, Response{From: c.workflowID, Error: f})
}

func (c *Communicator) respond(ctx workflow.Context, targetID string, resp Response) workflow.Future {
	stage, ok := c.callerStage[targetID]
	if !ok {
		f, s := workflow.NewFuture(ctx)
		_ = s.SetError(fmt.Errorf("no request was received from workflow %s", targetID))
		return f
	}
	return workflow.SignalExternalWorkflow(ctx, targetID, "", ResponseSignal(stage), resp)
}
