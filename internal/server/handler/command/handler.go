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

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
	jetstreamx "github.com/ngnhng/durableflow/internal/server/infra/jetstream"
)

// DefaultMaxInFlight bounds the requests served at once. Polls hold their
// slot until they return a task or time out.
const DefaultMaxInFlight = 1024

// Service is the set of operations served over NATS.
type Service interface {
	StartWorkflow(ctx context.Context, req *api.StartWorkflowRequest) (*api.StartWorkflowResponse, error)
	SignalWorkflow(ctx context.Context, req *api.SignalWorkflowRequest) error
	SignalWithStartWorkflow(ctx context.Context, req *api.SignalWithStartWorkflowRequest) (*api.StartWorkflowResponse, error)
	RequestCancelWorkflow(ctx context.Context, req *api.RequestCancelWorkflowRequest) error
	TerminateWorkflow(ctx context.Context, req *api.TerminateWorkflowRequest) error
	GetWorkflowHistory(ctx context.Context, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error)
	PollDecisionTask(ctx context.Context, req *api.PollRequest) (*api.DecisionTask, error)
	RespondDecisionTaskCompleted(ctx context.Context, req *api.RespondDecisionTaskCompletedRequest) error
	RespondDecisionTaskFailed(ctx context.Context, req *api.RespondDecisionTaskFailedRequest) error
	PollActivityTask(ctx context.Context, req *api.PollRequest) (*api.ActivityTask, error)
	RespondActivityTaskCompleted(ctx context.Context, req *api.RespondActivityTaskCompletedRequest) error
	RespondActivityTaskFailed(ctx context.Context, req *api.RespondActivityTaskFailedRequest) error
}

// route decodes a request body, calls the service and returns the response
// struct. A nil response is sent as an empty body.
type route func(ctx context.Context, codec serde.BinarySerde, data []byte) (any, error)

type Options struct {
	Codec       serde.BinarySerde
	Logger      *slog.Logger
	MaxInFlight int64
	Registerer  prometheus.Registerer
}

// Handler maps request subjects onto service calls and answers with an
// api.Reply envelope.
type Handler struct {
	codec   serde.BinarySerde
	logger  *slog.Logger
	routes  map[string]route
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	metrics *handlerMetrics
}

func NewHandler(svc Service, opts Options) (*Handler, error) {
	if opts.Codec == nil {
		opts.Codec = &serde.MsgpackSerde{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	metrics, err := newHandlerMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register handler metrics: %w", err)
	}
	return &Handler{
		codec:   opts.Codec,
		logger:  opts.Logger.With("component", "command-handler"),
		sem:     semaphore.NewWeighted(opts.MaxInFlight),
		metrics: metrics,
		routes: map[string]route{
			api.SubjectStartWorkflow:         unary(svc.StartWorkflow),
			api.SubjectSignalWorkflow:        oneway(svc.SignalWorkflow),
			api.SubjectSignalWithStart:       unary(svc.SignalWithStartWorkflow),
			api.SubjectRequestCancelWorkflow: oneway(svc.RequestCancelWorkflow),
			api.SubjectTerminateWorkflow:     oneway(svc.TerminateWorkflow),
			api.SubjectGetWorkflowHistory:    unary(svc.GetWorkflowHistory),
			api.SubjectPollDecisionTask:      unary(svc.PollDecisionTask),
			api.SubjectDecisionTaskCompleted: oneway(svc.RespondDecisionTaskCompleted),
			api.SubjectDecisionTaskFailed:    oneway(svc.RespondDecisionTaskFailed),
			api.SubjectPollActivityTask:      unary(svc.PollActivityTask),
			api.SubjectActivityTaskCompleted: oneway(svc.RespondActivityTaskCompleted),
			api.SubjectActivityTaskFailed:    oneway(svc.RespondActivityTaskFailed),
		},
	}, nil
}

func unary[Req, Resp any](fn func(context.Context, *Req) (*Resp, error)) route {
	return func(ctx context.Context, codec serde.BinarySerde, data []byte) (any, error) {
		req := new(Req)
		if err := codec.DeserializeBinary(data, req); err != nil {
			return nil, api.ServerFailure(api.FailureTypeBadRequest, "cannot decode request: %v", err)
		}
		resp, err := fn(ctx, req)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	}
}

func oneway[Req any](fn func(context.Context, *Req) error) route {
	return func(ctx context.Context, codec serde.BinarySerde, data []byte) (any, error) {
		req := new(Req)
		if err := codec.DeserializeBinary(data, req); err != nil {
			return nil, api.ServerFailure(api.FailureTypeBadRequest, "cannot decode request: %v", err)
		}
		return nil, fn(ctx, req)
	}
}

// Dispatch serves one request and returns the encoded reply envelope.
func (h *Handler) Dispatch(ctx context.Context, subject string, data []byte) []byte {
	start := time.Now()
	h.metrics.inFlight.Inc()
	defer h.metrics.inFlight.Dec()

	reply := h.serve(ctx, subject, data)
	h.metrics.observe(subject, start, reply.Error)
	return h.encodeReply(subject, reply)
}

func (h *Handler) serve(ctx context.Context, subject string, data []byte) (reply api.Reply) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in request handler", "subject", subject, "panic", r)
			reply = api.Reply{Error: api.ServerFailure(api.FailureTypeInternal, "panic: %v", r)}
		}
	}()

	rt, ok := h.routes[subject]
	if !ok {
		return api.Reply{Error: api.ServerFailure(api.FailureTypeBadRequest, "unknown subject %s", subject)}
	}

	resp, err := rt(ctx, h.codec, data)
	if err != nil {
		return api.Reply{Error: toFailure(err)}
	}
	if resp == nil {
		return api.Reply{}
	}
	body, err := h.codec.SerializeBinary(resp)
	if err != nil {
		return api.Reply{Error: api.ServerFailure(api.FailureTypeInternal, "cannot encode response: %v", err)}
	}
	return api.Reply{Body: body}
}

func toFailure(err error) *api.Failure {
	var f *api.Failure
	if errors.As(err, &f) {
		return f
	}
	return api.ServerFailure(api.FailureTypeInternal, "%v", err)
}

func (h *Handler) encodeReply(subject string, r api.Reply) []byte {
	data, err := h.codec.SerializeBinary(r)
	if err != nil {
		h.logger.Error("cannot encode reply envelope", "subject", subject, "error", err)
		return nil
	}
	return data
}

// HandleRequest serves msg in its own goroutine so that long polls do not
// hold up the subscription.
func (h *Handler) HandleRequest(ctx context.Context, msg *nats.Msg) {
	if msg.Reply == "" {
		h.logger.Warn("dropping request without reply subject", "subject", msg.Subject)
		return
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.sem.Release(1)

		reply := h.Dispatch(ctx, msg.Subject, msg.Data)
		if reply == nil {
			return
		}
		if err := msg.Respond(reply); err != nil {
			h.logger.Warn("cannot send reply", "subject", msg.Subject, "error", err)
		}
	}()
}

// Wait blocks until in-flight requests have been answered.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// RunProcessor serves requests from the server queue group until ctx is
// canceled.
func RunProcessor(ctx context.Context, conn *jetstreamx.Connection, h *Handler, queueGroup string) error {
	if queueGroup == "" {
		queueGroup = api.ServerQueueGroup
	}
	sub, err := conn.QueueSubscribe(api.SubjectRequestFilterPattern, queueGroup, func(msg *nats.Msg) {
		h.HandleRequest(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	h.logger.Info("serving requests", "subject", api.SubjectRequestFilterPattern, "queue", queueGroup)

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		h.logger.Warn("cannot unsubscribe", "error", err)
	}
	h.Wait()
	return nil
}
