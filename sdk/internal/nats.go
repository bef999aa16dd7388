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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"
	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

var _ Transport = (*Conn)(nil)

// Conn is the NATS transport. Every service call is a request on a
// durableflow.api.* subject answered with an api.Reply envelope.
type Conn struct {
	nc     *nats.Conn
	codec  serde.BinarySerde
	ownsNC bool

	namespace      string
	identity       string
	requestTimeout time.Duration
	requestRetries uint
	logger         *slog.Logger
}

// Config is the dependency-injected interface required for establishing connections.
type Config interface {
	Endpoint() string
	NATSMaxReconnects() int
	NATSReconnectWait() time.Duration
	NATSDrainTimeout() time.Duration
	NATSPingInterval() time.Duration
	NATSMaxPingsOut() int
	// Optional human readable client name; may return empty.
	NATSClientName() string
}

// ConnOptions configure a Conn. Identity is required.
type ConnOptions struct {
	Namespace      string
	Identity       string
	RequestTimeout time.Duration
	// RequestRetries is the number of extra attempts for requests that found
	// no responder. Polls and long polls are never retried.
	RequestRetries uint
	Logger         *slog.Logger
}

// Connect establishes a connection to NATS with the given configuration.
func Connect(cfg Config, opts ConnOptions) (*Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("natz: nil config provided")
	}
	logger := defaultLogger(opts.Logger)

	clientName := cfg.NATSClientName()
	if clientName == "" {
		clientName = api.DefaultClientName
	}
	natsOpts := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(cfg.NATSMaxReconnects()),
		nats.ReconnectWait(cfg.NATSReconnectWait()),
		nats.DrainTimeout(cfg.NATSDrainTimeout()),
		nats.PingInterval(cfg.NATSPingInterval()),
		nats.MaxPingsOutstanding(cfg.NATSMaxPingsOut()),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.Endpoint(), natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Endpoint(), err)
	}
	conn, err := NewConn(nc, opts)
	if err != nil {
		nc.Close()
		return nil, err
	}
	conn.ownsNC = true
	return conn, nil
}

// NewConn wraps an existing NATS connection.
func NewConn(nc *nats.Conn, opts ConnOptions) (*Conn, error) {
	if nc == nil {
		return nil, fmt.Errorf("natz: nil connection provided")
	}
	identity := strings.TrimSpace(opts.Identity)
	if identity == "" {
		return nil, fmt.Errorf("natz: identity is required")
	}
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = api.DefaultNamespace
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = api.DefaultRequestTimeout
	}
	return &Conn{
		nc:             nc,
		codec:          &serde.MsgpackSerde{},
		namespace:      namespace,
		identity:       identity,
		requestTimeout: timeout,
		requestRetries: opts.RequestRetries,
		logger:         defaultLogger(opts.Logger),
	}, nil
}

// Close closes the connection if Conn created it.
func (c *Conn) Close() {
	if c.ownsNC && c.nc != nil && !c.nc.IsClosed() {
		c.nc.Close()
	}
}

// NATS returns the underlying NATS connection.
func (c *Conn) NATS() *nats.Conn {
	return c.nc
}

// IsConnected returns whether the NATS connection is currently connected.
func (c *Conn) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

func (c *Conn) Identity() string {
	return c.identity
}

func (c *Conn) Namespace() string {
	return c.namespace
}

func (c *Conn) StartWorkflow(ctx context.Context, req *api.StartWorkflowRequest) (*api.StartWorkflowResponse, error) {
	c.fill(&req.Namespace, &req.Identity)
	var resp api.StartWorkflowResponse
	if err := c.request(ctx, api.SubjectStartWorkflow, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Conn) SignalWorkflow(ctx context.Context, req *api.SignalWorkflowRequest) error {
	c.fill(&req.Namespace, &req.Identity)
	return c.request(ctx, api.SubjectSignalWorkflow, req, nil, 0)
}

func (c *Conn) SignalWithStartWorkflow(ctx context.Context, req *api.SignalWithStartWorkflowRequest) (*api.StartWorkflowResponse, error) {
	c.fill(&req.Start.Namespace, &req.Start.Identity)
	var resp api.StartWorkflowResponse
	if err := c.request(ctx, api.SubjectSignalWithStart, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Conn) RequestCancelWorkflow(ctx context.Context, req *api.RequestCancelWorkflowRequest) error {
	c.fill(&req.Namespace, &req.Identity)
	return c.request(ctx, api.SubjectRequestCancelWorkflow, req, nil, 0)
}

func (c *Conn) TerminateWorkflow(ctx context.Context, req *api.TerminateWorkflowRequest) error {
	c.fill(&req.Namespace, &req.Identity)
	return c.request(ctx, api.SubjectTerminateWorkflow, req, nil, 0)
}

func (c *Conn) GetWorkflowHistory(ctx context.Context, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error) {
	if err := validateGetWorkflowHistory(req); err != nil {
		return nil, err
	}
	if req.Namespace == "" {
		req.Namespace = c.namespace
	}
	var wait time.Duration
	if req.WaitForNewEvent {
		wait = req.Timeout
	}
	var resp api.GetWorkflowHistoryResponse
	if err := c.request(ctx, api.SubjectGetWorkflowHistory, req, &resp, wait); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Conn) PollDecisionTask(ctx context.Context, req *api.PollRequest) (*api.DecisionTask, error) {
	c.fillPoll(req)
	var task api.DecisionTask
	found, err := c.poll(ctx, api.SubjectPollDecisionTask, req, &task)
	if err != nil || !found {
		return nil, err
	}
	return &task, nil
}

func (c *Conn) RespondDecisionTaskCompleted(ctx context.Context, req *api.RespondDecisionTaskCompletedRequest) error {
	if req.Identity == "" {
		req.Identity = c.identity
	}
	return c.request(ctx, api.SubjectDecisionTaskCompleted, req, nil, 0)
}

func (c *Conn) RespondDecisionTaskFailed(ctx context.Context, req *api.RespondDecisionTaskFailedRequest) error {
	if req.Identity == "" {
		req.Identity = c.identity
	}
	return c.request(ctx, api.SubjectDecisionTaskFailed, req, nil, 0)
}

func (c *Conn) PollActivityTask(ctx context.Context, req *api.PollRequest) (*api.ActivityTask, error) {
	c.fillPoll(req)
	var task api.ActivityTask
	found, err := c.poll(ctx, api.SubjectPollActivityTask, req, &task)
	if err != nil || !found {
		return nil, err
	}
	return &task, nil
}

func (c *Conn) RespondActivityTaskCompleted(ctx context.Context, req *api.RespondActivityTaskCompletedRequest) error {
	if req.Identity == "" {
		req.Identity = c.identity
	}
	return c.request(ctx, api.SubjectActivityTaskCompleted, req, nil, 0)
}

func (c *Conn) RespondActivityTaskFailed(ctx context.Context, req *api.RespondActivityTaskFailedRequest) error {
	if req.Identity == "" {
		req.Identity = c.identity
	}
	return c.request(ctx, api.SubjectActivityTaskFailed, req, nil, 0)
}

func (c *Conn) fill(namespace, identity *string) {
	if *namespace == "" {
		*namespace = c.namespace
	}
	if *identity == "" {
		*identity = c.identity
	}
}

func (c *Conn) fillPoll(req *api.PollRequest) {
	c.fill(&req.Namespace, &req.Identity)
	if req.Timeout <= 0 {
		req.Timeout = api.DefaultPollTimeout
	}
}

// poll issues a long poll. An empty reply body means the poll timed out.
func (c *Conn) poll(ctx context.Context, subject string, req *api.PollRequest, task any) (bool, error) {
	body, err := c.roundTrip(ctx, subject, req, req.Timeout, false)
	if err != nil {
		return false, err
	}
	if len(body) == 0 {
		return false, nil
	}
	if err := c.codec.DeserializeBinary(body, task); err != nil {
		return false, fmt.Errorf("decode %s reply: %w", subject, err)
	}
	return true, nil
}

// request sends req and decodes the reply body into resp. wait extends the
// deadline for calls the service holds open.
func (c *Conn) request(ctx context.Context, subject string, req, resp any, wait time.Duration) error {
	body, err := c.roundTrip(ctx, subject, req, wait, wait == 0)
	if err != nil {
		return err
	}
	if resp == nil || len(body) == 0 {
		return nil
	}
	if err := c.codec.DeserializeBinary(body, resp); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	return nil
}

func (c *Conn) roundTrip(ctx context.Context, subject string, req any, wait time.Duration, retryable bool) ([]byte, error) {
	data, err := c.codec.SerializeBinary(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait+c.requestTimeout)
	defer cancel()

	attempts := uint(1)
	if retryable {
		attempts += c.requestRetries
	}
	msg, err := retry.DoWithData(
		func() (*nats.Msg, error) {
			return c.nc.RequestWithContext(ctx, subject, data)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, nats.ErrNoResponders)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying request", "subject", subject, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}

	var reply api.Reply
	if err := c.codec.DeserializeBinary(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode %s reply envelope: %w", subject, err)
	}
	if reply.Error != nil {
		return nil, reply.Error
	}
	return reply.Body, nil
}
