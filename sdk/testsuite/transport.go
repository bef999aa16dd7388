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

package testsuite

import (
	"context"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/internal/server/service"
	"github.com/ngnhng/durableflow/sdk/client"
)

var _ client.Transport = (*serviceTransport)(nil)

// serviceTransport calls an in-process service directly. It fills namespace
// and identity the way the NATS transport does.
type serviceTransport struct {
	svc       *service.Service
	namespace string
	identity  string
}

func (t *serviceTransport) Identity() string {
	return t.identity
}

func (t *serviceTransport) fill(namespace, identity *string) {
	if *namespace == "" {
		*namespace = t.namespace
	}
	if *identity == "" {
		*identity = t.identity
	}
}

func (t *serviceTransport) fillIdentity(identity *string) {
	if *identity == "" {
		*identity = t.identity
	}
}

func (t *serviceTransport) StartWorkflow(ctx context.Context, req *api.StartWorkflowRequest) (*api.StartWorkflowResponse, error) {
	t.fill(&req.Namespace, &req.Identity)
	return t.svc.StartWorkflow(ctx, req)
}

func (t *serviceTransport) SignalWorkflow(ctx context.Context, req *api.SignalWorkflowRequest) error {
	t.fill(&req.Namespace, &req.Identity)
	return t.svc.SignalWorkflow(ctx, req)
}

func (t *serviceTransport) SignalWithStartWorkflow(ctx context.Context, req *api.SignalWithStartWorkflowRequest) (*api.StartWorkflowResponse, error) {
	t.fill(&req.Start.Namespace, &req.Start.Identity)
	return t.svc.SignalWithStartWorkflow(ctx, req)
}

func (t *serviceTransport) RequestCancelWorkflow(ctx context.Context, req *api.RequestCancelWorkflowRequest) error {
	t.fill(&req.Namespace, &req.Identity)
	return t.svc.RequestCancelWorkflow(ctx, req)
}

func (t *serviceTransport) TerminateWorkflow(ctx context.Context, req *api.TerminateWorkflowRequest) error {
	t.fill(&req.Namespace, &req.Identity)
	return t.svc.TerminateWorkflow(ctx, req)
}

func (t *serviceTransport) GetWorkflowHistory(ctx context.Context, req *api.GetWorkflowHistoryRequest) (*api.GetWorkflowHistoryResponse, error) {
	if req.Namespace == "" {
		req.Namespace = t.namespace
	}
	return t.svc.GetWorkflowHistory(ctx, req)
}

func (t *serviceTransport) PollDecisionTask(ctx context.Context, req *api.PollRequest) (*api.DecisionTask, error) {
	t.fill(&req.Namespace, &req.Identity)
	return t.svc.PollDecisionTask(ctx, req)
}

func (t *serviceTransport) RespondDecisionTaskCompleted(ctx context.Context, req *api.RespondDecisionTaskCompletedRequest) error {
	t.fillIdentity(&req.Identity)
	return t.svc.RespondDecisionTaskCompleted(ctx, req)
}

func (t *serviceTransport) RespondDecisionTaskFailed(ctx context.Context, req *api.RespondDecisionTaskFailedRequest) error {
	t.fillIdentity(&req.Identity)
	return t.svc.RespondDecisionTaskFailed(ctx, req)
}

func (t *serviceTransport) PollActivityTask(ctx context.Context, req *api.PollRequest) (*api.ActivityTask, error) {
	t.fill(&req.Namespace, &req.Identity)
	return t.svc.PollActivityTask(ctx, req)
}

func (t *serviceTransport) RespondActivityTaskCompleted(ctx context.Context, req *api.RespondActivityTaskCompletedRequest) error {
	t.fillIdentity(&req.Identity)
	return t.svc.RespondActivityTaskCompleted(ctx, req)
}

func (t *serviceTransport) RespondActivityTaskFailed(ctx context.Context, req *api.RespondActivityTaskFailedRequest) error {
	t.fillIdentity(&req.Identity)
	return t.svc.RespondActivityTaskFailed(ctx, req)
}
