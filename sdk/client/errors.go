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

package client

import (
	"github.com/ngnhng/durableflow/sdk/internal"
)

var (
	// ErrEntityNotExists matches service errors for unknown workflow executions.
	ErrEntityNotExists = internal.ErrEntityNotExists
)

type (
	// WorkflowExecutionAlreadyStartedError is returned when the workflow id
	// is in use. RunID names the run that holds it.
	WorkflowExecutionAlreadyStartedError = internal.WorkflowExecutionAlreadyStartedError

	// ClientError reports invalid client input. Nothing was sent to the
	// service.
	ClientError = internal.ClientError

	// ServiceError is any other failure reported by the service.
	ServiceError = internal.ServiceError
)
