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

package api

import "time"

// Request/reply subjects served by the orchestration service.
const (
	SubjectPrefix = "durableflow.api"

	SubjectStartWorkflow         = SubjectPrefix + ".workflow.start"
	SubjectSignalWorkflow        = SubjectPrefix + ".workflow.signal"
	SubjectSignalWithStart       = SubjectPrefix + ".workflow.signal_with_start"
	SubjectRequestCancelWorkflow = SubjectPrefix + ".workflow.cancel"
	SubjectTerminateWorkflow     = SubjectPrefix + ".workflow.terminate"
	SubjectGetWorkflowHistory    = SubjectPrefix + ".workflow.history"
	SubjectPollDecisionTask      = SubjectPrefix + ".decision.poll"
	SubjectDecisionTaskCompleted = SubjectPrefix + ".decision.completed"
	SubjectDecisionTaskFailed    = SubjectPrefix + ".decision.failed"
	SubjectPollActivityTask      = SubjectPrefix + ".activity.poll"
	SubjectActivityTaskCompleted = SubjectPrefix + ".activity.completed"
	SubjectActivityTaskFailed    = SubjectPrefix + ".activity.failed"
	SubjectRequestFilterPattern  = SubjectPrefix + ".>"

	ServerQueueGroup = "durableflow-server"
)

// Defaults shared by the SDK and the service.
const (
	DefaultNamespace           = "default"
	DefaultTaskList            = "default"
	DefaultClientName          = "durableflow"
	DefaultDecisionTaskTimeout = 10 * time.Second
	DefaultPollTimeout         = 20 * time.Second
	DefaultRequestTimeout      = 10 * time.Second

	// MaxGetHistoryWaitTimeout is the ceiling the service enforces on
	// long-polling history reads.
	MaxGetHistoryWaitTimeout = 30 * time.Second
)

// JetStream stream carrying every appended history event.
const (
	HistoryStream                = "DURABLEFLOW_HISTORY"
	HistorySubjectPrefix         = "durableflow.history"
	HistoryPublishSubjectPattern = HistorySubjectPrefix + ".%s.%s" // workflowID, runID
	HistoryFilterSubjectPattern  = HistorySubjectPrefix + ".>"
)

// JetStream headers set on published history events.
const (
	EventTypeHeader  = "Durableflow-Event-Type"
	EventIDHeader    = "Durableflow-Event-Id"
	WorkflowIDHeader = "Durableflow-Workflow-Id"
	RunIDHeader      = "Durableflow-Run-Id"
)
