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

package jetstreamx

import (
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durableflow/api"
)

func TestHistorySubject(t *testing.T) {
	subject := HistorySubject(api.WorkflowExecution{WorkflowID: "order-42", RunID: "run-1"})
	assert.Equal(t, "durableflow.history.order-42.run-1", subject)
}

func TestHistoryStreamConfig(t *testing.T) {
	cfg := HistoryStreamConfig()
	assert.Equal(t, api.HistoryStream, cfg.Name)
	assert.Equal(t, []string{api.HistoryFilterSubjectPattern}, cfg.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, cfg.Retention)
	assert.Positive(t, cfg.Duplicates)
}

func TestWrapRejectsNil(t *testing.T) {
	_, err := Wrap(nil, nil)
	require.Error(t, err)

	_, err = Connect(nil, nil)
	require.Error(t, err)
}
