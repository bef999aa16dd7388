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

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durableflow/api"
)

func sampleEvents(from int64, n int) []api.HistoryEvent {
	types := []api.EventType{
		api.EventWorkflowExecutionStarted,
		api.EventDecisionTaskScheduled,
		api.EventDecisionTaskStarted,
		api.EventDecisionTaskCompleted,
		api.EventActivityTaskScheduled,
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	events := make([]api.HistoryEvent, n)
	for i := range events {
		events[i] = api.HistoryEvent{
			ID:        from + int64(i),
			Type:      types[(int(from)+i-1)%len(types)],
			Timestamp: ts.Add(time.Duration(i) * time.Second),
		}
	}
	return events
}

func openBackends(t *testing.T) map[Backend]*Store {
	t.Helper()
	dir := t.TempDir()
	stores := map[Backend]*Store{BackendMemory: NewMemoryStore()}

	sqliteStore, err := Open(BackendSqlite, filepath.Join(dir, "history.db"), "")
	require.NoError(t, err)
	stores[BackendSqlite] = sqliteStore

	pebbleStore, err := Open(BackendPebble, filepath.Join(dir, "pebble"), "")
	require.NoError(t, err)
	stores[BackendPebble] = pebbleStore

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreAppendAndRead(t *testing.T) {
	for backend, store := range openBackends(t) {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			key := RunKey{Namespace: "default", WorkflowID: "order-1", RunID: "run-1"}

			first := sampleEvents(1, 3)
			first[0].Name = "OrderWorkflow"
			first[0].Input = []api.Payload{[]byte("in")}
			require.NoError(t, store.Append(ctx, key, 0, first...))
			require.NoError(t, store.Append(ctx, key, 3, sampleEvents(4, 2)...))

			all, err := store.Read(ctx, key, 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			for i, e := range all {
				assert.Equal(t, int64(i+1), e.ID)
			}
			assert.Equal(t, "OrderWorkflow", all[0].Name)
			assert.Equal(t, []api.Payload{[]byte("in")}, all[0].Input)
			assert.Equal(t, api.EventActivityTaskScheduled, all[4].Type)

			tail, err := store.Read(ctx, key, 4)
			require.NoError(t, err)
			require.Len(t, tail, 2)
			assert.Equal(t, int64(4), tail[0].ID)
		})
	}
}

func TestStoreAppendConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := RunKey{Namespace: "default", WorkflowID: "wf", RunID: "r"}

	require.NoError(t, store.Append(ctx, key, 0, sampleEvents(1, 2)...))

	err := store.Append(ctx, key, 1, sampleEvents(2, 1)...)
	require.ErrorIs(t, err, ErrConflict)

	err = store.Append(ctx, key, 2, sampleEvents(5, 1)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of sequence")
}

func TestStoreRunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := RunKey{Namespace: "default", WorkflowID: "wf", RunID: "a"}
	b := RunKey{Namespace: "default", WorkflowID: "wf", RunID: "b"}

	require.NoError(t, store.Append(ctx, a, 0, sampleEvents(1, 3)...))

	events, err := store.Read(ctx, b, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, "default/wf/a", a.String())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("etcd", "", "")
	require.Error(t, err)
}
