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
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/DeluxeOwl/chronicle/event"
	"github.com/DeluxeOwl/chronicle/eventlog"
	"github.com/DeluxeOwl/chronicle/version"
	"github.com/cockroachdb/pebble"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

// Backend selects the chronicle event log a Store writes to.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSqlite Backend = "sqlite"
	BackendPebble Backend = "pebble"
)

// DefaultTableName is the sqlite table holding history events.
const DefaultTableName = "durableflow_history"

// ErrConflict is returned by Append when the run's log moved past the
// expected event id.
var ErrConflict = errors.New("history: append conflict")

// RunKey addresses one run's history.
type RunKey struct {
	Namespace  string
	WorkflowID string
	RunID      string
}

// LogID is the chronicle log the run's events are stored under.
func (k RunKey) LogID() event.LogID {
	return event.LogID(k.Namespace + "/" + k.WorkflowID + "/" + k.RunID)
}

func (k RunKey) String() string {
	return string(k.LogID())
}

// Store persists run histories. Each run is its own chronicle log whose
// version equals the id of the last event appended to it.
type Store struct {
	log    event.Log
	codec  serde.BinarySerde
	closer io.Closer
}

// NewStore wraps an existing chronicle event log.
func NewStore(log event.Log) *Store {
	return &Store{log: log, codec: &serde.MsgpackSerde{}}
}

// NewMemoryStore returns a store backed by chronicle's in-memory log.
func NewMemoryStore() *Store {
	return NewStore(eventlog.NewMemory())
}

// Open builds a store for backend. path is the sqlite file or the pebble
// directory and is ignored for the memory backend.
func Open(backend Backend, path, tableName string) (*Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSqlite:
		if tableName == "" {
			tableName = DefaultTableName
		}
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", path, err)
		}
		log, err := eventlog.NewSqlite(db, eventlog.SqliteTableName(tableName))
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create sqlite event log: %w", err)
		}
		s := NewStore(log)
		s.closer = db
		return s, nil
	case BackendPebble:
		db, err := pebble.Open(path, &pebble.Options{})
		if err != nil {
			return nil, fmt.Errorf("open pebble %q: %w", path, err)
		}
		s := NewStore(eventlog.NewPebble(db))
		s.closer = db
		return s, nil
	}
	return nil, fmt.Errorf("unknown history backend %q", backend)
}

// Close releases the underlying database, if any.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Append writes events to the run's log. lastEventID is the id of the last
// event the caller has seen; events must continue from lastEventID+1.
func (s *Store) Append(ctx context.Context, key RunKey, lastEventID int64, events ...api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	raw := make(event.RawEvents, 0, len(events))
	for i := range events {
		if want := lastEventID + int64(i) + 1; events[i].ID != want {
			return fmt.Errorf("append %s: event %d out of sequence, want id %d", key, events[i].ID, want)
		}
		data, err := s.codec.SerializeBinary(&events[i])
		if err != nil {
			return fmt.Errorf("encode %s event %d: %w", key, events[i].ID, err)
		}
		raw = append(raw, event.NewRaw(string(events[i].Type), data))
	}

	_, err := s.log.AppendEvents(ctx, key.LogID(), version.CheckExact(version.Version(lastEventID)), raw)
	if err != nil {
		var conflict *version.ConflictError
		if errors.As(err, &conflict) {
			return fmt.Errorf("%w: %s expected %d, found %d", ErrConflict, key, conflict.Expected, conflict.Actual)
		}
		return fmt.Errorf("append %s: %w", key, err)
	}
	slog.Debug("appended history", "run", key.String(), "from", lastEventID+1, "count", len(events))
	return nil
}

// Read returns the run's events with id >= fromEventID. A fromEventID below
// one reads from the beginning.
func (s *Store) Read(ctx context.Context, key RunKey, fromEventID int64) ([]api.HistoryEvent, error) {
	selector := version.SelectFromBeginning
	if fromEventID > 1 {
		selector = version.Selector{From: version.Version(fromEventID)}
	}

	var events []api.HistoryEvent
	for record, err := range s.log.ReadEvents(ctx, key.LogID(), selector) {
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		var e api.HistoryEvent
		if err := s.codec.DeserializeBinary(record.Data(), &e); err != nil {
			return nil, fmt.Errorf("decode %s event %d: %w", key, record.Version(), err)
		}
		if e.Type != api.EventType(record.EventName()) {
			return nil, fmt.Errorf("decode %s event %d: stored as %q but decoded %q", key, record.Version(), record.EventName(), e.Type)
		}
		events = append(events, e)
	}
	return events, nil
}
