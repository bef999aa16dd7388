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
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

// DefaultMaxPendingPublishes bounds unacknowledged async publishes.
const DefaultMaxPendingPublishes = 4096

// HistoryStreamConfig is the stream every appended history event is
// published to.
func HistoryStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       api.HistoryStream,
		Subjects:   []string{api.HistoryFilterSubjectPattern},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	}
}

// HistorySubject is the subject events of a run are published on.
func HistorySubject(execution api.WorkflowExecution) string {
	return fmt.Sprintf(api.HistoryPublishSubjectPattern, execution.WorkflowID, execution.RunID)
}

// HistorySink publishes history events to the history stream. Publishes are
// asynchronous; failures are logged by the connection's error handler.
type HistorySink struct {
	js    jetstream.JetStream
	codec serde.BinarySerde
}

func NewHistorySink(conn *Connection, codec serde.BinarySerde) (*HistorySink, error) {
	js, err := conn.JS()
	if err != nil {
		return nil, err
	}
	if codec == nil {
		codec = &serde.MsgpackSerde{}
	}
	return &HistorySink{js: js, codec: codec}, nil
}

func (s *HistorySink) Publish(ctx context.Context, execution api.WorkflowExecution, event api.HistoryEvent) error {
	data, err := s.codec.SerializeBinary(event)
	if err != nil {
		return fmt.Errorf("encode history event %d: %w", event.ID, err)
	}
	msg := nats.NewMsg(HistorySubject(execution))
	msg.Data = data
	msg.Header.Set(api.EventTypeHeader, string(event.Type))
	msg.Header.Set(api.EventIDHeader, strconv.FormatInt(event.ID, 10))
	msg.Header.Set(api.WorkflowIDHeader, execution.WorkflowID)
	msg.Header.Set(api.RunIDHeader, execution.RunID)

	// The message id lets the stream drop republished events.
	msgID := fmt.Sprintf("%s/%s/%d", execution.WorkflowID, execution.RunID, event.ID)
	if _, err := s.js.PublishMsgAsync(msg, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish history event %d: %w", event.ID, err)
	}
	return nil
}

// Flush waits for outstanding publishes to be acknowledged.
func (s *HistorySink) Flush(ctx context.Context) error {
	select {
	case <-s.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush history publishes, %d pending: %w", s.js.PublishAsyncPending(), ctx.Err())
	}
}
