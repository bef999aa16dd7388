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


package projection

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

// Record is one history event read back from the history stream.
type Record struct {
	Execution api.WorkflowExecution
	Event     api.HistoryEvent
	// Sequence is the stream sequence of the message, zero when unknown.
	Sequence uint64
}

// Decode turns a history stream message into a Record. The event type and
// id headers must agree with the payload.
func Decode(msg jetstream.Msg, codec serde.BinarySerde) (Record, error) {
	payload := msg.Data()
	if len(payload) == 0 {
		return Record{}, errors.New("empty history event payload")
	}
	hdr := msg.Headers()

	var rec Record
	if err := codec.DeserializeBinary(payload, &rec.Event); err != nil {
		return Record{}, fmt.Errorf("decode history event on %s: %w", msg.Subject(), err)
	}
	if t := hdr.Get(api.EventTypeHeader); t != "" && api.EventType(t) != rec.Event.Type {
		return Record{}, fmt.Errorf("history event on %s: header type %q, payload type %q", msg.Subject(), t, rec.Event.Type)
	}
	if id := hdr.Get(api.EventIDHeader); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n != rec.Event.ID {
			return Record{}, fmt.Errorf("history event on %s: header id %q, payload id %d", msg.Subject(), id, rec.Event.ID)
		}
	}
	rec.Execution = api.WorkflowExecution{
		WorkflowID: hdr.Get(api.WorkflowIDHeader),
		RunID:      hdr.Get(api.RunIDHeader),
	}
	if rec.Execution.WorkflowID == "" {
		return Record{}, fmt.Errorf("history event on %s: missing %s header", msg.Subject(), api.WorkflowIDHeader)
	}
	return rec, nil
}
