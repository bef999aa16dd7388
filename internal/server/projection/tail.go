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
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

type TailOptions struct {
	// WorkflowID limits the tail to one workflow, and RunID to one run of
	// it. Both are optional.
	WorkflowID string
	RunID      string
	// New skips the events already stored in the stream.
	New   bool
	Codec serde.BinarySerde
}

// FilterSubject is the stream subject matching opts.
func (o TailOptions) FilterSubject() string {
	switch {
	case o.WorkflowID == "":
		return api.HistoryFilterSubjectPattern
	case o.RunID == "":
		return fmt.Sprintf(api.HistoryPublishSubjectPattern, o.WorkflowID, "*")
	default:
		return fmt.Sprintf(api.HistoryPublishSubjectPattern, o.WorkflowID, o.RunID)
	}
}

// Tail reads the history stream with an ordered consumer and calls fn for
// every event until ctx is done or fn returns an error. Undecodable
// messages are reported to fn's caller as errors.
func Tail(ctx context.Context, js jetstream.JetStream, opts TailOptions, fn func(Record) error) error {
	if opts.Codec == nil {
		opts.Codec = &serde.MsgpackSerde{}
	}
	policy := jetstream.DeliverAllPolicy
	if opts.New {
		policy = jetstream.DeliverNewPolicy
	}

	cons, err := js.OrderedConsumer(ctx, api.HistoryStream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{opts.FilterSubject()},
		DeliverPolicy:  policy,
	})
	if err != nil {
		return fmt.Errorf("create history consumer: %w", err)
	}
	it, err := cons.Messages()
	if err != nil {
		return fmt.Errorf("consume history: %w", err)
	}
	stop := context.AfterFunc(ctx, it.Stop)
	defer stop()
	defer it.Stop()

	for {
		msg, err := it.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return nil
			}
			return err
		}
		rec, err := Decode(msg, opts.Codec)
		if err != nil {
			return err
		}
		if md, err := msg.Metadata(); err == nil {
			rec.Sequence = md.Sequence.Stream
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
