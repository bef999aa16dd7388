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

package serde_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

var payloadSerdes = []struct {
	name  string
	serde serde.BinarySerde
}{
	{"msgpack", &serde.MsgpackSerde{}},
	{"json", &serde.JSONSerde{}},
}

func encode(t *testing.T, s serde.BinarySerde, v any) api.Payload {
	t.Helper()
	data, err := s.SerializeBinary(v)
	require.NoError(t, err)
	return data
}

func TestHistoryEventRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	for _, tc := range payloadSerdes {
		t.Run(tc.name, func(t *testing.T) {
			in := api.HistoryEvent{
				ID:            7,
				Type:          api.EventActivityTaskScheduled,
				Timestamp:     ts,
				CorrelationID: 3,
				Name:          "ValidateSize",
				TaskList:      "orders",
				Input:         []api.Payload{encode(t, tc.serde, "XL")},
				Failure: &api.Failure{
					Kind:    api.FailureKindApplication,
					Type:    "invalid_size",
					Message: "size XXL is not stocked",
					Details: encode(t, tc.serde, map[string]string{"size": "XXL"}),
				},
				Execution:        &api.WorkflowExecution{WorkflowID: "shipping-1", RunID: "r1"},
				ActivityOptions:  &api.ActivityOptions{StartToCloseTimeout: time.Minute},
				SearchAttributes: map[string]api.Payload{"stage": encode(t, tc.serde, "size")},
				Duration:         5 * time.Second,
				Attempt:          2,
			}

			var out api.HistoryEvent
			require.NoError(t, tc.serde.DeserializeBinary(encode(t, tc.serde, in), &out))
			assert.True(t, ts.Equal(out.Timestamp))
			out.Timestamp = in.Timestamp
			assert.Equal(t, in, out)

			var size string
			require.NoError(t, tc.serde.DeserializeBinary(out.Input[0], &size))
			assert.Equal(t, "XL", size)
		})
	}
}

func TestCommandRoundTrip(t *testing.T) {
	for _, tc := range payloadSerdes {
		t.Run(tc.name, func(t *testing.T) {
			in := []api.Command{
				{Kind: api.CommandScheduleActivity, CorrelationID: 1, Name: "ValidateColor", Input: []api.Payload{encode(t, tc.serde, "red")}},
				{Kind: api.CommandStartTimer, CorrelationID: 2, Duration: time.Hour},
				{Kind: api.CommandCancelTimer, CorrelationID: 2},
				{Kind: api.CommandCompleteWorkflow, CorrelationID: 3, Result: encode(t, tc.serde, "shipped")},
			}
			var out []api.Command
			require.NoError(t, tc.serde.DeserializeBinary(encode(t, tc.serde, in), &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestRawPassesThrough(t *testing.T) {
	all := append(payloadSerdes, struct {
		name  string
		serde serde.BinarySerde
	}{"proto", &serde.ProtoSerde{}})

	for _, tc := range all {
		t.Run(tc.name, func(t *testing.T) {
			data := []byte{0x01, 0x02, 0x03}
			out, err := tc.serde.SerializeBinary(api.Payload(data))
			require.NoError(t, err)
			assert.Equal(t, data, out)

			var p api.Payload
			require.NoError(t, tc.serde.DeserializeBinary(data, &p))
			data[0] = 0xff
			assert.Equal(t, api.Payload{0x01, 0x02, 0x03}, p)
		})
	}
}

type tshirt struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

// envelope mirrors a signal payload whose value is decoded into an
// interface before the receiver knows its type.
type envelope struct {
	Stage string `json:"stage"`
	Value any    `json:"value"`
}

func TestAssignTo_InterfaceValues(t *testing.T) {
	for _, tc := range payloadSerdes {
		t.Run(tc.name, func(t *testing.T) {
			converter := serde.NewTypeConverter(tc.serde)
			roundTrip := func(v any) any {
				var e envelope
				require.NoError(t, tc.serde.DeserializeBinary(encode(t, tc.serde, envelope{Stage: "size", Value: v}), &e))
				return e.Value
			}

			var n int
			require.NoError(t, converter.AssignTo(roundTrip(42), &n))
			assert.Equal(t, 42, n)

			var big int64
			require.NoError(t, converter.AssignTo(roundTrip(int64(1)<<60), &big))
			assert.Equal(t, int64(1)<<60, big)

			var f float64
			require.NoError(t, converter.AssignTo(roundTrip(2.5), &f))
			assert.Equal(t, 2.5, f)

			var s string
			require.NoError(t, converter.AssignTo(roundTrip("XL"), &s))
			assert.Equal(t, "XL", s)

			var shirt tshirt
			require.NoError(t, converter.AssignTo(roundTrip(tshirt{Size: "M", Color: "red"}), &shirt))
			assert.Equal(t, tshirt{Size: "M", Color: "red"}, shirt)

			var tags []string
			require.NoError(t, converter.AssignTo(roundTrip([]string{"a", "b"}), &tags))
			assert.Equal(t, []string{"a", "b"}, tags)
		})
	}
}

func TestAssignTo_Numbers(t *testing.T) {
	converter := serde.NewTypeConverter(&serde.JSONSerde{})

	var i8 int8
	require.NoError(t, converter.AssignTo(json.Number("42"), &i8))
	assert.Equal(t, int8(42), i8)
	assert.Error(t, converter.AssignTo(int64(300), &i8))

	var n int
	require.NoError(t, converter.AssignTo(float64(3), &n))
	assert.Equal(t, 3, n)
	assert.Error(t, converter.AssignTo(json.Number("2.5"), &n))

	var u uint
	assert.Error(t, converter.AssignTo(int8(-1), &u))

	var f float64
	require.NoError(t, converter.AssignTo(uint8(7), &f))
	assert.Equal(t, 7.0, f)

	var s string
	assert.Error(t, converter.AssignTo(json.Number("42"), &s))
}

func TestAssignTo_Payload(t *testing.T) {
	s := &serde.MsgpackSerde{}
	converter := serde.NewTypeConverter(s)

	var got string
	require.NoError(t, converter.AssignTo(encode(t, s, "shipped"), &got))
	assert.Equal(t, "shipped", got)

	require.NoError(t, converter.AssignTo(api.Payload(nil), &got))
	assert.Empty(t, got)

	var kept api.Payload
	require.NoError(t, converter.AssignTo(api.Payload("opaque"), &kept))
	assert.Equal(t, api.Payload("opaque"), kept)
}

func TestAssignTo_Targets(t *testing.T) {
	converter := serde.NewTypeConverter(&serde.MsgpackSerde{})

	type stage string
	var st stage
	require.NoError(t, converter.AssignTo("color", &st))
	assert.Equal(t, stage("color"), st)

	var anything any
	require.NoError(t, converter.AssignTo(tshirt{Size: "S"}, &anything))
	assert.Equal(t, tshirt{Size: "S"}, anything)

	got := "stale"
	require.NoError(t, converter.AssignTo(nil, &got))
	assert.Empty(t, got)

	require.NoError(t, converter.AssignTo("x", nil))
	assert.Error(t, converter.AssignTo("x", got))
}

func TestByName(t *testing.T) {
	testCases := []struct {
		name    string
		want    serde.BinarySerde
		wantErr bool
	}{
		{"", &serde.MsgpackSerde{}, false},
		{serde.NameMsgpack, &serde.MsgpackSerde{}, false},
		{serde.NameJSON, &serde.JSONSerde{}, false},
		{serde.NameProto, &serde.ProtoSerde{}, false},
		{"yaml", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := serde.ByName(tc.name)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.IsType(t, tc.want, got)
		})
	}
}

func TestMsgpackUsesJSONTags(t *testing.T) {
	s := &serde.MsgpackSerde{}
	data := encode(t, s, api.WorkflowExecution{WorkflowID: "order-1"})

	var asMap map[string]any
	require.NoError(t, s.DeserializeBinary(data, &asMap))
	assert.Equal(t, "order-1", asMap["workflow_id"])
}

func TestProtoSerde(t *testing.T) {
	s := &serde.ProtoSerde{}

	got := &wrapperspb.StringValue{}
	require.NoError(t, s.DeserializeBinary(encode(t, s, wrapperspb.String("medium")), got))
	assert.True(t, proto.Equal(wrapperspb.String("medium"), got))

	_, err := s.SerializeBinary("not a message")
	assert.Error(t, err)
}
