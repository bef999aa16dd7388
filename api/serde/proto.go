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

package serde

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

var _ BinarySerde = (*ProtoSerde)(nil)

// ProtoSerde encodes proto.Message values. Workflow and activity arguments
// must be messages when it is selected.
type ProtoSerde struct{}

func (*ProtoSerde) SerializeBinary(value any) ([]byte, error) {
	if raw, ok := encodeRaw(value); ok {
		return raw, nil
	}
	msg, ok := value.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("proto: %T is not a proto.Message", value)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("proto: encode %T: %w", value, err)
	}
	return data, nil
}

func (*ProtoSerde) DeserializeBinary(data []byte, valuePtr any) error {
	if decodeRaw(data, valuePtr) {
		return nil
	}
	msg, ok := valuePtr.(proto.Message)
	if !ok {
		return fmt.Errorf("proto: %T is not a proto.Message", valuePtr)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("proto: decode into %T: %w", valuePtr, err)
	}
	return nil
}
