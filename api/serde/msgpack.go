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
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var _ BinarySerde = (*MsgpackSerde)(nil)

// MsgpackSerde is the default serde. Struct fields are keyed by their json
// tags so wire types need a single set of tags.
type MsgpackSerde struct{}

func (*MsgpackSerde) SerializeBinary(value any) ([]byte, error) {
	if raw, ok := encodeRaw(value); ok {
		return raw, nil
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("msgpack: encode %T: %w", value, err)
	}
	return buf.Bytes(), nil
}

func (*MsgpackSerde) DeserializeBinary(data []byte, valuePtr any) error {
	if decodeRaw(data, valuePtr) {
		return nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(valuePtr); err != nil {
		return fmt.Errorf("msgpack: decode into %T: %w", valuePtr, err)
	}
	return nil
}
