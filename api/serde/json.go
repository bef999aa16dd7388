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
	"encoding/json"
	"fmt"
)

var _ BinarySerde = (*JSONSerde)(nil)

// JSONSerde encodes values as JSON. Numbers decoded into interface values
// are kept as json.Number, so integers carried in a Request or Response
// value are not rounded through float64.
type JSONSerde struct{}

func (*JSONSerde) SerializeBinary(value any) ([]byte, error) {
	if raw, ok := encodeRaw(value); ok {
		return raw, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("json: encode %T: %w", value, err)
	}
	return data, nil
}

func (*JSONSerde) DeserializeBinary(data []byte, valuePtr any) error {
	if decodeRaw(data, valuePtr) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(valuePtr); err != nil {
		return fmt.Errorf("json: decode into %T: %w", valuePtr, err)
	}
	return nil
}
