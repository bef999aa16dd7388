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

import "fmt"

// BinarySerde encodes and decodes values. It is the shape chronicle expects
// for event serialization, so the same implementations back both payloads
// and stored history.
type BinarySerde interface {
	SerializeBinary(value any) ([]byte, error)
	DeserializeBinary(data []byte, valuePtr any) error
}

// Raw is a value that has already been encoded. Serializing a Raw returns
// its bytes unchanged and decoding into a *Raw keeps the encoded bytes, so
// payloads can be forwarded without knowing their type.
type Raw []byte

func encodeRaw(value any) ([]byte, bool) {
	switch r := value.(type) {
	case Raw:
		return r, true
	case *Raw:
		if r != nil {
			return *r, true
		}
	}
	return nil, false
}

func decodeRaw(data []byte, valuePtr any) bool {
	p, ok := valuePtr.(*Raw)
	if !ok {
		return false
	}
	*p = append(Raw(nil), data...)
	return true
}

// Serde names accepted by ByName.
const (
	NameMsgpack = "msgpack"
	NameJSON    = "json"
	NameProto   = "proto"
)

// ByName returns the serde registered under name. An empty name selects
// MessagePack.
func ByName(name string) (BinarySerde, error) {
	switch name {
	case "", NameMsgpack:
		return &MsgpackSerde{}, nil
	case NameJSON:
		return &JSONSerde{}, nil
	case NameProto:
		return &ProtoSerde{}, nil
	default:
		return nil, fmt.Errorf("unknown serde %q", name)
	}
}
