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

package internal

import (
	"fmt"
	"reflect"

	"github.com/ngnhng/durableflow/api"
	"github.com/ngnhng/durableflow/api/serde"
)

// dataConverter encodes arguments and results into payloads with the
// configured serde and decodes them back into the types workflow and
// activity functions declare.
type dataConverter struct {
	serde serde.BinarySerde
	types *serde.TypeConverter
}

func newDataConverter(s serde.BinarySerde) *dataConverter {
	if s == nil {
		s = &serde.MsgpackSerde{}
	}
	return &dataConverter{serde: s, types: serde.NewTypeConverter(s)}
}

func (c *dataConverter) encode(value any) (api.Payload, error) {
	if p, ok := value.(api.Payload); ok {
		return p, nil
	}
	data, err := c.serde.SerializeBinary(value)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", value, err)
	}
	return data, nil
}

func (c *dataConverter) encodeArgs(args []any) ([]api.Payload, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]api.Payload, len(args))
	for i, arg := range args {
		p, err := c.encode(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

func (c *dataConverter) decode(p api.Payload, valuePtr any) error {
	if valuePtr == nil || len(p) == 0 {
		return nil
	}
	return c.serde.DeserializeBinary(p, valuePtr)
}

// assign stores a future's value into valuePtr. Values produced by history
// are payloads; values set by workflow code are Go values.
func (c *dataConverter) assign(value any, valuePtr any) error {
	if valuePtr == nil {
		return nil
	}
	if p, ok := value.(api.Payload); ok {
		return c.decode(p, valuePtr)
	}
	return c.types.AssignTo(value, valuePtr)
}

// AssignValue stores value into valuePtr using the data converter of the run
// that owns ctx.
func AssignValue(ctx Context, value any, valuePtr any) error {
	return getEnv(ctx).converter.assign(value, valuePtr)
}

// decodeArgs decodes inputs into the parameters of fnType starting at
// parameter index offset.
func (c *dataConverter) decodeArgs(fnType reflect.Type, offset int, inputs []api.Payload) ([]reflect.Value, error) {
	want := fnType.NumIn() - offset
	if want != len(inputs) {
		return nil, fmt.Errorf("argument count mismatch: function expects %d, got %d", want, len(inputs))
	}
	out := make([]reflect.Value, len(inputs))
	for i, in := range inputs {
		paramType := fnType.In(i + offset)
		ptr := reflect.New(paramType)
		if err := c.decode(in, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode argument %d into %v: %w", i, paramType, err)
		}
		out[i] = ptr.Elem()
	}
	return out, nil
}
