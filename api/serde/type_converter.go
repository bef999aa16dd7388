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
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// TypeConverter assigns values to typed variables. Values reach it in three
// shapes: Raw payloads read from history, Go values set by workflow code,
// and loosely typed values (maps, json.Number, int8) left behind when a
// payload was decoded into an interface field, as proxy Request and Response
// values are.
type TypeConverter struct {
	serde BinarySerde
}

func NewTypeConverter(s BinarySerde) *TypeConverter {
	return &TypeConverter{serde: s}
}

// AssignTo stores value into the variable valuePtr points to, converting it
// when the types differ. A nil valuePtr discards the value.
func (tc *TypeConverter) AssignTo(value any, valuePtr any) error {
	if valuePtr == nil {
		return nil
	}
	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("valuePtr must be a non-nil pointer, got %T", valuePtr)
	}
	target := rv.Elem()
	if value == nil {
		target.SetZero()
		return nil
	}
	if raw, ok := value.(Raw); ok && target.Type() != rawType {
		if len(raw) == 0 {
			target.SetZero()
			return nil
		}
		return tc.serde.DeserializeBinary(raw, valuePtr)
	}
	converted, err := tc.convert(value, target.Type())
	if err != nil {
		return err
	}
	target.Set(converted)
	return nil
}

var rawType = reflect.TypeFor[Raw]()

func (tc *TypeConverter) convert(value any, to reflect.Type) (reflect.Value, error) {
	from := reflect.TypeOf(value)
	switch {
	case from.AssignableTo(to):
		return reflect.ValueOf(value), nil
	case isNumber(value):
		if isNumericKind(to.Kind()) {
			return convertNumber(value, to)
		}
	case from.Kind() == to.Kind() && from.ConvertibleTo(to):
		// Named types over the same underlying type, such as a string
		// decoded into a Stage.
		return reflect.ValueOf(value).Convert(to), nil
	}
	return tc.viaSerde(value, to)
}

// viaSerde converts maps, slices and structs by encoding value and decoding
// it into a new value of type to.
func (tc *TypeConverter) viaSerde(value any, to reflect.Type) (reflect.Value, error) {
	data, err := tc.serde.SerializeBinary(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("convert %T to %v: %w", value, to, err)
	}
	ptr := reflect.New(to)
	if err := tc.serde.DeserializeBinary(data, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("convert %T to %v: %w", value, to, err)
	}
	return ptr.Elem(), nil
}

func isNumber(value any) bool {
	if _, ok := value.(json.Number); ok {
		return true
	}
	return isNumericKind(reflect.TypeOf(value).Kind())
}

// convertNumber converts between numeric types, refusing conversions that
// would truncate, overflow or change sign.
func convertNumber(value any, to reflect.Type) (reflect.Value, error) {
	if n, ok := value.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			value = i
		} else if f, err := n.Float64(); err == nil {
			value = f
		} else {
			return reflect.Value{}, fmt.Errorf("invalid number %q", n)
		}
	}
	in := reflect.ValueOf(value)
	out := reflect.New(to).Elem()
	lossy := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("cannot convert %v (%T) to %v without losing precision", value, value, to)
	}

	switch {
	case out.CanFloat():
		var f float64
		switch {
		case in.CanInt():
			f = float64(in.Int())
		case in.CanUint():
			f = float64(in.Uint())
		default:
			f = in.Float()
		}
		if out.OverflowFloat(f) {
			return lossy()
		}
		out.SetFloat(f)
	case out.CanInt():
		var i int64
		switch {
		case in.CanInt():
			i = in.Int()
		case in.CanUint():
			if in.Uint() > math.MaxInt64 {
				return lossy()
			}
			i = int64(in.Uint())
		default:
			f := in.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return lossy()
			}
			i = int64(f)
		}
		if out.OverflowInt(i) {
			return lossy()
		}
		out.SetInt(i)
	default:
		var u uint64
		switch {
		case in.CanUint():
			u = in.Uint()
		case in.CanInt():
			if in.Int() < 0 {
				return lossy()
			}
			u = uint64(in.Int())
		default:
			f := in.Float()
			if f < 0 || f != math.Trunc(f) || f >= math.MaxUint64 {
				return lossy()
			}
			u = uint64(f)
		}
		if out.OverflowUint(u) {
			return lossy()
		}
		out.SetUint(u)
	}
	return out, nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
