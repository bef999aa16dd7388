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
	"testing"

	"github.com/ngnhng/durableflow/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSignalDispatcher(t *testing.T) (*executionContext, *signalDispatcher) {
	env := newExecutionContext(newRegistry(), newDataConverter(nil), testLogger)
	t.Cleanup(env.close)
	return env, env.signals
}

func encodeTest(t *testing.T, v any) api.Payload {
	p, err := newDataConverter(nil).encode(v)
	require.NoError(t, err)
	return p
}

func TestSignals_DuplicateHandler(t *testing.T) {
	_, d := newTestSignalDispatcher(t)
	require.NoError(t, d.register("size", func(Value) {}))
	assert.ErrorIs(t, d.register("size", func(Value) {}), ErrDuplicateSignalHandler)
	assert.Error(t, d.register("", func(Value) {}))
}

func TestSignals_BufferedInArrivalOrder(t *testing.T) {
	_, d := newTestSignalDispatcher(t)
	d.deliver("color", encodeTest(t, "red"))
	d.deliver("size", encodeTest(t, "L"))
	d.deliver("color", encodeTest(t, "blue"))

	var colors []string
	require.NoError(t, d.register("color", func(v Value) {
		var s string
		require.NoError(t, v.Get(&s))
		colors = append(colors, s)
	}))
	assert.Equal(t, []string{"red", "blue"}, colors)
	require.Len(t, d.buffered, 1)
	assert.Equal(t, "size", d.buffered[0].name)
}

func TestSignals_AnyHandlerCatchesUnnamed(t *testing.T) {
	_, d := newTestSignalDispatcher(t)
	var named, caught []string
	require.NoError(t, d.register("size", func(Value) { named = append(named, "size") }))
	require.NoError(t, d.registerAny(func(name string, _ Value) { caught = append(caught, name) }))
	assert.ErrorIs(t, d.registerAny(func(string, Value) {}), ErrDuplicateSignalHandler)

	d.deliver("size", nil)
	d.deliver("email", nil)
	assert.Equal(t, []string{"size"}, named)
	assert.Equal(t, []string{"email"}, caught)
}

func TestSignals_ChannelReceiveAsync(t *testing.T) {
	ch := &signalChannel{name: "size", converter: newDataConverter(nil)}
	var v string
	ok, err := ch.ReceiveAsync(&v)
	require.NoError(t, err)
	assert.False(t, ok)

	ch.queue = append(ch.queue, encodeTest(t, "42"))
	assert.Equal(t, 1, ch.Len())
	ok, err = ch.ReceiveAsync(&v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Equal(t, 0, ch.Len())
}
