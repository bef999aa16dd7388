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

	"github.com/ngnhng/durableflow/api"
)

// SignalHandler handles one signal. Handlers run synchronously while history
// is applied and must not block.
type SignalHandler func(input Value)

// AnySignalHandler receives every signal that has no named handler.
type AnySignalHandler func(name string, input Value)

type bufferedSignal struct {
	name  string
	input api.Payload
}

// signalDispatcher routes incoming signals to handlers. Signals that arrive
// before a matching handler exists are buffered in arrival order and flushed
// when one registers.
type signalDispatcher struct {
	env        *executionContext
	handlers   map[string]SignalHandler
	anyHandler AnySignalHandler
	buffered   []bufferedSignal
}

func newSignalDispatcher(env *executionContext) *signalDispatcher {
	return &signalDispatcher{
		env:      env,
		handlers: make(map[string]SignalHandler),
	}
}

func (d *signalDispatcher) register(name string, h SignalHandler) error {
	if name == "" {
		return fmt.Errorf("signal name must not be empty")
	}
	if _, ok := d.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSignalHandler, name)
	}
	d.handlers[name] = h
	d.flush()
	return nil
}

func (d *signalDispatcher) registerAny(h AnySignalHandler) error {
	if d.anyHandler != nil {
		return fmt.Errorf("%w: any signal", ErrDuplicateSignalHandler)
	}
	d.anyHandler = h
	d.flush()
	return nil
}

func (d *signalDispatcher) deliver(name string, input api.Payload) {
	if !d.dispatch(name, input) {
		d.buffered = append(d.buffered, bufferedSignal{name: name, input: input})
	}
}

func (d *signalDispatcher) dispatch(name string, input api.Payload) bool {
	v := Value{raw: input, converter: d.env.converter}
	if h, ok := d.handlers[name]; ok {
		d.env.dispatcher.inCallback(func() { h(v) })
		return true
	}
	if d.anyHandler != nil {
		d.env.dispatcher.inCallback(func() { d.anyHandler(name, v) })
		return true
	}
	return false
}

func (d *signalDispatcher) flush() {
	if len(d.buffered) == 0 {
		return
	}
	pending := d.buffered
	d.buffered = nil
	for _, s := range pending {
		if !d.dispatch(s.name, s.input) {
			d.buffered = append(d.buffered, s)
		}
	}
}

// ReceiveChannel delivers the signals of one name to blocking readers.
type ReceiveChannel interface {
	// Receive blocks until a signal arrives and decodes it into valuePtr.
	Receive(ctx Context, valuePtr any) error

	// ReceiveAsync decodes the oldest pending signal into valuePtr without
	// blocking. It reports whether a signal was available.
	ReceiveAsync(valuePtr any) (ok bool, err error)

	Len() int
}

type signalChannel struct {
	name      string
	queue     []api.Payload
	converter *dataConverter
}

func (c *signalChannel) Receive(ctx Context, valuePtr any) error {
	if len(c.queue) == 0 {
		state := getState(ctx)
		for len(c.queue) == 0 {
			state.yield("blocked on signal channel " + c.name)
		}
		state.unblocked()
	}
	ok, err := c.ReceiveAsync(valuePtr)
	if !ok {
		return fmt.Errorf("signal channel %s: no value after wake up", c.name)
	}
	return err
}

func (c *signalChannel) ReceiveAsync(valuePtr any) (bool, error) {
	if len(c.queue) == 0 {
		return false, nil
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	return true, c.converter.decode(next, valuePtr)
}

func (c *signalChannel) Len() int {
	return len(c.queue)
}

// SetSignalHandler registers handler for the named signal.
func SetSignalHandler(ctx Context, name string, handler SignalHandler) error {
	return getEnv(ctx).signals.register(name, handler)
}

// SetAnySignalHandler registers a catch-all handler for signals without a
// named handler.
func SetAnySignalHandler(ctx Context, handler AnySignalHandler) error {
	return getEnv(ctx).signals.registerAny(handler)
}

// GetSignalChannel returns the channel for the named signal, registering its
// handler on first use.
func GetSignalChannel(ctx Context, name string) ReceiveChannel {
	env := getEnv(ctx)
	if ch, ok := env.signalChannels[name]; ok {
		return ch
	}
	ch := &signalChannel{name: name, converter: env.converter}
	env.signalChannels[name] = ch
	err := env.signals.register(name, func(v Value) {
		p, _ := v.raw.(api.Payload)
		ch.queue = append(ch.queue, p)
	})
	if err != nil {
		panic(fmt.Errorf("signal channel %s: %w", name, err))
	}
	return ch
}
