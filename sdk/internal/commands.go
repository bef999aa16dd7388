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

import "github.com/ngnhng/durableflow/api"

type commandState int

const (
	// commandCreated commands belong to the current decision and have not
	// been acknowledged by history yet.
	commandCreated commandState = iota
	// commandRecorded commands were matched against a recorded history event.
	commandRecorded
	// commandDropped commands were cancelled before they were sent.
	commandDropped
)

type commandEntry struct {
	command api.Command
	state   commandState

	// cancelled is set once a cancel command targeting this entry exists.
	cancelled bool
}

// commandBuffer collects the commands produced by workflow code in insertion
// order and assigns correlation ids.
type commandBuffer struct {
	entries           []*commandEntry
	byCorrelationID   map[int64]*commandEntry
	lastCorrelationID int64
}

func newCommandBuffer() *commandBuffer {
	return &commandBuffer{byCorrelationID: make(map[int64]*commandEntry)}
}

func (b *commandBuffer) nextCorrelationID() int64 {
	b.lastCorrelationID++
	return b.lastCorrelationID
}

// add appends cmd. Commands without a correlation id get the next one.
func (b *commandBuffer) add(cmd api.Command) *commandEntry {
	if cmd.CorrelationID == 0 {
		cmd.CorrelationID = b.nextCorrelationID()
	}
	e := &commandEntry{command: cmd}
	b.entries = append(b.entries, e)
	if _, ok := b.byCorrelationID[cmd.CorrelationID]; !ok {
		b.byCorrelationID[cmd.CorrelationID] = e
	}
	return e
}

// cancel requests cancellation of the command with the given correlation id.
// A command that was not sent yet is dropped from the buffer. Otherwise a
// single cancel command of the given kind is appended; repeated calls are
// no-ops. It reports whether a cancel command was emitted.
func (b *commandBuffer) cancel(correlationID int64, kind api.CommandKind) bool {
	target, ok := b.byCorrelationID[correlationID]
	if !ok || target.cancelled || target.state == commandDropped {
		return false
	}
	target.cancelled = true
	if target.state == commandCreated {
		target.state = commandDropped
		return false
	}
	b.add(api.Command{
		Kind:          kind,
		CorrelationID: correlationID,
		Name:          target.command.Name,
		Execution:     target.command.Execution,
	})
	return true
}

// hasTerminal reports whether a workflow-closing command is buffered.
func (b *commandBuffer) hasTerminal() bool {
	for _, e := range b.entries {
		if e.state != commandDropped && e.command.IsTerminal() {
			return true
		}
	}
	return false
}

// created returns the commands of the current decision in insertion order.
func (b *commandBuffer) created() []*commandEntry {
	var out []*commandEntry
	for _, e := range b.entries {
		if e.state == commandCreated {
			out = append(out, e)
		}
	}
	return out
}

// commands returns the commands of the current decision.
func (b *commandBuffer) commands() []api.Command {
	entries := b.created()
	out := make([]api.Command, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.command)
	}
	return out
}
