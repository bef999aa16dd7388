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
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// unblockFunc is sent to a parked coroutine. Returning true keeps it parked.
type unblockFunc func(status string) (keepBlocked bool)

// coroutineState is one cooperatively scheduled thread of workflow code. Each
// coroutine runs on its own goroutine but only while the dispatcher hands it
// control, so exactly one coroutine of a run executes at any time.
type coroutineState struct {
	name         string
	dispatcher   *dispatcher
	aboutToBlock chan bool
	unblock      chan unblockFunc
	keptBlocked  bool
	closed       atomic.Bool
	blocked      atomic.Bool
	panicError   *PanicError
}

func (s *coroutineState) initialYield(status string) {
	if s.blocked.Swap(true) {
		panic("coroutine " + s.name + " is already blocked")
	}
	keepBlocked := true
	for keepBlocked {
		f := <-s.unblock
		keepBlocked = f(status)
	}
	s.blocked.Store(false)
}

// yield parks the coroutine until the dispatcher runs it again. The caller
// re-checks its condition after yield returns and calls unblocked once it can
// make progress.
func (s *coroutineState) yield(status string) {
	d := s.dispatcher
	if d.callbackDepth > 0 {
		panic(fmt.Sprintf("blocking call (%s) inside a signal handler or future callback; handlers must not block", status))
	}
	if d.running != s {
		panic(fmt.Sprintf("blocking call (%s) outside of the workflow coroutine that owns the context", status))
	}
	s.aboutToBlock <- true
	s.initialYield(status)
	s.keptBlocked = true
}

func (s *coroutineState) unblocked() {
	s.keptBlocked = false
}

func (s *coroutineState) call() {
	s.unblock <- func(string) bool {
		return false
	}
	<-s.aboutToBlock
}

func (s *coroutineState) close() {
	s.closed.Store(true)
	s.aboutToBlock <- true
}

func (s *coroutineState) exit() {
	if !s.closed.Load() {
		s.unblock <- func(string) bool {
			runtime.Goexit()
			return true
		}
	}
}

// dispatcher owns the coroutines of one workflow run and drives them until
// every one of them is blocked.
type dispatcher struct {
	mu            sync.Mutex
	sequence      int
	coroutines    []*coroutineState
	executing     bool
	closed        bool
	running       *coroutineState
	callbackDepth int
}

func newDispatcher() *dispatcher {
	return &dispatcher{}
}

func (d *dispatcher) newCoroutine(name string, fn func(state *coroutineState)) *coroutineState {
	d.sequence++
	if name == "" {
		name = fmt.Sprintf("%d", d.sequence)
	}
	state := &coroutineState{
		name:         name,
		dispatcher:   d,
		aboutToBlock: make(chan bool, 1),
		unblock:      make(chan unblockFunc),
	}
	d.coroutines = append(d.coroutines, state)

	go func(crt *coroutineState) {
		defer crt.close()
		defer func() {
			if r := recover(); r != nil {
				crt.panicError = newPanicError(r, string(debug.Stack()))
			}
		}()
		crt.initialYield("created")
		fn(crt)
	}(state)

	return state
}

// ExecuteUntilAllBlocked runs coroutines until a full pass makes no progress.
// A panic in any coroutine stops the pass and is returned as a *PanicError.
func (d *dispatcher) ExecuteUntilAllBlocked() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		panic("dispatcher is closed")
	}
	if d.executing {
		d.mu.Unlock()
		panic("ExecuteUntilAllBlocked called while already executing, possibly from a coroutine")
	}
	d.executing = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.executing = false
		d.mu.Unlock()
	}()

	allBlocked := false
	for !allBlocked {
		lastSequence := d.sequence
		allBlocked = true
		for i := 0; i < len(d.coroutines); i++ {
			c := d.coroutines[i]
			if !c.closed.Load() {
				d.running = c
				c.call()
				d.running = nil
			}
			if c.closed.Load() {
				d.coroutines = append(d.coroutines[:i], d.coroutines[i+1:]...)
				i--
				if c.panicError != nil {
					p := c.panicError
					c.panicError = nil
					return p
				}
				allBlocked = false
				continue
			}
			allBlocked = allBlocked && c.keptBlocked
		}
		allBlocked = allBlocked && lastSequence == d.sequence
	}
	return nil
}

// IsDone reports whether every coroutine has finished.
func (d *dispatcher) IsDone() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.coroutines) == 0
}

// Close terminates all parked coroutines. It must not be called while
// ExecuteUntilAllBlocked is running.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	for _, c := range d.coroutines {
		c.exit()
	}
	d.coroutines = nil
}

// inCallback runs fn with blocking disabled.
func (d *dispatcher) inCallback(fn func()) {
	d.callbackDepth++
	defer func() { d.callbackDepth-- }()
	fn()
}
