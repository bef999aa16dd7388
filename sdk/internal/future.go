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

type futureState int

const (
	futurePending futureState = iota
	futureSucceeded
	futureFailed
	futureCancelled
)

func (s futureState) String() string {
	switch s {
	case futurePending:
		return "pending"
	case futureSucceeded:
		return "succeeded"
	case futureFailed:
		return "failed"
	case futureCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Future is the result of an asynchronous workflow operation.
type Future interface {
	// Get blocks the calling coroutine until the future is resolved, then
	// stores the value into valuePtr or returns the carried error. valuePtr
	// may be nil.
	Get(ctx Context, valuePtr any) error

	// IsReady reports whether the future has left the pending state.
	IsReady() bool

	// OnSuccess registers a callback that fires once with the value. If the
	// future already succeeded the callback fires before OnSuccess returns.
	OnSuccess(cb func(Value))

	// OnFailure registers a callback that fires once with the error. A
	// cancelled future fires it with a *CanceledError.
	OnFailure(cb func(error))

	// Cancel moves a pending future to cancelled and asks the service to stop
	// the underlying operation. It is a no-op on a resolved future.
	Cancel()

	IsCancelled() bool
}

// ChildWorkflowFuture also exposes the future of the child start.
type ChildWorkflowFuture interface {
	Future

	// GetChildWorkflowExecution resolves with the child's WorkflowExecution
	// once the service reports it started.
	GetChildWorkflowExecution() Future
}

// Settable resolves a Future.
type Settable interface {
	Set(value any, err error) error
	SetValue(value any) error
	SetError(err error) error
}

// Value is the result carried by a succeeded Future.
type Value struct {
	raw       any
	converter *dataConverter
}

// Get decodes the value into valuePtr.
func (v Value) Get(valuePtr any) error {
	if v.converter == nil {
		v.converter = newDataConverter(nil)
	}
	return v.converter.assign(v.raw, valuePtr)
}

// HasValue reports whether a non-empty value is present.
func (v Value) HasValue() bool {
	if p, ok := v.raw.(api.Payload); ok {
		return len(p) > 0
	}
	return v.raw != nil
}

var (
	_ Future   = (*futureImpl)(nil)
	_ Settable = (*futureImpl)(nil)
)

type futureImpl struct {
	state      futureState
	value      any
	err        error
	converter  *dataConverter
	dispatcher *dispatcher

	successCallbacks []func(Value)
	failureCallbacks []func(error)

	// cancelFn asks the command buffer to cancel the operation backing the
	// future. It is nil for futures created by workflow code.
	cancelFn func()
}

func newFutureImpl(env *executionContext) *futureImpl {
	f := &futureImpl{}
	if env != nil {
		f.converter = env.converter
		f.dispatcher = env.dispatcher
	} else {
		f.converter = newDataConverter(nil)
	}
	return f
}

// NewFuture creates a future and the Settable that resolves it.
func NewFuture(ctx Context) (Future, Settable) {
	f := newFutureImpl(getEnv(ctx))
	return f, f
}

func (f *futureImpl) Get(ctx Context, valuePtr any) error {
	if f.state == futurePending {
		state := getState(ctx)
		for f.state == futurePending {
			state.yield("blocked on Future.Get")
		}
		state.unblocked()
	}
	if f.err != nil {
		return f.err
	}
	return f.converter.assign(f.value, valuePtr)
}

func (f *futureImpl) IsReady() bool {
	return f.state != futurePending
}

func (f *futureImpl) IsCancelled() bool {
	return f.state == futureCancelled
}

func (f *futureImpl) OnSuccess(cb func(Value)) {
	switch f.state {
	case futurePending:
		f.successCallbacks = append(f.successCallbacks, cb)
	case futureSucceeded:
		v := Value{raw: f.value, converter: f.converter}
		f.invoke(func() { cb(v) })
	}
}

func (f *futureImpl) OnFailure(cb func(error)) {
	switch f.state {
	case futurePending:
		f.failureCallbacks = append(f.failureCallbacks, cb)
	case futureFailed, futureCancelled:
		err := f.err
		f.invoke(func() { cb(err) })
	}
}

func (f *futureImpl) Cancel() {
	if f.state != futurePending {
		return
	}
	f.state = futureCancelled
	f.err = NewCanceledError("")
	if f.cancelFn != nil {
		f.cancelFn()
	}
	f.fire()
}

func (f *futureImpl) Set(value any, err error) error {
	switch f.state {
	case futureCancelled:
		return nil
	case futureSucceeded, futureFailed:
		return ErrAlreadyResolved
	}
	if err != nil {
		f.state = futureFailed
		f.err = err
	} else {
		f.state = futureSucceeded
		f.value = value
	}
	f.fire()
	return nil
}

func (f *futureImpl) SetValue(value any) error {
	return f.Set(value, nil)
}

func (f *futureImpl) SetError(err error) error {
	if err == nil {
		err = NewApplicationError("future failed with a nil error", "", true, nil)
	}
	return f.Set(nil, err)
}

func (f *futureImpl) fire() {
	success, failure := f.successCallbacks, f.failureCallbacks
	f.successCallbacks, f.failureCallbacks = nil, nil
	if f.state == futureSucceeded {
		v := Value{raw: f.value, converter: f.converter}
		for _, cb := range success {
			f.invoke(func() { cb(v) })
		}
		return
	}
	for _, cb := range failure {
		f.invoke(func() { cb(f.err) })
	}
}

func (f *futureImpl) invoke(fn func()) {
	if f.dispatcher == nil {
		fn()
		return
	}
	f.dispatcher.inCallback(fn)
}

type childWorkflowFutureImpl struct {
	*futureImpl
	execution *futureImpl
}

func (f *childWorkflowFutureImpl) GetChildWorkflowExecution() Future {
	return f.execution
}

// Cancel cancels the child result and, if the start was not yet reported,
// the execution future as well.
func (f *childWorkflowFutureImpl) Cancel() {
	f.futureImpl.Cancel()
	if !f.execution.IsReady() {
		_ = f.execution.Set(nil, NewCanceledError("child workflow cancelled before start"))
	}
}

// failedFuture returns a future already failed with err.
func failedFuture(env *executionContext, err error) *futureImpl {
	f := newFutureImpl(env)
	_ = f.SetError(err)
	return f
}
