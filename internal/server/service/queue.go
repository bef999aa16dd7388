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

package service

// taskQueue is a FIFO of tasks for one task list. ready is closed and
// replaced every time an item is pushed so pollers can wait on it.
type taskQueue[T any] struct {
	items []T
	ready chan struct{}
}

func newTaskQueue[T any]() *taskQueue[T] {
	return &taskQueue[T]{ready: make(chan struct{})}
}

func (q *taskQueue[T]) push(item T) {
	q.items = append(q.items, item)
	close(q.ready)
	q.ready = make(chan struct{})
}

func (q *taskQueue[T]) pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

func (q *taskQueue[T]) len() int {
	return len(q.items)
}
