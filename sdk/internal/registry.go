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
	"context"
	"fmt"
	"reflect"
	"sync"
)

var (
	contextType         = reflect.TypeOf((*context.Context)(nil)).Elem()
	workflowContextType = reflect.TypeOf((*Context)(nil)).Elem()
	errorType           = reflect.TypeOf((*error)(nil)).Elem()
)

func newInMemoryRegistry() *hashMapRegistry {
	return &hashMapRegistry{
		entries: make(map[string]any),
	}
}

type hashMapRegistry struct {
	mu      sync.RWMutex
	entries map[string]any
}

func (m *hashMapRegistry) get(k string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[k]
	if !ok {
		return nil, fmt.Errorf("key %v have no value", k)
	}

	return entry, nil
}

func (m *hashMapRegistry) set(k string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[k]; ok {
		return fmt.Errorf("key %v already registered", k)
	}

	fnType := reflect.TypeOf(v)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("entry '%s' is not a function", k)
	}

	m.entries[k] = v

	return nil
}

func (m *hashMapRegistry) size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries))
}

type (
	// RegisterWorkflowOptions override the name a workflow is registered
	// under. The default is the function's full name.
	RegisterWorkflowOptions struct {
		Name string
	}

	// RegisterActivityOptions override the name an activity is registered
	// under. The default is the function's full name.
	RegisterActivityOptions struct {
		Name string
	}
)

// registry maps workflow and activity names onto their functions.
type registry struct {
	workflows  *hashMapRegistry
	activities *hashMapRegistry

	mu      sync.RWMutex
	aliases map[string]string
}

func newRegistry() *registry {
	return &registry{
		workflows:  newInMemoryRegistry(),
		activities: newInMemoryRegistry(),
		aliases:    make(map[string]string),
	}
}

func (r *registry) registerWorkflow(fn any, options ...RegisterWorkflowOptions) error {
	if err := validateFunction(fn, workflowContextType); err != nil {
		return fmt.Errorf("register workflow: %w", err)
	}
	var name string
	if len(options) > 0 {
		name = options[0].Name
	}
	return r.register(r.workflows, fn, name)
}

func (r *registry) registerActivity(fn any, options ...RegisterActivityOptions) error {
	if err := validateFunction(fn, contextType); err != nil {
		return fmt.Errorf("register activity: %w", err)
	}
	var name string
	if len(options) > 0 {
		name = options[0].Name
	}
	return r.register(r.activities, fn, name)
}

func (r *registry) register(kv *hashMapRegistry, fn any, name string) error {
	fnName, err := extractFullFunctionName(fn)
	if err != nil {
		return err
	}
	if name == "" {
		name = fnName
	}
	if err := kv.set(name, fn); err != nil {
		return err
	}
	r.mu.Lock()
	r.aliases[fnName] = name
	r.mu.Unlock()
	return nil
}

func (r *registry) getWorkflow(name string) (any, error) {
	fn, err := r.workflows.get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotRegistered, name)
	}
	return fn, nil
}

func (r *registry) getActivity(name string) (any, error) {
	fn, err := r.activities.get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrActivityNotRegistered, name)
	}
	return fn, nil
}

// workflowName resolves a workflow function or name to the name it is
// registered under. Unregistered functions resolve to their full name so a
// workflow can start children hosted by other workers.
func (r *registry) workflowName(fn any) (string, error) {
	return r.nameOf(fn)
}

func (r *registry) activityName(fn any) (string, error) {
	return r.nameOf(fn)
}

func (r *registry) nameOf(fn any) (string, error) {
	if name, ok := fn.(string); ok {
		if name == "" {
			return "", fmt.Errorf("%w: empty name", ErrInvalidFunction)
		}
		return name, nil
	}
	fnName, err := extractFullFunctionName(fn)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFunction, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if alias, ok := r.aliases[fnName]; ok {
		return alias, nil
	}
	return fnName, nil
}

// validateFunction checks that fn takes firstParam first and returns either
// error or (T, error).
func validateFunction(fn any, firstParam reflect.Type) error {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("%w: expected a function, got %T", ErrInvalidFunction, fn)
	}
	if fnType.NumIn() < 1 || fnType.In(0) != firstParam {
		return fmt.Errorf("%w: first parameter must be %v", ErrInvalidFunction, firstParam)
	}
	switch fnType.NumOut() {
	case 1, 2:
	default:
		return fmt.Errorf("%w: must return error or (value, error)", ErrInvalidFunction)
	}
	if fnType.Out(fnType.NumOut()-1) != errorType {
		return fmt.Errorf("%w: last return value must be error", ErrInvalidFunction)
	}
	return nil
}
