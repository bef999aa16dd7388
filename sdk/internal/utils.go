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
	"runtime"
	"strings"

	"github.com/ngnhng/durableflow/api"
)

// extractFullFunctionName extracts the function's name with the preceding packages details.
func extractFullFunctionName(fn any) (string, error) {
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return "", fmt.Errorf("fn is not of function type")
	}
	fnObj := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if fnObj == nil {
		return "", fmt.Errorf("could not retrieve function metadata")
	}

	return fnObj.Name(), nil
}

// splitResults separates the values returned by a workflow or activity
// function into the result value and the trailing error.
func splitResults(results []reflect.Value) (any, error) {
	if len(results) == 0 {
		return nil, nil
	}
	var err error
	last := results[len(results)-1]
	if last.Type().Implements(errorType) && !last.IsNil() {
		err = last.Interface().(error)
	}
	if len(results) < 2 {
		return nil, err
	}
	return results[0].Interface(), err
}

// describeCommands returns a compact representation of cmds for logs and
// non-determinism reports.
func describeCommands(cmds []api.Command) string {
	if len(cmds) == 0 {
		return "[]"
	}
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		if c.Name != "" {
			parts[i] = fmt.Sprintf("%s(%d,%s)", c.Kind, c.CorrelationID, c.Name)
		} else {
			parts[i] = fmt.Sprintf("%s(%d)", c.Kind, c.CorrelationID)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}
