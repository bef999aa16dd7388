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

package types

import "fmt"

// Mode selects how the server logs: colourised console output in debug, an
// OpenTelemetry pipeline in release.
type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

func (m Mode) Valid() bool {
	return m == ModeDebug || m == ModeRelease
}

// UnmarshalText rejects unknown modes when MODE is parsed from the environment.
func (m *Mode) UnmarshalText(text []byte) error {
	mode := Mode(text)
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q, want debug or release", text)
	}
	*m = mode
	return nil
}
