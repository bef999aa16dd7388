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

package workflow

import (
	"github.com/ngnhng/durableflow/sdk/internal"
)

// SignalHandler handles one signal. Handlers run synchronously while history
// is applied; they may resolve or cancel futures but must not block.
type SignalHandler = internal.SignalHandler

// AnySignalHandler receives every signal that has no named handler.
type AnySignalHandler = internal.AnySignalHandler

// ReceiveChannel delivers the signals of one name to blocking readers.
type ReceiveChannel = internal.ReceiveChannel

// SetSignalHandler registers handler for the named signal. Signals that
// arrived before the handler are delivered to it in arrival order.
// Registering a second handler for a name returns ErrDuplicateSignalHandler.
func SetSignalHandler(ctx Context, name string, handler SignalHandler) error {
	return internal.SetSignalHandler(ctx, name, handler)
}

// SetAnySignalHandler registers a catch-all handler.
func SetAnySignalHandler(ctx Context, handler AnySignalHandler) error {
	return internal.SetAnySignalHandler(ctx, handler)
}

// GetSignalChannel returns a channel that queues the signals of name.
func GetSignalChannel(ctx Context, name string) ReceiveChannel {
	return internal.GetSignalChannel(ctx, name)
}
