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


package app

import (
	"context"
	"fmt"

	jetstreamx "github.com/ngnhng/durableflow/internal/server/infra/jetstream"
)

// ensureStreams creates the history stream that mirrors every appended
// event when publishing is enabled.
func (m *Manager) ensureStreams(ctx context.Context) error {
	if !m.cfg.Server.PublishHistory {
		return nil
	}
	cfg := jetstreamx.HistoryStreamConfig()
	if _, err := m.conn.EnsureStream(ctx, cfg); err != nil {
		m.logger.Error("error ensuring history stream", "stream", cfg.Name, "error", err)
		return fmt.Errorf("failed to ensure workflow history stream: %w", err)
	}
	return nil
}
