// Copyright 2025 Kadir Pekel
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

package agentstore

import (
	"context"
	"fmt"

	"github.com/kadirpekel/convograph/pkg/config"
)

// NewFromConfig returns the repository selected by cfg.Agents. A watched
// directory keeps reloading until ctx is done.
func NewFromConfig(ctx context.Context, cfg *config.Config, pool *config.DBPool) (Repository, error) {
	agents := cfg.Agents
	switch agents.Backend {
	case config.StorageBackendInMemory:
		return NewMemory(), nil

	case config.StorageBackendDirectory:
		dir, err := NewDirectory(agents.Path)
		if err != nil {
			return nil, err
		}
		if config.BoolValue(agents.Watch, true) {
			if err := dir.Watch(ctx); err != nil {
				return nil, err
			}
		}
		return dir, nil

	case config.StorageBackendSQL:
		if pool == nil {
			return nil, fmt.Errorf("DBPool is required for SQL agent backend")
		}
		dbCfg, err := cfg.Database(agents.Database)
		if err != nil {
			return nil, err
		}
		db, err := pool.Get(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		return NewSQL(ctx, db, dbCfg.Dialect(), agents.CacheTTL)

	default:
		return nil, fmt.Errorf("unsupported agents backend: %s", agents.Backend)
	}
}
