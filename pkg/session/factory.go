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

package session

import (
	"context"
	"fmt"

	"github.com/kadirpekel/convograph/pkg/config"
)

// NewRepositoryFromConfig returns the repository selected by cfg.Sessions.
// SQL backends draw their handle from pool.
//
//	databases:
//	  main:
//	    driver: sqlite
//	    database: ./convograph.db
//
//	sessions:
//	  backend: sql
//	  database: main
func NewRepositoryFromConfig(ctx context.Context, cfg *config.Config, pool *config.DBPool) (Repository, error) {
	if !cfg.Sessions.IsSQL() {
		return NewMemoryRepository(), nil
	}
	if pool == nil {
		return nil, fmt.Errorf("DBPool is required for SQL session backend")
	}

	dbCfg, err := cfg.Database(cfg.Sessions.Database)
	if err != nil {
		return nil, err
	}
	db, err := pool.Get(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	return NewSQLRepository(ctx, db, dbCfg.Dialect())
}
