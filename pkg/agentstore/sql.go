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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/convograph/pkg/graph"
)

const createAgentsTableSQL = `
CREATE TABLE IF NOT EXISTS agents (
    id VARCHAR(128) PRIMARY KEY,
    document TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
)`

type cachedGraph struct {
	graph   *graph.AgentGraph
	expires time.Time
}

// SQL reads published graphs from the agents table. Parsed graphs are
// cached for ttl and concurrent misses for one id share a single query.
type SQL struct {
	db      *sql.DB
	dialect string
	ttl     time.Duration

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedGraph
	now   func() time.Time
}

// NewSQL creates the agents table when missing. A zero ttl disables the
// cache.
func NewSQL(ctx context.Context, db *sql.DB, dialect string, ttl time.Duration) (*SQL, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	case "sqlite3":
		dialect = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	if _, err := db.ExecContext(ctx, createAgentsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create agents table: %w", err)
	}
	return &SQL{
		db:      db,
		dialect: dialect,
		ttl:     ttl,
		cache:   make(map[string]cachedGraph),
		now:     time.Now,
	}, nil
}

func (s *SQL) Load(ctx context.Context, agentID string) (*graph.AgentGraph, error) {
	if g, ok := s.cached(agentID); ok {
		return g, nil
	}

	v, err, _ := s.group.Do(agentID, func() (any, error) {
		g, err := s.fetch(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if s.ttl > 0 {
			s.mu.Lock()
			s.cache[agentID] = cachedGraph{graph: g, expires: s.now().Add(s.ttl)}
			s.mu.Unlock()
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.AgentGraph), nil
}

func (s *SQL) cached(agentID string) (*graph.AgentGraph, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[agentID]
	if !ok || s.now().After(entry.expires) {
		return nil, false
	}
	return entry.graph, true
}

func (s *SQL) fetch(ctx context.Context, agentID string) (*graph.AgentGraph, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT document FROM agents WHERE id = ?`), agentID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %s: %w", agentID, err)
	}

	g, err := graph.Parse([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored agent %s: %w", agentID, err)
	}
	return g, nil
}

// Publish validates g and stores it, replacing an earlier version.
func (s *SQL) Publish(ctx context.Context, g *graph.AgentGraph) error {
	if err := graph.Validate(g); err != nil {
		return err
	}
	doc, err := json.Marshal(graph.ToDocument(g))
	if err != nil {
		return fmt.Errorf("failed to encode agent %s: %w", g.ID, err)
	}

	var upsert string
	switch s.dialect {
	case "mysql":
		upsert = `INSERT INTO agents (id, document, version, updated_at) VALUES (?, ?, ?, ?)
            ON DUPLICATE KEY UPDATE document = VALUES(document), version = VALUES(version), updated_at = VALUES(updated_at)`
	default:
		upsert = `INSERT INTO agents (id, document, version, updated_at) VALUES (?, ?, ?, ?)
            ON CONFLICT (id) DO UPDATE SET document = excluded.document, version = excluded.version, updated_at = excluded.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(upsert), g.ID, string(doc), g.Version, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to publish agent %s: %w", g.ID, err)
	}

	s.mu.Lock()
	delete(s.cache, g.ID)
	s.mu.Unlock()
	return nil
}

func (s *SQL) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close is a no-op: the handle belongs to the DBPool.
func (s *SQL) Close() error { return nil }

func (s *SQL) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

var _ Repository = (*SQL)(nil)
