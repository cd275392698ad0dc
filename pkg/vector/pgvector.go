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

package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorConfig configures the PostgreSQL pgvector provider.
type PgVectorConfig struct {
	URL      string
	Table    string
	MaxConns int
}

// PgVectorProvider stores all collections in one table keyed by a
// collection column. The vector dimension is fixed by the first
// EnsureCollection call.
type PgVectorProvider struct {
	pool  *pgxpool.Pool
	table string

	mu      sync.Mutex
	created bool
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewPgVectorProvider(ctx context.Context, cfg PgVectorConfig) (*PgVectorProvider, error) {
	table := cfg.Table
	if table == "" {
		table = "knowledge"
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PgVectorProvider{pool: pool, table: table}, nil
}

func (p *PgVectorProvider) Name() string {
	return "pgvector"
}

func schemaStatements(table string, dimension int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`, table, dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)", table, table),
	}
}

func (p *PgVectorProvider) EnsureCollection(ctx context.Context, _ string, dimension int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.created {
		return nil
	}
	for _, stmt := range schemaStatements(p.table, dimension) {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize pgvector schema: %w", err)
		}
	}
	p.created = true
	return nil
}

func (p *PgVectorProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`INSERT INTO %s (collection, id, content, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (collection, id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`, p.table)

	for _, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		if _, err := tx.Exec(ctx, query, collection, doc.ID, doc.Content, meta, pgvector.NewVector(doc.Vector)); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *PgVectorProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3`, p.table)

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), collection, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r          Result
			rawMeta    []byte
			similarity float64
		)
		if err := rows.Scan(&r.ID, &r.Content, &rawMeta, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		r.Score = float32(similarity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return results, nil
}

func (p *PgVectorProvider) DeleteCollection(ctx context.Context, collection string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE collection = $1", p.table)
	if _, err := p.pool.Exec(ctx, query, collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (p *PgVectorProvider) Close() error {
	p.pool.Close()
	return nil
}

var _ Provider = (*PgVectorProvider)(nil)
