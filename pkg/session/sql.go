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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS conversation_sessions (
    id VARCHAR(64) PRIMARY KEY,
    agent_id VARCHAR(255) NOT NULL,
    current_node_id VARCHAR(255) NOT NULL DEFAULT '',
    suspended BOOLEAN NOT NULL DEFAULT FALSE,
    status VARCHAR(32) NOT NULL,
    variables_json TEXT,
    outputs_json TEXT,
    context_json TEXT,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createSessionsAgentIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_conversation_sessions_agent ON conversation_sessions(agent_id)`

const createMessagesTableSQL = `
CREATE TABLE IF NOT EXISTS conversation_messages (
    session_id VARCHAR(64) NOT NULL,
    sequence_num BIGINT NOT NULL,
    sender VARCHAR(16) NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, sequence_num)
)`

// SQLRepository stores sessions in postgres, mysql or sqlite.
// Writes use a version column so concurrent servers cannot overwrite each
// other's progress.
type SQLRepository struct {
	db      *sql.DB
	dialect string
}

// NewSQLRepository creates the tables when missing.
func NewSQLRepository(ctx context.Context, db *sql.DB, dialect string) (*SQLRepository, error) {
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

	r := &SQLRepository{db: db, dialect: dialect}
	if err := r.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *SQLRepository) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	statements := []string{createSessionsTableSQL, createMessagesTableSQL}
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if r.dialect != "mysql" {
		statements = append(statements, createSessionsAgentIndexSQL)
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close is a no-op: the handle belongs to the DBPool.
func (r *SQLRepository) Close() error {
	return nil
}

func (r *SQLRepository) Create(ctx context.Context, s *Session) error {
	vars, outputs, snippets, err := encodeState(s)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.rebind(`INSERT INTO conversation_sessions
        (id, agent_id, current_node_id, suspended, status, variables_json, outputs_json, context_json, version, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.AgentID, s.CurrentNodeID, s.Suspended, string(s.Status), vars, outputs, snippets, s.Version,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SQLRepository) Load(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT
        id, agent_id, current_node_id, suspended, status, variables_json, outputs_json, context_json, version, created_at, updated_at
        FROM conversation_sessions WHERE id = ?`), id)

	var (
		s        Session
		status   string
		vars     sql.NullString
		outputs  sql.NullString
		snippets sql.NullString
	)
	err := row.Scan(&s.ID, &s.AgentID, &s.CurrentNodeID, &s.Suspended, &status, &vars, &outputs, &snippets,
		&s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s.Status = Status(status)
	if s.Variables, err = decodeMap(vars); err != nil {
		return nil, fmt.Errorf("failed to decode variables: %w", err)
	}
	if s.Outputs, err = decodeMap(outputs); err != nil {
		return nil, fmt.Errorf("failed to decode outputs: %w", err)
	}
	if snippets.Valid && snippets.String != "" {
		if err := json.Unmarshal([]byte(snippets.String), &s.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context: %w", err)
		}
	}
	return &s, nil
}

func (r *SQLRepository) Save(ctx context.Context, s *Session, messages []Message) error {
	vars, outputs, snippets, err := encodeState(s)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, r.rebind(`UPDATE conversation_sessions SET
        current_node_id = ?, suspended = ?, status = ?, variables_json = ?, outputs_json = ?,
        context_json = ?, version = ?, updated_at = ?
        WHERE id = ? AND version = ?`),
		s.CurrentNodeID, s.Suspended, string(s.Status), vars, outputs,
		snippets, s.Version+1, now, s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	} else if n == 0 {
		return r.missOrStale(ctx, tx, s)
	}

	if len(messages) > 0 {
		var last sql.NullInt64
		if err := tx.QueryRowContext(ctx, r.rebind(
			`SELECT MAX(sequence_num) FROM conversation_messages WHERE session_id = ?`), s.ID).Scan(&last); err != nil {
			return fmt.Errorf("failed to get sequence number: %w", err)
		}

		insert := r.rebind(`INSERT INTO conversation_messages (session_id, sequence_num, sender, text, created_at)
            VALUES (?, ?, ?, ?, ?)`)
		next := last.Int64 + 1
		for i := range messages {
			if _, err := tx.ExecContext(ctx, insert, s.ID, next, string(messages[i].Sender), messages[i].Text, now); err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
			messages[i].Sequence = next
			messages[i].Timestamp = now
			next++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.Version++
	s.UpdatedAt = now
	return nil
}

func (r *SQLRepository) missOrStale(ctx context.Context, tx *sql.Tx, s *Session) error {
	var stored int64
	err := tx.QueryRowContext(ctx, r.rebind(`SELECT version FROM conversation_sessions WHERE id = ?`), s.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to check session version: %w", err)
	}
	return fmt.Errorf("%w: stored=%d local=%d", ErrStaleSession, stored, s.Version)
}

func (r *SQLRepository) History(ctx context.Context, id string, limit int) ([]Message, error) {
	if _, err := r.Load(ctx, id); err != nil {
		return nil, err
	}

	query := `SELECT sender, text, sequence_num, created_at FROM conversation_messages
        WHERE session_id = ? ORDER BY sequence_num DESC`
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m      Message
			sender string
		)
		if err := rows.Scan(&sender, &m.Text, &m.Sequence, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = Sender(sender)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	// Newest first from the query; callers get sequence order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// rebind rewrites ? placeholders as $N for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
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

func encodeState(s *Session) (vars, outputs, snippets string, err error) {
	raw, err := json.Marshal(nonNil(s.Variables))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode variables: %w", err)
	}
	vars = string(raw)
	if raw, err = json.Marshal(nonNil(s.Outputs)); err != nil {
		return "", "", "", fmt.Errorf("failed to encode outputs: %w", err)
	}
	outputs = string(raw)
	if len(s.Context) > 0 {
		if raw, err = json.Marshal(s.Context); err != nil {
			return "", "", "", fmt.Errorf("failed to encode context: %w", err)
		}
		snippets = string(raw)
	}
	return vars, outputs, snippets, nil
}

func decodeMap(raw sql.NullString) (map[string]string, error) {
	out := map[string]string{}
	if !raw.Valid || raw.String == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func isDuplicateKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

var _ Repository = (*SQLRepository)(nil)
