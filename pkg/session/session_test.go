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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/convograph/pkg/config"
)

func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	cfg := &config.DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "sessions.db")}
	cfg.SetDefaults()

	pool := config.NewDBPool()
	t.Cleanup(func() { _ = pool.Close() })

	db, err := pool.Get(context.Background(), cfg)
	require.NoError(t, err)

	sqlRepo, err := NewSQLRepository(context.Background(), db, cfg.Dialect())
	require.NoError(t, err)

	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": sqlRepo,
	}
}

func TestRepository_CreateLoadSave(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New("support", map[string]string{"name": "Ada"})
			require.NoError(t, repo.Create(ctx, s))

			loaded, err := repo.Load(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, "support", loaded.AgentID)
			assert.Equal(t, StatusActive, loaded.Status)
			assert.Equal(t, "Ada", loaded.Variables["name"])
			assert.Zero(t, loaded.Version)

			loaded.CurrentNodeID = "ask"
			loaded.Suspended = true
			loaded.Outputs["greet"] = "Hello"
			loaded.Context = []string{"Refunds take 5 days."}
			msgs := []Message{AgentMessage("Hello"), AgentMessage("What is your order?")}
			require.NoError(t, repo.Save(ctx, loaded, msgs))
			assert.Equal(t, int64(1), loaded.Version)
			assert.Equal(t, int64(1), msgs[0].Sequence)
			assert.Equal(t, int64(2), msgs[1].Sequence)
			assert.False(t, msgs[0].Timestamp.IsZero())

			again, err := repo.Load(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, "ask", again.CurrentNodeID)
			assert.True(t, again.Suspended)
			assert.Equal(t, "Hello", again.Outputs["greet"])
			assert.Equal(t, []string{"Refunds take 5 days."}, again.Context)
			assert.Equal(t, int64(1), again.Version)
		})
	}
}

func TestRepository_HistoryIsOrderedAndAppendOnly(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New("a", nil)
			require.NoError(t, repo.Create(ctx, s))

			for i := 0; i < 3; i++ {
				require.NoError(t, repo.Save(ctx, s, []Message{
					UserMessage(fmt.Sprintf("u%d", i)),
					AgentMessage(fmt.Sprintf("a%d", i)),
				}))
			}

			all, err := repo.History(ctx, s.ID, 0)
			require.NoError(t, err)
			require.Len(t, all, 6)
			for i, m := range all {
				assert.Equal(t, int64(i+1), m.Sequence)
			}
			assert.Equal(t, SenderUser, all[0].Sender)
			assert.Equal(t, "a2", all[5].Text)

			recent, err := repo.History(ctx, s.ID, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "u2", recent[0].Text)
			assert.Equal(t, "a2", recent[1].Text)
		})
	}
}

func TestRepository_StaleSave(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New("a", nil)
			require.NoError(t, repo.Create(ctx, s))

			first, err := repo.Load(ctx, s.ID)
			require.NoError(t, err)
			second, err := repo.Load(ctx, s.ID)
			require.NoError(t, err)

			require.NoError(t, repo.Save(ctx, first, []Message{UserMessage("one")}))
			err = repo.Save(ctx, second, []Message{UserMessage("two")})
			assert.ErrorIs(t, err, ErrStaleSession)

			hist, err := repo.History(ctx, s.ID, 0)
			require.NoError(t, err)
			require.Len(t, hist, 1)
			assert.Equal(t, "one", hist[0].Text)
		})
	}
}

func TestRepository_NotFound(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := repo.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrSessionNotFound)

			_, err = repo.History(ctx, "missing", 0)
			assert.ErrorIs(t, err, ErrSessionNotFound)

			err = repo.Save(ctx, &Session{ID: "missing"}, nil)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestRepository_DuplicateCreate(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			s := New("a", nil)
			require.NoError(t, repo.Create(context.Background(), s))
			assert.ErrorIs(t, repo.Create(context.Background(), s), ErrSessionExists)
		})
	}
}

func TestMemoryRepository_LoadReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository()
	s := New("a", map[string]string{"k": "v"})
	require.NoError(t, repo.Create(context.Background(), s))

	loaded, err := repo.Load(context.Background(), s.ID)
	require.NoError(t, err)
	loaded.Variables["k"] = "changed"

	again, err := repo.Load(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "v", again.Variables["k"])
}

func TestMemoryRepository_ConcurrentSessions(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := New("a", nil)
			assert.NoError(t, repo.Create(ctx, s))
			assert.NoError(t, repo.Save(ctx, s, []Message{UserMessage("hi")}))
		}()
	}
	wg.Wait()
}

func TestSQLRepository_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS conversation_sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS conversation_messages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_conversation_sessions_agent").WillReturnResult(sqlmock.NewResult(0, 0))

	repo, err := NewSQLRepository(context.Background(), db, "postgres")
	require.NoError(t, err)

	now := time.Now().UTC()
	columns := []string{"id", "agent_id", "current_node_id", "suspended", "status",
		"variables_json", "outputs_json", "context_json", "version", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM conversation_sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("s1", "support", "ask", true, "active", `{"name":"Ada"}`, `{}`, `["Refunds take 5 days."]`, 3, now, now))

	s, err := repo.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "ask", s.CurrentNodeID)
	assert.Equal(t, "Ada", s.Variables["name"])
	assert.Equal(t, int64(3), s.Version)
	assert.Equal(t, []string{"Refunds take 5 days."}, s.Context)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE conversation_sessions SET .* WHERE id = \$9 AND version = \$10`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM conversation_sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))
	mock.ExpectRollback()

	err = repo.Save(context.Background(), s, nil)
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.Equal(t, int64(3), s.Version)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLRepository_RejectsDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLRepository(context.Background(), db, "oracle")
	assert.Error(t, err)
}

func TestNewRepositoryFromConfig_DefaultsToMemory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sessions.SetDefaults()

	repo, err := NewRepositoryFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)
}
