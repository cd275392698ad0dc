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

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/convograph/pkg/agentstore"
	"github.com/kadirpekel/convograph/pkg/graph"
	"github.com/kadirpekel/convograph/pkg/session"
	"github.com/kadirpekel/convograph/pkg/webhook"
)

func newTestService(t *testing.T, graphs ...*graph.AgentGraph) (*Service, *session.MemoryRepository) {
	t.Helper()
	sessions := session.NewMemoryRepository()
	e := New(WithHistory(sessions), WithComposer(&stubComposer{text: "Sure."}))
	return NewService(e, agentstore.NewMemory(graphs...), sessions), sessions
}

func echoGraph(t *testing.T) *graph.AgentGraph {
	return mustGraph(t, "hi",
		&graph.MessageNode{ID: "hi", Text: "Hi {name}", Next: "ask"},
		&graph.WaitNode{ID: "ask", Next: "echo"},
		&graph.MessageNode{ID: "echo", Text: "You said {ask}", Next: "ask"},
	)
}

func TestService_CreateAndPost(t *testing.T) {
	svc, _ := newTestService(t, echoGraph(t))
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "agent", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, []string{"Hi Ada"}, created.Messages)
	assert.True(t, created.Suspended)
	assert.Equal(t, session.StatusActive, created.Status)

	r, err := svc.PostMessage(ctx, created.SessionID, "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"You said hello"}, r.Messages)

	sess, err := svc.Get(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "ask", sess.CurrentNodeID)
	assert.Equal(t, "hello", sess.Variables["ask"])

	history, err := svc.History(ctx, created.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, session.SenderAgent, history[0].Sender)
	assert.Equal(t, "Hi Ada", history[0].Text)
	assert.Equal(t, session.SenderUser, history[1].Sender)
	assert.Equal(t, "hello", history[1].Text)
	assert.Equal(t, "You said hello", history[2].Text)
}

func TestService_HistoryIsAppendOnly(t *testing.T) {
	svc, _ := newTestService(t, echoGraph(t))
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "agent", nil)
	require.NoError(t, err)

	var previous []session.Message
	for i := 0; i < 4; i++ {
		_, err := svc.PostMessage(ctx, created.SessionID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)

		history, err := svc.History(ctx, created.SessionID)
		require.NoError(t, err)
		require.Greater(t, len(history), len(previous))
		assert.Equal(t, previous, history[:len(previous)])
		for j, m := range history {
			assert.Equal(t, int64(j+1), m.Sequence)
		}
		previous = history
	}
}

func TestService_ConcurrentPostsAreSerialized(t *testing.T) {
	svc, _ := newTestService(t, echoGraph(t))
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "agent", nil)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PostMessage(ctx, created.SessionID, fmt.Sprintf("m%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	history, err := svc.History(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Len(t, history, 1+2*n)

	sess, err := svc.Get(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+n), sess.Version)
	assert.Zero(t, svc.locks.size())
}

func TestService_PostAfterTerminationIsInvalidState(t *testing.T) {
	g := mustGraph(t, "ask",
		&graph.WaitNode{ID: "ask", Next: "answer"},
		&graph.LLMRequestNode{ID: "answer"},
	)
	svc, _ := newTestService(t, g)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "agent", nil)
	require.NoError(t, err)
	assert.Empty(t, created.Messages)

	r, err := svc.PostMessage(ctx, created.SessionID, "question")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sure."}, r.Messages)
	assert.Equal(t, session.StatusTerminated, r.Status)

	before, err := svc.History(ctx, created.SessionID)
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, created.SessionID, "again")
	assert.True(t, IsInvalidState(err))

	after, err := svc.History(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_Close(t *testing.T) {
	svc, _ := newTestService(t, echoGraph(t))
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "agent", nil)
	require.NoError(t, err)

	sess, err := svc.Close(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusTerminated, sess.Status)
	assert.False(t, sess.Suspended)

	again, err := svc.Close(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sess.Version, again.Version)

	_, err = svc.PostMessage(ctx, created.SessionID, "hello")
	assert.True(t, IsInvalidState(err))
}

func TestService_NotFound(t *testing.T) {
	svc, _ := newTestService(t, echoGraph(t))
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, "missing", nil)
	assert.ErrorIs(t, err, agentstore.ErrAgentNotFound)

	_, err = svc.PostMessage(ctx, "nope", "hello")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = svc.Close(ctx, "nope")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestService_ErroredSessionIsPersisted(t *testing.T) {
	g := mustGraph(t, "a",
		&graph.MessageNode{ID: "a", Text: "loop", Next: "a"},
	)
	sessions := session.NewMemoryRepository()
	svc := NewService(New(WithMaxSteps(3)), agentstore.NewMemory(g), sessions)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "agent", nil)
	require.NoError(t, err)
	assert.Equal(t, session.StatusErrored, created.Status)
	assert.Equal(t, []string{"loop", "loop", "loop", ApologyMessage}, created.Messages)

	sess, err := svc.Get(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusErrored, sess.Status)
}

type unwritableSessions struct {
	*session.MemoryRepository
}

func (unwritableSessions) Create(context.Context, *session.Session) error {
	return errors.New("disk full")
}

func TestService_CreateFailureRunsNoSideEffects(t *testing.T) {
	g := mustGraph(t, "charge",
		&graph.WebhookNode{
			ID:        "charge",
			Action:    "charge_card",
			URL:       "https://payments.example.com/charge",
			Params:    []graph.Param{{Name: "amount", Value: "10"}},
			OnSuccess: "done",
		},
		&graph.MessageNode{ID: "done", Text: "Charged."},
	)
	invoker := &stubInvoker{result: webhook.Result{OK: true, StatusCode: 200, Body: "{}"}}
	svc := NewService(New(WithWebhookInvoker(invoker)), agentstore.NewMemory(g),
		unwritableSessions{session.NewMemoryRepository()})

	_, err := svc.CreateSession(context.Background(), "agent", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, invoker.requests)
}

func TestService_CreatedSessionStartsFromStoredRecord(t *testing.T) {
	svc, sessions := newTestService(t, echoGraph(t))
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "agent", map[string]string{"name": "Ada"})
	require.NoError(t, err)

	stored, err := sessions.Load(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, "ask", stored.CurrentNodeID)
}

func TestEngine_BeginRejectsStartedSession(t *testing.T) {
	g := echoGraph(t)
	e := New()
	ctx := context.Background()

	out, err := e.Start(ctx, g, nil)
	require.NoError(t, err)
	require.True(t, out.Session.Suspended)

	_, err = e.Begin(ctx, g, out.Session)
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}
