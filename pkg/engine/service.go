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
	"fmt"
	"log/slog"

	"github.com/kadirpekel/convograph/pkg/agentstore"
	"github.com/kadirpekel/convograph/pkg/graph"
	"github.com/kadirpekel/convograph/pkg/session"
)

// Reply is what the API returns for one call.
type Reply struct {
	SessionID string         `json:"session_id"`
	Status    session.Status `json:"status"`
	Suspended bool           `json:"suspended"`
	Messages  []string       `json:"messages"`
	Action    *Action        `json:"action,omitempty"`
}

// Service binds the engine to agent and session storage. Each call loads
// the session, runs the engine and saves the result while holding that
// session's lock.
type Service struct {
	engine   *Engine
	agents   agentstore.Repository
	sessions session.Repository
	locks    *keyedMutex
}

func NewService(engine *Engine, agents agentstore.Repository, sessions session.Repository) *Service {
	return &Service{
		engine:   engine,
		agents:   agents,
		sessions: sessions,
		locks:    newKeyedMutex(),
	}
}

// CreateSession starts a new session of agentID.
func (s *Service) CreateSession(ctx context.Context, agentID string, vars map[string]string) (*Reply, error) {
	g, err := s.agents.Load(ctx, agentID)
	if err != nil {
		return nil, err
	}

	sess := session.New(g.ID, vars)
	sess.CurrentNodeID = g.StartNode

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	// The record exists before any webhook or LLM call runs.
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	out, err := s.engine.Begin(ctx, g, sess)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, out.Session, agentMessages(out.Messages)); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("Session created", "session_id", out.Session.ID, "agent_id", agentID, "status", out.Session.Status)
	return newReply(out), nil
}

// PostMessage delivers text to a suspended session.
func (s *Service) PostMessage(ctx context.Context, sessionID, text string) (*Reply, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	g, err := s.agents.Load(ctx, sess.AgentID)
	if err != nil {
		return nil, err
	}

	out, err := s.engine.Resume(ctx, g, sess, text)
	if err != nil {
		return nil, err
	}

	messages := append([]session.Message{session.UserMessage(text)}, agentMessages(out.Messages)...)
	if err := s.sessions.Save(ctx, out.Session, messages); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return newReply(out), nil
}

// History returns the whole conversation in order.
func (s *Service) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	return s.sessions.History(ctx, sessionID, 0)
}

func (s *Service) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	return s.sessions.Load(ctx, sessionID)
}

// Agent returns the graph of agentID.
func (s *Service) Agent(ctx context.Context, agentID string) (*graph.AgentGraph, error) {
	return s.agents.Load(ctx, agentID)
}

// ListAgents returns the ids of every published agent.
func (s *Service) ListAgents(ctx context.Context) ([]string, error) {
	return s.agents.List(ctx)
}

// Close terminates a session. Closing a finished session is a no-op.
func (s *Service) Close(ctx context.Context, sessionID string) (*session.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		return sess, nil
	}

	sess.Status = session.StatusTerminated
	sess.Suspended = false
	sess.CurrentNodeID = ""
	if err := s.sessions.Save(ctx, sess, nil); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	slog.Info("Session closed", "session_id", sessionID)
	return sess, nil
}

func agentMessages(texts []string) []session.Message {
	out := make([]session.Message, len(texts))
	for i, text := range texts {
		out[i] = session.AgentMessage(text)
	}
	return out
}

func newReply(out *Outcome) *Reply {
	messages := out.Messages
	if messages == nil {
		messages = []string{}
	}
	return &Reply{
		SessionID: out.Session.ID,
		Status:    out.Session.Status,
		Suspended: out.Session.Suspended,
		Messages:  messages,
		Action:    out.Action,
	}
}
