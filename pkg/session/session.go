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

// Package session persists conversation sessions and their message history.
//
// A Session records where a conversation is in its agent graph. It is loaded
// at the start of each turn, advanced by the engine and saved together with
// the messages produced by that turn. History is append-only.
package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session with a used id.
	ErrSessionExists = errors.New("session already exists")

	// ErrStaleSession is returned by Save when the stored session changed
	// after it was loaded.
	ErrStaleSession = errors.New("stale session: modified since load")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
	StatusErrored    Status = "errored"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Session is the mutable conversation state of one user with one agent.
type Session struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`

	// CurrentNodeID is empty before the first step and after termination.
	CurrentNodeID string `json:"current_node_id,omitempty"`

	// Suspended is set while the session waits for user input at
	// CurrentNodeID.
	Suspended bool `json:"suspended"`

	Status Status `json:"status"`

	// Variables hold collected user input and webhook results.
	Variables map[string]string `json:"variables,omitempty"`

	// Outputs hold the latest text each node produced.
	Outputs map[string]string `json:"outputs,omitempty"`

	// Context holds knowledge snippets retrieved before the session
	// suspended, restored when it resumes.
	Context []string `json:"context,omitempty"`

	// Version increases with every successful Save.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active session with a fresh id.
func New(agentID string, vars map[string]string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Status:    StatusActive,
		Variables: make(map[string]string, len(vars)),
		Outputs:   map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	maps.Copy(s.Variables, vars)
	return s
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Variables = maps.Clone(s.Variables)
	c.Outputs = maps.Clone(s.Outputs)
	c.Context = slices.Clone(s.Context)
	if c.Variables == nil {
		c.Variables = map[string]string{}
	}
	if c.Outputs == nil {
		c.Outputs = map[string]string{}
	}
	return &c
}

// Active reports whether the session can still make progress.
func (s *Session) Active() bool {
	return s.Status == StatusActive
}

// Message is one entry of a session's history.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// UserMessage and AgentMessage build unsaved messages.
func UserMessage(text string) Message  { return Message{Sender: SenderUser, Text: text} }
func AgentMessage(text string) Message { return Message{Sender: SenderAgent, Text: text} }

// Repository stores sessions and history.
//
// Save is the only mutation after Create: it writes the session and appends
// messages atomically, assigning each message the next sequence number and
// a timestamp. It fails with ErrStaleSession when s.Version does not match
// the stored version, and bumps s.Version on success.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, messages []Message) error

	// History returns messages in sequence order. A positive limit keeps
	// only the most recent ones.
	History(ctx context.Context, id string, limit int) ([]Message, error)

	Close() error
}
