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
	"sync"
	"time"
)

type memoryRecord struct {
	session  *Session
	messages []Message
}

// MemoryRepository keeps sessions in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*memoryRecord)}
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[s.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
	}
	r.records[s.ID] = &memoryRecord{session: s.Clone()}
	return nil
}

func (r *MemoryRepository) Load(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return rec.session.Clone(), nil
}

func (r *MemoryRepository) Save(_ context.Context, s *Session, messages []Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	if rec.session.Version != s.Version {
		return fmt.Errorf("%w: stored=%d local=%d", ErrStaleSession, rec.session.Version, s.Version)
	}

	now := time.Now().UTC()
	next := int64(len(rec.messages)) + 1
	for i := range messages {
		messages[i].Sequence = next
		messages[i].Timestamp = now
		next++
	}
	rec.messages = append(rec.messages, messages...)

	s.Version++
	s.UpdatedAt = now
	rec.session = s.Clone()
	return nil
}

func (r *MemoryRepository) History(_ context.Context, id string, limit int) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	msgs := rec.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
