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

// Package agentstore loads published agent graphs by id.
package agentstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/convograph/pkg/graph"
)

// ErrAgentNotFound is returned when no graph is published under an id.
var ErrAgentNotFound = errors.New("agent not found")

// Repository resolves agent ids to validated graphs. Returned graphs are
// immutable and may be shared between sessions.
type Repository interface {
	Load(ctx context.Context, agentID string) (*graph.AgentGraph, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Memory holds graphs registered in process.
type Memory struct {
	mu     sync.RWMutex
	graphs map[string]*graph.AgentGraph
}

func NewMemory(graphs ...*graph.AgentGraph) *Memory {
	m := &Memory{graphs: make(map[string]*graph.AgentGraph, len(graphs))}
	for _, g := range graphs {
		m.graphs[g.ID] = g
	}
	return m
}

// Put validates and publishes g, replacing any graph with the same id.
func (m *Memory) Put(g *graph.AgentGraph) error {
	if g == nil {
		return fmt.Errorf("graph is nil")
	}
	if err := graph.Validate(g); err != nil {
		return err
	}
	m.mu.Lock()
	m.graphs[g.ID] = g
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, agentID string) (*graph.AgentGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.graphs[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return g, nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.graphs))
	for id := range m.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }

// replace swaps the whole set at once.
func (m *Memory) replace(graphs map[string]*graph.AgentGraph) {
	m.mu.Lock()
	m.graphs = graphs
	m.mu.Unlock()
}

var _ Repository = (*Memory)(nil)
