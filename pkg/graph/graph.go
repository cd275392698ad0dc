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

package graph

import (
	"fmt"
	"sort"
)

// AgentGraph is a validated, immutable conversation graph.
type AgentGraph struct {
	ID           string
	Name         string
	Description  string
	SystemPrompt string
	Voice        string
	Version      int

	// StartNode is where new sessions begin.
	StartNode string

	nodes map[string]Node
	order []string
}

// New builds a graph from nodes in declaration order and validates it.
// An empty start falls back to the first node.
func New(id, start string, nodes ...Node) (*AgentGraph, error) {
	g := &AgentGraph{ID: id, StartNode: start}
	if err := g.add(nodes...); err != nil {
		return nil, err
	}
	if g.StartNode == "" && len(g.order) > 0 {
		g.StartNode = g.order[0]
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *AgentGraph) add(nodes ...Node) error {
	if g.nodes == nil {
		g.nodes = make(map[string]Node, len(nodes))
	}
	for i, n := range nodes {
		if n == nil {
			return &ValidationError{Problems: []Problem{{Field: fmt.Sprintf("nodes[%d]", i), Message: "node is nil"}}}
		}
		id := n.NodeID()
		if _, dup := g.nodes[id]; dup {
			return &ValidationError{Problems: []Problem{{Field: "nodes." + id, Message: "duplicate node id"}}}
		}
		g.nodes[id] = n
		g.order = append(g.order, id)
	}
	return nil
}

// Node looks up a node by id.
func (g *AgentGraph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns nodes in declaration order.
func (g *AgentGraph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len is the number of nodes.
func (g *AgentGraph) Len() int {
	return len(g.order)
}

// Summary counts nodes per type.
func (g *AgentGraph) Summary() map[NodeType]int {
	out := make(map[NodeType]int)
	for _, n := range g.nodes {
		out[n.Type()]++
	}
	return out
}

// Sources lists the distinct knowledge sources referenced by the graph.
func (g *AgentGraph) Sources() []string {
	seen := map[string]bool{}
	for _, n := range g.nodes {
		if k, ok := n.(*KnowledgeNode); ok && k.Source != "" {
			seen[k.Source] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
