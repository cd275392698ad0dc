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
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Problem is one structural defect.
type Problem struct {
	Field   string
	Message string
}

func (p Problem) String() string {
	if p.Field == "" {
		return p.Message
	}
	return p.Field + ": " + p.Message
}

// ValidationError reports every problem found in a graph.
type ValidationError struct {
	GraphID  string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	if e.GraphID != "" {
		return fmt.Sprintf("validation error: graph %s: %s", e.GraphID, strings.Join(parts, "; "))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks that the start node and every edge target exist, branch
// ids are unique per node and webhook endpoints are usable.
func Validate(g *AgentGraph) error {
	var problems []Problem
	report := func(field, format string, args ...any) {
		problems = append(problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(g.order) == 0 {
		report("nodes", "graph has no nodes")
	}
	if g.StartNode == "" {
		if len(g.order) > 0 {
			report("start_node", "start node is required")
		}
	} else if _, ok := g.nodes[g.StartNode]; !ok {
		report("start_node", "node %q does not exist", g.StartNode)
	}

	target := func(field, id string) {
		if id == "" {
			return
		}
		if _, ok := g.nodes[id]; !ok {
			report(field, "target %q does not exist", id)
		}
	}

	for _, id := range g.order {
		prefix := "nodes." + id
		if id == "" {
			report("nodes", "node id is required")
			continue
		}

		switch n := g.nodes[id].(type) {
		case *MessageNode:
			target(prefix+".next", n.Next)
		case *ForcedMessageNode:
			target(prefix+".next", n.Next)
			if n.ReferenceNodeID != "" {
				if _, ok := g.nodes[n.ReferenceNodeID]; !ok {
					report(prefix+".reference_node_id", "node %q does not exist", n.ReferenceNodeID)
				}
			}
		case *WaitNode:
			target(prefix+".next", n.Next)
		case *WebhookNode:
			target(prefix+".on_success", n.OnSuccess)
			target(prefix+".on_failure", n.OnFailure)
			validateWebhook(prefix, n, report)
		case *KnowledgeNode:
			target(prefix+".next", n.Next)
			if n.TopK < 0 {
				report(prefix+".top_k", "must be non-negative")
			}
		case *ConditionalNode:
			seen := make(map[string]bool, len(n.Branches))
			for i, b := range n.Branches {
				field := fmt.Sprintf("%s.branches[%d]", prefix, i)
				if b.ID == "" {
					report(field+".id", "branch id is required")
				} else if seen[b.ID] {
					report(field+".id", "duplicate branch id %q", b.ID)
				}
				seen[b.ID] = true
				if strings.TrimSpace(b.Condition) == "" {
					report(field+".condition", "condition is required")
				}
				target(field+".next", b.Next)
			}
			target(prefix+".default_branch", n.DefaultBranch)
		case *LLMRequestNode:
			target(prefix+".next", n.Next)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{GraphID: g.ID, Problems: problems}
	}
	return nil
}

func validateWebhook(prefix string, n *WebhookNode, report func(string, string, ...any)) {
	if strings.TrimSpace(n.URL) == "" {
		report(prefix+".url", "url is required")
	} else if u, err := url.Parse(n.URL); err != nil || u.Scheme == "" || u.Host == "" {
		report(prefix+".url", "invalid url %q", n.URL)
	}

	switch strings.ToUpper(n.Method) {
	case "", "GET", "POST":
	default:
		report(prefix+".method", "unsupported method %q (valid: GET, POST)", n.Method)
	}

	names := make(map[string]bool, len(n.Params))
	for i, p := range n.Params {
		if p.Name == "" {
			report(fmt.Sprintf("%s.params[%d].name", prefix, i), "name is required")
			continue
		}
		if names[p.Name] {
			report(fmt.Sprintf("%s.params[%d].name", prefix, i), "duplicate param %q", p.Name)
		}
		names[p.Name] = true
	}

	if n.Timeout < 0 {
		report(prefix+".timeout", "must be non-negative")
	}
}
