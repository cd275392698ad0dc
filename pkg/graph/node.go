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

// Package graph defines agent conversation graphs.
//
// A graph is a set of typed nodes connected by node-id edges. Node variants
// form a closed set; consumers switch on the concrete type:
//
//	switch n := node.(type) {
//	case *graph.MessageNode:
//	case *graph.WebhookNode:
//	...
//	}
//
// Graphs are immutable once built. Validate reports structural problems
// before a graph is used for execution.
package graph

import "time"

// NodeType is the discriminator used in graph documents.
type NodeType string

const (
	TypeMessage       NodeType = "message"
	TypeForcedMessage NodeType = "forced_message"
	TypeWait          NodeType = "wait_for_user_input"
	TypeWebhook       NodeType = "webhook"
	TypeKnowledge     NodeType = "knowledge"
	TypeConditional   NodeType = "conditional_llm"
	TypeLLMRequest    NodeType = "llm_request"
)

// Node is implemented only by the variants in this package.
type Node interface {
	NodeID() string
	Type() NodeType

	// Edges lists every non-empty outgoing target.
	Edges() []string

	sealed()
}

// MessageNode emits fixed text.
type MessageNode struct {
	ID   string
	Text string
	Next string
}

// ForcedMessageNode emits templated text, or the latest output of
// ReferenceNodeID when that node has produced one in the session.
type ForcedMessageNode struct {
	ID              string
	Text            string
	ReferenceNodeID string
	Next            string
}

// WaitNode suspends the session until the user replies.
type WaitNode struct {
	ID     string
	Prompt string
	Next   string
}

// Param is a webhook parameter. A non-empty Value is sent as is; otherwise
// the value comes from the session or is extracted from the conversation.
type Param struct {
	Name        string
	Description string
	Value       string
	Optional    bool
}

// WebhookNode calls an external HTTP endpoint.
type WebhookNode struct {
	ID                  string
	Action              string
	URL                 string
	Method              string
	Params              []Param
	Headers             map[string]string
	MissingParamMessage string
	SuccessMessage      string
	FailureMessage      string
	Timeout             time.Duration
	OnSuccess           string
	OnFailure           string
}

// KnowledgeNode retrieves snippets from a knowledge source into the
// working context of the current turn.
type KnowledgeNode struct {
	ID     string
	Source string
	TopK   int
	Next   string
}

// Branch is one option of a ConditionalNode.
type Branch struct {
	ID        string
	Condition string
	Next      string
}

// ConditionalNode picks a branch by classifying the latest user message.
type ConditionalNode struct {
	ID            string
	Branches      []Branch
	DefaultBranch string
}

// LLMRequestNode composes a free-form reply.
type LLMRequestNode struct {
	ID     string
	Prompt string
	Next   string
}

func (n *MessageNode) NodeID() string       { return n.ID }
func (n *ForcedMessageNode) NodeID() string { return n.ID }
func (n *WaitNode) NodeID() string          { return n.ID }
func (n *WebhookNode) NodeID() string       { return n.ID }
func (n *KnowledgeNode) NodeID() string     { return n.ID }
func (n *ConditionalNode) NodeID() string   { return n.ID }
func (n *LLMRequestNode) NodeID() string    { return n.ID }

func (*MessageNode) Type() NodeType       { return TypeMessage }
func (*ForcedMessageNode) Type() NodeType { return TypeForcedMessage }
func (*WaitNode) Type() NodeType          { return TypeWait }
func (*WebhookNode) Type() NodeType       { return TypeWebhook }
func (*KnowledgeNode) Type() NodeType     { return TypeKnowledge }
func (*ConditionalNode) Type() NodeType   { return TypeConditional }
func (*LLMRequestNode) Type() NodeType    { return TypeLLMRequest }

func (n *MessageNode) Edges() []string       { return nonEmpty(n.Next) }
func (n *ForcedMessageNode) Edges() []string { return nonEmpty(n.Next) }
func (n *WaitNode) Edges() []string          { return nonEmpty(n.Next) }
func (n *WebhookNode) Edges() []string       { return nonEmpty(n.OnSuccess, n.OnFailure) }
func (n *KnowledgeNode) Edges() []string     { return nonEmpty(n.Next) }
func (n *LLMRequestNode) Edges() []string    { return nonEmpty(n.Next) }

func (n *ConditionalNode) Edges() []string {
	targets := make([]string, 0, len(n.Branches)+1)
	for _, b := range n.Branches {
		targets = append(targets, b.Next)
	}
	return nonEmpty(append(targets, n.DefaultBranch)...)
}

func (*MessageNode) sealed()       {}
func (*ForcedMessageNode) sealed() {}
func (*WaitNode) sealed()          {}
func (*WebhookNode) sealed()       {}
func (*KnowledgeNode) sealed()     {}
func (*ConditionalNode) sealed()   {}
func (*LLMRequestNode) sealed()    {}

// Conditions returns the branch conditions in declaration order.
func (n *ConditionalNode) Conditions() []string {
	out := make([]string, len(n.Branches))
	for i, b := range n.Branches {
		out[i] = b.Condition
	}
	return out
}

// Interactive reports whether a node can hold the session waiting for input.
func Interactive(n Node) bool {
	switch n.(type) {
	case *WaitNode, *WebhookNode:
		return true
	default:
		return false
	}
}

func nonEmpty(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
