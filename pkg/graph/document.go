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
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is the serialized form of an AgentGraph (YAML or JSON).
//
//	id: support
//	name: Support desk
//	system_prompt: You are a helpful support agent.
//	start_node: greet
//	nodes:
//	  - id: greet
//	    type: message
//	    text: Hello! How can I help?
//	    next: ask
//	  - id: ask
//	    type: wait_for_user_input
//	    next: answer
//	  - id: answer
//	    type: llm_request
type Document struct {
	ID           string         `yaml:"id" json:"id" jsonschema:"title=ID,description=Agent identifier"`
	Name         string         `yaml:"name,omitempty" json:"name,omitempty"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	SystemPrompt string         `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty" jsonschema:"description=Prepended to every LLM call"`
	Voice        string         `yaml:"voice,omitempty" json:"voice,omitempty"`
	Version      int            `yaml:"version,omitempty" json:"version,omitempty"`
	StartNode    string         `yaml:"start_node,omitempty" json:"start_node,omitempty" jsonschema:"description=Defaults to the first node"`
	Nodes        []NodeDocument `yaml:"nodes" json:"nodes"`
}

// NodeDocument is the flat serialized form of every node variant.
// Fields that do not apply to Type must be empty.
type NodeDocument struct {
	ID   string   `yaml:"id" json:"id"`
	Type NodeType `yaml:"type" json:"type" jsonschema:"enum=message,enum=forced_message,enum=wait_for_user_input,enum=webhook,enum=knowledge,enum=conditional_llm,enum=llm_request"`

	Text            string `yaml:"text,omitempty" json:"text,omitempty"`
	ReferenceNodeID string `yaml:"reference_node_id,omitempty" json:"reference_node_id,omitempty"`
	Prompt          string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Next            string `yaml:"next,omitempty" json:"next,omitempty"`

	Action              string            `yaml:"action,omitempty" json:"action,omitempty"`
	URL                 string            `yaml:"url,omitempty" json:"url,omitempty"`
	Method              string            `yaml:"method,omitempty" json:"method,omitempty" jsonschema:"enum=GET,enum=POST"`
	Params              []ParamDocument   `yaml:"params,omitempty" json:"params,omitempty"`
	Headers             map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	MissingParamMessage string            `yaml:"missing_param_message,omitempty" json:"missing_param_message,omitempty"`
	SuccessMessage      string            `yaml:"success_message,omitempty" json:"success_message,omitempty"`
	FailureMessage      string            `yaml:"failure_message,omitempty" json:"failure_message,omitempty"`
	Timeout             string            `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Go duration such as 5s"`
	OnSuccess           string            `yaml:"on_success,omitempty" json:"on_success,omitempty"`
	OnFailure           string            `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`

	Source string `yaml:"source,omitempty" json:"source,omitempty"`
	TopK   int    `yaml:"top_k,omitempty" json:"top_k,omitempty"`

	Branches      []BranchDocument `yaml:"branches,omitempty" json:"branches,omitempty"`
	DefaultBranch string           `yaml:"default_branch,omitempty" json:"default_branch,omitempty"`
}

type ParamDocument struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Value       string `yaml:"value,omitempty" json:"value,omitempty"`
	Optional    bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
}

type BranchDocument struct {
	ID        string `yaml:"id" json:"id"`
	Condition string `yaml:"condition" json:"condition"`
	Next      string `yaml:"next,omitempty" json:"next,omitempty"`
}

// Parse decodes a YAML or JSON document and builds a validated graph.
func Parse(data []byte) (*AgentGraph, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return doc.Build()
}

// ParseFile reads and parses a graph document from disk.
func ParseFile(path string) (*AgentGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %s: %w", path, err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Build converts the document into a validated graph.
func (d *Document) Build() (*AgentGraph, error) {
	if d.ID == "" {
		return nil, &ValidationError{Problems: []Problem{{Field: "id", Message: "agent id is required"}}}
	}

	var problems []Problem
	nodes := make([]Node, 0, len(d.Nodes))
	for i, nd := range d.Nodes {
		n, err := nd.build()
		if err != nil {
			problems = append(problems, Problem{Field: fmt.Sprintf("nodes[%d]", i), Message: err.Error()})
			continue
		}
		nodes = append(nodes, n)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{GraphID: d.ID, Problems: problems}
	}

	g, err := New(d.ID, d.StartNode, nodes...)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.GraphID = d.ID
		}
		return nil, err
	}
	g.Name = d.Name
	g.Description = d.Description
	g.SystemPrompt = d.SystemPrompt
	g.Voice = d.Voice
	g.Version = d.Version
	return g, nil
}

func (nd *NodeDocument) build() (Node, error) {
	if nd.ID == "" {
		return nil, fmt.Errorf("node id is required")
	}

	switch nd.Type {
	case TypeMessage:
		return &MessageNode{ID: nd.ID, Text: nd.Text, Next: nd.Next}, nil
	case TypeForcedMessage:
		return &ForcedMessageNode{ID: nd.ID, Text: nd.Text, ReferenceNodeID: nd.ReferenceNodeID, Next: nd.Next}, nil
	case TypeWait:
		return &WaitNode{ID: nd.ID, Prompt: nd.Prompt, Next: nd.Next}, nil
	case TypeWebhook:
		var timeout time.Duration
		if nd.Timeout != "" {
			d, err := time.ParseDuration(nd.Timeout)
			if err != nil {
				return nil, fmt.Errorf("node %s: invalid timeout %q", nd.ID, nd.Timeout)
			}
			timeout = d
		}
		params := make([]Param, len(nd.Params))
		for i, p := range nd.Params {
			params[i] = Param(p)
		}
		return &WebhookNode{
			ID:                  nd.ID,
			Action:              nd.Action,
			URL:                 nd.URL,
			Method:              nd.Method,
			Params:              params,
			Headers:             nd.Headers,
			MissingParamMessage: nd.MissingParamMessage,
			SuccessMessage:      nd.SuccessMessage,
			FailureMessage:      nd.FailureMessage,
			Timeout:             timeout,
			OnSuccess:           nd.OnSuccess,
			OnFailure:           nd.OnFailure,
		}, nil
	case TypeKnowledge:
		return &KnowledgeNode{ID: nd.ID, Source: nd.Source, TopK: nd.TopK, Next: nd.Next}, nil
	case TypeConditional:
		branches := make([]Branch, len(nd.Branches))
		for i, b := range nd.Branches {
			branches[i] = Branch(b)
		}
		return &ConditionalNode{ID: nd.ID, Branches: branches, DefaultBranch: nd.DefaultBranch}, nil
	case TypeLLMRequest:
		return &LLMRequestNode{ID: nd.ID, Prompt: nd.Prompt, Next: nd.Next}, nil
	case "":
		return nil, fmt.Errorf("node %s: type is required", nd.ID)
	default:
		return nil, fmt.Errorf("node %s: unknown type %q", nd.ID, nd.Type)
	}
}

// ToDocument converts a graph back into its serialized form.
func ToDocument(g *AgentGraph) *Document {
	doc := &Document{
		ID:           g.ID,
		Name:         g.Name,
		Description:  g.Description,
		SystemPrompt: g.SystemPrompt,
		Voice:        g.Voice,
		Version:      g.Version,
		StartNode:    g.StartNode,
	}

	for _, n := range g.Nodes() {
		nd := NodeDocument{ID: n.NodeID(), Type: n.Type()}
		switch n := n.(type) {
		case *MessageNode:
			nd.Text, nd.Next = n.Text, n.Next
		case *ForcedMessageNode:
			nd.Text, nd.ReferenceNodeID, nd.Next = n.Text, n.ReferenceNodeID, n.Next
		case *WaitNode:
			nd.Prompt, nd.Next = n.Prompt, n.Next
		case *WebhookNode:
			nd.Action, nd.URL, nd.Method = n.Action, n.URL, n.Method
			nd.Headers = n.Headers
			nd.MissingParamMessage = n.MissingParamMessage
			nd.SuccessMessage, nd.FailureMessage = n.SuccessMessage, n.FailureMessage
			nd.OnSuccess, nd.OnFailure = n.OnSuccess, n.OnFailure
			if n.Timeout > 0 {
				nd.Timeout = n.Timeout.String()
			}
			for _, p := range n.Params {
				nd.Params = append(nd.Params, ParamDocument(p))
			}
		case *KnowledgeNode:
			nd.Source, nd.TopK, nd.Next = n.Source, n.TopK, n.Next
		case *ConditionalNode:
			nd.DefaultBranch = n.DefaultBranch
			for _, b := range n.Branches {
				nd.Branches = append(nd.Branches, BranchDocument(b))
			}
		case *LLMRequestNode:
			nd.Prompt, nd.Next = n.Prompt, n.Next
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	return doc
}
