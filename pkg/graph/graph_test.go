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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const supportDoc = `
id: support
name: Support desk
system_prompt: You are a concise support agent.
nodes:
  - id: greet
    type: message
    text: Hello! What do you need?
    next: ask
  - id: ask
    type: wait_for_user_input
    next: route
  - id: route
    type: conditional_llm
    branches:
      - id: refund
        condition: The user wants a refund
        next: refund_call
      - id: other
        condition: Anything else
        next: answer
    default_branch: answer
  - id: refund_call
    type: webhook
    action: create_refund
    url: https://billing.example.com/refunds
    timeout: 2s
    params:
      - name: order_id
        description: The order number
      - name: channel
        value: chat
    on_success: done
    on_failure: answer
  - id: answer
    type: llm_request
    prompt: Answer the question.
    next: ask
  - id: done
    type: forced_message
    text: "Refund {order_id} created."
`

func TestParse_SupportGraph(t *testing.T) {
	g, err := Parse([]byte(supportDoc))
	require.NoError(t, err)

	assert.Equal(t, "support", g.ID)
	assert.Equal(t, "greet", g.StartNode, "start falls back to the first node")
	assert.Equal(t, 6, g.Len())

	n, ok := g.Node("refund_call")
	require.True(t, ok)
	wh, ok := n.(*WebhookNode)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, wh.Timeout)
	assert.Equal(t, []string{"done", "answer"}, wh.Edges())
	require.Len(t, wh.Params, 2)
	assert.Equal(t, "chat", wh.Params[1].Value)

	route, _ := g.Node("route")
	cond := route.(*ConditionalNode)
	assert.Equal(t, []string{"The user wants a refund", "Anything else"}, cond.Conditions())

	ids := make([]string, 0, g.Len())
	for _, n := range g.Nodes() {
		ids = append(ids, n.NodeID())
	}
	assert.Equal(t, []string{"greet", "ask", "route", "refund_call", "answer", "done"}, ids)
	assert.Equal(t, 1, g.Summary()[TypeWebhook])
}

func TestParse_JSONDocument(t *testing.T) {
	g, err := Parse([]byte(`{"id":"a","start_node":"b","nodes":[{"id":"a1","type":"message","text":"x"},{"id":"b","type":"message","text":"y","next":"a1"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "b", g.StartNode)
}

func TestParse_UnknownType(t *testing.T) {
	_, err := Parse([]byte("id: a\nnodes:\n  - id: n\n    type: teleport\n"))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), `unknown type "teleport"`)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("id: a\nnodes:\n  - id: n\n    type: message\n    colour: red\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		start string
		nodes []Node
		want  string
	}{
		{
			name:  "missing start",
			start: "nope",
			nodes: []Node{&MessageNode{ID: "a"}},
			want:  `start_node: node "nope" does not exist`,
		},
		{
			name:  "dangling edge",
			nodes: []Node{&MessageNode{ID: "a", Next: "ghost"}},
			want:  `nodes.a.next: target "ghost" does not exist`,
		},
		{
			name: "duplicate branch id",
			nodes: []Node{
				&ConditionalNode{ID: "c", Branches: []Branch{
					{ID: "x", Condition: "one"},
					{ID: "x", Condition: "two"},
				}},
			},
			want: `duplicate branch id "x"`,
		},
		{
			name:  "empty webhook url",
			nodes: []Node{&WebhookNode{ID: "w"}},
			want:  "nodes.w.url: url is required",
		},
		{
			name:  "bad webhook method",
			nodes: []Node{&WebhookNode{ID: "w", URL: "http://x.test", Method: "PATCH"}},
			want:  "unsupported method",
		},
		{
			name:  "unknown reference node",
			nodes: []Node{&ForcedMessageNode{ID: "f", ReferenceNodeID: "z"}},
			want:  "reference_node_id",
		},
		{
			name:  "dangling default branch",
			nodes: []Node{&ConditionalNode{ID: "c", DefaultBranch: "z"}},
			want:  "nodes.c.default_branch",
		},
		{
			name: "no nodes",
			want: "graph has no nodes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("g", tt.start, tt.nodes...)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	_, err := New("g", "", &MessageNode{ID: "a", Next: "x"}, &WaitNode{ID: "b", Next: "y"})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 2)
	assert.Equal(t, "g", ve.GraphID)
}

func TestNew_DuplicateNode(t *testing.T) {
	_, err := New("g", "", &MessageNode{ID: "a"}, &MessageNode{ID: "a"})
	assert.ErrorContains(t, err, "duplicate node id")
}

func TestNew_CyclesAllowed(t *testing.T) {
	g, err := New("loop", "a", &MessageNode{ID: "a", Next: "b"}, &MessageNode{ID: "b", Next: "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
}

func TestToDocument_RoundTrip(t *testing.T) {
	g, err := Parse([]byte(supportDoc))
	require.NoError(t, err)

	again, err := ToDocument(g).Build()
	require.NoError(t, err)
	assert.Equal(t, g.StartNode, again.StartNode)
	assert.Equal(t, g.Nodes(), again.Nodes())
}

func TestInteractive(t *testing.T) {
	assert.True(t, Interactive(&WaitNode{}))
	assert.True(t, Interactive(&WebhookNode{}))
	assert.False(t, Interactive(&MessageNode{}))
	assert.False(t, Interactive(&LLMRequestNode{}))
}

func TestSources(t *testing.T) {
	g, err := New("k", "", &KnowledgeNode{ID: "a", Source: "faq", Next: "b"}, &KnowledgeNode{ID: "b", Source: "faq"}, &KnowledgeNode{ID: "c", Source: "docs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "faq"}, g.Sources())
}
