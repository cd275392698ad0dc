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

package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/convograph/pkg/agentstore"
	"github.com/kadirpekel/convograph/pkg/config"
	"github.com/kadirpekel/convograph/pkg/embedder"
	"github.com/kadirpekel/convograph/pkg/graph"
	"github.com/kadirpekel/convograph/pkg/model"
	"github.com/kadirpekel/convograph/pkg/session"
	"github.com/kadirpekel/convograph/pkg/testutils"
)

const knowledgeConfig = `
agents:
  backend: inmemory
llms:
  default:
    provider: ollama
embedders:
  hash:
    provider: ollama
vector_stores:
  mem:
    type: chromem
knowledge:
  embedder: hash
  vector_store: mem
  top_k: 2
observability:
  metrics:
    enabled: true
`

func supportGraph(t *testing.T) *graph.AgentGraph {
	t.Helper()
	g, err := graph.New("support", "ask",
		&graph.WaitNode{ID: "ask", Prompt: "How can I help?", Next: "route"},
		&graph.ConditionalNode{
			ID:            "route",
			Branches:      []graph.Branch{{ID: "faq", Condition: "asks a policy question", Next: "kb"}},
			DefaultBranch: "bye",
		},
		&graph.KnowledgeNode{ID: "kb", Source: "faq", Next: "answer"},
		&graph.LLMRequestNode{ID: "answer", Prompt: "Answer briefly."},
		&graph.MessageNode{ID: "bye", Text: "Goodbye."},
	)
	require.NoError(t, err)
	return g
}

// scriptedLLM answers classification prompts with the first branch and
// everything else with answer.
func scriptedLLM(answer string) *testutils.LLM {
	return &testutils.LLM{Handler: func(req *model.Request) (string, error) {
		if req.Config.WantsJSON() {
			return `{"choice": 1, "confidence": 0.9}`, nil
		}
		return answer, nil
	}}
}

func newTestRuntime(t *testing.T, doc string, llm model.LLM, opts ...Option) *Runtime {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	opts = append([]Option{
		WithLLMFactory(func(*config.LLMConfig) (model.LLM, error) { return llm, nil }),
		WithEmbedderFactory(func(*config.EmbedderConfig) (embedder.Embedder, error) { return testutils.NewEmbedder(), nil }),
	}, opts...)

	rt, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })
	return rt
}

func TestRuntime_ConversationWithKnowledge(t *testing.T) {
	llm := scriptedLLM("Refunds take five days.")
	g := supportGraph(t)
	g.SystemPrompt = "You are the ACME refunds desk."
	rt := newTestRuntime(t, knowledgeConfig, llm, WithAgents(agentstore.NewMemory(g)))
	ctx := context.Background()

	ix, err := rt.Indexer()
	require.NoError(t, err)
	n, err := ix.Index(ctx, "faq", "refunds.txt", "Refunds are processed within five days of receiving the item.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	conv := rt.NewConversation("support")
	opening, err := conv.Start(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"How can I help?"}, opening.Messages)
	assert.False(t, conv.Done())

	answer, err := conv.Send(ctx, "How long do refunds take?")
	require.NoError(t, err)
	assert.Equal(t, []string{"Refunds take five days."}, answer.Messages)
	assert.Equal(t, session.StatusTerminated, answer.Status)
	assert.True(t, conv.Done())

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].Config.WantsJSON())
	assert.Equal(t, "You are the ACME refunds desk.", reqs[0].SystemInstruction)
	assert.Contains(t, reqs[1].SystemInstruction, "You are the ACME refunds desk.")
	assert.Contains(t, reqs[1].SystemInstruction, "Answer briefly.")
	assert.Contains(t, reqs[1].SystemInstruction, "Refunds are processed within five days")

	history, err := rt.Service().History(ctx, conv.SessionID())
	require.NoError(t, err)
	assert.Len(t, history, 3)

	handler := rt.Observability().MetricsHandler()
	require.NotNil(t, handler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "engine_runs_total")
	assert.Contains(t, body, "llm_calls_total")
}

func TestRuntime_WithoutKnowledge(t *testing.T) {
	rt := newTestRuntime(t, "agents:\n  backend: inmemory\n", scriptedLLM("ok"))

	_, err := rt.Indexer()
	assert.Error(t, err)
	assert.Nil(t, rt.Observability().MetricsHandler())
	assert.NotNil(t, rt.Service())
	assert.NotNil(t, rt.Engine())
}

func TestRuntime_LLMFactoryError(t *testing.T) {
	cfg, err := config.Parse([]byte("agents:\n  backend: inmemory\n"))
	require.NoError(t, err)

	_, err = New(context.Background(), cfg,
		WithLLMFactory(func(*config.LLMConfig) (model.LLM, error) { return nil, errors.New("no credentials") }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestRuntime_DirectoryAgents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir+"/greeter.yaml", `
id: greeter
start_node: hello
nodes:
  - id: hello
    type: message
    text: "Hello {name}!"
`))

	doc := "agents:\n  backend: directory\n  path: " + dir + "\n  watch: false\n"
	rt := newTestRuntime(t, doc, scriptedLLM("unused"))

	rep, err := rt.Service().CreateSession(context.Background(), "greeter", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello Ada!"}, rep.Messages)
	assert.Equal(t, session.StatusTerminated, rep.Status)
}

func TestConversation_NotStarted(t *testing.T) {
	rt := newTestRuntime(t, "agents:\n  backend: inmemory\n", scriptedLLM("ok"))
	conv := rt.NewConversation("missing")

	_, err := conv.Send(context.Background(), "hi")
	assert.Error(t, err)

	_, err = conv.Start(context.Background(), nil)
	assert.ErrorIs(t, err, agentstore.ErrAgentNotFound)
}

func TestDefaultLLMFactory(t *testing.T) {
	_, err := DefaultLLMFactory(&config.LLMConfig{Provider: "unknown"})
	assert.Error(t, err)

	llm, err := DefaultLLMFactory(&config.LLMConfig{Provider: config.LLMProviderOllama, Model: "llama3.2"})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderOllama, llm.Provider())
	assert.True(t, strings.HasPrefix(llm.Name(), "llama3.2"))
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
