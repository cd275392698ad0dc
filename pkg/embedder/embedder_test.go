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

package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/convograph/pkg/config"
)

func TestBatched(t *testing.T) {
	var sizes []int
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		sizes = append(sizes, len(texts))
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(len(texts[i]))}
		}
		return out, nil
	}

	vecs, err := batched(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, 2, fn)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	require.Len(t, vecs, 5)
	assert.Equal(t, float32(4), vecs[3][0])
}

func TestBatched_CountMismatch(t *testing.T) {
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	_, err := batched(context.Background(), []string{"a", "b"}, 10, fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestBatched_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	fn := func(_ context.Context, texts []string) ([][]float32, error) { return nil, boom }
	_, err := batched(context.Background(), []string{"a"}, 1, fn)
	assert.ErrorIs(t, err, boom)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(&config.EmbedderConfig{Provider: "cohere"})
	require.Error(t, err)
}

func TestOllamaEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cfg := &config.EmbedderConfig{Provider: config.LLMProviderOllama, BaseURL: server.URL}
	cfg.SetDefaults()

	emb, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 768, emb.Dimension())
	assert.Equal(t, "nomic-embed-text", emb.Model())

	vec, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)

	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}

func TestOllamaEmbedder_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	emb, err := NewOllama(&config.EmbedderConfig{Model: "missing", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestOpenAIEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose.
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.2]},
				{"object": "embedding", "index": 0, "embedding": [0.1]}
			],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	emb, err := NewOpenAI(&config.EmbedderConfig{APIKey: "sk-test", Model: "text-embedding-3-small", BaseURL: server.URL})
	require.NoError(t, err)

	vecs, err := emb.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1}, {0.2}}, vecs)
}
