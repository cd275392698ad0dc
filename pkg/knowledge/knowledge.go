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

// Package knowledge retrieves context snippets for knowledge nodes and
// indexes plain text into the vector store that backs them.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/convograph/pkg/embedder"
	"github.com/kadirpekel/convograph/pkg/vector"
)

// Snippet is one retrieved piece of context.
type Snippet struct {
	ID     string
	Source string
	Text   string
	Score  float32
}

// Retriever fetches the best matching snippets for a query within a
// source. Results are ordered by descending score and may be empty.
type Retriever interface {
	Retrieve(ctx context.Context, source, query string, opts ...RetrieveOption) ([]Snippet, error)
}

// RetrieveOption adjusts a single retrieval.
type RetrieveOption func(*retrieveOptions)

type retrieveOptions struct {
	topK int
}

// WithTopK overrides the default result count when k is positive.
func WithTopK(k int) RetrieveOption {
	return func(o *retrieveOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

const DefaultTopK = 5

// VectorRetriever embeds the query and searches the collection named after
// the source.
type VectorRetriever struct {
	embedder embedder.Embedder
	store    vector.Provider
	topK     int
	minScore float32
}

// Option configures a VectorRetriever.
type Option func(*VectorRetriever)

func WithDefaultTopK(k int) Option {
	return func(r *VectorRetriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithMinScore drops results scoring below min.
func WithMinScore(min float64) Option {
	return func(r *VectorRetriever) {
		r.minScore = float32(min)
	}
}

func NewRetriever(emb embedder.Embedder, store vector.Provider, opts ...Option) *VectorRetriever {
	r := &VectorRetriever{embedder: emb, store: store, topK: DefaultTopK}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *VectorRetriever) Retrieve(ctx context.Context, source, query string, opts ...RetrieveOption) ([]Snippet, error) {
	query = strings.TrimSpace(query)
	if source == "" || query == "" {
		return nil, nil
	}

	o := retrieveOptions{topK: r.topK}
	for _, opt := range opts {
		opt(&o)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.store.Search(ctx, CollectionName(source), vec, o.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", source, err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, res := range results {
		if res.Score < r.minScore {
			continue
		}
		snippets = append(snippets, Snippet{
			ID:     res.ID,
			Source: source,
			Text:   res.Content,
			Score:  res.Score,
		})
	}
	slog.Debug("Knowledge retrieved", "source", source, "hits", len(results), "kept", len(snippets))
	return snippets, nil
}

// NopRetriever never finds anything. It stands in when no embedder is
// configured, so knowledge nodes still advance.
type NopRetriever struct{}

func (NopRetriever) Retrieve(context.Context, string, string, ...RetrieveOption) ([]Snippet, error) {
	return nil, nil
}

// CollectionName maps a source reference onto a collection name accepted
// by every vector backend.
func CollectionName(source string) string {
	var b strings.Builder
	b.WriteString("kb_")
	for _, r := range strings.ToLower(source) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
