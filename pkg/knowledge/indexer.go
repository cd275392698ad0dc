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

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/convograph/pkg/embedder"
	"github.com/kadirpekel/convograph/pkg/vector"
)

// Indexer chunks already extracted text, embeds the chunks and upserts
// them into the source's collection.
type Indexer struct {
	embedder embedder.Embedder
	store    vector.Provider
	chunker  *Chunker

	// Parallelism bounds concurrent documents in IndexFiles.
	Parallelism int
}

func NewIndexer(emb embedder.Embedder, store vector.Provider, chunker *Chunker) *Indexer {
	return &Indexer{embedder: emb, store: store, chunker: chunker, Parallelism: 4}
}

// Index stores one document and returns the number of chunks written.
// Chunk IDs derive from source, document name and position, so
// re-indexing a document replaces its chunks.
func (ix *Indexer) Index(ctx context.Context, source, name, text string) (int, error) {
	chunks := ix.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	collection := CollectionName(source)
	if err := ix.store.EnsureCollection(ctx, collection, ix.embedder.Dimension()); err != nil {
		return 0, fmt.Errorf("failed to prepare collection %s: %w", collection, err)
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", name, err)
	}

	docs := make([]vector.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = vector.Document{
			ID:      fmt.Sprintf("%s:%s:%d", source, name, i),
			Content: chunk,
			Vector:  vectors[i],
			Metadata: map[string]any{
				"source":   source,
				"document": name,
				"chunk":    i,
			},
		}
	}

	if err := ix.store.Upsert(ctx, collection, docs); err != nil {
		return 0, fmt.Errorf("failed to store %s: %w", name, err)
	}
	slog.Info("Indexed document", "source", source, "document", name, "chunks", len(docs))
	return len(docs), nil
}

// IndexFiles reads and indexes text files concurrently. The first failure
// cancels the remaining work.
func (ix *Indexer) IndexFiles(ctx context.Context, source string, paths []string) (int, error) {
	var total atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(ix.Parallelism, 1))
	for _, path := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			n, err := ix.Index(ctx, source, filepath.Base(path), string(data))
			if err != nil {
				return err
			}
			total.Add(int64(n))
			return nil
		})
	}

	err := g.Wait()
	return int(total.Load()), err
}
