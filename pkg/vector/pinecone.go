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

package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the Pinecone vector provider.
type PineconeConfig struct {
	APIKey string

	// IndexName is resolved to a host on first use.
	IndexName string

	// Host is the index data-plane host. Skips the describe call when set.
	Host string
}

// PineconeProvider implements Provider on one Pinecone index, mapping each
// collection onto a namespace.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string
	host      string
}

func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}
	return &PineconeProvider{client: client, indexName: cfg.IndexName, host: cfg.Host}, nil
}

func (p *PineconeProvider) Name() string {
	return "pinecone"
}

func (p *PineconeProvider) resolveHost(ctx context.Context) (string, error) {
	if p.host != "" {
		return p.host, nil
	}
	index, err := p.client.DescribeIndex(ctx, p.indexName)
	if err != nil {
		return "", fmt.Errorf("failed to describe index %s: %w", p.indexName, err)
	}
	p.host = index.Host
	return p.host, nil
}

func (p *PineconeProvider) connect(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	host, err := p.resolveHost(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return conn, nil
}

// EnsureCollection only verifies the index: namespaces are implicit and
// indexes are provisioned out of band.
func (p *PineconeProvider) EnsureCollection(ctx context.Context, _ string, dimension int) error {
	if p.indexName == "" {
		return nil
	}
	index, err := p.client.DescribeIndex(ctx, p.indexName)
	if err != nil {
		return fmt.Errorf("failed to describe index %s: %w", p.indexName, err)
	}
	if index.Dimension != int32(dimension) {
		return fmt.Errorf("%w: index %s has %d, embedder produces %d",
			ErrDimensionMismatch, p.indexName, index.Dimension, dimension)
	}
	p.host = index.Host
	return nil
}

func (p *PineconeProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	vectors := make([]*pinecone.Vector, 0, len(docs))
	for _, doc := range docs {
		meta, err := structpb.NewStruct(withContent(doc))
		if err != nil {
			return fmt.Errorf("failed to convert metadata: %w", err)
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       doc.ID,
			Values:   doc.Vector,
			Metadata: meta,
		})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}
	return convertPineconeResults(resp.Matches), nil
}

func (p *PineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", collection, err)
	}
	return nil
}

func (p *PineconeProvider) Close() error {
	return nil
}

func convertPineconeResults(matches []*pinecone.ScoredVector) []Result {
	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		if match.Vector == nil {
			continue
		}
		meta := map[string]any{}
		if match.Vector.Metadata != nil {
			meta = match.Vector.Metadata.AsMap()
		}
		content, meta := splitContent(meta)
		results = append(results, Result{
			ID:       match.Vector.Id,
			Content:  content,
			Score:    match.Score,
			Metadata: meta,
		})
	}
	return results
}

var _ Provider = (*PineconeProvider)(nil)
