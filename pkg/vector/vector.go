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

// Package vector stores embedded knowledge chunks and answers similarity
// queries. Each knowledge source maps to one collection.
package vector

import (
	"context"
	"errors"
)

// Document is one embedded chunk.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Result is a scored search hit. Higher Score is more similar.
type Result struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]any
}

// Provider is a vector index backend.
type Provider interface {
	Name() string

	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// Upsert adds or replaces documents by ID.
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Search returns at most topK results ordered by descending score.
	// A missing or empty collection yields no results and no error.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	DeleteCollection(ctx context.Context, collection string) error

	Close() error
}

// ErrDimensionMismatch is returned when a vector does not match the
// collection dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// contentKey is the metadata key carrying chunk text in backends without a
// dedicated content field.
const contentKey = "content"

func withContent(doc Document) map[string]any {
	meta := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[contentKey] = doc.Content
	return meta
}

func splitContent(meta map[string]any) (string, map[string]any) {
	content, _ := meta[contentKey].(string)
	delete(meta, contentKey)
	return content, meta
}
