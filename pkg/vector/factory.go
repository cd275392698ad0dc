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

	"github.com/kadirpekel/convograph/pkg/config"
)

// ProviderType identifies a vector provider implementation.
type ProviderType string

const (
	// ProviderChromem is embedded and needs no external service.
	ProviderChromem ProviderType = "chromem"

	ProviderQdrant   ProviderType = "qdrant"
	ProviderPinecone ProviderType = "pinecone"

	// ProviderPgVector uses PostgreSQL with the pgvector extension.
	ProviderPgVector ProviderType = "pgvector"
)

// New creates a vector provider from configuration.
func New(ctx context.Context, cfg *config.VectorStoreConfig) (Provider, error) {
	switch ProviderType(cfg.Type) {
	case ProviderChromem, "":
		return NewChromemProvider(ChromemConfig{
			PersistPath: cfg.PersistPath,
			Compress:    cfg.Compress,
		})
	case ProviderQdrant:
		return NewQdrantProvider(QdrantConfig{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		})
	case ProviderPinecone:
		return NewPineconeProvider(PineconeConfig{
			APIKey:    cfg.APIKey,
			IndexName: cfg.IndexName,
			Host:      cfg.Host,
		})
	case ProviderPgVector:
		return NewPgVectorProvider(ctx, PgVectorConfig{
			URL:      cfg.URL,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		})
	default:
		return nil, fmt.Errorf("unknown vector provider type: %q", cfg.Type)
	}
}
