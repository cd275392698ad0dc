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

package config

import "fmt"

// EmbedderConfig configures an embedding model.
type EmbedderConfig struct {
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=openai,enum=gemini,enum=ollama"`

	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Dimension of the produced vectors. Derived from well known models.
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty"`

	// BatchSize caps inputs per embedding request.
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty" jsonschema:"default=64"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}
	if c.Model == "" {
		switch c.Provider {
		case LLMProviderOpenAI:
			c.Model = "text-embedding-3-small"
		case LLMProviderGemini:
			c.Model = "text-embedding-004"
		case LLMProviderOllama:
			c.Model = "nomic-embed-text"
		}
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Provider)
	}
	if c.Dimension == 0 {
		c.Dimension = knownDimensions[c.Model]
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
}

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
}

func (c *EmbedderConfig) Validate() error {
	switch c.Provider {
	case LLMProviderOpenAI, LLMProviderGemini, LLMProviderOllama:
	default:
		return fmt.Errorf("invalid provider %q (valid: openai, gemini, ollama)", c.Provider)
	}
	if c.Provider != LLMProviderOllama && c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension is required for model %q", c.Model)
	}
	return nil
}

// VectorStoreConfig configures a vector index.
type VectorStoreConfig struct {
	// Type is chromem (embedded, default), qdrant, pinecone or pgvector.
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"enum=chromem,enum=qdrant,enum=pinecone,enum=pgvector,default=chromem"`

	// PersistPath stores chromem data on disk. Empty keeps it in memory.
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty"`

	// Compress gzips chromem files.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty"`

	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	UseTLS bool `yaml:"use_tls,omitempty" json:"use_tls,omitempty"`

	// IndexName is the pinecone index.
	IndexName string `yaml:"index_name,omitempty" json:"index_name,omitempty"`

	// URL is the postgres connection string for pgvector.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Table prefix for pgvector collections.
	Table string `yaml:"table,omitempty" json:"table,omitempty" jsonschema:"default=knowledge"`

	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty" jsonschema:"default=10"`
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	switch c.Type {
	case "qdrant":
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 6334
		}
	case "pgvector":
		if c.Table == "" {
			c.Table = "knowledge"
		}
		if c.MaxConns == 0 {
			c.MaxConns = 10
		}
	}
}

func (c *VectorStoreConfig) Validate() error {
	switch c.Type {
	case "chromem":
	case "qdrant":
		if c.Host == "" {
			return fmt.Errorf("host is required for qdrant")
		}
	case "pinecone":
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for pinecone")
		}
		if c.IndexName == "" && c.Host == "" {
			return fmt.Errorf("index_name or host is required for pinecone")
		}
	case "pgvector":
		if c.URL == "" {
			return fmt.Errorf("url is required for pgvector")
		}
	default:
		return fmt.Errorf("invalid type %q (valid: chromem, qdrant, pinecone, pgvector)", c.Type)
	}
	return nil
}

// KnowledgeConfig wires knowledge nodes to an embedder and a vector store.
// Knowledge nodes resolve to no snippets when Embedder is empty.
type KnowledgeConfig struct {
	Embedder string `yaml:"embedder,omitempty" json:"embedder,omitempty"`

	VectorStore string `yaml:"vector_store,omitempty" json:"vector_store,omitempty"`

	// TopK is used when a knowledge node does not set its own.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty" jsonschema:"default=5"`

	// MinScore drops snippets scoring below it.
	MinScore float64 `yaml:"min_score,omitempty" json:"min_score,omitempty"`

	ChunkSize int `yaml:"chunk_size,omitempty" json:"chunk_size,omitempty" jsonschema:"default=1000"`

	ChunkOverlap int `yaml:"chunk_overlap,omitempty" json:"chunk_overlap,omitempty" jsonschema:"default=200"`
}

func (c *KnowledgeConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
}

func (c *KnowledgeConfig) Validate() error {
	if c.Embedder != "" && c.VectorStore == "" {
		return fmt.Errorf("vector_store is required when embedder is set")
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be smaller than chunk_size")
	}
	return nil
}

// Enabled reports whether knowledge retrieval is wired.
func (c *KnowledgeConfig) Enabled() bool {
	return c.Embedder != ""
}
