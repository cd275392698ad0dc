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
	"fmt"

	"github.com/kadirpekel/convograph/pkg/config"
	"github.com/kadirpekel/convograph/pkg/embedder"
	"github.com/kadirpekel/convograph/pkg/model"
	"github.com/kadirpekel/convograph/pkg/model/gemini"
	"github.com/kadirpekel/convograph/pkg/model/ollama"
	"github.com/kadirpekel/convograph/pkg/model/openai"
	"github.com/kadirpekel/convograph/pkg/vector"
)

// LLMFactory creates an LLM from its configuration.
type LLMFactory func(cfg *config.LLMConfig) (model.LLM, error)

// EmbedderFactory creates an embedder from its configuration.
type EmbedderFactory func(cfg *config.EmbedderConfig) (embedder.Embedder, error)

// VectorStoreFactory creates a vector store from its configuration.
type VectorStoreFactory func(ctx context.Context, cfg *config.VectorStoreConfig) (vector.Provider, error)

// DefaultLLMFactory creates LLM instances based on provider type.
func DefaultLLMFactory(cfg *config.LLMConfig) (model.LLM, error) {
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
		})

	case config.LLMProviderGemini:
		return gemini.New(gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
		})

	case config.LLMProviderOllama:
		return ollama.New(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			NumPredict:  cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// DefaultEmbedderFactory creates Embedder instances based on provider type.
func DefaultEmbedderFactory(cfg *config.EmbedderConfig) (embedder.Embedder, error) {
	return embedder.New(cfg)
}

// DefaultVectorStoreFactory creates vector stores based on store type.
func DefaultVectorStoreFactory(ctx context.Context, cfg *config.VectorStoreConfig) (vector.Provider, error) {
	return vector.New(ctx, cfg)
}
