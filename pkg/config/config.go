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

// Package config defines the convograph server configuration.
//
// A config document is YAML (or JSON). Values may reference environment
// variables as ${VAR} or ${VAR:-default}. After decoding, SetDefaults fills
// every omitted field so that an empty document describes a working
// in-memory deployment, and Validate rejects inconsistent references.
//
// Example:
//
//	llms:
//	  default:
//	    provider: openai
//	    model: gpt-4o-mini
//	    api_key: ${OPENAI_API_KEY}
//
//	agents:
//	  backend: directory
//	  path: ./agents
//
//	engine:
//	  max_steps: 50
//	  llm: default
package config

import (
	"fmt"
	"sort"

	"github.com/kadirpekel/convograph/pkg/observability"
)

// DefaultLLMName is the key used when a single LLM is configured implicitly.
const DefaultLLMName = "default"

// Config is the root configuration.
type Config struct {
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server,description=HTTP server settings"`

	Logger LoggerConfig `yaml:"logger,omitempty" json:"logger,omitempty" jsonschema:"title=Logger,description=Logging settings"`

	// Databases are named SQL connections referenced by other sections.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty" jsonschema:"title=Databases,description=Named SQL database connections"`

	Sessions SessionsConfig `yaml:"sessions,omitempty" json:"sessions,omitempty" jsonschema:"title=Sessions,description=Session state store"`

	Agents AgentsConfig `yaml:"agents,omitempty" json:"agents,omitempty" jsonschema:"title=Agents,description=Agent graph source"`

	// LLMs are named model endpoints referenced by the engine.
	LLMs map[string]*LLMConfig `yaml:"llms,omitempty" json:"llms,omitempty" jsonschema:"title=LLMs,description=Named LLM providers"`

	// Embedders are named embedding models referenced by knowledge sources.
	Embedders map[string]*EmbedderConfig `yaml:"embedders,omitempty" json:"embedders,omitempty" jsonschema:"title=Embedders,description=Named embedding providers"`

	// VectorStores are named vector indexes referenced by knowledge sources.
	VectorStores map[string]*VectorStoreConfig `yaml:"vector_stores,omitempty" json:"vector_stores,omitempty" jsonschema:"title=Vector Stores,description=Named vector store providers"`

	Knowledge KnowledgeConfig `yaml:"knowledge,omitempty" json:"knowledge,omitempty" jsonschema:"title=Knowledge,description=Knowledge retrieval settings"`

	Engine EngineConfig `yaml:"engine,omitempty" json:"engine,omitempty" jsonschema:"title=Engine,description=Execution engine settings"`

	Webhook WebhookConfig `yaml:"webhook,omitempty" json:"webhook,omitempty" jsonschema:"title=Webhook,description=Outbound webhook settings"`

	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty" jsonschema:"title=Observability,description=Tracing and metrics"`
}

// SetDefaults fills every omitted value.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logger.SetDefaults()

	for _, db := range c.Databases {
		if db != nil {
			db.SetDefaults()
		}
	}

	c.Sessions.SetDefaults()
	c.Agents.SetDefaults()

	if len(c.LLMs) == 0 {
		c.LLMs = map[string]*LLMConfig{DefaultLLMName: {}}
	}
	for _, llm := range c.LLMs {
		if llm != nil {
			llm.SetDefaults()
		}
	}

	for _, e := range c.Embedders {
		if e != nil {
			e.SetDefaults()
		}
	}
	for _, v := range c.VectorStores {
		if v != nil {
			v.SetDefaults()
		}
	}

	c.Knowledge.SetDefaults()
	c.Engine.SetDefaults(c.LLMs)
	c.Webhook.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the configuration, including cross-section references.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	for _, name := range sortedKeys(c.Databases) {
		if c.Databases[name] == nil {
			return fmt.Errorf("databases.%s: empty definition", name)
		}
		if err := c.Databases[name].Validate(); err != nil {
			return fmt.Errorf("databases.%s: %w", name, err)
		}
	}

	if err := c.Sessions.Validate(); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if err := c.requireDatabase(c.Sessions.Database); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}

	if err := c.Agents.Validate(); err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	if err := c.requireDatabase(c.Agents.Database); err != nil {
		return fmt.Errorf("agents: %w", err)
	}

	for _, name := range sortedKeys(c.LLMs) {
		if c.LLMs[name] == nil {
			return fmt.Errorf("llms.%s: empty definition", name)
		}
		if err := c.LLMs[name].Validate(); err != nil {
			return fmt.Errorf("llms.%s: %w", name, err)
		}
	}
	for _, name := range sortedKeys(c.Embedders) {
		if c.Embedders[name] == nil {
			return fmt.Errorf("embedders.%s: empty definition", name)
		}
		if err := c.Embedders[name].Validate(); err != nil {
			return fmt.Errorf("embedders.%s: %w", name, err)
		}
	}
	for _, name := range sortedKeys(c.VectorStores) {
		vs := c.VectorStores[name]
		if vs == nil {
			return fmt.Errorf("vector_stores.%s: empty definition", name)
		}
		if err := vs.Validate(); err != nil {
			return fmt.Errorf("vector_stores.%s: %w", name, err)
		}
	}

	if err := c.Knowledge.Validate(); err != nil {
		return fmt.Errorf("knowledge: %w", err)
	}
	if c.Knowledge.Enabled() {
		if _, ok := c.Embedders[c.Knowledge.Embedder]; !ok {
			return fmt.Errorf("knowledge: embedder %q is not defined", c.Knowledge.Embedder)
		}
		if _, ok := c.VectorStores[c.Knowledge.VectorStore]; !ok {
			return fmt.Errorf("knowledge: vector_store %q is not defined", c.Knowledge.VectorStore)
		}
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	for field, ref := range map[string]string{
		"llm":            c.Engine.LLM,
		"classifier_llm": c.Engine.ClassifierLLM,
		"extractor_llm":  c.Engine.ExtractorLLM,
	} {
		if _, ok := c.LLMs[ref]; !ok {
			return fmt.Errorf("engine.%s: llm %q is not defined", field, ref)
		}
	}

	if err := c.Webhook.Validate(); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	return nil
}

// Database returns a named database config.
func (c *Config) Database(name string) (*DatabaseConfig, error) {
	db, ok := c.Databases[name]
	if !ok || db == nil {
		return nil, fmt.Errorf("database %q is not defined", name)
	}
	return db, nil
}

// LLM returns a named LLM config.
func (c *Config) LLM(name string) (*LLMConfig, error) {
	llm, ok := c.LLMs[name]
	if !ok || llm == nil {
		return nil, fmt.Errorf("llm %q is not defined", name)
	}
	return llm, nil
}

func (c *Config) requireDatabase(name string) error {
	if name == "" {
		return nil
	}
	_, err := c.Database(name)
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BoolValue dereferences b, returning def when nil.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
