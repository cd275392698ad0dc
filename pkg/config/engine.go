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

import (
	"fmt"
	"time"
)

// EngineConfig tunes the execution engine.
type EngineConfig struct {
	// MaxSteps bounds node executions per turn.
	MaxSteps int `yaml:"max_steps,omitempty" json:"max_steps,omitempty" jsonschema:"minimum=1,default=50"`

	// LLM composes llm_request replies.
	LLM string `yaml:"llm,omitempty" json:"llm,omitempty"`

	// ClassifierLLM resolves conditional_llm branches. Defaults to LLM.
	ClassifierLLM string `yaml:"classifier_llm,omitempty" json:"classifier_llm,omitempty"`

	// ExtractorLLM extracts webhook parameters. Defaults to LLM.
	ExtractorLLM string `yaml:"extractor_llm,omitempty" json:"extractor_llm,omitempty"`

	// MinConfidence is the branch acceptance threshold.
	MinConfidence float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty" jsonschema:"minimum=0,maximum=1,default=0.5"`

	// HistoryTurns caps user/agent exchanges sent to the LLM.
	HistoryTurns int `yaml:"history_turns,omitempty" json:"history_turns,omitempty" jsonschema:"default=5"`

	// HistoryTokens caps the token size of that history.
	HistoryTokens int `yaml:"history_tokens,omitempty" json:"history_tokens,omitempty" jsonschema:"default=2000"`

	ReplyAttempts int `yaml:"reply_attempts,omitempty" json:"reply_attempts,omitempty" jsonschema:"default=3"`

	ReplyBackoff time.Duration `yaml:"reply_backoff,omitempty" json:"reply_backoff,omitempty" jsonschema:"type=string,default=500ms"`

	// FallbackMessage is sent when no reply could be composed.
	FallbackMessage string `yaml:"fallback_message,omitempty" json:"fallback_message,omitempty"`

	// ApologyMessage is sent when a turn fails.
	ApologyMessage string `yaml:"apology_message,omitempty" json:"apology_message,omitempty"`
}

func (c *EngineConfig) SetDefaults(llms map[string]*LLMConfig) {
	if c.MaxSteps == 0 {
		c.MaxSteps = 50
	}
	if c.LLM == "" {
		c.LLM = firstLLM(llms)
	}
	if c.ClassifierLLM == "" {
		c.ClassifierLLM = c.LLM
	}
	if c.ExtractorLLM == "" {
		c.ExtractorLLM = c.LLM
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.5
	}
	if c.HistoryTurns == 0 {
		c.HistoryTurns = 5
	}
	if c.HistoryTokens == 0 {
		c.HistoryTokens = 2000
	}
	if c.ReplyAttempts == 0 {
		c.ReplyAttempts = 3
	}
	if c.ReplyBackoff == 0 {
		c.ReplyBackoff = 500 * time.Millisecond
	}
}

// firstLLM prefers DefaultLLMName, then the alphabetically first entry.
func firstLLM(llms map[string]*LLMConfig) string {
	if _, ok := llms[DefaultLLMName]; ok {
		return DefaultLLMName
	}
	if keys := sortedKeys(llms); len(keys) > 0 {
		return keys[0]
	}
	return DefaultLLMName
}

func (c *EngineConfig) Validate() error {
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1")
	}
	if c.ReplyAttempts < 1 {
		return fmt.Errorf("reply_attempts must be positive")
	}
	if c.HistoryTurns < 0 || c.HistoryTokens < 0 {
		return fmt.Errorf("history limits must be non-negative")
	}
	return nil
}

// WebhookConfig configures outbound webhook calls.
type WebhookConfig struct {
	// Timeout applies to each call unless a node overrides it.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"type=string,default=5s"`

	// MaxRetries is zero by default: webhooks may not be idempotent.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"minimum=0,default=0"`

	BaseDelay time.Duration `yaml:"base_delay,omitempty" json:"base_delay,omitempty" jsonschema:"type=string,default=500ms"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty" json:"insecure_skip_verify,omitempty"`

	// Headers are sent with every call.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

func (c *WebhookConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
}

func (c *WebhookConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	return nil
}
