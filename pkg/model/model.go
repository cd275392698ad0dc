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

// Package model defines the LLM interface used by the conversation engine.
//
// Providers live in subpackages (openai, gemini, ollama) and are selected
// from configuration by the runtime. Calls are single-shot: one request
// produces one complete Response.
package model

import (
	"context"
	"errors"
	"strings"
)

// LLM is a text completion backend.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the backend type.
	Provider() Provider

	// GenerateContent produces one completion for the request.
	GenerateContent(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources held by the LLM.
	Close() error
}

// Provider identifies the LLM provider.
type Provider string

const (
	ProviderOpenAI  Provider = "openai"
	ProviderGemini  Provider = "gemini"
	ProviderOllama  Provider = "ollama"
	ProviderUnknown Provider = "unknown"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request contains the input for an LLM call.
type Request struct {
	// SystemInstruction is prepended to the conversation.
	SystemInstruction string

	// Messages is the conversation, oldest first.
	Messages []Message

	// Config overrides the provider defaults. Optional.
	Config *GenerateConfig
}

// GenerateConfig contains configuration for generation.
type GenerateConfig struct {
	// Temperature controls randomness (0-2).
	Temperature *float64

	// MaxTokens limits the response length.
	MaxTokens *int

	// ResponseMIMEType requests structured output ("application/json").
	ResponseMIMEType string
}

// WantsJSON reports whether the caller asked for a JSON object response.
func (c *GenerateConfig) WantsJSON() bool {
	return c != nil && c.ResponseMIMEType == MIMETypeJSON
}

// MIMETypeJSON is the ResponseMIMEType for JSON object output.
const MIMETypeJSON = "application/json"

// Usage reports token consumption when the provider returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed generation.
type Response struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// ErrEmptyResponse is returned when the provider produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Prompt builds a single-turn request.
func Prompt(system, user string) *Request {
	return &Request{
		SystemInstruction: system,
		Messages:          []Message{{Role: RoleUser, Content: user}},
	}
}

// JSON returns a copy of the request asking for JSON output at
// temperature zero.
func (r *Request) JSON() *Request {
	clone := *r
	cfg := GenerateConfig{}
	if r.Config != nil {
		cfg = *r.Config
	}
	zero := 0.0
	cfg.Temperature = &zero
	cfg.ResponseMIMEType = MIMETypeJSON
	clone.Config = &cfg
	return &clone
}

// StripCodeFence removes a surrounding markdown code fence, which some
// models add around JSON even when asked not to.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
