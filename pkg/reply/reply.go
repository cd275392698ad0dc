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

// Package reply composes free-form LLM replies for llm_request nodes.
package reply

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/convograph/pkg/httpclient"
	"github.com/kadirpekel/convograph/pkg/model"
	"github.com/kadirpekel/convograph/pkg/session"
)

// DefaultFallback is returned when every attempt failed.
const DefaultFallback = "I'm sorry, I can't answer that right now. Please try again in a moment."

// Prompt is the input of one reply.
type Prompt struct {
	// System is the agent and node instruction.
	System string

	// Context holds retrieved snippets for this turn.
	Context []string

	// History is the conversation so far, oldest first.
	History []session.Message
}

// Composer produces reply text. It never fails: exhausted retries yield a
// fallback message.
type Composer interface {
	Generate(ctx context.Context, p Prompt) string
}

// LLMComposer calls an LLM with bounded retries and a trimmed history.
type LLMComposer struct {
	llm           model.LLM
	counter       Counter
	attempts      int
	backoff       time.Duration
	fallback      string
	historyTurns  int
	historyTokens int
}

// Option configures an LLMComposer.
type Option func(*LLMComposer)

func WithAttempts(n int) Option {
	return func(c *LLMComposer) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(c *LLMComposer) { c.backoff = d }
}

func WithFallback(text string) Option {
	return func(c *LLMComposer) {
		if text != "" {
			c.fallback = text
		}
	}
}

// WithHistory limits history to the last turns exchanges and tokens tokens.
// Zero leaves a limit off.
func WithHistory(turns, tokens int) Option {
	return func(c *LLMComposer) {
		c.historyTurns = turns
		c.historyTokens = tokens
	}
}

func WithCounter(counter Counter) Option {
	return func(c *LLMComposer) { c.counter = counter }
}

func NewLLMComposer(llm model.LLM, opts ...Option) *LLMComposer {
	c := &LLMComposer{
		llm:           llm,
		attempts:      3,
		backoff:       500 * time.Millisecond,
		fallback:      DefaultFallback,
		historyTurns:  5,
		historyTokens: 2000,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.counter == nil {
		c.counter = CounterFor(llm.Name())
	}
	return c
}

// Fallback returns the text used when composition fails.
func (c *LLMComposer) Fallback() string {
	return c.fallback
}

func (c *LLMComposer) Generate(ctx context.Context, p Prompt) string {
	req := c.buildRequest(p)

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := httpclient.Sleep(ctx, httpclient.Backoff(c.backoff, attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		resp, err := c.llm.GenerateContent(ctx, req)
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return strings.TrimSpace(resp.Text)
		}
		if err == nil {
			err = model.ErrEmptyResponse
		}
		lastErr = err
		slog.Debug("Reply attempt failed", "attempt", attempt+1, "error", err)

		if errors.Is(err, context.Canceled) {
			break
		}
	}

	slog.Warn("Reply composition failed, using fallback", "attempts", c.attempts, "error", lastErr)
	return c.fallback
}

func (c *LLMComposer) buildRequest(p Prompt) *model.Request {
	var system strings.Builder
	system.WriteString(strings.TrimSpace(p.System))
	if len(p.Context) > 0 {
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString("Use the following context to answer:\n")
		for _, snippet := range p.Context {
			system.WriteString("\n---\n")
			system.WriteString(snippet)
		}
	}

	history := c.trimHistory(p.History)
	messages := make([]model.Message, 0, len(history)+1)
	for _, msg := range history {
		role := model.RoleUser
		if msg.Sender == session.SenderAgent {
			role = model.RoleAssistant
		}
		messages = append(messages, model.Message{Role: role, Content: msg.Text})
	}
	if len(messages) == 0 {
		messages = append(messages, model.Message{Role: model.RoleUser, Content: "Hello."})
	}

	return &model.Request{SystemInstruction: system.String(), Messages: messages}
}

// trimHistory keeps the last historyTurns exchanges, then drops the oldest
// messages until the rest fits historyTokens. The newest message is always
// kept.
func (c *LLMComposer) trimHistory(history []session.Message) []session.Message {
	if c.historyTurns > 0 && len(history) > 2*c.historyTurns {
		history = history[len(history)-2*c.historyTurns:]
	}
	if c.historyTokens <= 0 || len(history) == 0 {
		return history
	}

	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := c.counter.Count(history[i].Text) + messageOverhead
		if total+cost > c.historyTokens && i < len(history)-1 {
			break
		}
		total += cost
		start = i
	}
	return history[start:]
}
