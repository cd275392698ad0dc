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

// Package branch resolves which conditional branch a user utterance
// matches, using an LLM as the classifier.
package branch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kadirpekel/convograph/pkg/model"
)

// NoMatch is the Index of a Classification that selected nothing.
const NoMatch = -1

// Classification is the resolver's verdict. Index is a zero-based index
// into the candidates or NoMatch.
type Classification struct {
	Index      int
	Confidence float64
}

// Matched reports whether a candidate was selected.
func (c Classification) Matched() bool {
	return c.Index != NoMatch
}

var none = Classification{Index: NoMatch}

// Resolver picks the candidate condition an utterance satisfies. system is
// the agent's system prompt; empty means the resolver's own default.
type Resolver interface {
	Classify(ctx context.Context, system string, candidates []string, utterance string) (Classification, error)
}

// LLMResolver asks an LLM to choose among numbered options.
type LLMResolver struct {
	llm    model.LLM
	system string
}

// NewLLMResolver creates a resolver. system is prepended to the
// classification instructions, usually the agent's system prompt.
func NewLLMResolver(llm model.LLM, system string) *LLMResolver {
	return &LLMResolver{llm: llm, system: system}
}

// WithSystem returns a copy using a different system prompt.
func (r *LLMResolver) WithSystem(system string) *LLMResolver {
	return &LLMResolver{llm: r.llm, system: system}
}

func (r *LLMResolver) Classify(ctx context.Context, system string, candidates []string, utterance string) (Classification, error) {
	if len(candidates) == 0 {
		return none, nil
	}
	if system == "" {
		system = r.system
	}

	req := model.Prompt(system, buildPrompt(candidates, utterance)).JSON()
	resp, err := r.llm.GenerateContent(ctx, req)
	if err != nil {
		return none, fmt.Errorf("failed to classify utterance: %w", err)
	}
	return Parse(resp.Text, len(candidates)), nil
}

func buildPrompt(candidates []string, utterance string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User said: %q\n", utterance)
	b.WriteString("Choose the most appropriate option from the following conditions:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	fmt.Fprintf(&b, "Respond only with JSON of the form {\"choice\": N, \"confidence\": C} where N is the option number (1-%d) "+
		"and C is your confidence between 0 and 1. If none match, use 0 for N.", len(candidates))
	return b.String()
}

// Parse interprets a classifier reply for n candidates. Accepted shapes:
//
//	{"choice": 2, "confidence": 0.8}
//	{"scores": [0.1, 0.7, 0.2]}
//	2
//
// Choices are 1-based; 0, out of range and unparsable replies yield NoMatch.
func Parse(text string, n int) Classification {
	text = model.StripCodeFence(text)
	if text == "" || n <= 0 {
		return none
	}

	if strings.HasPrefix(text, "{") {
		var out struct {
			Choice     *json.Number `json:"choice"`
			Confidence *float64     `json:"confidence"`
			Scores     []float64    `json:"scores"`
		}
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return none
		}
		if out.Choice != nil {
			conf := 1.0
			if out.Confidence != nil {
				conf = *out.Confidence
			}
			return fromChoice(out.Choice.String(), conf, n)
		}
		if len(out.Scores) > 0 {
			return fromScores(out.Scores, n)
		}
		return none
	}

	return fromChoice(strings.TrimRight(text, ".)"), 1.0, n)
}

func fromChoice(raw string, confidence float64, n int) Classification {
	choice, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || choice < 1 || choice > n {
		return none
	}
	if math.IsNaN(confidence) {
		return none
	}
	return Classification{Index: choice - 1, Confidence: clamp(confidence)}
}

// fromScores takes the argmax; the first index wins ties.
func fromScores(scores []float64, n int) Classification {
	if len(scores) != n {
		return none
	}
	best := none
	for i, s := range scores {
		if math.IsNaN(s) {
			continue
		}
		if !best.Matched() || s > best.Confidence {
			best = Classification{Index: i, Confidence: s}
		}
	}
	if !best.Matched() || best.Confidence <= 0 {
		return none
	}
	best.Confidence = clamp(best.Confidence)
	return best
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
