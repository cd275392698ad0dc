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

// Package extract pulls webhook parameter values out of the recent
// conversation with an LLM.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kadirpekel/convograph/pkg/model"
	"github.com/kadirpekel/convograph/pkg/session"
)

// Param describes a value to look for.
type Param struct {
	Name        string
	Description string
}

// Extractor finds parameter values in a conversation. Parameters that are
// not found are absent from the result. An empty system keeps the
// extractor's default instructions.
type Extractor interface {
	Extract(ctx context.Context, system string, params []Param, conversation []session.Message) (map[string]string, error)
}

// LLMExtractor asks an LLM for a flat JSON object of found values.
type LLMExtractor struct {
	llm    model.LLM
	system string
}

func NewLLMExtractor(llm model.LLM, system string) *LLMExtractor {
	return &LLMExtractor{llm: llm, system: system}
}

// WithSystem returns a copy using a different system prompt.
func (e *LLMExtractor) WithSystem(system string) *LLMExtractor {
	return &LLMExtractor{llm: e.llm, system: system}
}

func (e *LLMExtractor) Extract(ctx context.Context, system string, params []Param, conversation []session.Message) (map[string]string, error) {
	if len(params) == 0 {
		return map[string]string{}, nil
	}
	if system == "" {
		system = e.system
	}

	resp, err := e.llm.GenerateContent(ctx, model.Prompt(system, buildPrompt(params, conversation)).JSON())
	if err != nil {
		return nil, fmt.Errorf("failed to extract parameters: %w", err)
	}
	return Parse(resp.Text, params), nil
}

func buildPrompt(params []Param, conversation []session.Message) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	for _, msg := range conversation {
		if msg.Sender == session.SenderUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nExtract values for the following parameters:\n")
	for _, p := range params {
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
	}
	b.WriteString(`Return JSON with found parameters in the format {"PARAM_NAME": "PARAM_VALUE"}. ` +
		"If a parameter is not found, skip it. Return only the JSON without any formatting.")
	return b.String()
}

// Parse reads a JSON object reply and keeps the requested, non-empty
// values. Scalars are stringified; anything else is re-encoded as JSON.
func Parse(text string, params []Param) map[string]string {
	found := make(map[string]string)

	var raw map[string]any
	if err := json.Unmarshal([]byte(model.StripCodeFence(text)), &raw); err != nil {
		return found
	}

	for _, p := range params {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = strings.TrimSpace(val)
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(val)
		default:
			data, err := json.Marshal(val)
			if err != nil {
				continue
			}
			s = string(data)
		}
		if s != "" {
			found[p.Name] = s
		}
	}
	return found
}
