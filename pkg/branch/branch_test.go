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

package branch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/convograph/pkg/model"
	"github.com/kadirpekel/convograph/pkg/testutils"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Classification
	}{
		{"json choice", `{"choice": 2, "confidence": 0.8}`, Classification{Index: 1, Confidence: 0.8}},
		{"json choice without confidence", `{"choice": 1}`, Classification{Index: 0, Confidence: 1}},
		{"json choice as string", `{"choice": "3", "confidence": 0.4}`, Classification{Index: 2, Confidence: 0.4}},
		{"json zero", `{"choice": 0, "confidence": 0.9}`, none},
		{"json out of range", `{"choice": 7, "confidence": 0.9}`, none},
		{"json negative", `{"choice": -1}`, none},
		{"confidence clamped", `{"choice": 1, "confidence": 3}`, Classification{Index: 0, Confidence: 1}},
		{"fenced json", "```json\n{\"choice\": 3, \"confidence\": 0.6}\n```", Classification{Index: 2, Confidence: 0.6}},
		{"scores argmax", `{"scores": [0.1, 0.7, 0.2]}`, Classification{Index: 1, Confidence: 0.7}},
		{"scores tie first wins", `{"scores": [0.5, 0.5, 0.1]}`, Classification{Index: 0, Confidence: 0.5}},
		{"scores wrong length", `{"scores": [0.9]}`, none},
		{"scores all zero", `{"scores": [0, 0, 0]}`, none},
		{"bare number", "2", Classification{Index: 1, Confidence: 1}},
		{"bare number with dot", "3.", Classification{Index: 2, Confidence: 1}},
		{"bare zero", "0", none},
		{"prose", "I think option two", none},
		{"empty", "", none},
		{"broken json", `{"choice": `, none},
		{"json without fields", `{"answer": 1}`, none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.input, 3))
		})
	}
}

func TestClassify(t *testing.T) {
	llm := testutils.NewLLM(`{"choice": 1, "confidence": 0.92}`)
	r := NewLLMResolver(llm, "You are a support bot.")

	got, err := r.Classify(context.Background(), "", []string{"wants a refund", "asks about shipping"}, "give me my money back")
	require.NoError(t, err)
	assert.True(t, got.Matched())
	assert.Equal(t, 0, got.Index)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are a support bot.", reqs[0].SystemInstruction)
	assert.True(t, reqs[0].Config.WantsJSON())
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "1. wants a refund\n2. asks about shipping")
	assert.Contains(t, prompt, `"give me my money back"`)
	assert.Contains(t, prompt, "(1-2)")
}

func TestClassify_NoCandidates(t *testing.T) {
	llm := testutils.NewLLM()
	got, err := NewLLMResolver(llm, "").Classify(context.Background(), "", nil, "hi")
	require.NoError(t, err)
	assert.False(t, got.Matched())
	assert.Zero(t, llm.Calls())
}

func TestClassify_LLMError(t *testing.T) {
	r := NewLLMResolver(testutils.FailingLLM(errors.New("timeout")), "")
	got, err := r.Classify(context.Background(), "", []string{"a"}, "hi")
	require.Error(t, err)
	assert.Equal(t, NoMatch, got.Index)
}

func TestClassify_GarbageIsNoMatch(t *testing.T) {
	r := NewLLMResolver(testutils.NewLLM("¯\\_(ツ)_/¯"), "")
	got, err := r.Classify(context.Background(), "", []string{"a", "b"}, "hi")
	require.NoError(t, err)
	assert.False(t, got.Matched())
}

func TestWithSystem(t *testing.T) {
	llm := testutils.NewLLM("1")
	base := NewLLMResolver(llm, "base")
	_, err := base.WithSystem("agent prompt").Classify(context.Background(), "", []string{"a"}, "x")
	require.NoError(t, err)
	assert.Equal(t, "agent prompt", llm.Requests()[0].SystemInstruction)

	var _ model.LLM = llm
}

func TestClassify_CallSystemOverridesDefault(t *testing.T) {
	llm := testutils.NewLLM(`{"choice": 1, "confidence": 0.9}`)
	r := NewLLMResolver(llm, "generic classifier")

	got, err := r.Classify(context.Background(), "You are the ACME refunds desk.", []string{"wants a refund"}, "money back please")
	require.NoError(t, err)
	assert.True(t, got.Matched())
	assert.Equal(t, "You are the ACME refunds desk.", llm.Requests()[0].SystemInstruction)

	_, err = r.Classify(context.Background(), "", []string{"wants a refund"}, "money back please")
	require.NoError(t, err)
	assert.Equal(t, "generic classifier", llm.Requests()[1].SystemInstruction)
}
