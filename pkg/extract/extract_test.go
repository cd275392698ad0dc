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

package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/convograph/pkg/session"
	"github.com/kadirpekel/convograph/pkg/testutils"
)

var orderParams = []Param{
	{Name: "order_id", Description: "the order number"},
	{Name: "email", Description: "customer email"},
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{"all found", `{"order_id": "A-17", "email": "a@b.c"}`, map[string]string{"order_id": "A-17", "email": "a@b.c"}},
		{"number stringified", `{"order_id": 1234}`, map[string]string{"order_id": "1234"}},
		{"null and empty skipped", `{"order_id": null, "email": "  "}`, map[string]string{}},
		{"unrequested dropped", `{"order_id": "A", "name": "Bob"}`, map[string]string{"order_id": "A"}},
		{"fenced", "```json\n{\"email\": \"x@y.z\"}\n```", map[string]string{"email": "x@y.z"}},
		{"object re-encoded", `{"order_id": {"id": 5}}`, map[string]string{"order_id": `{"id":5}`}},
		{"not json", "The order id is A-17", map[string]string{}},
		{"array", `["A-17"]`, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.text, orderParams))
		})
	}
}

func TestExtract(t *testing.T) {
	llm := testutils.NewLLM(`{"order_id": "A-17"}`)
	ex := NewLLMExtractor(llm, "You help with orders.")

	conversation := []session.Message{
		session.AgentMessage("How can I help?"),
		session.UserMessage("Where is order A-17?"),
	}
	found, err := ex.Extract(context.Background(), "", orderParams, conversation)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"order_id": "A-17"}, found)

	req := llm.Requests()[0]
	assert.Equal(t, "You help with orders.", req.SystemInstruction)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "Assistant: How can I help?\nUser: Where is order A-17?\n")
	assert.Contains(t, prompt, "- order_id: the order number\n- email: customer email\n")
}

func TestExtract_NoParamsSkipsLLM(t *testing.T) {
	llm := testutils.NewLLM()
	found, err := NewLLMExtractor(llm, "").Extract(context.Background(), "", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Zero(t, llm.Calls())
}

func TestExtract_LLMError(t *testing.T) {
	ex := NewLLMExtractor(testutils.FailingLLM(errors.New("down")), "")
	_, err := ex.Extract(context.Background(), "", orderParams, nil)
	require.Error(t, err)
}

func TestExtract_CallSystemOverridesDefault(t *testing.T) {
	llm := testutils.NewLLM(`{"email": "a@b.co"}`)
	ex := NewLLMExtractor(llm, "default extractor")

	_, err := ex.Extract(context.Background(), "You are the ACME refunds desk.", orderParams, nil)
	require.NoError(t, err)
	assert.Equal(t, "You are the ACME refunds desk.", llm.Requests()[0].SystemInstruction)
}
