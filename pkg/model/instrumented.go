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

package model

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/convograph/pkg/observability"
)

// instrumented records a span and metrics around every call.
type instrumented struct {
	LLM
	purpose string
	tracer  *observability.Tracer
	metrics observability.Metrics
}

// WithObservability wraps llm so each call is traced and measured under
// purpose. A nil tracer and nil metrics leave llm unwrapped.
func WithObservability(llm LLM, purpose string, tracer *observability.Tracer, metrics observability.Metrics) LLM {
	if tracer == nil && metrics == nil {
		return llm
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &instrumented{LLM: llm, purpose: purpose, tracer: tracer, metrics: metrics}
}

func (i *instrumented) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	ctx, span := i.tracer.StartLLMCall(ctx, i.purpose, i.Name())
	defer span.End()

	resp, err := i.LLM.GenerateContent(ctx, req)

	i.metrics.RecordLLMCall(ctx, i.purpose, i.Name(), time.Since(start), err)
	observability.RecordError(span, err)
	if resp != nil {
		span.SetAttributes(
			attribute.Int(observability.AttrLLMInputTokens, resp.Usage.PromptTokens),
			attribute.Int(observability.AttrLLMOutputTokens, resp.Usage.CompletionTokens),
		)
		i.tracer.AddPayload(span, renderRequest(req), resp.Text)
	}
	return resp, err
}

func renderRequest(req *Request) string {
	if req == nil {
		return ""
	}
	var b strings.Builder
	if req.SystemInstruction != "" {
		b.WriteString("system: ")
		b.WriteString(req.SystemInstruction)
		b.WriteString("\n")
	}
	for _, m := range req.Messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
