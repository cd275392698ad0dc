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

package observability

const (
	DefaultServiceName  = "convograph"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
	DebugSpansPath      = "/debug/spans"
)

// Span names.
const (
	SpanEngineRun     = "engine.run"
	SpanNodeExecution = "engine.node"
	SpanWebhookCall   = "webhook.call"
	SpanLLMCall       = "llm.call"
	SpanRetrieval     = "knowledge.retrieve"
	SpanHTTPRequest   = "http.request"
)

// Span attribute keys.
const (
	AttrAgentID   = "convograph.agent.id"
	AttrSessionID = "convograph.session.id"
	AttrOperation = "convograph.operation"
	AttrNodeID    = "convograph.node.id"
	AttrNodeType  = "convograph.node.type"
	AttrSteps     = "convograph.steps"
	AttrStatus    = "convograph.session.status"
	AttrPurpose   = "convograph.llm.purpose"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMInputTokens  = "gen_ai.usage.input_tokens"
	AttrLLMOutputTokens = "gen_ai.usage.output_tokens"
	AttrLLMRequest      = "convograph.llm.request"
	AttrLLMResponse     = "convograph.llm.response"

	AttrWebhookURL    = "convograph.webhook.url"
	AttrWebhookMethod = "convograph.webhook.method"
	AttrWebhookOK     = "convograph.webhook.ok"

	AttrRetrievalSource  = "convograph.knowledge.source"
	AttrRetrievalTopK    = "convograph.knowledge.top_k"
	AttrRetrievalResults = "convograph.knowledge.results"

	AttrHTTPMethod     = "http.request.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.response.status_code"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// LLM call purposes.
const (
	PurposeReply    = "reply"
	PurposeClassify = "classify"
	PurposeExtract  = "extract"
)
