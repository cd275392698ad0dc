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

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
	assert.True(t, cfg.Tracing.IsInsecure())
	assert.False(t, cfg.Tracing.IsDebugExporterEnabled())
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
	assert.Equal(t, "convograph", cfg.Metrics.Namespace)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg = Config{Tracing: TracingConfig{Enabled: true, SamplingRate: 2}}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg = Config{Metrics: MetricsConfig{Enabled: true, Endpoint: "metrics"}}
	assert.Error(t, cfg.Validate())
}

func TestPrometheusMetrics_Exposition(t *testing.T) {
	m, err := NewPrometheusMetrics(MetricsConfig{Namespace: "convograph"})
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background()) }()

	ctx := context.Background()
	m.RecordRun(ctx, "support", "start", 3, 20*time.Millisecond, nil)
	m.RecordRun(ctx, "support", "message", 60, time.Second, errors.New("step bound"))
	m.RecordNode(ctx, "webhook", 5*time.Millisecond, nil)
	m.RecordWebhook(ctx, false, 5*time.Millisecond)
	m.RecordLLMCall(ctx, PurposeReply, "gpt-4o-mini", 300*time.Millisecond, nil)
	m.RecordRetrieval(ctx, "faq", 2, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, "convograph_engine_runs_total")
	assert.Contains(t, body, "convograph_engine_run_errors_total")
	assert.Contains(t, body, `agent="support"`)
	assert.Contains(t, body, "convograph_webhook_calls_total")
	assert.Contains(t, body, `purpose="reply"`)
	assert.Contains(t, body, "convograph_retrieval_results")
}

func TestNilTracerIsNoop(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.StartRun(context.Background(), "start", "a", "s")
	assert.NotNil(t, ctx)
	RecordError(span, errors.New("ignored"))
	tracer.AddPayload(span, "req", "resp")
	span.End()

	assert.Nil(t, tracer.DebugExporter())
	assert.NoError(t, tracer.Shutdown(context.Background()))

	disabled, err := NewTracer(context.Background(), &TracingConfig{})
	require.NoError(t, err)
	assert.Nil(t, disabled)
}

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tracer, err := NewTracer(context.Background(), &TracingConfig{Enabled: true, CapturePayloads: true}, WithSpanExporter(exp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })
	return tracer, exp
}

func TestTracer_SpansAndDebugExporter(t *testing.T) {
	tracer, _ := newTestTracer(t)
	require.NotNil(t, tracer.DebugExporter())

	ctx, run := tracer.StartRun(context.Background(), "start", "support", "sess-1")
	_, node := tracer.StartNode(ctx, "greet", "message")
	node.End()
	_, llm := tracer.StartLLMCall(ctx, PurposeReply, "gpt")
	tracer.AddPayload(llm, "prompt", "reply")
	RecordError(llm, errors.New("timeout"))
	llm.End()
	run.End()

	// Unrelated trace.
	_, other := tracer.StartRun(context.Background(), "start", "support", "sess-2")
	other.End()

	spans := tracer.DebugExporter().SessionSpans("sess-1")
	require.Len(t, spans, 3)

	var llmSpan DebugSpan
	for _, s := range spans {
		if s.Name == SpanLLMCall {
			llmSpan = s
		}
	}
	assert.Equal(t, "Error", llmSpan.Status)
	assert.Equal(t, "prompt", llmSpan.Attributes[AttrLLMRequest])
	assert.Equal(t, "timeout", llmSpan.Attributes[AttrErrorMessage])
	assert.NotEmpty(t, llmSpan.ParentSpanID)
}

func TestDebugExporter_RingBuffer(t *testing.T) {
	exp := NewDebugExporterSize(2)
	stubs := tracetest.SpanStubs{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	require.NoError(t, exp.ExportSpans(context.Background(), stubs.Snapshots()))

	spans := exp.Spans("")
	require.Len(t, spans, 2)
	assert.Equal(t, "b", spans[0].Name)
	assert.Equal(t, "c", spans[1].Name)
}

func TestDebugExporter_Handler(t *testing.T) {
	tracer, _ := newTestTracer(t)
	_, span := tracer.StartRun(context.Background(), "start", "support", "sess-9")
	span.End()

	rec := httptest.NewRecorder()
	tracer.DebugExporter().Handler().ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, DebugSpansPath+"?session_id=sess-9", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), SpanEngineRun)

	rec = httptest.NewRecorder()
	tracer.DebugExporter().Handler().ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, DebugSpansPath+"?session_id=unknown", nil))
	assert.JSONEq(t, `{"spans":[]}`, rec.Body.String())
}

func TestHTTPMiddleware_UsesRoutePattern(t *testing.T) {
	m, err := NewPrometheusMetrics(MetricsConfig{Namespace: "convograph"})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(nil, m))
	r.Get("/v1/sessions/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(out.Body)
	assert.True(t, strings.Contains(string(body), `route="/v1/sessions/{sessionID}"`))
	assert.Contains(t, string(body), `status="418"`)
}

func TestManager(t *testing.T) {
	m := NewManager(Config{Metrics: MetricsConfig{Enabled: true}})
	require.NoError(t, m.Initialize(context.Background()))
	assert.Nil(t, m.Tracer())
	assert.NotNil(t, m.MetricsHandler())
	assert.Equal(t, "/metrics", m.MetricsPath())
	_, ok := m.Metrics().(*PrometheusMetrics)
	assert.True(t, ok)
	assert.NoError(t, m.Shutdown(context.Background()))

	noop := NoopManager()
	assert.Nil(t, noop.MetricsHandler())
	assert.Equal(t, NoopMetrics{}, noop.Metrics())
}
