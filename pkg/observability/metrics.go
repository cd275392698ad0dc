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
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records engine activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// RecordRun records one StartSession or PostUserMessage call.
	RecordRun(ctx context.Context, agentID, operation string, steps int, duration time.Duration, err error)
	RecordNode(ctx context.Context, nodeType string, duration time.Duration, err error)
	RecordWebhook(ctx context.Context, ok bool, duration time.Duration)
	RecordLLMCall(ctx context.Context, purpose, model string, duration time.Duration, err error)
	RecordRetrieval(ctx context.Context, source string, results int, duration time.Duration, err error)
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// PrometheusMetrics records through an OpenTelemetry meter exported into
// its own Prometheus registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	runDuration  metric.Float64Histogram
	runsTotal    metric.Int64Counter
	runErrors    metric.Int64Counter
	stepsPerRun  metric.Int64Histogram
	nodeDuration metric.Float64Histogram
	nodesTotal   metric.Int64Counter
	nodeErrors   metric.Int64Counter

	webhookDuration metric.Float64Histogram
	webhooksTotal   metric.Int64Counter

	llmDuration metric.Float64Histogram
	llmCalls    metric.Int64Counter
	llmErrors   metric.Int64Counter

	retrievalDuration metric.Float64Histogram
	retrievalResults  metric.Int64Histogram
	retrievalErrors   metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

// NewPrometheusMetrics builds the instruments. Metric names are prefixed
// with cfg.Namespace.
func NewPrometheusMetrics(cfg MetricsConfig) (*PrometheusMetrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
		otelprom.WithoutScopeInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(DefaultServiceName)
	m := &PrometheusMetrics{registry: registry, provider: provider}

	b := instrumentBuilder{meter: meter}
	m.runDuration = b.histogram("engine_run_duration_seconds", "Engine call duration in seconds")
	m.runsTotal = b.counter("engine_runs_total", "Engine calls")
	m.runErrors = b.counter("engine_run_errors_total", "Engine calls ending in an execution error")
	m.stepsPerRun = b.intHistogram("engine_steps_per_run", "Nodes executed per engine call")
	m.nodeDuration = b.histogram("node_duration_seconds", "Node execution duration in seconds")
	m.nodesTotal = b.counter("node_executions_total", "Node executions")
	m.nodeErrors = b.counter("node_errors_total", "Node executions that failed")
	m.webhookDuration = b.histogram("webhook_duration_seconds", "Webhook call duration in seconds")
	m.webhooksTotal = b.counter("webhook_calls_total", "Webhook calls")
	m.llmDuration = b.histogram("llm_request_duration_seconds", "LLM request duration in seconds")
	m.llmCalls = b.counter("llm_calls_total", "LLM calls")
	m.llmErrors = b.counter("llm_errors_total", "LLM calls that failed")
	m.retrievalDuration = b.histogram("retrieval_duration_seconds", "Knowledge retrieval duration in seconds")
	m.retrievalResults = b.intHistogram("retrieval_results", "Snippets returned per retrieval")
	m.retrievalErrors = b.counter("retrieval_errors_total", "Knowledge retrievals that failed")
	m.httpDuration = b.histogram("http_request_duration_seconds", "HTTP request duration in seconds")
	m.httpRequests = b.counter("http_requests_total", "HTTP requests")
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// instrumentBuilder keeps the first creation error.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	b.keep(name, err)
	return h
}

func (b *instrumentBuilder) intHistogram(name, desc string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(desc))
	b.keep(name, err)
	return h
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return c
}

func (b *instrumentBuilder) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func (m *PrometheusMetrics) RecordRun(ctx context.Context, agentID, operation string, steps int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("agent", agentID),
		attribute.String("operation", operation),
	)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
	m.runsTotal.Add(ctx, 1, attrs)
	m.stepsPerRun.Record(ctx, int64(steps), attrs)
	if err != nil {
		m.runErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordNode(ctx context.Context, nodeType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("type", nodeType))
	m.nodeDuration.Record(ctx, duration.Seconds(), attrs)
	m.nodesTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordWebhook(ctx context.Context, ok bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("ok", ok))
	m.webhookDuration.Record(ctx, duration.Seconds(), attrs)
	m.webhooksTotal.Add(ctx, 1, attrs)
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, purpose, model string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("model", model),
	)
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordRetrieval(ctx context.Context, source string, results int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.retrievalDuration.Record(ctx, duration.Seconds(), attrs)
	m.retrievalResults.Record(ctx, int64(results), attrs)
	if err != nil {
		m.retrievalErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequests.Add(ctx, 1, attrs)
}

var _ Metrics = (*PrometheusMetrics)(nil)
