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
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Tracer starts the spans of one engine run. A nil *Tracer is valid and
// produces no-op spans.
type Tracer struct {
	provider       *sdktrace.TracerProvider
	tracer         trace.Tracer
	debugExporter  *DebugExporter
	capturePayload bool
}

// TracerOption configures a Tracer.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	exporter sdktrace.SpanExporter
	writer   io.Writer
}

// WithSpanExporter replaces the configured exporter, mostly for tests.
func WithSpanExporter(exp sdktrace.SpanExporter) TracerOption {
	return func(o *tracerOptions) { o.exporter = exp }
}

// WithStdoutWriter redirects the stdout exporter.
func WithStdoutWriter(w io.Writer) TracerOption {
	return func(o *tracerOptions) { o.writer = w }
}

// NewTracer returns nil when tracing is disabled.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	o := &tracerOptions{writer: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	exporter := o.exporter
	if exporter == nil {
		var err error
		exporter, err = createExporter(ctx, cfg, o.writer)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracer{
		provider:       provider,
		tracer:         provider.Tracer(cfg.ServiceName),
		capturePayload: cfg.CapturePayloads,
	}
	if cfg.IsDebugExporterEnabled() {
		t.debugExporter = NewDebugExporter()
		provider.RegisterSpanProcessor(sdktrace.NewSimpleSpanProcessor(t.debugExporter))
	}
	return t, nil
}

func createExporter(ctx context.Context, cfg *TracingConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.IsInsecure() {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *Tracer) StartRun(ctx context.Context, operation, agentID, sessionID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanEngineRun,
		attribute.String(AttrOperation, operation),
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrSessionID, sessionID),
	)
}

func (t *Tracer) StartNode(ctx context.Context, nodeID, nodeType string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanNodeExecution,
		attribute.String(AttrNodeID, nodeID),
		attribute.String(AttrNodeType, nodeType),
	)
}

func (t *Tracer) StartWebhook(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanWebhookCall,
		attribute.String(AttrWebhookMethod, method),
		attribute.String(AttrWebhookURL, url),
	)
}

func (t *Tracer) StartLLMCall(ctx context.Context, purpose, model string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanLLMCall,
		attribute.String(AttrPurpose, purpose),
		attribute.String(AttrLLMModel, model),
	)
}

func (t *Tracer) StartRetrieval(ctx context.Context, source string, topK int) (context.Context, trace.Span) {
	return t.Start(ctx, SpanRetrieval,
		attribute.String(AttrRetrievalSource, source),
		attribute.Int(AttrRetrievalTopK, topK),
	)
}

// AddPayload records prompt and reply text when payload capture is on.
func (t *Tracer) AddPayload(span trace.Span, request, response string) {
	if t == nil || !t.capturePayload {
		return
	}
	if request != "" {
		span.SetAttributes(attribute.String(AttrLLMRequest, request))
	}
	if response != "" {
		span.SetAttributes(attribute.String(AttrLLMResponse, response))
	}
}

// RecordError marks span failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.String(AttrErrorType, fmt.Sprintf("%T", err)),
		attribute.String(AttrErrorMessage, err.Error()),
	)
}

func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func noopSpan() trace.Span {
	_, span := noop.NewTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}
