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
	"encoding/json"
	"net/http"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultDebugSpans = 1000

// DebugExporter keeps the most recent spans in a ring buffer so a running
// server can show what a session just did without a collector.
type DebugExporter struct {
	mu    sync.RWMutex
	spans []DebugSpan
	next  int
	full  bool
}

// DebugSpan is the JSON form of a finished span.
type DebugSpan struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Name         string            `json:"name"`
	StartTime    int64             `json:"start_time_unix_nano"`
	DurationMs   float64           `json:"duration_ms"`
	Attributes   map[string]string `json:"attributes"`
	Status       string            `json:"status"`
	StatusMsg    string            `json:"status_message,omitempty"`
}

func NewDebugExporter() *DebugExporter {
	return NewDebugExporterSize(defaultDebugSpans)
}

func NewDebugExporterSize(size int) *DebugExporter {
	if size <= 0 {
		size = defaultDebugSpans
	}
	return &DebugExporter{spans: make([]DebugSpan, size)}
}

func (e *DebugExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, span := range spans {
		e.spans[e.next] = convertSpan(span)
		e.next = (e.next + 1) % len(e.spans)
		if e.next == 0 {
			e.full = true
		}
	}
	return nil
}

func convertSpan(span sdktrace.ReadOnlySpan) DebugSpan {
	start, end := span.StartTime(), span.EndTime()
	ds := DebugSpan{
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Name:       span.Name(),
		StartTime:  start.UnixNano(),
		DurationMs: float64(end.Sub(start).Microseconds()) / 1000,
		Attributes: make(map[string]string, len(span.Attributes())),
		Status:     span.Status().Code.String(),
		StatusMsg:  span.Status().Description,
	}
	if span.Parent().HasSpanID() {
		ds.ParentSpanID = span.Parent().SpanID().String()
	}
	for _, attr := range span.Attributes() {
		ds.Attributes[string(attr.Key)] = attr.Value.Emit()
	}
	return ds
}

func (e *DebugExporter) Shutdown(context.Context) error {
	return nil
}

// Spans returns retained spans oldest first. A non-empty traceID keeps only
// that trace.
func (e *DebugExporter) Spans(traceID string) []DebugSpan {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var ordered []DebugSpan
	if e.full {
		ordered = append(ordered, e.spans[e.next:]...)
	}
	ordered = append(ordered, e.spans[:e.next]...)

	if traceID == "" {
		return ordered
	}
	out := ordered[:0]
	for _, s := range ordered {
		if s.TraceID == traceID {
			out = append(out, s)
		}
	}
	return out
}

// SessionSpans returns spans of runs for one session, including their
// child spans.
func (e *DebugExporter) SessionSpans(sessionID string) []DebugSpan {
	all := e.Spans("")
	traces := map[string]bool{}
	for _, s := range all {
		if s.Attributes[AttrSessionID] == sessionID {
			traces[s.TraceID] = true
		}
	}
	var out []DebugSpan
	for _, s := range all {
		if traces[s.TraceID] {
			out = append(out, s)
		}
	}
	return out
}

// Handler serves spans as JSON, filtered by ?session_id= or ?trace_id=.
func (e *DebugExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var spans []DebugSpan
		if sid := r.URL.Query().Get("session_id"); sid != "" {
			spans = e.SessionSpans(sid)
		} else {
			spans = e.Spans(r.URL.Query().Get("trace_id"))
		}
		if spans == nil {
			spans = []DebugSpan{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"spans": spans})
	})
}

var _ sdktrace.SpanExporter = (*DebugExporter)(nil)
