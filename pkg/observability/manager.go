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
	"net/http"
	"sync"
)

// Manager owns the tracer and metrics built from Config.
type Manager struct {
	config Config

	mu      sync.RWMutex
	tracer  *Tracer
	metrics *PrometheusMetrics
}

func NewManager(cfg Config) *Manager {
	cfg.SetDefaults()
	return &Manager{config: cfg}
}

// Initialize builds whatever Config enables.
func (m *Manager) Initialize(ctx context.Context, opts ...TracerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tracer, err := NewTracer(ctx, &m.config.Tracing, opts...)
	if err != nil {
		return err
	}
	m.tracer = tracer

	if m.config.Metrics.Enabled {
		metrics, err := NewPrometheusMetrics(m.config.Metrics)
		if err != nil {
			return err
		}
		m.metrics = metrics
	}
	return nil
}

// Tracer may be nil, which Tracer methods accept.
func (m *Manager) Tracer() *Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracer
}

// Metrics never returns nil.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return NoopMetrics{}
	}
	return m.metrics
}

// MetricsHandler returns nil when metrics are disabled.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return nil
	}
	return m.metrics.Handler()
}

func (m *Manager) MetricsPath() string {
	return m.config.Metrics.Endpoint
}

func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.tracer != nil {
		errs = append(errs, m.tracer.Shutdown(ctx))
	}
	if m.metrics != nil {
		errs = append(errs, m.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
