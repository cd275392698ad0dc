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
	"time"
)

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordRun(context.Context, string, string, int, time.Duration, error)  {}
func (NoopMetrics) RecordNode(context.Context, string, time.Duration, error)              {}
func (NoopMetrics) RecordWebhook(context.Context, bool, time.Duration)                    {}
func (NoopMetrics) RecordLLMCall(context.Context, string, string, time.Duration, error)   {}
func (NoopMetrics) RecordRetrieval(context.Context, string, int, time.Duration, error)    {}
func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration) {}

var _ Metrics = NoopMetrics{}

// NoopManager has neither tracing nor metrics.
func NoopManager() *Manager {
	return &Manager{}
}
