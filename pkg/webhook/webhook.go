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

// Package webhook calls operator-defined HTTP endpoints on behalf of a
// conversation and reduces every outcome to success or failure.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kadirpekel/convograph/pkg/httpclient"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 1 << 20

// Request describes one call.
type Request struct {
	URL     string
	Method  string
	Params  map[string]string
	Headers map[string]string

	// Timeout overrides the invoker default when positive.
	Timeout time.Duration
}

// Result is the outcome of a call. OK is true only for 2xx responses.
type Result struct {
	OK         bool
	StatusCode int

	// Body is the raw response text.
	Body string

	// JSON holds the decoded body when the response declared a JSON
	// content type and decoded cleanly.
	JSON any

	// Reason explains a failure.
	Reason string

	Duration time.Duration
}

// Invoker performs webhook calls.
type Invoker interface {
	Call(ctx context.Context, req Request) Result
}

// HTTPInvoker is the Invoker backed by httpclient.
type HTTPInvoker struct {
	client  *httpclient.Client
	timeout time.Duration
}

// Option configures an HTTPInvoker.
type Option func(*options)

type options struct {
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	headers    map[string]string
	tls        *httpclient.TLSConfig
	httpClient *http.Client
}

func WithTimeout(d time.Duration) Option       { return func(o *options) { o.timeout = d } }
func WithMaxRetries(n int) Option              { return func(o *options) { o.maxRetries = n } }
func WithBaseDelay(d time.Duration) Option     { return func(o *options) { o.baseDelay = d } }
func WithHeaders(h map[string]string) Option   { return func(o *options) { o.headers = h } }
func WithHTTPClient(c *http.Client) Option     { return func(o *options) { o.httpClient = c } }
func WithTLS(cfg *httpclient.TLSConfig) Option { return func(o *options) { o.tls = cfg } }

// NewHTTPInvoker defaults to a 5s timeout and no retries.
func NewHTTPInvoker(opts ...Option) *HTTPInvoker {
	o := &options{timeout: 5 * time.Second, baseDelay: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(o)
	}

	hc := o.httpClient
	if hc == nil {
		// Per-call deadlines come from the context.
		hc = &http.Client{}
	}

	clientOpts := []httpclient.Option{
		httpclient.WithHTTPClient(hc),
		httpclient.WithMaxRetries(o.maxRetries),
		httpclient.WithBaseDelay(o.baseDelay),
		httpclient.WithHeaders(o.headers),
	}
	if o.tls != nil {
		clientOpts = append(clientOpts, httpclient.WithTLSConfig(o.tls))
	}

	return &HTTPInvoker{
		client:  httpclient.New(clientOpts...),
		timeout: o.timeout,
	}
}

// Call never returns an error: transport problems, timeouts and non-2xx
// statuses are all failures.
func (i *HTTPInvoker) Call(ctx context.Context, req Request) Result {
	start := time.Now()

	timeout := i.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := build(ctx, req)
	if err != nil {
		return Result{Reason: err.Error(), Duration: time.Since(start)}
	}

	resp, err := i.client.Do(httpReq)
	if resp == nil {
		reason := fmt.Sprintf("request failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", timeout)
		}
		slog.Debug("Webhook transport failure", "url", httpReq.URL.Redacted(), "error", err)
		return Result{Reason: reason, Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	res := Result{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Duration:   time.Since(start),
	}
	if readErr != nil {
		res.Reason = fmt.Sprintf("failed to read response: %v", readErr)
		return res
	}

	if isJSON(resp.Header.Get("Content-Type")) && len(bytes.TrimSpace(body)) > 0 {
		var v any
		if json.Unmarshal(body, &v) == nil {
			res.JSON = v
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return res
	}
	res.OK = true
	return res
}

func build(ctx context.Context, req Request) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", req.URL)
	}

	var httpReq *http.Request
	switch method {
	case http.MethodGet:
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		httpReq, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	case http.MethodPost:
		payload, mErr := json.Marshal(nonNil(req.Params))
		if mErr != nil {
			return nil, fmt.Errorf("failed to encode params: %w", mErr)
		}
		httpReq, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	default:
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.5")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

var _ Invoker = (*HTTPInvoker)(nil)
