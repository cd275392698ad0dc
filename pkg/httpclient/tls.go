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

package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// TLSConfig configures outbound TLS.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate checks. Development only.
	InsecureSkipVerify bool

	// CACertificate is a PEM bundle trusted in addition to system roots.
	CACertificate string
}

// ConfigureTLS builds a transport for cfg.
func ConfigureTLS(cfg *TLSConfig) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg == nil {
		return transport, nil
	}

	if cfg.CACertificate != "" {
		pem, err := os.ReadFile(cfg.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate from %s: %w", cfg.CACertificate, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate from %s", cfg.CACertificate)
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	transport.TLSClientConfig.InsecureSkipVerify = cfg.InsecureSkipVerify
	return transport, nil
}

// WithTLSConfig installs a TLS transport. Invalid settings are logged and
// the default transport is kept.
func WithTLSConfig(cfg *TLSConfig) Option {
	return func(c *Client) {
		if cfg == nil {
			return
		}
		transport, err := ConfigureTLS(cfg)
		if err != nil {
			slog.Warn("Failed to configure TLS", "error", err)
			return
		}
		c.client.Transport = transport
	}
}
