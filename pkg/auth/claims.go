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

// Package auth validates bearer JWTs against a JWKS endpoint and exposes
// the resulting claims to HTTP handlers.
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "convograph"
package auth

import (
	"context"
	"slices"
)

type contextKey string

const claimsContextKey contextKey = "convograph_auth_claims"

// Claims are the validated claims of a token.
type Claims struct {
	Subject string `json:"sub"`

	Email string `json:"email,omitempty"`

	// Role drives RequireRole.
	Role string `json:"role,omitempty"`

	TenantID string `json:"tenant_id,omitempty"`

	// Custom holds the remaining private claims.
	Custom map[string]any `json:"-"`
}

func (c *Claims) GetStringClaim(key string) string {
	if s, ok := c.Custom[key].(string); ok {
		return s
	}
	return ""
}

// HasAnyRole reports whether the subject holds one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	return c.Role != "" && slices.Contains(roles, c.Role)
}

// ClaimsFromContext returns nil when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
