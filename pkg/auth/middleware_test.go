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

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func protected(v TokenValidator, excluded ...string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := ClaimsFromContext(r.Context()); c != nil {
			_, _ = w.Write([]byte(c.Subject))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	})
	return Middleware(v, excluded)(ok)
}

func serve(h http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	idp := newTestIdP(t)
	h := protected(idp.validator(t), "/health", "/debug/")
	token := idp.sign(t, nil)

	tests := []struct {
		name          string
		path          string
		authorization string
		wantStatus    int
		wantBody      string
	}{
		{"valid token", "/v1/sessions/1", "Bearer " + token, http.StatusOK, "user-1"},
		{"missing header", "/v1/sessions/1", "", http.StatusUnauthorized, "unauthorized"},
		{"wrong scheme", "/v1/sessions/1", "Basic abc", http.StatusUnauthorized, "unauthorized"},
		{"empty bearer", "/v1/sessions/1", "Bearer ", http.StatusUnauthorized, "unauthorized"},
		{"invalid token", "/v1/sessions/1", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"excluded exact", "/health", "", http.StatusOK, "anonymous"},
		{"excluded prefix", "/debug/spans", "", http.StatusOK, "anonymous"},
		{"prefix needs slash", "/healthz", "", http.StatusUnauthorized, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.path, tt.authorization)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRequireRole(t *testing.T) {
	idp := newTestIdP(t)
	v := idp.validator(t)
	h := Middleware(v, nil)(RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	admin := idp.sign(t, map[string]any{"role": "admin"})
	viewer := idp.sign(t, map[string]any{"role": "viewer"})

	assert.Equal(t, http.StatusNoContent, serve(h, "/admin", "Bearer "+admin).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "/admin", "Bearer "+viewer).Code)

	bare := RequireRole("admin")(http.NotFoundHandler())
	assert.Equal(t, http.StatusUnauthorized, serve(bare, "/admin", "").Code)
}
