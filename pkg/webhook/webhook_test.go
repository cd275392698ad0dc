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

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))

		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, map[string]string{"order_id": "42"}, params)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"refund_id":"r-1","amount":12.5}`))
	}))
	defer srv.Close()

	res := NewHTTPInvoker().Call(context.Background(), Request{
		URL:     srv.URL,
		Params:  map[string]string{"order_id": "42"},
		Headers: map[string]string{"X-Token": "secret"},
	})

	require.True(t, res.OK, res.Reason)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	body, ok := res.JSON.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "r-1", body["refund_id"])
}

func TestCall_GetQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "berlin", r.URL.Query().Get("city"))
		assert.Equal(t, "1", r.URL.Query().Get("fixed"))
		_, _ = w.Write([]byte("sunny"))
	}))
	defer srv.Close()

	res := NewHTTPInvoker().Call(context.Background(), Request{
		URL:    srv.URL + "?fixed=1",
		Method: "get",
		Params: map[string]string{"city": "berlin"},
	})

	require.True(t, res.OK)
	assert.Equal(t, "sunny", res.Body)
	assert.Nil(t, res.JSON)
}

func TestCall_Non2xxIsFailureWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := NewHTTPInvoker().Call(context.Background(), Request{URL: srv.URL})

	assert.False(t, res.OK)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "HTTP 503", res.Reason)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCall_OptInRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res := NewHTTPInvoker(WithMaxRetries(1), WithBaseDelay(time.Millisecond)).
		Call(context.Background(), Request{URL: srv.URL})

	assert.True(t, res.OK)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	res := NewHTTPInvoker(WithTimeout(5*time.Second)).Call(context.Background(), Request{
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	})

	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "timed out")
	assert.Less(t, res.Duration, time.Second)
}

func TestCall_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewHTTPInvoker().Call(context.Background(), Request{URL: url})
	assert.False(t, res.OK)
	assert.Zero(t, res.StatusCode)
	assert.NotEmpty(t, res.Reason)
}

func TestCall_InvalidRequest(t *testing.T) {
	inv := NewHTTPInvoker()

	res := inv.Call(context.Background(), Request{URL: "not a url"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "invalid url")

	res = inv.Call(context.Background(), Request{URL: "http://example.test", Method: "PUT"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "unsupported method")
}
