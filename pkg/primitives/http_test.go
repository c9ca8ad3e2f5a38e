// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package primitives

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSync_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("X-Request-Id", "abc")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := NewHTTPSync()
	res, err := h.Execute(context.Background(), map[string]interface{}{
		"url":     srv.URL,
		"headers": map[string]interface{}{"Accept": "application/json"},
		"auth":    map[string]interface{}{"type": "bearer", "token": "${API_TOKEN}"},
	}, map[string]string{"API_TOKEN": "sekrit"})
	require.NoError(t, err)

	assert.Equal(t, true, res["success"])
	assert.Equal(t, 200, res["status_code"])
	assert.Equal(t, `{"ok":true}`, res["body"])
	headers := res["headers"].(map[string]interface{})
	assert.Equal(t, "abc", headers["X-Request-Id"])
}

func TestHTTPSync_PostEncodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		blob, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(blob, &body))
		assert.Equal(t, "open", body["state"])
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := NewHTTPSync()
	res, err := h.Execute(context.Background(), map[string]interface{}{
		"method": "post",
		"url":    srv.URL,
		"body":   map[string]interface{}{"state": "open"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res["success"])
	assert.Equal(t, http.StatusCreated, res["status_code"])
}

func TestHTTPSync_ErrorStatusIsNotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTPSync()
	res, err := h.Execute(context.Background(), map[string]interface{}{"url": srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, 500, res["status_code"])
}

func TestHTTPSync_RetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Hijack and drop the connection so the client sees a
			// transport error, not a status code.
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	h := NewHTTPSync()
	res, err := h.Execute(context.Background(), map[string]interface{}{
		"url": srv.URL,
		"retry": map[string]interface{}{
			"strategy":      "fixed",
			"max_attempts":  5.0,
			"base_delay_ms": 1.0,
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "recovered", res["body"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSync_ExhaustedRetriesReportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	h := NewHTTPSync()
	res, err := h.Execute(context.Background(), map[string]interface{}{
		"url": srv.URL,
		"retry": map[string]interface{}{
			"max_attempts":  2.0,
			"base_delay_ms": 1.0,
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])
	assert.NotEmpty(t, res["error"])
}

func TestHTTPSync_MissingURL(t *testing.T) {
	h := NewHTTPSync()
	_, err := h.Execute(context.Background(), map[string]interface{}{}, nil)
	assert.ErrorContains(t, err, "requires a url")
}

func TestRetryPolicy_Delays(t *testing.T) {
	p := retryPolicy{Strategy: "exponential", BaseDelay: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.delay(0))
	assert.Equal(t, 40*time.Millisecond, p.delay(2))

	p.Strategy = "fixed"
	assert.Equal(t, 10*time.Millisecond, p.delay(5))
}

func TestRegistry(t *testing.T) {
	h := NewHTTPSync()
	r := NewRegistry(h)

	got, err := r.Lookup(HTTPID)
	require.NoError(t, err)
	assert.Same(t, h, got)

	assert.True(t, r.IsPrimitiveID(HTTPID))
	assert.False(t, r.IsPrimitiveID("web/fetch"))
	_, err = r.Lookup("nope")
	assert.ErrorContains(t, err, "unknown primitive")
}
