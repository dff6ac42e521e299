// MIT License
//
// Copyright (c) 2023 kache.io
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relaycache/httpcache/pkg/cache"
	"github.com/relaycache/httpcache/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Test Server"))
	})
}

func TestServeHTTPServesThroughThePlug(t *testing.T) {
	cfg := &config.Configuration{}
	hc := cache.NewHttpCache(nil, newMemKV(), newMemKV())

	srv, err := NewServer(cfg, echoHandler(), hc, prometheus.NewRegistry())
	require.NoError(t, err)

	testServer := httptest.NewServer(srv)
	defer testServer.Close()

	assert.HTTPStatusCode(t, srv.ServeHTTP, "GET", testServer.URL, nil, 200)
	assert.HTTPBodyContains(t, srv.ServeHTTP, "GET", testServer.URL, nil, "Test Server")
}

func TestServeHTTPMultiListener(t *testing.T) {
	cfg := &config.Configuration{
		Listeners: map[string]*config.Listener{
			"ep1": {Addr: ":13370"},
			"ep2": {Addr: ":13380"},
		},
	}
	hc := cache.NewHttpCache(nil, newMemKV(), newMemKV())

	srv, err := NewServer(cfg, echoHandler(), hc, prometheus.NewRegistry())
	require.NoError(t, err)

	srv.Start(context.Background())
	defer srv.Stop()

	resp, err := http.Get("http://localhost:13370")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Test Server", string(body))

	resp2, err := http.Get("http://localhost:13380")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	body2, _ := io.ReadAll(resp2.Body)
	assert.Equal(t, "Test Server", string(body2))

	_, err = http.Get("http://localhost:14242")
	assert.Error(t, err)
}
