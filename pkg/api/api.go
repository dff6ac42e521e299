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

package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relaycache/httpcache/pkg/config"
	"github.com/relaycache/httpcache/pkg/server"
	"github.com/relaycache/httpcache/pkg/utils/version"
	"github.com/rs/zerolog/log"
)

// API is the root API structure.
type API struct {
	// config is the API configuration.
	config config.API

	// router is the API Router.
	router *mux.Router

	// filter is the access control list containing the IPs and CIDRs
	// allowed to access the API. If empty, every request is allowed.
	filter *IPFilter
}

// New creates a new API. If s is non-nil, the cache admin endpoints
// (key listing, invalidate, flush, config inspect/update) are registered
// against it.
func New(cfg config.API, s *server.Server) (*API, error) {
	filter, err := NewIPFilter(cfg.ACL)
	if err != nil {
		return nil, fmt.Errorf("invalid api acl: %w", err)
	}

	api := &API{
		config: cfg,
		router: mux.NewRouter(),
		filter: filter,
	}
	api.createRoutes()

	if s != nil {
		api.RegisterProxy(s)
	}

	if cfg.Debug {
		DebugHandler{}.Append(api.router)
	}

	return api, nil
}

// Run starts the API server.
func (a *API) Run() {
	port := fmt.Sprintf(":%d", a.config.Port)
	log.Debug().Str("port", port).Str("prefix", a.config.GetPrefix()).Msg("Starting API server")

	if err := http.ListenAndServe(port, a); err != nil {
		log.Fatal().Err(err).Msg("Starting API server")
	}
}

// ServeHTTP serves the API requests.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// RegisterRoute registers a new handler at the configured API prefix plus
// path, behind the configured IP access control list.
func (a *API) RegisterRoute(method string, path string, handler http.HandlerFunc) {
	a.router.HandleFunc(a.config.GetPrefix()+path, a.filter.Wrap(handler)).Methods(method)
}

// RegisterProxy registers the cache admin endpoints against a running
// Server: key listing, invalidation, flush, and config inspection/update.
func (a *API) RegisterProxy(s *server.Server) {
	// List cache keys.
	a.RegisterRoute(http.MethodGet, "/cache/keys", s.CacheKeysHandler)
	// Invalidate a single key, given by the 'X-Purge-Key' header.
	a.RegisterRoute(http.MethodDelete, "/cache/invalidate", s.CacheInvalidateHandler)
	// PURGE is the Varnish-style equivalent of invalidate.
	a.RegisterRoute("PURGE", "/cache/keys", s.CacheKeyPurgeHandler)
	// TODO: implement PURGE like this:
	// curl -v -X PURGE -H 'X-Purge-Regex: ^/assets/*.css' varnishserver:6081
	// Flush every cached key.
	a.RegisterRoute(http.MethodDelete, "/cache/flush", s.CacheFlushHandler)
	// Inspect and update the live cache config.
	a.RegisterRoute(http.MethodGet, "/cache/config", s.CacheConfigHandler)
	a.RegisterRoute(http.MethodPost, "/cache/config", s.CacheConfigUpdateHandler)
}

func (a *API) createRoutes() {
	a.RegisterRoute(http.MethodGet, "/version", version.Handler)
	a.RegisterRoute(http.MethodGet, "/metrics", promhttp.Handler().ServeHTTP)
}
