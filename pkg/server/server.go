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
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relaycache/httpcache/pkg/cache"
	"github.com/relaycache/httpcache/pkg/config"
	"github.com/relaycache/httpcache/pkg/server/middleware"
	"github.com/rs/zerolog/log"
)

const ServerGracefulShutdownTimeout = 5 * time.Second

// Server hosts the caching plug in front of a caller-supplied downstream
// handler and fans it out across the configured listeners.
type Server struct {
	cfg *config.Configuration

	plug      http.Handler
	httpcache *cache.HttpCache

	listeners Listeners

	stopCh chan bool
}

// NewServer wraps next with the http cache plug and prepares the
// configured listeners to serve it.
func NewServer(
	cfg *config.Configuration,
	next http.Handler,
	httpcache *cache.HttpCache,
	reg prometheus.Registerer,
) (*Server, error) {
	srv := &Server{
		cfg:       cfg,
		plug:      middleware.NewPlug(next, httpcache, middleware.WithMetrics(reg)),
		httpcache: httpcache,
		stopCh:    make(chan bool, 1),
	}

	listeners, err := NewListeners(cfg.Listeners, srv)
	if err != nil {
		return nil, err
	}
	srv.listeners = listeners

	return srv, nil
}

// ServeHTTP serves a single request through the plug, without going through
// a configured listener. Useful for embedding the Server directly, or in
// tests via httptest.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.plug.ServeHTTP(w, r)
}

// Start starts all configured listeners.
func (s *Server) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		logger := log.Ctx(ctx)
		logger.Info().Msg("Received shutdown...")
		logger.Info().Msg("Stopping server gracefully")
		s.Stop()
	}()

	log.Debug().Msg("Starting server ...")

	s.listeners.Start()
}

// Await blocks until SIGTERM or Stop() is called.
func (s *Server) Await() {
	<-s.stopCh
}

// Stop stops the server.
func (s *Server) Stop() {
	defer log.Info().Msg("Server stopped")

	s.listeners.Stop()

	s.stopCh <- true
}

// Shutdown the server, gracefully. Should be defered after Start().
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), ServerGracefulShutdownTimeout)
	defer cancel()

	go func(ctx context.Context) {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			panic("Shutdown timeout exeeded, killing relaycache instance")
		}
	}(ctx)

	close(s.stopCh)
}
