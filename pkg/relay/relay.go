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

package relay

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relaycache/httpcache/pkg/api"
	"github.com/relaycache/httpcache/pkg/cache"
	"github.com/relaycache/httpcache/pkg/config"
	"github.com/relaycache/httpcache/pkg/provider"
	"github.com/relaycache/httpcache/pkg/server"
	"github.com/relaycache/httpcache/pkg/utils/version"
	"github.com/rs/zerolog/log"
)

// Relay is the root application object: it owns the config loader, the
// cache, the provider, and the serving surfaces.
type Relay struct {
	Config *config.Configuration
	loader *config.Loader

	Registerer prometheus.Registerer

	API      *api.API
	Server   *server.Server
	Cache    *cache.HttpCache
	Provider provider.Provider
}

// New builds a Relay from a loaded configuration.
func New(loader *config.Loader, registerer prometheus.Registerer) (*Relay, error) {
	relay := &Relay{
		loader:     loader,
		Config:     loader.Config(),
		Registerer: registerer,
	}

	if err := relay.setupModules(); err != nil {
		return nil, err
	}

	return relay, nil
}

// initAPI initializes the public API.
func (t *Relay) initAPI() (err error) {
	cfg := config.API{}
	if t.Config.API != nil {
		cfg = *t.Config.API
	}
	t.API, err = api.New(cfg, t.Server)
	if err != nil {
		return err
	}
	return nil
}

// initServer initializes the core server. The downstream handler is a
// reverse proxy to the configured single upstream.
func (t *Relay) initServer() error {
	if t.Config.Upstream == nil {
		return errors.New("no upstream configured")
	}
	next, err := server.NewUpstreamProxy(t.Config.Upstream)
	if err != nil {
		return err
	}
	srv, err := server.NewServer(t.Config, next, t.Cache, t.Registerer)
	if err != nil {
		return err
	}
	t.Server = srv
	return nil
}

// initHTTPCache initializes the HTTP cache. The single cache provider backs
// both the metastore and the entitystore: metastore keys are request cache
// keys and entitystore keys are SHA-1 body digests, so the two namespaces
// never collide in the same backend.
func (t *Relay) initHTTPCache() error {
	t.Cache = cache.NewHttpCache(t.Config.HttpCache, t.Provider, t.Provider)
	return nil
}

// initProvider initializes the cache provider.
func (t *Relay) initProvider() error {
	p, err := provider.CreateCacheProvider("relaycache", *t.Config.Provider)
	if err != nil {
		return err
	}
	t.Provider = p
	return nil
}

// setupModules initializes the modules.
func (t *Relay) setupModules() error {
	// Register module init functions
	type initFn func() error
	modules := [...]struct {
		Name string
		Init initFn
	}{
		{"Provider", t.initProvider},
		{"HTTPCache", t.initHTTPCache},
		{"Server", t.initServer},
		{"API", t.initAPI},
	}

	for _, m := range modules {
		log.Debug().Msgf("Initializing %s", m.Name)
		if err := m.Init(); err != nil {
			return err
		}
	}

	return nil
}

// reloadConfig reloads the config, triggered by SIGHUP event.
func (t *Relay) reloadConfig(ctx context.Context) error {
	reloaded, err := t.loader.Load(ctx)
	if err != nil {
		return err
	}
	if !reloaded {
		log.Info().Msg("Config not reloaded, no changes detected")
		return nil
	}
	t.applyConfig()
	log.Info().Msg("Config reloaded")
	return nil
}

// applyConfig applies the config to modules.
func (t *Relay) applyConfig() {
	t.Config = t.loader.Config()
	t.Cache.UpdateConfig(t.Config.HttpCache)
}

// Run starts the Relay and its services.
func (t *Relay) Run() error {
	// Watch and reload config.
	if t.loader.AutoReload() {
		if err := t.loader.Watch(context.Background()); err != nil {
			return err
		}
		defer t.loader.Close()
		go func() {
			for changed := range t.loader.Events {
				if !changed {
					continue
				}
				log.Info().Msg("Config file changed, reloading config")
				t.applyConfig()
			}
		}()
	}

	// Reload config on SIGHUP.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP)
	stop := make(chan struct{})
	defer func() {
		close(stop)
	}()
	go func() {
		for {
			select {
			case s := <-signals:
				if s == syscall.SIGHUP {
					log.Info().Msg("Received SIGHUP, reloading config")
					if err := t.reloadConfig(context.Background()); err != nil {
						log.Error().Err(err).Msg("Error reloading config")
					}
					continue
				}
			case <-stop:
				return
			}
		}
	}()

	// Start API server
	go func() {
		t.API.Run()
	}()

	// Setup signals to gracefully shutdown on SIGTERM or SIGINT
	ctx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM,
	)

	// Start core server
	t.Server.Start(ctx)
	defer t.Server.Shutdown()

	time.Sleep(120 * time.Millisecond)
	log.Info().Str("version", version.Info()).Msg("relaycache just started")

	// Wait until shutdown signal received
	t.Server.Await()

	log.Info().Msg("Shutting down")
	return nil
}
