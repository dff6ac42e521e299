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

package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relaycache/httpcache/pkg/cache"
)

// metrics counts pipeline verdicts by cache.Verb and tracks lookup
// latency (the classification step, which includes the store lookup).
// Registration is optional: a nil-registry metrics value observes into
// unpublished collectors, so the plug works without a Prometheus
// registry wired in.
type metrics struct {
	verbs         *prometheus.CounterVec
	lookupLatency prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	verbs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "httpcache_plug_verdicts_total",
		Help: "Count of cache pipeline verdicts by verb.",
	}, []string{"verb"})

	lookupLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "httpcache_plug_lookup_duration_seconds",
		Help:    "Time spent classifying a request, including the store lookup.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100µs .. ~1.6s
	})

	if reg != nil {
		reg.MustRegister(verbs, lookupLatency)
	}
	return &metrics{verbs: verbs, lookupLatency: lookupLatency}
}

func (m *metrics) observeVerb(v cache.Verb) {
	if m == nil || m.verbs == nil {
		return
	}
	m.verbs.WithLabelValues(verbLabel(v)).Inc()
}

func (m *metrics) observeLookup(d time.Duration) {
	if m == nil || m.lookupLatency == nil {
		return
	}
	m.lookupLatency.Observe(d.Seconds())
}

func verbLabel(v cache.Verb) string {
	switch v {
	case cache.VerbInvalidatePass:
		return "invalidate_pass"
	case cache.VerbPass:
		return "pass"
	case cache.VerbFetch:
		return "fetch"
	case cache.VerbFresh:
		return "fresh"
	case cache.VerbStale:
		return "stale"
	default:
		return "unknown"
	}
}
