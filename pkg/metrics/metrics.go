// Copyright 2026 The Chatbroker Authors
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

// Package metrics provides Prometheus instrumentation for the broker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the broker registers.
type Metrics struct {
	registry *prometheus.Registry

	wsConnections     *prometheus.GaugeVec
	messagesTotal     *prometheus.CounterVec
	botRepliesTotal   *prometheus.CounterVec
	translateCalls    *prometheus.CounterVec
	translateDuration *prometheus.HistogramVec
	knowledgeHits     prometheus.Counter
	knowledgeUpserts  prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New builds a Metrics registry with every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		wsConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chatbroker",
			Name:      "ws_connections",
			Help:      "Current websocket connections by room.",
		}, []string{"room"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbroker",
			Name:      "messages_total",
			Help:      "Messages processed by role.",
		}, []string{"role"}),
		botRepliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbroker",
			Name:      "bot_replies_total",
			Help:      "Bot replies sent, by caller-supplied source label.",
		}, []string{"source"}),
		translateCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbroker",
			Name:      "translate_calls_total",
			Help:      "Translation cascade calls by outcome.",
		}, []string{"outcome"}),
		translateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatbroker",
			Name:      "translate_duration_seconds",
			Help:      "Translation cascade call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		knowledgeHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatbroker",
			Name:      "knowledge_hits_total",
			Help:      "Knowledge store best-match hits.",
		}),
		knowledgeUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatbroker",
			Name:      "knowledge_upserts_total",
			Help:      "Knowledge store learning upserts.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbroker",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatbroker",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.wsConnections,
		m.messagesTotal,
		m.botRepliesTotal,
		m.translateCalls,
		m.translateDuration,
		m.knowledgeHits,
		m.knowledgeUpserts,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened(room string) {
	m.wsConnections.WithLabelValues(room).Inc()
}

func (m *Metrics) ConnectionClosed(room string) {
	m.wsConnections.WithLabelValues(room).Dec()
}

func (m *Metrics) MessageProcessed(role string) {
	m.messagesTotal.WithLabelValues(role).Inc()
}

func (m *Metrics) BotReplySent(source string) {
	m.botRepliesTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) TranslateObserved(outcome string, duration time.Duration) {
	m.translateCalls.WithLabelValues(outcome).Inc()
	m.translateDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) KnowledgeHit() {
	m.knowledgeHits.Inc()
}

func (m *Metrics) KnowledgeUpsert() {
	m.knowledgeUpserts.Inc()
}

// HTTPMiddleware records request count and latency per route pattern.
func (m *Metrics) HTTPMiddleware(routePattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			statusClass := "2xx"
			switch {
			case rw.status >= 500:
				statusClass = "5xx"
			case rw.status >= 400:
				statusClass = "4xx"
			case rw.status >= 300:
				statusClass = "3xx"
			}
			m.httpRequests.WithLabelValues(routePattern, statusClass).Inc()
			m.httpDuration.WithLabelValues(routePattern).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
