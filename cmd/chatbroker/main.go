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

// Command chatbroker serves the bilingual live-chat broker: a
// websocket hub pairing customers and agents across languages, with a
// bot standing in during agent downtime.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/chatbroker/chatbroker/pkg/auth"
	"github.com/chatbroker/chatbroker/pkg/broker"
	"github.com/chatbroker/chatbroker/pkg/chatlog"
	"github.com/chatbroker/chatbroker/pkg/config"
	"github.com/chatbroker/chatbroker/pkg/coordinator"
	"github.com/chatbroker/chatbroker/pkg/dbpool"
	"github.com/chatbroker/chatbroker/pkg/httpapi"
	"github.com/chatbroker/chatbroker/pkg/httpclient"
	"github.com/chatbroker/chatbroker/pkg/knowledge"
	"github.com/chatbroker/chatbroker/pkg/logger"
	"github.com/chatbroker/chatbroker/pkg/metrics"
	"github.com/chatbroker/chatbroker/pkg/rule"
	"github.com/chatbroker/chatbroker/pkg/tracing"
	"github.com/chatbroker/chatbroker/pkg/translate"
)

// CLI is kept deliberately thin: every runtime knob is read from the
// environment by config.Load, these flags only cover what an operator
// wants to override for a single invocation without touching env vars.
type CLI struct {
	Debug bool `help:"Enable debug logging, overriding LOG_LEVEL."`
}

func (c *CLI) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("chatbroker: load config: %w", err)
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if c.Debug {
		level = logger.ParseLevel("debug")
	}
	root := logger.New(level, cfg.LogJSON)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.OTLPEndpoint != "",
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "chatbroker",
	})
	if err != nil {
		return fmt.Errorf("chatbroker: init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	pool := dbpool.New()
	defer pool.Close()

	db, err := pool.Get(dbpool.DSN{Driver: cfg.KnowledgeDBDriver, Database: cfg.KnowledgeDSN})
	if err != nil {
		return fmt.Errorf("chatbroker: open database: %w", err)
	}

	logStore, err := chatlog.New(db, cfg.KnowledgeDBDriver)
	if err != nil {
		return fmt.Errorf("chatbroker: init message log: %w", err)
	}
	knowledgeStore, err := knowledge.New(db, cfg.KnowledgeDBDriver)
	if err != nil {
		return fmt.Errorf("chatbroker: init knowledge store: %w", err)
	}

	httpClient := httpclient.New(httpclient.WithMaxRetries(2))
	cascade := translate.New(cfg, httpClient, logger.For(root, "translate"))
	if cfg.LibreEndpointsFile != "" {
		go translate.WatchEndpointsFile(ctx, cfg.LibreEndpointsFile, cascade, httpClient, logger.For(root, "translate"))
	}

	m := metrics.New()

	hub := broker.NewHub(logger.For(root, "broker"))

	coord := coordinator.New(coordinator.Config{
		Inactivity:        cfg.BotInactivity,
		SuppressWindow:    cfg.BotSuppress,
		LearningWindow:    cfg.LearningWindow,
		DefaultClientLang: cfg.DefaultClientLang,
	}, observingBroadcaster{Broadcaster: hub, metrics: m}, observingTranslator{Translator: cascade, metrics: m}, observingKnowledge{knowledgeAdapter{knowledgeStore}, m}, chatlogAdapter{logStore}, rule.New(), logger.For(root, "coordinator"))

	wsHandler := broker.NewHandler(hub, coord, cfg.FrontendOrigin, m, logger.For(root, "broker"))

	var validator *auth.Validator
	if cfg.AgentJWTSecret != "" {
		validator, err = auth.NewValidator(cfg.AgentJWTSecret)
		if err != nil {
			return fmt.Errorf("chatbroker: init auth: %w", err)
		}
	}

	router := httpapi.New(httpapi.Options{
		Config:     cfg,
		WSHandler:  wsHandler,
		Metrics:    m,
		Authorizer: validator,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		root.Info("chatbroker: listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("chatbroker: serve: %w", err)
	case sig := <-sigCh:
		root.Info("chatbroker: shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("chatbroker"),
		kong.Description("Bilingual live-chat broker."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
