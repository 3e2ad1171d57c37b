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

// Package coordinator implements the ConversationCoordinator: the
// per-conversation state machine that decides, for every inbound
// customer message, whether to deliver only to the agent, answer
// immediately via the bot, or schedule a cancellable delayed bot
// takeover.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Room identifies a role-scoped broadcast destination within a
// conversation.
type Room int

const (
	RoomAgents Room = iota
	RoomClients
)

// MessageRole mirrors pkg/chatlog.Role without importing it, so this
// package stays decoupled from the persistence layer — callers adapt.
type MessageRole string

const (
	RoleClient MessageRole = "client"
	RoleAgent  MessageRole = "agent"
	RoleBot    MessageRole = "bot"
)

// Broadcaster publishes an outbound event to one role-scoped room of a
// conversation. Implemented by pkg/broker.
type Broadcaster interface {
	Broadcast(ctx context.Context, cid string, room Room, event string, payload any) error
}

// Translator is the TranslationCascade's contract as the coordinator
// needs it: best-effort, never returns an error.
type Translator interface {
	Translate(ctx context.Context, text, target, source string) string
}

// KnowledgeMatch is the coordinator's view of a knowledge-store hit.
type KnowledgeMatch struct {
	ChineseAnswer string
}

// KnowledgeStore is the subset of pkg/knowledge.Store the coordinator
// drives: best-match retrieval and upsert-on-agent-reply learning.
type KnowledgeStore interface {
	RetrieveBest(ctx context.Context, sourceLangQuery, chineseQuery string, k int) (*KnowledgeMatch, error)
	UpsertQA(ctx context.Context, sourceLangQuestion, chineseQuestion, chineseAnswer, source string) (id int64, ok bool, err error)
}

// MessageLog is the append-only message log's contract.
type MessageLog interface {
	Log(ctx context.Context, role MessageRole, lang, content, cid string) error
}

// RuleResponder returns a canned Chinese answer for a Chinese
// question, or empty when nothing matches.
type RuleResponder interface {
	Respond(chineseQuestion string) string
}

// Config holds the coordinator's timing knobs.
type Config struct {
	Inactivity        time.Duration
	SuppressWindow    time.Duration
	LearningWindow    time.Duration
	DefaultClientLang string
}

func (c Config) withDefaults() Config {
	if c.LearningWindow <= 0 {
		c.LearningWindow = 180 * time.Second
	}
	if c.DefaultClientLang == "" {
		c.DefaultClientLang = "fr"
	}
	return c
}

// Coordinator owns every conversation's state and is the sole caller
// of Broadcaster, Translator, KnowledgeStore, MessageLog, and
// RuleResponder for conversation-scoped work.
type Coordinator struct {
	cfg         Config
	broadcaster Broadcaster
	translator  Translator
	knowledge   KnowledgeStore
	log         MessageLog
	rule        RuleResponder
	logger      *slog.Logger

	mu    sync.Mutex
	convs map[string]*conversationActor
}

// New builds a Coordinator. logger may be nil, in which case
// slog.Default() is used.
func New(cfg Config, broadcaster Broadcaster, translator Translator, knowledge KnowledgeStore, log MessageLog, rule RuleResponder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:         cfg.withDefaults(),
		broadcaster: broadcaster,
		translator:  translator,
		knowledge:   knowledge,
		log:         log,
		rule:        rule,
		logger:      logger,
		convs:       make(map[string]*conversationActor),
	}
}

// actorFor returns the actor owning cid, creating it (and starting its
// mailbox goroutine) on first use.
func (c *Coordinator) actorFor(cid string) *conversationActor {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.convs[cid]
	if !ok {
		a = newConversationActor(cid)
		c.convs[cid] = a
	}
	return a
}

// broadcastBoth fans out to both role-scoped rooms concurrently; a
// failure in one room never blocks or fails the other.
// errgroup lets each branch fail independently without one cancelling
// the other — there is no shared deadline to enforce here, only
// independent best-effort delivery.
func (c *Coordinator) broadcastBoth(ctx context.Context, cid, event string, payload any) {
	var g errgroup.Group
	g.Go(func() error {
		if err := c.broadcaster.Broadcast(ctx, cid, RoomAgents, event, payload); err != nil {
			c.logger.Warn("coordinator: broadcast to agents failed", "cid", cid, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.broadcaster.Broadcast(ctx, cid, RoomClients, event, payload); err != nil {
			c.logger.Warn("coordinator: broadcast to clients failed", "cid", cid, "error", err)
		}
		return nil
	})
	_ = g.Wait()
}
