package main

import (
	"context"
	"time"

	"github.com/chatbroker/chatbroker/pkg/coordinator"
	"github.com/chatbroker/chatbroker/pkg/metrics"
)

// observingBroadcaster counts each bot reply once, on its client-room
// broadcast, without the broker or coordinator packages needing to
// know pkg/metrics exists.
type observingBroadcaster struct {
	coordinator.Broadcaster
	metrics *metrics.Metrics
}

func (o observingBroadcaster) Broadcast(ctx context.Context, cid string, room coordinator.Room, event string, payload any) error {
	if msg, ok := payload.(coordinator.NewMessageEvent); ok && msg.BotReply && room == coordinator.RoomClients {
		o.metrics.BotReplySent("bot")
	}
	return o.Broadcaster.Broadcast(ctx, cid, room, event, payload)
}

// observingTranslator times every cascade call and records whether it
// fell back to the original text.
type observingTranslator struct {
	coordinator.Translator
	metrics *metrics.Metrics
}

func (o observingTranslator) Translate(ctx context.Context, text, target, source string) string {
	start := time.Now()
	result := o.Translator.Translate(ctx, text, target, source)
	outcome := "translated"
	if result == text {
		outcome = "unchanged"
	}
	o.metrics.TranslateObserved(outcome, time.Since(start))
	return result
}

// observingKnowledge records best-match hits and learning upserts.
type observingKnowledge struct {
	inner   knowledgeAdapter
	metrics *metrics.Metrics
}

func (o observingKnowledge) RetrieveBest(ctx context.Context, sourceLangQuery, chineseQuery string, k int) (*coordinator.KnowledgeMatch, error) {
	match, err := o.inner.RetrieveBest(ctx, sourceLangQuery, chineseQuery, k)
	if err == nil && match != nil {
		o.metrics.KnowledgeHit()
	}
	return match, err
}

func (o observingKnowledge) UpsertQA(ctx context.Context, sourceLangQuestion, chineseQuestion, chineseAnswer, source string) (int64, bool, error) {
	id, ok, err := o.inner.UpsertQA(ctx, sourceLangQuestion, chineseQuestion, chineseAnswer, source)
	if err == nil && ok {
		o.metrics.KnowledgeUpsert()
	}
	return id, ok, err
}
