package coordinator

import (
	"context"
	"time"
)

// spawnPendingBotTask starts the cancellable delayed bot takeover.
// Must be called from within the actor's mailbox goroutine: it reads
// and replaces a.pendingCancel directly.
func (c *Coordinator) spawnPendingBotTask(a *conversationActor, token time.Time, customerOriginal, customerChinese string) {
	if a.pendingCancel != nil {
		a.pendingCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.pendingCancel = cancel
	a.pendingToken = token
	go c.runPendingBotTask(ctx, a, token, customerOriginal, customerChinese)
}

// cancelPendingBotTask cancels any in-flight pending task for a. Must
// be called from within the actor's mailbox goroutine. Cancellation is
// immediate context cancellation rather than state polling.
func (c *Coordinator) cancelPendingBotTask(a *conversationActor) {
	if a.pendingCancel != nil {
		a.pendingCancel()
		a.pendingCancel = nil
		a.pendingToken = time.Time{}
	}
}

// runPendingBotTask waits out the inactivity deadline, then the
// typing-suppression window (which agent_typing may repeatedly
// re-arm), then finalizes the bot reply — unless cancelled at any
// point.
func (c *Coordinator) runPendingBotTask(ctx context.Context, a *conversationActor, token time.Time, customerOriginal, customerChinese string) {
	deadlineTimer := time.NewTimer(time.Until(token.Add(c.cfg.Inactivity)))
	defer deadlineTimer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-deadlineTimer.C:
	}

	// Re-check the same two cancellation conditions context
	// cancellation is meant to cover, as a defensive backstop: if a
	// newer customer message or agent activity landed on the exact
	// deadline tick, before the actor goroutine got a chance to call
	// cancelPendingBotTask, this abandons the stale task instead of
	// relying solely on the race to cancel it first.
	if lastClientToken, lastAgentActivity, _, _ := a.watch.snapshot(); !lastClientToken.Equal(token) || lastAgentActivity.After(token) {
		return
	}

	for {
		lastClientToken, lastAgentActivity, suppressUntil, _ := a.watch.snapshot()
		if !lastClientToken.Equal(token) || lastAgentActivity.After(token) {
			return
		}
		now := nowFunc()
		if !suppressUntil.After(now) {
			break
		}

		waitTimer := time.NewTimer(suppressUntil.Sub(now))
		select {
		case <-ctx.Done():
			waitTimer.Stop()
			return
		case <-a.retype:
			waitTimer.Stop()
			continue
		case <-waitTimer.C:
			continue
		}
	}

	a.enqueue(func() {
		// Only clear the slot if it still belongs to this task: a
		// newer spawnPendingBotTask call may have replaced
		// pendingCancel (and pendingToken) with its own successor
		// between this task's wait loop exiting and this closure
		// running, and nilling it out unconditionally would strand
		// that successor's cancel handle.
		if a.pendingToken.Equal(token) {
			a.pendingCancel = nil
			a.pendingToken = time.Time{}
		}
		c.finalizeBotReply(ctx, a, token, customerOriginal, customerChinese)
	})
}

// finalizeBotReply composes and broadcasts the bot's reply. Runs
// inside the actor's mailbox goroutine (enqueued by
// runPendingBotTask), so it observes the conversation's latest state
// consistently with every other handler.
func (c *Coordinator) finalizeBotReply(ctx context.Context, a *conversationActor, token time.Time, customerOriginal, customerChinese string) {
	if ctx.Err() != nil {
		return
	}

	replyZh := c.composeBotReply(ctx, customerOriginal, customerChinese)
	replyTarget := c.translator.Translate(ctx, replyZh, c.cfg.DefaultClientLang, "zh")

	event := NewMessageEvent{
		CID:      a.cid,
		From:     "client",
		Original: customerOriginal,
		ClientZh: customerChinese,
		BotReply: true,
		ReplyZh:  replyZh,
		ReplyFr:  replyTarget,
		Timestamp: timestamp(),
	}
	c.broadcastBoth(ctx, a.cid, EventNewMessage, event)

	if err := c.log.Log(ctx, RoleBot, c.cfg.DefaultClientLang, replyTarget, a.cid); err != nil {
		c.logger.Warn("coordinator: failed to log bot reply", "cid", a.cid, "error", err)
	}
}

// composeBotReply picks the bot's Chinese answer, preferring a
// KnowledgeStore match, then a RuleResponder match, then an echo of
// the question itself.
func (c *Coordinator) composeBotReply(ctx context.Context, customerOriginal, customerChinese string) string {
	if match, err := c.knowledge.RetrieveBest(ctx, customerOriginal, customerChinese, 3); err != nil {
		c.logger.Warn("coordinator: knowledge lookup failed", "error", err)
	} else if match != nil && match.ChineseAnswer != "" {
		return match.ChineseAnswer
	}

	if reply := c.rule.Respond(customerChinese); reply != "" {
		return reply
	}

	return customerChinese
}
