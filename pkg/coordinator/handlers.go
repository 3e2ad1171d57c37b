package coordinator

import "context"

// OnClientMessage handles an inbound customer message: translates it to
// Chinese, logs both variants, looks up a knowledge-store suggestion,
// and either answers immediately or schedules a delayed bot takeover.
func (c *Coordinator) OnClientMessage(ctx context.Context, cid string, in ClientMessageInput) {
	a := c.actorFor(cid)
	a.enqueue(func() { c.handleClientMessage(ctx, a, in) })
}

func (c *Coordinator) handleClientMessage(ctx context.Context, a *conversationActor, in ClientMessageInput) {
	if in.Image != "" {
		event := NewMessageEvent{CID: a.cid, From: "client", Image: in.Image, Timestamp: timestamp()}
		c.broadcastBoth(ctx, a.cid, EventNewMessage, event)
		if err := c.log.Log(ctx, RoleClient, "", "[image]", a.cid); err != nil {
			c.logger.Warn("coordinator: failed to log client image", "cid", a.cid, "error", err)
		}
		return
	}
	if in.Message == "" {
		// Empty message with no image: nothing to do.
		return
	}

	chineseText := c.translator.Translate(ctx, in.Message, "zh", "auto")
	token := nowFunc()
	a.watch.setClientToken(token)
	a.lastQA = &lastQA{original: in.Message, chinese: chineseText, token: token}

	if err := c.log.Log(ctx, RoleClient, c.cfg.DefaultClientLang, in.Message, a.cid); err != nil {
		c.logger.Warn("coordinator: failed to log client message", "cid", a.cid, "error", err)
	}
	if err := c.log.Log(ctx, RoleClient, "zh", chineseText, a.cid); err != nil {
		c.logger.Warn("coordinator: failed to log translated client message", "cid", a.cid, "error", err)
	}

	match, err := c.knowledge.RetrieveBest(ctx, in.Message, chineseText, 3)
	if err != nil {
		c.logger.Warn("coordinator: knowledge lookup failed", "cid", a.cid, "error", err)
		match = nil
	}

	agentOnline := a.watch.isAgentOnline()

	event := NewMessageEvent{
		CID:       a.cid,
		From:      "client",
		Original:  in.Message,
		ClientZh:  chineseText,
		Timestamp: timestamp(),
	}
	// suggest_zh is attached only
	// when an agent is online to read it.
	if agentOnline && match != nil && match.ChineseAnswer != "" {
		event.SuggestZh = match.ChineseAnswer
	}
	c.broadcastBoth(ctx, a.cid, EventNewMessage, event)

	if !agentOnline {
		replyZh := c.composeBotReply(ctx, in.Message, chineseText)
		replyTarget := c.translator.Translate(ctx, replyZh, c.cfg.DefaultClientLang, "zh")
		botEvent := NewMessageEvent{
			CID:       a.cid,
			From:      "client",
			Original:  in.Message,
			ClientZh:  chineseText,
			BotReply:  true,
			ReplyZh:   replyZh,
			ReplyFr:   replyTarget,
			Timestamp: timestamp(),
		}
		c.broadcastBoth(ctx, a.cid, EventNewMessage, botEvent)
		if err := c.log.Log(ctx, RoleBot, c.cfg.DefaultClientLang, replyTarget, a.cid); err != nil {
			c.logger.Warn("coordinator: failed to log bot reply", "cid", a.cid, "error", err)
		}
		return
	}

	c.spawnPendingBotTask(a, token, in.Message, chineseText)
}

// OnAgentMessage handles an outbound agent reply: cancels any pending
// bot takeover, translates the reply to the client's language, logs
// it, and pairs it with the most recent customer question for learning.
func (c *Coordinator) OnAgentMessage(ctx context.Context, cid string, in AgentMessageInput) {
	a := c.actorFor(cid)
	a.enqueue(func() { c.handleAgentMessage(ctx, a, in) })
}

func (c *Coordinator) handleAgentMessage(ctx context.Context, a *conversationActor, in AgentMessageInput) {
	now := nowFunc()
	a.watch.setAgentActivity(now)
	c.cancelPendingBotTask(a)

	if in.Image != "" {
		event := NewMessageEvent{CID: a.cid, From: "agent", Image: in.Image, Timestamp: timestamp()}
		if err := c.broadcaster.Broadcast(ctx, a.cid, RoomClients, EventNewMessage, event); err != nil {
			c.logger.Warn("coordinator: broadcast to clients failed", "cid", a.cid, "error", err)
		}
		if err := c.log.Log(ctx, RoleAgent, "", "[image]", a.cid); err != nil {
			c.logger.Warn("coordinator: failed to log agent image", "cid", a.cid, "error", err)
		}
		return
	}
	if in.Message == "" {
		return
	}

	target := in.TargetLang
	if target == "" {
		target = c.cfg.DefaultClientLang
	}
	translated := c.translator.Translate(ctx, in.Message, target, "auto")

	event := NewMessageEvent{
		CID:        a.cid,
		From:       "agent",
		Original:   in.Message,
		Translated: translated,
		Timestamp:  timestamp(),
	}
	if err := c.broadcaster.Broadcast(ctx, a.cid, RoomClients, EventNewMessage, event); err != nil {
		c.logger.Warn("coordinator: broadcast to clients failed", "cid", a.cid, "error", err)
	}
	if err := c.log.Log(ctx, RoleAgent, "zh", in.Message, a.cid); err != nil {
		c.logger.Warn("coordinator: failed to log agent message", "cid", a.cid, "error", err)
	}
	if err := c.log.Log(ctx, RoleAgent, target, translated, a.cid); err != nil {
		c.logger.Warn("coordinator: failed to log translated agent message", "cid", a.cid, "error", err)
	}

	if a.lastQA != nil && now.Sub(a.lastQA.token) < c.cfg.LearningWindow {
		if _, _, err := c.knowledge.UpsertQA(ctx, a.lastQA.original, a.lastQA.chinese, in.Message, "agent_auto"); err != nil {
			c.logger.Warn("coordinator: learning upsert failed", "cid", a.cid, "error", err)
		}
	}
}

// OnAgentTyping re-arms the suppression window. It does not itself
// cancel a pending bot task — only an actual agent message does that;
// typing alone only delays the takeover.
func (c *Coordinator) OnAgentTyping(cid string) {
	a := c.actorFor(cid)
	a.enqueue(func() {
		now := nowFunc()
		a.watch.setSuppressUntil(now.Add(c.cfg.SuppressWindow))
		a.signalRetype()
	})
}

// OnAgentSetOnline updates the agent-presence flag and broadcasts the
// new status to the conversation.
func (c *Coordinator) OnAgentSetOnline(ctx context.Context, cid string, online bool) {
	a := c.actorFor(cid)
	a.enqueue(func() {
		a.watch.setAgentOnline(online)
		c.broadcastBoth(ctx, a.cid, EventAgentStatus, AgentStatusEvent{CID: a.cid, Online: online})
	})
}

// OnConnect updates coordinator state for a newly joined participant
// and emits the current agent status. Room membership itself is the
// Broker's responsibility.
func (c *Coordinator) OnConnect(ctx context.Context, cid string, role MessageRole) {
	a := c.actorFor(cid)
	a.enqueue(func() {
		if role == RoleAgent {
			a.watch.setAgentActivity(nowFunc())
		}
		c.broadcastBoth(ctx, a.cid, EventAgentStatus, AgentStatusEvent{CID: a.cid, Online: a.watch.isAgentOnline()})
	})
}
