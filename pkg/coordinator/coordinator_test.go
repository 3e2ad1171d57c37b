package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type broadcastCall struct {
	cid     string
	room    Room
	event   string
	payload any
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, cid string, room Room, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{cid: cid, room: room, event: event, payload: payload})
	return nil
}

func (f *fakeBroadcaster) snapshot() []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broadcastCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBroadcaster) newMessageEvents() []NewMessageEvent {
	var out []NewMessageEvent
	for _, c := range f.snapshot() {
		if ev, ok := c.payload.(NewMessageEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

// fakeTranslator appends " [target]" to simulate translation, and
// returns empty input unchanged.
type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, target, source string) string {
	if text == "" {
		return text
	}
	return text + " [" + target + "]"
}

type fakeKnowledge struct {
	mu      sync.Mutex
	match   *KnowledgeMatch
	upserts int
}

func (k *fakeKnowledge) RetrieveBest(_ context.Context, _, _ string, _ int) (*KnowledgeMatch, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.match, nil
}

func (k *fakeKnowledge) UpsertQA(_ context.Context, _, _, _, _ string) (int64, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.upserts++
	return 1, true, nil
}

func (k *fakeKnowledge) upsertCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.upserts
}

type logEntry struct {
	role    MessageRole
	lang    string
	content string
	cid     string
}

type fakeLog struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *fakeLog) Log(_ context.Context, role MessageRole, lang, content, cid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{role: role, lang: lang, content: content, cid: cid})
	return nil
}

func (l *fakeLog) snapshot() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]logEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

type fakeRule struct {
	reply string
}

func (r fakeRule) Respond(string) string {
	return r.reply
}

func newTestCoordinator(cfg Config) (*Coordinator, *fakeBroadcaster, *fakeKnowledge, *fakeLog) {
	b := &fakeBroadcaster{}
	k := &fakeKnowledge{}
	l := &fakeLog{}
	c := New(cfg, b, fakeTranslator{}, k, l, fakeRule{}, nil)
	return c, b, k, l
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestClientMessageAgentOfflineRepliesImmediately(t *testing.T) {
	cfg := Config{Inactivity: time.Hour, SuppressWindow: time.Hour, DefaultClientLang: "fr"}
	c, b, _, l := newTestCoordinator(cfg)

	c.OnAgentSetOnline(context.Background(), "cid1", false)
	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{Message: "bonjour"})

	waitFor(t, time.Second, func() bool {
		for _, ev := range b.newMessageEvents() {
			if ev.BotReply {
				return true
			}
		}
		return false
	})

	var botEvent *NewMessageEvent
	for _, ev := range b.newMessageEvents() {
		if ev.BotReply {
			ev := ev
			botEvent = &ev
		}
	}
	require.NotNil(t, botEvent)
	require.Equal(t, "bonjour [zh]", botEvent.ReplyZh)

	foundBotLog := false
	for _, e := range l.snapshot() {
		if e.role == RoleBot {
			foundBotLog = true
		}
	}
	require.True(t, foundBotLog)
}

func TestClientMessageAgentOnlineSchedulesDelayedReply(t *testing.T) {
	cfg := Config{Inactivity: 30 * time.Millisecond, SuppressWindow: 10 * time.Millisecond, DefaultClientLang: "fr"}
	c, b, _, _ := newTestCoordinator(cfg)

	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{Message: "bonjour"})

	require.Never(t, func() bool {
		for _, ev := range b.newMessageEvents() {
			if ev.BotReply {
				return true
			}
		}
		return false
	}, 15*time.Millisecond, 3*time.Millisecond)

	waitFor(t, time.Second, func() bool {
		for _, ev := range b.newMessageEvents() {
			if ev.BotReply {
				return true
			}
		}
		return false
	})
}

func TestAgentMessageCancelsPendingBotReply(t *testing.T) {
	cfg := Config{Inactivity: 40 * time.Millisecond, SuppressWindow: time.Hour, DefaultClientLang: "fr"}
	c, b, _, _ := newTestCoordinator(cfg)

	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{Message: "bonjour"})
	time.Sleep(5 * time.Millisecond)
	c.OnAgentMessage(context.Background(), "cid1", AgentMessageInput{Message: "你好"})

	require.Never(t, func() bool {
		for _, ev := range b.newMessageEvents() {
			if ev.BotReply {
				return true
			}
		}
		return false
	}, 150*time.Millisecond, 10*time.Millisecond)
}

func TestAgentTypingAloneNeverCancelsPendingReply(t *testing.T) {
	cfg := Config{Inactivity: 20 * time.Millisecond, SuppressWindow: 30 * time.Millisecond, DefaultClientLang: "fr"}
	c, b, _, _ := newTestCoordinator(cfg)

	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{Message: "bonjour"})
	time.Sleep(5 * time.Millisecond)
	c.OnAgentTyping("cid1")

	waitFor(t, time.Second, func() bool {
		for _, ev := range b.newMessageEvents() {
			if ev.BotReply {
				return true
			}
		}
		return false
	})
}

func TestAgentTypingExtendsSuppressionWindow(t *testing.T) {
	cfg := Config{Inactivity: 5 * time.Millisecond, SuppressWindow: 40 * time.Millisecond, DefaultClientLang: "fr"}
	c, b, _, _ := newTestCoordinator(cfg)

	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{Message: "bonjour"})

	// Re-arm suppression repeatedly, simulating continued typing, each
	// call landing well before the previous suppression would expire.
	for i := 0; i < 4; i++ {
		c.OnAgentTyping("cid1")
		time.Sleep(20 * time.Millisecond)
		require.False(t, func() bool {
			for _, ev := range b.newMessageEvents() {
				if ev.BotReply {
					return true
				}
			}
			return false
		}(), "bot replied while agent was still typing")
	}

	waitFor(t, time.Second, func() bool {
		for _, ev := range b.newMessageEvents() {
			if ev.BotReply {
				return true
			}
		}
		return false
	})
}

func TestSuggestZhOnlyAttachedWhenAgentOnline(t *testing.T) {
	cfg := Config{Inactivity: time.Hour, SuppressWindow: time.Hour, DefaultClientLang: "fr"}
	c, b, k, _ := newTestCoordinator(cfg)
	k.match = &KnowledgeMatch{ChineseAnswer: "建议回复"}

	c.OnAgentSetOnline(context.Background(), "online-cid", true)
	c.OnClientMessage(context.Background(), "online-cid", ClientMessageInput{Message: "question"})

	c.OnAgentSetOnline(context.Background(), "offline-cid", false)
	c.OnClientMessage(context.Background(), "offline-cid", ClientMessageInput{Message: "question"})

	waitFor(t, time.Second, func() bool {
		foundOnline, foundOffline := false, false
		for _, ev := range b.newMessageEvents() {
			if ev.CID == "online-cid" && ev.From == "client" && !ev.BotReply {
				foundOnline = true
				require.Equal(t, "建议回复", ev.SuggestZh)
			}
			if ev.CID == "offline-cid" && ev.From == "client" && !ev.BotReply {
				foundOffline = true
				require.Empty(t, ev.SuggestZh)
			}
		}
		return foundOnline && foundOffline
	})
}

func TestAgentReplyWithinLearningWindowUpsertsKnowledge(t *testing.T) {
	cfg := Config{Inactivity: time.Hour, SuppressWindow: time.Hour, LearningWindow: time.Minute, DefaultClientLang: "fr"}
	c, _, k, _ := newTestCoordinator(cfg)

	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{Message: "bonjour"})
	time.Sleep(10 * time.Millisecond) // let the mailbox process the client message first
	c.OnAgentMessage(context.Background(), "cid1", AgentMessageInput{Message: "你好"})

	waitFor(t, time.Second, func() bool { return k.upsertCount() == 1 })
}

func TestAgentReplyOutsideLearningWindowSkipsUpsert(t *testing.T) {
	cfg := Config{Inactivity: time.Hour, SuppressWindow: time.Hour, LearningWindow: 10 * time.Millisecond, DefaultClientLang: "fr"}
	c, _, k, _ := newTestCoordinator(cfg)

	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{Message: "bonjour"})
	time.Sleep(30 * time.Millisecond)
	c.OnAgentMessage(context.Background(), "cid1", AgentMessageInput{Message: "你好"})

	// Give the mailbox time to process; the upsert must never fire.
	require.Never(t, func() bool { return k.upsertCount() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestClientImageMessageBroadcastsWithoutTranslation(t *testing.T) {
	cfg := Config{Inactivity: time.Hour, SuppressWindow: time.Hour, DefaultClientLang: "fr"}
	c, b, _, l := newTestCoordinator(cfg)

	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{Image: "data:image/png;base64,xyz"})

	waitFor(t, time.Second, func() bool {
		for _, ev := range b.newMessageEvents() {
			if ev.Image != "" {
				return true
			}
		}
		return false
	})

	found := false
	for _, e := range l.snapshot() {
		if e.content == "[image]" && e.role == RoleClient {
			found = true
		}
	}
	require.True(t, found)
}

func TestEmptyClientMessageIsIgnored(t *testing.T) {
	cfg := Config{Inactivity: time.Hour, SuppressWindow: time.Hour, DefaultClientLang: "fr"}
	c, b, _, l := newTestCoordinator(cfg)

	c.OnClientMessage(context.Background(), "cid1", ClientMessageInput{})

	require.Never(t, func() bool {
		return len(b.snapshot()) > 0 || len(l.snapshot()) > 0
	}, 50*time.Millisecond, 10*time.Millisecond)
}

func TestStaleFinalizeClosureDoesNotClobberSuccessorsPendingCancel(t *testing.T) {
	cfg := Config{Inactivity: time.Hour, SuppressWindow: time.Hour, DefaultClientLang: "fr"}
	c, _, _, _ := newTestCoordinator(cfg)
	a := c.actorFor("cid1")

	tokenA := time.Now()
	done := make(chan struct{})
	a.enqueue(func() {
		a.pendingCancel = func() {}
		a.pendingToken = tokenA
		close(done)
	})
	<-done

	tokenB := tokenA.Add(time.Millisecond)
	var cancelBCalled bool
	done = make(chan struct{})
	a.enqueue(func() {
		a.pendingCancel = func() { cancelBCalled = true }
		a.pendingToken = tokenB
		close(done)
	})
	<-done

	// Task A's finalize closure, enqueued before task B ever spawned,
	// finally runs here: it must not steal the pendingCancel slot B
	// now owns.
	done = make(chan struct{})
	a.enqueue(func() {
		if a.pendingToken.Equal(tokenA) {
			a.pendingCancel = nil
			a.pendingToken = time.Time{}
		}
		close(done)
	})
	<-done

	require.NotNil(t, a.pendingCancel)
	require.True(t, a.pendingToken.Equal(tokenB))
	require.False(t, cancelBCalled)
}

func TestAgentSetOnlineBroadcastsStatusToBothRooms(t *testing.T) {
	cfg := Config{Inactivity: time.Hour, SuppressWindow: time.Hour, DefaultClientLang: "fr"}
	c, b, _, _ := newTestCoordinator(cfg)

	c.OnAgentSetOnline(context.Background(), "cid1", true)

	waitFor(t, time.Second, func() bool {
		rooms := map[Room]bool{}
		for _, call := range b.snapshot() {
			if call.event == EventAgentStatus {
				rooms[call.room] = true
			}
		}
		return rooms[RoomAgents] && rooms[RoomClients]
	})
}
