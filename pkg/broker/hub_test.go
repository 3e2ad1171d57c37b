package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatbroker/chatbroker/pkg/coordinator"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true within %s", timeout)
}

func TestHubSubscribeAndRoomCount(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{send: make(chan []byte, 4)}

	require.Equal(t, 0, hub.roomCount("cid-1", coordinator.RoomClients))

	hub.subscribe(client, "cid-1", coordinator.RoomClients)
	waitFor(t, time.Second, func() bool { return hub.roomCount("cid-1", coordinator.RoomClients) == 1 })

	require.Equal(t, 0, hub.roomCount("cid-1", coordinator.RoomAgents))

	hub.unsubscribe(client, "cid-1", coordinator.RoomClients)
	waitFor(t, time.Second, func() bool { return hub.roomCount("cid-1", coordinator.RoomClients) == 0 })
}

func TestHubBroadcastDeliversToSubscribedRoomOnly(t *testing.T) {
	hub := NewHub(nil)
	clientRoom := &Client{send: make(chan []byte, 4)}
	agentRoom := &Client{send: make(chan []byte, 4)}

	hub.subscribe(clientRoom, "cid-1", coordinator.RoomClients)
	hub.subscribe(agentRoom, "cid-1", coordinator.RoomAgents)
	waitFor(t, time.Second, func() bool { return hub.roomCount("cid-1", coordinator.RoomClients) == 1 })
	waitFor(t, time.Second, func() bool { return hub.roomCount("cid-1", coordinator.RoomAgents) == 1 })

	err := hub.Broadcast(context.Background(), "cid-1", coordinator.RoomClients, coordinator.EventNewMessage, coordinator.NewMessageEvent{CID: "cid-1"})
	require.NoError(t, err)

	select {
	case msg := <-clientRoom.send:
		require.Contains(t, string(msg), `"type":"new_message"`)
	case <-time.After(time.Second):
		t.Fatal("expected subscribed client to receive broadcast")
	}

	select {
	case <-agentRoom.send:
		t.Fatal("agent room should not receive a broadcast aimed at the client room")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubBroadcastToEmptyRoomIsNoOp(t *testing.T) {
	hub := NewHub(nil)
	err := hub.Broadcast(context.Background(), "cid-unknown", coordinator.RoomClients, coordinator.EventNewMessage, coordinator.NewMessageEvent{})
	require.NoError(t, err)
}

func TestHubDropsSlowClientRatherThanBlocking(t *testing.T) {
	hub := NewHub(nil)
	slow := &Client{send: make(chan []byte)} // unbuffered: first send with nobody draining fills it immediately
	hub.subscribe(slow, "cid-1", coordinator.RoomClients)
	waitFor(t, time.Second, func() bool { return hub.roomCount("cid-1", coordinator.RoomClients) == 1 })

	for i := 0; i < 3; i++ {
		err := hub.Broadcast(context.Background(), "cid-1", coordinator.RoomClients, coordinator.EventNewMessage, coordinator.NewMessageEvent{})
		require.NoError(t, err)
	}

	waitFor(t, time.Second, func() bool { return hub.roomCount("cid-1", coordinator.RoomClients) == 0 })
}

func TestHubUnsubscribeUnknownClientIsSafe(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{send: make(chan []byte, 1)}
	hub.unsubscribe(client, "cid-1", coordinator.RoomClients)
	require.Equal(t, 0, hub.roomCount("cid-1", coordinator.RoomClients))
}
