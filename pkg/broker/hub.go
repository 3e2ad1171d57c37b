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

// Package broker implements the websocket transport: a Hub that
// tracks which clients are subscribed to which conversation's
// role-scoped rooms, and fans out broadcasts from the coordinator to
// the right sockets.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chatbroker/chatbroker/pkg/coordinator"
)

type subscription struct {
	client *Client
	key    roomKey
}

type outbound struct {
	key     roomKey
	event   string
	payload any
}

type countQuery struct {
	key   roomKey
	reply chan int
}

// Hub owns every conversation's room membership and is the sole
// implementation of coordinator.Broadcaster the broker wires in.
// Membership, broadcast, and count queries are all serialized through
// run's single goroutine, the same actor shape pkg/coordinator uses
// per-cid, so rooms itself needs no mutex.
type Hub struct {
	register   chan subscription
	unregister chan subscription
	broadcast  chan outbound
	counts     chan countQuery

	logger *slog.Logger

	rooms map[roomKey]*room
}

// NewHub builds and starts a Hub. logger may be nil.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		register:   make(chan subscription, 256),
		unregister: make(chan subscription, 256),
		broadcast:  make(chan outbound, 256),
		counts:     make(chan countQuery),
		logger:     logger,
		rooms:      make(map[roomKey]*room),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			r, ok := h.rooms[sub.key]
			if !ok {
				r = newRoom()
				h.rooms[sub.key] = r
			}
			r.clients[sub.client] = true

		case sub := <-h.unregister:
			if r, ok := h.rooms[sub.key]; ok {
				if _, present := r.clients[sub.client]; present {
					delete(r.clients, sub.client)
					close(sub.client.send)
				}
				if len(r.clients) == 0 {
					delete(h.rooms, sub.key)
				}
			}

		case out := <-h.broadcast:
			r, ok := h.rooms[out.key]
			if !ok {
				continue
			}
			raw, err := json.Marshal(wireEvent{Type: out.event, Payload: out.payload})
			if err != nil {
				h.logger.Warn("broker: failed to encode broadcast", "error", err)
				continue
			}
			for client := range r.clients {
				select {
				case client.send <- raw:
				default:
					// Client's send buffer is full: it is not draining
					// fast enough to keep up, drop it rather than block
					// every other subscriber in the room.
					close(client.send)
					delete(r.clients, client)
				}
			}

		case q := <-h.counts:
			n := 0
			if r, ok := h.rooms[q.key]; ok {
				n = len(r.clients)
			}
			q.reply <- n
		}
	}
}

// Broadcast implements coordinator.Broadcaster.
func (h *Hub) Broadcast(_ context.Context, cid string, room coordinator.Room, event string, payload any) error {
	h.broadcast <- outbound{key: roomKey{cid: cid, room: room}, event: event, payload: payload}
	return nil
}

func (h *Hub) subscribe(client *Client, cid string, room coordinator.Room) {
	h.register <- subscription{client: client, key: roomKey{cid: cid, room: room}}
}

func (h *Hub) unsubscribe(client *Client, cid string, room coordinator.Room) {
	h.unregister <- subscription{client: client, key: roomKey{cid: cid, room: room}}
}

// roomCount reports how many clients are subscribed to cid's given
// room, used by tests.
func (h *Hub) roomCount(cid string, room coordinator.Room) int {
	reply := make(chan int, 1)
	h.counts <- countQuery{key: roomKey{cid: cid, room: room}, reply: reply}
	return <-reply
}

type wireEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
