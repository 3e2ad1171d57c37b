package broker

import "github.com/chatbroker/chatbroker/pkg/coordinator"

// roomKey names one of a conversation's two role-scoped broadcast
// destinations, mirroring coordinator.Room.
type roomKey struct {
	cid  string
	room coordinator.Room
}

// room holds the set of live clients subscribed to one roomKey.
// Membership changes and broadcasts are both handled by the hub's
// single goroutine, so room itself needs no locking.
type room struct {
	clients map[*Client]bool
}

func newRoom() *room {
	return &room{clients: make(map[*Client]bool)}
}
