package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"

	"github.com/chatbroker/chatbroker/pkg/auth"
	"github.com/chatbroker/chatbroker/pkg/coordinator"
)

// inboundEvent is the generic envelope every inbound websocket frame is
// decoded into before its payload is mapstructure-decoded against the
// shape the event type implies.
type inboundEvent struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

const (
	eventClientMessage  = "client_message"
	eventAgentMessage   = "agent_message"
	eventAgentTyping    = "agent_typing"
	eventAgentSetStatus = "agent_set_status"
)

// ConnectionObserver receives connection and message lifecycle events
// for instrumentation. Implemented by pkg/metrics; kept as a local
// interface so broker stays decoupled from the metrics package, the
// same seam pkg/coordinator uses for its collaborators.
type ConnectionObserver interface {
	ConnectionOpened(room string)
	ConnectionClosed(room string)
	MessageProcessed(role string)
}

// Handler upgrades HTTP connections to websockets and wires each
// client's inbound events to a Coordinator.
type Handler struct {
	hub      *Hub
	coord    *coordinator.Coordinator
	observer ConnectionObserver
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler builds a Handler. allowedOrigin is matched against the
// request's Origin header during the websocket handshake; an empty
// allowedOrigin permits any origin (useful for local development).
// observer may be nil, in which case connection/message events are
// not recorded anywhere.
func NewHandler(hub *Hub, coord *coordinator.Coordinator, allowedOrigin string, observer ConnectionObserver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:      hub,
		coord:    coord,
		observer: observer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// ServeHTTP upgrades the connection, subscribes it to the conversation
// named by the "cid" URL parameter, and runs its read/write pumps until
// the socket closes. A validated token's role claim decides the room;
// without one, the "role" query parameter does ("agent" joins the
// agent room, anything else the client room).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	if cid == "" {
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}

	role := coordinator.RoleClient
	roomRole := coordinator.RoomClients
	claims := auth.ClaimsFromContext(r.Context())
	if (claims != nil && claims.Role == "agent") || (claims == nil && r.URL.Query().Get("role") == "agent") {
		role = coordinator.RoleAgent
		roomRole = coordinator.RoomAgents
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("broker: websocket upgrade failed", "cid", cid, "error", err)
		return
	}

	client := newClient(conn, h.logger)
	h.hub.subscribe(client, cid, roomRole)
	defer h.hub.unsubscribe(client, cid, roomRole)

	roomLabel := "clients"
	if roomRole == coordinator.RoomAgents {
		roomLabel = "agents"
	}
	if h.observer != nil {
		h.observer.ConnectionOpened(roomLabel)
		defer h.observer.ConnectionClosed(roomLabel)
	}

	go client.writePump()

	h.coord.OnConnect(r.Context(), cid, role)
	client.readPump(func(raw []byte) {
		h.dispatch(r.Context(), cid, role, raw)
	})
}

// dispatch decodes one inbound frame and calls the matching Coordinator
// method. Malformed frames are logged and otherwise ignored: a chat
// client that sends garbage shouldn't take the connection down.
func (h *Handler) dispatch(ctx context.Context, cid string, role coordinator.MessageRole, raw []byte) {
	var env inboundEvent
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Warn("broker: malformed event", "cid", cid, "error", err)
		return
	}

	switch env.Type {
	case eventClientMessage:
		var in coordinator.ClientMessageInput
		if err := mapstructure.Decode(env.Payload, &in); err != nil {
			h.logger.Warn("broker: malformed client_message payload", "cid", cid, "error", err)
			return
		}
		if h.observer != nil {
			h.observer.MessageProcessed(string(coordinator.RoleClient))
		}
		h.coord.OnClientMessage(ctx, cid, in)

	case eventAgentMessage:
		if role != coordinator.RoleAgent {
			return
		}
		var in coordinator.AgentMessageInput
		if err := mapstructure.Decode(env.Payload, &in); err != nil {
			h.logger.Warn("broker: malformed agent_message payload", "cid", cid, "error", err)
			return
		}
		if h.observer != nil {
			h.observer.MessageProcessed(string(coordinator.RoleAgent))
		}
		h.coord.OnAgentMessage(ctx, cid, in)

	case eventAgentTyping:
		if role != coordinator.RoleAgent {
			return
		}
		h.coord.OnAgentTyping(cid)

	case eventAgentSetStatus:
		if role != coordinator.RoleAgent {
			return
		}
		var in struct {
			Online bool
		}
		if err := mapstructure.Decode(env.Payload, &in); err != nil {
			h.logger.Warn("broker: malformed agent_set_status payload", "cid", cid, "error", err)
			return
		}
		h.coord.OnAgentSetOnline(ctx, cid, in.Online)

	default:
		h.logger.Warn("broker: unknown event type", "cid", cid, "type", env.Type)
	}
}
