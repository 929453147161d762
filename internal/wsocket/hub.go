package wsocket

import (
	"context"
	"sync"

	"consult_gateway_go_backend/internal/services"
	"consult_gateway_go_backend/internal/utils/broker"

	"github.com/rs/zerolog"
)

// Hub owns the conversation rooms and delivers events to registered
// connections. It is the services.Notifier of the running gateway.
type Hub struct {
	registry *Registry
	broker   *broker.Broker
	logger   zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

var _ services.Notifier = (*Hub)(nil)

func NewHub(registry *Registry, b *broker.Broker, logger zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		broker:   b,
		logger:   logger.With().Str("component", "hub").Logger(),
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Start subscribes to presence changes and forwards each one to every
// connection until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	updates := h.broker.Subscribe(services.EventPartnerStatusChanged)
	go func() {
		defer h.broker.Unsubscribe(services.EventPartnerStatusChanged, updates)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-updates:
				if !ok {
					return
				}
				h.BroadcastAll(services.EventPartnerStatusChanged, msg)
			}
		}
	}()
}

func (h *Hub) Join(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) Leave(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, c)
}

func (h *Hub) leaveLocked(conversationID string, c *Client) {
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

// LeaveAll removes c from every room it joined.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		if _, ok := room[c]; ok {
			h.leaveLocked(id, c)
		}
	}
}

func (h *Hub) InRoom(conversationID string, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

func (h *Hub) members(conversationID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[conversationID]
	out := make([]*Client, 0, len(room))
	for c := range room {
		out = append(out, c)
	}
	return out
}

// Broadcast sends an event to every member of the conversation room.
func (h *Hub) Broadcast(conversationID, event string, payload interface{}) {
	h.broadcast(conversationID, event, payload, nil)
}

// BroadcastExcept sends an event to every room member other than except.
func (h *Hub) BroadcastExcept(conversationID, event string, payload interface{}, except *Client) {
	h.broadcast(conversationID, event, payload, except)
}

func (h *Hub) broadcast(conversationID, event string, payload interface{}, except *Client) {
	members := h.members(conversationID)
	if len(members) == 0 {
		return
	}
	frame, err := encode(event, "", payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to encode broadcast")
		return
	}
	for _, c := range members {
		if c != except {
			c.enqueue(frame)
		}
	}
}

// BroadcastAll sends an event to every registered connection.
func (h *Hub) BroadcastAll(event string, payload interface{}) {
	frame, err := encode(event, "", payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to encode broadcast")
		return
	}
	h.registry.each(func(c *Client) { c.enqueue(frame) })
}

// NotifyIdentity sends an event to the identity's current connection and
// reports whether one was registered.
func (h *Hub) NotifyIdentity(identityID, event string, payload interface{}) bool {
	c, ok := h.registry.Lookup(identityID)
	if !ok {
		return false
	}
	return c.emit(event, "", payload)
}

func (h *Hub) IsConnected(identityID string) bool {
	_, ok := h.registry.Lookup(identityID)
	return ok
}
