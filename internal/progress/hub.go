package progress

import (
	"sync"

	"github.com/google/uuid"

	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// Client is one connected event-stream consumer subscribed to one channel
// (the owner's user id).
type Client struct {
	ID       uuid.UUID
	Channel  string
	Outbound chan Message
}

// Hub routes bus messages to in-process stream clients.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "ProgressHub"),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Subscribe(channel string) *Client {
	c := &Client{
		ID:       uuid.New(),
		Channel:  channel,
		Outbound: make(chan Message, 16),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscriptions[channel] == nil {
		h.subscriptions[channel] = make(map[*Client]bool)
	}
	h.subscriptions[channel][c] = true
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subscriptions[c.Channel]; ok {
		if set[c] {
			delete(set, c)
			close(c.Outbound)
		}
		if len(set) == 0 {
			delete(h.subscriptions, c.Channel)
		}
	}
}

// HubSink delivers events straight to in-process stream clients, used when
// no cross-process bus is configured.
type HubSink struct {
	hub *Hub
}

func NewHubSink(hub *Hub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Report(ownerUserID uuid.UUID, ev Event) {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.Broadcast(Message{Channel: ownerUserID.String(), Event: ev})
}

// Broadcast delivers msg to every client on its channel. Slow clients are
// skipped rather than blocking the forwarder.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subscriptions[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			h.log.Warn("dropping progress message for slow client", "client_id", c.ID)
		}
	}
}
