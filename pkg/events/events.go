package events

import (
	"log/slog"
	"sync"
	"time"
)

const (
	AgentRegistered  = "agent_registered"
	AgentsDiscovered = "agents_discovered"
	AgentUpdated     = "agent_updated"
	MessageSent      = "message_sent"
	MessageStatus    = "message_status"
	ChannelCreated   = "channel_created"
	ChannelJoined    = "channel_joined"
	ChannelLeft      = "channel_left"
	ChannelInvited   = "channel_invited"
	EscrowCreated    = "escrow_created"
	EscrowTransition = "escrow_transition"
	NetworkSynced    = "network_synced"
)

type Event struct {
	Type    string    `json:"type"`
	Subject string    `json:"subject,omitempty"`
	AgentID string    `json:"agentId,omitempty"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data,omitempty"`
}

// Publisher is the write side of the hub as seen by the coordinator.
type Publisher interface {
	Publish(ev Event)
}

type Subscriber struct {
	ID string
	C  chan Event
}

// Hub fans events out to subscribers. A slow subscriber loses events rather
// than blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	buffer      int
	closed      bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		buffer:      buffer,
	}
}

func (h *Hub) Subscribe(id string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.subscribers[id]; ok {
		close(old.C)
	}
	s := &Subscriber{ID: id, C: make(chan Event, h.buffer)}
	if h.closed {
		close(s.C)
		return s
	}
	h.subscribers[id] = s
	return s
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subscribers[id]; ok {
		close(s.C)
		delete(h.subscribers, id)
	}
}

func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for id, s := range h.subscribers {
		select {
		case s.C <- ev:
		default:
			slog.Warn("events: subscriber buffer full", slog.String("subscriber", id), slog.String("event", ev.Type))
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subscribers {
		close(s.C)
		delete(h.subscribers, id)
	}
}
