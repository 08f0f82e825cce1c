package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Hub fans notifications out to every open /ws connection of an owner.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]string
	logger  *slog.Logger
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]string), logger: slog.Default()}
}

func (h *Hub) Subscribe(ownerID string) chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = ownerID
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// Publish delivers msg to the owner's subscribers. Slow subscribers miss
// messages rather than block the publisher.
func (h *Hub) Publish(ownerID string, msg []byte) {
	if ownerID == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, owner := range h.clients {
		if owner != ownerID {
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastConversationSaved(ownerID, conversationID string) {
	h.broadcastEvent(ownerID, ConversationSavedEvent{
		Event:          newEvent(eventConversationSaved, time.Now().UTC()),
		ConversationID: conversationID,
	})
}

func (h *Hub) broadcastEvent(ownerID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", "error", err)
		return
	}
	h.Publish(ownerID, payload)
}
