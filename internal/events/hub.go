package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
)

const (
	// hubRingBufferSize is the number of recent events kept in memory for
	// Last-Event-ID reconnection support.
	hubRingBufferSize = 1000

	// subscriberBuffer is the per-subscriber channel capacity.
	subscriberBuffer = 64
)

// Event is a single event stored in the ring buffer and sent to subscribers.
type Event struct {
	ID    uint64 // monotonically increasing sequence number
	Topic string
	Data  []byte // JSON-encoded payload
}

// Hub fans out events to in-process subscribers (the SSE streams). It keeps
// an in-memory ring buffer so reconnecting clients can replay what they
// missed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Subscription]struct{}
	nextID  atomic.Uint64

	// Ring buffer for replay on reconnection.
	ringMu  sync.RWMutex
	ring    [hubRingBufferSize]Event
	ringPos int // next write position (wraps around)
	ringLen int // number of valid entries (up to hubRingBufferSize)
}

// Subscription is a single connected consumer.
type Subscription struct {
	topics []string    // topic patterns to match (empty = all)
	ch     chan *Event // buffered channel for event delivery
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan *Event { return s.ch }

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Subscription]struct{}),
	}
}

// Publish encodes event and broadcasts it. It implements Publisher.
func (h *Hub) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	h.Broadcast(topic, payload)
	return nil
}

// Close disconnects nothing; subscribers leave via Unsubscribe.
func (h *Hub) Close() error { return nil }

// Broadcast sends an encoded event to all subscribers whose topic filters match.
func (h *Hub) Broadcast(topic string, payload []byte) {
	id := h.nextID.Add(1)
	evt := &Event{
		ID:    id,
		Topic: topic,
		Data:  payload,
	}

	// Store in ring buffer.
	h.ringMu.Lock()
	h.ring[h.ringPos] = *evt
	h.ringPos = (h.ringPos + 1) % hubRingBufferSize
	if h.ringLen < hubRingBufferSize {
		h.ringLen++
	}
	h.ringMu.Unlock()

	// Fan out to connected clients.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.Matches(topic) {
			select {
			case c.ch <- evt:
			default:
				// Drop if client is slow.
			}
		}
	}
}

// Subscribe registers a new consumer. Call Unsubscribe when done.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	c := &Subscription{
		topics: topics,
		ch:     make(chan *Event, subscriberBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Unsubscribe removes a consumer from the hub.
func (h *Hub) Unsubscribe(c *Subscription) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Subscribers returns the number of connected consumers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// EventsSince returns buffered events with ID > lastID, in order.
func (h *Hub) EventsSince(lastID uint64) []*Event {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()

	if h.ringLen == 0 {
		return nil
	}

	var result []*Event

	// Walk the ring buffer from oldest to newest.
	start := h.ringPos - h.ringLen
	if start < 0 {
		start += hubRingBufferSize
	}
	for i := range h.ringLen {
		idx := (start + i) % hubRingBufferSize
		evt := h.ring[idx]
		if evt.ID > lastID {
			result = append(result, &evt)
		}
	}

	return result
}

// Matches checks whether the subscription's topic filters match topic.
// An empty filter list matches all topics.
func (s *Subscription) Matches(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	for _, pattern := range s.topics {
		if MatchTopic(pattern, topic) {
			return true
		}
	}
	return false
}

// MatchTopic matches a dot-separated topic against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			// ">" matches one or more remaining segments.
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}
