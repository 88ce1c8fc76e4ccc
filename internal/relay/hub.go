package relay

import (
	"sync"
	"sync/atomic"

	"sc2tap.ai/internal/protocol"
)

// DefaultSubscriberBuffer is used when Subscribe is given a non-positive size.
const DefaultSubscriberBuffer = 100

// Hub fans decoded responses out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the response.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan protocol.Response
	nextID uint64
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan protocol.Response)}
}

// Subscribe registers a new subscriber with room for buf pending responses.
// The channel is closed by cancel or when the hub closes; cancel is
// idempotent.
func (h *Hub) Subscribe(buf int) (<-chan protocol.Response, func()) {
	if buf <= 0 {
		buf = DefaultSubscriberBuffer
	}
	ch := make(chan protocol.Response, buf)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish offers resp to every subscriber and reports how many took it.
func (h *Hub) Publish(resp protocol.Response) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.published.Add(1)
	n := 0
	for _, ch := range h.subs {
		select {
		case ch <- resp:
			n++
		default:
			h.dropped.Add(1)
		}
	}
	return n
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Published() uint64 { return h.published.Load() }
func (h *Hub) Dropped() uint64   { return h.dropped.Load() }
