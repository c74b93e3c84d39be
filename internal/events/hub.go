package events

import "sync"

// subscriberBuffer is how many events a slow SSE client may fall behind by
// before it starts missing them.
const subscriberBuffer = 32

// Hub fans events out to SSE subscribers. Publishing never blocks; a full
// subscriber misses the event. A nil *Hub discards everything.
type Hub struct {
	mu      sync.Mutex
	clients map[chan string]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan string]struct{})}
}

func (h *Hub) Subscribe() chan string {
	ch := make(chan string, subscriberBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe closes ch. Calling it twice is safe.
func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(evt string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

// PublishJob wraps data in a job event envelope and publishes it.
func (h *Hub) PublishJob(jobID, typ string, data any) {
	if h == nil {
		return
	}
	h.Publish(MakeJobEvent(jobID, typ, data))
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
