package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/observability/metrics"
)

const defaultSendBuffer = 64

// Subscriber receives the encoded events of one queue. C is closed when the hub drops it.
type Subscriber struct {
	queueID string
	send    chan []byte
	once    sync.Once
}

func (s *Subscriber) C() <-chan []byte { return s.send }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub keeps the live subscribers per queue and fans events out to them.
// A subscriber whose buffer is full is dropped; it reconnects and resynchronises from a snapshot.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscriber]struct{}
	sendBuffer int
	logger     *slog.Logger
}

func NewHub(sendBuffer int, logger *slog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:       make(map[string]map[*Subscriber]struct{}),
		sendBuffer: sendBuffer,
		logger:     logger.With(slog.String("component", "hub")),
	}
}

// Subscribe registers a subscriber for queueID
func (h *Hub) Subscribe(queueID string) *Subscriber {
	s := &Subscriber{queueID: queueID, send: make(chan []byte, h.sendBuffer)}
	h.mu.Lock()
	set, ok := h.subs[queueID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[queueID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	metrics.IncrementSubscribers()
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	removed := h.removeLocked(s)
	h.mu.Unlock()
	if removed {
		s.close()
		metrics.DecrementSubscribers()
	}
}

func (h *Hub) removeLocked(s *Subscriber) bool {
	set, ok := h.subs[s.queueID]
	if !ok {
		return false
	}
	if _, ok := set[s]; !ok {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.queueID)
	}
	return true
}

// Count returns the number of subscribers on queueID
func (h *Hub) Count(queueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[queueID])
}

func (h *Hub) Name() string { return "hub" }

// Deliver encodes ev once and offers it to every subscriber of its queue.
func (h *Hub) Deliver(_ context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var slow []*Subscriber
	h.mu.RLock()
	for s := range h.subs[ev.QueueID] {
		select {
		case s.send <- payload:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("dropping slow subscriber", slog.String("queue_id", ev.QueueID), slog.Int64("seq", ev.Seq))
		h.Unsubscribe(s)
	}
	return nil
}
