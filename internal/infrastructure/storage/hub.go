package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/palamut62/ai-gant-news/internal/domain"
)

type hubSubscriber struct {
	ch        chan domain.AuditLogEntry
	predicate func(domain.AuditLogEntry) bool
	done      chan struct{}
	once      sync.Once
}

func (s *hubSubscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// hub fans audit inserts out to in-process subscribers for backends without a native feed.
// A subscriber whose buffer is full misses the entry.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]*hubSubscriber
	next   uint64
	closed bool
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{subs: map[uint64]*hubSubscriber{}, logger: logger}
}

func (h *hub) subscribe(ctx context.Context, predicate func(domain.AuditLogEntry) bool) (<-chan domain.AuditLogEntry, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &hubSubscriber{
		ch:        make(chan domain.AuditLogEntry, feedBuffer),
		predicate: predicate,
		done:      make(chan struct{}),
	}
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = sub

	release := func() {
		sub.stop()
		h.remove(id)
	}
	go func() {
		select {
		case <-ctx.Done():
			release()
		case <-sub.done:
		}
	}()
	return sub.ch, release
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *hub) publish(entry domain.AuditLogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if sub.predicate != nil && !sub.predicate(entry) {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			h.logger.Warn("feed subscriber is full, entry dropped", "subscriber", id, "entry", entry.ID)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
		sub.stop()
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
