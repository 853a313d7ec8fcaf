package events

import (
	"sync"
	"time"
)

// Topic names a class of message on the bus.
type Topic string

const (
	TopicDataChanged     Topic = "data_changed"
	TopicDetailRequested Topic = "detail_requested"
)

// Message is anything published on the bus.
type Message interface {
	Topic() Topic
}

// DataChanged is published after an ingestion run stored at least one development.
type DataChanged struct {
	RunID string    `json:"run_id"`
	Added int       `json:"added"`
	At    time.Time `json:"at"`
}

func (DataChanged) Topic() Topic { return TopicDataChanged }

// DetailRequested asks open viewers to show one development.
type DetailRequested struct {
	DevelopmentID int64 `json:"development_id"`
}

func (DetailRequested) Topic() Topic { return TopicDetailRequested }

type subscriber struct {
	ch     chan Message
	topics map[Topic]bool
}

// Bus is an in-process typed fan-out. Slow subscribers miss messages instead of blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
	closed bool
}

// NewBus creates a bus whose subscriber channels hold buffer messages.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 8
	}
	return &Bus{subs: map[int]*subscriber{}, buffer: buffer}
}

// Publish delivers msg to every subscriber of its topic without blocking.
// It returns the number of subscribers that received it.
func (b *Bus) Publish(msg Message) int {
	if b == nil || msg == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}

	delivered := 0
	for _, sub := range b.subs {
		if len(sub.topics) > 0 && !sub.topics[msg.Topic()] {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribe returns a channel receiving messages of the given topics (all topics when none given)
// and a cancel func that closes it.
func (b *Bus) Subscribe(topics ...Topic) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	set := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{ch: ch, topics: set}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
	return ch, cancel
}

// Close closes every subscriber channel; later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
