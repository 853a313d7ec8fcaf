package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/metrics"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("notification bridge is closed")

const (
	defaultWindow      = 24 * time.Hour
	defaultRecentLimit = 10
)

// Options tunes the bridge.
type Options struct {
	// Window is how old an audit entry may be and still be delivered.
	Window      time.Duration
	RecentLimit int
	Now         func() time.Time
}

// Subscription is one live view of the audit feed. C is closed when the subscription ends.
type Subscription struct {
	ID string
	C  <-chan domain.AuditLogEntry

	bridge  *Bridge
	release func()
	done    chan struct{}
	once    sync.Once
}

// Close ends the subscription and frees its feed connection.
func (s *Subscription) Close() {
	s.bridge.forget(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		close(s.done)
		s.release()
		s.bridge.metrics.SubscriberRemoved()
	})
}

// Bridge passes newly inserted audit entries from the storage feed to viewers, filtered to the
// trailing window. It never writes.
type Bridge struct {
	feed    ports.ChangeFeed
	reader  ports.TimelineReader
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewBridge wires the bridge over a storage feed and reader.
func NewBridge(feed ports.ChangeFeed, reader ports.TimelineReader, opts Options, logger *slog.Logger, rec *metrics.Recorder) *Bridge {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = defaultRecentLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bridge{
		feed:    feed,
		reader:  reader,
		opts:    opts,
		logger:  logger,
		metrics: rec,
		subs:    map[string]*Subscription{},
	}
}

// Subscribe opens a subscription for subscriberID, replacing any previous one with the same ID.
// An empty ID gets a random one. Entries inserted while no subscription is open are not replayed;
// call Recent after (re)subscribing.
func (b *Bridge) Subscribe(ctx context.Context, subscriberID string) (*Subscription, error) {
	if subscriberID == "" {
		subscriberID = uuid.NewString()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	previous := b.subs[subscriberID]
	delete(b.subs, subscriberID)
	b.mu.Unlock()

	if previous != nil {
		b.logger.Debug("replacing subscription", "subscriber", subscriberID)
		previous.stop()
	}

	src, release, err := b.feed.SubscribeAudit(ctx, b.recent)
	if err != nil {
		return nil, fmt.Errorf("subscribe audit feed: %w", err)
	}

	b.metrics.SubscriberAdded()

	out := make(chan domain.AuditLogEntry)
	sub := &Subscription{ID: subscriberID, C: out, bridge: b, release: release, done: make(chan struct{})}
	go b.forward(ctx, src, out, sub)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.stop()
		return nil, ErrClosed
	}
	raced := b.subs[subscriberID]
	b.subs[subscriberID] = sub
	b.mu.Unlock()

	if raced != nil {
		raced.stop()
	}
	return sub, nil
}

// forward copies entries to the subscriber until the source closes or the subscription ends,
// then closes out.
func (b *Bridge) forward(ctx context.Context, src <-chan domain.AuditLogEntry, out chan<- domain.AuditLogEntry, sub *Subscription) {
	defer close(out)
	for {
		select {
		case entry, ok := <-src:
			if !ok {
				sub.Close()
				return
			}
			select {
			case out <- entry:
				b.metrics.EntryDelivered()
			case <-sub.done:
				return
			case <-ctx.Done():
				sub.Close()
				return
			}
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.Close()
			return
		}
	}
}

func (b *Bridge) recent(entry domain.AuditLogEntry) bool {
	return !entry.CreatedAt.Before(b.opts.Now().Add(-b.opts.Window))
}

// Release closes the subscription registered under subscriberID; it reports whether one existed.
func (b *Bridge) Release(subscriberID string) bool {
	b.mu.Lock()
	sub := b.subs[subscriberID]
	delete(b.subs, subscriberID)
	b.mu.Unlock()

	if sub == nil {
		return false
	}
	sub.stop()
	return true
}

// Recent returns the newest audit entries for catch-up; limit <= 0 uses the configured default.
func (b *Bridge) Recent(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = b.opts.RecentLimit
	}
	entries, err := b.reader.RecentAuditEntries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit entries: %w", err)
	}
	return entries, nil
}

// Active reports the number of open subscriptions.
func (b *Bridge) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close releases every subscription; later Subscribe calls fail with ErrClosed.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (b *Bridge) forget(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sub.ID] == sub {
		delete(b.subs, sub.ID)
	}
}
