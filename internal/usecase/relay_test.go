package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/storage"
	"github.com/palamut62/ai-gant-news/internal/notify"
)

type recordingNotifier struct {
	mu      sync.Mutex
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests = append(n.digests, digest)
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.digests...)
}

func TestRelayForwardsNewEntries(t *testing.T) {
	t.Parallel()

	repo, err := storage.NewSQLiteRepository(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	t.Cleanup(func() { repo.Close() })

	bridge := notify.NewBridge(repo, repo, notify.Options{}, nil, nil)
	t.Cleanup(bridge.Close)

	notifier := &recordingNotifier{}
	relay := NewRelay(bridge, notifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return bridge.Active() == 1 }, time.Second, 5*time.Millisecond)

	_, err = repo.InsertAuditEntry(context.Background(), domain.SummaryAuditEntry(3, time.Now().UTC()))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(notifier.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, notifier.sent()[0], "3 Yeni Gelişme Eklendi")
	assert.Contains(t, notifier.sent()[0], "3 New Developments Added")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayFailsOnClosedBridge(t *testing.T) {
	t.Parallel()

	repo, err := storage.NewSQLiteRepository(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	bridge := notify.NewBridge(repo, repo, notify.Options{}, nil, nil)
	bridge.Close()

	err = NewRelay(bridge, &recordingNotifier{}, nil).Run(context.Background())
	assert.ErrorIs(t, err, notify.ErrClosed)
}

func newRelayBridge(t *testing.T) (*storage.SQLiteRepository, *notify.Bridge) {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	t.Cleanup(func() { repo.Close() })

	bridge := notify.NewBridge(repo, repo, notify.Options{}, nil, nil)
	t.Cleanup(bridge.Close)
	return repo, bridge
}

func TestRelayResubscribesWhenFeedEnds(t *testing.T) {
	t.Parallel()

	repo, bridge := newRelayBridge(t)
	notifier := &recordingNotifier{}
	relay := NewRelay(bridge, notifier, nil)
	relay.resubscribeDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return bridge.Active() == 1 }, time.Second, 5*time.Millisecond)

	// end the feed under the running relay
	require.True(t, bridge.Release(relaySubscriberID))
	require.Eventually(t, func() bool { return bridge.Active() == 1 }, time.Second, 5*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("relay returned after feed ended: %v", err)
	default:
	}

	_, err := repo.InsertAuditEntry(context.Background(), domain.SummaryAuditEntry(2, time.Now().UTC()))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(notifier.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, notifier.sent()[0], "2 New Developments Added")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayStopsWhenBridgeCloses(t *testing.T) {
	t.Parallel()

	_, bridge := newRelayBridge(t)
	relay := NewRelay(bridge, &recordingNotifier{}, nil)
	relay.resubscribeDelay = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- relay.Run(context.Background()) }()

	require.Eventually(t, func() bool { return bridge.Active() == 1 }, time.Second, 5*time.Millisecond)
	bridge.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after the bridge closed")
	}
}

func TestFormatDigest(t *testing.T) {
	t.Parallel()

	entry := domain.AuditLogEntry{
		TitlePrimary:         "Yeni model",
		DescriptionPrimary:   "Ayrıntılar",
		TitleSecondary:       "New model",
		DescriptionSecondary: "Details",
		EventDate:            domain.NewDate(2024, time.January, 10),
	}
	assert.Equal(t, "Yeni model\nAyrıntılar\n\nNew model\nDetails\n\n2024-01-10", FormatDigest(entry))

	assert.Equal(t, "Başlık", FormatDigest(domain.AuditLogEntry{TitlePrimary: "Başlık"}))
}
