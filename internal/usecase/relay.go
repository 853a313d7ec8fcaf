package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/notify"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

const (
	relaySubscriberID       = "telegram-relay"
	defaultResubscribeDelay = time.Second
)

// Relay forwards live audit entries from the bridge to a notifier.
type Relay struct {
	bridge   *notify.Bridge
	notifier ports.Notifier
	logger   *slog.Logger

	resubscribeDelay time.Duration
}

// NewRelay wires a relay; it does nothing until Run is called.
func NewRelay(bridge *notify.Bridge, notifier ports.Notifier, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Relay{bridge: bridge, notifier: notifier, logger: logger, resubscribeDelay: defaultResubscribeDelay}
}

// Run blocks until ctx is cancelled or the bridge is closed. When the feed ends underneath it the
// relay subscribes again after a pause. Delivery failures are logged and the entry is skipped.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.bridge.Subscribe(ctx, relaySubscriberID)
	if err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}

	for {
		r.forward(ctx, sub)
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warn("audit feed closed, resubscribing", "delay", r.resubscribeDelay)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.resubscribeDelay):
			}

			sub, err = r.bridge.Subscribe(ctx, relaySubscriberID)
			if errors.Is(err, notify.ErrClosed) {
				r.logger.Info("notification bridge closed, relay stopping")
				return nil
			}
			if err == nil {
				break
			}
			r.logger.Warn("relay resubscribe failed", "error", err)
		}
	}
}

func (r *Relay) forward(ctx context.Context, sub *notify.Subscription) {
	defer sub.Close()
	for entry := range sub.C {
		if err := r.notifier.PublishDigest(ctx, FormatDigest(entry)); err != nil {
			r.logger.Warn("digest not delivered", "audit", entry.ID, "error", err)
			continue
		}
		r.logger.Debug("digest delivered", "audit", entry.ID)
	}
}

// FormatDigest renders an audit entry as a plain text chat message, primary locale first.
func FormatDigest(entry domain.AuditLogEntry) string {
	var b strings.Builder
	b.WriteString(entry.TitlePrimary)
	if entry.DescriptionPrimary != "" {
		b.WriteString("\n")
		b.WriteString(entry.DescriptionPrimary)
	}
	if entry.TitleSecondary != "" {
		b.WriteString("\n\n")
		b.WriteString(entry.TitleSecondary)
		if entry.DescriptionSecondary != "" {
			b.WriteString("\n")
			b.WriteString(entry.DescriptionSecondary)
		}
	}
	if !entry.EventDate.IsZero() {
		b.WriteString("\n\n")
		b.WriteString(entry.EventDate.String())
	}
	return b.String()
}
