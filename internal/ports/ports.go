package ports

import (
	"context"
	"time"

	"github.com/palamut62/ai-gant-news/internal/domain"
)

// Generator sends a prompt to a generative text service and returns its raw reply.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// DevelopmentWriter is the write path owned by the persistence engine.
type DevelopmentWriter interface {
	// UpsertDevelopment inserts the record or overwrites the row sharing its natural key.
	UpsertDevelopment(ctx context.Context, rec domain.DevelopmentRecord) (domain.DevelopmentRecord, error)
	InsertAuditEntry(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error)
	InsertBatchSummary(ctx context.Context, summary domain.BatchSummary) (domain.BatchSummary, error)
}

// TimelineReader serves persisted records to viewers.
type TimelineReader interface {
	ListDevelopments(ctx context.Context, limit int) ([]domain.DevelopmentRecord, error)
	GetDevelopment(ctx context.Context, id int64) (domain.DevelopmentRecord, error)
	CountDevelopments(ctx context.Context) (int64, error)
	RecentAuditEntries(ctx context.Context, limit int) ([]domain.AuditLogEntry, error)
	LatestBatchSummary(ctx context.Context) (domain.BatchSummary, error)
}

// ChangeFeed pushes newly inserted audit entries matching predicate.
// The returned release func must be called to free the underlying feed.
type ChangeFeed interface {
	SubscribeAudit(ctx context.Context, predicate func(domain.AuditLogEntry) bool) (<-chan domain.AuditLogEntry, func(), error)
}

// Store bundles everything a storage backend provides.
type Store interface {
	DevelopmentWriter
	TimelineReader
	ChangeFeed
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Notifier streams digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when ingestion runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
