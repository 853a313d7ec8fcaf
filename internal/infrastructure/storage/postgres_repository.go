package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresRepository persists the timeline into Postgres and serves the change feed through
// LISTEN/NOTIFY, one dedicated connection per subscriber.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	q      dialect
	logger *slog.Logger
}

var _ ports.Store = (*PostgresRepository)(nil)

// NewPostgresRepository creates a connection pool and fails fast if the database is unreachable.
func NewPostgresRepository(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresRepository, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRepository{pool: pool, q: postgresDialect, logger: logger}, nil
}

// EnsureSchema applies the embedded schema. Safe to run multiple times.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close shuts down the pool; it waits for released subscriber connections.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// UpsertDevelopment inserts rec or overwrites the row with the same natural key.
func (r *PostgresRepository) UpsertDevelopment(ctx context.Context, rec domain.DevelopmentRecord) (domain.DevelopmentRecord, error) {
	query, args, err := r.q.upsertDevelopment(rec)
	if err != nil {
		return domain.DevelopmentRecord{}, fmt.Errorf("build upsert: %w", err)
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&rec.ID); err != nil {
		return domain.DevelopmentRecord{}, fmt.Errorf("upsert development: %w", err)
	}
	return rec, nil
}

// InsertAuditEntry appends entry; the insert trigger notifies listeners.
func (r *PostgresRepository) InsertAuditEntry(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	query, args, err := r.q.insertAudit(entry)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("build audit insert: %w", err)
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&entry.ID); err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) InsertBatchSummary(ctx context.Context, summary domain.BatchSummary) (domain.BatchSummary, error) {
	query, args, err := r.q.insertSummary(summary)
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("build summary insert: %w", err)
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&summary.ID); err != nil {
		return domain.BatchSummary{}, fmt.Errorf("insert batch summary: %w", err)
	}
	return summary, nil
}

func (r *PostgresRepository) ListDevelopments(ctx context.Context, limit int) ([]domain.DevelopmentRecord, error) {
	query, args, err := r.q.listDevelopments(limit)
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query developments: %w", err)
	}
	defer rows.Close()

	var records []domain.DevelopmentRecord
	for rows.Next() {
		rec, err := scanPostgresDevelopment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func (r *PostgresRepository) GetDevelopment(ctx context.Context, id int64) (domain.DevelopmentRecord, error) {
	query, args, err := r.q.getDevelopment(id)
	if err != nil {
		return domain.DevelopmentRecord{}, fmt.Errorf("build get: %w", err)
	}
	rec, err := scanPostgresDevelopment(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DevelopmentRecord{}, fmt.Errorf("development %d: %w", id, ErrNotFound)
	}
	return rec, err
}

func (r *PostgresRepository) CountDevelopments(ctx context.Context) (int64, error) {
	query, args, err := r.q.countDevelopments()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count developments: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) RecentAuditEntries(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	query, args, err := r.q.recentAudit(limit)
	if err != nil {
		return nil, fmt.Errorf("build recent audit: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		entry, err := scanPostgresAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entries, nil
}

func (r *PostgresRepository) LatestBatchSummary(ctx context.Context) (domain.BatchSummary, error) {
	query, args, err := r.q.latestSummary()
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("build latest summary: %w", err)
	}
	var summary domain.BatchSummary
	err = r.pool.QueryRow(ctx, query, args...).Scan(&summary.ID, &summary.SuccessCount, &summary.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BatchSummary{}, fmt.Errorf("batch summary: %w", ErrNotFound)
	}
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("latest batch summary: %w", err)
	}
	summary.CreatedAt = summary.CreatedAt.UTC()
	return summary, nil
}

func (r *PostgresRepository) getAuditEntry(ctx context.Context, id int64) (domain.AuditLogEntry, error) {
	query, args, err := r.q.getAudit(id)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("build get audit: %w", err)
	}
	entry, err := scanPostgresAudit(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AuditLogEntry{}, fmt.Errorf("audit entry %d: %w", id, ErrNotFound)
	}
	return entry, err
}

// SubscribeAudit holds one pooled connection in LISTEN until release is called or ctx ends.
// Notifications carry only the row id; the entry is read back through the pool.
func (r *PostgresRepository) SubscribeAudit(ctx context.Context, predicate func(domain.AuditLogEntry) bool) (<-chan domain.AuditLogEntry, func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+auditChannel); err != nil {
		conn.Release()
		return nil, nil, fmt.Errorf("listen %s: %w", auditChannel, err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	out := make(chan domain.AuditLogEntry, feedBuffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		defer r.unlisten(conn)

		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					r.logger.Warn("audit feed stopped", "error", err)
				}
				return
			}
			id, err := strconv.ParseInt(n.Payload, 10, 64)
			if err != nil {
				r.logger.Warn("unexpected audit notification", "payload", n.Payload)
				continue
			}
			entry, err := r.getAuditEntry(listenCtx, id)
			if err != nil {
				r.logger.Warn("load notified audit entry", "id", id, "error", err)
				continue
			}
			if predicate != nil && !predicate(entry) {
				continue
			}
			select {
			case out <- entry:
			case <-listenCtx.Done():
				return
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return out, release, nil
}

// unlisten returns conn to the pool; a connection broken by cancellation is destroyed by the pool.
func (r *PostgresRepository) unlisten(conn *pgxpool.Conn) {
	if !conn.Conn().IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := conn.Exec(ctx, "UNLISTEN "+auditChannel); err != nil {
			r.logger.Debug("unlisten failed", "error", err)
		}
		cancel()
	}
	conn.Release()
}

func scanPostgresDevelopment(row pgx.Row) (domain.DevelopmentRecord, error) {
	var (
		rec       domain.DevelopmentRecord
		eventDate time.Time
	)
	if err := row.Scan(&rec.ID, &eventDate, &rec.ShortPrimary, &rec.ShortSecondary,
		&rec.LongPrimary, &rec.LongSecondary, &rec.SourceURL, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan development: %w", err)
	}
	rec.EventDate = domain.DateOf(eventDate)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func scanPostgresAudit(row pgx.Row) (domain.AuditLogEntry, error) {
	var (
		entry     domain.AuditLogEntry
		eventDate time.Time
	)
	if err := row.Scan(&entry.ID, &entry.TitlePrimary, &entry.TitleSecondary,
		&entry.DescriptionPrimary, &entry.DescriptionSecondary, &eventDate, &entry.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entry, err
		}
		return entry, fmt.Errorf("scan audit entry: %w", err)
	}
	entry.EventDate = domain.DateOf(eventDate)
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}
